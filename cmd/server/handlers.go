package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/service"
	"github.com/tallyward/ledgercore/internal/validator"
)

// registerRoutes wires the JSON command and query API.
func registerRoutes(mux *http.ServeMux, e *service.Engine) {
	mux.HandleFunc("POST /v1/persons", createPerson(e))
	mux.HandleFunc("GET /v1/persons/{id}", getPerson(e))
	mux.HandleFunc("DELETE /v1/persons/{id}", deletePerson(e))
	mux.HandleFunc("GET /v1/persons/{id}/balance", personBalance(e))
	mux.HandleFunc("GET /v1/persons/{id}/references", personReferences(e))

	mux.HandleFunc("POST /v1/groups", createGroup(e))
	mux.HandleFunc("GET /v1/groups/{id}", getGroup(e))
	mux.HandleFunc("DELETE /v1/groups/{id}", deleteGroup(e))
	mux.HandleFunc("GET /v1/groups/{id}/settlements", suggestGroupSettlements(e))

	mux.HandleFunc("POST /v1/expenses", createExpense(e))
	mux.HandleFunc("POST /v1/expenses/{id}/settle", settleExpense(e))

	mux.HandleFunc("POST /v1/splitbills", createSplitBill(e))
	mux.HandleFunc("POST /v1/splitbills/{id}/participants/{person}/pay", markParticipantPaid(e))
	mux.HandleFunc("GET /v1/splitbills/{id}/progress", splitBillProgress(e))

	mux.HandleFunc("POST /v1/subscriptions", createSubscription(e))

	mux.HandleFunc("POST /v1/transfers", recordTransfer(e))
	mux.HandleFunc("POST /v1/transfers/{id}/reconcile", reconcileTransfer(e))

	mux.HandleFunc("GET /v1/balances", allBalances(e))
	mux.HandleFunc("GET /v1/settlements/suggestions", suggestSettlements(e))

	mux.HandleFunc("GET /v1/integrity/report", integrityReport(e))
	mux.HandleFunc("GET /v1/integrity/orphans", listOrphans(e))
	mux.HandleFunc("GET /v1/stats", managerStats(e))
}

type errorBody struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindReferenceMissing:
		status = http.StatusNotFound
	case errs.KindReferenced, errs.KindWriteConflict:
		status = http.StatusConflict
	case errs.KindInvalidArgument, errs.KindSelfReference:
		status = http.StatusBadRequest
	case errs.KindRoundingInvariant, errs.KindCycleDetected,
		errs.KindNestingLimit, errs.KindRecursionLimit, errs.KindTransactionState:
		status = http.StatusUnprocessableEntity
	case errs.KindTimeout:
		status = http.StatusGatewayTimeout
	case errs.KindStorage:
		status = http.StatusInternalServerError
	}

	body := errorBody{Kind: string(errs.KindOf(err)), Message: err.Error()}
	var violations errs.Violations
	if errors.As(err, &violations) && len(violations) > 1 {
		for _, v := range violations {
			body.Details = append(body.Details, v.Error())
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.InvalidArgument("malformed request body: " + err.Error())
	}
	return nil
}

func createPerson(e *service.Engine) http.HandlerFunc {
	type req struct {
		Name string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in req
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		p, err := e.CreatePerson(r.Context(), in.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func getPerson(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := e.GetPerson(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deletePerson(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policy := validator.ParseDeletePolicy(r.URL.Query().Get("policy"))
		report, err := e.DeletePerson(r.Context(), r.PathValue("id"), policy)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func personBalance(e *service.Engine) http.HandlerFunc {
	type resp struct {
		PersonID string          `json:"person_id"`
		Balance  decimal.Decimal `json:"balance"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		bal, err := e.NetBalance(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp{PersonID: id, Balance: bal})
	}
}

func personReferences(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := e.CountReferences(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func createGroup(e *service.Engine) http.HandlerFunc {
	type req struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in req
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		g, err := e.CreateGroup(r.Context(), in.Name, in.MemberIDs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	}
}

func getGroup(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := e.GetGroup(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func deleteGroup(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := e.DeleteGroup(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func suggestGroupSettlements(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transfers, err := e.SuggestGroupSettlements(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transfers)
	}
}

func createExpense(e *service.Engine) http.HandlerFunc {
	type req struct {
		GroupID      string          `json:"group_id"`
		Amount       decimal.Decimal `json:"amount"`
		PaidBy       string          `json:"paid_by"`
		SplitBetween []string        `json:"split_between"`
		Date         int64           `json:"date,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in req
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		exp, err := e.CreateExpense(r.Context(), service.CreateExpenseInput{
			GroupID:      in.GroupID,
			Amount:       in.Amount,
			PaidBy:       in.PaidBy,
			SplitBetween: in.SplitBetween,
			Date:         in.Date,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, exp)
	}
}

func settleExpense(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := e.SettleExpense(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createSplitBill(e *service.Engine) http.HandlerFunc {
	type share struct {
		PersonID string          `json:"person_id"`
		Amount   decimal.Decimal `json:"amount"`
	}
	type req struct {
		Title        string          `json:"title"`
		TotalAmount  decimal.Decimal `json:"total_amount"`
		PaidByID     string          `json:"paid_by_id"`
		Participants []share         `json:"participants"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in req
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		input := service.CreateSplitBillInput{
			Title:       in.Title,
			TotalAmount: in.TotalAmount,
			PaidByID:    in.PaidByID,
		}
		for _, p := range in.Participants {
			input.Participants = append(input.Participants, service.SplitShareInput{
				PersonID: p.PersonID,
				Amount:   p.Amount,
			})
		}
		bill, err := e.CreateSplitBill(r.Context(), input)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bill)
	}
}

func markParticipantPaid(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := e.MarkParticipantPaid(r.Context(), r.PathValue("id"), r.PathValue("person"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func splitBillProgress(e *service.Engine) http.HandlerFunc {
	type resp struct {
		BillID   string          `json:"bill_id"`
		Progress decimal.Decimal `json:"progress"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		p, err := e.SettlementProgress(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp{BillID: id, Progress: p})
	}
}

func createSubscription(e *service.Engine) http.HandlerFunc {
	type req struct {
		Name       string          `json:"name"`
		Amount     decimal.Decimal `json:"amount"`
		SharedWith []string        `json:"shared_with"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in req
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		sub, err := e.CreateSubscription(r.Context(), in.Name, in.Amount, in.SharedWith)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

func recordTransfer(e *service.Engine) http.HandlerFunc {
	type req struct {
		FromPersonID string          `json:"from_person_id"`
		ToPersonID   string          `json:"to_person_id"`
		Amount       decimal.Decimal `json:"amount"`
		Note         string          `json:"note,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var in req
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		t, err := e.RecordTransfer(r.Context(), in.FromPersonID, in.ToPersonID, in.Amount, in.Note)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func reconcileTransfer(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := e.ReconcileTransfer(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func allBalances(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balances, err := e.NetBalances(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, balances)
	}
}

func suggestSettlements(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transfers, err := e.SuggestSettlements(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transfers)
	}
}

func integrityReport(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := e.GraphReport(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func listOrphans(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orphans, err := e.Orphans(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orphans)
	}
}

func managerStats(e *service.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, e.Stats())
	}
}
