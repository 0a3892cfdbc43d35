package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/calculator"
	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/graph"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
	"github.com/tallyward/ledgercore/internal/txn"
	"github.com/tallyward/ledgercore/internal/validator"
)

func now() int64 { return time.Now().Unix() }

// CreatePerson adds a person with a zero balance.
func (e *Engine) CreatePerson(ctx context.Context, name string) (*models.Person, error) {
	if name == "" {
		return nil, errs.InvalidArgument("person name must not be empty")
	}
	p := &models.Person{
		ID:        uuid.New().String(),
		Name:      name,
		Balance:   decimal.Zero,
		CreatedAt: now(),
	}
	if err := e.mgr.AtomicInsert(ctx, p); err != nil {
		return nil, err
	}
	e.log.Info("person created", "person_id", p.ID, "name", name)
	return p, nil
}

// CreateGroup adds a group with the given members.
func (e *Engine) CreateGroup(ctx context.Context, name string, memberIDs []string) (*models.Group, error) {
	if name == "" {
		return nil, errs.InvalidArgument("group name must not be empty")
	}
	g := &models.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Members:     dedupe(memberIDs),
		TotalAmount: decimal.Zero,
		CreatedAt:   now(),
	}
	if err := e.mgr.AtomicInsert(ctx, g); err != nil {
		return nil, err
	}
	e.log.Info("group created", "group_id", g.ID, "name", name, "members", len(g.Members))
	return g, nil
}

// CreateSubscription adds a recurring cost shared between people.
func (e *Engine) CreateSubscription(ctx context.Context, name string, amount decimal.Decimal, sharedWith []string) (*models.Subscription, error) {
	if name == "" {
		return nil, errs.InvalidArgument("subscription name must not be empty")
	}
	if !amount.IsPositive() {
		return nil, errs.InvalidArgument("subscription amount must be positive")
	}
	s := &models.Subscription{
		ID:         uuid.New().String(),
		Name:       name,
		Amount:     amount,
		SharedWith: dedupe(sharedWith),
		CreatedAt:  now(),
	}
	if err := e.mgr.AtomicInsert(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateExpenseInput describes a new group expense.
type CreateExpenseInput struct {
	GroupID      string
	Amount       decimal.Decimal
	PaidBy       string
	SplitBetween []string
	Date         int64
}

// CreateExpense records an expense in one unit of work: the expense row, the
// group's expense list and cached total, and every affected balance move
// together or not at all.
func (e *Engine) CreateExpense(ctx context.Context, in CreateExpenseInput) (*models.GroupExpense, error) {
	if !in.Amount.IsPositive() {
		return nil, errs.InvalidArgument("expense amount must be positive")
	}
	split := dedupe(in.SplitBetween)
	if len(split) == 0 {
		return nil, errs.InvalidArgument("expense must have at least one participant")
	}
	if in.Date == 0 {
		in.Date = now()
	}

	expense := &models.GroupExpense{
		ID:           uuid.New().String(),
		GroupID:      in.GroupID,
		Amount:       in.Amount,
		PaidBy:       in.PaidBy,
		SplitBetween: split,
		Date:         in.Date,
	}

	err := e.mgr.Run(ctx, func(tx *txn.Tx) error {
		rec, err := tx.Get(models.EntityGroup, in.GroupID)
		if err != nil {
			return errs.ReferenceMissing(models.EntityGroup, in.GroupID)
		}
		group := rec.(*models.Group)

		// Participants (and the payer) join the group automatically.
		for _, pid := range append(append([]string(nil), split...), in.PaidBy) {
			if !group.HasMember(pid) {
				group.Members = append(group.Members, pid)
			}
		}
		group.ExpenseIDs = append(group.ExpenseIDs, expense.ID)
		group.TotalAmount = group.TotalAmount.Add(expense.Amount)

		snap := tx.Snapshot()
		e.warnOnNewCycles(snap, expense)

		eff, err := calculator.ExpenseBalanceEffects(expense)
		if err != nil {
			return err
		}
		balMuts, err := calculator.ApplyEffects(snap, eff)
		if err != nil {
			return err
		}

		if err := tx.Insert(expense); err != nil {
			return err
		}
		if err := tx.Update(group); err != nil {
			return err
		}
		return tx.Apply(balMuts)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("expense created",
		"expense_id", expense.ID,
		"group_id", in.GroupID,
		"amount", in.Amount.StringFixed(2),
		"participants", len(split),
	)
	return expense, nil
}

// SettleExpense marks the expense settled and adjusts every affected
// balance, emitting the audit transactions, in one unit of work.
func (e *Engine) SettleExpense(ctx context.Context, expenseID string) error {
	err := e.mgr.Run(ctx, func(tx *txn.Tx) error {
		plan, err := calculator.SettleExpensePlan(tx.Snapshot(), expenseID, now())
		if err != nil {
			return err
		}
		return tx.Apply(plan)
	})
	if err != nil {
		return err
	}
	e.log.Info("expense settled", "expense_id", expenseID)
	return nil
}

// SplitShareInput is one participant's share of a new split bill.
type SplitShareInput struct {
	PersonID string
	Amount   decimal.Decimal
}

// CreateSplitBillInput describes a new split bill.
type CreateSplitBillInput struct {
	Title        string
	TotalAmount  decimal.Decimal
	PaidByID     string
	Participants []SplitShareInput
}

// CreateSplitBill records a bill with explicit per-person amounts.
func (e *Engine) CreateSplitBill(ctx context.Context, in CreateSplitBillInput) (*models.SplitBill, error) {
	if !in.TotalAmount.IsPositive() {
		return nil, errs.InvalidArgument("split bill total must be positive")
	}
	if len(in.Participants) == 0 {
		return nil, errs.InvalidArgument("split bill must have at least one participant")
	}

	bill := &models.SplitBill{
		ID:          uuid.New().String(),
		Title:       in.Title,
		TotalAmount: in.TotalAmount,
		PaidByID:    in.PaidByID,
		CreatedAt:   now(),
	}
	seen := map[string]bool{}
	for _, p := range in.Participants {
		if p.Amount.IsNegative() {
			return nil, errs.InvalidArgument(fmt.Sprintf("participant %s has a negative share", p.PersonID))
		}
		if seen[p.PersonID] {
			return nil, errs.InvalidArgument(fmt.Sprintf("participant %s listed twice", p.PersonID))
		}
		seen[p.PersonID] = true
		bill.Participants = append(bill.Participants, models.SplitParticipant{
			PersonID: p.PersonID,
			Amount:   p.Amount,
		})
	}
	if err := calculator.ValidateSplitBill(bill); err != nil {
		return nil, err
	}

	err := e.mgr.Run(ctx, func(tx *txn.Tx) error {
		snap := tx.Snapshot()
		e.warnOnNewCycles(snap, bill)
		balMuts, err := calculator.ApplyEffects(snap, calculator.SplitBillBalanceEffects(bill))
		if err != nil {
			return err
		}
		if err := tx.Insert(bill); err != nil {
			return err
		}
		return tx.Apply(balMuts)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("split bill created",
		"bill_id", bill.ID,
		"total", in.TotalAmount.StringFixed(2),
		"participants", len(bill.Participants),
	)
	return bill, nil
}

// MarkParticipantPaid flips one participant's paid flag and moves both
// balances in one unit of work.
func (e *Engine) MarkParticipantPaid(ctx context.Context, billID, personID string) error {
	err := e.mgr.Run(ctx, func(tx *txn.Tx) error {
		plan, err := calculator.SettleParticipantPlan(tx.Snapshot(), billID, personID, now())
		if err != nil {
			return err
		}
		return tx.Apply(plan)
	})
	if err != nil {
		return err
	}
	e.log.Info("participant paid", "bill_id", billID, "person_id", personID)
	return nil
}

// DeletePerson removes a person under the given cascade policy. The whole
// cascade — dependent rows, membership, rebalancing — is one unit of work.
func (e *Engine) DeletePerson(ctx context.Context, personID string, policy validator.DeletePolicy) (*validator.DeleteReport, error) {
	var report validator.DeleteReport
	err := e.mgr.Run(ctx, func(tx *txn.Tx) error {
		plan, err := validator.New(tx.Snapshot()).PlanDeletePerson(personID, policy)
		if err != nil {
			return err
		}
		report = plan.Report
		return tx.Apply(plan.Mutations)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("person deleted",
		"person_id", personID,
		"policy", string(policy),
		"expenses_deleted", report.ExpensesDeleted,
		"expenses_updated", report.ExpensesUpdated,
	)
	return &report, nil
}

// DeleteGroup removes a group and its expenses, reversing the balance
// effects of any still unsettled.
func (e *Engine) DeleteGroup(ctx context.Context, groupID string) (*validator.DeleteReport, error) {
	var report validator.DeleteReport
	err := e.mgr.Run(ctx, func(tx *txn.Tx) error {
		plan, err := validator.New(tx.Snapshot()).PlanDeleteGroup(groupID)
		if err != nil {
			return err
		}
		report = plan.Report
		return tx.Apply(plan.Mutations)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("group deleted", "group_id", groupID, "expenses_deleted", report.ExpensesDeleted)
	return &report, nil
}

// RecordTransfer records money moving from one person to another. The row
// carries a debt edge and moves both balances until reconciled.
func (e *Engine) RecordTransfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, note string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, errs.InvalidArgument("transfer amount must be positive")
	}
	if fromID == toID {
		return nil, errs.SelfReference(models.EntityTransaction, "", fromID)
	}
	t := &models.Transaction{
		ID:           uuid.New().String(),
		Amount:       amount,
		FromPersonID: fromID,
		ToPersonID:   toID,
		Date:         now(),
		Kind:         models.KindTransfer,
		Note:         note,
	}
	err := e.mgr.Run(ctx, func(tx *txn.Tx) error {
		snap := tx.Snapshot()
		e.warnOnNewCycles(snap, t)
		balMuts, err := calculator.ApplyEffects(snap, calculator.TransferBalanceEffects(t))
		if err != nil {
			return err
		}
		if err := tx.Insert(t); err != nil {
			return err
		}
		return tx.Apply(balMuts)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ReconcileTransfer folds a transfer into balances: the debt edge goes away
// and both balances move back.
func (e *Engine) ReconcileTransfer(ctx context.Context, transferID string) error {
	return e.mgr.Run(ctx, func(tx *txn.Tx) error {
		rec, err := tx.Get(models.EntityTransaction, transferID)
		if err != nil {
			return errs.ReferenceMissing(models.EntityTransaction, transferID)
		}
		t := rec.(*models.Transaction)
		if t.Kind != models.KindTransfer || t.Reconciled {
			return errs.InvalidArgument("transaction is not an open transfer")
		}
		snap := tx.Snapshot()
		eff := calculator.TransferBalanceEffects(t)
		neg := map[string]decimal.Decimal{}
		for p, d := range eff {
			neg[p] = d.Neg()
		}
		balMuts, err := calculator.ApplyEffects(snap, neg)
		if err != nil {
			return err
		}
		t.Reconciled = true
		if err := tx.Update(t); err != nil {
			return err
		}
		return tx.Apply(balMuts)
	})
}

// warnOnNewCycles surfaces debt edges about to close a cycle. Cycles are
// legal; the warning exists so callers can offer netting.
func (e *Engine) warnOnNewCycles(snap *storage.Snapshot, rec models.Record) {
	g, err := graph.Build(snap, e.graphCfg)
	if err != nil {
		return
	}
	for _, edge := range debtEdges(rec) {
		if g.WouldCreateCycle(edge.from, edge.to) {
			e.log.Warn("new debt edge closes a cycle",
				"from", edge.from, "to", edge.to,
				"record_type", string(rec.RecordType()), "record_id", rec.RecordID(),
			)
		}
	}
	if graph.DetectSelfReference(rec) {
		e.log.Info("payer is also a participant; their share nets out",
			"record_type", string(rec.RecordType()), "record_id", rec.RecordID(),
		)
	}
}

type edge struct{ from, to string }

// debtEdges lists the edges a record is about to introduce.
func debtEdges(rec models.Record) []edge {
	var out []edge
	switch r := rec.(type) {
	case *models.GroupExpense:
		for _, p := range r.SplitBetween {
			if p != r.PaidBy {
				out = append(out, edge{from: p, to: r.PaidBy})
			}
		}
	case *models.SplitBill:
		for _, p := range r.Participants {
			if p.PersonID != r.PaidByID && !p.HasPaid {
				out = append(out, edge{from: p.PersonID, to: r.PaidByID})
			}
		}
	case *models.Transaction:
		if r.Kind == models.KindTransfer && !r.Reconciled {
			out = append(out, edge{from: r.FromPersonID, to: r.ToPersonID})
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
