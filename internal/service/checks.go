package service

import (
	"context"

	"github.com/tallyward/ledgercore/internal/calculator"
	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/graph"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
	"github.com/tallyward/ledgercore/internal/validator"
)

// referenceCheck validates every inserted or updated record against the
// projected post-commit state, collecting all integrity errors rather than
// stopping at the first.
func (e *Engine) referenceCheck(_ context.Context, _, after *storage.Snapshot, muts []storage.Mutation) error {
	v := validator.New(after)
	var violations errs.Violations
	for _, m := range muts {
		if m.Op == storage.OpDelete {
			continue
		}
		violations = append(violations, v.ValidateReferences(m.Record)...)
	}
	if len(violations) > 0 {
		return violations
	}
	return nil
}

// graphCheck rebuilds the debt graph over the projected state. Cycles are
// legal (friends can mutually owe each other) and only logged; what fails
// the commit is a graph the analyzer cannot traverse within its recursion
// bound, or a mutation fabricating a debt edge to a missing person.
func (e *Engine) graphCheck(_ context.Context, before, after *storage.Snapshot, muts []storage.Mutation) error {
	beforeGraph, err := graph.Build(before, e.graphCfg)
	if err != nil {
		return err
	}
	afterGraph, err := graph.Build(after, e.graphCfg)
	if err != nil {
		return err
	}

	if afterGraph.OrphanEdgeCount() > beforeGraph.OrphanEdgeCount() {
		for _, m := range muts {
			if m.Op == storage.OpDelete || m.Record == nil {
				continue
			}
			switch m.Record.RecordType() {
			case models.EntityGroupExpense, models.EntitySplitBill, models.EntityTransaction:
				v := validator.New(after)
				if violations := v.ValidateReferences(m.Record); len(violations) > 0 {
					return violations
				}
			}
		}
	}

	cycle, err := afterGraph.DetectCycle()
	if err != nil {
		return err
	}
	if cycle != nil {
		if prior, _ := beforeGraph.DetectCycle(); prior == nil {
			e.log.Warn("commit introduces a circular debt chain",
				"path", cycle.Persons,
				"total", cycle.Total.StringFixed(2),
			)
		}
	}
	return nil
}

// consistencyCheck enforces the engine's two cache invariants after every
// commit: each person's cached balance equals the net balance derived from
// unsettled records, and each group's cached total equals the sum of its
// live expense amounts.
func (e *Engine) consistencyCheck(_ context.Context, _, after *storage.Snapshot, _ []storage.Mutation) error {
	derived, err := calculator.NetBalances(after)
	if err != nil {
		return err
	}
	var violations errs.Violations
	for id, p := range after.Persons {
		if !p.Balance.Equal(derived[id]) {
			violations = append(violations, errs.RoundingInvariant(models.EntityPerson, id, derived[id], p.Balance))
		}
	}
	v := validator.New(after)
	for _, g := range after.Groups {
		violations = append(violations, groupTotalViolations(v, g)...)
	}
	if len(violations) > 0 {
		return violations
	}
	return nil
}

// groupTotalViolations filters a group's reference validation down to the
// cached-total invariant; missing-member errors are the referenceCheck's
// job and only enforced for records the transaction touched.
func groupTotalViolations(v *validator.Validator, g *models.Group) errs.Violations {
	var out errs.Violations
	for _, err := range v.ValidateReferences(g) {
		if err.Kind == errs.KindRoundingInvariant {
			out = append(out, err)
		}
	}
	return out
}
