package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/calculator"
	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/graph"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
	"github.com/tallyward/ledgercore/internal/validator"
)

// snapshot reads the last-committed state for a read-only query.
func (e *Engine) snapshot(ctx context.Context) (*storage.Snapshot, error) {
	return e.mgr.Snapshot(ctx)
}

// GetPerson returns the person, or a reference error if unknown.
func (e *Engine) GetPerson(ctx context.Context, personID string) (*models.Person, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := snap.Persons[personID]
	if !ok {
		return nil, errs.ReferenceMissing(models.EntityPerson, personID)
	}
	return p, nil
}

// GetGroup returns the group, or a reference error if unknown.
func (e *Engine) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := snap.Groups[groupID]
	if !ok {
		return nil, errs.ReferenceMissing(models.EntityGroup, groupID)
	}
	return g, nil
}

// NetBalance derives a person's balance from unsettled records, bypassing the
// cached field. Positive means the ledger owes them money.
func (e *Engine) NetBalance(ctx context.Context, personID string) (decimal.Decimal, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if _, ok := snap.Persons[personID]; !ok {
		return decimal.Zero, errs.ReferenceMissing(models.EntityPerson, personID)
	}
	return calculator.NetBalance(snap, personID)
}

// NetBalances derives every person's balance from unsettled records.
func (e *Engine) NetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return calculator.NetBalances(snap)
}

// SettlementProgress reports the paid fraction of a split bill in [0, 1].
func (e *Engine) SettlementProgress(ctx context.Context, billID string) (decimal.Decimal, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	bill, ok := snap.SplitBills[billID]
	if !ok {
		return decimal.Zero, errs.ReferenceMissing(models.EntitySplitBill, billID)
	}
	return calculator.SettlementProgress(bill), nil
}

// SuggestSettlements proposes a minimal set of transfers that zeroes every
// derived balance.
func (e *Engine) SuggestSettlements(ctx context.Context) ([]calculator.SuggestedTransfer, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := calculator.NetBalances(snap)
	if err != nil {
		return nil, err
	}
	return calculator.SuggestSettlements(balances), nil
}

// SuggestGroupSettlements proposes transfers that zero out the balances
// arising from one group's unsettled expenses alone.
func (e *Engine) SuggestGroupSettlements(ctx context.Context, groupID string) ([]calculator.SuggestedTransfer, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := snap.Groups[groupID]
	if !ok {
		return nil, errs.ReferenceMissing(models.EntityGroup, groupID)
	}

	scoped := storage.NewSnapshot()
	for _, m := range g.Members {
		if p, ok := snap.Persons[m]; ok {
			scoped.Put(p)
		}
	}
	for _, eid := range g.ExpenseIDs {
		if exp, ok := snap.Expenses[eid]; ok {
			scoped.Put(exp)
		}
	}
	balances, err := calculator.NetBalances(scoped)
	if err != nil {
		return nil, err
	}
	return calculator.SuggestSettlements(balances), nil
}

// CountReferences reports how many records still point at a person, the
// counts a restrict-policy delete would refuse over.
func (e *Engine) CountReferences(ctx context.Context, personID string) (validator.RefCounts, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return validator.RefCounts{}, err
	}
	return validator.New(snap).CountReferences(personID), nil
}

// Orphans scans the whole store for records referencing missing people, the
// debris an ignore-policy delete leaves behind.
func (e *Engine) Orphans(ctx context.Context) ([]validator.OrphanedRecord, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return validator.New(snap).DetectOrphans(), nil
}

// GraphReport builds the debt graph over the committed state and summarizes
// its integrity findings.
func (e *Engine) GraphReport(ctx context.Context) (*graph.IntegrityReport, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(snap, e.graphCfg)
	if err != nil {
		return nil, err
	}
	return g.Report()
}

// WouldCreateCycle reports whether adding a debt edge from one person to
// another would close a cycle in the current graph.
func (e *Engine) WouldCreateCycle(ctx context.Context, fromID, toID string) (bool, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return false, err
	}
	g, err := graph.Build(snap, e.graphCfg)
	if err != nil {
		return false, err
	}
	return g.WouldCreateCycle(fromID, toID), nil
}

// FindDebtPath returns the chain of people along which debt flows from one
// person to another, or nil when no chain exists.
func (e *Engine) FindDebtPath(ctx context.Context, fromID, toID string) ([]string, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(snap, e.graphCfg)
	if err != nil {
		return nil, err
	}
	return g.FindPath(fromID, toID), nil
}
