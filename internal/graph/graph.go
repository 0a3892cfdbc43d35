// Package graph builds and analyzes the directed "who owes whom" graph.
//
// An edge u -> v with weight w means u currently owes v the amount w,
// derived from unsettled group expenses (each non-payer participant owes the
// payer their share), unpaid split-bill participants (owe the payer) and
// unreconciled transfer transactions.
//
// Cycles are not inherently invalid — three friends can mutually owe each
// other — but they must be detectable so callers can warn and offer netting,
// and so a fabricated edge to a missing person is caught before it corrupts
// balances silently.
package graph

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/calculator"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// DefaultMaxDepth bounds graph traversal depth.
const DefaultMaxDepth = 500

// Config holds analyzer knobs.
type Config struct {
	// MaxDepth bounds traversal recursion; DefaultMaxDepth when zero.
	MaxDepth int
}

func (c Config) maxDepth() int {
	if c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

type edgeKey struct{ from, to string }

// DebtGraph is the directed debt graph over one snapshot.
type DebtGraph struct {
	cfg  Config
	snap *storage.Snapshot

	nodes   []string            // every person id, sorted
	adj     map[string][]string // neighbor lists, sorted
	weights map[edgeKey]decimal.Decimal

	selfLoops   int // edges from a person to themselves, dropped
	orphanEdges int // edges with a missing endpoint, dropped
}

// Build constructs the debt graph from the snapshot.
func Build(snap *storage.Snapshot, cfg Config) (*DebtGraph, error) {
	g := &DebtGraph{
		cfg:     cfg,
		snap:    snap,
		adj:     make(map[string][]string),
		weights: make(map[edgeKey]decimal.Decimal),
	}
	for id := range snap.Persons {
		g.nodes = append(g.nodes, id)
	}
	sort.Strings(g.nodes)

	for _, e := range snap.Expenses {
		if e.IsSettled {
			continue
		}
		shares, err := calculator.ExpenseShares(e)
		if err != nil {
			return nil, err
		}
		for debtor, share := range shares {
			if debtor == e.PaidBy {
				continue
			}
			g.addEdge(debtor, e.PaidBy, share)
		}
	}
	for _, b := range snap.SplitBills {
		for _, p := range b.Participants {
			if p.HasPaid || p.PersonID == b.PaidByID {
				continue
			}
			g.addEdge(p.PersonID, b.PaidByID, p.Amount)
		}
	}
	for _, t := range snap.Transactions {
		if t.Kind != models.KindTransfer || t.Reconciled {
			continue
		}
		g.addEdge(t.FromPersonID, t.ToPersonID, t.Amount)
	}

	for from := range g.adj {
		sort.Strings(g.adj[from])
	}
	return g, nil
}

func (g *DebtGraph) addEdge(from, to string, amount decimal.Decimal) {
	if from == to {
		g.selfLoops++
		return
	}
	if !g.snap.Has(models.EntityPerson, from) || !g.snap.Has(models.EntityPerson, to) {
		g.orphanEdges++
		return
	}
	key := edgeKey{from, to}
	if _, exists := g.weights[key]; !exists {
		g.adj[from] = append(g.adj[from], to)
	}
	g.weights[key] = g.weights[key].Add(amount)
}

// Weight returns the aggregated debt from one person to another.
func (g *DebtGraph) Weight(from, to string) decimal.Decimal {
	return g.weights[edgeKey{from, to}]
}

// OrphanEdgeCount returns the number of edges dropped because an endpoint
// person no longer exists.
func (g *DebtGraph) OrphanEdgeCount() int { return g.orphanEdges }

// SelfLoopCount returns the number of dropped person-to-self edges.
func (g *DebtGraph) SelfLoopCount() int { return g.selfLoops }

// DetectSelfReference reports whether the record names the same person as
// both payer and participant. Not necessarily an error — the payer splitting
// an expense with themselves is the normal "everyone including me" case —
// but it is surfaced so callers can decide.
func DetectSelfReference(rec models.Record) bool {
	switch r := rec.(type) {
	case *models.GroupExpense:
		return r.Splits(r.PaidBy)
	case *models.SplitBill:
		_, ok := r.Participant(r.PaidByID)
		return ok
	case *models.Transaction:
		return r.Kind == models.KindTransfer && r.FromPersonID != "" && r.FromPersonID == r.ToPersonID
	default:
		return false
	}
}
