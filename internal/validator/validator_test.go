package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseSnapshot() *storage.Snapshot {
	snap := storage.NewSnapshot()
	snap.Put(&models.Person{ID: "alice", Name: "Alice"})
	snap.Put(&models.Person{ID: "bob", Name: "Bob"})
	snap.Put(&models.Person{ID: "carol", Name: "Carol"})
	return snap
}

func TestValidateReferencesExpense(t *testing.T) {
	snap := baseSnapshot()
	snap.Put(&models.Group{ID: "g1", Name: "Trip", Members: []string{"alice", "bob"}})
	v := New(snap)

	ok := &models.GroupExpense{
		ID:           "e1",
		GroupID:      "g1",
		Amount:       dec("10.00"),
		PaidBy:       "alice",
		SplitBetween: []string{"alice", "bob"},
	}
	assert.Empty(t, v.ValidateReferences(ok))

	// Every problem is reported, not just the first.
	bad := &models.GroupExpense{
		ID:           "e2",
		GroupID:      "missing-group",
		Amount:       dec("10.00"),
		PaidBy:       "ghost",
		SplitBetween: []string{"alice", "phantom"},
	}
	violations := v.ValidateReferences(bad)
	require.Len(t, violations, 3)
	for _, each := range violations {
		assert.Equal(t, errs.KindReferenceMissing, each.Kind)
	}

	empty := &models.GroupExpense{ID: "e3", Amount: dec("10.00"), PaidBy: "alice"}
	violations = v.ValidateReferences(empty)
	require.Len(t, violations, 1)
	assert.Equal(t, errs.KindInvalidArgument, violations[0].Kind)
}

func TestValidateReferencesGroup(t *testing.T) {
	snap := baseSnapshot()
	snap.Put(&models.GroupExpense{
		ID:           "e1",
		GroupID:      "g1",
		Amount:       dec("40.00"),
		PaidBy:       "alice",
		SplitBetween: []string{"alice", "bob"},
	})

	g := &models.Group{
		ID:          "g1",
		Name:        "Trip",
		Members:     []string{"alice", "bob"},
		ExpenseIDs:  []string{"e1"},
		TotalAmount: dec("40.00"),
	}
	snap.Put(g)
	v := New(snap)
	assert.Empty(t, v.ValidateReferences(g))

	// A stale cached total is an integrity violation.
	stale := g.CloneRecord().(*models.Group)
	stale.TotalAmount = dec("99.00")
	violations := v.ValidateReferences(stale)
	require.Len(t, violations, 1)
	assert.Equal(t, errs.KindRoundingInvariant, violations[0].Kind)

	// Missing members and dangling expense ids are reported together.
	broken := g.CloneRecord().(*models.Group)
	broken.Members = append(broken.Members, "ghost")
	broken.ExpenseIDs = append(broken.ExpenseIDs, "gone")
	violations = v.ValidateReferences(broken)
	assert.Len(t, violations, 2)
}

func TestValidateReferencesSplitBillAndTransaction(t *testing.T) {
	snap := baseSnapshot()
	v := New(snap)

	bill := &models.SplitBill{
		ID:          "b1",
		TotalAmount: dec("50.00"),
		PaidByID:    "ghost",
		Participants: []models.SplitParticipant{
			{PersonID: "alice", Amount: dec("25.00")},
			{PersonID: "phantom", Amount: dec("25.00")},
		},
	}
	violations := v.ValidateReferences(bill)
	assert.Len(t, violations, 2)

	tr := &models.Transaction{
		ID:           "t1",
		Amount:       dec("5.00"),
		Kind:         models.KindTransfer,
		FromPersonID: "alice",
		ToPersonID:   "ghost",
	}
	violations = v.ValidateReferences(tr)
	require.Len(t, violations, 1)
	assert.Equal(t, "ghost", violations[0].ID)
}

func TestCountReferences(t *testing.T) {
	snap := baseSnapshot()
	snap.Put(&models.Group{ID: "g1", Members: []string{"alice", "bob"}})
	snap.Put(&models.Group{ID: "g2", Members: []string{"alice"}})
	snap.Put(&models.GroupExpense{
		ID: "e1", GroupID: "g1", Amount: dec("10"),
		PaidBy: "alice", SplitBetween: []string{"bob"},
	})
	snap.Put(&models.SplitBill{
		ID: "b1", TotalAmount: dec("10"), PaidByID: "bob",
		Participants: []models.SplitParticipant{{PersonID: "alice", Amount: dec("10")}},
	})
	snap.Put(&models.Subscription{ID: "s1", Amount: dec("9.99"), SharedWith: []string{"alice", "carol"}})
	snap.Put(&models.Transaction{ID: "t1", Amount: dec("5"), RelatedPersonID: "alice", Kind: models.KindSettlement})

	v := New(snap)
	counts := v.CountReferences("alice")
	assert.Equal(t, RefCounts{Groups: 2, Expenses: 1, SplitBills: 1, Subscriptions: 1}, counts)
	assert.Equal(t, 5, counts.Total())
	assert.Equal(t, "2 groups, 1 expense, 1 split bill, 1 subscription", counts.String())

	assert.Zero(t, v.CountReferences("nobody").Total())
	assert.Equal(t, "nothing", RefCounts{}.String())
}

func TestDetectOrphans(t *testing.T) {
	snap := baseSnapshot()
	snap.Put(&models.Group{ID: "g1", Members: []string{"alice"}})
	snap.Put(&models.GroupExpense{
		ID: "e1", GroupID: "gone", Amount: dec("10"),
		PaidBy: "ghost", SplitBetween: []string{"alice"},
	})
	snap.Put(&models.SplitBill{
		ID: "b1", TotalAmount: dec("10"), PaidByID: "alice",
		Participants: []models.SplitParticipant{{PersonID: "phantom", Amount: dec("10")}},
	})
	snap.Put(&models.Subscription{ID: "s1", Amount: dec("5"), SharedWith: []string{"alice", "specter"}})

	orphans := New(snap).DetectOrphans()
	require.Len(t, orphans, 4)

	// Deterministic order: expenses, then split bills, then subscriptions.
	assert.Equal(t, models.EntityGroupExpense, orphans[0].Type)
	assert.Equal(t, "gone", orphans[0].MissingID)
	assert.Equal(t, "ghost", orphans[1].MissingID)
	assert.Equal(t, models.EntitySplitBill, orphans[2].Type)
	assert.Equal(t, "phantom", orphans[2].MissingID)
	assert.Equal(t, models.EntitySubscription, orphans[3].Type)
	assert.Equal(t, "specter", orphans[3].MissingID)

	assert.Empty(t, New(baseSnapshot()).DetectOrphans())
}
