package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyward/ledgercore/internal/calculator"
	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// ledgerSnapshot builds a populated state: alice paid a 90 expense split
// three ways, cached balances in sync, plus a settlement audit row naming
// carol.
func ledgerSnapshot() *storage.Snapshot {
	snap := storage.NewSnapshot()
	snap.Put(&models.Person{ID: "alice", Name: "Alice", Balance: dec("60")})
	snap.Put(&models.Person{ID: "bob", Name: "Bob", Balance: dec("-30")})
	snap.Put(&models.Person{ID: "carol", Name: "Carol", Balance: dec("-30")})
	snap.Put(&models.Group{
		ID:          "g1",
		Name:        "Flat",
		Members:     []string{"alice", "bob", "carol"},
		ExpenseIDs:  []string{"e1"},
		TotalAmount: dec("90.00"),
	})
	snap.Put(&models.GroupExpense{
		ID:           "e1",
		GroupID:      "g1",
		Amount:       dec("90.00"),
		PaidBy:       "alice",
		SplitBetween: []string{"alice", "bob", "carol"},
	})
	snap.Put(&models.Transaction{
		ID:              "t1",
		Amount:          dec("5.00"),
		RelatedPersonID: "carol",
		Kind:            models.KindSettlement,
	})
	return snap
}

// requireConsistent asserts cached balances match the derived ones.
func requireConsistent(t *testing.T, snap *storage.Snapshot) {
	t.Helper()
	derived, err := calculator.NetBalances(snap)
	require.NoError(t, err)
	for id, p := range snap.Persons {
		assert.True(t, p.Balance.Equal(derived[id]),
			"%s cached %s != derived %s", id, p.Balance, derived[id])
	}
}

func TestParseDeletePolicy(t *testing.T) {
	assert.Equal(t, Cascade, ParseDeletePolicy("cascade"))
	assert.Equal(t, SetNull, ParseDeletePolicy("set_null"))
	assert.Equal(t, Ignore, ParseDeletePolicy("ignore"))
	assert.Equal(t, Restrict, ParseDeletePolicy(""))
	assert.Equal(t, Restrict, ParseDeletePolicy("bogus"))
}

func TestRestrictBlocksReferencedPerson(t *testing.T) {
	v := New(ledgerSnapshot())

	_, err := v.PlanDeletePerson("bob", Restrict)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindReferenced), "got %v", err)
	assert.Contains(t, err.Error(), "1 group")
	assert.Contains(t, err.Error(), "1 expense")

	_, err = v.PlanDeletePerson("bob", SetNull)
	assert.True(t, errs.IsKind(err, errs.KindReferenced))
}

func TestRestrictDeletesUnreferencedPerson(t *testing.T) {
	snap := ledgerSnapshot()
	snap.Put(&models.Person{ID: "dave", Name: "Dave"})
	v := New(snap)

	plan, err := v.PlanDeletePerson("dave", Restrict)
	require.NoError(t, err)

	after := snap.Project(plan.Mutations)
	assert.NotContains(t, after.Persons, "dave")
	requireConsistent(t, after)
}

func TestSetNullClearsAuditLinks(t *testing.T) {
	snap := storage.NewSnapshot()
	snap.Put(&models.Person{ID: "carol", Name: "Carol"})
	snap.Put(&models.Transaction{
		ID:              "t1",
		Amount:          dec("5.00"),
		RelatedPersonID: "carol",
		Kind:            models.KindSettlement,
	})

	plan, err := New(snap).PlanDeletePerson("carol", SetNull)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Report.TransactionsCleared)

	after := snap.Project(plan.Mutations)
	assert.NotContains(t, after.Persons, "carol")
	assert.Empty(t, after.Transactions["t1"].RelatedPersonID, "audit row survives with the link cleared")
}

func TestCascadeRemovesFromSharedExpense(t *testing.T) {
	snap := ledgerSnapshot()
	plan, err := New(snap).PlanDeletePerson("bob", Cascade)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Report.ExpensesUpdated)
	assert.Equal(t, 0, plan.Report.ExpensesDeleted)
	assert.Equal(t, 1, plan.Report.GroupsUpdated)

	after := snap.Project(plan.Mutations)
	assert.NotContains(t, after.Persons, "bob")

	e := after.Expenses["e1"]
	assert.Equal(t, []string{"alice", "carol"}, e.SplitBetween)

	// The 90 now splits two ways: alice is owed 45, carol owes 45.
	assert.True(t, after.Persons["alice"].Balance.Equal(dec("45")),
		"alice = %s", after.Persons["alice"].Balance)
	assert.True(t, after.Persons["carol"].Balance.Equal(dec("-45")),
		"carol = %s", after.Persons["carol"].Balance)
	requireConsistent(t, after)

	assert.False(t, after.Groups["g1"].HasMember("bob"))
	assert.Empty(t, New(after).DetectOrphans())
}

func TestCascadeDeletesPayersExpenses(t *testing.T) {
	snap := ledgerSnapshot()
	plan, err := New(snap).PlanDeletePerson("alice", Cascade)
	require.NoError(t, err)

	assert.Equal(t, 1, plan.Report.ExpensesDeleted)

	after := snap.Project(plan.Mutations)
	assert.NotContains(t, after.Persons, "alice")
	assert.NotContains(t, after.Expenses, "e1", "payer's expense cannot stand without them")

	g := after.Groups["g1"]
	assert.Empty(t, g.ExpenseIDs)
	assert.True(t, g.TotalAmount.IsZero(), "group total = %s", g.TotalAmount)

	for _, id := range []string{"bob", "carol"} {
		assert.True(t, after.Persons[id].Balance.IsZero(),
			"%s = %s, want 0", id, after.Persons[id].Balance)
	}
	requireConsistent(t, after)
	assert.Empty(t, New(after).DetectOrphans())
}

func TestCascadeSplitBillsSubscriptionsTransfers(t *testing.T) {
	snap := storage.NewSnapshot()
	snap.Put(&models.Person{ID: "alice", Name: "Alice", Balance: dec("40")})
	snap.Put(&models.Person{ID: "bob", Name: "Bob", Balance: dec("-45")})
	snap.Put(&models.Person{ID: "carol", Name: "Carol", Balance: dec("5")})
	snap.Put(&models.SplitBill{
		ID:          "b1",
		TotalAmount: dec("60.00"),
		PaidByID:    "alice",
		Participants: []models.SplitParticipant{
			{PersonID: "alice", Amount: dec("20.00")},
			{PersonID: "bob", Amount: dec("20.00")},
			{PersonID: "carol", Amount: dec("20.00")},
		},
	})
	snap.Put(&models.Subscription{ID: "s1", Amount: dec("12.00"), SharedWith: []string{"bob", "carol"}})
	snap.Put(&models.Subscription{ID: "s2", Amount: dec("8.00"), SharedWith: []string{"bob"}})
	snap.Put(&models.Transaction{
		ID: "t1", Amount: dec("25.00"), Kind: models.KindTransfer,
		FromPersonID: "bob", ToPersonID: "carol",
	})
	requireConsistent(t, snap)

	plan, err := New(snap).PlanDeletePerson("bob", Cascade)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Report.SplitBillsUpdated)
	assert.Equal(t, 1, plan.Report.SubscriptionsUpdated)
	assert.Equal(t, 1, plan.Report.SubscriptionsDeleted)
	assert.Equal(t, 1, plan.Report.TransactionsDeleted)

	after := snap.Project(plan.Mutations)
	assert.NotContains(t, after.Persons, "bob")
	assert.NotContains(t, after.Subscriptions, "s2", "sole-subscriber plan goes with them")
	assert.NotContains(t, after.Transactions, "t1", "transfer rows name a required party")

	b := after.SplitBills["b1"]
	assert.True(t, b.TotalAmount.Equal(dec("40")), "bill total = %s", b.TotalAmount)
	_, stillThere := b.Participant("bob")
	assert.False(t, stillThere)

	requireConsistent(t, after)
	assert.Empty(t, New(after).DetectOrphans())
}

func TestCascadeIsNotReentrant(t *testing.T) {
	snap := ledgerSnapshot()
	plan, err := New(snap).PlanDeletePerson("bob", Cascade)
	require.NoError(t, err)
	after := snap.Project(plan.Mutations)

	// Running the same cascade again is an error, not a crash.
	_, err = New(after).PlanDeletePerson("bob", Cascade)
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing), "got %v", err)
}

func TestIgnoreLeavesDanglingReferences(t *testing.T) {
	snap := ledgerSnapshot()
	plan, err := New(snap).PlanDeletePerson("bob", Ignore)
	require.NoError(t, err)
	require.Len(t, plan.Mutations, 1, "person delete only")

	after := snap.Project(plan.Mutations)
	assert.NotContains(t, after.Persons, "bob")
	assert.Contains(t, after.Expenses["e1"].SplitBetween, "bob", "reference left dangling")

	orphans := New(after).DetectOrphans()
	require.NotEmpty(t, orphans)
	assert.Equal(t, "bob", orphans[0].MissingID)
}

func TestPlanDeleteGroup(t *testing.T) {
	snap := ledgerSnapshot()
	plan, err := New(snap).PlanDeleteGroup("g1")
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Report.ExpensesDeleted)
	assert.Equal(t, 1, plan.Report.GroupsDeleted)

	after := snap.Project(plan.Mutations)
	assert.NotContains(t, after.Groups, "g1")
	assert.NotContains(t, after.Expenses, "e1")
	for _, id := range []string{"alice", "bob", "carol"} {
		assert.True(t, after.Persons[id].Balance.IsZero(),
			"%s = %s, want 0", id, after.Persons[id].Balance)
	}
	requireConsistent(t, after)

	_, err = New(after).PlanDeleteGroup("g1")
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing))
}

func TestDeleteMissingPerson(t *testing.T) {
	v := New(storage.NewSnapshot())
	for _, policy := range []DeletePolicy{Restrict, Cascade, SetNull, Ignore} {
		_, err := v.PlanDeletePerson("nobody", policy)
		assert.True(t, errs.IsKind(err, errs.KindReferenceMissing), "policy %s: got %v", policy, err)
	}
}
