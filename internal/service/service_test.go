package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage/memory"
	"github.com/tallyward/ledgercore/internal/validator"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(memory.New(), Config{})
}

// trio creates three people and a group containing them.
func trio(t *testing.T, e *Engine) (alice, bob, carol *models.Person, group *models.Group) {
	t.Helper()
	ctx := context.Background()
	var err error
	alice, err = e.CreatePerson(ctx, "Alice")
	require.NoError(t, err)
	bob, err = e.CreatePerson(ctx, "Bob")
	require.NoError(t, err)
	carol, err = e.CreatePerson(ctx, "Carol")
	require.NoError(t, err)
	group, err = e.CreateGroup(ctx, "Flat", []string{alice.ID, bob.ID, carol.ID})
	require.NoError(t, err)
	return alice, bob, carol, group
}

func requireBalance(t *testing.T, e *Engine, personID, want string) {
	t.Helper()
	ctx := context.Background()

	derived, err := e.NetBalance(ctx, personID)
	require.NoError(t, err)
	assert.True(t, derived.Equal(dec(want)), "derived balance = %s, want %s", derived, want)

	p, err := e.GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(derived), "cached %s != derived %s", p.Balance, derived)
}

func TestExpenseLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, carol, group := trio(t, e)

	exp, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("90.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{alice.ID, bob.ID, carol.ID},
	})
	require.NoError(t, err)

	requireBalance(t, e, alice.ID, "60")
	requireBalance(t, e, bob.ID, "-30")
	requireBalance(t, e, carol.ID, "-30")

	g, err := e.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{exp.ID}, g.ExpenseIDs)
	assert.True(t, g.TotalAmount.Equal(dec("90")), "group total = %s", g.TotalAmount)

	require.NoError(t, e.SettleExpense(ctx, exp.ID))
	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		requireBalance(t, e, id, "0")
	}

	// Settling twice is rejected and changes nothing.
	err = e.SettleExpense(ctx, exp.ID)
	assert.True(t, errs.IsKind(err, errs.KindInvalidArgument), "got %v", err)
}

func TestCreateExpenseAddsParticipantsToGroup(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, err := e.CreatePerson(ctx, "Alice")
	require.NoError(t, err)
	bob, err := e.CreatePerson(ctx, "Bob")
	require.NoError(t, err)
	group, err := e.CreateGroup(ctx, "Duo", []string{alice.ID})
	require.NoError(t, err)

	_, err = e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("10.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{bob.ID},
	})
	require.NoError(t, err)

	g, err := e.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, g.HasMember(bob.ID), "participants join the group automatically")
}

func TestCreateExpenseRejectsFabricatedReferences(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, _, _, group := trio(t, e)

	_, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("50.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{alice.ID, "ghost"},
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing), "got %v", err)

	// The failed commit left nothing behind.
	g, err := e.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, g.ExpenseIDs)
	assert.True(t, g.TotalAmount.IsZero())
	requireBalance(t, e, alice.ID, "0")

	_, err = e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      "no-such-group",
		Amount:       dec("50.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{alice.ID},
	})
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing))
}

func TestCreateGroupRejectsUnknownMembers(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	_, err := e.CreateGroup(ctx, "Ghosts", []string{"nobody"})
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing), "got %v", err)
}

func TestSplitBillFlow(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, carol, _ := trio(t, e)

	bill, err := e.CreateSplitBill(ctx, CreateSplitBillInput{
		Title:       "Dinner",
		TotalAmount: dec("100.00"),
		PaidByID:    alice.ID,
		Participants: []SplitShareInput{
			{PersonID: alice.ID, Amount: dec("50.00")},
			{PersonID: bob.ID, Amount: dec("30.00")},
			{PersonID: carol.ID, Amount: dec("20.00")},
		},
	})
	require.NoError(t, err)

	requireBalance(t, e, alice.ID, "50")
	requireBalance(t, e, bob.ID, "-30")
	requireBalance(t, e, carol.ID, "-20")

	progress, err := e.SettlementProgress(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, progress.IsZero())

	require.NoError(t, e.MarkParticipantPaid(ctx, bill.ID, bob.ID))
	requireBalance(t, e, bob.ID, "0")
	requireBalance(t, e, alice.ID, "20")

	progress, err = e.SettlementProgress(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, progress.Equal(dec("0.3")), "progress = %s", progress)

	// Shares that do not sum to the total are rejected up front.
	_, err = e.CreateSplitBill(ctx, CreateSplitBillInput{
		Title:       "Broken",
		TotalAmount: dec("100.00"),
		PaidByID:    alice.ID,
		Participants: []SplitShareInput{
			{PersonID: bob.ID, Amount: dec("10.00")},
		},
	})
	assert.True(t, errs.IsKind(err, errs.KindRoundingInvariant), "got %v", err)
}

func TestTransferFlow(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, _, _ := trio(t, e)

	tr, err := e.RecordTransfer(ctx, bob.ID, alice.ID, dec("25.00"), "rent share")
	require.NoError(t, err)
	requireBalance(t, e, bob.ID, "-25")
	requireBalance(t, e, alice.ID, "25")

	require.NoError(t, e.ReconcileTransfer(ctx, tr.ID))
	requireBalance(t, e, bob.ID, "0")
	requireBalance(t, e, alice.ID, "0")

	err = e.ReconcileTransfer(ctx, tr.ID)
	assert.True(t, errs.IsKind(err, errs.KindInvalidArgument), "double reconcile: %v", err)

	_, err = e.RecordTransfer(ctx, alice.ID, alice.ID, dec("5.00"), "")
	assert.True(t, errs.IsKind(err, errs.KindSelfReference))
}

func TestCycleDetectionAcrossTransfers(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, carol, _ := trio(t, e)

	_, err := e.RecordTransfer(ctx, alice.ID, bob.ID, dec("10.00"), "")
	require.NoError(t, err)
	_, err = e.RecordTransfer(ctx, bob.ID, carol.ID, dec("10.00"), "")
	require.NoError(t, err)

	closes, err := e.WouldCreateCycle(ctx, carol.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, closes)

	path, err := e.FindDebtPath(ctx, alice.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID, bob.ID, carol.ID}, path)

	// Cycles are legal: the closing transfer commits and shows up in the
	// integrity report.
	_, err = e.RecordTransfer(ctx, carol.ID, alice.ID, dec("10.00"), "")
	require.NoError(t, err)

	report, err := e.GraphReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, report.Cycle)
	assert.Contains(t, report.CycleDescription, "$30.00")
	require.Len(t, report.CircularGroups, 1)
	assert.Len(t, report.CircularGroups[0], 3)

	// Everyone paid 10 and received 10.
	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		requireBalance(t, e, id, "0")
	}
}

func TestRestrictDeleteBlocked(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, _, group := trio(t, e)

	_, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("30.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{bob.ID},
	})
	require.NoError(t, err)

	_, err = e.DeletePerson(ctx, bob.ID, validator.Restrict)
	assert.True(t, errs.IsKind(err, errs.KindReferenced), "got %v", err)

	// Still fully present and consistent.
	requireBalance(t, e, bob.ID, "-30")
}

func TestCascadeDeleteIsConsistentAndFinal(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, carol, group := trio(t, e)

	_, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("90.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{alice.ID, bob.ID, carol.ID},
	})
	require.NoError(t, err)

	report, err := e.DeletePerson(ctx, bob.ID, validator.Cascade)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExpensesUpdated)
	assert.Equal(t, 1, report.GroupsUpdated)

	requireBalance(t, e, alice.ID, "45")
	requireBalance(t, e, carol.ID, "-45")

	orphans, err := e.Orphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans, "cascade must leave no dangling references")

	// Deleting the same person again reports the missing reference.
	_, err = e.DeletePerson(ctx, bob.ID, validator.Cascade)
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing), "got %v", err)
}

func TestIgnoreDeleteLeavesOrphansForRepairTooling(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, _, _ := trio(t, e)

	_, err := e.CreateSubscription(ctx, "Streaming", dec("12.99"), []string{alice.ID, bob.ID})
	require.NoError(t, err)

	_, err = e.DeletePerson(ctx, bob.ID, validator.Ignore)
	require.NoError(t, err)

	orphans, err := e.Orphans(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, orphans)
	assert.Equal(t, bob.ID, orphans[0].MissingID)

	_, err = e.GetPerson(ctx, bob.ID)
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing))
}

func TestDeleteGroupReversesUnsettledExpenses(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, carol, group := trio(t, e)

	_, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("90.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{alice.ID, bob.ID, carol.ID},
	})
	require.NoError(t, err)

	report, err := e.DeleteGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExpensesDeleted)

	for _, id := range []string{alice.ID, bob.ID, carol.ID} {
		requireBalance(t, e, id, "0")
	}
	_, err = e.GetGroup(ctx, group.ID)
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing))
}

func TestSuggestSettlementsZeroesBalances(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, carol, group := trio(t, e)

	_, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("90.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{alice.ID, bob.ID, carol.ID},
	})
	require.NoError(t, err)

	transfers, err := e.SuggestSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	balances, err := e.NetBalances(ctx)
	require.NoError(t, err)
	for _, tr := range transfers {
		balances[tr.From] = balances[tr.From].Add(tr.Amount)
		balances[tr.To] = balances[tr.To].Sub(tr.Amount)
	}
	for id, b := range balances {
		assert.True(t, b.IsZero(), "%s = %s after applying suggestions", id, b)
	}
}

func TestSuggestGroupSettlementsScopesToGroup(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, carol, group := trio(t, e)

	_, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("60.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{alice.ID, bob.ID},
	})
	require.NoError(t, err)

	// An unrelated transfer must not leak into the group's suggestions.
	_, err = e.RecordTransfer(ctx, carol.ID, alice.ID, dec("99.00"), "")
	require.NoError(t, err)

	transfers, err := e.SuggestGroupSettlements(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, bob.ID, transfers[0].From)
	assert.Equal(t, alice.ID, transfers[0].To)
	assert.True(t, transfers[0].Amount.Equal(dec("30")))

	_, err = e.SuggestGroupSettlements(ctx, "no-such-group")
	assert.True(t, errs.IsKind(err, errs.KindReferenceMissing))
}

func TestCountReferencesQuery(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	alice, bob, _, group := trio(t, e)

	_, err := e.CreateExpense(ctx, CreateExpenseInput{
		GroupID:      group.ID,
		Amount:       dec("10.00"),
		PaidBy:       alice.ID,
		SplitBetween: []string{bob.ID},
	})
	require.NoError(t, err)

	counts, err := e.CountReferences(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Groups)
	assert.Equal(t, 1, counts.Expenses)
	assert.Equal(t, 2, counts.Total())
}

func TestInvalidCommands(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.CreatePerson(ctx, "")
	assert.True(t, errs.IsKind(err, errs.KindInvalidArgument))
	_, err = e.CreateGroup(ctx, "", nil)
	assert.True(t, errs.IsKind(err, errs.KindInvalidArgument))
	_, err = e.CreateExpense(ctx, CreateExpenseInput{Amount: dec("-1")})
	assert.True(t, errs.IsKind(err, errs.KindInvalidArgument))
	_, err = e.CreateSubscription(ctx, "x", dec("0"), nil)
	assert.True(t, errs.IsKind(err, errs.KindInvalidArgument))
	_, err = e.RecordTransfer(ctx, "a", "b", dec("0"), "")
	assert.True(t, errs.IsKind(err, errs.KindInvalidArgument))
}

func TestStatsCountCommitsAndRollbacks(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	_, err := e.CreatePerson(ctx, "Alice")
	require.NoError(t, err)
	_, err = e.CreateGroup(ctx, "Ghosts", []string{"nobody"})
	require.Error(t, err)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Commits)
	assert.Equal(t, uint64(1), stats.Rollbacks)
}
