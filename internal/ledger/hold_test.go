package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAndSettleHold_Credit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	credit := store.CreditLedger()
	w := NewWriter()

	require.NoError(t, w.AppendCustomer(ctx, credit, &CustomerEntry{StoreID: "st_1", CustomerID: "cus_1", Amount: dec("500"), Type: TypeTopup}))
	hold := &CustomerEntry{StoreID: "st_1", CustomerID: "cus_1", Amount: dec("-120"), Type: TypeHold, ReferenceID: "ord_1"}
	require.NoError(t, w.AppendCustomer(ctx, credit, hold))

	found, err := FindHold(ctx, credit, scopeA, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, hold.ID, found.ID)

	require.NoError(t, SettleHold(ctx, credit, found, "ord_1"))
	assert.Equal(t, TypeSpend, found.Type)

	// Amount and balance are untouched.
	latest, err := credit.Latest(ctx, scopeA)
	require.NoError(t, err)
	assert.Equal(t, TypeSpend, latest.Type)
	assertDec(t, "-120", latest.Amount)
	assertDec(t, "380", latest.Balance)

	// A settled hold is no longer found.
	_, err = FindHold(ctx, credit, scopeA, "ord_1")
	assert.ErrorIs(t, err, ErrHoldNotFound)

	// And cannot be settled twice.
	assert.ErrorIs(t, SettleHold(ctx, credit, found, "ord_1"), ErrNotAHold)
}

func TestSettleHold_FiatBecomesCapture(t *testing.T) {
	ctx := context.Background()
	fiat := NewMemoryStore().FiatLedger()
	w := NewWriter()

	hold := &CustomerEntry{StoreID: "st_1", CustomerID: "cus_1", Amount: dec("-300"), Type: TypeHold, ReferenceID: "ord_9"}
	require.NoError(t, w.AppendCustomer(ctx, fiat, hold))

	found, err := FindHold(ctx, fiat, scopeA, "ord_9")
	require.NoError(t, err)
	require.NoError(t, SettleHold(ctx, fiat, found, "ord_9"))
	assert.Equal(t, TypeCapture, found.Type)
}

func TestFindHold_PicksMostRecentMatchingHold(t *testing.T) {
	ctx := context.Background()
	credit := NewMemoryStore().CreditLedger()
	w := NewWriter()

	older := &CustomerEntry{StoreID: "st_1", CustomerID: "cus_1", Amount: dec("-10"), Type: TypeHold, ReferenceID: "ord_1"}
	other := &CustomerEntry{StoreID: "st_1", CustomerID: "cus_1", Amount: dec("-20"), Type: TypeHold, ReferenceID: "ord_2"}
	newer := &CustomerEntry{StoreID: "st_1", CustomerID: "cus_1", Amount: dec("-30"), Type: TypeHold, ReferenceID: "ord_1"}
	for _, e := range []*CustomerEntry{older, other, newer} {
		require.NoError(t, w.AppendCustomer(ctx, credit, e))
	}

	found, err := FindHold(ctx, credit, scopeA, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	_, err = FindHold(ctx, credit, CustomerScope{StoreID: "st_1", CustomerID: "cus_2"}, "ord_1")
	assert.ErrorIs(t, err, ErrHoldNotFound)

	_, err = FindHold(ctx, credit, CustomerScope{}, "ord_1")
	assert.ErrorIs(t, err, ErrMissingScope)
}

func TestSettleHold_MissingRow(t *testing.T) {
	credit := NewMemoryStore().CreditLedger()
	ghost := &CustomerEntry{ID: "cle_missing", Type: TypeHold}
	err := SettleHold(context.Background(), credit, ghost, "ord_1")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.Equal(t, TypeHold, ghost.Type)
}
