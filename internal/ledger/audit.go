package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ChainError describes the first entry whose balance snapshot does not match
// its predecessor's balance plus its own amount.
type ChainError struct {
	Index   int
	EntryID string
	Want    decimal.Decimal
	Got     decimal.Decimal
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger: entry %d (%s) balance %s, want %s", e.Index, e.EntryID, e.Got, e.Want)
}

func (e *ChainError) Unwrap() error { return ErrBrokenChain }

type link struct {
	id      string
	amount  decimal.Decimal
	balance decimal.Decimal
}

// VerifyCustomerChain checks the running-balance invariant over a complete
// chain in chronological order (oldest first): the first entry's balance
// must equal its amount.
func VerifyCustomerChain(entries []*CustomerEntry) error {
	return verify(customerLinks(entries), true)
}

// VerifyCustomerWindow checks a contiguous slice of a chain whose first
// entry's predecessor is not included.
func VerifyCustomerWindow(entries []*CustomerEntry) error {
	return verify(customerLinks(entries), false)
}

// VerifyStoreChain is VerifyCustomerChain for store entries.
func VerifyStoreChain(entries []*StoreEntry) error {
	return verify(storeLinks(entries), true)
}

// VerifyStoreWindow is VerifyCustomerWindow for store entries.
func VerifyStoreWindow(entries []*StoreEntry) error {
	return verify(storeLinks(entries), false)
}

func verify(chain []link, fromStart bool) error {
	for i, l := range chain {
		var want decimal.Decimal
		switch {
		case i > 0:
			want = chain[i-1].balance.Add(l.amount)
		case fromStart:
			want = l.amount
		default:
			continue
		}
		if !l.balance.Equal(want) {
			return &ChainError{Index: i, EntryID: l.id, Want: want, Got: l.balance}
		}
	}
	return nil
}

func customerLinks(entries []*CustomerEntry) []link {
	out := make([]link, len(entries))
	for i, e := range entries {
		out[i] = link{id: e.ID, amount: e.Amount, balance: e.Balance}
	}
	return out
}

func storeLinks(entries []*StoreEntry) []link {
	out := make([]link, len(entries))
	for i, e := range entries {
		out[i] = link{id: e.ID, amount: e.Amount, balance: e.Balance}
	}
	return out
}

// Chronological returns a copy of newest-first entries in oldest-first order.
func Chronological[T any](newestFirst []T) []T {
	out := make([]T, len(newestFirst))
	for i, e := range newestFirst {
		out[len(newestFirst)-1-i] = e
	}
	return out
}
