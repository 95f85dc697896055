package ledger

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

func validateAccount(a domain.Account, currency string) error {
	if a.Name == "" {
		return invalid("name", "required")
	}
	if !a.Type.Valid() {
		return invalid("type", "unknown account type %q", a.Type)
	}
	if a.Currency != currency {
		return invalid("currency", "ledger is single-currency %s, got %s", currency, a.Currency)
	}
	return nil
}

func validateCategory(c domain.Category) error {
	if c.Name == "" {
		return invalid("name", "required")
	}
	if !c.Kind.Valid() {
		return invalid("kind", "unknown category kind %q", c.Kind)
	}
	return nil
}

// validateTransaction checks t against the transaction invariants and the
// accounts and categories present in st.
func validateTransaction(st *domain.State, t domain.Transaction) error {
	if !t.Type.Valid() {
		return invalid("type", "unknown transaction type %q", t.Type)
	}
	if !t.Date.IsValid() {
		return invalid("date", "%q is not a calendar date", t.Date)
	}

	if t.Type == domain.TxnAdjustment {
		if !t.Amount.IsDelta() {
			return invalid("amount", "adjustments carry a signed delta")
		}
		if t.Amount.Value.IsZero() {
			return invalid("amount", "adjustment delta must be non-zero")
		}
	} else {
		if t.Amount.IsDelta() {
			return invalid("amount", "%s transactions carry a magnitude", t.Type)
		}
		if !t.Amount.Value.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}
		if t.IsReconcile {
			return invalid("isReconcile", "only adjustments are reconcile entries")
		}
	}

	if t.AccountID == "" {
		return invalid("accountId", "required")
	}
	if _, ok := st.Account(t.AccountID); !ok {
		return invalid("accountId", "account %q does not exist", t.AccountID)
	}

	if t.Type.IsTransferLike() {
		if t.TransferAccountID == "" {
			return invalid("transferAccountId", "required for %s", t.Type)
		}
		if t.TransferAccountID == t.AccountID {
			return invalid("transferAccountId", "must differ from accountId")
		}
		if _, ok := st.Account(t.TransferAccountID); !ok {
			return invalid("transferAccountId", "account %q does not exist", t.TransferAccountID)
		}
	} else if t.TransferAccountID != "" {
		return invalid("transferAccountId", "not allowed for %s", t.Type)
	}

	if t.CategoryID != "" {
		kind, ok := t.Type.CategoryKind()
		if !ok {
			return invalid("categoryId", "not allowed for %s", t.Type)
		}
		c, found := st.Category(t.CategoryID)
		if !found {
			return invalid("categoryId", "category %q does not exist", t.CategoryID)
		}
		if c.Kind != kind {
			return invalid("categoryId", "category %q is %s, want %s", c.ID, c.Kind, kind)
		}
	}
	return nil
}

// normalizeState validates a loaded state and brings it to the store's
// canonical form: non-nil collections, date-sorted snapshots with
// revisions, and adjustments carrying deltas. It returns the highest
// snapshot revision.
func normalizeState(st domain.State, currency string) (domain.State, uint64, error) {
	if st.Accounts == nil {
		st.Accounts = []domain.Account{}
	}
	if st.Categories == nil {
		st.Categories = []domain.Category{}
	}
	if st.Transactions == nil {
		st.Transactions = []domain.Transaction{}
	}
	if st.Snapshots == nil {
		st.Snapshots = []domain.Snapshot{}
	}

	seen := make(map[string]bool)
	unique := func(kind, id string) error {
		if id == "" {
			return invalid(kind+".id", "required")
		}
		key := kind + "/" + id
		if seen[key] {
			return invalid(kind+".id", "duplicate id %q", id)
		}
		seen[key] = true
		return nil
	}

	for i := range st.Accounts {
		a := &st.Accounts[i]
		if err := unique("account", a.ID); err != nil {
			return domain.State{}, 0, err
		}
		a.Currency = strings.ToUpper(a.Currency)
		if a.Currency == "" {
			a.Currency = currency
		}
		if err := validateAccount(*a, currency); err != nil {
			return domain.State{}, 0, withSubject("account", a.ID, err)
		}
	}
	for _, c := range st.Categories {
		if err := unique("category", c.ID); err != nil {
			return domain.State{}, 0, err
		}
		if err := validateCategory(c); err != nil {
			return domain.State{}, 0, withSubject("category", c.ID, err)
		}
	}
	for i := range st.Transactions {
		t := &st.Transactions[i]
		if err := unique("transaction", t.ID); err != nil {
			return domain.State{}, 0, err
		}
		// Older payloads stored adjustments as a bare signed number.
		if t.Type == domain.TxnAdjustment && !t.Amount.IsDelta() {
			t.Amount = domain.Delta(t.Amount.Value)
		}
		if err := validateTransaction(&st, *t); err != nil {
			return domain.State{}, 0, withSubject("transaction", t.ID, err)
		}
	}

	var maxRevision uint64
	for _, snap := range st.Snapshots {
		maxRevision = max(maxRevision, snap.Revision)
	}
	for i := range st.Snapshots {
		snap := &st.Snapshots[i]
		if err := unique("snapshot", snap.ID); err != nil {
			return domain.State{}, 0, err
		}
		if !snap.Date.IsValid() {
			return domain.State{}, 0, withSubject("snapshot", snap.ID, invalid("date", "%q is not a calendar date", snap.Date))
		}
		for id := range snap.AccountBalances {
			if _, ok := st.Account(id); !ok {
				return domain.State{}, 0, withSubject("snapshot", snap.ID, invalid("accountBalances", "account %q does not exist", id))
			}
		}
		if snap.Revision == 0 {
			maxRevision++
			snap.Revision = maxRevision
		}
	}
	sortSnapshots(st.Snapshots)

	return st, maxRevision, nil
}

// withSubject prefixes a validation error's field with the entity it was
// found on so that load failures point at the offending record.
func withSubject(kind, id string, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return &ValidationError{Field: fmt.Sprintf("%s[%s].%s", kind, id, ve.Field), Reason: ve.Reason}
	}
	return err
}
