package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Tx is the handle passed to a Batch function. Its changes are visible
// through State immediately and reach the store only if the batch succeeds.
type Tx struct {
	w *writer
}

// State returns a copy of the batch's working state.
func (tx *Tx) State() domain.State {
	return tx.w.st.Clone()
}

// AddAdjustment appends a reconcile adjustment carrying a signed delta.
func (tx *Tx) AddAdjustment(accountID string, delta decimal.Decimal, date civil.Date, note string) (domain.Transaction, error) {
	return tx.w.addAdjustment(accountID, delta, date, note)
}

func (tx *Tx) AddTransaction(in TransactionInput) (domain.Transaction, error) {
	return tx.w.addTransaction(in)
}

func (tx *Tx) AddSnapshot(in SnapshotInput) (domain.Snapshot, error) {
	return tx.w.addSnapshot(in)
}
