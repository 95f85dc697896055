package domain

import (
	"slices"
	"time"

	"cloud.google.com/go/civil"
)

// TxnType is the kind of ledger event a transaction records.
type TxnType string

const (
	TxnIncome     TxnType = "income"
	TxnExpense    TxnType = "expense"
	TxnTransfer   TxnType = "transfer"
	TxnInvest     TxnType = "invest"
	TxnDebt       TxnType = "debt"
	TxnAdjustment TxnType = "adjustment" // system-generated reconcile delta
)

// Valid reports whether t is one of the known transaction types.
func (t TxnType) Valid() bool {
	switch t {
	case TxnIncome, TxnExpense, TxnTransfer, TxnInvest, TxnDebt, TxnAdjustment:
		return true
	}
	return false
}

// IsTransferLike reports whether t moves value between two accounts.
func (t TxnType) IsTransferLike() bool {
	return t == TxnTransfer || t == TxnInvest || t == TxnDebt
}

// CategoryKind returns the category kind a transaction of type t may reference.
// Only income and expense transactions carry categories.
func (t TxnType) CategoryKind() (CategoryKind, bool) {
	switch t {
	case TxnIncome:
		return CategoryIncome, true
	case TxnExpense:
		return CategoryExpense, true
	}
	return "", false
}

// Transaction is the atomic ledger event.
//
// AccountID is the sole account for income, expense and adjustment, and the
// FROM side for transfer-like types. TransferAccountID is the TO side and is
// only set for transfer-like types.
type Transaction struct {
	ID                string     `json:"id"`
	Type              TxnType    `json:"type"`
	AccountID         string     `json:"accountId"`
	TransferAccountID string     `json:"transferAccountId,omitempty"`
	Amount            Amount     `json:"amount"`
	CategoryID        string     `json:"categoryId,omitempty"`
	Note              string     `json:"note,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	Date              civil.Date `json:"date"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`

	// IsReconcile marks adjustments created by reconciliation. They are
	// corrections, not cashflow, and never count towards income or expenses.
	IsReconcile bool `json:"isReconcile,omitempty"`
}

// Touches reports whether the transaction affects accountID on either side.
func (t Transaction) Touches(accountID string) bool {
	return t.AccountID == accountID || (t.TransferAccountID != "" && t.TransferAccountID == accountID)
}

// IsCashflow reports whether the transaction is real income or expense.
func (t Transaction) IsCashflow() bool {
	return !t.IsReconcile && (t.Type == TxnIncome || t.Type == TxnExpense)
}

// Clone copies t so that the result shares no tags or timestamps with it.
func (t Transaction) Clone() Transaction {
	t.Tags = slices.Clone(t.Tags)
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		t.UpdatedAt = &u
	}
	return t
}
