package ledger

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// AccountInput describes a new account. An empty Currency takes the store's.
type AccountInput struct {
	Name     string             `json:"name"`
	Type     domain.AccountType `json:"type"`
	Currency string             `json:"currency,omitempty"`
	Archived bool               `json:"archived,omitempty"`
}

// AccountPatch holds the fields to change; nil fields are left alone.
type AccountPatch struct {
	Name     *string             `json:"name,omitempty"`
	Type     *domain.AccountType `json:"type,omitempty"`
	Archived *bool               `json:"archived,omitempty"`
}

type CategoryInput struct {
	Name  string              `json:"name"`
	Kind  domain.CategoryKind `json:"kind"`
	Emoji string              `json:"emoji,omitempty"`
	Color string              `json:"color,omitempty"`
}

type CategoryPatch struct {
	Name  *string              `json:"name,omitempty"`
	Kind  *domain.CategoryKind `json:"kind,omitempty"`
	Emoji *string              `json:"emoji,omitempty"`
	Color *string              `json:"color,omitempty"`
}

// TransactionInput describes a user-entered transaction. Amount is the
// positive magnitude; its direction comes from Type.
type TransactionInput struct {
	Type              domain.TxnType  `json:"type"`
	AccountID         string          `json:"accountId"`
	TransferAccountID string          `json:"transferAccountId,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	CategoryID        string          `json:"categoryId,omitempty"`
	Note              string          `json:"note,omitempty"`
	Tags              []string        `json:"tags,omitempty"`
	Date              civil.Date      `json:"date"`
}

// TransactionPatch holds the fields to change; nil fields are left alone.
// On an adjustment, Amount is the new signed delta.
type TransactionPatch struct {
	Type              *domain.TxnType  `json:"type,omitempty"`
	AccountID         *string          `json:"accountId,omitempty"`
	TransferAccountID *string          `json:"transferAccountId,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	CategoryID        *string          `json:"categoryId,omitempty"`
	Note              *string          `json:"note,omitempty"`
	Tags              *[]string        `json:"tags,omitempty"`
	Date              *civil.Date      `json:"date,omitempty"`
}

// SnapshotInput describes a checkpoint. When AccountBalances is set, the
// per-account balances are bucketed by account type and added to the
// supplied totals.
type SnapshotInput struct {
	Date            civil.Date                 `json:"date"`
	BankCash        decimal.Decimal            `json:"bankCash"`
	Investments     decimal.Decimal            `json:"investments"`
	CreditUsed      decimal.Decimal            `json:"creditUsed"`
	CreditAvailable decimal.NullDecimal        `json:"creditAvailable"`
	AccountBalances map[string]decimal.Decimal `json:"accountBalances,omitempty"`
}

// SnapshotPatch holds the fields to change. Setting AccountBalances
// re-derives the totals from the patch's totals (zero when absent) plus the
// new balances.
type SnapshotPatch struct {
	Date            *civil.Date                 `json:"date,omitempty"`
	BankCash        *decimal.Decimal            `json:"bankCash,omitempty"`
	Investments     *decimal.Decimal            `json:"investments,omitempty"`
	CreditUsed      *decimal.Decimal            `json:"creditUsed,omitempty"`
	CreditAvailable *decimal.NullDecimal        `json:"creditAvailable,omitempty"`
	AccountBalances *map[string]decimal.Decimal `json:"accountBalances,omitempty"`
}

// TransactionFilter narrows Transactions. Zero fields match everything.
type TransactionFilter struct {
	AccountID string
	Type      domain.TxnType
	Month     civil.Date // any day in the wanted month
	From, To  civil.Date // inclusive bounds
}

func (f TransactionFilter) match(t domain.Transaction) bool {
	if f.AccountID != "" && !t.Touches(f.AccountID) {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if !f.Month.IsZero() && !domain.SameMonth(f.Month, t.Date) {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	return true
}
