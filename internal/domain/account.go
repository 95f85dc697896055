package domain

import "time"

// AccountType is where money lives.
type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountBank       AccountType = "bank"
	AccountCredit     AccountType = "credit"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountBank, AccountCredit, AccountSavings, AccountInvestment:
		return true
	}
	return false
}

// Account is a place money lives. IDs are immutable once created.
type Account struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Currency  string      `json:"currency"`
	CreatedAt time.Time   `json:"createdAt"`
	Archived  bool        `json:"archived,omitempty"`
}

// CategoryKind partitions categories into income and expense labels.
type CategoryKind string

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
)

// Valid reports whether k is income or expense.
func (k CategoryKind) Valid() bool {
	return k == CategoryIncome || k == CategoryExpense
}

// Category labels income or expense transactions.
type Category struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Kind  CategoryKind `json:"kind"`
	Emoji string       `json:"emoji,omitempty"`
	Color string       `json:"color,omitempty"`
}
