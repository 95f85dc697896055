package ledger

import (
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// DefaultCategories is the starter set of income and expense labels.
func DefaultCategories() []domain.Category {
	return []domain.Category{
		{ID: "cat-salary", Name: "Salary", Kind: domain.CategoryIncome, Emoji: "💼"},
		{ID: "cat-business", Name: "Business", Kind: domain.CategoryIncome, Emoji: "💼"},
		{ID: "cat-groceries", Name: "Groceries", Kind: domain.CategoryExpense, Emoji: "🛒"},
		{ID: "cat-rent", Name: "Rent", Kind: domain.CategoryExpense, Emoji: "🏠"},
		{ID: "cat-transport", Name: "Transport", Kind: domain.CategoryExpense, Emoji: "🚇"},
		{ID: "cat-eatingout", Name: "Eating Out", Kind: domain.CategoryExpense, Emoji: "🍴"},
	}
}

// SeedAccounts is an example set of accounts covering cash, bank, credit and
// investment types.
func SeedAccounts(currency string, createdAt time.Time) []domain.Account {
	return []domain.Account{
		{ID: "acc-cash", Name: "Cash", Type: domain.AccountCash, Currency: currency, CreatedAt: createdAt},
		{ID: "acc-monzo", Name: "Monzo", Type: domain.AccountBank, Currency: currency, CreatedAt: createdAt},
		{ID: "acc-amex", Name: "AMEX", Type: domain.AccountCredit, Currency: currency, CreatedAt: createdAt},
		{ID: "acc-invest", Name: "Investments", Type: domain.AccountInvestment, Currency: currency, CreatedAt: createdAt},
	}
}
