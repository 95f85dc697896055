package domain

import (
	"maps"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time checkpoint of aggregate net worth.
//
// CreditUsed is the amount owed across credit accounts, a positive number
// while in debt. CreditAvailable is metadata and never enters net worth.
// AccountBalances, when present, maps account IDs to signed ledger balances
// at Date.
type Snapshot struct {
	ID              string                     `json:"id"`
	Date            civil.Date                 `json:"date"`
	BankCash        decimal.Decimal            `json:"bankCash"`
	Investments     decimal.Decimal            `json:"investments"`
	CreditUsed      decimal.Decimal            `json:"creditUsed"`
	CreditAvailable decimal.NullDecimal        `json:"creditAvailable"`
	AccountBalances map[string]decimal.Decimal `json:"accountBalances,omitempty"`

	// Revision orders writes; among snapshots sharing a date the highest
	// revision wins.
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NetWorth is bankCash + investments - creditUsed.
func (s Snapshot) NetWorth() decimal.Decimal {
	return s.BankCash.Add(s.Investments).Sub(s.CreditUsed)
}

// Clone copies s including its balance map.
func (s Snapshot) Clone() Snapshot {
	s.AccountBalances = maps.Clone(s.AccountBalances)
	return s
}
