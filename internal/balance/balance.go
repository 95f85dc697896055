// Package balance derives balances and aggregates from a ledger state.
// Every query is pure: it reads a consistent copy of the state and never
// mutates it.
package balance

import (
	"cmp"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Source supplies a consistent copy of the ledger state.
type Source interface {
	State() domain.State
}

// Engine evaluates queries against the current state of a Source.
type Engine struct {
	src Source
}

// New creates an Engine reading from src.
func New(src Source) *Engine {
	return &Engine{src: src}
}

// View takes a fresh copy of the source state. Queries on one view all see
// the same state, however the source changes afterwards.
func (e *Engine) View() *View {
	return NewView(e.src.State())
}

// View answers balance queries over one fixed state.
type View struct {
	st domain.State
}

// NewView wraps st. The caller must not modify st afterwards.
func NewView(st domain.State) *View {
	return &View{st: st}
}

// State returns the state the view was built from.
func (v *View) State() domain.State { return v.st }

// AccountBalance pairs an account with its balance.
type AccountBalance struct {
	Account domain.Account  `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// effect is the signed change t makes to accountID's balance.
//
//	type        accountId side   transferAccountId side
//	income      +amount          n/a
//	expense     -amount          n/a
//	transfer    -amount          +amount
//	invest      -amount          +amount
//	debt        -amount          +amount
//	adjustment  +delta           n/a
func effect(t domain.Transaction, accountID string) decimal.Decimal {
	v := t.Amount.Value
	if t.AccountID == accountID {
		switch t.Type {
		case domain.TxnIncome, domain.TxnAdjustment:
			return v
		case domain.TxnExpense, domain.TxnTransfer, domain.TxnInvest, domain.TxnDebt:
			return v.Neg()
		}
		return decimal.Zero
	}
	if t.TransferAccountID == accountID && t.Type.IsTransferLike() {
		return v
	}
	return decimal.Zero
}

// BalanceByAccount replays every transaction touching accountID.
func (v *View) BalanceByAccount(accountID string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range v.st.Transactions {
		total = total.Add(effect(t, accountID))
	}
	return total
}

// BalanceAt replays only the transactions dated on or before at, including
// earlier adjustments.
func (v *View) BalanceAt(accountID string, at civil.Date) decimal.Decimal {
	total := decimal.Zero
	for _, t := range v.st.Transactions {
		if !t.Date.After(at) {
			total = total.Add(effect(t, accountID))
		}
	}
	return total
}

// Balances returns every account's balance in account order.
func (v *View) Balances() []AccountBalance {
	sums := v.sums(nil)
	out := make([]AccountBalance, len(v.st.Accounts))
	for i, a := range v.st.Accounts {
		out[i] = AccountBalance{Account: a, Balance: sums[a.ID]}
	}
	return out
}

// BalancesAt maps every account id to its balance as of at.
func (v *View) BalancesAt(at civil.Date) map[string]decimal.Decimal {
	sums := v.sums(&at)
	out := make(map[string]decimal.Decimal, len(v.st.Accounts))
	for _, a := range v.st.Accounts {
		out[a.ID] = sums[a.ID]
	}
	return out
}

// sums accumulates every account's balance in one pass, optionally bounded
// to transactions dated on or before at.
func (v *View) sums(at *civil.Date) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal, len(v.st.Accounts))
	for _, t := range v.st.Transactions {
		if at != nil && t.Date.After(*at) {
			continue
		}
		sums[t.AccountID] = sums[t.AccountID].Add(effect(t, t.AccountID))
		if t.Type.IsTransferLike() {
			sums[t.TransferAccountID] = sums[t.TransferAccountID].Add(effect(t, t.TransferAccountID))
		}
	}
	return sums
}

// NetWorth is the sum of all signed account balances. Credit accounts are
// negative while money is owed, so no sign flip is applied here.
func (v *View) NetWorth() decimal.Decimal {
	total := decimal.Zero
	for _, b := range v.sums(nil) {
		total = total.Add(b)
	}
	return total
}

// MonthIncome sums income in the calendar month containing date, excluding
// reconcile entries.
func (v *View) MonthIncome(date civil.Date) decimal.Decimal {
	return v.monthTotal(date, domain.TxnIncome)
}

// MonthExpenses sums expenses in the calendar month containing date,
// excluding reconcile entries.
func (v *View) MonthExpenses(date civil.Date) decimal.Decimal {
	return v.monthTotal(date, domain.TxnExpense)
}

func (v *View) monthTotal(date civil.Date, typ domain.TxnType) decimal.Decimal {
	total := decimal.Zero
	for _, t := range v.st.Transactions {
		if t.Type == typ && t.IsCashflow() && domain.SameMonth(t.Date, date) {
			total = total.Add(t.Amount.Value)
		}
	}
	return total
}

// SavingsRate is (income - expenses) / income for date's month, or exactly
// 0 when there is no income. The result is always finite.
func (v *View) SavingsRate(date civil.Date) float64 {
	income := v.MonthIncome(date)
	if !income.IsPositive() {
		return 0
	}
	return income.Sub(v.MonthExpenses(date)).Div(income).InexactFloat64()
}

// LatestSnapshotOnOrBefore returns the snapshot with the greatest date not
// after at. Among same-day snapshots the highest revision wins.
func (v *View) LatestSnapshotOnOrBefore(at civil.Date) (domain.Snapshot, bool) {
	return v.anchor(at, "")
}

func (v *View) anchor(at civil.Date, excludeID string) (domain.Snapshot, bool) {
	var best domain.Snapshot
	found := false
	for _, s := range v.st.Snapshots {
		if s.Date.After(at) || (excludeID != "" && s.ID == excludeID) {
			continue
		}
		if !found || later(s, best) {
			best, found = s, true
		}
	}
	return best, found
}

func later(a, b domain.Snapshot) bool {
	if c := domain.CompareDates(a.Date, b.Date); c != 0 {
		return c > 0
	}
	return cmp.Compare(a.Revision, b.Revision) > 0
}

// SumCashflowBetween sums +income and -expense over (start, end]. A nil
// start means from the beginning. Reconcile entries and transfer-like
// types never count.
func (v *View) SumCashflowBetween(start *civil.Date, end civil.Date) decimal.Decimal {
	total := decimal.Zero
	for _, t := range v.st.Transactions {
		if !t.IsCashflow() || t.Date.After(end) {
			continue
		}
		if start != nil && !t.Date.After(*start) {
			continue
		}
		if t.Type == domain.TxnIncome {
			total = total.Add(t.Amount.Value)
		} else {
			total = total.Sub(t.Amount.Value)
		}
	}
	return total
}

// NetWorthAt anchors on the latest snapshot on or before at, or zero when
// there is none, and adds the cashflow since.
func (v *View) NetWorthAt(at civil.Date) decimal.Decimal {
	return v.netWorthAt(at, "")
}

func (v *View) netWorthAt(at civil.Date, excludeID string) decimal.Decimal {
	snap, ok := v.anchor(at, excludeID)
	if !ok {
		return v.SumCashflowBetween(nil, at)
	}
	return snap.NetWorth().Add(v.SumCashflowBetween(&snap.Date, at))
}

// Drift compares a snapshot's entered net worth with the value the ledger
// expects on that date.
type Drift struct {
	Date       civil.Date      `json:"date"`
	Expected   decimal.Decimal `json:"expected"`
	Entered    decimal.Decimal `json:"entered"`
	Difference decimal.Decimal `json:"difference"`
}

// SnapshotDrift evaluates s against every other snapshot and the cashflow
// between them. A stored snapshot is excluded from its own expectation.
func (v *View) SnapshotDrift(s domain.Snapshot) Drift {
	expected := v.netWorthAt(s.Date, s.ID)
	entered := s.NetWorth()
	return Drift{
		Date:       s.Date,
		Expected:   expected,
		Entered:    entered,
		Difference: entered.Sub(expected),
	}
}

// MonthSummary is the income statement for one calendar month.
type MonthSummary struct {
	Month       civil.Date      `json:"month"`
	Income      decimal.Decimal `json:"income"`
	Expenses    decimal.Decimal `json:"expenses"`
	Net         decimal.Decimal `json:"net"`
	SavingsRate float64         `json:"savingsRate"`
}

// Summary reports the month containing date.
func (v *View) Summary(date civil.Date) MonthSummary {
	income, expenses := v.MonthIncome(date), v.MonthExpenses(date)
	return MonthSummary{
		Month:       domain.MonthStart(date),
		Income:      income,
		Expenses:    expenses,
		Net:         income.Sub(expenses),
		SavingsRate: v.SavingsRate(date),
	}
}
