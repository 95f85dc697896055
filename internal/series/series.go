// Package series builds chart-ready time series from the balance engine.
package series

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Point is one dated value.
type Point struct {
	Date  civil.Date      `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// CashflowPoint is one calendar month of income and expenses.
type CashflowPoint struct {
	Month   civil.Date      `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// NetWorthPoints yields net worth at every month end in [from, to] and a
// final point at to when to is not itself a month end. The sequence is
// recomputed on each iteration and is empty when to is before from.
func NetWorthPoints(v *balance.View, from, to civil.Date) iter.Seq[Point] {
	return func(yield func(Point) bool) {
		if to.Before(from) {
			return
		}
		// The cursor's month end is clamped to to, so the last month
		// yields the final point at to.
		for cursor := domain.MonthStart(from); !cursor.After(to); cursor = domain.AddMonths(cursor, 1) {
			at := domain.MonthEnd(cursor)
			if at.After(to) {
				at = to
			}
			if !yield(Point{Date: at, Value: v.NetWorthAt(at)}) {
				return
			}
		}
	}
}

// MonthlyCashflow yields one point per calendar month overlapping [from, to].
// Reconcile entries never count.
func MonthlyCashflow(v *balance.View, from, to civil.Date) iter.Seq[CashflowPoint] {
	return func(yield func(CashflowPoint) bool) {
		for cursor := domain.MonthStart(from); !cursor.After(to); cursor = domain.AddMonths(cursor, 1) {
			income, expense := v.MonthIncome(cursor), v.MonthExpenses(cursor)
			p := CashflowPoint{Month: cursor, Income: income, Expense: expense, Net: income.Sub(expense)}
			if !yield(p) {
				return
			}
		}
	}
}

// Generator produces series from the engine's current state.
type Generator struct {
	engine *balance.Engine
}

// New creates a Generator over engine.
func New(engine *balance.Engine) *Generator {
	return &Generator{engine: engine}
}

// NetWorthSeries collects NetWorthPoints over one consistent view.
func (g *Generator) NetWorthSeries(from, to civil.Date) []Point {
	return slices.Collect(NetWorthPoints(g.engine.View(), from, to))
}

// CashflowSeries collects MonthlyCashflow over one consistent view.
func (g *Generator) CashflowSeries(from, to civil.Date) []CashflowPoint {
	return slices.Collect(MonthlyCashflow(g.engine.View(), from, to))
}

// RangeKey names a dashboard window ending today.
type RangeKey string

const (
	Range1M  RangeKey = "1M"
	Range6M  RangeKey = "6M"
	Range12M RangeKey = "12M"
	Range24M RangeKey = "24M"
	RangeAll RangeKey = "ALL"
)

var rangeMonths = map[RangeKey]int{
	Range1M:  1,
	Range6M:  6,
	Range12M: 12,
	Range24M: 24,
	RangeAll: 36,
}

// ParseRangeKey accepts a key in any case.
func ParseRangeKey(s string) (RangeKey, error) {
	k := RangeKey(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rangeMonths[k]; !ok {
		return "", fmt.Errorf("unknown range %q: want 1M, 6M, 12M, 24M or ALL", s)
	}
	return k, nil
}

// Window returns [start of the month n-1 months back, today] for key.
func Window(key RangeKey, today civil.Date) (from, to civil.Date, err error) {
	n, ok := rangeMonths[key]
	if !ok {
		return civil.Date{}, civil.Date{}, fmt.Errorf("unknown range %q", key)
	}
	return domain.AddMonths(today, -(n - 1)), today, nil
}
