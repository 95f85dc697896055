package series

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seeded(t *testing.T) *ledger.Store {
	t.Helper()
	ctx := context.Background()
	s := ledger.New(ledger.WithDefaults())
	for _, in := range []ledger.TransactionInput{
		{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: dec("1000"), Date: day(2024, 1, 5)},
		{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("200"), Date: day(2024, 1, 10)},
		{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("50"), Date: day(2024, 2, 14)},
		{Type: domain.TxnIncome, AccountID: "acc-monzo", Amount: dec("300"), Date: day(2024, 3, 10)},
		{Type: domain.TxnTransfer, AccountID: "acc-monzo", TransferAccountID: "acc-cash", Amount: dec("100"), Date: day(2024, 3, 11)},
	} {
		if _, err := s.AddTransaction(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestNetWorthSeries(t *testing.T) {
	g := New(balance.New(seeded(t)))

	got := g.NetWorthSeries(day(2024, 1, 1), day(2024, 3, 15))
	want := []Point{
		{Date: day(2024, 1, 31), Value: dec("800")},
		{Date: day(2024, 2, 29), Value: dec("750")},
		{Date: day(2024, 3, 15), Value: dec("1050")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Date.After(got[i-1].Date) {
			t.Errorf("points not strictly increasing at %d", i)
		}
	}
}

func TestNetWorthPoints_Edges(t *testing.T) {
	v := balance.New(seeded(t)).View()

	t.Run("range ending on a month end has no extra point", func(t *testing.T) {
		pts := 0
		var lastDate civil.Date
		for p := range NetWorthPoints(v, day(2024, 1, 15), day(2024, 2, 29)) {
			pts++
			lastDate = p.Date
		}
		if pts != 2 || lastDate != day(2024, 2, 29) {
			t.Errorf("got %d points ending %s", pts, lastDate)
		}
	})

	t.Run("single day", func(t *testing.T) {
		var got []civil.Date
		for p := range NetWorthPoints(v, day(2024, 1, 7), day(2024, 1, 7)) {
			got = append(got, p.Date)
		}
		if diff := cmp.Diff([]civil.Date{day(2024, 1, 7)}, got); diff != "" {
			t.Errorf("dates mismatch:\n%s", diff)
		}
	})

	t.Run("inverted range is empty", func(t *testing.T) {
		for range NetWorthPoints(v, day(2024, 3, 1), day(2024, 1, 1)) {
			t.Fatal("expected no points")
		}
	})

	t.Run("restartable and stoppable", func(t *testing.T) {
		seq := NetWorthPoints(v, day(2024, 1, 1), day(2024, 12, 31))
		first := 0
		for range seq {
			first++
			if first == 3 {
				break
			}
		}
		second := 0
		for range seq {
			second++
		}
		if first != 3 || second != 12 {
			t.Errorf("first=%d second=%d", first, second)
		}
	})
}

func TestCashflowSeries(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	if err := s.Batch(ctx, func(tx *ledger.Tx) error {
		_, err := tx.AddAdjustment("acc-cash", dec("-99"), day(2024, 2, 1), "Reconcile to snapshot")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	got := New(balance.New(s)).CashflowSeries(day(2024, 1, 20), day(2024, 3, 2))
	want := []CashflowPoint{
		{Month: day(2024, 1, 1), Income: dec("1000"), Expense: dec("200"), Net: dec("800")},
		{Month: day(2024, 2, 1), Income: dec("0"), Expense: dec("50"), Net: dec("-50")},
		{Month: day(2024, 3, 1), Income: dec("300"), Expense: dec("0"), Net: dec("300")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cashflow mismatch (-want +got):\n%s", diff)
	}
}

func TestWindow(t *testing.T) {
	today := day(2024, 5, 17)
	tests := []struct {
		key      RangeKey
		wantFrom civil.Date
	}{
		{Range1M, day(2024, 5, 1)},
		{Range6M, day(2023, 12, 1)},
		{Range12M, day(2023, 6, 1)},
		{Range24M, day(2022, 6, 1)},
		{RangeAll, day(2021, 6, 1)},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			from, to, err := Window(tt.key, today)
			if err != nil {
				t.Fatal(err)
			}
			if from != tt.wantFrom || to != today {
				t.Errorf("Window = [%s, %s], want [%s, %s]", from, to, tt.wantFrom, today)
			}
		})
	}

	if _, _, err := Window("5Y", today); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestParseRangeKey(t *testing.T) {
	if k, err := ParseRangeKey(" 12m "); err != nil || k != Range12M {
		t.Errorf("ParseRangeKey = %q, %v", k, err)
	}
	if _, err := ParseRangeKey("week"); err == nil {
		t.Error("expected error")
	}
}
