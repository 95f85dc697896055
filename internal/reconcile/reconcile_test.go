package reconcile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// cashLedger holds Cash at 650 on 2024-03-01 after January income, an
// expense and a card payment.
func cashLedger(t *testing.T) *ledger.Store {
	t.Helper()
	ctx := context.Background()
	s := ledger.New(ledger.WithDefaults())
	for _, in := range []ledger.TransactionInput{
		{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: dec("1000"), Date: day(2024, 1, 5)},
		{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("200"), Date: day(2024, 1, 10)},
		{Type: domain.TxnDebt, AccountID: "acc-cash", TransferAccountID: "acc-amex", Amount: dec("150"), Date: day(2024, 1, 12)},
		{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("30"), Date: day(2024, 3, 5)},
	} {
		if _, err := s.AddTransaction(ctx, in); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}
	return s
}

func TestReconcileAccountsAt(t *testing.T) {
	s := cashLedger(t)
	ctx := context.Background()
	at := day(2024, 3, 1)

	res, err := New(s).ReconcileAccountsAt(ctx, at, map[string]decimal.Decimal{"acc-cash": dec("500")})
	if err != nil {
		t.Fatalf("ReconcileAccountsAt: %v", err)
	}
	if len(res.Adjustments) != 1 {
		t.Fatalf("expected one adjustment, got %d", len(res.Adjustments))
	}
	adj := res.Adjustments[0]
	if adj.Type != domain.TxnAdjustment || adj.AccountID != "acc-cash" || !adj.IsReconcile || adj.Date != at || adj.Note != Note {
		t.Errorf("unexpected adjustment: %+v", adj)
	}
	if adj.Amount.Kind != domain.KindDelta || !adj.Amount.Value.Equal(dec("-150")) {
		t.Errorf("amount = %+v, want delta -150", adj.Amount)
	}

	v := balance.New(s).View()
	if got := v.BalanceAt("acc-cash", at); !got.Equal(dec("500")) {
		t.Errorf("balance at %s = %s, want 500", at, got)
	}
	// The later March expense still applies on top of the corrected balance.
	if got := v.BalanceByAccount("acc-cash"); !got.Equal(dec("470")) {
		t.Errorf("balance = %s, want 470", got)
	}
	if got := v.MonthExpenses(at); !got.Equal(dec("30")) {
		t.Errorf("March expenses = %s, want 30 (adjustment must not count)", got)
	}
	if got := v.MonthIncome(at); !got.IsZero() {
		t.Errorf("March income = %s, want 0", got)
	}
}

func TestReconcileAccountsAt_Idempotent(t *testing.T) {
	s := cashLedger(t)
	ctx := context.Background()
	r := New(s)
	at := day(2024, 3, 1)
	targets := map[string]decimal.Decimal{"acc-cash": dec("500"), "acc-amex": dec("-20.10"), "acc-monzo": decimal.Zero}

	first, err := r.ReconcileAccountsAt(ctx, at, targets)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Adjustments) != 2 {
		t.Fatalf("first run: want 2 adjustments (monzo already matches), got %d", len(first.Adjustments))
	}
	version := s.Version()

	second, err := r.ReconcileAccountsAt(ctx, at, targets)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Adjustments) != 0 {
		t.Errorf("second run added %d adjustments", len(second.Adjustments))
	}
	if s.Version() != version {
		t.Error("no-op reconcile must not commit")
	}
}

func TestReconcileAccountsAt_EpsilonNoise(t *testing.T) {
	s := cashLedger(t)
	res, err := New(s).ReconcileAccountsAt(context.Background(), day(2024, 3, 1), map[string]decimal.Decimal{
		"acc-cash": dec("650.0000000001"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Adjustments) != 0 {
		t.Errorf("sub-epsilon delta produced %+v", res.Adjustments)
	}
}

func TestReconcileAccountsAt_SkipsUnknownAccounts(t *testing.T) {
	s := cashLedger(t)
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	res, err := New(s).ReconcileAccountsAt(ctx, day(2024, 3, 1), map[string]decimal.Decimal{
		"acc-cash": dec("600"),
		"acc-gone": dec("10"),
	})
	if err != nil {
		t.Fatalf("unknown targets must not fail the batch: %v", err)
	}
	if len(res.Adjustments) != 1 || len(res.Skipped) != 1 || res.Skipped[0] != "acc-gone" {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(buf.String(), `"account_id":"acc-gone"`) {
		t.Errorf("skip not logged: %s", buf.String())
	}
}

type failingBatcher struct{}

func (failingBatcher) Batch(context.Context, func(*ledger.Tx) error) error {
	return errors.New("store closed")
}

func TestReconcileAccountsAt_BatchError(t *testing.T) {
	_, err := New(failingBatcher{}).ReconcileAccountsAt(context.Background(), day(2024, 3, 1), nil)
	if err == nil || !strings.Contains(err.Error(), "store closed") {
		t.Errorf("expected wrapped batch error, got %v", err)
	}
}

func TestSnapshotWithSync(t *testing.T) {
	s := cashLedger(t)
	ctx := context.Background()
	at := day(2024, 3, 1)

	snap, res, err := New(s).SnapshotWithSync(ctx, at, map[string]decimal.Decimal{
		"acc-cash":   dec("500"),
		"acc-monzo":  dec("1200"),
		"acc-amex":   dec("-300"),
		"acc-invest": dec("4000"),
		"acc-gone":   dec("1"),
	}, ledger.SnapshotInput{CreditAvailable: decimal.NewNullDecimal(dec("1700"))})
	if err != nil {
		t.Fatalf("SnapshotWithSync: %v", err)
	}
	if len(res.Adjustments) != 4 || len(res.Skipped) != 1 {
		t.Errorf("result = %+v", res)
	}
	if !snap.BankCash.Equal(dec("1700")) || !snap.Investments.Equal(dec("4000")) || !snap.CreditUsed.Equal(dec("300")) {
		t.Errorf("snapshot totals = %s/%s/%s", snap.BankCash, snap.Investments, snap.CreditUsed)
	}
	if _, ok := snap.AccountBalances["acc-gone"]; ok {
		t.Error("unknown account leaked into the snapshot")
	}

	v := balance.New(s).View()
	if got, want := v.NetWorthAt(at), snap.NetWorth(); !got.Equal(want) {
		t.Errorf("netWorthAt = %s, want snapshot net worth %s", got, want)
	}
	if got := v.BalanceAt("acc-amex", at); !got.Equal(dec("-300")) {
		t.Errorf("amex balance = %s, want -300", got)
	}
}
