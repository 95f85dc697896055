package bigquery

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

var exportedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture() domain.State {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.State{
		Accounts: []domain.Account{
			{ID: "acc-cash", Name: "Cash", Type: domain.AccountCash, Currency: "GBP", CreatedAt: created},
			{ID: "acc-amex", Name: "AMEX", Type: domain.AccountCredit, Currency: "GBP", CreatedAt: created},
		},
		Categories: []domain.Category{
			{ID: "cat-salary", Name: "Salary", Kind: domain.CategoryIncome, Emoji: "💼"},
		},
		Transactions: []domain.Transaction{
			{ID: "t1", Type: domain.TxnIncome, AccountID: "acc-cash", Amount: domain.Magnitude(decimal.NewFromInt(1000)),
				CategoryID: "cat-salary", Date: civil.Date{Year: 2024, Month: 1, Day: 5}, CreatedAt: created},
			{ID: "t2", Type: domain.TxnExpense, AccountID: "acc-amex", Amount: domain.Magnitude(decimal.NewFromInt(120)),
				Tags: []string{"travel"}, Date: civil.Date{Year: 2024, Month: 1, Day: 9}, CreatedAt: created, UpdatedAt: &exportedAt},
			{ID: "t3", Type: domain.TxnAdjustment, AccountID: "acc-cash", Amount: domain.Delta(decimal.NewFromInt(-50)),
				Date: civil.Date{Year: 2024, Month: 2, Day: 1}, CreatedAt: created, IsReconcile: true},
		},
		Snapshots: []domain.Snapshot{
			{ID: "s1", Date: civil.Date{Year: 2024, Month: 2, Day: 1}, BankCash: decimal.NewFromInt(950), CreditUsed: decimal.NewFromInt(120),
				CreditAvailable: decimal.NewNullDecimal(decimal.NewFromInt(1880)),
				AccountBalances: map[string]decimal.Decimal{"acc-cash": decimal.NewFromInt(950), "acc-amex": decimal.NewFromInt(-120)},
				Revision:        1, UpdatedAt: created},
		},
	}
}

func rat(n int64) *big.Rat { return new(big.Rat).SetInt64(n) }

func TestBuildRows(t *testing.T) {
	rows := BuildRows(fixture(), "exp-1", "GBP", exportedAt)

	if rows.Export.ExportID != "exp-1" || rows.Export.Transactions != 3 || rows.Export.NetWorth.Cmp(rat(830)) != 0 {
		t.Errorf("export row = %+v", rows.Export)
	}

	if len(rows.Accounts) != 2 {
		t.Fatalf("accounts = %d", len(rows.Accounts))
	}
	if rows.Accounts[0].Balance.Cmp(rat(950)) != 0 || rows.Accounts[1].Balance.Cmp(rat(-120)) != 0 {
		t.Errorf("balances = %s, %s", rows.Accounts[0].Balance, rows.Accounts[1].Balance)
	}

	income := rows.Transactions[0]
	if income.CategoryName != (bigquery.NullString{StringVal: "Salary", Valid: true}) || !income.IsCashflow {
		t.Errorf("income row = %+v", income)
	}
	if income.TransferAccountID.Valid || income.Note.Valid || income.UpdatedTS.Valid {
		t.Errorf("empty fields should be NULL: %+v", income)
	}
	if !rows.Transactions[1].UpdatedTS.Valid || rows.Transactions[1].Tags[0] != "travel" {
		t.Errorf("expense row = %+v", rows.Transactions[1])
	}
	adj := rows.Transactions[2]
	if adj.AmountKind != string(domain.KindDelta) || adj.Amount.Cmp(rat(-50)) != 0 || adj.IsCashflow || !adj.IsReconcile {
		t.Errorf("adjustment row = %+v", adj)
	}

	snap := rows.Snapshots[0]
	if snap.NetWorth.Cmp(rat(830)) != 0 || !snap.CreditAvailable.Valid || snap.CreditAvailable.Float64 != 1880 {
		t.Errorf("snapshot row = %+v", snap)
	}
	if len(rows.SnapshotBalances) != 2 || rows.SnapshotBalances[0].AccountID != "acc-amex" {
		t.Errorf("snapshot balances not sorted by account: %+v", rows.SnapshotBalances)
	}
}

func TestBuildRows_EmptyState(t *testing.T) {
	rows := BuildRows(domain.State{}, "exp-0", "GBP", exportedAt)
	if rows.Export == nil || rows.Export.NetWorth.Sign() != 0 {
		t.Fatalf("export row = %+v", rows.Export)
	}
	if len(rows.Accounts)+len(rows.Transactions)+len(rows.Snapshots) != 0 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func newTestExporter(put putFunc) *Exporter {
	return &Exporter{
		currency: "GBP",
		put:      put,
		now:      func() time.Time { return exportedAt },
		newID:    func() string { return "exp-1" },
	}
}

func TestExporterSave(t *testing.T) {
	var tables []string
	e := newTestExporter(func(_ context.Context, table string, _ any) error {
		tables = append(tables, table)
		return nil
	})

	st := fixture()
	st.Categories = nil
	if err := e.Save(context.Background(), st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := []string{accountsTable, transactionsTable, snapshotsTable, snapshotBalancesTable, exportsTable}
	if len(tables) != len(want) {
		t.Fatalf("tables = %v, want %v", tables, want)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Errorf("tables[%d] = %s, want %s", i, tables[i], want[i])
		}
	}
}

func TestExporterSave_StopsOnError(t *testing.T) {
	boom := errors.New("quota exceeded")
	var exportsWritten bool
	e := newTestExporter(func(_ context.Context, table string, _ any) error {
		if table == exportsTable {
			exportsWritten = true
		}
		if table == transactionsTable {
			return boom
		}
		return nil
	})

	err := e.Save(context.Background(), fixture())
	if !errors.Is(err, boom) {
		t.Fatalf("Save error = %v, want %v", err, boom)
	}
	if exportsWritten {
		t.Error("exports row written after a failed table")
	}
}
