package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

var testNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(opts ...Option) *Store {
	n := 0
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDs(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	}
	return New(append(base, opts...)...)
}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustAccount(t *testing.T, s *Store, name string, typ domain.AccountType) domain.Account {
	t.Helper()
	a, err := s.AddAccount(context.Background(), AccountInput{Name: name, Type: typ})
	if err != nil {
		t.Fatalf("AddAccount(%s): %v", name, err)
	}
	return a
}

func mustTxn(t *testing.T, s *Store, in TransactionInput) domain.Transaction {
	t.Helper()
	txn, err := s.AddTransaction(context.Background(), in)
	if err != nil {
		t.Fatalf("AddTransaction(%+v): %v", in, err)
	}
	return txn
}

func TestNew_WithDefaults(t *testing.T) {
	s := newTestStore(WithDefaults(), WithCurrency("EUR"))

	cats := s.Categories()
	if len(cats) != 6 || cats[0].ID != "cat-salary" || cats[5].ID != "cat-eatingout" {
		t.Errorf("unexpected default categories: %+v", cats)
	}
	accs := s.Accounts()
	if len(accs) != 4 {
		t.Fatalf("expected 4 seed accounts, got %d", len(accs))
	}
	for _, a := range accs {
		if a.Currency != "EUR" {
			t.Errorf("account %s currency = %s, want EUR", a.ID, a.Currency)
		}
	}
	if s.Version() != 0 {
		t.Errorf("seeding must not count as a commit, version = %d", s.Version())
	}
}

func TestAddAccount(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	a, err := s.AddAccount(ctx, AccountInput{Name: "  Cash ", Type: domain.AccountCash})
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	want := domain.Account{ID: "id-1", Name: "Cash", Type: domain.AccountCash, Currency: "GBP", CreatedAt: testNow}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("account mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name  string
		in    AccountInput
		field string
	}{
		{"missing name", AccountInput{Type: domain.AccountBank}, "name"},
		{"unknown type", AccountInput{Name: "X", Type: "crypto"}, "type"},
		{"other currency", AccountInput{Name: "X", Type: domain.AccountBank, Currency: "usd"}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddAccount(ctx, tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("errors.Is(err, ErrValidation) should hold")
			}
		})
	}
	if len(s.Accounts()) != 1 {
		t.Errorf("failed adds must not change state")
	}
}

func TestActiveAccounts(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	cash := mustAccount(t, s, "Cash", domain.AccountCash)
	old := mustAccount(t, s, "Old bank", domain.AccountBank)

	archived := true
	if _, err := s.UpdateAccount(ctx, old.ID, AccountPatch{Archived: &archived}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	active := s.ActiveAccounts()
	if len(active) != 1 || active[0].ID != cash.ID {
		t.Errorf("ActiveAccounts = %+v, want only cash", active)
	}
	if len(s.Accounts()) != 2 {
		t.Error("archived accounts must still be listed by Accounts")
	}
}

func TestAddTransaction_Validation(t *testing.T) {
	s := newTestStore(WithDefaults())
	ctx := context.Background()
	d := day(2024, 1, 5)

	tests := []struct {
		name  string
		in    TransactionInput
		field string
	}{
		{"zero amount", TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: decimal.Zero, Date: d}, "amount"},
		{"negative amount", TransactionInput{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("-5"), Date: d}, "amount"},
		{"unknown type", TransactionInput{Type: "refund", AccountID: "acc-cash", Amount: dec("5"), Date: d}, "type"},
		{"missing account", TransactionInput{Type: domain.TxnIncome, Amount: dec("5"), Date: d}, "accountId"},
		{"unknown account", TransactionInput{Type: domain.TxnIncome, AccountID: "nope", Amount: dec("5"), Date: d}, "accountId"},
		{"transfer without target", TransactionInput{Type: domain.TxnTransfer, AccountID: "acc-cash", Amount: dec("5"), Date: d}, "transferAccountId"},
		{"transfer to itself", TransactionInput{Type: domain.TxnDebt, AccountID: "acc-cash", TransferAccountID: "acc-cash", Amount: dec("5"), Date: d}, "transferAccountId"},
		{"transfer to unknown", TransactionInput{Type: domain.TxnInvest, AccountID: "acc-cash", TransferAccountID: "nope", Amount: dec("5"), Date: d}, "transferAccountId"},
		{"income with target", TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", TransferAccountID: "acc-monzo", Amount: dec("5"), Date: d}, "transferAccountId"},
		{"category kind mismatch", TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", CategoryID: "cat-rent", Amount: dec("5"), Date: d}, "categoryId"},
		{"category on transfer", TransactionInput{Type: domain.TxnTransfer, AccountID: "acc-cash", TransferAccountID: "acc-monzo", CategoryID: "cat-rent", Amount: dec("5"), Date: d}, "categoryId"},
		{"unknown category", TransactionInput{Type: domain.TxnExpense, AccountID: "acc-cash", CategoryID: "cat-x", Amount: dec("5"), Date: d}, "categoryId"},
		{"missing date", TransactionInput{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("5")}, "date"},
		{"user adjustment", TransactionInput{Type: domain.TxnAdjustment, AccountID: "acc-cash", Amount: dec("5"), Date: d}, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddTransaction(ctx, tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q (%v)", ve.Field, tt.field, err)
			}
		})
	}
	if got := len(s.Transactions(TransactionFilter{})); got != 0 {
		t.Errorf("rejected transactions were stored: %d", got)
	}
	if s.Version() != 0 {
		t.Errorf("rejected commands bumped the version to %d", s.Version())
	}
}

func TestUpdateTransaction(t *testing.T) {
	s := newTestStore(WithDefaults())
	ctx := context.Background()
	txn := mustTxn(t, s, TransactionInput{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("20"), CategoryID: "cat-groceries", Date: day(2024, 1, 3)})

	later := testNow.Add(time.Hour)
	s.now = func() time.Time { return later }

	amount := dec("25.50")
	note := "weekly shop"
	updated, err := s.UpdateTransaction(ctx, txn.ID, TransactionPatch{Amount: &amount, Note: &note})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if !updated.Amount.Value.Equal(amount) || updated.Amount.Kind != domain.KindMagnitude || updated.Note != note {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.UpdatedAt == nil || !updated.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, later)
	}
	if !updated.CreatedAt.Equal(testNow) {
		t.Error("CreatedAt must not change on update")
	}

	t.Run("merged result is re-validated", func(t *testing.T) {
		typ := domain.TxnIncome
		_, err := s.UpdateTransaction(ctx, txn.ID, TransactionPatch{Type: &typ})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for income with expense category, got %v", err)
		}
		got := s.Transactions(TransactionFilter{})[0]
		if got.Type != domain.TxnExpense {
			t.Error("failed update changed the stored transaction")
		}
	})

	t.Run("cannot become an adjustment", func(t *testing.T) {
		typ := domain.TxnAdjustment
		if _, err := s.UpdateTransaction(ctx, txn.ID, TransactionPatch{Type: &typ}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestNotFound(t *testing.T) {
	s := newTestStore(WithDefaults())
	ctx := context.Background()
	before := s.State()
	name := "x"

	calls := map[string]func() error{
		"UpdateAccount":     func() error { _, err := s.UpdateAccount(ctx, "missing", AccountPatch{Name: &name}); return err },
		"DeleteAccount":     func() error { return s.DeleteAccount(ctx, "missing") },
		"UpdateCategory":    func() error { _, err := s.UpdateCategory(ctx, "missing", CategoryPatch{Name: &name}); return err },
		"DeleteCategory":    func() error { return s.DeleteCategory(ctx, "missing") },
		"UpdateTransaction": func() error { _, err := s.UpdateTransaction(ctx, "missing", TransactionPatch{Note: &name}); return err },
		"DeleteTransaction": func() error { return s.DeleteTransaction(ctx, "missing") },
		"UpdateSnapshot":    func() error { _, err := s.UpdateSnapshot(ctx, "missing", SnapshotPatch{}); return err },
		"DeleteSnapshot":    func() error { return s.DeleteSnapshot(ctx, "missing") },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			var nf *NotFoundError
			if !errors.As(err, &nf) || nf.ID != "missing" {
				t.Fatalf("expected NotFoundError, got %v", err)
			}
			if !errors.Is(err, ErrNotFound) {
				t.Error("errors.Is(err, ErrNotFound) should hold")
			}
		})
	}
	if diff := cmp.Diff(before, s.State()); diff != "" {
		t.Errorf("not-found commands changed state:\n%s", diff)
	}
	if s.Version() != 0 {
		t.Errorf("version = %d, want 0", s.Version())
	}
}

func TestDeleteAccount_Cascades(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	cash := mustAccount(t, s, "Cash", domain.AccountCash)
	card := mustAccount(t, s, "Card", domain.AccountCredit)
	bank := mustAccount(t, s, "Bank", domain.AccountBank)

	mustTxn(t, s, TransactionInput{Type: domain.TxnIncome, AccountID: cash.ID, Amount: dec("100"), Date: day(2024, 1, 1)})
	mustTxn(t, s, TransactionInput{Type: domain.TxnDebt, AccountID: bank.ID, TransferAccountID: card.ID, Amount: dec("40"), Date: day(2024, 1, 2)})
	kept := mustTxn(t, s, TransactionInput{Type: domain.TxnTransfer, AccountID: bank.ID, TransferAccountID: cash.ID, Amount: dec("10"), Date: day(2024, 1, 3)})
	mustTxn(t, s, TransactionInput{Type: domain.TxnExpense, AccountID: card.ID, Amount: dec("5"), Date: day(2024, 1, 4)})

	if _, err := s.AddSnapshot(ctx, SnapshotInput{Date: day(2024, 1, 5), AccountBalances: map[string]decimal.Decimal{
		cash.ID: dec("110"), card.ID: dec("35"),
	}}); err != nil {
		t.Fatalf("AddSnapshot: %v", err)
	}

	if err := s.DeleteAccount(ctx, card.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	txns := s.Transactions(TransactionFilter{})
	if len(txns) != 2 {
		t.Fatalf("expected 2 surviving transactions, got %d", len(txns))
	}
	for _, txn := range txns {
		if txn.Touches(card.ID) {
			t.Errorf("transaction %s still references deleted account", txn.ID)
		}
	}
	if txns[1].ID != kept.ID {
		t.Errorf("unrelated transfer was dropped")
	}
	snap := s.Snapshots()[0]
	if _, ok := snap.AccountBalances[card.ID]; ok {
		t.Error("deleted account left in snapshot balances")
	}
	if !snap.CreditUsed.Equal(dec("-35")) {
		t.Errorf("snapshot totals must stay historical, creditUsed = %s", snap.CreditUsed)
	}
}

func TestDeleteCategory_Detaches(t *testing.T) {
	s := newTestStore(WithDefaults())
	ctx := context.Background()
	txn := mustTxn(t, s, TransactionInput{Type: domain.TxnExpense, AccountID: "acc-cash", CategoryID: "cat-rent", Amount: dec("900"), Date: day(2024, 1, 1)})

	if err := s.DeleteCategory(ctx, "cat-rent"); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	got := s.Transactions(TransactionFilter{})[0]
	if got.ID != txn.ID || got.CategoryID != "" || got.UpdatedAt == nil {
		t.Errorf("transaction not detached: %+v", got)
	}
	if _, ok := s.State().Category("cat-rent"); ok {
		t.Error("category still present")
	}
}

func TestUpdateCategory_KindInUse(t *testing.T) {
	s := newTestStore(WithDefaults())
	ctx := context.Background()
	mustTxn(t, s, TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", CategoryID: "cat-salary", Amount: dec("1"), Date: day(2024, 1, 1)})

	kind := domain.CategoryExpense
	if _, err := s.UpdateCategory(ctx, "cat-salary", CategoryPatch{Kind: &kind}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.UpdateCategory(ctx, "cat-business", CategoryPatch{Kind: &kind}); err != nil {
		t.Fatalf("unused category kind change: %v", err)
	}
}

func TestTransactions_OrderAndFilter(t *testing.T) {
	s := newTestStore(WithDefaults())
	late := mustTxn(t, s, TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: dec("1"), Date: day(2024, 2, 1)})
	first := mustTxn(t, s, TransactionInput{Type: domain.TxnExpense, AccountID: "acc-cash", Amount: dec("2"), Date: day(2024, 1, 10)})
	second := mustTxn(t, s, TransactionInput{Type: domain.TxnExpense, AccountID: "acc-monzo", Amount: dec("3"), Date: day(2024, 1, 10)})
	move := mustTxn(t, s, TransactionInput{Type: domain.TxnTransfer, AccountID: "acc-monzo", TransferAccountID: "acc-cash", Amount: dec("4"), Date: day(2024, 1, 12)})

	ids := func(txns []domain.Transaction) []string {
		out := make([]string, len(txns))
		for i, t := range txns {
			out[i] = t.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter TransactionFilter
		want   []string
	}{
		{"all by date, insertion tiebreak", TransactionFilter{}, []string{first.ID, second.ID, move.ID, late.ID}},
		{"account on either side", TransactionFilter{AccountID: "acc-cash"}, []string{first.ID, move.ID, late.ID}},
		{"type", TransactionFilter{Type: domain.TxnExpense}, []string{first.ID, second.ID}},
		{"month", TransactionFilter{Month: day(2024, 2, 15)}, []string{late.ID}},
		{"range", TransactionFilter{From: day(2024, 1, 11), To: day(2024, 1, 31)}, []string{move.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(s.Transactions(tt.filter))); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadsAreCopies(t *testing.T) {
	s := newTestStore(WithDefaults())
	mustTxn(t, s, TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: dec("1"), Tags: []string{"a"}, Date: day(2024, 1, 1)})

	txns := s.Transactions(TransactionFilter{})
	txns[0].Tags[0] = "mutated"
	st := s.State()
	st.Accounts[0].Name = "mutated"

	if s.Transactions(TransactionFilter{})[0].Tags[0] != "a" {
		t.Error("Transactions leaked internal tags")
	}
	if s.Accounts()[0].Name != "Cash" {
		t.Error("State leaked internal accounts")
	}
}

func TestCommitHook(t *testing.T) {
	var versions []uint64
	var lastCount int
	s := newTestStore(WithDefaults(), WithCommitHook(func(_ context.Context, v uint64, st domain.State) {
		versions = append(versions, v)
		lastCount = len(st.Transactions)
	}))
	ctx := context.Background()

	mustTxn(t, s, TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: dec("1"), Date: day(2024, 1, 1)})
	mustTxn(t, s, TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: dec("2"), Date: day(2024, 1, 2)})
	_, _ = s.AddTransaction(ctx, TransactionInput{Type: domain.TxnIncome, AccountID: "acc-cash", Amount: dec("0"), Date: day(2024, 1, 2)})

	if diff := cmp.Diff([]uint64{1, 2}, versions); diff != "" {
		t.Errorf("hook versions mismatch (-want +got):\n%s", diff)
	}
	if lastCount != 2 {
		t.Errorf("hook saw %d transactions, want 2", lastCount)
	}

	if err := s.Load(ctx, s.State()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(versions) != 2 {
		t.Error("Load must not fire commit hooks")
	}
	if s.Version() != 3 {
		t.Errorf("Load should still bump the version, got %d", s.Version())
	}
}

func TestBatch(t *testing.T) {
	s := newTestStore(WithDefaults())
	ctx := context.Background()

	t.Run("error rolls back everything", func(t *testing.T) {
		err := s.Batch(ctx, func(tx *Tx) error {
			if _, err := tx.AddAdjustment("acc-cash", dec("10"), day(2024, 1, 1), "first"); err != nil {
				return err
			}
			_, err := tx.AddAdjustment("nope", dec("10"), day(2024, 1, 1), "second")
			return err
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if len(s.Transactions(TransactionFilter{})) != 0 || s.Version() != 0 {
			t.Error("failed batch left changes behind")
		}
	})

	t.Run("working state is visible inside the batch", func(t *testing.T) {
		err := s.Batch(ctx, func(tx *Tx) error {
			if _, err := tx.AddAdjustment("acc-cash", dec("-2.5"), day(2024, 1, 1), "fix"); err != nil {
				return err
			}
			if n := len(tx.State().Transactions); n != 1 {
				return fmt.Errorf("working state has %d transactions", n)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Batch: %v", err)
		}
		txns := s.Transactions(TransactionFilter{})
		if len(txns) != 1 || !txns[0].IsReconcile || txns[0].Amount.Kind != domain.KindDelta {
			t.Errorf("adjustment not committed as a reconcile delta: %+v", txns)
		}
		if s.Version() != 1 {
			t.Errorf("version = %d, want 1", s.Version())
		}
	})

	t.Run("empty batch is not a commit", func(t *testing.T) {
		before := s.Version()
		if err := s.Batch(ctx, func(*Tx) error { return nil }); err != nil {
			t.Fatalf("Batch: %v", err)
		}
		if s.Version() != before {
			t.Error("no-op batch bumped the version")
		}
	})

	t.Run("zero delta is rejected", func(t *testing.T) {
		err := s.Batch(ctx, func(tx *Tx) error {
			_, err := tx.AddAdjustment("acc-cash", decimal.Zero, day(2024, 1, 1), "noop")
			return err
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
