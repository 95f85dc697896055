package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/persist"
	"github.com/dvloznov/finance-ledger/internal/persist/jsonfile"
	"github.com/dvloznov/finance-ledger/internal/persist/sqlite"
)

func TestOpen_Primary(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		storage string
		check   func(t *testing.T, p persist.Persister)
	}{
		{config.StorageMemory, func(t *testing.T, p persist.Persister) {
			if _, ok := p.(*persist.Memory); !ok {
				t.Errorf("primary = %T", p)
			}
		}},
		{config.StorageJSON, func(t *testing.T, p persist.Persister) {
			js, ok := p.(*jsonfile.Store)
			if !ok || js.Path() != filepath.Join(dir, "ledger.json") {
				t.Errorf("primary = %#v", p)
			}
		}},
		{config.StorageSQLite, func(t *testing.T, p persist.Persister) {
			if _, ok := p.(*sqlite.Store); !ok {
				t.Errorf("primary = %T", p)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.storage, func(t *testing.T) {
			cfg := config.Config{
				Storage:    tt.storage,
				JSONPath:   filepath.Join(dir, "ledger.json"),
				SQLitePath: filepath.Join(dir, "nested", "ledger.db"),
				Currency:   "GBP",
			}
			b, err := Open(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer b.Close()

			tt.check(t, b.Primary)
			if b.Backup != nil || b.Export != nil {
				t.Errorf("sinks opened without configuration")
			}

			ctx := context.Background()
			if _, err := b.Primary.Load(ctx); !errors.Is(err, persist.ErrNoState) {
				t.Errorf("fresh backend: got %v, want ErrNoState", err)
			}
			st := domain.State{Accounts: []domain.Account{{ID: "acc-cash", Name: "Cash", Type: domain.AccountCash, Currency: "GBP"}}}
			if err := b.Saver().Save(ctx, st); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := b.Primary.Load(ctx)
			if err != nil || len(got.Accounts) != 1 {
				t.Errorf("Load after save = %+v, %v", got, err)
			}
		})
	}
}

func TestOpen_UnknownStorage(t *testing.T) {
	if _, err := OpenPrimary(context.Background(), config.Config{Storage: "s3"}); err == nil {
		t.Fatal("expected an error for an unknown storage backend")
	}
}

func TestSaver_PrimaryOnly(t *testing.T) {
	mem := &persist.Memory{}
	b := &Backend{Primary: mem}
	m, ok := b.Saver().(persist.Multi)
	if !ok || len(m) != 1 {
		t.Fatalf("Saver = %#v", b.Saver())
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	mem := &persist.Memory{}
	b := &Backend{Primary: mem}

	store := ledger.New(ledger.WithDefaults())
	fresh, err := b.Restore(ctx, store)
	if err != nil || !fresh {
		t.Fatalf("empty backend: fresh=%v err=%v", fresh, err)
	}
	if len(store.Accounts()) == 0 {
		t.Error("a fresh restore must keep the seeded accounts")
	}

	saved := domain.State{Accounts: []domain.Account{{ID: "acc-only", Name: "Only", Type: domain.AccountBank, Currency: "GBP"}}}
	if err := mem.Save(ctx, saved); err != nil {
		t.Fatal(err)
	}
	fresh, err = b.Restore(ctx, store)
	if err != nil || fresh {
		t.Fatalf("restore: fresh=%v err=%v", fresh, err)
	}
	if got := store.Accounts(); len(got) != 1 || got[0].ID != "acc-only" {
		t.Errorf("accounts after restore = %+v", got)
	}

	bad := domain.State{Accounts: []domain.Account{{ID: "x", Name: "X", Type: "crypto", Currency: "GBP"}}}
	if err := mem.Save(ctx, bad); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Restore(ctx, store); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("invalid saved state: got %v, want ErrValidation", err)
	}
}
