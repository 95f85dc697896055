// Package sqlite persists the ledger in a SQLite database using the pure-Go
// modernc.org/sqlite driver. The schema is managed by golang-migrate from
// embedded migration files.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	metaSchemaVersion = "schema_version"
	metaSavedAt       = "saved_at"
)

// Store is a persist.Persister backed by a SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping: %w", err)
	}
	if _, err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies every pending up migration to db and returns the schema
// version afterwards. An up-to-date schema is not an error.
func Migrate(ctx context.Context, db *sql.DB) (uint, error) {
	log := logger.FromContext(ctx)

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("Migrate: source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("Migrate: driver: %w", err)
	}
	// m.Close would also close db, which the caller still owns.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("Migrate: up: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("Migrate: version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("Migrate: schema version %d is dirty", version)
	}
	log.Debug().Uint("schema_version", version).Msg("sqlite migrations applied")
	return version, nil
}

// Save replaces the stored ledger with st in one transaction.
func (s *Store) Save(ctx context.Context, st domain.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.Save: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"snapshot_balances", "snapshots", "transactions", "categories", "accounts", "ledger_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite.Save: clear %s: %w", table, err)
		}
	}
	if err := insertState(ctx, tx, st); err != nil {
		return fmt.Errorf("sqlite.Save: %w", err)
	}
	meta := map[string]string{
		metaSchemaVersion: strconv.Itoa(persist.SchemaVersion),
		metaSavedAt:       s.now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("sqlite.Save: meta %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.Save: commit: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int("accounts", len(st.Accounts)).
		Int("transactions", len(st.Transactions)).
		Int("snapshots", len(st.Snapshots)).
		Msg("ledger saved to sqlite")
	return nil
}

// Load reads the stored ledger, or persist.ErrNoState before the first save.
func (s *Store) Load(ctx context.Context) (domain.State, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ledger_meta WHERE key = ?`, metaSavedAt).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.State{}, persist.ErrNoState
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("sqlite.Load: meta: %w", err)
	}

	st, err := selectState(ctx, s.db)
	if err != nil {
		return domain.State{}, fmt.Errorf("sqlite.Load: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("saved_at", savedAt).Msg("ledger loaded from sqlite")
	return st, nil
}

var _ persist.Persister = (*Store)(nil)
