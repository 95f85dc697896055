// Package ledger holds the canonical collections of accounts, categories,
// transactions and snapshots, and the commands that mutate them.
//
// Every command validates against a private working copy and swaps it in
// only on success, so a failed command never leaves partial changes behind.
// Writers are serialized by a single lock; readers get deep copies.
package ledger

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

// DefaultCurrency is the single currency used when none is configured.
const DefaultCurrency = "GBP"

// CommitHook observes every successful mutation. It receives the new store
// version and a copy of the committed state shared by all hooks, and runs
// after the write lock is released. Hooks must not modify the state or
// block for long.
type CommitHook func(ctx context.Context, version uint64, st domain.State)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides id generation.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithCurrency sets the ledger's single currency.
func WithCurrency(code string) Option {
	return func(s *Store) { s.currency = code }
}

// WithDefaults seeds the starter categories and example accounts.
func WithDefaults() Option {
	return func(s *Store) { s.seed = true }
}

// WithCommitHook registers a hook fired after each committed command.
func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// Store is the in-memory ledger. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	state    domain.State
	version  uint64
	revision uint64

	currency string
	now      func() time.Time
	newID    func() string
	hooks    []CommitHook
	seed     bool
}

// New creates an empty store, or a seeded one with WithDefaults.
func New(opts ...Option) *Store {
	s := &Store{
		currency: DefaultCurrency,
		now:      time.Now,
		newID:    uuid.NewString,
		state: domain.State{
			Accounts:     []domain.Account{},
			Categories:   []domain.Category{},
			Transactions: []domain.Transaction{},
			Snapshots:    []domain.Snapshot{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seed {
		s.state.Categories = DefaultCategories()
		s.state.Accounts = SeedAccounts(s.currency, s.now().UTC())
	}
	return s
}

// Currency returns the ledger's single currency code.
func (s *Store) Currency() string { return s.currency }

// Version increases by one on every committed change, including Load.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// State returns a deep copy of all four collections.
func (s *Store) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// VersionedState returns a deep copy of the state together with the version
// it was committed at.
func (s *Store) VersionedState() (domain.State, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), s.version
}

// PreviewSnapshot validates in and returns the snapshot AddSnapshot would
// record, derived totals included, without committing it. The returned
// state is the one the preview was derived from, without the snapshot.
func (s *Store) PreviewSnapshot(in SnapshotInput) (domain.Snapshot, domain.State, error) {
	s.mu.RLock()
	base := s.state.Clone()
	w := &writer{
		st:       base.Clone(),
		now:      s.now().UTC(),
		newID:    func() string { return "" },
		currency: s.currency,
		revision: s.revision,
	}
	s.mu.RUnlock()
	snap, err := w.addSnapshot(in)
	if err != nil {
		return domain.Snapshot{}, domain.State{}, err
	}
	return snap, base, nil
}

// Load replaces the store's contents with st after validating and
// normalizing it. Commit hooks are not fired: the caller already holds
// this state.
func (s *Store) Load(ctx context.Context, st domain.State) error {
	s.mu.Lock()
	normalized, revision, err := normalizeState(st.Clone(), s.currency)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = normalized
	s.revision = revision
	s.version++
	version := s.version
	s.mu.Unlock()

	log := logger.FromContext(ctx)
	log.Info().
		Uint64("version", version).
		Int("accounts", len(normalized.Accounts)).
		Int("transactions", len(normalized.Transactions)).
		Int("snapshots", len(normalized.Snapshots)).
		Msg("ledger state loaded")
	return nil
}

// Accounts returns every account in creation order.
func (s *Store) Accounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Accounts)
}

// ActiveAccounts returns the accounts that are not archived.
func (s *Store) ActiveAccounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.state.Accounts))
	for _, a := range s.state.Accounts {
		if !a.Archived {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Categories() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Categories)
}

// Transactions lists matching transactions by date ascending, with
// insertion order breaking ties.
func (s *Store) Transactions(filter TransactionFilter) []domain.Transaction {
	s.mu.RLock()
	out := make([]domain.Transaction, 0, len(s.state.Transactions))
	for _, t := range s.state.Transactions {
		if filter.match(t) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b domain.Transaction) int {
		return domain.CompareDates(a.Date, b.Date)
	})
	return out
}

// Snapshots returns every snapshot sorted by date ascending.
func (s *Store) Snapshots() []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Snapshot, len(s.state.Snapshots))
	for i, snap := range s.state.Snapshots {
		out[i] = snap.Clone()
	}
	return out
}

// Batch runs fn against a working copy of the ledger and commits all of its
// changes at once, or none of them if fn returns an error.
func (s *Store) Batch(ctx context.Context, fn func(tx *Tx) error) error {
	_, err := commit(ctx, s, "batch", func(w *writer) (struct{}, error) {
		return struct{}{}, fn(&Tx{w: w})
	})
	return err
}

// commit applies fn to a clone of the current state under the write lock.
// On success the clone becomes the store's state, the version is bumped and
// hooks fire with a fresh copy once the lock is released.
func commit[T any](ctx context.Context, s *Store, op string, fn func(w *writer) (T, error)) (T, error) {
	s.mu.Lock()
	w := &writer{
		st:       s.state.Clone(),
		now:      s.now().UTC(),
		newID:    s.newID,
		currency: s.currency,
		revision: s.revision,
	}
	result, err := fn(w)
	if err != nil || !w.dirty {
		s.mu.Unlock()
		return result, err
	}

	s.state = w.st
	s.revision = w.revision
	s.version++
	version := s.version
	hooks := s.hooks
	var committed domain.State
	if len(hooks) > 0 {
		committed = s.state.Clone()
	}
	s.mu.Unlock()

	log := logger.FromContext(ctx)
	log.Debug().
		Str("op", op).
		Uint64("version", version).
		Msg("ledger commit")

	for _, h := range hooks {
		h(ctx, version, committed)
	}
	return result, nil
}

func sortSnapshots(snaps []domain.Snapshot) {
	slices.SortStableFunc(snaps, func(a, b domain.Snapshot) int {
		if c := domain.CompareDates(a.Date, b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Revision, b.Revision)
	})
}
