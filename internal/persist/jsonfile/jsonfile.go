// Package jsonfile persists the ledger as a single JSON document on disk.
package jsonfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist"
)

// Store reads and writes a versioned envelope at a fixed path.
type Store struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a Store for path. The parent directory is created on save.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path is the file the store writes.
func (s *Store) Path() string { return s.path }

// Save writes to a temporary file in the same directory and renames it over
// the target, so a crash never leaves a half-written ledger.
func (s *Store) Save(ctx context.Context, st domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonfile.Save: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile.Save: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := persist.Encode(w, st, s.now()); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile.Save: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile.Save: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile.Save: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonfile.Save: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("jsonfile.Save: rename: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("path", s.path).
		Int("transactions", len(st.Transactions)).
		Msg("ledger saved to file")
	return nil
}

// Load reads the envelope. A missing file is persist.ErrNoState.
func (s *Store) Load(ctx context.Context) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.State{}, persist.ErrNoState
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("jsonfile.Load: %w", err)
	}
	defer f.Close()

	env, err := persist.Decode(bufio.NewReader(f))
	if err != nil {
		return domain.State{}, fmt.Errorf("jsonfile.Load: %s: %w", s.path, err)
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("path", s.path).
		Time("saved_at", env.SavedAt).
		Msg("ledger loaded from file")
	return env.State, nil
}

var _ persist.Persister = (*Store)(nil)
