// Package persist is the storage boundary for the ledger: it moves the four
// collections in and out of a store without the ledger knowing the format.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// SchemaVersion is the envelope version written by Encode.
const SchemaVersion = 3

// ErrNoState reports that a backend holds nothing to load yet.
var ErrNoState = errors.New("persist: no saved state")

// Saver receives the committed state at a save point.
type Saver interface {
	Save(ctx context.Context, st domain.State) error
}

// Loader returns the last saved state, or ErrNoState.
type Loader interface {
	Load(ctx context.Context) (domain.State, error)
}

// Persister is a backend that can do both.
type Persister interface {
	Saver
	Loader
}

// Envelope wraps a state with its schema version.
type Envelope struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"savedAt"`
	State   domain.State `json:"state"`
}

// Encode writes st as an indented versioned envelope.
func Encode(w io.Writer, st domain.State, savedAt time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Envelope{Version: SchemaVersion, SavedAt: savedAt.UTC(), State: st}); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// Decode reads an envelope and rejects versions it does not understand.
func Decode(r io.Reader) (Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("Decode: %w", err)
	}
	if env.Version != SchemaVersion {
		return Envelope{}, fmt.Errorf("Decode: unsupported schema version %d (want %d)", env.Version, SchemaVersion)
	}
	return env, nil
}

// Multi fans a save out to every saver in order and stops at the first
// failure.
type Multi []Saver

func (m Multi) Save(ctx context.Context, st domain.State) error {
	for _, s := range m {
		if err := s.Save(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Memory keeps the last saved state in process. It is the backend for
// LEDGER_STORAGE=memory and a convenient fake in tests.
type Memory struct {
	mu    sync.Mutex
	saved *domain.State
}

func (m *Memory) Save(_ context.Context, st domain.State) error {
	cp := st.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &cp
	return nil
}

func (m *Memory) Load(context.Context) (domain.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return domain.State{}, ErrNoState
	}
	return m.saved.Clone(), nil
}

var (
	_ Persister = (*Memory)(nil)
	_ Saver     = Multi(nil)
)
