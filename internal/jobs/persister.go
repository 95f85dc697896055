package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist"
)

// Persister turns ledger commits into persist jobs and runs them against a
// saver. Only the newest published version is worth saving: a job for an
// older version is reported as ErrSuperseded. Run it behind a single worker
// so saves happen in version order.
type Persister struct {
	saver persist.Saver
	pub   Publisher

	mu     sync.Mutex
	latest uint64 // highest version published
	saved  uint64 // highest version saved
}

// NewPersister creates a Persister saving through saver and queueing on pub.
func NewPersister(saver persist.Saver, pub Publisher) *Persister {
	return &Persister{saver: saver, pub: pub}
}

// Hook returns a commit hook that publishes a persist job per commit.
func (p *Persister) Hook() ledger.CommitHook {
	return func(ctx context.Context, version uint64, st domain.State) {
		p.mu.Lock()
		if version > p.latest {
			p.latest = version
		}
		p.mu.Unlock()

		job := &PersistJob{Version: version, State: st}
		// The request that committed may end before the job is queued.
		if err := p.pub.PublishPersist(context.WithoutCancel(ctx), job); err != nil {
			log := logger.FromContext(ctx)
			log.Error().
				Err(err).
				Uint64("version", version).
				Msg("Failed to enqueue persist job")
		}
	}
}

// Handle is the JobHandler for persist jobs.
func (p *Persister) Handle(ctx context.Context, job Job) error {
	pj, ok := job.(*PersistJob)
	if !ok {
		return fmt.Errorf("Persister.Handle: unexpected job type: %T", job)
	}

	p.mu.Lock()
	stale := pj.Version < p.latest || pj.Version <= p.saved
	p.mu.Unlock()
	if stale {
		return ErrSuperseded
	}

	if err := p.saver.Save(ctx, pj.State); err != nil {
		return fmt.Errorf("Persister.Handle: saving version %d: %w", pj.Version, err)
	}
	p.markSaved(pj.Version)

	log := logger.FromContext(ctx)
	log.Info().
		Str("job_id", pj.JobID).
		Uint64("version", pj.Version).
		Msg("Ledger state persisted")
	return nil
}

// Flush saves st synchronously unless version is already saved. Call it
// after the consumer has stopped.
func (p *Persister) Flush(ctx context.Context, version uint64, st domain.State) error {
	if version <= p.SavedVersion() {
		return nil
	}
	if err := p.saver.Save(ctx, st); err != nil {
		return fmt.Errorf("Persister.Flush: saving version %d: %w", version, err)
	}
	p.markSaved(version)
	return nil
}

// SavedVersion is the highest version saved so far.
func (p *Persister) SavedVersion() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved
}

func (p *Persister) markSaved(version uint64) {
	p.mu.Lock()
	if version > p.saved {
		p.saved = version
	}
	p.mu.Unlock()
}
