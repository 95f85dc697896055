// Package reconcile corrects computed account balances to observed targets
// with adjustment transactions that never count as income or expense.
package reconcile

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

// Note is attached to every adjustment created here.
const Note = "Reconcile to snapshot"

// Epsilon is the smallest delta worth an adjustment.
var Epsilon = decimal.New(1, -9)

// Batcher commits a group of changes atomically. *ledger.Store implements it.
type Batcher interface {
	Batch(ctx context.Context, fn func(tx *ledger.Tx) error) error
}

var _ Batcher = (*ledger.Store)(nil)

// Result lists what a reconciliation did.
type Result struct {
	Adjustments []domain.Transaction `json:"adjustments"`
	// Skipped holds target account ids the ledger does not know.
	Skipped []string `json:"skipped,omitempty"`
}

// Reconciler synthesizes adjustments against a ledger.
type Reconciler struct {
	store Batcher
}

// New creates a Reconciler committing through store.
func New(store Batcher) *Reconciler {
	return &Reconciler{store: store}
}

// ReconcileAccountsAt makes every targeted account's balance as of at equal
// its target. One adjustment is added per account whose delta is at least
// Epsilon, all in a single batch. Unknown account ids are skipped and
// reported in the result. Running it twice with the same targets adds
// nothing the second time.
func (r *Reconciler) ReconcileAccountsAt(ctx context.Context, at civil.Date, targets map[string]decimal.Decimal) (Result, error) {
	var res Result
	err := r.store.Batch(ctx, func(tx *ledger.Tx) error {
		var err error
		res, err = reconcileIn(ctx, tx, at, targets)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("ReconcileAccountsAt: %w", err)
	}
	return res, nil
}

// SnapshotWithSync reconciles the targets and then records a snapshot at the
// same date whose totals are derived from those balances plus the given
// extra totals, all in one batch. Targets for unknown accounts are left out
// of the snapshot.
func (r *Reconciler) SnapshotWithSync(ctx context.Context, at civil.Date, targets map[string]decimal.Decimal, extra ledger.SnapshotInput) (domain.Snapshot, Result, error) {
	var (
		res  Result
		snap domain.Snapshot
	)
	err := r.store.Batch(ctx, func(tx *ledger.Tx) error {
		var err error
		if res, err = reconcileIn(ctx, tx, at, targets); err != nil {
			return err
		}
		balances := maps.Clone(targets)
		for _, id := range res.Skipped {
			delete(balances, id)
		}
		in := extra
		in.Date = at
		in.AccountBalances = balances
		snap, err = tx.AddSnapshot(in)
		return err
	})
	if err != nil {
		return domain.Snapshot{}, Result{}, fmt.Errorf("SnapshotWithSync: %w", err)
	}
	return snap, res, nil
}

func reconcileIn(ctx context.Context, tx *ledger.Tx, at civil.Date, targets map[string]decimal.Decimal) (Result, error) {
	log := logger.FromContext(ctx)
	st := tx.State()
	view := balance.NewView(st)
	res := Result{Adjustments: []domain.Transaction{}}

	// Sorted ids keep the adjustment order stable across runs.
	for _, id := range slices.Sorted(maps.Keys(targets)) {
		if _, ok := st.Account(id); !ok {
			log.Warn().Str("account_id", id).Msg("reconcile target for unknown account skipped")
			res.Skipped = append(res.Skipped, id)
			continue
		}
		current := view.BalanceAt(id, at)
		delta := targets[id].Sub(current)
		if delta.Abs().LessThan(Epsilon) {
			continue
		}
		adj, err := tx.AddAdjustment(id, delta, at, Note)
		if err != nil {
			return Result{}, fmt.Errorf("account %s: %w", id, err)
		}
		log.Info().
			Str("account_id", id).
			Str("delta", delta.String()).
			Str("date", at.String()).
			Msg("reconcile adjustment added")
		res.Adjustments = append(res.Adjustments, adj)
	}
	return res, nil
}
