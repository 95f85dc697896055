package ledger

import (
	"context"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

// AddAccount creates an account with a generated id and createdAt.
func (s *Store) AddAccount(ctx context.Context, in AccountInput) (domain.Account, error) {
	return commit(ctx, s, "add_account", func(w *writer) (domain.Account, error) {
		return w.addAccount(in)
	})
}

// UpdateAccount merges the patch into the account with the given id.
func (s *Store) UpdateAccount(ctx context.Context, id string, p AccountPatch) (domain.Account, error) {
	return commit(ctx, s, "update_account", func(w *writer) (domain.Account, error) {
		return w.updateAccount(id, p)
	})
}

// DeleteAccount removes the account and cascades to every transaction that
// references it on either side.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	removed, err := commit(ctx, s, "delete_account", func(w *writer) (int, error) {
		return w.deleteAccount(id)
	})
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", id).
		Int("transactions_removed", removed).
		Msg("account deleted")
	return nil
}

func (s *Store) AddCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	return commit(ctx, s, "add_category", func(w *writer) (domain.Category, error) {
		return w.addCategory(in)
	})
}

// UpdateCategory merges the patch. Changing the kind of a category that
// transactions still reference is rejected.
func (s *Store) UpdateCategory(ctx context.Context, id string, p CategoryPatch) (domain.Category, error) {
	return commit(ctx, s, "update_category", func(w *writer) (domain.Category, error) {
		return w.updateCategory(id, p)
	})
}

// DeleteCategory removes the category and clears categoryId on the
// transactions that used it.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	detached, err := commit(ctx, s, "delete_category", func(w *writer) (int, error) {
		return w.deleteCategory(id)
	})
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("category_id", id).
		Int("transactions_detached", detached).
		Msg("category deleted")
	return nil
}

// AddTransaction validates and appends a user transaction. Adjustments are
// rejected here; they come from reconciliation through Batch.
func (s *Store) AddTransaction(ctx context.Context, in TransactionInput) (domain.Transaction, error) {
	return commit(ctx, s, "add_transaction", func(w *writer) (domain.Transaction, error) {
		return w.addTransaction(in)
	})
}

// UpdateTransaction re-validates the merged transaction and sets updatedAt.
func (s *Store) UpdateTransaction(ctx context.Context, id string, p TransactionPatch) (domain.Transaction, error) {
	return commit(ctx, s, "update_transaction", func(w *writer) (domain.Transaction, error) {
		return w.updateTransaction(id, p)
	})
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	_, err := commit(ctx, s, "delete_transaction", func(w *writer) (struct{}, error) {
		return struct{}{}, w.deleteTransaction(id)
	})
	return err
}

// AddSnapshot stores a checkpoint, deriving totals from AccountBalances
// when given, and keeps snapshots sorted by date.
func (s *Store) AddSnapshot(ctx context.Context, in SnapshotInput) (domain.Snapshot, error) {
	return commit(ctx, s, "add_snapshot", func(w *writer) (domain.Snapshot, error) {
		return w.addSnapshot(in)
	})
}

func (s *Store) UpdateSnapshot(ctx context.Context, id string, p SnapshotPatch) (domain.Snapshot, error) {
	return commit(ctx, s, "update_snapshot", func(w *writer) (domain.Snapshot, error) {
		return w.updateSnapshot(id, p)
	})
}

func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	_, err := commit(ctx, s, "delete_snapshot", func(w *writer) (struct{}, error) {
		return struct{}{}, w.deleteSnapshot(id)
	})
	return err
}
