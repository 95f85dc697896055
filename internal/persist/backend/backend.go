// Package backend opens the persistence collaborators named by the
// configuration: the primary store the ledger loads from, plus the optional
// Cloud Storage backup and BigQuery export sinks that receive every save.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"

	"github.com/dvloznov/finance-ledger/internal/config"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist"
	"github.com/dvloznov/finance-ledger/internal/persist/gcs"
	"github.com/dvloznov/finance-ledger/internal/persist/jsonfile"
	"github.com/dvloznov/finance-ledger/internal/persist/sqlite"
)

// Backend is the primary store and the sinks a save fans out to.
type Backend struct {
	// Primary is loaded at startup and saved first.
	Primary persist.Persister
	// Backup is the Cloud Storage copy, nil when GCS_BUCKET is unset.
	Backup *gcs.Store
	// Export is the BigQuery sink, nil when BIGQUERY_PROJECT is unset.
	Export *infraBQ.Exporter

	closers []func() error
}

// Open creates the primary store for cfg.Storage and, when configured, the
// cloud sinks. Close releases whatever was opened.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	b := &Backend{}
	primary, err := b.openPrimary(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Primary = primary

	if err := b.openSinks(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// OpenPrimary opens only the primary store, for tools that never write to
// the cloud sinks.
func OpenPrimary(ctx context.Context, cfg config.Config) (*Backend, error) {
	b := &Backend{}
	primary, err := b.openPrimary(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Primary = primary
	return b, nil
}

func (b *Backend) openPrimary(ctx context.Context, cfg config.Config) (persist.Persister, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return &persist.Memory{}, nil
	case config.StorageJSON:
		return jsonfile.New(cfg.JSONPath), nil
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("backend.Open: %w", err)
		}
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("backend.Open: %w", err)
		}
		b.closers = append(b.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("backend.Open: unknown storage %q", cfg.Storage)
	}
}

func (b *Backend) openSinks(ctx context.Context, cfg config.Config) error {
	log := logger.FromContext(ctx)

	if cfg.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("backend.Open: storage client: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.Backup = gcs.New(client, cfg.GCSBucket, cfg.GCSObject)
		log.Info().Str("uri", b.Backup.URI()).Msg("Cloud Storage backups enabled")
	}

	if cfg.BigQueryProject != "" {
		client, err := bigquery.NewClient(ctx, cfg.BigQueryProject)
		if err != nil {
			return fmt.Errorf("backend.Open: bigquery client: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.Export = infraBQ.NewExporter(client, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.Currency)
		if err := b.Export.EnsureTables(ctx); err != nil {
			return fmt.Errorf("backend.Open: %w", err)
		}
		log.Info().
			Str("project", cfg.BigQueryProject).
			Str("dataset", cfg.BigQueryDataset).
			Msg("BigQuery export enabled")
	}
	return nil
}

// Restore loads the primary store's state into store. A backend with
// nothing saved yet leaves store as constructed and reports fresh.
func (b *Backend) Restore(ctx context.Context, store *ledger.Store) (fresh bool, err error) {
	st, err := b.Primary.Load(ctx)
	if errors.Is(err, persist.ErrNoState) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("backend.Restore: %w", err)
	}
	if err := store.Load(ctx, st); err != nil {
		return false, fmt.Errorf("backend.Restore: %w", err)
	}
	return false, nil
}

// Saver fans a save out to the primary store first, then the backup, then
// the export.
func (b *Backend) Saver() persist.Saver {
	m := persist.Multi{b.Primary}
	if b.Backup != nil {
		m = append(m, b.Backup)
	}
	if b.Export != nil {
		m = append(m, b.Export)
	}
	return m
}

// Close releases clients and database handles in reverse opening order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
