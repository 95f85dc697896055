// Package bigquery exports ledger snapshots to BigQuery for analytics.
//
// Every export appends a full copy of the ledger to the tables below, tagged
// with a fresh export_id. Readers pick the latest complete export from the
// exports table.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist"
)

const (
	exportsTable          = "exports"
	accountsTable         = "accounts"
	categoriesTable       = "categories"
	transactionsTable     = "transactions"
	snapshotsTable        = "snapshots"
	snapshotBalancesTable = "snapshot_balances"
)

// putFunc streams rows into one table.
type putFunc func(ctx context.Context, table string, rows any) error

// Exporter is a persist.Saver that appends each saved state to BigQuery.
type Exporter struct {
	client   *bigquery.Client
	project  string
	dataset  string
	currency string

	put   putFunc
	now   func() time.Time
	newID func() string
}

// NewExporter creates an Exporter writing to project.dataset. The client is
// owned by the caller.
func NewExporter(client *bigquery.Client, project, dataset, currency string) *Exporter {
	e := &Exporter{
		client:   client,
		project:  project,
		dataset:  dataset,
		currency: currency,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	e.put = func(ctx context.Context, table string, rows any) error {
		return client.DatasetInProject(project, dataset).Table(table).Inserter().Put(ctx, rows)
	}
	return e
}

// Save writes st as a new export. The exports row goes last.
func (e *Exporter) Save(ctx context.Context, st domain.State) error {
	exportID := e.newID()
	rows := BuildRows(st, exportID, e.currency, e.now().UTC())

	batches := []struct {
		table string
		rows  any
		n     int
	}{
		{accountsTable, rows.Accounts, len(rows.Accounts)},
		{categoriesTable, rows.Categories, len(rows.Categories)},
		{transactionsTable, rows.Transactions, len(rows.Transactions)},
		{snapshotsTable, rows.Snapshots, len(rows.Snapshots)},
		{snapshotBalancesTable, rows.SnapshotBalances, len(rows.SnapshotBalances)},
		{exportsTable, rows.Export, 1},
	}
	for _, b := range batches {
		if b.n == 0 {
			continue
		}
		if err := e.put(ctx, b.table, b.rows); err != nil {
			return fmt.Errorf("Exporter.Save: inserting %s: %w", b.table, err)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("export_id", exportID).
		Int("transactions", len(rows.Transactions)).
		Msg("ledger exported to bigquery")
	return nil
}

// LatestExportID returns the id of the most recent complete export, or "" if
// nothing has been exported yet.
func (e *Exporter) LatestExportID(ctx context.Context) (string, error) {
	q := e.client.Query(fmt.Sprintf(
		"SELECT export_id FROM `%s.%s.%s` ORDER BY exported_ts DESC LIMIT 1",
		e.project, e.dataset, exportsTable))

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("LatestExportID: query read: %w", err)
	}

	var row struct {
		ExportID string `bigquery:"export_id"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("LatestExportID: iter next: %w", err)
	}
	return row.ExportID, nil
}

// EnsureTables creates any missing export table with a schema inferred from
// its row type.
func (e *Exporter) EnsureTables(ctx context.Context) error {
	log := logger.FromContext(ctx)
	ds := e.client.DatasetInProject(e.project, e.dataset)

	for table, row := range tableRows() {
		t := ds.Table(table)
		_, err := t.Metadata(ctx)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return fmt.Errorf("EnsureTables: %s metadata: %w", table, err)
		}
		schema, err := bigquery.InferSchema(row)
		if err != nil {
			return fmt.Errorf("EnsureTables: %s schema: %w", table, err)
		}
		if err := t.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return fmt.Errorf("EnsureTables: creating %s: %w", table, err)
		}
		log.Info().Str("table", table).Msg("bigquery table created")
	}
	return nil
}

func tableRows() map[string]any {
	return map[string]any{
		exportsTable:          ExportRow{},
		accountsTable:         AccountRow{},
		categoriesTable:       CategoryRow{},
		transactionsTable:     TransactionRow{},
		snapshotsTable:        SnapshotRow{},
		snapshotBalancesTable: SnapshotBalanceRow{},
	}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

var _ persist.Saver = (*Exporter)(nil)
