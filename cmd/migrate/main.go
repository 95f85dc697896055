package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"cloud.google.com/go/bigquery"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/finance-ledger/internal/config"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist/sqlite"
)

const (
	targetSQLite   = "sqlite"
	targetBigQuery = "bigquery"
)

type options struct {
	target  string
	dbPath  string
	project string
	dataset string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var opts options
	flag.StringVar(&opts.target, "target", targetSQLite, "what to migrate: sqlite or bigquery")
	flag.StringVar(&opts.dbPath, "db", cfg.SQLitePath, "SQLite database path (or set LEDGER_SQLITE_PATH)")
	flag.StringVar(&opts.project, "project", cfg.BigQueryProject, "GCP project ID for the BigQuery export (or set BIGQUERY_PROJECT)")
	flag.StringVar(&opts.dataset, "dataset", cfg.BigQueryDataset, "BigQuery dataset ID (or set BIGQUERY_DATASET)")
	flag.Parse()

	ctx := logger.WithContext(context.Background(), logger.NewWithLevel(cfg.LogLevel))
	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	switch opts.target {
	case targetSQLite:
		return migrateSQLite(ctx, opts.dbPath, out)
	case targetBigQuery:
		return migrateBigQuery(ctx, opts.project, opts.dataset, out)
	default:
		return fmt.Errorf("unknown target %q (want %s or %s)", opts.target, targetSQLite, targetBigQuery)
	}
}

// migrateSQLite applies the embedded schema migrations to the database at
// path, creating it when missing.
func migrateSQLite(ctx context.Context, path string, out io.Writer) error {
	if path == "" {
		return fmt.Errorf("-db is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	version, err := sqlite.Migrate(ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "SQLite schema at %s is at version %d\n", path, version)
	return nil
}

// migrateBigQuery creates any missing export tables.
func migrateBigQuery(ctx context.Context, project, dataset string, out io.Writer) error {
	if project == "" {
		return fmt.Errorf("-project is required for the bigquery target")
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return fmt.Errorf("bigquery client: %w", err)
	}
	defer client.Close()

	fmt.Fprintf(out, "Connected to BigQuery project: %s, dataset: %s\n", project, dataset)
	exporter := infraBQ.NewExporter(client, project, dataset, "")
	if err := exporter.EnsureTables(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Export tables are up to date.")
	return nil
}
