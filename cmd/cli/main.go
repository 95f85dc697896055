package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/persist/backend"
)

// errUsage marks a bad invocation; main prints the usage text for it.
var errUsage = errors.New("usage")

func main() {
	log := logger.New()
	if err := run(os.Args[1:], os.Stdout, log); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Finance Ledger CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  cli <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  init       Save the starter accounts and categories")
	fmt.Fprintln(w, "  account    add | list | archive | delete accounts")
	fmt.Fprintln(w, "  category   add | list | delete categories")
	fmt.Fprintln(w, "  txn        add | list | delete transactions")
	fmt.Fprintln(w, "  snapshot   add | list | drift | delete snapshots")
	fmt.Fprintln(w, "  reconcile  Post adjustments so balances match targets")
	fmt.Fprintln(w, "  balances   Show every account balance and net worth")
	fmt.Fprintln(w, "  networth   Show net worth on a date")
	fmt.Fprintln(w, "  summary    Show a month's income, expenses and savings rate")
	fmt.Fprintln(w, "  series     Print the net worth or cashflow series")
	fmt.Fprintln(w, "  backup     Write the ledger to a JSON envelope file")
	fmt.Fprintln(w, "  restore    Replace the ledger from a JSON envelope file")
	fmt.Fprintln(w, "  export     Push the ledger to the configured GCS and BigQuery sinks")
	fmt.Fprintln(w, "  help       Show this help message")
	fmt.Fprintln(w, "\nStorage follows LEDGER_STORAGE and friends; run 'cli <command> -h' for options.")
}

// session is an opened ledger plus the backend it was loaded from.
type session struct {
	ctx   context.Context
	cfg   config.Config
	be    *backend.Backend
	store *ledger.Store
	out   io.Writer
}

type command func(s *session, args []string) error

var commands = map[string]command{
	"init":      runInit,
	"account":   runAccount,
	"category":  runCategory,
	"txn":       runTxn,
	"snapshot":  runSnapshot,
	"reconcile": runReconcile,
	"balances":  runBalances,
	"networth":  runNetWorth,
	"summary":   runSummary,
	"series":    runSeries,
	"backup":    runBackup,
	"restore":   runRestore,
	"export":    runExport,
}

func run(args []string, out io.Writer, log zerolog.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log = log.Level(logger.ParseLevel(cfg.LogLevel))
	ctx := logger.WithContext(context.Background(), log)

	be, err := backend.OpenPrimary(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	opts := []ledger.Option{ledger.WithCurrency(cfg.Currency)}
	if cfg.SeedDefault {
		opts = append(opts, ledger.WithDefaults())
	}
	store := ledger.New(opts...)
	fresh, err := be.Restore(ctx, store)
	if err != nil {
		return err
	}
	loaded := store.Version()

	s := &session{ctx: ctx, cfg: cfg, be: be, store: store, out: out}
	if err := cmd(s, args[1:]); err != nil {
		return err
	}

	// Commands that committed, and the first run against an empty backend,
	// write the ledger back.
	if store.Version() == loaded && !fresh {
		return nil
	}
	if err := be.Primary.Save(ctx, store.State()); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	log.Debug().Uint64("version", store.Version()).Str("storage", cfg.Storage).Msg("Ledger saved")
	return nil
}
