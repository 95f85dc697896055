package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/storage"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/persist"
	"github.com/dvloznov/finance-ledger/internal/persist/backend"
	"github.com/dvloznov/finance-ledger/internal/persist/gcs"
	"github.com/dvloznov/finance-ledger/internal/reconcile"
	"github.com/dvloznov/finance-ledger/internal/series"
)

// Flag helpers

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func dateFlag(fs *flag.FlagSet, name, usage string) *civil.Date {
	d := new(civil.Date)
	fs.Func(name, usage+" (YYYY-MM-DD)", func(s string) error {
		v, err := domain.ParseDate(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	})
	return d
}

func decimalFlag(fs *flag.FlagSet, name, usage string) *decimal.Decimal {
	d := new(decimal.Decimal)
	fs.Func(name, usage, func(s string) error {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	})
	return d
}

// targetsFlag collects repeated -target account-id=amount pairs.
func targetsFlag(fs *flag.FlagSet) map[string]decimal.Decimal {
	targets := make(map[string]decimal.Decimal)
	fs.Func("target", "account-id=balance; repeat per account", func(s string) error {
		id, amount, ok := strings.Cut(s, "=")
		if !ok || id == "" {
			return fmt.Errorf("want account-id=balance, got %q", s)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return err
		}
		targets[id] = v
		return nil
	})
	return targets
}

func (s *session) today() civil.Date { return civil.DateOf(time.Now()) }

func orToday(s *session, d civil.Date) civil.Date {
	if d.IsValid() {
		return d
	}
	return s.today()
}

func subcommand(args []string, name string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: %s needs a subcommand", errUsage, name)
	}
	return args[0], args[1:], nil
}

func table(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

// init

func runInit(s *session, args []string) error {
	fs := newFlagSet("init", s.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(s.store.Accounts()) > 0 || len(s.store.Categories()) > 0 {
		fmt.Fprintf(s.out, "Ledger already holds %d accounts and %d categories.\n",
			len(s.store.Accounts()), len(s.store.Categories()))
		return nil
	}
	seed := domain.State{
		Accounts:   ledger.SeedAccounts(s.store.Currency(), time.Now()),
		Categories: ledger.DefaultCategories(),
	}
	if err := s.store.Load(s.ctx, seed); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	fmt.Fprintf(s.out, "Initialised ledger with %d accounts and %d categories.\n",
		len(s.store.Accounts()), len(s.store.Categories()))
	return nil
}

// account

func runAccount(s *session, args []string) error {
	sub, rest, err := subcommand(args, "account")
	if err != nil {
		return err
	}
	fs := newFlagSet("account "+sub, s.out)
	switch sub {
	case "add":
		name := fs.String("name", "", "account name")
		typ := fs.String("type", string(domain.AccountBank), "cash, bank, credit, savings or investment")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		a, err := s.store.AddAccount(s.ctx, ledger.AccountInput{Name: *name, Type: domain.AccountType(*typ)})
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Created account %s (%s)\n", a.ID, a.Name)
	case "list":
		all := fs.Bool("all", false, "include archived accounts")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		accounts := s.store.ActiveAccounts()
		if *all {
			accounts = s.store.Accounts()
		}
		tw := table(s.out)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCURRENCY\tARCHIVED")
		for _, a := range accounts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", a.ID, a.Name, a.Type, a.Currency, a.Archived)
		}
		return tw.Flush()
	case "archive":
		id := fs.String("id", "", "account id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		archived := true
		if _, err := s.store.UpdateAccount(s.ctx, *id, ledger.AccountPatch{Archived: &archived}); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Archived account %s\n", *id)
	case "delete":
		id := fs.String("id", "", "account id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := s.store.DeleteAccount(s.ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Deleted account %s and its transactions\n", *id)
	default:
		return fmt.Errorf("%w: unknown account subcommand %q", errUsage, sub)
	}
	return nil
}

// category

func runCategory(s *session, args []string) error {
	sub, rest, err := subcommand(args, "category")
	if err != nil {
		return err
	}
	fs := newFlagSet("category "+sub, s.out)
	switch sub {
	case "add":
		name := fs.String("name", "", "category name")
		kind := fs.String("kind", string(domain.CategoryExpense), "income or expense")
		emoji := fs.String("emoji", "", "display emoji")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		c, err := s.store.AddCategory(s.ctx, ledger.CategoryInput{Name: *name, Kind: domain.CategoryKind(*kind), Emoji: *emoji})
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Created category %s (%s)\n", c.ID, c.Name)
	case "list":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		tw := table(s.out)
		fmt.Fprintln(tw, "ID\tNAME\tKIND")
		for _, c := range s.store.Categories() {
			fmt.Fprintf(tw, "%s\t%s %s\t%s\n", c.ID, c.Emoji, c.Name, c.Kind)
		}
		return tw.Flush()
	case "delete":
		id := fs.String("id", "", "category id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := s.store.DeleteCategory(s.ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Deleted category %s\n", *id)
	default:
		return fmt.Errorf("%w: unknown category subcommand %q", errUsage, sub)
	}
	return nil
}

// txn

func runTxn(s *session, args []string) error {
	sub, rest, err := subcommand(args, "txn")
	if err != nil {
		return err
	}
	fs := newFlagSet("txn "+sub, s.out)
	switch sub {
	case "add":
		typ := fs.String("type", string(domain.TxnExpense), "income, expense, transfer, invest or debt")
		account := fs.String("account", "", "account id")
		to := fs.String("to", "", "destination account id for transfer, invest and debt")
		amount := decimalFlag(fs, "amount", "positive amount")
		category := fs.String("category", "", "category id")
		note := fs.String("note", "", "free-text note")
		date := dateFlag(fs, "date", "transaction date, default today")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		t, err := s.store.AddTransaction(s.ctx, ledger.TransactionInput{
			Type:              domain.TxnType(*typ),
			AccountID:         *account,
			TransferAccountID: *to,
			Amount:            *amount,
			CategoryID:        *category,
			Note:              *note,
			Date:              orToday(s, *date),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Recorded %s %s on %s (%s)\n", t.Type, t.Amount.Value, t.Date, t.ID)
	case "list":
		account := fs.String("account", "", "only transactions touching this account")
		typ := fs.String("type", "", "only this transaction type")
		month := dateFlag(fs, "month", "any day in the wanted month")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		txns := s.store.Transactions(ledger.TransactionFilter{AccountID: *account, Type: domain.TxnType(*typ), Month: *month})
		tw := table(s.out)
		fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tACCOUNT\tTO\tNOTE\tID")
		for _, t := range txns {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", t.Date, t.Type, t.Amount.Value, t.AccountID, t.TransferAccountID, t.Note, t.ID)
		}
		return tw.Flush()
	case "delete":
		id := fs.String("id", "", "transaction id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := s.store.DeleteTransaction(s.ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Deleted transaction %s\n", *id)
	default:
		return fmt.Errorf("%w: unknown txn subcommand %q", errUsage, sub)
	}
	return nil
}

// snapshot

func runSnapshot(s *session, args []string) error {
	sub, rest, err := subcommand(args, "snapshot")
	if err != nil {
		return err
	}
	fs := newFlagSet("snapshot "+sub, s.out)
	switch sub {
	case "add":
		date := dateFlag(fs, "date", "snapshot date, default today")
		bankCash := decimalFlag(fs, "bank-cash", "cash and bank total")
		investments := decimalFlag(fs, "investments", "investments total")
		creditUsed := decimalFlag(fs, "credit-used", "amount owed on credit accounts")
		targets := targetsFlag(fs)
		sync := fs.Bool("sync", false, "reconcile the -target accounts before recording")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		in := ledger.SnapshotInput{
			Date:        orToday(s, *date),
			BankCash:    *bankCash,
			Investments: *investments,
			CreditUsed:  *creditUsed,
		}
		var snap domain.Snapshot
		if *sync {
			var res reconcile.Result
			snap, res, err = reconcile.New(s.store).SnapshotWithSync(s.ctx, in.Date, targets, in)
			if err == nil {
				fmt.Fprintf(s.out, "Posted %d adjustments\n", len(res.Adjustments))
			}
		} else {
			if len(targets) > 0 {
				in.AccountBalances = targets
			}
			snap, err = s.store.AddSnapshot(s.ctx, in)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Recorded snapshot %s on %s, net worth %s\n", snap.ID, snap.Date, snap.NetWorth())
	case "list":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		tw := table(s.out)
		fmt.Fprintln(tw, "DATE\tBANK+CASH\tINVESTMENTS\tCREDIT USED\tNET WORTH\tID")
		for _, snap := range s.store.Snapshots() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", snap.Date, snap.BankCash, snap.Investments, snap.CreditUsed, snap.NetWorth(), snap.ID)
		}
		return tw.Flush()
	case "drift":
		id := fs.String("id", "", "snapshot id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		view := balance.New(s.store).View()
		for _, snap := range view.State().Snapshots {
			if snap.ID == *id {
				d := view.SnapshotDrift(snap)
				fmt.Fprintf(s.out, "%s: expected %s, entered %s, difference %s\n", d.Date, d.Expected, d.Entered, d.Difference)
				return nil
			}
		}
		return &ledger.NotFoundError{Kind: "snapshot", ID: *id}
	case "delete":
		id := fs.String("id", "", "snapshot id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := s.store.DeleteSnapshot(s.ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Deleted snapshot %s\n", *id)
	default:
		return fmt.Errorf("%w: unknown snapshot subcommand %q", errUsage, sub)
	}
	return nil
}

// reconcile

func runReconcile(s *session, args []string) error {
	fs := newFlagSet("reconcile", s.out)
	date := dateFlag(fs, "date", "reconcile date, default today")
	targets := targetsFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: reconcile needs at least one -target", errUsage)
	}
	res, err := reconcile.New(s.store).ReconcileAccountsAt(s.ctx, orToday(s, *date), targets)
	if err != nil {
		return err
	}
	for _, t := range res.Adjustments {
		fmt.Fprintf(s.out, "Adjusted %s by %s\n", t.AccountID, t.Amount.Value)
	}
	for _, id := range res.Skipped {
		fmt.Fprintf(s.out, "Skipped unknown account %s\n", id)
	}
	if len(res.Adjustments) == 0 {
		fmt.Fprintln(s.out, "Balances already match.")
	}
	return nil
}

// Reports

func runBalances(s *session, args []string) error {
	fs := newFlagSet("balances", s.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	view := balance.New(s.store).View()
	tw := table(s.out)
	fmt.Fprintln(tw, "ACCOUNT\tTYPE\tBALANCE")
	for _, b := range view.Balances() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Account.Name, b.Account.Type, b.Balance.StringFixed(2))
	}
	fmt.Fprintf(tw, "Net worth\t\t%s\n", view.NetWorth().StringFixed(2))
	return tw.Flush()
}

func runNetWorth(s *session, args []string) error {
	fs := newFlagSet("networth", s.out)
	at := dateFlag(fs, "at", "as-of date, default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	day := orToday(s, *at)
	view := balance.New(s.store).View()
	fmt.Fprintf(s.out, "Net worth on %s: %s %s\n", day, view.NetWorthAt(day).StringFixed(2), s.store.Currency())
	if snap, ok := view.LatestSnapshotOnOrBefore(day); ok {
		fmt.Fprintf(s.out, "Anchored on snapshot %s (%s)\n", snap.ID, snap.Date)
	}
	return nil
}

func runSummary(s *session, args []string) error {
	fs := newFlagSet("summary", s.out)
	month := dateFlag(fs, "month", "any day in the month, default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sum := balance.New(s.store).View().Summary(orToday(s, *month))
	fmt.Fprintf(s.out, "%d-%02d\n", sum.Month.Year, sum.Month.Month)
	fmt.Fprintf(s.out, "  Income:       %s\n", sum.Income.StringFixed(2))
	fmt.Fprintf(s.out, "  Expenses:     %s\n", sum.Expenses.StringFixed(2))
	fmt.Fprintf(s.out, "  Net:          %s\n", sum.Net.StringFixed(2))
	fmt.Fprintf(s.out, "  Savings rate: %.1f%%\n", sum.SavingsRate*100)
	return nil
}

func runSeries(s *session, args []string) error {
	fs := newFlagSet("series", s.out)
	kind := fs.String("kind", "networth", "networth or cashflow")
	rangeKey := fs.String("range", string(series.Range12M), "1M, 6M, 12M, 24M or ALL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := series.ParseRangeKey(*rangeKey)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	from, to, err := series.Window(key, s.today())
	if err != nil {
		return err
	}

	gen := series.New(balance.New(s.store))
	tw := table(s.out)
	switch *kind {
	case "networth":
		fmt.Fprintln(tw, "DATE\tNET WORTH")
		for _, p := range gen.NetWorthSeries(from, to) {
			fmt.Fprintf(tw, "%s\t%s\n", p.Date, p.Value.StringFixed(2))
		}
	case "cashflow":
		fmt.Fprintln(tw, "MONTH\tINCOME\tEXPENSE\tNET")
		for _, p := range gen.CashflowSeries(from, to) {
			fmt.Fprintf(tw, "%d-%02d\t%s\t%s\t%s\n", p.Month.Year, p.Month.Month, p.Income.StringFixed(2), p.Expense.StringFixed(2), p.Net.StringFixed(2))
		}
	default:
		return fmt.Errorf("%w: unknown series kind %q", errUsage, *kind)
	}
	return tw.Flush()
}

// Backup and restore

func runBackup(s *session, args []string) error {
	fs := newFlagSet("backup", s.out)
	path := fs.String("out", "", "envelope file to write, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: backup needs -out", errUsage)
	}
	if *path == "-" {
		return persist.Encode(s.out, s.store.State(), time.Now())
	}
	f, err := os.Create(*path)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if err := persist.Encode(f, s.store.State(), time.Now()); err != nil {
		f.Close()
		return fmt.Errorf("backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	fmt.Fprintf(s.out, "Wrote ledger version %d to %s\n", s.store.Version(), *path)
	return nil
}

func runRestore(s *session, args []string) error {
	fs := newFlagSet("restore", s.out)
	path := fs.String("in", "", "envelope file to read, or a gs://bucket/object backup")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: restore needs -in", errUsage)
	}

	var st domain.State
	if strings.HasPrefix(*path, "gs://") {
		bucket, object, err := gcs.ParseURI(*path)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		client, err := storage.NewClient(s.ctx)
		if err != nil {
			return fmt.Errorf("restore: storage client: %w", err)
		}
		defer client.Close()
		if st, err = gcs.New(client, bucket, object).Load(s.ctx); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	} else {
		f, err := os.Open(*path)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		defer f.Close()
		env, err := persist.Decode(f)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		st = env.State
	}

	if err := s.store.Load(s.ctx, st); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	fmt.Fprintf(s.out, "Restored %d accounts and %d transactions from %s\n",
		len(st.Accounts), len(st.Transactions), *path)
	return nil
}

// export pushes the current ledger to the cloud sinks once.
func runExport(s *session, args []string) error {
	fs := newFlagSet("export", s.out)
	uri := fs.String("gcs-uri", "", "backup object, overriding GCS_BUCKET and GCS_OBJECT")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uri != "" {
		bucket, object, err := gcs.ParseURI(*uri)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		s.cfg.GCSBucket, s.cfg.GCSObject = bucket, object
	}
	if s.cfg.GCSBucket == "" && s.cfg.BigQueryProject == "" {
		return fmt.Errorf("%w: set GCS_BUCKET or BIGQUERY_PROJECT to export", errUsage)
	}
	sinks, err := backend.Open(s.ctx, s.cfg)
	if err != nil {
		return err
	}
	defer sinks.Close()

	st := s.store.State()
	if sinks.Backup != nil {
		if err := sinks.Backup.Save(s.ctx, st); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Uploaded backup to %s\n", sinks.Backup.URI())
	}
	if sinks.Export != nil {
		if err := sinks.Export.Save(s.ctx, st); err != nil {
			return err
		}
		id, err := sinks.Export.LatestExportID(s.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Exported to BigQuery as %s\n", id)
	}
	return nil
}
