package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func insertState(ctx context.Context, db execer, st domain.State) error {
	for i, a := range st.Accounts {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO accounts (id, position, name, type, currency, created_at, archived) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, i, a.Name, string(a.Type), a.Currency, formatTime(a.CreatedAt), a.Archived,
		); err != nil {
			return fmt.Errorf("insert account %s: %w", a.ID, err)
		}
	}
	for i, c := range st.Categories {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO categories (id, position, name, kind, emoji, color) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, i, c.Name, string(c.Kind), c.Emoji, c.Color,
		); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	for i, t := range st.Transactions {
		tags, err := json.Marshal(t.Tags)
		if err != nil {
			return fmt.Errorf("encode tags for %s: %w", t.ID, err)
		}
		var updatedAt sql.NullString
		if t.UpdatedAt != nil {
			updatedAt = sql.NullString{String: formatTime(*t.UpdatedAt), Valid: true}
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO transactions (id, position, type, account_id, transfer_account_id, amount_kind, amount,
				category_id, note, tags, date, created_at, updated_at, is_reconcile)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, i, string(t.Type), t.AccountID, t.TransferAccountID, string(t.Amount.Kind), t.Amount.Value,
			t.CategoryID, t.Note, string(tags), t.Date.String(), formatTime(t.CreatedAt), updatedAt, t.IsReconcile,
		); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	for i, s := range st.Snapshots {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO snapshots (id, position, date, bank_cash, investments, credit_used, credit_available, revision, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, i, s.Date.String(), s.BankCash, s.Investments, s.CreditUsed, s.CreditAvailable, int64(s.Revision), formatTime(s.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", s.ID, err)
		}
		for accountID, bal := range s.AccountBalances {
			if _, err := db.ExecContext(ctx,
				`INSERT INTO snapshot_balances (snapshot_id, account_id, balance) VALUES (?, ?, ?)`,
				s.ID, accountID, bal,
			); err != nil {
				return fmt.Errorf("insert balance %s/%s: %w", s.ID, accountID, err)
			}
		}
	}
	return nil
}

func selectState(ctx context.Context, db querier) (domain.State, error) {
	st := domain.State{}
	var err error
	if st.Accounts, err = selectAccounts(ctx, db); err != nil {
		return domain.State{}, err
	}
	if st.Categories, err = selectCategories(ctx, db); err != nil {
		return domain.State{}, err
	}
	if st.Transactions, err = selectTransactions(ctx, db); err != nil {
		return domain.State{}, err
	}
	if st.Snapshots, err = selectSnapshots(ctx, db); err != nil {
		return domain.State{}, err
	}
	return st, nil
}

func selectAccounts(ctx context.Context, db querier) ([]domain.Account, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, type, currency, created_at, archived FROM accounts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	out := []domain.Account{}
	for rows.Next() {
		var (
			a       domain.Account
			typ     string
			created string
		)
		if err := rows.Scan(&a.ID, &a.Name, &typ, &a.Currency, &created, &a.Archived); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Type = domain.AccountType(typ)
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("account %s created_at: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func selectCategories(ctx context.Context, db querier) ([]domain.Category, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, kind, emoji, color FROM categories ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := []domain.Category{}
	for rows.Next() {
		var (
			c    domain.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.Name, &kind, &c.Emoji, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = domain.CategoryKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func selectTransactions(ctx context.Context, db querier) ([]domain.Transaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, type, account_id, transfer_account_id, amount_kind, amount, category_id, note, tags,
			date, created_at, updated_at, is_reconcile
		FROM transactions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		var (
			t                         domain.Transaction
			typ, kind, tags, date, ca string
			ua                        sql.NullString
			amount                    decimal.Decimal
		)
		if err := rows.Scan(&t.ID, &typ, &t.AccountID, &t.TransferAccountID, &kind, &amount,
			&t.CategoryID, &t.Note, &tags, &date, &ca, &ua, &t.IsReconcile); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = domain.TxnType(typ)
		t.Amount = domain.Amount{Kind: domain.AmountKind(kind), Value: amount}
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("transaction %s tags: %w", t.ID, err)
		}
		if t.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s date: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTime(ca); err != nil {
			return nil, fmt.Errorf("transaction %s created_at: %w", t.ID, err)
		}
		if ua.Valid {
			u, err := parseTime(ua.String)
			if err != nil {
				return nil, fmt.Errorf("transaction %s updated_at: %w", t.ID, err)
			}
			t.UpdatedAt = &u
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func selectSnapshots(ctx context.Context, db querier) ([]domain.Snapshot, error) {
	balances, err := selectBalances(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, date, bank_cash, investments, credit_used, credit_available, revision, updated_at
		FROM snapshots ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []domain.Snapshot{}
	for rows.Next() {
		var (
			s             domain.Snapshot
			date, updated string
			revision      int64
		)
		if err := rows.Scan(&s.ID, &date, &s.BankCash, &s.Investments, &s.CreditUsed, &s.CreditAvailable, &revision, &updated); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if s.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("snapshot %s date: %w", s.ID, err)
		}
		if s.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("snapshot %s updated_at: %w", s.ID, err)
		}
		s.Revision = uint64(revision)
		s.AccountBalances = balances[s.ID]
		out = append(out, s)
	}
	return out, rows.Err()
}

func selectBalances(ctx context.Context, db querier) (map[string]map[string]decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx, `SELECT snapshot_id, account_id, balance FROM snapshot_balances`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]decimal.Decimal)
	for rows.Next() {
		var (
			snapshotID, accountID string
			bal                   decimal.Decimal
		)
		if err := rows.Scan(&snapshotID, &accountID, &bal); err != nil {
			return nil, fmt.Errorf("scan snapshot balance: %w", err)
		}
		if out[snapshotID] == nil {
			out[snapshotID] = make(map[string]decimal.Decimal)
		}
		out[snapshotID][accountID] = bal
	}
	return out, rows.Err()
}
