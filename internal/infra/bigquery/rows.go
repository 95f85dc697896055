package bigquery

import (
	"math/big"
	"slices"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// ExportRow records one completed export. It is written last, so its
// presence means every other table holds the rows for ExportID.
type ExportRow struct {
	ExportID   string    `bigquery:"export_id"`   // REQUIRED
	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
	Currency   string    `bigquery:"currency"`    // REQUIRED

	Accounts     int64 `bigquery:"accounts"`
	Categories   int64 `bigquery:"categories"`
	Transactions int64 `bigquery:"transactions"`
	Snapshots    int64 `bigquery:"snapshots"`

	NetWorth *big.Rat `bigquery:"net_worth"` // REQUIRED NUMERIC
}

type AccountRow struct {
	ExportID  string `bigquery:"export_id"`  // REQUIRED
	AccountID string `bigquery:"account_id"` // REQUIRED

	AccountName string `bigquery:"account_name"` // REQUIRED
	AccountType string `bigquery:"account_type"` // REQUIRED
	Currency    string `bigquery:"currency"`     // REQUIRED
	IsArchived  bool   `bigquery:"is_archived"`

	Balance *big.Rat `bigquery:"balance"` // REQUIRED NUMERIC, signed ledger balance

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type CategoryRow struct {
	ExportID   string `bigquery:"export_id"`   // REQUIRED
	CategoryID string `bigquery:"category_id"` // REQUIRED

	Name string `bigquery:"name"` // REQUIRED
	Kind string `bigquery:"kind"` // REQUIRED

	Emoji bigquery.NullString `bigquery:"emoji"` // NULLABLE
	Color bigquery.NullString `bigquery:"color"` // NULLABLE
}

type TransactionRow struct {
	ExportID      string `bigquery:"export_id"`      // REQUIRED
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionType   string              `bigquery:"transaction_type"`    // REQUIRED
	AccountID         string              `bigquery:"account_id"`          // REQUIRED
	TransferAccountID bigquery.NullString `bigquery:"transfer_account_id"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	// Amount is the stored magnitude, or the signed delta for adjustments.
	Amount     *big.Rat `bigquery:"amount"`      // REQUIRED NUMERIC
	AmountKind string   `bigquery:"amount_kind"` // REQUIRED

	CategoryID   bigquery.NullString `bigquery:"category_id"`   // NULLABLE
	CategoryName bigquery.NullString `bigquery:"category_name"` // NULLABLE

	Note bigquery.NullString `bigquery:"note"` // NULLABLE
	Tags []string            `bigquery:"tags"` // REPEATED STRING

	IsReconcile bool `bigquery:"is_reconcile"`
	IsCashflow  bool `bigquery:"is_cashflow"`

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

type SnapshotRow struct {
	ExportID   string `bigquery:"export_id"`   // REQUIRED
	SnapshotID string `bigquery:"snapshot_id"` // REQUIRED

	SnapshotDate civil.Date `bigquery:"snapshot_date"` // REQUIRED

	BankCash    *big.Rat `bigquery:"bank_cash"`   // REQUIRED NUMERIC
	Investments *big.Rat `bigquery:"investments"` // REQUIRED NUMERIC
	CreditUsed  *big.Rat `bigquery:"credit_used"` // REQUIRED NUMERIC
	NetWorth    *big.Rat `bigquery:"net_worth"`   // REQUIRED NUMERIC

	// Metadata only, so float precision is acceptable.
	CreditAvailable bigquery.NullFloat64 `bigquery:"credit_available"` // NULLABLE

	Revision  int64     `bigquery:"revision"`   // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

type SnapshotBalanceRow struct {
	ExportID   string   `bigquery:"export_id"`   // REQUIRED
	SnapshotID string   `bigquery:"snapshot_id"` // REQUIRED
	AccountID  string   `bigquery:"account_id"`  // REQUIRED
	Balance    *big.Rat `bigquery:"balance"`     // REQUIRED NUMERIC
}

// Rows is one export's worth of rows, grouped by table.
type Rows struct {
	Export           *ExportRow
	Accounts         []*AccountRow
	Categories       []*CategoryRow
	Transactions     []*TransactionRow
	Snapshots        []*SnapshotRow
	SnapshotBalances []*SnapshotBalanceRow
}

// BuildRows flattens st into rows tagged with exportID.
func BuildRows(st domain.State, exportID, currency string, exportedAt time.Time) Rows {
	view := balance.NewView(st)
	balances := make(map[string]decimal.Decimal, len(st.Accounts))
	for _, ab := range view.Balances() {
		balances[ab.Account.ID] = ab.Balance
	}

	categoryNames := make(map[string]string, len(st.Categories))
	for _, c := range st.Categories {
		categoryNames[c.ID] = c.Name
	}

	rows := Rows{
		Export: &ExportRow{
			ExportID:     exportID,
			ExportedTS:   exportedAt,
			Currency:     currency,
			Accounts:     int64(len(st.Accounts)),
			Categories:   int64(len(st.Categories)),
			Transactions: int64(len(st.Transactions)),
			Snapshots:    int64(len(st.Snapshots)),
			NetWorth:     view.NetWorth().Rat(),
		},
	}

	for _, a := range st.Accounts {
		rows.Accounts = append(rows.Accounts, &AccountRow{
			ExportID:    exportID,
			AccountID:   a.ID,
			AccountName: a.Name,
			AccountType: string(a.Type),
			Currency:    a.Currency,
			IsArchived:  a.Archived,
			Balance:     balances[a.ID].Rat(),
			CreatedTS:   a.CreatedAt,
		})
	}

	for _, c := range st.Categories {
		rows.Categories = append(rows.Categories, &CategoryRow{
			ExportID:   exportID,
			CategoryID: c.ID,
			Name:       c.Name,
			Kind:       string(c.Kind),
			Emoji:      nullString(c.Emoji),
			Color:      nullString(c.Color),
		})
	}

	for _, t := range st.Transactions {
		row := &TransactionRow{
			ExportID:          exportID,
			TransactionID:     t.ID,
			TransactionType:   string(t.Type),
			AccountID:         t.AccountID,
			TransferAccountID: nullString(t.TransferAccountID),
			TransactionDate:   t.Date,
			Amount:            t.Amount.Value.Rat(),
			AmountKind:        string(t.Amount.Kind),
			CategoryID:        nullString(t.CategoryID),
			CategoryName:      nullString(categoryNames[t.CategoryID]),
			Note:              nullString(t.Note),
			Tags:              slices.Clone(t.Tags),
			IsReconcile:       t.IsReconcile,
			IsCashflow:        t.IsCashflow(),
			CreatedTS:         t.CreatedAt,
		}
		if t.UpdatedAt != nil {
			row.UpdatedTS = bigquery.NullTimestamp{Timestamp: *t.UpdatedAt, Valid: true}
		}
		rows.Transactions = append(rows.Transactions, row)
	}

	for _, s := range st.Snapshots {
		row := &SnapshotRow{
			ExportID:     exportID,
			SnapshotID:   s.ID,
			SnapshotDate: s.Date,
			BankCash:     s.BankCash.Rat(),
			Investments:  s.Investments.Rat(),
			CreditUsed:   s.CreditUsed.Rat(),
			NetWorth:     s.NetWorth().Rat(),
			Revision:     int64(s.Revision),
			UpdatedTS:    s.UpdatedAt,
		}
		if s.CreditAvailable.Valid {
			row.CreditAvailable = bigquery.NullFloat64{Float64: s.CreditAvailable.Decimal.InexactFloat64(), Valid: true}
		}
		rows.Snapshots = append(rows.Snapshots, row)

		accountIDs := make([]string, 0, len(s.AccountBalances))
		for id := range s.AccountBalances {
			accountIDs = append(accountIDs, id)
		}
		slices.Sort(accountIDs)
		for _, id := range accountIDs {
			rows.SnapshotBalances = append(rows.SnapshotBalances, &SnapshotBalanceRow{
				ExportID:   exportID,
				SnapshotID: s.ID,
				AccountID:  id,
				Balance:    s.AccountBalances[id].Rat(),
			})
		}
	}

	return rows
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
