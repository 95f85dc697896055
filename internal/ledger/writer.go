package ledger

import (
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// writer mutates a private working copy of the state. It is only used while
// the store's write lock is held.
type writer struct {
	st       domain.State
	now      time.Time
	newID    func() string
	currency string
	revision uint64
	dirty    bool
}

func (w *writer) nextRevision() uint64 {
	w.revision++
	return w.revision
}

func (w *writer) accountIndex(id string) int {
	return slices.IndexFunc(w.st.Accounts, func(a domain.Account) bool { return a.ID == id })
}

func (w *writer) categoryIndex(id string) int {
	return slices.IndexFunc(w.st.Categories, func(c domain.Category) bool { return c.ID == id })
}

func (w *writer) transactionIndex(id string) int {
	return slices.IndexFunc(w.st.Transactions, func(t domain.Transaction) bool { return t.ID == id })
}

func (w *writer) snapshotIndex(id string) int {
	return slices.IndexFunc(w.st.Snapshots, func(s domain.Snapshot) bool { return s.ID == id })
}

// Accounts

func (w *writer) addAccount(in AccountInput) (domain.Account, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = w.currency
	}
	a := domain.Account{
		ID:        w.newID(),
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Currency:  currency,
		CreatedAt: w.now,
		Archived:  in.Archived,
	}
	if err := validateAccount(a, w.currency); err != nil {
		return domain.Account{}, err
	}
	w.st.Accounts = append(w.st.Accounts, a)
	w.dirty = true
	return a, nil
}

func (w *writer) updateAccount(id string, p AccountPatch) (domain.Account, error) {
	i := w.accountIndex(id)
	if i < 0 {
		return domain.Account{}, notFound("account", id)
	}
	a := w.st.Accounts[i]
	if p.Name != nil {
		a.Name = strings.TrimSpace(*p.Name)
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Archived != nil {
		a.Archived = *p.Archived
	}
	if err := validateAccount(a, w.currency); err != nil {
		return domain.Account{}, err
	}
	w.st.Accounts[i] = a
	w.dirty = true
	return a, nil
}

// deleteAccount removes the account, every transaction that references it
// on either side, and its entry in snapshot balance maps. Snapshot totals
// are historical and stay as they were. It returns the number of
// transactions removed.
func (w *writer) deleteAccount(id string) (int, error) {
	i := w.accountIndex(id)
	if i < 0 {
		return 0, notFound("account", id)
	}
	w.st.Accounts = slices.Delete(w.st.Accounts, i, i+1)

	before := len(w.st.Transactions)
	w.st.Transactions = slices.DeleteFunc(w.st.Transactions, func(t domain.Transaction) bool {
		return t.Touches(id)
	})
	for j := range w.st.Snapshots {
		delete(w.st.Snapshots[j].AccountBalances, id)
	}
	w.dirty = true
	return before - len(w.st.Transactions), nil
}

// Categories

func (w *writer) addCategory(in CategoryInput) (domain.Category, error) {
	c := domain.Category{
		ID:    w.newID(),
		Name:  strings.TrimSpace(in.Name),
		Kind:  in.Kind,
		Emoji: in.Emoji,
		Color: in.Color,
	}
	if err := validateCategory(c); err != nil {
		return domain.Category{}, err
	}
	w.st.Categories = append(w.st.Categories, c)
	w.dirty = true
	return c, nil
}

func (w *writer) updateCategory(id string, p CategoryPatch) (domain.Category, error) {
	i := w.categoryIndex(id)
	if i < 0 {
		return domain.Category{}, notFound("category", id)
	}
	c := w.st.Categories[i]
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Kind != nil && *p.Kind != c.Kind {
		for _, t := range w.st.Transactions {
			if t.CategoryID == id {
				return domain.Category{}, invalid("kind", "category %q is used by transaction %q", id, t.ID)
			}
		}
		c.Kind = *p.Kind
	}
	if p.Emoji != nil {
		c.Emoji = *p.Emoji
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if err := validateCategory(c); err != nil {
		return domain.Category{}, err
	}
	w.st.Categories[i] = c
	w.dirty = true
	return c, nil
}

// deleteCategory removes the category and clears it from transactions.
func (w *writer) deleteCategory(id string) (int, error) {
	i := w.categoryIndex(id)
	if i < 0 {
		return 0, notFound("category", id)
	}
	w.st.Categories = slices.Delete(w.st.Categories, i, i+1)

	detached := 0
	for j := range w.st.Transactions {
		if w.st.Transactions[j].CategoryID == id {
			w.st.Transactions[j].CategoryID = ""
			w.st.Transactions[j].UpdatedAt = w.stamp()
			detached++
		}
	}
	w.dirty = true
	return detached, nil
}

// Transactions

func (w *writer) addTransaction(in TransactionInput) (domain.Transaction, error) {
	if in.Type == domain.TxnAdjustment {
		return domain.Transaction{}, invalid("type", "adjustments are only created by reconciliation")
	}
	t := domain.Transaction{
		ID:                w.newID(),
		Type:              in.Type,
		AccountID:         in.AccountID,
		TransferAccountID: in.TransferAccountID,
		Amount:            domain.Magnitude(in.Amount),
		CategoryID:        in.CategoryID,
		Note:              in.Note,
		Tags:              slices.Clone(in.Tags),
		Date:              in.Date,
		CreatedAt:         w.now,
	}
	return w.insertTransaction(t)
}

func (w *writer) addAdjustment(accountID string, delta decimal.Decimal, date civil.Date, note string) (domain.Transaction, error) {
	t := domain.Transaction{
		ID:          w.newID(),
		Type:        domain.TxnAdjustment,
		AccountID:   accountID,
		Amount:      domain.Delta(delta),
		Note:        note,
		Date:        date,
		CreatedAt:   w.now,
		IsReconcile: true,
	}
	return w.insertTransaction(t)
}

func (w *writer) insertTransaction(t domain.Transaction) (domain.Transaction, error) {
	if err := validateTransaction(&w.st, t); err != nil {
		return domain.Transaction{}, err
	}
	w.st.Transactions = append(w.st.Transactions, t)
	w.dirty = true
	return t.Clone(), nil
}

func (w *writer) updateTransaction(id string, p TransactionPatch) (domain.Transaction, error) {
	i := w.transactionIndex(id)
	if i < 0 {
		return domain.Transaction{}, notFound("transaction", id)
	}
	t := w.st.Transactions[i].Clone()
	wasAdjustment := t.Type == domain.TxnAdjustment

	if p.Type != nil {
		if (*p.Type == domain.TxnAdjustment) != wasAdjustment {
			return domain.Transaction{}, invalid("type", "cannot convert between adjustment and other types")
		}
		t.Type = *p.Type
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.TransferAccountID != nil {
		t.TransferAccountID = *p.TransferAccountID
	}
	if p.Amount != nil {
		if wasAdjustment {
			t.Amount = domain.Delta(*p.Amount)
		} else {
			t.Amount = domain.Magnitude(*p.Amount)
		}
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	if p.Tags != nil {
		t.Tags = slices.Clone(*p.Tags)
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	t.UpdatedAt = w.stamp()

	if err := validateTransaction(&w.st, t); err != nil {
		return domain.Transaction{}, err
	}
	w.st.Transactions[i] = t
	w.dirty = true
	return t.Clone(), nil
}

func (w *writer) deleteTransaction(id string) error {
	i := w.transactionIndex(id)
	if i < 0 {
		return notFound("transaction", id)
	}
	w.st.Transactions = slices.Delete(w.st.Transactions, i, i+1)
	w.dirty = true
	return nil
}

// Snapshots

func (w *writer) addSnapshot(in SnapshotInput) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		ID:              w.newID(),
		Date:            in.Date,
		BankCash:        in.BankCash,
		Investments:     in.Investments,
		CreditUsed:      in.CreditUsed,
		CreditAvailable: in.CreditAvailable,
	}
	snap, err := w.deriveTotals(snap, in.AccountBalances)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !snap.Date.IsValid() {
		return domain.Snapshot{}, invalid("date", "%q is not a calendar date", snap.Date)
	}
	snap.Revision = w.nextRevision()
	snap.UpdatedAt = w.now
	w.st.Snapshots = append(w.st.Snapshots, snap)
	sortSnapshots(w.st.Snapshots)
	w.dirty = true
	return snap.Clone(), nil
}

func (w *writer) updateSnapshot(id string, p SnapshotPatch) (domain.Snapshot, error) {
	i := w.snapshotIndex(id)
	if i < 0 {
		return domain.Snapshot{}, notFound("snapshot", id)
	}
	snap := w.st.Snapshots[i].Clone()
	if p.Date != nil {
		snap.Date = *p.Date
	}
	if p.CreditAvailable != nil {
		snap.CreditAvailable = *p.CreditAvailable
	}
	if p.AccountBalances != nil {
		snap.BankCash, snap.Investments, snap.CreditUsed = decimal.Zero, decimal.Zero, decimal.Zero
	}
	if p.BankCash != nil {
		snap.BankCash = *p.BankCash
	}
	if p.Investments != nil {
		snap.Investments = *p.Investments
	}
	if p.CreditUsed != nil {
		snap.CreditUsed = *p.CreditUsed
	}
	if p.AccountBalances != nil {
		var err error
		snap.AccountBalances = nil
		if snap, err = w.deriveTotals(snap, *p.AccountBalances); err != nil {
			return domain.Snapshot{}, err
		}
	}
	if !snap.Date.IsValid() {
		return domain.Snapshot{}, invalid("date", "%q is not a calendar date", snap.Date)
	}
	snap.Revision = w.nextRevision()
	snap.UpdatedAt = w.now
	w.st.Snapshots[i] = snap
	sortSnapshots(w.st.Snapshots)
	w.dirty = true
	return snap.Clone(), nil
}

func (w *writer) deleteSnapshot(id string) error {
	i := w.snapshotIndex(id)
	if i < 0 {
		return notFound("snapshot", id)
	}
	w.st.Snapshots = slices.Delete(w.st.Snapshots, i, i+1)
	w.dirty = true
	return nil
}

// deriveTotals buckets signed per-account balances by account type and adds
// them to the snapshot's totals. Credit balances are negative while owed,
// so they are subtracted into CreditUsed.
func (w *writer) deriveTotals(snap domain.Snapshot, balances map[string]decimal.Decimal) (domain.Snapshot, error) {
	if len(balances) == 0 {
		return snap, nil
	}
	snap.AccountBalances = make(map[string]decimal.Decimal, len(balances))
	for id, bal := range balances {
		acc, ok := w.st.Account(id)
		if !ok {
			return domain.Snapshot{}, invalid("accountBalances", "account %q does not exist", id)
		}
		switch acc.Type {
		case domain.AccountCredit:
			snap.CreditUsed = snap.CreditUsed.Sub(bal)
		case domain.AccountInvestment:
			snap.Investments = snap.Investments.Add(bal)
		default:
			snap.BankCash = snap.BankCash.Add(bal)
		}
		snap.AccountBalances[id] = bal
	}
	return snap, nil
}

func (w *writer) stamp() *time.Time {
	now := w.now
	return &now
}
