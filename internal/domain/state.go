package domain

import "slices"

// State is the full ledger: the four collections the store owns and the
// persistence boundary exchanges.
type State struct {
	Accounts     []Account     `json:"accounts"`
	Categories   []Category    `json:"categories"`
	Transactions []Transaction `json:"transactions"`
	Snapshots    []Snapshot    `json:"snapshots"`
}

// Clone returns a deep copy that shares no slices or maps with s.
func (s State) Clone() State {
	out := State{
		Accounts:     slices.Clone(s.Accounts),
		Categories:   slices.Clone(s.Categories),
		Transactions: make([]Transaction, len(s.Transactions)),
		Snapshots:    make([]Snapshot, len(s.Snapshots)),
	}
	for i, t := range s.Transactions {
		out.Transactions[i] = t.Clone()
	}
	for i, snap := range s.Snapshots {
		out.Snapshots[i] = snap.Clone()
	}
	return out
}

// Account looks up an account by id.
func (s State) Account(id string) (Account, bool) {
	for _, a := range s.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// Category looks up a category by id.
func (s State) Category(id string) (Category, bool) {
	for _, c := range s.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
