package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

// AccountsHandler handles account endpoints.
type AccountsHandler struct {
	store *ledger.Store
	log   zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(store *ledger.Store, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{store: store, log: log}
}

// ListAccounts handles GET /api/v1/accounts. ?active=true hides archived
// accounts.
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.store.Accounts()
	if r.URL.Query().Get("active") == "true" {
		accounts = h.store.ActiveAccounts()
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// CreateAccount handles POST /api/v1/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var in ledger.AccountInput
	if !decodeBody(w, r, &in) {
		return
	}
	account, err := h.store.AddAccount(r.Context(), in)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to create account")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, account)
}

// UpdateAccount handles PATCH /api/v1/accounts/{id}
func (h *AccountsHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var p ledger.AccountPatch
	if !decodeBody(w, r, &p) {
		return
	}
	account, err := h.store.UpdateAccount(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to update account")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, account)
}

// DeleteAccount handles DELETE /api/v1/accounts/{id}. The account's
// transactions are deleted with it.
func (h *AccountsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeLedgerError(w, h.log, err, "Failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
