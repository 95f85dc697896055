package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	store *ledger.Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store *ledger.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: store, log: log}
}

// ListTransactions handles GET /api/v1/transactions
//
// Query parameters: account_id, type, month, from, to (dates as YYYY-MM-DD).
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ledger.TransactionFilter{
		AccountID: query.Get("account_id"),
		Type:      domain.TxnType(query.Get("type")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid type")
		return
	}

	var ok bool
	if filter.Month, ok = dateOr(w, r, "month", filter.Month); !ok {
		return
	}
	if filter.From, ok = dateOr(w, r, "from", filter.From); !ok {
		return
	}
	if filter.To, ok = dateOr(w, r, "to", filter.To); !ok {
		return
	}

	transactions := h.store.Transactions(filter)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// CreateTransaction handles POST /api/v1/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in ledger.TransactionInput
	if !decodeBody(w, r, &in) {
		return
	}
	txn, err := h.store.AddTransaction(r.Context(), in)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to create transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, txn)
}

// UpdateTransaction handles PATCH /api/v1/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var p ledger.TransactionPatch
	if !decodeBody(w, r, &p) {
		return
	}
	txn, err := h.store.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to update transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, txn)
}

// DeleteTransaction handles DELETE /api/v1/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeLedgerError(w, h.log, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
