package handlers

import (
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/reconcile"
)

// ReconcileHandler handles reconciliation endpoints.
type ReconcileHandler struct {
	reconciler *reconcile.Reconciler
	log        zerolog.Logger
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(reconciler *reconcile.Reconciler, log zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, log: log}
}

type reconcileRequest struct {
	Date    civil.Date                 `json:"date"`
	Targets map[string]decimal.Decimal `json:"targets"`
}

// Reconcile handles POST /api/v1/reconcile
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Date.IsValid() {
		middleware.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}

	res, err := h.reconciler.ReconcileAccountsAt(r.Context(), req.Date, req.Targets)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to reconcile")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

type syncRequest struct {
	reconcileRequest
	BankCash        decimal.Decimal     `json:"bankCash"`
	Investments     decimal.Decimal     `json:"investments"`
	CreditUsed      decimal.Decimal     `json:"creditUsed"`
	CreditAvailable decimal.NullDecimal `json:"creditAvailable"`
}

// SnapshotWithSync handles POST /api/v1/snapshots/sync: reconcile the
// targets, then record a snapshot derived from them.
func (h *ReconcileHandler) SnapshotWithSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Date.IsValid() {
		middleware.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}

	extra := ledger.SnapshotInput{
		BankCash:        req.BankCash,
		Investments:     req.Investments,
		CreditUsed:      req.CreditUsed,
		CreditAvailable: req.CreditAvailable,
	}
	snap, res, err := h.reconciler.SnapshotWithSync(r.Context(), req.Date, req.Targets, extra)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to record snapshot")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"snapshot":       snap,
		"reconciliation": res,
	})
}
