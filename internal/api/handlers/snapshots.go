package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

// SnapshotsHandler handles snapshot endpoints.
type SnapshotsHandler struct {
	store *ledger.Store
	log   zerolog.Logger
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(store *ledger.Store, log zerolog.Logger) *SnapshotsHandler {
	return &SnapshotsHandler{store: store, log: log}
}

// ListSnapshots handles GET /api/v1/snapshots
func (h *SnapshotsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots := h.store.Snapshots()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// CreateSnapshot handles POST /api/v1/snapshots
func (h *SnapshotsHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var in ledger.SnapshotInput
	if !decodeBody(w, r, &in) {
		return
	}
	snap, err := h.store.AddSnapshot(r.Context(), in)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to create snapshot")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, snap)
}

// UpdateSnapshot handles PATCH /api/v1/snapshots/{id}
func (h *SnapshotsHandler) UpdateSnapshot(w http.ResponseWriter, r *http.Request) {
	var p ledger.SnapshotPatch
	if !decodeBody(w, r, &p) {
		return
	}
	snap, err := h.store.UpdateSnapshot(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to update snapshot")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, snap)
}

// DeleteSnapshot handles DELETE /api/v1/snapshots/{id}
func (h *SnapshotsHandler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSnapshot(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeLedgerError(w, h.log, err, "Failed to delete snapshot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDrift handles GET /api/v1/snapshots/{id}/drift: the stored snapshot's
// net worth against what the rest of the ledger expects on its date.
func (h *SnapshotsHandler) GetDrift(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st := h.store.State()
	for _, s := range st.Snapshots {
		if s.ID == id {
			middleware.WriteJSON(w, http.StatusOK, balance.NewView(st).SnapshotDrift(s))
			return
		}
	}
	writeLedgerError(w, h.log, &ledger.NotFoundError{Kind: "snapshot", ID: id}, "Failed to compute drift")
}

// PreviewDrift handles POST /api/v1/snapshots/drift: the drift a proposed
// snapshot would have, without recording it.
func (h *SnapshotsHandler) PreviewDrift(w http.ResponseWriter, r *http.Request) {
	var in ledger.SnapshotInput
	if !decodeBody(w, r, &in) {
		return
	}
	snap, st, err := h.store.PreviewSnapshot(in)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to preview snapshot")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, balance.NewView(st).SnapshotDrift(snap))
}
