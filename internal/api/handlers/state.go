package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/persist"
)

// StateHandler exports and replaces the whole ledger as a versioned
// envelope, the same format the JSON file backend writes.
type StateHandler struct {
	store     *ledger.Store
	afterLoad ledger.CommitHook
	log       zerolog.Logger
}

// NewStateHandler creates a new state handler. afterLoad, when not nil, runs
// after a successful replace so the new state reaches persistence; Load
// itself fires no commit hooks.
func NewStateHandler(store *ledger.Store, afterLoad ledger.CommitHook, log zerolog.Logger) *StateHandler {
	return &StateHandler{store: store, afterLoad: afterLoad, log: log}
}

// GetState handles GET /api/v1/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	st, version := h.store.VersionedState()

	var buf bytes.Buffer
	if err := persist.Encode(&buf, st, time.Now()); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode state")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to encode state")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", `"v`+strconv.FormatUint(version, 10)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// PutState handles PUT /api/v1/state
func (h *StateHandler) PutState(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	env, err := persist.Decode(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := h.store.Load(ctx, env.State); err != nil {
		writeLedgerError(w, h.log, err, "Failed to load state")
		return
	}
	st, version := h.store.VersionedState()
	if h.afterLoad != nil {
		h.afterLoad(ctx, version, st)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":      version,
		"accounts":     len(st.Accounts),
		"categories":   len(st.Categories),
		"transactions": len(st.Transactions),
		"snapshots":    len(st.Snapshots),
	})
}
