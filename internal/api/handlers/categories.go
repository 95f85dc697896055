package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

// CategoriesHandler handles category endpoints.
type CategoriesHandler struct {
	store *ledger.Store
	log   zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(store *ledger.Store, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{store: store, log: log}
}

// ListCategories handles GET /api/v1/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.store.Categories()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// CreateCategory handles POST /api/v1/categories
func (h *CategoriesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in ledger.CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	category, err := h.store.AddCategory(r.Context(), in)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to create category")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, category)
}

// UpdateCategory handles PATCH /api/v1/categories/{id}
func (h *CategoriesHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var p ledger.CategoryPatch
	if !decodeBody(w, r, &p) {
		return
	}
	category, err := h.store.UpdateCategory(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeLedgerError(w, h.log, err, "Failed to update category")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, category)
}

// DeleteCategory handles DELETE /api/v1/categories/{id}. Transactions keep
// their place but lose the category.
func (h *CategoriesHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeLedgerError(w, h.log, err, "Failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
