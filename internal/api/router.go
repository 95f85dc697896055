// Package api wires the ledger's HTTP surface.
package api

import (
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dvloznov/finance-ledger/internal/api/handlers"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/reconcile"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Store *ledger.Store
	Jobs  jobs.JobStore
	Log   zerolog.Logger

	// AfterLoad runs after PUT /api/v1/state replaces the ledger.
	AfterLoad ledger.CommitHook

	// Limiter throttles /api; nil disables rate limiting.
	Limiter *rate.Limiter
	// Cache holds report responses; nil gets a fresh one.
	Cache *cache.Cache
	// Today defaults to the local calendar date.
	Today func() civil.Date
}

// NewRouter builds the chi router for d.
func NewRouter(d Deps) *chi.Mux {
	if d.Cache == nil {
		d.Cache = cache.New(handlers.DefaultCacheExpiration, handlers.CacheCleanupInterval)
	}
	if d.Today == nil {
		d.Today = func() civil.Date { return civil.DateOf(time.Now()) }
	}

	accounts := handlers.NewAccountsHandler(d.Store, d.Log)
	categories := handlers.NewCategoriesHandler(d.Store, d.Log)
	transactions := handlers.NewTransactionsHandler(d.Store, d.Log)
	snapshots := handlers.NewSnapshotsHandler(d.Store, d.Log)
	reconciler := handlers.NewReconcileHandler(reconcile.New(d.Store), d.Log)
	reports := handlers.NewReportsHandler(d.Store, d.Cache, d.Today)
	state := handlers.NewStateHandler(d.Store, d.AfterLoad, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS)
	r.Use(chimw.CleanPath)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"time":    time.Now().Format(time.RFC3339),
			"version": d.Store.Version(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(middleware.RateLimit(d.Limiter))
		}

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", accounts.ListAccounts)
			r.Post("/", accounts.CreateAccount)
			r.Patch("/{id}", accounts.UpdateAccount)
			r.Delete("/{id}", accounts.DeleteAccount)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", categories.ListCategories)
			r.Post("/", categories.CreateCategory)
			r.Patch("/{id}", categories.UpdateCategory)
			r.Delete("/{id}", categories.DeleteCategory)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactions.ListTransactions)
			r.Post("/", transactions.CreateTransaction)
			r.Patch("/{id}", transactions.UpdateTransaction)
			r.Delete("/{id}", transactions.DeleteTransaction)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", snapshots.ListSnapshots)
			r.Post("/", snapshots.CreateSnapshot)
			r.Post("/drift", snapshots.PreviewDrift)
			r.Post("/sync", reconciler.SnapshotWithSync)
			r.Patch("/{id}", snapshots.UpdateSnapshot)
			r.Delete("/{id}", snapshots.DeleteSnapshot)
			r.Get("/{id}/drift", snapshots.GetDrift)
		})

		r.Post("/reconcile", reconciler.Reconcile)

		r.Get("/balances", reports.GetBalances)
		r.Get("/networth", reports.GetNetWorth)
		r.Get("/summary", reports.GetSummary)
		r.Get("/series/networth", reports.GetNetWorthSeries)
		r.Get("/series/cashflow", reports.GetCashflowSeries)

		r.Get("/state", state.GetState)
		r.Put("/state", state.PutState)

		if d.Jobs != nil {
			jobsHandler := handlers.NewJobsHandler(d.Jobs, d.Log)
			r.Get("/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{id}", jobsHandler.GetJob)
		}
	})

	return r
}
