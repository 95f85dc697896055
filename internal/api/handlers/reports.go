package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/balance"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/series"
)

const (
	// DefaultCacheExpiration bounds how long a report for an old version
	// lingers; a commit changes the key, so entries are never stale.
	DefaultCacheExpiration = 5 * time.Minute
	CacheCleanupInterval   = 10 * time.Minute

	defaultRange = series.Range12M
)

// ReportsHandler serves derived views: balances, net worth, monthly
// summaries and chart series. Responses are cached per ledger version.
type ReportsHandler struct {
	store *ledger.Store
	cache *cache.Cache
	today func() civil.Date
}

// NewReportsHandler creates a new reports handler. today supplies the
// default date for queries that omit one.
func NewReportsHandler(store *ledger.Store, reportCache *cache.Cache, today func() civil.Date) *ReportsHandler {
	return &ReportsHandler{store: store, cache: reportCache, today: today}
}

// cached returns the response for this request at the current version,
// computing it on a miss.
func (h *ReportsHandler) cached(r *http.Request, today civil.Date, compute func(v *balance.View) any) any {
	key := func(version uint64) string {
		return fmt.Sprintf("%d|%s|%s?%s", version, today, r.URL.Path, r.URL.RawQuery)
	}
	if out, ok := h.cache.Get(key(h.store.Version())); ok {
		return out
	}
	st, version := h.store.VersionedState()
	out := compute(balance.NewView(st))
	h.cache.Set(key(version), out, cache.DefaultExpiration)
	return out
}

type balancesResponse struct {
	At       *civil.Date              `json:"at,omitempty"`
	Balances []balance.AccountBalance `json:"balances"`
	NetWorth decimal.Decimal          `json:"netWorth"`
}

// GetBalances handles GET /api/v1/balances. With ?at= the balances are as
// of that date and net worth is the snapshot-anchored value.
func (h *ReportsHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	at, bounded, err := queryDate(r, "at")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := h.cached(r, h.today(), func(v *balance.View) any {
		if !bounded {
			return balancesResponse{Balances: v.Balances(), NetWorth: v.NetWorth()}
		}
		byID := v.BalancesAt(at)
		list := make([]balance.AccountBalance, 0, len(byID))
		for _, a := range v.State().Accounts {
			list = append(list, balance.AccountBalance{Account: a, Balance: byID[a.ID]})
		}
		return balancesResponse{At: &at, Balances: list, NetWorth: v.NetWorthAt(at)}
	})
	middleware.WriteJSON(w, http.StatusOK, out)
}

type netWorthResponse struct {
	Date     civil.Date      `json:"date"`
	NetWorth decimal.Decimal `json:"netWorth"`
	// AnchorID is the snapshot the value was reconstructed from.
	AnchorID string `json:"anchorId,omitempty"`
}

// GetNetWorth handles GET /api/v1/networth?at=YYYY-MM-DD (default today).
func (h *ReportsHandler) GetNetWorth(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	at, ok := dateOr(w, r, "at", today)
	if !ok {
		return
	}
	out := h.cached(r, today, func(v *balance.View) any {
		resp := netWorthResponse{Date: at, NetWorth: v.NetWorthAt(at)}
		if s, ok := v.LatestSnapshotOnOrBefore(at); ok {
			resp.AnchorID = s.ID
		}
		return resp
	})
	middleware.WriteJSON(w, http.StatusOK, out)
}

// GetSummary handles GET /api/v1/summary?month=YYYY-MM-DD (any day in the
// month, default today).
func (h *ReportsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	month, ok := dateOr(w, r, "month", today)
	if !ok {
		return
	}
	out := h.cached(r, today, func(v *balance.View) any { return v.Summary(month) })
	middleware.WriteJSON(w, http.StatusOK, out)
}

// GetNetWorthSeries handles GET /api/v1/series/networth
func (h *ReportsHandler) GetNetWorthSeries(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	from, to, ok := h.window(w, r, today)
	if !ok {
		return
	}
	out := h.cached(r, today, func(v *balance.View) any {
		points := slices.Collect(series.NetWorthPoints(v, from, to))
		if points == nil {
			points = []series.Point{}
		}
		return map[string]interface{}{"from": from, "to": to, "points": points}
	})
	middleware.WriteJSON(w, http.StatusOK, out)
}

// GetCashflowSeries handles GET /api/v1/series/cashflow
func (h *ReportsHandler) GetCashflowSeries(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	from, to, ok := h.window(w, r, today)
	if !ok {
		return
	}
	out := h.cached(r, today, func(v *balance.View) any {
		points := slices.Collect(series.MonthlyCashflow(v, from, to))
		if points == nil {
			points = []series.CashflowPoint{}
		}
		return map[string]interface{}{"from": from, "to": to, "points": points}
	})
	middleware.WriteJSON(w, http.StatusOK, out)
}

// window resolves ?range= (1M, 6M, 12M, 24M, ALL) or an explicit ?from=&to=
// pair. Without either it is the default range ending today.
func (h *ReportsHandler) window(w http.ResponseWriter, r *http.Request, today civil.Date) (civil.Date, civil.Date, bool) {
	query := r.URL.Query()
	if query.Get("from") == "" {
		key := defaultRange
		if s := query.Get("range"); s != "" {
			var err error
			if key, err = series.ParseRangeKey(s); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, err.Error())
				return civil.Date{}, civil.Date{}, false
			}
		}
		from, to, err := series.Window(key, today)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return civil.Date{}, civil.Date{}, false
		}
		return from, to, true
	}

	from, ok := dateOr(w, r, "from", today)
	if !ok {
		return civil.Date{}, civil.Date{}, false
	}
	to, ok := dateOr(w, r, "to", today)
	if !ok {
		return civil.Date{}, civil.Date{}, false
	}
	if to.Before(from) {
		middleware.WriteError(w, http.StatusBadRequest, "to is before from")
		return civil.Date{}, civil.Date{}, false
	}
	return from, to, true
}
