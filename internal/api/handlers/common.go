// Package handlers implements the HTTP query and command surface over the
// ledger.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

// maxBodyBytes bounds request bodies. A full state upload is the largest.
const maxBodyBytes = 8 << 20

// writeLedgerError maps ledger errors to status codes. Anything that is not
// a validation or lookup failure is logged and reported as msg.
func writeLedgerError(w http.ResponseWriter, log zerolog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (civil.Date, bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return civil.Date{}, false, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, true, nil
}

// dateOr returns the named query date, or def when the parameter is absent.
// It writes a 400 and returns false when the value does not parse.
func dateOr(w http.ResponseWriter, r *http.Request, name string, def civil.Date) (civil.Date, bool) {
	d, ok, err := queryDate(r, name)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return civil.Date{}, false
	}
	if !ok {
		return def, true
	}
	return d, true
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
