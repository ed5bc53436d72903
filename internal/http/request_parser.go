// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tueje/internal/core"
	"tueje/internal/services"
)

const maxBodyBytes = 64 << 10

var errBadJSON = errors.New("invalid JSON body")

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadJSON)
		}
		// Field-level type problems on known value types are validation
		// errors, not malformed JSON.
		var amountErr *amountError
		if errors.As(err, &amountErr) {
			return core.ErrInvalidAmount
		}
		var dateErr *dateError
		if errors.As(err, &dateErr) {
			return core.ErrInvalidDate
		}
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

// bindJSON decodes v or writes the error response. It reports whether the
// handler may continue.
func bindJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := decodeJSON(w, r, v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errBadJSON):
		BadRequestError(err.Error()).Write(w)
	default:
		UnprocessableEntityError(err.Error()).Write(w)
	}
	return false
}

type amountError struct{ err error }

func (e *amountError) Error() string { return e.err.Error() }
func (e *amountError) Unwrap() error { return e.err }

// flexAmount accepts 12.34, "12.34" and "12,34".
type flexAmount struct {
	decimal.Decimal
}

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return &amountError{err: err}
	}
	a.Decimal = d
	return nil
}

type dateError struct{ err error }

func (e *dateError) Error() string { return e.err.Error() }
func (e *dateError) Unwrap() error { return e.err }

// flexDate is a core.Date whose parse failures are reported as validation
// errors.
type flexDate struct {
	core.Date
}

func (d *flexDate) UnmarshalJSON(b []byte) error {
	if err := d.Date.UnmarshalJSON(b); err != nil {
		return &dateError{err: err}
	}
	return nil
}

// parseDays reads ?days=N, returning 0 when absent.
func parseDays(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("days"))
	if v == "" {
		return services.DefaultDashboardDays, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidDays, v)
	}
	return n, nil
}

var errInvalidDays = errors.New("days must be a number")

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
