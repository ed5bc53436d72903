// Package http exposes the application as a JSON API.
//
// This file implements the Builder Pattern for JSON responses so every
// handler sets status, change-event header and body the same way.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tueje/internal/advisor"
	"tueje/internal/core"
	"tueje/internal/currency"
	"tueje/internal/events"
	"tueje/internal/identity"
	applog "tueje/internal/log"
	"tueje/internal/services"
	"tueje/internal/stats"
	"tueje/internal/store"
)

// EventHeader tells the client its data changed.
const EventHeader = "X-Tueje-Event"

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Changed marks the response as the result of a committed mutation.
func (b *JSONResponseBuilder) Changed() *JSONResponseBuilder {
	return b.Header(EventHeader, events.DataChanged)
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// UnauthorizedError creates a 401 Unauthorized error response.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// validationErrors are user input problems reported with 422.
var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrEmptyTitle,
	core.ErrTitleTooLong,
	core.ErrInvalidGoal,
	core.ErrInvalidHabitType,
	core.ErrInvalidKind,
	core.ErrInvalidCategory,
	core.ErrCategoryKind,
	core.ErrDescriptionTooLong,
	core.ErrLogShape,
	core.ErrInvalidValue,
	identity.ErrMissingFields,
	identity.ErrPasswordTooShort,
	advisor.ErrMissingParams,
	currency.ErrUnknownCurrency,
	services.ErrInvalidDays,
	services.ErrUnknownTopic,
	stats.ErrInvalidWindow,
	errInvalidDays,
}

// ErrorFor maps a service error to its response.
func ErrorFor(err error) *JSONResponseBuilder {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return UnprocessableEntityError(err.Error())
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return NotFoundError("not found")
	case errors.Is(err, identity.ErrEmailTaken):
		return ErrorResponse(http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidSession),
		errors.Is(err, identity.ErrFederatedSignIn):
		return UnauthorizedError(err.Error())
	case errors.Is(err, advisor.ErrNotConfigured):
		return ErrorResponse(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, advisor.ErrUpstream), errors.Is(err, advisor.ErrEmptyResponse):
		return ErrorResponse(http.StatusBadGateway, err.Error())
	default:
		return InternalServerError("internal error")
	}
}

// writeError logs unexpected failures with the route's component logger
// and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorFor(err)
	if resp.statusCode >= http.StatusInternalServerError {
		logger := applog.FromContext(r.Context())
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err,
			logger.Component(), r.Method,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, ""))
	}
	resp.Write(w)
}
