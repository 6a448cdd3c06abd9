// Package http exposes the ledger over a JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses and the mapping from ledger errors to status codes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"slotledger/internal/core"
	"slotledger/internal/log"
)

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

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

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
	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal","message":"response encoding failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// Error codes returned in the "error" field.
const (
	CodeNotFound                = "not_found"
	CodeBalanceUnavailable      = "balance_unavailable"
	CodeInsufficientSource      = "insufficient_source"
	CodeInvalidParticipantCount = "invalid_participant_count"
	CodeValidation              = "validation_failed"
	CodeMalformed               = "malformed_request"
	CodeConcurrentModification  = "concurrent_modification"
	CodeAlreadyAssigned         = "already_assigned"
	CodeAlreadySplit            = "already_split"
	CodeAlreadyCommitted        = "slots_already_committed"
	CodeIdempotencyKeyReused    = "idempotency_key_reused"
	CodeRateLimited             = "rate_limited"
	CodeInternal                = "internal"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: code, Message: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeMalformed, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// malformedError marks a request that could not be decoded at all.
type malformedError struct{ msg string }

func (e *malformedError) Error() string { return e.msg }

func malformed(msg string) error { return &malformedError{msg: msg} }

// errorResponseFor maps err to its response. Unclassified errors become a
// 500 with a generic message.
func errorResponseFor(err error, retryAfter time.Duration) *JSONResponseBuilder {
	var bad *malformedError
	switch {
	case errors.As(err, &bad):
		return BadRequestError(bad.msg)
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, core.ErrBalanceUnavailable):
		secs := int(retryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		return ErrorResponse(http.StatusServiceUnavailable, CodeBalanceUnavailable, err.Error()).
			Header("Retry-After", strconv.Itoa(secs))
	case errors.Is(err, core.ErrInsufficientSource):
		return ErrorResponse(http.StatusUnprocessableEntity, CodeInsufficientSource, err.Error())
	case errors.Is(err, core.ErrInvalidParticipantCount):
		return ErrorResponse(http.StatusUnprocessableEntity, CodeInvalidParticipantCount, err.Error())
	case errors.Is(err, core.ErrConcurrentModification):
		return ErrorResponse(http.StatusConflict, CodeConcurrentModification, err.Error())
	case errors.Is(err, core.ErrAlreadyAssigned):
		return ErrorResponse(http.StatusConflict, CodeAlreadyAssigned, err.Error())
	case errors.Is(err, core.ErrAlreadySplit):
		return ErrorResponse(http.StatusConflict, CodeAlreadySplit, err.Error())
	case errors.Is(err, core.ErrSlotsAlreadyCommitted):
		return ErrorResponse(http.StatusConflict, CodeAlreadyCommitted, err.Error())
	case core.IsValidation(err):
		return ErrorResponse(http.StatusUnprocessableEntity, CodeValidation, err.Error())
	}
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, "internal error")
}

// writeError maps err to a response and logs server-side failures.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	resp := errorResponseFor(err, s.cfg.RetryAfter)
	if resp.statusCode >= http.StatusInternalServerError && resp.statusCode != http.StatusServiceUnavailable {
		log.FromContext(ctx).ErrorContext(ctx, "Request failed",
			log.FieldOperation, op,
			log.FieldError, err)
	}
	resp.Write(w)
}
