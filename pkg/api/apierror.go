// Package api serves the readiness HTTP API. Errors use RFC 7807 problem details.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tripnara/readiness/pkg/archive"
	"github.com/tripnara/readiness/pkg/evidence"
	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/repair"
	"github.com/tripnara/readiness/pkg/trip"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// TraceID links to the request id of this occurrence.
	TraceID string `json:"trace_id,omitempty"`
	// Fields lists invalid input fields, when known.
	Fields []string `json:"fields,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func problemType(status int) string {
	return fmt.Sprintf("/errors/%d", status)
}

func writeProblem(w http.ResponseWriter, problem *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:   problemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteErrorR writes an RFC 7807 response enriched with request context
// (trace_id from X-Request-ID, instance from request URI).
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteConflict writes a 409 error response.
func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, "Conflict", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteServiceError maps a service error onto a problem response.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *trip.ValidationError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, &ProblemDetail{
			Type:     problemType(http.StatusUnprocessableEntity),
			Title:    "Invalid Trip",
			Status:   http.StatusUnprocessableEntity,
			Detail:   verr.Error(),
			Instance: r.URL.Path,
			TraceID:  w.Header().Get("X-Request-ID"),
			Fields:   verr.Fields,
		})
	case errors.Is(err, evidence.ErrInvalidRequest),
		errors.Is(err, archive.ErrInvalidRef):
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, trip.ErrTripNotFound),
		errors.Is(err, evidence.ErrTaskNotFound),
		errors.Is(err, repair.ErrBlockerNotFound),
		errors.Is(err, repair.ErrOptionNotFound),
		errors.Is(err, archive.ErrNotFound),
		errors.Is(err, archive.ErrDisabled):
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, repair.ErrConcurrentModification),
		errors.Is(err, repair.ErrInvalidTransition):
		WriteErrorR(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, evidence.ErrTaskTimeout),
		errors.Is(err, context.DeadlineExceeded):
		WriteErrorR(w, r, http.StatusGatewayTimeout, "Gateway Timeout", err.Error())
	case errors.Is(err, readiness.ErrUpstreamUnavailable):
		slog.Warn("upstream unavailable", "path", r.URL.Path, "error", err)
		WriteErrorR(w, r, http.StatusBadGateway, "Bad Gateway", "A dependency is unavailable. Please retry.")
	default:
		WriteInternal(w, err)
	}
}
