package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tripnara/readiness/pkg/api"
	"github.com/tripnara/readiness/pkg/archive"
	"github.com/tripnara/readiness/pkg/evidence"
	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/repair"
	"github.com/tripnara/readiness/pkg/trip"
)

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteError(w, http.StatusBadRequest, "Bad Request", "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Status != 400 {
		t.Errorf("expected problem.status=400, got %d", problem.Status)
	}
	if problem.Title != "Bad Request" {
		t.Errorf("expected title 'Bad Request', got %q", problem.Title)
	}
	if problem.Detail != "field is missing" {
		t.Errorf("expected detail 'field is missing', got %q", problem.Detail)
	}
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Detail == "pq: connection refused to host=10.0.0.1" {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequests_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, 30)

	if ra := w.Header().Get("Retry-After"); ra != "30" {
		t.Errorf("expected Retry-After '30', got %q", ra)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}

func TestWriteErrorR_EnrichesWithRequestContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/trips/trip-1/readiness", nil)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-123")

	api.WriteErrorR(w, req, http.StatusBadRequest, "Bad Request", "bad input")

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Instance != "/trips/trip-1/readiness" {
		t.Fatalf("expected instance %q, got %q", "/trips/trip-1/readiness", problem.Instance)
	}
	if problem.TraceID != "req-123" {
		t.Fatalf("expected trace_id %q, got %q", "req-123", problem.TraceID)
	}
}

func TestWriteServiceError_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&trip.ValidationError{Fields: []string{"Context.EndDate:gtefield"}, Detail: "bad"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("trip x: %w", trip.ErrTripNotFound), http.StatusNotFound},
		{evidence.ErrTaskNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: x", evidence.ErrInvalidRequest), http.StatusBadRequest},
		{repair.ErrBlockerNotFound, http.StatusNotFound},
		{repair.ErrConcurrentModification, http.StatusConflict},
		{repair.ErrInvalidTransition, http.StatusConflict},
		{evidence.ErrTaskTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: redis", readiness.ErrUpstreamUnavailable), http.StatusBadGateway},
		{archive.ErrInvalidRef, http.StatusBadRequest},
		{fmt.Errorf("%w: sha256:00", archive.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/x", nil)
		w := httptest.NewRecorder()
		api.WriteServiceError(w, req, tc.err)
		if w.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestWriteServiceError_ValidationFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/readiness/capability-packs/evaluate", nil)
	w := httptest.NewRecorder()
	api.WriteServiceError(w, req, &trip.ValidationError{Fields: []string{"Context.TripID:required"}, Detail: "invalid"})

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(problem.Fields) != 1 || problem.Fields[0] != "Context.TripID:required" {
		t.Errorf("expected field list, got %v", problem.Fields)
	}
}
