package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tripnara/readiness/pkg/engine"
	"github.com/tripnara/readiness/pkg/evidence"
	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/repair"
	"github.com/tripnara/readiness/pkg/trip"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ReadinessService is the part of engine.Service exposed over HTTP.
type ReadinessService interface {
	Evaluate(ctx context.Context, tripID string) (engine.ReadinessResult, error)
	ListPacks() []pack.Info
	Pack(packType string) (pack.Info, bool)
	EvaluatePacks(ctx context.Context, tc trip.Context) (pack.Summary, error)
	Checklist(ctx context.Context, tripID string) (readiness.Checklist, error)
	RiskSummary(ctx context.Context, tripID string) (readiness.RiskSummary, error)
	SelectBlocker(ctx context.Context, tripID, blockerID string) (repair.Workflow, error)
	ApplyRepair(ctx context.Context, tripID, blockerID, optionID string) (repair.ApplyResult, error)
	AutoRepair(ctx context.Context, tripID string) (repair.AutoRepairResult, error)
	RepairState(tripID string) repair.Workflow
	ResetRepair(tripID string) error
	CreateEvidenceTask(ctx context.Context, tripID string, req evidence.Request) (evidence.Task, error)
	RefreshEvidence(ctx context.Context, tripID, evidenceID string) (evidence.Task, error)
	PollEvidenceTask(ctx context.Context, taskID string) (evidence.Task, error)
	CancelEvidenceTask(taskID string) (evidence.Task, error)
	DisposeEvidenceTask(taskID string) error
	ArchivedReport(ctx context.Context, ref string) (readiness.Report, error)
}

// Handler serves the readiness HTTP API.
type Handler struct {
	svc ReadinessService
}

func NewHandler(svc ReadinessService) *Handler {
	return &Handler{svc: svc}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("GET /readiness/capability-packs", h.handleListPacks)
	mux.HandleFunc("GET /readiness/capability-packs/{type}", h.handleGetPack)
	mux.HandleFunc("POST /readiness/capability-packs/evaluate", h.handleEvaluatePacks)

	mux.HandleFunc("GET /trips/{tripId}/readiness", h.handleEvaluate)
	mux.HandleFunc("GET /trips/{tripId}/readiness/checklist", h.handleChecklist)
	mux.HandleFunc("GET /trips/{tripId}/readiness/risks", h.handleRisks)

	mux.HandleFunc("GET /trips/{tripId}/readiness/repair", h.handleRepairState)
	mux.HandleFunc("POST /trips/{tripId}/readiness/repair/select", h.handleSelectBlocker)
	mux.HandleFunc("POST /trips/{tripId}/readiness/repair/apply", h.handleApplyRepair)
	mux.HandleFunc("POST /trips/{tripId}/readiness/repair/auto", h.handleAutoRepair)
	mux.HandleFunc("POST /trips/{tripId}/readiness/repair/reset", h.handleResetRepair)

	mux.HandleFunc("POST /trips/{tripId}/evidence/fetch", h.handleFetchEvidence)
	mux.HandleFunc("POST /trips/{tripId}/evidence/refresh", h.handleRefreshEvidence)
	mux.HandleFunc("GET /evidence/tasks/{taskId}", h.handlePollTask)
	mux.HandleFunc("POST /evidence/tasks/{taskId}/cancel", h.handleCancelTask)
	mux.HandleFunc("DELETE /evidence/tasks/{taskId}", h.handleDisposeTask)

	mux.HandleFunc("GET /reports/{ref}", h.handleArchivedReport)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListPacks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"packs": h.svc.ListPacks()})
}

func (h *Handler) handleGetPack(w http.ResponseWriter, r *http.Request) {
	info, ok := h.svc.Pack(r.PathValue("type"))
	if !ok {
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "Unknown capability pack: "+r.PathValue("type"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleEvaluatePacks(w http.ResponseWriter, r *http.Request) {
	var tc trip.Context
	if !decodeBody(w, r, &tc) {
		return
	}
	summary, err := h.svc.EvaluatePacks(r.Context(), tc)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Evaluate(r.Context(), r.PathValue("tripId"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleChecklist(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Checklist(r.Context(), r.PathValue("tripId"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleRisks(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.RiskSummary(r.Context(), r.PathValue("tripId"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleRepairState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.RepairState(r.PathValue("tripId")))
}

type selectBlockerRequest struct {
	BlockerID string `json:"blockerId"`
}

func (h *Handler) handleSelectBlocker(w http.ResponseWriter, r *http.Request) {
	var req selectBlockerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BlockerID == "" {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "Missing required field: blockerId")
		return
	}
	wf, err := h.svc.SelectBlocker(r.Context(), r.PathValue("tripId"), req.BlockerID)
	if err != nil {
		// A failed options load still leaves a workflow the client can render.
		if errors.Is(err, readiness.ErrUpstreamUnavailable) && wf.State == repair.StateOptionsLoadFailed {
			writeJSON(w, http.StatusBadGateway, wf)
			return
		}
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type applyRepairRequest struct {
	BlockerID string `json:"blockerId"`
	OptionID  string `json:"optionId"`
}

func (h *Handler) handleApplyRepair(w http.ResponseWriter, r *http.Request) {
	var req applyRepairRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case req.BlockerID == "":
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "Missing required field: blockerId")
		return
	case req.OptionID == "":
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "Missing required field: optionId")
		return
	}
	res, err := h.svc.ApplyRepair(r.Context(), r.PathValue("tripId"), req.BlockerID, req.OptionID)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAutoRepair(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AutoRepair(r.Context(), r.PathValue("tripId"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleResetRepair(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("tripId")
	if err := h.svc.ResetRepair(tripID); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.RepairState(tripID))
}

type fetchEvidenceRequest struct {
	EvidenceTypes []evidence.Type `json:"evidenceTypes"`
	TargetIDs     []string        `json:"targetIds"`
	Async         bool            `json:"async"`
	TimeoutMs     int64           `json:"timeoutMs,omitempty"`
}

func (h *Handler) handleFetchEvidence(w http.ResponseWriter, r *http.Request) {
	var req fetchEvidenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := h.svc.CreateEvidenceTask(r.Context(), r.PathValue("tripId"), evidence.Request{
		EvidenceTypes: req.EvidenceTypes,
		TargetIDs:     req.TargetIDs,
		Async:         req.Async,
		Timeout:       time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if req.Async {
		status = http.StatusAccepted
		w.Header().Set("Location", "/evidence/tasks/"+task.TaskID)
	}
	writeJSON(w, status, task)
}

type refreshEvidenceRequest struct {
	EvidenceID string `json:"evidenceId,omitempty"`
}

func (h *Handler) handleRefreshEvidence(w http.ResponseWriter, r *http.Request) {
	var req refreshEvidenceRequest
	// The body is optional.
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	task, err := h.svc.RefreshEvidence(r.Context(), r.PathValue("tripId"), req.EvidenceID)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/evidence/tasks/"+task.TaskID)
	writeJSON(w, http.StatusAccepted, task)
}

func (h *Handler) handlePollTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.PollEvidenceTask(r.Context(), r.PathValue("taskId"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.CancelEvidenceTask(r.PathValue("taskId"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleDisposeTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DisposeEvidenceTask(r.PathValue("taskId")); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleArchivedReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.ArchivedReport(r.Context(), r.PathValue("ref"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
