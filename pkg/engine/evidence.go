package engine

import (
	"context"
	"errors"
	"time"

	"github.com/tripnara/readiness/pkg/evidence"
	"github.com/tripnara/readiness/pkg/observability"
)

// evidenceReevaluateTimeout bounds the re-evaluation triggered by a finished task.
const evidenceReevaluateTimeout = 30 * time.Second

// EvidenceCoverage feeds the evidence-coverage dimension from completed tasks.
type EvidenceCoverage struct {
	Store evidence.Store
}

func (c EvidenceCoverage) Coverage(ctx context.Context, tripID string) (float64, bool, error) {
	t, ok, err := c.Store.LatestCompleted(ctx, tripID)
	if err != nil || !ok || t.Result == nil {
		return 0, false, err
	}
	return t.Result.Coverage(), true, nil
}

// CreateEvidenceTask starts an evidence fetch for a trip.
func (s *Service) CreateEvidenceTask(ctx context.Context, tripID string, req evidence.Request) (task evidence.Task, err error) {
	ctx, finish := s.obs.TrackOperation(ctx, "readiness.evidence.create",
		observability.EvidenceOperation(tripID, len(req.TargetIDs))...)
	defer func() { finish(err) }()

	req.TripID = tripID
	return s.evidence.CreateTask(ctx, req)
}

// RefreshEvidence re-fetches evidence for a trip as an async task. Without an
// evidenceID it repeats the targets and types of the trip's latest completed
// task, or fetches every type for the destination when there is none. With
// one, only that target is refreshed.
func (s *Service) RefreshEvidence(ctx context.Context, tripID, evidenceID string) (evidence.Task, error) {
	tc, err := s.loadTrip(ctx, tripID)
	if err != nil {
		return evidence.Task{}, err
	}
	req := evidence.Request{
		EvidenceTypes: append([]evidence.Type(nil), evidence.KnownTypes...),
		TargetIDs:     []string{tc.DestinationID},
		Async:         true,
	}
	prev, ok, err := s.evidence.Store().LatestCompleted(ctx, tripID)
	if err != nil {
		s.logger.WarnContext(ctx, "latest evidence lookup failed", "trip_id", tripID, "error", err)
	}
	if ok && prev.Result != nil && len(prev.Result.Items) > 0 {
		req.EvidenceTypes = prev.Result.RequestedTypes
		req.TargetIDs = req.TargetIDs[:0]
		for _, it := range prev.Result.Items {
			req.TargetIDs = append(req.TargetIDs, it.TargetID)
		}
	}
	if evidenceID != "" {
		req.TargetIDs = []string{evidenceID}
	}
	return s.CreateEvidenceTask(ctx, tripID, req)
}

// PollEvidenceTask returns a task snapshot. Disposed tasks are served from the
// snapshot store.
func (s *Service) PollEvidenceTask(ctx context.Context, taskID string) (evidence.Task, error) {
	t, err := s.evidence.Poll(taskID)
	if errors.Is(err, evidence.ErrTaskNotFound) {
		return s.evidence.Snapshot(ctx, taskID)
	}
	return t, err
}

// CancelEvidenceTask cancels a running task.
func (s *Service) CancelEvidenceTask(taskID string) (evidence.Task, error) {
	return s.evidence.Cancel(taskID)
}

// DisposeEvidenceTask forgets a task; its terminal snapshot stays in the store.
func (s *Service) DisposeEvidenceTask(taskID string) error {
	return s.evidence.Dispose(taskID)
}

// onEvidenceComplete refreshes the cached report of an evaluated trip once new
// evidence lands. Trips that were never evaluated are left alone.
func (s *Service) onEvidenceComplete(t evidence.Task) {
	if t.Status != evidence.StatusCompleted || t.TripID == "" {
		return
	}
	s.mu.RLock()
	_, evaluated := s.latest[t.TripID]
	s.mu.RUnlock()
	if !evaluated {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), evidenceReevaluateTimeout)
	defer cancel()
	if _, err := s.Reevaluate(ctx, t.TripID); err != nil {
		s.logger.WarnContext(ctx, "re-evaluation after evidence failed",
			"trip_id", t.TripID, "task_id", t.TaskID, "error", err)
	}
}
