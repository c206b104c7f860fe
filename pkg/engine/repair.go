package engine

import (
	"context"

	"github.com/tripnara/readiness/pkg/observability"
	"github.com/tripnara/readiness/pkg/repair"
)

// SelectBlocker selects a blocker from the latest report and loads its repair options.
func (s *Service) SelectBlocker(ctx context.Context, tripID, blockerID string) (wf repair.Workflow, err error) {
	ctx, finish := s.obs.TrackOperation(ctx, "readiness.repair.select",
		observability.RepairOperation(tripID, blockerID, "")...)
	defer func() { finish(err) }()
	return s.repairs.SelectBlocker(ctx, tripID, blockerID)
}

// ApplyRepair applies an option loaded for blockerID and re-evaluates the trip.
// Re-applying an already applied (blocker, option) returns the recorded outcome.
func (s *Service) ApplyRepair(ctx context.Context, tripID, blockerID, optionID string) (res repair.ApplyResult, err error) {
	ctx, finish := s.obs.TrackOperation(ctx, "readiness.repair.apply",
		observability.RepairOperation(tripID, blockerID, optionID)...)
	defer func() { finish(err) }()

	return s.repairs.ApplyOption(ctx, tripID, blockerID, optionID)
}

// AutoRepair applies the top option of every current blocker and re-evaluates once.
func (s *Service) AutoRepair(ctx context.Context, tripID string) (res repair.AutoRepairResult, err error) {
	ctx, finish := s.obs.TrackOperation(ctx, "readiness.repair.auto",
		observability.RepairOperation(tripID, "", "")...)
	defer func() { finish(err) }()

	return s.repairs.AutoRepair(ctx, tripID)
}

// RepairState returns the trip's repair workflow.
func (s *Service) RepairState(tripID string) repair.Workflow {
	return s.repairs.State(tripID)
}

// ResetRepair drops any blocker selection.
func (s *Service) ResetRepair(tripID string) error {
	return s.repairs.Reset(tripID)
}
