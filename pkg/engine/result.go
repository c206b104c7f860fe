package engine

import (
	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/repair"
)

// ReadinessResult is the client-facing view of a report plus repair state.
type ReadinessResult struct {
	TripID            string                   `json:"tripId"`
	Status            readiness.Status         `json:"status"`
	Score             readiness.ScoreBreakdown `json:"score"`
	Findings          []readiness.Finding      `json:"findings"`
	Risks             []readiness.Risk         `json:"risks"`
	Blockers          []readiness.Blocker      `json:"blockers"`
	Watchlist         []readiness.Blocker      `json:"watchlist,omitempty"`
	Packs             []pack.PackResult        `json:"packs"`
	RepairState       repair.State             `json:"repairState"`
	RepairOptions     []repair.Option          `json:"repairOptions"`
	SelectedBlockerID string                   `json:"selectedBlockerId,omitempty"`
	ReportRef         string                   `json:"reportRef,omitempty"`
}

func newResult(r readiness.Report, wf repair.Workflow) ReadinessResult {
	options := wf.Options
	if options == nil {
		options = []repair.Option{}
	}
	return ReadinessResult{
		TripID:            r.TripID,
		Status:            r.Status,
		Score:             r.Score,
		Findings:          r.Findings,
		Risks:             r.Risks,
		Blockers:          r.Blockers,
		Watchlist:         r.Watchlist,
		Packs:             r.Packs,
		RepairState:       wf.State,
		RepairOptions:     options,
		SelectedBlockerID: wf.SelectedBlockerID(),
	}
}
