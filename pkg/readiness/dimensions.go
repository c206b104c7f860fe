package readiness

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/trip"
)

var errInsufficientData = errors.New("insufficient trip data")

// CoverageSource reports the fraction (0..1) of a trip's stops with fresh evidence.
// ok is false when no evidence has been collected yet.
type CoverageSource interface {
	Coverage(ctx context.Context, tripID string) (ratio float64, ok bool, err error)
}

// EvidenceCoverageEvaluator scores how much of the trip is backed by evidence.
type EvidenceCoverageEvaluator struct {
	Source CoverageSource
}

func (EvidenceCoverageEvaluator) Dimension() Dimension { return DimEvidenceCoverage }

func (e EvidenceCoverageEvaluator) Evaluate(ctx context.Context, tc trip.Context) (DimensionResult, error) {
	if e.Source == nil {
		return DimensionResult{}, errors.New("no coverage source configured")
	}
	ratio, ok, err := e.Source.Coverage(ctx, tc.TripID)
	if err != nil {
		return DimensionResult{}, fmt.Errorf("coverage lookup: %w", err)
	}
	if !ok {
		return DimensionResult{}, fmt.Errorf("no evidence collected for trip %s: %w", tc.TripID, errInsufficientData)
	}
	res := DimensionResult{Score: int(math.Round(ratio * 100))}
	if ratio < 0.5 {
		res.Findings = append(res.Findings, Finding{
			ID:             "evidence.low_coverage",
			Category:       pack.CategoryEvidence,
			Type:           TypeShould,
			Severity:       pack.SeverityMedium,
			Message:        "Less than half of the trip's stops have current evidence.",
			ActionRequired: "Fetch weather, road and opening-hours evidence.",
			RepairHints:    []string{"fetch_weather", "check_road", "check_hours"},
		})
	}
	return res, nil
}

// MaxComfortableKmPerDay is the daily driving distance above which schedule
// feasibility starts to drop.
const MaxComfortableKmPerDay = 250.0

// ScheduleEvaluator scores daily driving load.
type ScheduleEvaluator struct{}

func (ScheduleEvaluator) Dimension() Dimension { return DimScheduleFeasibility }

func (ScheduleEvaluator) Evaluate(_ context.Context, tc trip.Context) (DimensionResult, error) {
	days := tc.Days()
	if tc.RouteLengthKm == nil || days == 0 {
		return DimensionResult{}, errInsufficientData
	}
	perDay := *tc.RouteLengthKm / float64(days)
	score := 100
	if perDay > MaxComfortableKmPerDay {
		score = 100 - int(math.Round((perDay-MaxComfortableKmPerDay)/5))
		if score < 30 {
			score = 30
		}
	}
	res := DimensionResult{Score: score}
	if perDay > 2*MaxComfortableKmPerDay {
		res.Findings = append(res.Findings, Finding{
			ID:             "schedule.daily_distance",
			Category:       pack.CategorySchedule,
			Type:           TypeMust,
			Severity:       pack.SeverityMedium,
			Message:        fmt.Sprintf("Average driving of %.0f km per day leaves no time for stops.", perDay),
			ActionRequired: "Add a day or drop distant stops.",
			RepairHints:    []string{"remove_pois", "move_to_day"},
		})
	}
	return res, nil
}

// TransportEvaluator scores how certain the trip's transport is.
type TransportEvaluator struct{}

func (TransportEvaluator) Dimension() Dimension { return DimTransportCertainty }

func (TransportEvaluator) Evaluate(_ context.Context, tc trip.Context) (DimensionResult, error) {
	score := 90
	var res DimensionResult
	if tc.VehicleType == "" {
		score -= 15
		res.Findings = append(res.Findings, Finding{
			ID:       "transport.vehicle_unconfirmed",
			Category: pack.CategoryTransport,
			Type:     TypeOptional,
			Severity: pack.SeverityLow,
			Message:  "No vehicle is recorded for this trip.",
		})
	}
	if isTrue(tc.Geo.HasSeaCrossing) {
		score -= 10
	}
	if isTrue(tc.Geo.MountainPass) {
		score -= 10
	}
	if tc.Season == trip.SeasonWinter {
		score -= 10
	}
	res.Score = score
	return res, nil
}

// BufferEvaluator scores slack in the itinerary.
type BufferEvaluator struct{}

func (BufferEvaluator) Dimension() Dimension { return DimBuffers }

func (BufferEvaluator) Evaluate(_ context.Context, tc trip.Context) (DimensionResult, error) {
	days := tc.Days()
	if days == 0 {
		return DimensionResult{}, errInsufficientData
	}
	score := 40 + 10*days
	if tc.Season == trip.SeasonWinter {
		score -= 10
	}
	res := DimensionResult{Score: clamp(score)}
	if days == 1 && tc.RouteLengthKm != nil && *tc.RouteLengthKm > 300 {
		res.Findings = append(res.Findings, Finding{
			ID:       "buffer.no_slack",
			Category: pack.CategoryBuffer,
			Type:     TypeShould,
			Severity: pack.SeverityMedium,
			Message:  "A long single-day route leaves no buffer for delays.",
		})
	}
	return res, nil
}

// DefaultEvaluators returns the built-in dimension evaluators.
func DefaultEvaluators(coverage CoverageSource) []DimensionEvaluator {
	return []DimensionEvaluator{
		EvidenceCoverageEvaluator{Source: coverage},
		ScheduleEvaluator{},
		TransportEvaluator{},
		BufferEvaluator{},
	}
}

func isTrue(b *bool) bool { return b != nil && *b }
