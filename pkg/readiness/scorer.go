package readiness

import (
	"time"

	"github.com/tripnara/readiness/pkg/pack"
)

// Penalties applied to the overall score.
const (
	BlockerPenalty  = 20
	HighRiskPenalty = 10
	RiskPenalty     = 5
)

// Scorer computes score breakdowns and statuses.
type Scorer struct {
	clock func() time.Time
}

// NewScorer creates a scorer using the wall clock.
func NewScorer() *Scorer {
	return &Scorer{clock: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (s *Scorer) WithClock(clock func() time.Time) *Scorer {
	s.clock = clock
	return s
}

// Counts are the finding and risk tallies the formula depends on.
type Counts struct {
	Blockers  int
	Must      int
	HighRisks int
	Risks     int
}

// Tally counts blockers, must findings and risks.
func Tally(findings []Finding, risks []Risk) Counts {
	var c Counts
	for _, f := range findings {
		switch f.Type {
		case TypeBlocker:
			c.Blockers++
		case TypeMust:
			c.Must++
		}
	}
	for _, r := range risks {
		c.Risks++
		if r.Severity == pack.SeverityHigh {
			c.HighRisks++
		}
	}
	return c
}

// Overall is 100 minus penalties for blockers, high risks and all risks, clamped to 0..100.
func Overall(c Counts) int {
	return clamp(100 - BlockerPenalty*c.Blockers - HighRiskPenalty*c.HighRisks - RiskPenalty*c.Risks)
}

// SafetyRisk drops 20 points per high-severity risk.
func SafetyRisk(c Counts) int {
	return clamp(100 - 20*c.HighRisks)
}

// StatusFor derives the status from blocker and must counts.
func StatusFor(c Counts) Status {
	switch {
	case c.Blockers > 0:
		return StatusNotReady
	case c.Must > 0:
		return StatusNearly
	default:
		return StatusReady
	}
}

// Score computes the breakdown and status for an aggregation.
func (s *Scorer) Score(agg Aggregation) (ScoreBreakdown, Status) {
	c := Tally(agg.Findings, agg.Risks)

	dim := func(d Dimension) int {
		if v, ok := agg.Dimensions[d]; ok {
			return v
		}
		return Fallbacks[d]
	}

	var degraded map[Dimension]bool
	for d, flag := range agg.Degraded {
		if !flag {
			continue
		}
		if degraded == nil {
			degraded = make(map[Dimension]bool)
		}
		degraded[d] = true
	}

	return ScoreBreakdown{
		EvidenceCoverage:    dim(DimEvidenceCoverage),
		ScheduleFeasibility: dim(DimScheduleFeasibility),
		TransportCertainty:  dim(DimTransportCertainty),
		SafetyRisk:          SafetyRisk(c),
		Buffers:             dim(DimBuffers),
		Overall:             Overall(c),
		Degraded:            degraded,
		CalculatedAt:        s.clock().UTC(),
	}, StatusFor(c)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
