package readiness

import (
	"github.com/tripnara/readiness/pkg/pack"
)

// WatchlistSize caps the should-level items surfaced for ready trips.
const WatchlistSize = 3

// BuildReport assembles the final report from an aggregation and its score.
func BuildReport(tripID string, packs []pack.PackResult, agg Aggregation, score ScoreBreakdown, status Status) Report {
	r := Report{
		TripID:   tripID,
		Status:   status,
		Score:    score,
		Findings: nonNilFindings(agg.Findings),
		Risks:    nonNilRisks(agg.Risks),
		Blockers: []Blocker{},
		Packs:    packs,
	}
	for _, f := range r.Findings {
		if f.Type == TypeBlocker {
			r.Blockers = append(r.Blockers, blockerFromFinding(f, score))
		}
	}
	if status == StatusReady {
		r.Watchlist = Watchlist(r.Findings, score)
	}
	return r
}

// Watchlist lists up to WatchlistSize should-level findings as medium blockers.
func Watchlist(findings []Finding, score ScoreBreakdown) []Blocker {
	var out []Blocker
	for _, f := range findings {
		if f.Type != TypeShould {
			continue
		}
		b := blockerFromFinding(f, score)
		b.Severity = BlockerMedium
		out = append(out, b)
		if len(out) == WatchlistSize {
			break
		}
	}
	return out
}

func blockerFromFinding(f Finding, score ScoreBreakdown) Blocker {
	return Blocker{
		ID:          f.ID,
		Title:       f.Message,
		Severity:    blockerSeverity(f.Severity),
		ImpactScope: impactScope(f.AffectedDays),
		EvidenceSummary: EvidenceSummary{
			Source:    f.Source,
			Timestamp: score.CalculatedAt,
		},
		Category:    f.Category,
		RepairHints: f.RepairHints,
	}
}

func blockerSeverity(s pack.Severity) BlockerSeverity {
	switch s {
	case pack.SeverityHigh:
		return BlockerCritical
	case pack.SeverityMedium:
		return BlockerHigh
	default:
		return BlockerMedium
	}
}

// Checklist groups findings by type.
type Checklist struct {
	Blocker  []Finding        `json:"blocker"`
	Must     []Finding        `json:"must"`
	Should   []Finding        `json:"should"`
	Optional []Finding        `json:"optional"`
	Summary  ChecklistSummary `json:"summary"`
}

// ChecklistSummary counts checklist items per type.
type ChecklistSummary struct {
	Total    int `json:"total"`
	Blocker  int `json:"blocker"`
	Must     int `json:"must"`
	Should   int `json:"should"`
	Optional int `json:"optional"`
}

// BuildChecklist groups findings; the input order is preserved in each group.
func BuildChecklist(findings []Finding) Checklist {
	c := Checklist{
		Blocker:  []Finding{},
		Must:     []Finding{},
		Should:   []Finding{},
		Optional: []Finding{},
	}
	for _, f := range findings {
		switch NormalizeType(string(f.Type)) {
		case TypeBlocker:
			c.Blocker = append(c.Blocker, f)
		case TypeMust:
			c.Must = append(c.Must, f)
		case TypeShould:
			c.Should = append(c.Should, f)
		default:
			c.Optional = append(c.Optional, f)
		}
	}
	c.Summary = ChecklistSummary{
		Total:    len(findings),
		Blocker:  len(c.Blocker),
		Must:     len(c.Must),
		Should:   len(c.Should),
		Optional: len(c.Optional),
	}
	return c
}

// RiskSummary counts risks by severity.
type RiskSummary struct {
	TotalRisks     int    `json:"totalRisks"`
	HighSeverity   int    `json:"highSeverity"`
	MediumSeverity int    `json:"mediumSeverity"`
	LowSeverity    int    `json:"lowSeverity"`
	Risks          []Risk `json:"risks"`
}

// SummarizeRisks builds the risk warning summary.
func SummarizeRisks(risks []Risk) RiskSummary {
	s := RiskSummary{TotalRisks: len(risks), Risks: nonNilRisks(risks)}
	for _, r := range risks {
		switch r.Severity {
		case pack.SeverityHigh:
			s.HighSeverity++
		case pack.SeverityMedium:
			s.MediumSeverity++
		default:
			s.LowSeverity++
		}
	}
	return s
}

func nonNilFindings(fs []Finding) []Finding {
	if fs == nil {
		return []Finding{}
	}
	return fs
}

func nonNilRisks(rs []Risk) []Risk {
	if rs == nil {
		return []Risk{}
	}
	return rs
}
