package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/trip"
)

// idNamespace scopes deterministic ids derived from rule and hazard names.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://tripnara.dev/readiness"))

// DimensionResult is what a dimension evaluator contributes.
type DimensionResult struct {
	Score    int
	Findings []Finding
}

// DimensionEvaluator scores one dimension of readiness.
// Returning an error degrades that dimension to its fallback score.
type DimensionEvaluator interface {
	Dimension() Dimension
	Evaluate(ctx context.Context, tc trip.Context) (DimensionResult, error)
}

// Aggregation is the merged input to the scorer.
type Aggregation struct {
	Findings   []Finding
	Risks      []Risk
	Dimensions map[Dimension]int
	Degraded   map[Dimension]bool
}

// Aggregator merges pack results and dimension evaluations.
type Aggregator struct {
	evaluators []DimensionEvaluator
	logger     *slog.Logger
}

// NewAggregator creates an aggregator over the given dimension evaluators.
func NewAggregator(evaluators ...DimensionEvaluator) *Aggregator {
	return &Aggregator{
		evaluators: evaluators,
		logger:     slog.Default().With("component", "finding_aggregator"),
	}
}

// Aggregate never fails: unavailable dimensions fall back and are flagged.
func (a *Aggregator) Aggregate(ctx context.Context, tc trip.Context, packs []pack.PackResult) Aggregation {
	agg := Aggregation{
		Dimensions: make(map[Dimension]int, len(Fallbacks)),
		Degraded:   make(map[Dimension]bool),
	}

	seenRisk := map[string]struct{}{}
	for _, pr := range packs {
		if pr.Failed {
			// A failed pack may hide a safety finding.
			agg.Degraded[DimSafetyRisk] = true
			continue
		}
		if !pr.Triggered {
			continue
		}
		for _, rr := range pr.TriggeredRules() {
			agg.Findings = append(agg.Findings, findingFromRule(pr.PackType, rr))
		}
		for _, h := range pr.Hazards {
			r := riskFromHazard(pr, h)
			if _, dup := seenRisk[r.ID]; dup {
				continue
			}
			seenRisk[r.ID] = struct{}{}
			agg.Risks = append(agg.Risks, r)
		}
	}

	results := make([]dimensionOutcome, len(a.evaluators))
	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range a.evaluators {
		i, ev := i, ev
		g.Go(func() error {
			results[i] = a.runDimension(gctx, ev, tc)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range results {
		if out.err != nil {
			a.logger.Warn("dimension degraded", "dimension", out.dim, "trip_id", tc.TripID, "error", out.err)
			agg.Degraded[out.dim] = true
			continue
		}
		agg.Dimensions[out.dim] = clamp(out.result.Score)
		for _, f := range out.result.Findings {
			agg.Findings = append(agg.Findings, normalizeFinding(out.dim, f))
		}
	}
	for dim, fallback := range Fallbacks {
		if _, ok := agg.Dimensions[dim]; !ok {
			agg.Dimensions[dim] = fallback
			agg.Degraded[dim] = true
		}
	}

	SortFindings(agg.Findings)
	sortRisks(agg.Risks)
	return agg
}

type dimensionOutcome struct {
	dim    Dimension
	result DimensionResult
	err    error
}

func (a *Aggregator) runDimension(ctx context.Context, ev DimensionEvaluator, tc trip.Context) (out dimensionOutcome) {
	out.dim = ev.Dimension()
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("%w: dimension %s panicked: %v", ErrUpstreamUnavailable, out.dim, r)
		}
	}()
	res, err := ev.Evaluate(ctx, tc)
	if err != nil {
		out.err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		return out
	}
	out.result = res
	return out
}

func findingFromRule(packType string, rr pack.RuleResult) Finding {
	return Finding{
		ID:             rr.ID,
		Category:       rr.Category,
		Type:           NormalizeType(string(rr.Level)),
		Severity:       rr.Severity,
		Message:        rr.Message,
		ActionRequired: rr.ActionRequired,
		AffectedDays:   rr.AffectedDays,
		Source:         packType,
		RepairHints:    rr.RepairHints,
	}
}

func normalizeFinding(dim Dimension, f Finding) Finding {
	f.Type = NormalizeType(string(f.Type))
	if f.Source == "" {
		f.Source = string(dim)
	}
	if f.Severity == "" {
		f.Severity = pack.SeverityMedium
	}
	if f.ID == "" {
		f.ID = uuid.NewSHA1(idNamespace, []byte(f.Source+"/"+f.Message)).String()
	}
	return f
}

func riskFromHazard(pr pack.PackResult, h pack.Hazard) Risk {
	r := Risk{
		ID:         uuid.NewSHA1(idNamespace, []byte(pr.PackType+"/"+h.Type)).String(),
		Type:       h.Type,
		Severity:   h.Severity,
		Message:    h.Summary,
		Mitigation: h.Mitigations,
		PackType:   pr.PackType,
	}
	for _, s := range pr.Sources {
		r.PackSources = append(r.PackSources, PackSource{Authority: s.Authority, Title: s.Title, URL: s.URL})
	}
	if len(r.PackSources) == 0 {
		r.PackSources = []PackSource{{Authority: "capability pack", Title: pr.DisplayName}}
	}
	return r
}

// SortFindings orders findings by type rank, then category, then id.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if typeRank[a.Type] != typeRank[b.Type] {
			return typeRank[a.Type] < typeRank[b.Type]
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.ID < b.ID
	})
}

var severityRank = map[pack.Severity]int{
	pack.SeverityHigh:   0,
	pack.SeverityMedium: 1,
	pack.SeverityLow:    2,
}

func sortRisks(rs []Risk) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.PackType != b.PackType {
			return a.PackType < b.PackType
		}
		return a.Type < b.Type
	})
}
