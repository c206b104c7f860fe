// Package engine wires trip loading, capability packs, scoring, repair and
// evidence collection into one readiness service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tripnara/readiness/pkg/archive"
	"github.com/tripnara/readiness/pkg/evidence"
	"github.com/tripnara/readiness/pkg/observability"
	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/repair"
	"github.com/tripnara/readiness/pkg/trip"
)

// Options configures a Service. Repository, Packs and PackEngine are required.
type Options struct {
	Repository trip.Repository
	Packs      *pack.Registry
	PackEngine *pack.Engine

	// Enrichers defaults to the Iceland enricher.
	Enrichers *trip.EnricherRegistry
	// RepairProvider defaults to a StaticProvider over Repository.
	RepairProvider repair.OptionsProvider
	// Ledger defaults to an in-memory ledger.
	Ledger repair.AppliedLedger
	// Evidence defaults to an orchestrator over a SimulatedSource.
	Evidence *evidence.Orchestrator
	// Evaluators defaults to readiness.DefaultEvaluators fed by evidence coverage.
	Evaluators []readiness.DimensionEvaluator
	// Archive keeps a content-addressed copy of every stored-trip report. Nil disables it.
	Archive *archive.Reports

	Observability *observability.Provider
	Clock         func() time.Time
}

// Service is the readiness facade. It caches the latest report per trip so the
// repair workflow can select blockers without re-running the pipeline.
type Service struct {
	repo       trip.Repository
	enrichers  *trip.EnricherRegistry
	packs      *pack.Registry
	packEngine *pack.Engine
	aggregator *readiness.Aggregator
	scorer     *readiness.Scorer
	repairs    *repair.Manager
	evidence   *evidence.Orchestrator
	obs        *observability.Provider
	archive    *archive.Reports

	mu     sync.RWMutex
	latest map[string]readiness.Report
	refs   map[string]string

	logger *slog.Logger
}

// New builds a Service from opts.
func New(opts Options) (*Service, error) {
	if opts.Repository == nil || opts.Packs == nil || opts.PackEngine == nil {
		return nil, errors.New("engine: repository, packs and pack engine are required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	if opts.Enrichers == nil {
		opts.Enrichers = trip.NewEnricherRegistry(trip.IcelandEnricher{})
	}
	if opts.RepairProvider == nil {
		opts.RepairProvider = repair.NewStaticProvider(opts.Repository)
	}
	if opts.Evidence == nil {
		opts.Evidence = evidence.NewOrchestrator(&evidence.SimulatedSource{}, evidence.WithClock(clock))
	}
	if opts.Evaluators == nil {
		opts.Evaluators = readiness.DefaultEvaluators(EvidenceCoverage{Store: opts.Evidence.Store()})
	}

	s := &Service{
		repo:       opts.Repository,
		enrichers:  opts.Enrichers,
		packs:      opts.Packs,
		packEngine: opts.PackEngine,
		aggregator: readiness.NewAggregator(opts.Evaluators...),
		scorer:     readiness.NewScorer().WithClock(clock),
		evidence:   opts.Evidence,
		obs:        opts.Observability,
		archive:    opts.Archive,
		latest:     make(map[string]readiness.Report),
		refs:       make(map[string]string),
		logger:     slog.Default().With("component", "engine"),
	}
	s.repairs = repair.NewManager(opts.RepairProvider, opts.Ledger, s).WithClock(clock)
	s.evidence.OnComplete(s.onEvidenceComplete)
	return s, nil
}

// Close stops running evidence tasks.
func (s *Service) Close() error {
	return s.evidence.Close()
}

// Evaluate runs the full pipeline for a stored trip.
func (s *Service) Evaluate(ctx context.Context, tripID string) (ReadinessResult, error) {
	report, err := s.Reevaluate(ctx, tripID)
	if err != nil {
		return ReadinessResult{}, err
	}
	result := newResult(report, s.repairs.State(tripID))
	result.ReportRef = s.reportRef(tripID)
	return result, nil
}

// Reevaluate loads the trip, runs the pipeline and caches the report.
func (s *Service) Reevaluate(ctx context.Context, tripID string) (readiness.Report, error) {
	tc, err := s.loadTrip(ctx, tripID)
	if err != nil {
		return readiness.Report{}, err
	}
	report, err := s.EvaluateContext(ctx, tc)
	if err != nil {
		return readiness.Report{}, err
	}
	ref := s.archiveReport(ctx, report)
	s.mu.Lock()
	s.latest[tripID] = report
	if ref != "" {
		s.refs[tripID] = ref
	}
	s.mu.Unlock()
	return report, nil
}

func (s *Service) loadTrip(ctx context.Context, tripID string) (trip.Context, error) {
	tc, err := s.repo.GetTripContext(ctx, tripID)
	if err != nil {
		if errors.Is(err, trip.ErrTripNotFound) {
			return trip.Context{}, fmt.Errorf("trip %s: %w", tripID, err)
		}
		return trip.Context{}, fmt.Errorf("%w: load trip %s: %v", readiness.ErrUpstreamUnavailable, tripID, err)
	}
	if tc.TripID == "" {
		tc.TripID = tripID
	}
	return tc, nil
}

// archiveReport stores report when an archive is configured. Failures are
// logged and never fail the evaluation.
func (s *Service) archiveReport(ctx context.Context, report readiness.Report) string {
	if !s.archive.Enabled() {
		return ""
	}
	ref, err := s.archive.Put(ctx, report)
	if err != nil {
		s.logger.WarnContext(ctx, "report archive failed", "trip_id", report.TripID, "error", err)
		return ""
	}
	return ref
}

func (s *Service) reportRef(tripID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs[tripID]
}

// ArchivedReport loads a previously archived report by reference.
func (s *Service) ArchivedReport(ctx context.Context, ref string) (readiness.Report, error) {
	return s.archive.Get(ctx, ref)
}

// Latest returns the cached report, evaluating the trip when none exists.
func (s *Service) Latest(ctx context.Context, tripID string) (readiness.Report, error) {
	s.mu.RLock()
	report, ok := s.latest[tripID]
	s.mu.RUnlock()
	if ok {
		return report, nil
	}
	return s.Reevaluate(ctx, tripID)
}

// EvaluateContext runs the pipeline on a trip context without touching the
// repository or the cache. Malformed contexts fail with trip.ErrValidation.
func (s *Service) EvaluateContext(ctx context.Context, tc trip.Context) (report readiness.Report, err error) {
	ctx, finish := s.obs.TrackOperation(ctx, "readiness.evaluate",
		observability.EvaluationOperation(tc.TripID, tc.DestinationID)...)
	defer func() { finish(err) }()

	prepared, err := s.prepare(tc)
	if err != nil {
		return readiness.Report{}, err
	}

	results := s.packEngine.Evaluate(ctx, prepared, s.packs.Packs())
	agg := s.aggregator.Aggregate(ctx, prepared, results)
	// A cancelled evaluation is reported as an error, never a partial report.
	if err := ctx.Err(); err != nil {
		return readiness.Report{}, fmt.Errorf("evaluate trip %s: %w", tc.TripID, err)
	}
	score, status := s.scorer.Score(agg)
	report = readiness.BuildReport(prepared.TripID, results, agg, score, status)

	summary := pack.Summarize(results)
	observability.SetSpanAttributes(ctx,
		observability.AttrStatus.String(string(status)),
		observability.AttrOverall.Int(score.Overall),
		observability.AttrDegraded.Bool(score.IsDegraded()),
		observability.AttrPackCount.Int(summary.Total),
		observability.AttrPackTriggered.Int(summary.Triggered),
	)
	s.logger.InfoContext(ctx, "trip evaluated",
		"trip_id", prepared.TripID,
		"status", status,
		"overall", score.Overall,
		"packs_triggered", summary.Triggered,
		"packs_failed", summary.Failed,
		"degraded", score.IsDegraded(),
	)
	return report, nil
}

func (s *Service) prepare(tc trip.Context) (trip.Context, error) {
	prepared, err := trip.Prepare(tc)
	if err != nil {
		return trip.Context{}, err
	}
	return s.enrichers.Enrich(prepared), nil
}

// ListPacks returns the pack catalogue.
func (s *Service) ListPacks() []pack.Info {
	return s.packs.List()
}

// Pack returns the catalogue entry of one pack.
func (s *Service) Pack(packType string) (pack.Info, bool) {
	p, ok := s.packs.Get(packType)
	if !ok {
		return pack.Info{}, false
	}
	return pack.InfoOf(p), true
}

// EvaluatePacks runs only the capability packs against a trip context.
func (s *Service) EvaluatePacks(ctx context.Context, tc trip.Context) (pack.Summary, error) {
	prepared, err := s.prepare(tc)
	if err != nil {
		return pack.Summary{}, err
	}
	return pack.Summarize(s.packEngine.Evaluate(ctx, prepared, s.packs.Packs())), nil
}

// Checklist groups the latest findings by type.
func (s *Service) Checklist(ctx context.Context, tripID string) (readiness.Checklist, error) {
	report, err := s.Latest(ctx, tripID)
	if err != nil {
		return readiness.Checklist{}, err
	}
	return readiness.BuildChecklist(report.Findings), nil
}

// RiskSummary counts the latest risks by severity.
func (s *Service) RiskSummary(ctx context.Context, tripID string) (readiness.RiskSummary, error) {
	report, err := s.Latest(ctx, tripID)
	if err != nil {
		return readiness.RiskSummary{}, err
	}
	return readiness.SummarizeRisks(report.Risks), nil
}
