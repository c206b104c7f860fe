package pack

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tripnara/readiness/pkg/condition"
	"github.com/tripnara/readiness/pkg/trip"
)

// TriggerEvaluator decides whether a trigger holds for a CEL input map.
type TriggerEvaluator interface {
	Evaluate(t condition.Trigger, input map[string]any) (bool, error)
}

// Engine evaluates capability packs against a trip context.
// Packs run in parallel; a failing pack never affects its siblings.
type Engine struct {
	eval   TriggerEvaluator
	limit  int
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConcurrency bounds the number of packs evaluated at once.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// NewEngine creates an engine using ev for trigger evaluation.
func NewEngine(ev TriggerEvaluator, opts ...EngineOption) *Engine {
	e := &Engine{
		eval:   ev,
		limit:  runtime.GOMAXPROCS(0),
		logger: slog.Default().With("component", "pack_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every pack and returns one result per pack in input order.
func (e *Engine) Evaluate(ctx context.Context, tc trip.Context, packs []CapabilityPack) []PackResult {
	results := make([]PackResult, len(packs))
	input := tc.Input()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := range packs {
		i := i
		g.Go(func() error {
			results[i] = e.evaluatePack(gctx, packs[i], input)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) evaluatePack(ctx context.Context, p CapabilityPack, input map[string]any) (res PackResult) {
	res = PackResult{
		PackType:    p.Type,
		DisplayName: p.DisplayName,
		Sources:     p.Sources,
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("pack evaluation panicked", "pack", p.Type, "panic", r)
			res = failed(res, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(res, err)
	}

	var reasons []string
	for _, rule := range p.Rules {
		ok, err := e.eval.Evaluate(rule.Trigger, input)
		if err != nil {
			e.logger.Warn("rule evaluation failed", "pack", p.Type, "rule", rule.ID, "error", err)
			return failed(res, fmt.Errorf("rule %s: %w", rule.ID, err))
		}
		rr := RuleResult{
			ID:             rule.ID,
			Level:          rule.Level,
			Category:       rule.Category,
			Severity:       rule.Severity,
			Message:        rule.Message,
			ActionRequired: rule.ActionRequired,
			AffectedDays:   rule.AffectedDays,
			RepairHints:    rule.RepairHints,
			Triggered:      ok,
		}
		if ok {
			rr.Reason = rule.Trigger.String()
			reasons = append(reasons, rr.Reason)
		}
		res.Rules = append(res.Rules, rr)
	}

	if len(reasons) > 0 {
		res.Triggered = true
		res.TriggerReason = strings.Join(reasons, "; ")
		res.Hazards = append([]Hazard(nil), p.Hazards...)
	}
	return res
}

func failed(res PackResult, err error) PackResult {
	res.Failed = true
	res.Triggered = false
	res.TriggerReason = ""
	res.Hazards = nil
	res.Error = err.Error()
	return res
}
