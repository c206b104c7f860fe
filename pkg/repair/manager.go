package repair

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tripnara/readiness/pkg/readiness"
)

// OptionsProvider supplies and applies repair options for a blocker.
type OptionsProvider interface {
	GetOptions(ctx context.Context, tripID string, blocker readiness.Blocker) ([]Option, error)
	Apply(ctx context.Context, tripID string, blocker readiness.Blocker, option Option) error
}

// Reevaluator gives the workflow access to readiness reports.
// Latest may serve a cached report; Reevaluate always runs the full pipeline.
type Reevaluator interface {
	Latest(ctx context.Context, tripID string) (readiness.Report, error)
	Reevaluate(ctx context.Context, tripID string) (readiness.Report, error)
}

type tripFlow struct {
	mu sync.Mutex // held for the whole of one transition
	wf Workflow
}

// Manager owns one Workflow per trip. Each trip has a single writer:
// a transition attempted while another runs fails with ErrConcurrentModification.
type Manager struct {
	provider OptionsProvider
	ledger   AppliedLedger
	eval     Reevaluator

	mu     sync.Mutex
	flows  map[string]*tripFlow
	clock  func() time.Time
	logger *slog.Logger
}

// NewManager creates a repair manager. A nil ledger uses an in-memory one.
func NewManager(provider OptionsProvider, ledger AppliedLedger, eval Reevaluator) *Manager {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Manager{
		provider: provider,
		ledger:   ledger,
		eval:     eval,
		flows:    make(map[string]*tripFlow),
		clock:    time.Now,
		logger:   slog.Default().With("component", "repair"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

func (m *Manager) flow(tripID string) *tripFlow {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[tripID]
	if !ok {
		f = &tripFlow{wf: Workflow{TripID: tripID, State: StateIdle, UpdatedAt: m.clock()}}
		m.flows[tripID] = f
	}
	return f
}

func (m *Manager) acquire(tripID string) (*tripFlow, error) {
	f := m.flow(tripID)
	if !f.mu.TryLock() {
		return nil, fmt.Errorf("%w: trip %s", ErrConcurrentModification, tripID)
	}
	return f, nil
}

func (m *Manager) moveTo(f *tripFlow, to State) error {
	if !CanTransition(f.wf.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.wf.State, to)
	}
	m.logger.Debug("repair transition", "trip_id", f.wf.TripID, "from", f.wf.State, "to", to)
	f.wf.State = to
	f.wf.UpdatedAt = m.clock()
	return nil
}

// State returns a snapshot of the trip's workflow.
func (m *Manager) State(tripID string) Workflow {
	f := m.flow(tripID)
	// Readers wait for an in-flight transition rather than failing.
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wf.clone()
}

// SelectBlocker selects a blocker from the latest report and loads its options.
// On provider failure the workflow lands in StateOptionsLoadFailed with no
// options and the error wraps readiness.ErrUpstreamUnavailable.
func (m *Manager) SelectBlocker(ctx context.Context, tripID, blockerID string) (Workflow, error) {
	f, err := m.acquire(tripID)
	if err != nil {
		return Workflow{}, err
	}
	defer f.mu.Unlock()

	if !CanTransition(f.wf.State, StateBlockerSelected) {
		return f.wf.clone(), fmt.Errorf("%w: cannot select blocker in state %s", ErrInvalidTransition, f.wf.State)
	}

	report, err := m.eval.Latest(ctx, tripID)
	if err != nil {
		return f.wf.clone(), fmt.Errorf("load report for trip %s: %w", tripID, err)
	}
	blocker, ok := report.Blocker(blockerID)
	if !ok {
		return f.wf.clone(), fmt.Errorf("%w: %s", ErrBlockerNotFound, blockerID)
	}

	if err := m.moveTo(f, StateBlockerSelected); err != nil {
		return f.wf.clone(), err
	}
	f.wf.SelectedBlocker = &blocker
	f.wf.Options = nil
	f.wf.LastError = ""

	options, err := m.provider.GetOptions(ctx, tripID, blocker)
	if err != nil {
		_ = m.moveTo(f, StateOptionsLoadFailed)
		f.wf.LastError = err.Error()
		m.logger.Warn("repair options unavailable", "trip_id", tripID, "blocker_id", blockerID, "error", err)
		return f.wf.clone(), fmt.Errorf("%w: options for %s: %v", readiness.ErrUpstreamUnavailable, blockerID, err)
	}
	if err := m.moveTo(f, StateOptionsLoaded); err != nil {
		return f.wf.clone(), err
	}
	f.wf.Options = append([]Option(nil), options...)
	return f.wf.clone(), nil
}

// ApplyOption applies one of the options loaded for blockerID and re-evaluates
// the trip. Applying the same (trip, blocker, option) again returns the
// recorded result whatever the current selection is.
func (m *Manager) ApplyOption(ctx context.Context, tripID, blockerID, optionID string) (ApplyResult, error) {
	f, err := m.acquire(tripID)
	if err != nil {
		return ApplyResult{}, err
	}
	defer f.mu.Unlock()

	key := Key{TripID: tripID, BlockerID: blockerID, OptionID: optionID}
	if res, ok, err := m.replay(ctx, f, key); err != nil || ok {
		return res, err
	}

	if f.wf.State != StateOptionsLoaded {
		return ApplyResult{}, fmt.Errorf("%w: cannot apply in state %s", ErrInvalidTransition, f.wf.State)
	}
	if f.wf.SelectedBlockerID() != blockerID {
		return ApplyResult{}, fmt.Errorf("%w: blocker %q is not selected", ErrInvalidTransition, blockerID)
	}
	var option Option
	found := false
	for _, o := range f.wf.Options {
		if o.ID == optionID {
			option, found = o, true
			break
		}
	}
	if !found {
		return ApplyResult{}, fmt.Errorf("%w: %s", ErrOptionNotFound, optionID)
	}
	blocker := *f.wf.SelectedBlocker

	before, err := m.eval.Latest(ctx, tripID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("load report for trip %s: %w", tripID, err)
	}

	if err := m.moveTo(f, StateApplying); err != nil {
		return ApplyResult{}, err
	}
	if err := m.provider.Apply(ctx, tripID, blocker, option); err != nil {
		_ = m.moveTo(f, StateOptionsLoaded)
		f.wf.LastError = err.Error()
		m.logger.Warn("repair apply failed", "trip_id", tripID, "option_id", optionID, "error", err)
		return ApplyResult{}, fmt.Errorf("apply option %s: %w", optionID, err)
	}
	if err := m.moveTo(f, StateApplied); err != nil {
		return ApplyResult{}, err
	}

	rec := m.newRecord(tripID, blocker.ID, option, before)
	result := ApplyResult{Record: rec}

	after, evalErr := m.eval.Reevaluate(ctx, tripID)
	if evalErr == nil {
		result.Record.StatusAfter = after.Status
		result.Record.OverallAfter = after.Score.Overall
		result.Report = &after
	}
	m.record(ctx, result.Record)

	f.wf.LastApplied = &result.Record
	f.wf.SelectedBlocker = nil
	f.wf.Options = nil
	f.wf.LastError = ""
	_ = m.moveTo(f, StateIdle)

	m.logger.Info("repair applied",
		"trip_id", tripID,
		"blocker_id", blocker.ID,
		"action", option.ActionType,
		"status_before", before.Status,
		"status_after", result.Record.StatusAfter,
	)
	if evalErr != nil {
		return result, fmt.Errorf("%w: re-evaluation after repair: %v", readiness.ErrUpstreamUnavailable, evalErr)
	}
	return result, nil
}

func (m *Manager) newRecord(tripID, blockerID string, option Option, before readiness.Report) AppliedRecord {
	return AppliedRecord{
		TripID:        tripID,
		BlockerID:     blockerID,
		OptionID:      option.ID,
		ActionType:    option.ActionType,
		AppliedAt:     m.clock().UTC(),
		StatusBefore:  before.Status,
		OverallBefore: before.Score.Overall,
	}
}

func (m *Manager) record(ctx context.Context, rec AppliedRecord) {
	if _, err := m.ledger.Record(ctx, rec); err != nil {
		m.logger.Error("failed to record applied repair", "key", rec.Key().String(), "error", err)
	}
}

// replay returns the recorded result when key was already applied. A pending
// selection of the same blocker is dropped; any other selection is kept.
func (m *Manager) replay(ctx context.Context, f *tripFlow, key Key) (ApplyResult, bool, error) {
	rec, ok, err := m.ledger.Lookup(ctx, key)
	if err != nil {
		return ApplyResult{}, false, fmt.Errorf("%w: %v", readiness.ErrUpstreamUnavailable, err)
	}
	if !ok {
		return ApplyResult{}, false, nil
	}
	m.logger.Info("repair replayed", "key", key.String())

	res := ApplyResult{Record: rec, Replayed: true}
	if report, err := m.eval.Latest(ctx, key.TripID); err == nil {
		res.Report = &report
	}
	if f.wf.SelectedBlockerID() == key.BlockerID && CanTransition(f.wf.State, StateIdle) {
		f.wf.SelectedBlocker = nil
		f.wf.Options = nil
		_ = m.moveTo(f, StateIdle)
	}
	return res, true, nil
}

// AutoRepair applies the first offered option of every blocker in the latest
// report, then re-evaluates once. Blockers whose top option was already
// applied, or that offer no options, are skipped. The workflow must be idle.
func (m *Manager) AutoRepair(ctx context.Context, tripID string) (AutoRepairResult, error) {
	f, err := m.acquire(tripID)
	if err != nil {
		return AutoRepairResult{}, err
	}
	defer f.mu.Unlock()

	if f.wf.State != StateIdle {
		return AutoRepairResult{}, fmt.Errorf("%w: cannot auto-repair in state %s", ErrInvalidTransition, f.wf.State)
	}
	before, err := m.eval.Latest(ctx, tripID)
	if err != nil {
		return AutoRepairResult{}, fmt.Errorf("load report for trip %s: %w", tripID, err)
	}

	out := AutoRepairResult{TripID: tripID, Applied: []AppliedRecord{}, StatusBefore: before.Status}
	for _, blocker := range before.Blockers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		options, err := m.provider.GetOptions(ctx, tripID, blocker)
		if err != nil || len(options) == 0 {
			m.logger.Warn("auto-repair skipped blocker", "trip_id", tripID, "blocker_id", blocker.ID, "error", err)
			out.Skipped = append(out.Skipped, blocker.ID)
			continue
		}
		top := options[0]
		key := Key{TripID: tripID, BlockerID: blocker.ID, OptionID: top.ID}
		if _, done, err := m.ledger.Lookup(ctx, key); err != nil {
			return out, fmt.Errorf("%w: %v", readiness.ErrUpstreamUnavailable, err)
		} else if done {
			out.Skipped = append(out.Skipped, blocker.ID)
			continue
		}
		if err := m.provider.Apply(ctx, tripID, blocker, top); err != nil {
			m.logger.Warn("auto-repair apply failed", "trip_id", tripID, "option_id", top.ID, "error", err)
			out.Skipped = append(out.Skipped, blocker.ID)
			continue
		}
		out.Applied = append(out.Applied, m.newRecord(tripID, blocker.ID, top, before))
	}
	if len(out.Applied) == 0 {
		out.StatusAfter = before.Status
		out.Report = &before
		return out, nil
	}

	after, evalErr := m.eval.Reevaluate(ctx, tripID)
	for i := range out.Applied {
		if evalErr == nil {
			out.Applied[i].StatusAfter = after.Status
			out.Applied[i].OverallAfter = after.Score.Overall
		}
		m.record(ctx, out.Applied[i])
	}
	last := out.Applied[len(out.Applied)-1]
	f.wf.LastApplied = &last
	f.wf.UpdatedAt = m.clock()

	m.logger.Info("auto-repair finished",
		"trip_id", tripID,
		"applied", len(out.Applied),
		"skipped", len(out.Skipped),
	)
	if evalErr != nil {
		return out, fmt.Errorf("%w: re-evaluation after auto-repair: %v", readiness.ErrUpstreamUnavailable, evalErr)
	}
	out.StatusAfter = after.Status
	out.Report = &after
	return out, nil
}

// Reset returns the workflow to idle, dropping any selection.
func (m *Manager) Reset(tripID string) error {
	f, err := m.acquire(tripID)
	if err != nil {
		return err
	}
	defer f.mu.Unlock()
	if f.wf.State == StateIdle {
		return nil
	}
	if err := m.moveTo(f, StateIdle); err != nil {
		return err
	}
	f.wf.SelectedBlocker = nil
	f.wf.Options = nil
	f.wf.LastError = ""
	return nil
}
