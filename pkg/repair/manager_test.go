package repair

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/readiness"
)

type fakeEvaluator struct {
	mu          sync.Mutex
	report      readiness.Report
	after       readiness.Report
	reevaluated int
	err         error
}

func (f *fakeEvaluator) Latest(context.Context, string) (readiness.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, f.err
}

func (f *fakeEvaluator) Reevaluate(context.Context, string) (readiness.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reevaluated++
	f.report = f.after
	return f.after, nil
}

type fakeProvider struct {
	options  []Option
	getErr   error
	applyErr error
	applied  atomic.Int32
	block    chan struct{}
	entered  chan struct{}
}

func (p *fakeProvider) GetOptions(context.Context, string, readiness.Blocker) ([]Option, error) {
	return p.options, p.getErr
}

func (p *fakeProvider) Apply(context.Context, string, readiness.Blocker, Option) error {
	if p.entered != nil {
		close(p.entered)
	}
	if p.block != nil {
		<-p.block
	}
	if p.applyErr != nil {
		return p.applyErr
	}
	p.applied.Add(1)
	return nil
}

const winterBlocker = "seasonal_road.winter_mountain"

var clock = func() time.Time { return time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC) }

func notReadyReport() readiness.Report {
	return readiness.Report{
		TripID: "trip-1",
		Status: readiness.StatusNotReady,
		Score:  readiness.ScoreBreakdown{Overall: 60},
		Blockers: []readiness.Blocker{{
			ID:          "seasonal_road.winter_mountain",
			Title:       "closed",
			Severity:    readiness.BlockerCritical,
			Category:    pack.CategoryTransport,
			RepairHints: []string{"alternate_route"},
		}},
	}
}

func readyReport() readiness.Report {
	return readiness.Report{TripID: "trip-1", Status: readiness.StatusReady, Score: readiness.ScoreBreakdown{Overall: 95}}
}

func routeOption() Option {
	return Option{ID: "seasonal_road.winter_mountain/alternate_route", ActionType: ActionAlternateRoute, Impact: ImpactHigh}
}

func TestManager_SelectAndApply(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport(), after: readyReport()}
	prov := &fakeProvider{options: []Option{routeOption()}}
	m := NewManager(prov, nil, ev).WithClock(clock)

	wf, err := m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.NoError(t, err)
	assert.Equal(t, StateOptionsLoaded, wf.State)
	assert.Equal(t, "seasonal_road.winter_mountain", wf.SelectedBlockerID())
	require.Len(t, wf.Options, 1)

	res, err := m.ApplyOption(context.Background(), "trip-1", winterBlocker, routeOption().ID)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, readiness.StatusNotReady, res.Record.StatusBefore)
	assert.Equal(t, readiness.StatusReady, res.Record.StatusAfter)
	assert.Equal(t, 95, res.Record.OverallAfter)
	assert.Equal(t, clock(), res.Record.AppliedAt)
	require.NotNil(t, res.Report)
	assert.Equal(t, readiness.StatusReady, res.Report.Status)

	wf = m.State("trip-1")
	assert.Equal(t, StateIdle, wf.State)
	assert.Empty(t, wf.Options)
	assert.Nil(t, wf.SelectedBlocker)
	require.NotNil(t, wf.LastApplied)
	assert.Equal(t, int32(1), prov.applied.Load())
	assert.Equal(t, 1, ev.reevaluated)
}

func TestManager_ApplyIsIdempotent(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport(), after: readyReport()}
	prov := &fakeProvider{options: []Option{routeOption()}}
	ledger := NewMemoryLedger()
	m := NewManager(prov, ledger, ev)

	_, err := m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.NoError(t, err)
	first, err := m.ApplyOption(context.Background(), "trip-1", winterBlocker, routeOption().ID)
	require.NoError(t, err)

	again, err := m.ApplyOption(context.Background(), "trip-1", winterBlocker, routeOption().ID)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Record, again.Record)
	assert.Equal(t, int32(1), prov.applied.Load())
	assert.Equal(t, 1, ev.reevaluated)

	// Re-selecting the same blocker and applying the same option is also a replay.
	ev.report = notReadyReport()
	_, err = m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.NoError(t, err)
	third, err := m.ApplyOption(context.Background(), "trip-1", winterBlocker, routeOption().ID)
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.Equal(t, int32(1), prov.applied.Load())
	assert.Equal(t, StateIdle, m.State("trip-1").State)
}

func twoBlockerReport() readiness.Report {
	r := notReadyReport()
	r.Blockers = append(r.Blockers, readiness.Blocker{
		ID:          "sea_crossing.unbooked",
		Title:       "ferry not booked",
		Severity:    readiness.BlockerCritical,
		Category:    pack.CategoryTransport,
		RepairHints: []string{"book_transport"},
	})
	return r
}

func TestManager_ReplayIgnoresOtherSelection(t *testing.T) {
	ev := &fakeEvaluator{report: twoBlockerReport(), after: twoBlockerReport()}
	prov := &fakeProvider{options: []Option{routeOption()}}
	m := NewManager(prov, nil, ev)
	ctx := context.Background()

	_, err := m.SelectBlocker(ctx, "trip-1", winterBlocker)
	require.NoError(t, err)
	first, err := m.ApplyOption(ctx, "trip-1", winterBlocker, routeOption().ID)
	require.NoError(t, err)

	wf, err := m.SelectBlocker(ctx, "trip-1", "sea_crossing.unbooked")
	require.NoError(t, err)
	require.Equal(t, StateOptionsLoaded, wf.State)

	again, err := m.ApplyOption(ctx, "trip-1", winterBlocker, routeOption().ID)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Record, again.Record)
	assert.Equal(t, int32(1), prov.applied.Load())

	// The other blocker's selection survives the replay.
	wf = m.State("trip-1")
	assert.Equal(t, StateOptionsLoaded, wf.State)
	assert.Equal(t, "sea_crossing.unbooked", wf.SelectedBlockerID())

	// A new apply must name the selected blocker.
	_, err = m.ApplyOption(ctx, "trip-1", winterBlocker, "sea_crossing.unbooked/book_transport")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_AutoRepair(t *testing.T) {
	ev := &fakeEvaluator{report: twoBlockerReport(), after: readyReport()}
	prov := &fakeProvider{options: []Option{routeOption(), {ID: "other", ActionType: ActionManualConfirm}}}
	ledger := NewMemoryLedger()
	m := NewManager(prov, ledger, ev).WithClock(clock)
	ctx := context.Background()

	res, err := m.AutoRepair(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, res.Applied, 2, "one top option per blocker")
	assert.Empty(t, res.Skipped)
	assert.Equal(t, readiness.StatusNotReady, res.StatusBefore)
	assert.Equal(t, readiness.StatusReady, res.StatusAfter)
	assert.Equal(t, 1, ev.reevaluated, "re-evaluated once")
	assert.Equal(t, int32(2), prov.applied.Load())
	for _, rec := range res.Applied {
		assert.Equal(t, routeOption().ID, rec.OptionID)
		assert.Equal(t, readiness.StatusReady, rec.StatusAfter)
		_, ok, err := ledger.Lookup(ctx, rec.Key())
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, StateIdle, m.State("trip-1").State)
	require.NotNil(t, m.State("trip-1").LastApplied)

	// Already applied options are skipped on the next run.
	ev.report = twoBlockerReport()
	res, err = m.AutoRepair(ctx, "trip-1")
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Len(t, res.Skipped, 2)
	assert.Equal(t, 1, ev.reevaluated)
	assert.Equal(t, int32(2), prov.applied.Load())
}

func TestManager_AutoRepairNeedsIdle(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport()}
	m := NewManager(&fakeProvider{options: []Option{routeOption()}}, nil, ev)

	_, err := m.SelectBlocker(context.Background(), "trip-1", winterBlocker)
	require.NoError(t, err)
	_, err = m.AutoRepair(context.Background(), "trip-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_AutoRepairSkipsFailures(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport()}
	m := NewManager(&fakeProvider{getErr: errors.New("catalogue offline")}, nil, ev)

	res, err := m.AutoRepair(context.Background(), "trip-1")
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, []string{winterBlocker}, res.Skipped)
	assert.Equal(t, 0, ev.reevaluated)
	assert.Equal(t, readiness.StatusNotReady, res.StatusAfter)
}

func TestManager_OptionsLoadFailure(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport()}
	prov := &fakeProvider{getErr: errors.New("catalogue offline")}
	m := NewManager(prov, nil, ev)

	wf, err := m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.Error(t, err)
	assert.ErrorIs(t, err, readiness.ErrUpstreamUnavailable)
	assert.Equal(t, StateOptionsLoadFailed, wf.State)
	assert.Empty(t, wf.Options)
	assert.Contains(t, wf.LastError, "catalogue offline")

	// Findings are untouched and the trip can retry.
	assert.Equal(t, 0, ev.reevaluated)
	prov.getErr = nil
	prov.options = []Option{routeOption()}
	wf, err = m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.NoError(t, err)
	assert.Equal(t, StateOptionsLoaded, wf.State)
	assert.Empty(t, wf.LastError)
}

func TestManager_ApplyFailureKeepsSelection(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport()}
	prov := &fakeProvider{options: []Option{routeOption()}, applyErr: errors.New("booking api 503")}
	m := NewManager(prov, nil, ev)

	_, err := m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.NoError(t, err)
	_, err = m.ApplyOption(context.Background(), "trip-1", winterBlocker, routeOption().ID)
	require.Error(t, err)

	wf := m.State("trip-1")
	assert.Equal(t, StateOptionsLoaded, wf.State)
	assert.Equal(t, "seasonal_road.winter_mountain", wf.SelectedBlockerID())
	assert.Len(t, wf.Options, 1)
	assert.Nil(t, wf.LastApplied)
}

func TestManager_InvalidOperations(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport()}
	m := NewManager(&fakeProvider{options: []Option{routeOption()}}, nil, ev)

	_, err := m.ApplyOption(context.Background(), "trip-1", winterBlocker, "anything")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.SelectBlocker(context.Background(), "trip-1", "missing")
	assert.ErrorIs(t, err, ErrBlockerNotFound)
	assert.Equal(t, StateIdle, m.State("trip-1").State)

	_, err = m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.NoError(t, err)
	_, err = m.ApplyOption(context.Background(), "trip-1", winterBlocker, "not-offered")
	assert.ErrorIs(t, err, ErrOptionNotFound)

	require.NoError(t, m.Reset("trip-1"))
	assert.Equal(t, StateIdle, m.State("trip-1").State)
	assert.Nil(t, m.State("trip-1").SelectedBlocker)
}

func TestManager_SingleWriterPerTrip(t *testing.T) {
	ev := &fakeEvaluator{report: notReadyReport(), after: readyReport()}
	prov := &fakeProvider{
		options: []Option{routeOption()},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	m := NewManager(prov, nil, ev)

	_, err := m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.ApplyOption(context.Background(), "trip-1", winterBlocker, routeOption().ID)
		done <- err
	}()
	<-prov.entered

	_, err = m.SelectBlocker(context.Background(), "trip-1", "seasonal_road.winter_mountain")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	_, err = m.ApplyOption(context.Background(), "trip-1", winterBlocker, routeOption().ID)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	// Other trips are unaffected.
	_, err = m.SelectBlocker(context.Background(), "trip-2", "seasonal_road.winter_mountain")
	assert.NoError(t, err)

	close(prov.block)
	require.NoError(t, <-done)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateBlockerSelected))
	assert.True(t, CanTransition(StateApplied, StateBlockerSelected))
	assert.True(t, CanTransition(StateOptionsLoadFailed, StateBlockerSelected))
	assert.True(t, CanTransition(StateApplying, StateOptionsLoaded))
	assert.False(t, CanTransition(StateIdle, StateApplying))
	assert.False(t, CanTransition(StateApplying, StateBlockerSelected))
	assert.False(t, CanTransition(StateOptionsLoadFailed, StateApplying))
}
