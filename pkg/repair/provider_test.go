package repair

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/trip"
)

func TestStaticProvider_OptionsFollowHints(t *testing.T) {
	p := NewStaticProvider(trip.NewMemoryRepository())

	opts, err := p.GetOptions(context.Background(), "trip-1", readiness.Blocker{
		ID:          "seasonal_road.winter_mountain",
		RepairHints: []string{"alternate_route", "unknown_action", "change_hotel"},
	})
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "seasonal_road.winter_mountain/alternate_route", opts[0].ID)
	assert.Equal(t, ImpactHigh, opts[0].Impact)
	assert.Equal(t, ActionChangeHotel, opts[1].ActionType)

	opts, err = p.GetOptions(context.Background(), "trip-1", readiness.Blocker{ID: "b"})
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, ActionManualConfirm, opts[0].ActionType)

	_, err = p.GetOptions(context.Background(), "trip-1", readiness.Blocker{ID: "b", RepairHints: []string{"teleport"}})
	assert.Error(t, err)
}

func TestStaticProvider_ApplyEffects(t *testing.T) {
	repo := trip.NewMemoryRepository()
	ctx := context.Background()
	start := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveTripContext(ctx, trip.Context{
		TripID:        "trip-1",
		DestinationID: "IS-ICELAND",
		StartDate:     start,
		EndDate:       start.Add(48 * time.Hour),
		RouteLengthKm: trip.Float(400),
		Geo:           trip.Geo{InMountain: trip.Bool(true), MaxElevationM: trip.Float(900)},
	}))
	p := NewStaticProvider(repo)
	blocker := readiness.Blocker{ID: "b"}

	require.NoError(t, p.Apply(ctx, "trip-1", blocker, Option{ActionType: ActionAlternateRoute}))
	tc, err := repo.GetTripContext(ctx, "trip-1")
	require.NoError(t, err)
	assert.False(t, *tc.Geo.InMountain)
	assert.False(t, *tc.Geo.MountainPass)
	assert.Equal(t, 400.0, *tc.Geo.MaxElevationM)

	require.NoError(t, p.Apply(ctx, "trip-1", blocker, Option{ActionType: ActionRemovePOIs}))
	require.NoError(t, p.Apply(ctx, "trip-1", blocker, Option{ActionType: ActionMoveToDay}))
	tc, err = repo.GetTripContext(ctx, "trip-1")
	require.NoError(t, err)
	assert.InDelta(t, 280.0, *tc.RouteLengthKm, 1e-9)
	assert.Equal(t, 4, tc.Days())

	// Record-only actions do not touch the trip.
	require.NoError(t, p.Apply(ctx, "missing-trip", blocker, Option{ActionType: ActionBuyInsurance}))
	assert.Error(t, p.Apply(ctx, "missing-trip", blocker, Option{ActionType: ActionAlternateRoute}))
	assert.Error(t, p.Apply(ctx, "trip-1", blocker, Option{ActionType: "teleport"}))
}

func TestMemoryLedger(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	rec := AppliedRecord{TripID: "t", BlockerID: "b", OptionID: "o", StatusAfter: readiness.StatusReady}

	_, ok, err := l.Lookup(ctx, rec.Key())
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := l.Record(ctx, rec)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = l.Record(ctx, AppliedRecord{TripID: "t", BlockerID: "b", OptionID: "o"})
	require.NoError(t, err)
	assert.False(t, stored)

	got, ok, err := l.Lookup(ctx, Key{TripID: "t", BlockerID: "b", OptionID: "o"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, readiness.StatusReady, got.StatusAfter)
}
