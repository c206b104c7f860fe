package repair

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripnara/readiness/pkg/readiness"
)

// TestRedisLedger_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisLedger_Integration(t *testing.T) {
	ledger := NewRedisLedger("localhost:6379", "", 0).WithTTL(time.Minute)
	defer ledger.Close()
	ctx := context.Background()
	if err := ledger.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	rec := AppliedRecord{
		TripID:      fmt.Sprintf("trip-%d", time.Now().UnixNano()),
		BlockerID:   "seasonal_road.winter_mountain",
		OptionID:    "seasonal_road.winter_mountain/alternate_route",
		StatusAfter: readiness.StatusNearly,
	}
	defer ledger.client.Del(ctx, redisKey(rec.Key()))

	_, ok, err := ledger.Lookup(ctx, rec.Key())
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := ledger.Record(ctx, rec)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = ledger.Record(ctx, rec)
	require.NoError(t, err)
	assert.False(t, stored, "second record must not overwrite")

	got, ok, err := ledger.Lookup(ctx, rec.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, readiness.StatusNearly, got.StatusAfter)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "repair:applied:t:b:o", redisKey(Key{TripID: "t", BlockerID: "b", OptionID: "o"}))
}
