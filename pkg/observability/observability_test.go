package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "trip-readiness", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestNewProviderWithNilConfig(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, finish := p.TrackOperation(context.Background(), "readiness.evaluate",
		EvaluationOperation("trip-1", "IS-7")...)
	require.NotNil(t, newCtx)
	time.Sleep(time.Millisecond)
	finish(nil)

	_, finish = p.TrackOperation(context.Background(), "readiness.evaluate")
	finish(errors.New("boom"))
}

func TestNilProviderIsNoop(t *testing.T) {
	var p *Provider
	ctx, finish := p.TrackOperation(context.Background(), "readiness.repair.apply")
	require.NotNil(t, ctx)
	finish(errors.New("ignored"))
	p.RecordRequest(ctx)
	p.RecordError(ctx, errors.New("x"))
	p.RecordDuration(ctx, time.Second)
	require.NoError(t, p.Shutdown(ctx))
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestRepairOperation(t *testing.T) {
	attrs := RepairOperation("trip-1", "seasonal_road.winter_mountain", "")
	require.Len(t, attrs, 2)
	require.Equal(t, "readiness.repair.blocker_id", string(attrs[1].Key))

	attrs = RepairOperation("trip-1", "b", "b/alternate_route")
	require.Len(t, attrs, 3)
	require.Equal(t, "b/alternate_route", attrs[2].Value.AsString())
}

func TestEvidenceOperation(t *testing.T) {
	attrs := EvidenceOperation("trip-1", 4)
	require.Equal(t, int64(4), attrs[1].Value.AsInt64())
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()
	AddSpanEvent(ctx, "pack.failed", attribute.String("pack", "sea_crossing"))
	SetSpanAttributes(ctx, AttrStatus.String("ready"))
}
