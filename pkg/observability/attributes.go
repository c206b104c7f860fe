package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Readiness semantic convention attributes.
var (
	AttrTripID        = attribute.Key("readiness.trip.id")
	AttrDestinationID = attribute.Key("readiness.trip.destination")
	AttrStatus        = attribute.Key("readiness.status")
	AttrOverall       = attribute.Key("readiness.score.overall")
	AttrDegraded      = attribute.Key("readiness.score.degraded")

	AttrPackCount     = attribute.Key("readiness.packs.count")
	AttrPackTriggered = attribute.Key("readiness.packs.triggered")

	AttrBlockerID = attribute.Key("readiness.repair.blocker_id")
	AttrOptionID  = attribute.Key("readiness.repair.option_id")

	AttrTaskID      = attribute.Key("readiness.evidence.task_id")
	AttrTaskTargets = attribute.Key("readiness.evidence.targets")
)

// EvaluationOperation creates attributes for a readiness evaluation.
func EvaluationOperation(tripID, destinationID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTripID.String(tripID),
		AttrDestinationID.String(destinationID),
	}
}

// RepairOperation creates attributes for repair workflow steps.
func RepairOperation(tripID, blockerID, optionID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrTripID.String(tripID),
		AttrBlockerID.String(blockerID),
	}
	if optionID != "" {
		attrs = append(attrs, AttrOptionID.String(optionID))
	}
	return attrs
}

// EvidenceOperation creates attributes for evidence tasks.
func EvidenceOperation(tripID string, targets int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTripID.String(tripID),
		AttrTaskTargets.Int(targets),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes annotates the current span.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
