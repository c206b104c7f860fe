package evidence

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// Source fetches evidence. The orchestrator calls Fetch with one target at a time.
// A returned error fails every requested type for those targets.
type Source interface {
	Fetch(ctx context.Context, types []Type, targetIDs []string) ([]Item, error)
}

// SimulatedSource produces deterministic evidence without network access.
type SimulatedSource struct {
	// Latency is slept per Fetch call, honouring cancellation.
	Latency time.Duration
	// FailTargets fail outright.
	FailTargets map[string]bool
	// Unavailable types are reported as per-type errors.
	Unavailable map[Type]bool
	Clock       func() time.Time
}

func (s *SimulatedSource) Fetch(ctx context.Context, types []Type, targetIDs []string) ([]Item, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}

	items := make([]Item, 0, len(targetIDs))
	for _, target := range targetIDs {
		if s.FailTargets[target] {
			return nil, fmt.Errorf("upstream rejected target %s", target)
		}
		item := Item{TargetID: target}
		for _, t := range types {
			if s.Unavailable[t] {
				item.Errors = append(item.Errors, TypeError{Type: t, Message: "provider unavailable"})
				continue
			}
			item.Records = append(item.Records, simulate(t, target, now()))
		}
		items = append(items, item)
	}
	return items, nil
}

func simulate(t Type, target string, at time.Time) Record {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(t) + "/" + target))
	seed := int(h.Sum32() % 100)

	rec := Record{Type: t, TargetID: target, FetchedAt: at.UTC()}
	switch t {
	case TypeWeather:
		temp := seed%30 - 10
		rec.Summary = fmt.Sprintf("%d°C, wind %d m/s", temp, seed%20)
		rec.Data = map[string]any{"temperatureC": temp, "windMs": seed % 20}
	case TypeRoadClosure:
		closed := seed < 15
		rec.Summary = "road open"
		if closed {
			rec.Summary = "road closed"
		}
		rec.Data = map[string]any{"closed": closed}
	case TypeOpeningHours:
		open := 8 + seed%3
		rec.Summary = fmt.Sprintf("open %02d:00-%02d:00", open, open+9)
		rec.Data = map[string]any{"opens": open, "closes": open + 9}
	}
	return rec
}
