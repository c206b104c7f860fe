package evidence

import (
	"context"
	"time"
)

const (
	DefaultWatchInterval = 2 * time.Second
	MinWatchInterval     = time.Second
)

// Poller is the read side of an Orchestrator.
type Poller interface {
	Poll(taskID string) (Task, error)
}

// Watch polls a task until it reaches a terminal state, ctx is done, or the
// task disappears. The first snapshot is sent immediately. The channel is
// closed when watching stops. Intervals below MinWatchInterval are raised to
// it; zero selects DefaultWatchInterval.
func Watch(ctx context.Context, p Poller, taskID string, interval time.Duration) <-chan Task {
	switch {
	case interval <= 0:
		interval = DefaultWatchInterval
	case interval < MinWatchInterval:
		interval = MinWatchInterval
	}

	out := make(chan Task, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			t, err := p.Poll(taskID)
			if err != nil {
				return
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
			if t.Status.Terminal() {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
