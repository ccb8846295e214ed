package trigger

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Notifier receives the result of every cycle that fired.
type Notifier interface {
	Notify(ctx context.Context, result *CycleResult) error
}

// Watcher drives a Poller on a fixed interval. Cycles for one trigger run
// strictly one at a time: a slow cycle delays the next tick rather than
// overlapping it, which keeps the state key single-writer.
type Watcher struct {
	poller    *Poller
	interval  time.Duration
	notifiers []Notifier
}

// NewWatcher creates a watcher that polls at the given interval and fans out
// fired cycles to the notifiers.
func NewWatcher(poller *Poller, interval time.Duration, notifiers ...Notifier) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{poller: poller, interval: interval, notifiers: notifiers}
}

// Run polls until the context is cancelled. The first cycle runs
// immediately. Cycle failures are logged and retried on the next tick; they
// never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Watcher) cycle(ctx context.Context) {
	cycleID := uuid.NewString()[:8]

	result, err := w.poller.Run(ctx)
	if err != nil {
		log.Printf("cycle %s: %v", cycleID, err)
		return
	}
	if result == nil {
		return
	}

	log.Printf("cycle %s: %d new entries, last timestamp %s", cycleID, result.Count, result.LastTimestamp)

	for _, n := range w.notifiers {
		if err := n.Notify(ctx, result); err != nil {
			log.Printf("cycle %s: notify failed: %v", cycleID, err)
		}
	}
}
