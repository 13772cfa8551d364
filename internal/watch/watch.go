// Package watch evaluates named expressions on a fixed interval and
// publishes each change in their value.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// maxPending bounds the transitions held while the publisher is failing.
	maxPending = 1000
)

// Evaluator answers expressions against the current conditions.
type Evaluator interface {
	EvaluateExpression(expr string) (bool, error)
	Snapshot() domain.Snapshot
}

// Publisher delivers transitions downstream.
type Publisher interface {
	Publish(ctx context.Context, transitions []domain.Transition) error
}

// Watcher tracks the last value of every watch and publishes changes.
type Watcher struct {
	evaluator Evaluator
	publisher Publisher
	watches   []domain.Watch
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	// Owned by the Run goroutine.
	last    map[string]bool
	pending []domain.Transition
}

// New creates a Watcher. A nil clock selects the real clock.
func New(e Evaluator, p Publisher, watches []domain.Watch, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{
		evaluator: e,
		publisher: p,
		watches:   watches,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		last:      make(map[string]bool, len(watches)),
	}
}

// CheckReadiness returns nil once the first cycle has been evaluated and
// published, or an error describing why the watcher is not yet ready.
func (w *Watcher) CheckReadiness(_ context.Context) error {
	if !w.ready.Load() {
		return errors.New("watcher has not completed a cycle yet")
	}
	return nil
}

// Run evaluates all watches immediately and then once per interval until the
// context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started", "watches", len(w.watches), "interval", w.interval)
	w.metrics.WatcherRunning.Set(1)
	defer w.metrics.WatcherRunning.Set(0)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	backoff := initialBackoff
	for {
		if !w.cycle(ctx, &backoff) {
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// cycle evaluates every watch and publishes pending transitions. Returns
// false if the watcher should stop.
func (w *Watcher) cycle(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	start := w.clock.Now()

	w.enqueue(w.evaluate())
	if len(w.pending) == 0 {
		w.ready.Store(true)
		return ctx.Err() == nil
	}

	if err := w.publisher.Publish(ctx, w.pending); err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.logger.Error("publish transitions failed", "error", err, "pending", len(w.pending))
		w.metrics.WatchPublishErrors.Inc()
		return w.backoffOrStop(ctx, backoff)
	}

	w.metrics.WatchTransitions.Add(float64(len(w.pending)))
	w.metrics.WatchCycleDuration.Observe(w.clock.Since(start).Seconds())
	w.pending = nil
	*backoff = initialBackoff
	w.ready.Store(true)
	return true
}

// evaluate returns a transition for every watch whose value differs from the
// last evaluation, and for every watch evaluated for the first time.
func (w *Watcher) evaluate() []domain.Transition {
	snap := w.evaluator.Snapshot()
	now := w.clock.Now()

	var out []domain.Transition
	for _, watch := range w.watches {
		v, err := w.evaluator.EvaluateExpression(watch.Expression)
		if err != nil {
			w.logger.Warn("watch evaluation failed, skipping",
				"watch", watch.Name,
				"expr", watch.Expression,
				"error", err,
			)
			w.metrics.WatchEvalErrors.Inc()
			continue
		}

		prev, seen := w.last[watch.Name]
		w.last[watch.Name] = v
		if seen && prev == v {
			continue
		}
		out = append(out, domain.Transition{
			Watch:       watch.Name,
			Expression:  watch.Expression,
			Value:       v,
			Initial:     !seen,
			EvaluatedAt: now,
			Season:      snap.Season,
			Nighttime:   snap.Nighttime,
		})
	}
	return out
}

func (w *Watcher) enqueue(transitions []domain.Transition) {
	w.pending = append(w.pending, transitions...)
	if n := len(w.pending) - maxPending; n > 0 {
		w.logger.Warn("dropping oldest pending transitions", "dropped", n)
		w.pending = append([]domain.Transition(nil), w.pending[n:]...)
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the watcher should stop.
func (w *Watcher) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, w.clock, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
