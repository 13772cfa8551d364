package watch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/expr"
	"github.com/couchcryptid/condition-oracle/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockEvaluator struct {
	mu     sync.Mutex
	values map[string]bool
	errs   map[string]error
}

func (m *mockEvaluator) set(e string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[e] = v
}

func (m *mockEvaluator) EvaluateExpression(e string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[e]; err != nil {
		return false, err
	}
	return m.values[e], nil
}

func (m *mockEvaluator) Snapshot() domain.Snapshot {
	return domain.Snapshot{Season: domain.SeasonSummer, Nighttime: true}
}

type mockPublisher struct {
	mu        sync.Mutex
	failures  int
	calls     int
	published []domain.Transition
}

func (m *mockPublisher) Publish(_ context.Context, transitions []domain.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, transitions...)
	return nil
}

func (m *mockPublisher) snapshot() []domain.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Transition(nil), m.published...)
}

var testWatches = []domain.Watch{
	{Name: "show", Expression: "gallery_open AND nighttime"},
	{Name: "quiet", Expression: "hour0_6"},
}

func newTestWatcher(e Evaluator, p Publisher, clock clockwork.Clock) (*Watcher, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return New(e, p, testWatches, 10*time.Millisecond, clock, slog.Default(), metrics), metrics
}

// --- tests ---

func TestEvaluate_BaselineThenChangesOnly(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 20, 22, 0, 0, 0, time.UTC))
	eval := &mockEvaluator{values: map[string]bool{"gallery_open AND nighttime": true}}
	w, _ := newTestWatcher(eval, &mockPublisher{}, clock)

	first := w.evaluate()
	require.Len(t, first, 2)
	assert.Equal(t, domain.Transition{
		Watch:       "show",
		Expression:  "gallery_open AND nighttime",
		Value:       true,
		Initial:     true,
		EvaluatedAt: clock.Now(),
		Season:      domain.SeasonSummer,
		Nighttime:   true,
	}, first[0])
	assert.Equal(t, "quiet", first[1].Watch)
	assert.False(t, first[1].Value)
	assert.True(t, first[1].Initial)

	assert.Empty(t, w.evaluate(), "no change, no transitions")

	clock.Advance(time.Minute)
	eval.set("hour0_6", true)
	changed := w.evaluate()
	require.Len(t, changed, 1)
	assert.Equal(t, "quiet", changed[0].Watch)
	assert.True(t, changed[0].Value)
	assert.False(t, changed[0].Initial)
	assert.Equal(t, clock.Now(), changed[0].EvaluatedAt)
}

func TestEvaluate_ErrorsSkipWatch(t *testing.T) {
	eval := &mockEvaluator{
		values: map[string]bool{"hour0_6": true},
		errs:   map[string]error{"gallery_open AND nighttime": &expr.ParseError{Msg: "boom"}},
	}
	w, metrics := newTestWatcher(eval, &mockPublisher{}, clockwork.NewFakeClock())

	out := w.evaluate()
	require.Len(t, out, 1)
	assert.Equal(t, "quiet", out[0].Watch)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WatchEvalErrors))

	// Once the expression evaluates again it is reported as a first value.
	eval.mu.Lock()
	eval.errs = nil
	eval.mu.Unlock()
	out = w.evaluate()
	require.Len(t, out, 1)
	assert.Equal(t, "show", out[0].Watch)
	assert.True(t, out[0].Initial)
}

func TestCycle_PublishesAndBecomesReady(t *testing.T) {
	eval := &mockEvaluator{values: map[string]bool{}}
	pub := &mockPublisher{}
	w, metrics := newTestWatcher(eval, pub, clockwork.NewFakeClock())

	require.Error(t, w.CheckReadiness(context.Background()))

	backoff := initialBackoff
	assert.True(t, w.cycle(context.Background(), &backoff))

	assert.Len(t, pub.snapshot(), 2)
	assert.Empty(t, w.pending)
	assert.NoError(t, w.CheckReadiness(context.Background()))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WatchTransitions))

	// Nothing changed: no publish call.
	assert.True(t, w.cycle(context.Background(), &backoff))
	assert.Equal(t, 1, pub.calls)
}

func TestCycle_RetainsTransitionsUntilPublished(t *testing.T) {
	clock := clockwork.NewFakeClock()
	eval := &mockEvaluator{values: map[string]bool{}}
	pub := &mockPublisher{failures: 1}
	w, metrics := newTestWatcher(eval, pub, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backoff := initialBackoff
	done := make(chan bool)
	go func() { done <- w.cycle(ctx, &backoff) }()

	// The failed publish sleeps on the fake clock.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(initialBackoff)
	require.True(t, <-done)

	assert.Equal(t, 2*initialBackoff, backoff)
	assert.Len(t, w.pending, 2, "failed transitions stay pending")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WatchPublishErrors))
	require.Error(t, w.CheckReadiness(ctx))

	assert.True(t, w.cycle(ctx, &backoff))
	assert.Len(t, pub.snapshot(), 2)
	assert.Empty(t, w.pending)
	assert.Equal(t, initialBackoff, backoff, "backoff resets after success")
}

func TestCycle_StopsWhenCancelledDuringBackoff(t *testing.T) {
	pub := &mockPublisher{failures: 10}
	w, _ := newTestWatcher(&mockEvaluator{values: map[string]bool{}}, pub, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	backoff := initialBackoff
	done := make(chan bool)
	go func() { done <- w.cycle(ctx, &backoff) }()

	cancel()
	assert.False(t, <-done)
}

func TestEnqueue_DropsOldestBeyondLimit(t *testing.T) {
	w, _ := newTestWatcher(&mockEvaluator{values: map[string]bool{}}, &mockPublisher{}, clockwork.NewFakeClock())

	batch := make([]domain.Transition, maxPending+5)
	for i := range batch {
		batch[i] = domain.Transition{Watch: "w", Value: i%2 == 0}
	}
	batch[5].Watch = "first-kept"

	w.enqueue(batch)
	require.Len(t, w.pending, maxPending)
	assert.Equal(t, "first-kept", w.pending[0].Watch)
}

func TestRun_PublishesChanges(t *testing.T) {
	eval := &mockEvaluator{values: map[string]bool{}}
	pub := &mockPublisher{}
	w, metrics := newTestWatcher(eval, pub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		assert.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
		eval.set("hour0_6", true)
		assert.Eventually(t, func() bool { return len(pub.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
		cancel()
	}()

	require.NoError(t, w.Run(ctx))

	got := pub.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "quiet", got[2].Watch)
	assert.True(t, got[2].Value)
	assert.False(t, got[2].Initial)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WatcherRunning))
}

func TestRun_ContextCancellation(t *testing.T) {
	pub := &mockPublisher{}
	w, _ := newTestWatcher(&mockEvaluator{values: map[string]bool{}}, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Run(ctx))
	assert.Empty(t, pub.snapshot())
}

func TestBackoffOrStop_DoublesUpToMax(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w, _ := newTestWatcher(&mockEvaluator{values: map[string]bool{}}, &mockPublisher{}, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backoff := 4 * time.Second
	want := []time.Duration{maxBackoff, maxBackoff}
	for _, next := range want {
		done := make(chan bool)
		slept := backoff
		go func() { done <- w.backoffOrStop(ctx, &backoff) }()
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(slept)
		require.True(t, <-done)
		assert.Equal(t, next, backoff)
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := p.Publish(context.Background(), []domain.Transition{
		{Watch: "show", Expression: "nighttime", Value: true, Initial: true},
		{Watch: "quiet", Expression: "hour0_6", Value: false},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"watch":"show"`)
	assert.Contains(t, lines[0], `"initial":true`)
	assert.Contains(t, lines[1], `"value":false`)
}
