// Package oracle answers "is condition X true right now?" for one
// installation. An Oracle owns the operator flags, the configured location,
// and a cached snapshot of the time-derived conditions that is rebuilt
// whenever it is older than the configured maximum age.
package oracle

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/expr"
	"github.com/couchcryptid/condition-oracle/internal/observability"
	"github.com/jonboulle/clockwork"
)

// DefaultMaxAge is how long a snapshot is trusted before it is recomputed.
const DefaultMaxAge = 1000 * time.Millisecond

// Options configures an Oracle. Zero values select the defaults: the default
// location, DefaultMaxAge, the real clock, slog.Default and unregistered metrics.
type Options struct {
	Location domain.Location
	MaxAge   time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Oracle is safe for concurrent use.
type Oracle struct {
	clock   clockwork.Clock
	maxAge  time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	flagsMu sync.RWMutex
	flags   map[string]bool

	// refreshMu makes check-recompute-publish of the snapshot atomic and
	// guards place and tz.
	refreshMu sync.Mutex
	place     domain.Location
	tz        *time.Location

	snapshot atomic.Pointer[domain.Snapshot]
	lastTime atomic.Int64 // unix millis of the latest clock read
}

// New validates the configured location and computes the first snapshot.
func New(opts Options) (*Oracle, error) {
	if opts.Location == (domain.Location{}) {
		opts.Location = domain.DefaultLocation()
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}

	tz, err := opts.Location.Load()
	if err != nil {
		return nil, err
	}

	o := &Oracle{
		clock:   opts.Clock,
		maxAge:  opts.MaxAge,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		flags:   make(map[string]bool),
		place:   opts.Location,
		tz:      tz,
	}
	o.current()
	return o, nil
}

// DeclareFlag creates the flag with value false unless it already exists.
func (o *Oracle) DeclareFlag(name string) {
	name = strings.ToLower(name)

	o.flagsMu.Lock()
	defer o.flagsMu.Unlock()
	if _, ok := o.flags[name]; !ok {
		o.flags[name] = false
		o.metrics.Flags.Set(float64(len(o.flags)))
	}
}

// SetFlag creates or overwrites the flag.
func (o *Oracle) SetFlag(name string, value bool) {
	name = strings.ToLower(name)

	o.flagsMu.Lock()
	defer o.flagsMu.Unlock()
	o.flags[name] = value
	o.metrics.Flags.Set(float64(len(o.flags)))
}

// Flag implements domain.FlagLookup.
func (o *Oracle) Flag(name string) (value, ok bool) {
	name = strings.ToLower(name)

	o.flagsMu.RLock()
	defer o.flagsMu.RUnlock()
	value, ok = o.flags[name]
	return value, ok
}

// Flags returns a copy of every known flag and its value.
func (o *Oracle) Flags() map[string]bool {
	o.flagsMu.RLock()
	defer o.flagsMu.RUnlock()
	return maps.Clone(o.flags)
}

// SetLocation moves the installation. An unknown timezone or out-of-range
// coordinate leaves the previous location in place and returns an error
// wrapping domain.ErrInvalidLocation. On success the cached snapshot is
// discarded so the next read reflects the new place.
func (o *Oracle) SetLocation(timeZone string, latitude, longitude float64) error {
	loc := domain.Location{TimeZone: timeZone, Latitude: latitude, Longitude: longitude}
	tz, err := loc.Load()
	if err != nil {
		o.metrics.LocationChanges.WithLabelValues("rejected").Inc()
		o.logger.Warn("location rejected", "timezone", timeZone, "lat", latitude, "lon", longitude, "error", err)
		return err
	}

	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()
	o.place = loc
	o.tz = tz
	o.snapshot.Store(nil)

	o.metrics.LocationChanges.WithLabelValues("accepted").Inc()
	o.logger.Info("location changed", "timezone", timeZone, "lat", latitude, "lon", longitude)
	return nil
}

// Location returns the current location.
func (o *Oracle) Location() domain.Location {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()
	return o.place
}

// QueryCondition refreshes the snapshot if stale and resolves name against
// the flags and the snapshot. Unknown names are false. A name that starts
// with the current month followed by a non-numeric suffix yields an error
// matching expr.ErrParse.
func (o *Oracle) QueryCondition(name string) (bool, error) {
	v, err := o.resolve(name)
	o.observe("condition", v, err)
	return v, err
}

// EvaluateExpression parses and evaluates a boolean expression such as
// "gallery_open AND NOT (nighttime OR hour0_6)". Every identifier is resolved
// as by QueryCondition, so each one checks snapshot staleness. Malformed
// expressions yield an error matching expr.ErrParse.
func (o *Oracle) EvaluateExpression(expression string) (bool, error) {
	v, err := expr.Evaluate(expression, expr.ResolverFunc(o.resolve))
	o.observe("expression", v, err)
	if err != nil {
		o.logger.Debug("expression failed", "expr", expression, "error", err)
	}
	return v, err
}

// CurrentTimeMillis reads the clock and returns unix milliseconds without
// recomputing the snapshot.
func (o *Oracle) CurrentTimeMillis() int64 {
	return o.now().UnixMilli()
}

// LastTimeMillis returns the most recent clock reading taken by the oracle.
func (o *Oracle) LastTimeMillis() int64 {
	return o.lastTime.Load()
}

// DayFractionNow returns the fraction of the local day elapsed.
func (o *Oracle) DayFractionNow() float64 {
	return o.current().DayFractionNow
}

// DayFractionSunrise returns today's sunrise as a fraction of the local day.
func (o *Oracle) DayFractionSunrise() float64 {
	return o.current().DayFractionSunrise
}

// DayFractionSunset returns today's sunset as a fraction of the local day.
func (o *Oracle) DayFractionSunset() float64 {
	return o.current().DayFractionSunset
}

// SunDeclination returns the sun's current declination in degrees.
func (o *Oracle) SunDeclination() float64 {
	return o.current().Declination
}

// Snapshot returns the current, refreshed-if-stale snapshot.
func (o *Oracle) Snapshot() domain.Snapshot {
	return o.current()
}

// CheckReadiness reports whether a snapshot can be served.
func (o *Oracle) CheckReadiness(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.current().ComputedAt.IsZero() {
		return errors.New("no snapshot computed yet")
	}
	return nil
}

func (o *Oracle) resolve(name string) (bool, error) {
	return domain.Resolve(name, o.current(), o)
}

func (o *Oracle) now() time.Time {
	now := o.clock.Now()
	o.lastTime.Store(now.UnixMilli())
	return now
}

// current returns the cached snapshot, recomputing it first if it is older
// than maxAge. The staleness check is repeated under refreshMu so concurrent
// callers racing on a stale snapshot recompute it once.
func (o *Oracle) current() domain.Snapshot {
	if s := o.snapshot.Load(); s != nil && !s.Stale(o.now(), o.maxAge) {
		return *s
	}

	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	now := o.now()
	if s := o.snapshot.Load(); s != nil && !s.Stale(now, o.maxAge) {
		return *s
	}

	snap := domain.BuildSnapshot(now, o.tz, o.place)
	o.snapshot.Store(&snap)
	o.metrics.SnapshotRefreshes.Inc()
	o.logger.Debug("snapshot refreshed",
		"hour", snap.Hour,
		"month", snap.Month,
		"day", snap.DayOfMonth,
		"weekday", snap.Weekday,
		"season", snap.Season,
		"earth_position", snap.EarthPosition,
		"nighttime", snap.Nighttime,
		"sunrise", snap.DayFractionSunrise,
		"sunset", snap.DayFractionSunset,
	)
	return snap
}

func (o *Oracle) observe(kind string, v bool, err error) {
	outcome := "false"
	switch {
	case err != nil:
		outcome = "error"
		if errors.Is(err, expr.ErrParse) {
			o.metrics.ParseErrors.Inc()
		}
	case v:
		outcome = "true"
	}
	o.metrics.Queries.WithLabelValues(kind, outcome).Inc()
}
