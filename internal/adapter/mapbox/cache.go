package mapbox

import (
	"container/list"
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"github.com/couchcryptid/condition-oracle/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// CachedGeocoder remembers resolved sites. Forward lookups are keyed on the
// query with case and spacing folded. Reverse lookups are keyed on a grid of
// roughly ten metres, finer than any change in sun times. Concurrent misses
// for one key share a single upstream request.
type CachedGeocoder struct {
	inner   domain.Geocoder
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
	flight  singleflight.Group

	mu         sync.Mutex
	maxEntries int
	recency    *list.List // of *siteEntry, most recent first
	entries    map[string]*list.Element
}

type siteEntry struct {
	key     string
	site    domain.GeocodingResult
	expires time.Time // zero when entries never expire
}

// NewCachedGeocoder wraps inner with a cache of at most maxEntries sites,
// each kept for ttl. A ttl of zero keeps entries until evicted. clock and
// metrics may be nil.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedGeocoder {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedGeocoder{
		inner:      inner,
		ttl:        ttl,
		clock:      clock,
		metrics:    metrics,
		maxEntries: maxEntries,
		recency:    list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := "q:" + strings.ToLower(normalizeQuery(query))
	return c.resolve("forward", key, func() (domain.GeocodingResult, error) {
		return c.inner.ForwardGeocode(ctx, query)
	})
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("ll:%d,%d", gridCell(lat), gridCell(lon))
	return c.resolve("reverse", key, func() (domain.GeocodingResult, error) {
		return c.inner.ReverseGeocode(ctx, lat, lon)
	})
}

// gridCell buckets a coordinate to 1e-4 degrees.
func gridCell(deg float64) int64 {
	return int64(math.Round(deg * 1e4))
}

// Len returns the number of cached sites, expired ones included.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

func (c *CachedGeocoder) resolve(method, key string, fetch func() (domain.GeocodingResult, error)) (domain.GeocodingResult, error) {
	if site, ok := c.get(key); ok {
		c.record(method, "hit")
		return site, nil
	}
	c.record(method, "miss")

	v, err, _ := c.flight.Do(key, func() (any, error) {
		site, err := fetch()
		// Misses are not stored so a place added upstream is found later.
		if err == nil && site.Found() {
			c.put(key, site)
		}
		return site, err
	})
	return v.(domain.GeocodingResult), err
}

func (c *CachedGeocoder) get(key string) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	e := el.Value.(*siteEntry)
	if !e.expires.IsZero() && !c.clock.Now().Before(e.expires) {
		c.remove(el)
		return domain.GeocodingResult{}, false
	}
	c.recency.MoveToFront(el)
	return e.site, true
}

func (c *CachedGeocoder) put(key string, site domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.clock.Now().Add(c.ttl)
	}

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*siteEntry)
		e.site, e.expires = site, expires
		c.recency.MoveToFront(el)
		return
	}

	c.entries[key] = c.recency.PushFront(&siteEntry{key: key, site: site, expires: expires})
	for c.recency.Len() > c.maxEntries {
		c.remove(c.recency.Back())
	}
}

func (c *CachedGeocoder) remove(el *list.Element) {
	delete(c.entries, el.Value.(*siteEntry).key)
	c.recency.Remove(el)
}

func (c *CachedGeocoder) record(method, result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(method, result).Inc()
	}
}
