// Package cache holds merged federated nodes keyed by path.
//
// A WorkspaceCache is safe for concurrent use without external locking.
// Entries expire by time according to the bound Policy and may also be
// reclaimed: by the garbage collector when weak references are enabled, or
// by a bounded LRU when a maximum entry count is set. Expired and reclaimed
// entries behave as misses and are removed by whichever lookup sees them
// first.
package cache

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/aweris/fedfs/internal/graph"
	"github.com/aweris/fedfs/internal/merge"
)

var (
	ErrAlreadyInitialized = errors.New("cache: already initialized")
	ErrNilPolicy          = errors.New("cache: nil policy")
	ErrClosed             = errors.New("cache: closed")
)

const (
	stateNew int32 = iota
	stateReady
	stateClosed
)

// Statistics is a snapshot of the cache counters.
type Statistics struct {
	Writes      int64
	Hits        int64
	Misses      int64
	Expirations int64
}

type entry struct {
	path      graph.Path
	handle    handle
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Option configures a WorkspaceCache.
type Option func(*options)

type options struct {
	clock         func() time.Time
	maxEntries    int
	weak          bool
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

func defaultOptions() *options {
	return &options{
		clock:         time.Now,
		logger:        slog.Default(),
		meterProvider: otel.GetMeterProvider(),
	}
}

// WithClock replaces time.Now for expiry computations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithMaxEntries bounds the number of strongly held nodes. When the bound
// is exceeded the least recently used node is reclaimed: it leaves the cache
// at once and counts as an expiration. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithWeakReferences holds nodes through weak pointers so the garbage
// collector may reclaim any node nothing else references.
func WithWeakReferences(enabled bool) Option {
	return func(o *options) {
		o.weak = enabled
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WorkspaceCache caches federated nodes for one workspace.
type WorkspaceCache struct {
	opts *options

	mu     sync.Mutex // serializes Initialize and Close
	state  atomic.Int32
	policy Policy

	entries sync.Map // string -> *entry
	lru     *lru.Cache[*entry, struct{}]

	writes      atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	expirations atomic.Int64

	metrics *metrics
}

// New returns an uninitialized cache; call Initialize before use.
func New(opts ...Option) *WorkspaceCache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := &WorkspaceCache{opts: o}

	m, err := newMetrics(o.meterProvider)
	if err != nil {
		o.logger.Warn("cache metrics disabled", "error", err)
		m, _ = newMetrics(noop.NewMeterProvider())
	}
	c.metrics = m

	if o.maxEntries > 0 && !o.weak {
		l, err := lru.NewWithEvict(o.maxEntries, c.reclaim)
		if err != nil {
			panic(err)
		}
		c.lru = l
	}
	return c
}

// Initialize binds the caching policy. It may be called only once.
func (c *WorkspaceCache) Initialize(policy Policy) error {
	if policy == nil {
		return ErrNilPolicy
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Load() {
	case stateReady:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrClosed
	}
	c.policy = policy
	c.state.Store(stateReady)
	return nil
}

// Get returns the cached node at path. Expired or reclaimed entries are
// removed and reported as absent.
func (c *WorkspaceCache) Get(path graph.Path) (*merge.FederatedNode, bool) {
	c.mustBeReady("Get")

	key := path.String()
	v, ok := c.entries.Load(key)
	if !ok {
		c.miss()
		return nil, false
	}
	e := v.(*entry)

	node, alive := e.handle.Load()
	if !alive || e.expired(c.opts.clock()) {
		if c.entries.CompareAndDelete(key, e) {
			c.forget(e)
			c.expirations.Add(1)
			c.metrics.add(c.metrics.expirations, 1)
		} else {
			// another caller already removed or replaced it
			c.miss()
		}
		return nil, false
	}

	if c.lru != nil {
		c.lru.Get(e)
	}
	c.hits.Add(1)
	c.metrics.add(c.metrics.hits, 1)
	return node, true
}

// Set stores node under its path, replacing any previous entry, when the
// policy accepts it.
func (c *WorkspaceCache) Set(node *merge.FederatedNode) {
	c.mustBeReady("Set")
	if node == nil {
		panic("cache: Set called with nil node")
	}
	if !c.policy.ShouldCache(node) {
		return
	}

	e := &entry{path: node.Path}
	if c.opts.weak {
		e.handle = newWeakHandle(node)
	} else {
		e.handle = newStrongHandle(node)
	}
	if ttl := c.policy.TTL(); ttl > 0 {
		e.expiresAt = c.opts.clock().Add(ttl)
	}

	if prev, loaded := c.entries.Swap(node.Path.String(), e); loaded {
		c.forget(prev.(*entry))
	}
	if c.lru != nil {
		c.lru.Add(e, struct{}{})
	}

	c.writes.Add(1)
	c.metrics.add(c.metrics.writes, 1)
}

// Invalidate removes the entry at path and every entry below it, returning
// the number of entries removed.
func (c *WorkspaceCache) Invalidate(path graph.Path) int {
	c.mustBeReady("Invalidate")

	removed := 0
	c.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		if e.path.IsAtOrBelow(path) && c.entries.CompareAndDelete(k, e) {
			c.forget(e)
			removed++
		}
		return true
	})

	c.metrics.add(c.metrics.invalidations, int64(removed))
	if removed > 0 {
		c.opts.logger.Debug("cache invalidated", "path", path.String(), "entries", removed)
	}
	return removed
}

// Len reports the number of live, unexpired entries.
func (c *WorkspaceCache) Len() int {
	now := c.opts.clock()
	n := 0
	c.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		if _, alive := e.handle.Load(); alive && !e.expired(now) {
			n++
		}
		return true
	})
	return n
}

func (c *WorkspaceCache) GetStatistics() Statistics {
	return Statistics{
		Writes:      c.writes.Load(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Expirations: c.expirations.Load(),
	}
}

func (c *WorkspaceCache) ClearStatistics() {
	c.writes.Store(0)
	c.hits.Store(0)
	c.misses.Store(0)
	c.expirations.Store(0)
}

// Close releases every entry. The cache cannot be used afterwards; closing
// twice is a no-op.
func (c *WorkspaceCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Swap(stateClosed) == stateClosed {
		return nil
	}
	c.entries.Range(func(k, v any) bool {
		if c.entries.CompareAndDelete(k, v) {
			v.(*entry).handle.release()
		}
		return true
	})
	if c.lru != nil {
		c.lru.Purge()
	}
	c.opts.logger.Debug("cache closed")
	return nil
}

func (c *WorkspaceCache) miss() {
	c.misses.Add(1)
	c.metrics.add(c.metrics.misses, 1)
}

// reclaim is the LRU eviction callback. An entry still in the map when it
// is evicted leaves the map and counts as an expiration; entries evicted
// because they were already removed or replaced are only released.
func (c *WorkspaceCache) reclaim(e *entry, _ struct{}) {
	e.handle.release()
	if c.entries.CompareAndDelete(e.path.String(), e) {
		c.expirations.Add(1)
		c.metrics.add(c.metrics.expirations, 1)
	}
}

// forget drops e from the LRU once it has left the entry map.
func (c *WorkspaceCache) forget(e *entry) {
	if c.lru != nil {
		c.lru.Remove(e)
	}
}

func (c *WorkspaceCache) mustBeReady(op string) {
	switch c.state.Load() {
	case stateNew:
		panic("cache: " + op + " called before Initialize")
	case stateClosed:
		panic("cache: " + op + " called after Close")
	}
}
