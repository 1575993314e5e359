package fedfs

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultConcurrency bounds how many sources are queried in parallel for one
// path.
const DefaultConcurrency = 8

// OpenOptions configures a workspace.
type OpenOptions struct {
	Sources       []Source
	CachePolicy   CachePolicy
	MaxEntries    int
	WeakRefs      bool
	Merge         MergeOptions
	Concurrency   int
	Revalidate    bool
	Logger        *slog.Logger
	Clock         func() time.Time
	MeterProvider metric.MeterProvider
}

// OpenOption is a functional option for configuring Open.
type OpenOption func(*OpenOptions)

func defaultOptions() *OpenOptions {
	return &OpenOptions{
		CachePolicy:   BasicPolicy{},
		Merge:         DefaultMergeOptions(),
		Concurrency:   DefaultConcurrency,
		Logger:        slog.Default(),
		Clock:         time.Now,
		MeterProvider: otel.GetMeterProvider(),
	}
}

// WithSource appends a source. Sources are consulted in the order they are
// added; the first has the highest priority.
func WithSource(name string, mount Path, conn Connector) OpenOption {
	return func(o *OpenOptions) {
		o.Sources = append(o.Sources, Source{Name: name, Mount: mount, Connector: conn})
	}
}

// WithCachePolicy sets which nodes are cached and for how long.
func WithCachePolicy(p CachePolicy) OpenOption {
	return func(o *OpenOptions) { o.CachePolicy = p }
}

// WithMaxEntries bounds the cache; the least recently used node is dropped
// first.
func WithMaxEntries(n int) OpenOption {
	return func(o *OpenOptions) { o.MaxEntries = n }
}

// WithWeakReferences lets the garbage collector reclaim cached nodes that
// nothing else references.
func WithWeakReferences(enabled bool) OpenOption {
	return func(o *OpenOptions) { o.WeakRefs = enabled }
}

func WithMergeOptions(m MergeOptions) OpenOption {
	return func(o *OpenOptions) { o.Merge = m }
}

// WithConcurrency sets the number of sources queried in parallel.
func WithConcurrency(n int) OpenOption {
	return func(o *OpenOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithRevalidation makes cache hits ask revalidating connectors whether the
// recorded token is still current.
func WithRevalidation(enabled bool) OpenOption {
	return func(o *OpenOptions) { o.Revalidate = enabled }
}

func WithLogger(l *slog.Logger) OpenOption {
	return func(o *OpenOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

func WithClock(now func() time.Time) OpenOption {
	return func(o *OpenOptions) { o.Clock = now }
}

func WithMeterProvider(mp metric.MeterProvider) OpenOption {
	return func(o *OpenOptions) { o.MeterProvider = mp }
}
