package cache

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/aweris/fedfs/internal/cache"

type metrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	writes        metric.Int64Counter
	expirations   metric.Int64Counter
	invalidations metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)
	m := &metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.hits, "fedfs_cache_hits_total", "Total number of cache hits"},
		{&m.misses, "fedfs_cache_misses_total", "Total number of cache misses"},
		{&m.writes, "fedfs_cache_writes_total", "Total number of nodes written to the cache"},
		{&m.expirations, "fedfs_cache_expirations_total", "Total number of expired or reclaimed entries removed on lookup"},
		{&m.invalidations, "fedfs_cache_invalidations_total", "Total number of entries removed by invalidation"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *metrics) add(counter metric.Int64Counter, n int64) {
	if n == 0 {
		return
	}
	counter.Add(context.Background(), n)
}
