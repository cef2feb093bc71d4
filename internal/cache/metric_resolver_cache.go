package cache

import (
	"strings"
	"time"

	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	"go.uber.org/fx"
)

// Module provides the metric resolver cache.
var Module = fx.Module("cache",
	fx.Provide(NewMetricResolverCache),
)

const defaultMetricTTL = 10 * time.Minute

// MetricResolverCache stores metric-by-name lookups for the event
// ingest hot path. The registry invalidates entries on every mutation.
type MetricResolverCache interface {
	GetMetric(name string) (*metricdomain.Metric, bool)
	SetMetric(name string, metric *metricdomain.Metric)
	Invalidate(name string)
	Reset()
}

type metricResolverCache struct {
	metrics Cache[*metricdomain.Metric]
	ttl     time.Duration
}

// NewMetricResolverCache returns an in-memory cache tuned for ingest.
func NewMetricResolverCache() MetricResolverCache {
	return &metricResolverCache{
		metrics: NewTTLCache[*metricdomain.Metric](),
		ttl:     defaultMetricTTL,
	}
}

func (c *metricResolverCache) GetMetric(name string) (*metricdomain.Metric, bool) {
	return c.metrics.Get(cacheKey(name))
}

func (c *metricResolverCache) SetMetric(name string, metric *metricdomain.Metric) {
	if metric == nil {
		return
	}
	c.metrics.Set(cacheKey(name), metric, c.ttl)
}

func (c *metricResolverCache) Invalidate(name string) {
	c.metrics.Delete(cacheKey(name))
}

func (c *metricResolverCache) Reset() {
	c.metrics.Flush()
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
