// Package observability implements a small in-process Prometheus-compatible
// metrics registry (Counter/Gauge/Histogram) and its /metrics text
// exposition handler.
package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Counter is a monotonically increasing value.
type Counter struct {
	v int64
}

func (c *Counter) Inc()         { atomic.AddInt64(&c.v, 1) }
func (c *Counter) Add(n int64)  { atomic.AddInt64(&c.v, n) }
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.v) }

// Gauge is a value that can go up and down, stored as micros so Set can
// carry float precision through an atomic int64.
type Gauge struct {
	v int64
}

func (g *Gauge) Set(v float64)  { atomic.StoreInt64(&g.v, int64(v*1e6)) }
func (g *Gauge) Inc()           { atomic.AddInt64(&g.v, 1e6) }
func (g *Gauge) Dec()           { atomic.AddInt64(&g.v, -1e6) }
func (g *Gauge) Value() float64 { return float64(atomic.LoadInt64(&g.v)) / 1e6 }

// Histogram tracks a value distribution over fixed upper bounds. Bucket
// counts are kept cumulative, matching the exposition format directly.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	cum    []int64
	sum    float64
	count  int64
}

func NewHistogram(bounds []float64) *Histogram {
	sorted := make([]float64, len(bounds))
	copy(sorted, bounds)
	sort.Float64s(sorted)
	return &Histogram{bounds: sorted, cum: make([]int64, len(sorted))}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i := len(h.bounds) - 1; i >= 0 && v <= h.bounds[i]; i-- {
		h.cum[i]++
	}
}

// Metrics is the registry every component reports into. Series register
// implicitly on first use, keyed by metric name plus rendered label set.
type Metrics struct {
	logger zerolog.Logger

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram

	// latency bounds, in milliseconds, shared by every histogram series
	latencyBounds []float64
}

// NewMetrics creates a new metrics registry.
func NewMetrics(logger zerolog.Logger) *Metrics {
	return &Metrics{
		logger:        logger.With().Str("component", "metrics").Logger(),
		counters:      make(map[string]*Counter),
		gauges:        make(map[string]*Gauge),
		histograms:    make(map[string]*Histogram),
		latencyBounds: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}
}

// seriesID renders "name" or `name{k="v",...}` with labels sorted, so the
// same label set always maps to the same series.
func seriesID(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", k, labels[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// seriesName strips the label part of a series id back off.
func seriesName(id string) string {
	if i := strings.IndexByte(id, '{'); i >= 0 {
		return id[:i]
	}
	return id
}

func (m *Metrics) CounterInc(name string, labels map[string]string) {
	m.counterFor(seriesID(name, labels)).Inc()
}

func (m *Metrics) CounterAdd(name string, labels map[string]string, n int64) {
	m.counterFor(seriesID(name, labels)).Add(n)
}

func (m *Metrics) GaugeSet(name string, labels map[string]string, v float64) {
	m.gaugeFor(seriesID(name, labels)).Set(v)
}

func (m *Metrics) GaugeInc(name string, labels map[string]string) {
	m.gaugeFor(seriesID(name, labels)).Inc()
}

func (m *Metrics) GaugeDec(name string, labels map[string]string) {
	m.gaugeFor(seriesID(name, labels)).Dec()
}

func (m *Metrics) HistogramObserve(name string, labels map[string]string, v float64) {
	m.histogramFor(seriesID(name, labels)).Observe(v)
}

func (m *Metrics) counterFor(id string) *Counter {
	m.mu.RLock()
	c, ok := m.counters[id]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[id]; ok {
		return c
	}
	c = &Counter{}
	m.counters[id] = c
	return c
}

func (m *Metrics) gaugeFor(id string) *Gauge {
	m.mu.RLock()
	g, ok := m.gauges[id]
	m.mu.RUnlock()
	if ok {
		return g
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[id]; ok {
		return g
	}
	g = &Gauge{}
	m.gauges[id] = g
	return g
}

func (m *Metrics) histogramFor(id string) *Histogram {
	m.mu.RLock()
	h, ok := m.histograms[id]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[id]; ok {
		return h
	}
	h = NewHistogram(m.latencyBounds)
	m.histograms[id] = h
	return h
}

// TrackRequest records a completed HTTP request.
func (m *Metrics) TrackRequest(method, route string, statusCode int, latencyMs float64) {
	labels := map[string]string{
		"method": method,
		"route":  route,
		"status": fmt.Sprintf("%d", statusCode),
	}
	m.CounterInc("hiitrack_http_requests_total", labels)
	m.HistogramObserve("hiitrack_http_request_duration_ms", labels, latencyMs)
}

// TrackInflight moves the in-flight request gauge up or down.
func (m *Metrics) TrackInflight(delta int) {
	if delta > 0 {
		m.GaugeInc("hiitrack_http_inflight_requests", nil)
	} else {
		m.GaugeDec("hiitrack_http_inflight_requests", nil)
	}
}

// TrackStoreCall records a completed Store adapter call.
func (m *Metrics) TrackStoreCall(op string, latencyMs float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := map[string]string{"op": op, "status": status}
	m.CounterInc("hiitrack_store_calls_total", labels)
	m.HistogramObserve("hiitrack_store_call_duration_ms", labels, latencyMs)
}

// TrackEventRecorded records one processed event POST.
func (m *Metrics) TrackEventRecorded(bucket string) {
	m.CounterInc("hiitrack_events_recorded_total", map[string]string{"bucket": bucket})
}

// TrackPropertyRecorded records one processed property POST.
func (m *Metrics) TrackPropertyRecorded(bucket string) {
	m.CounterInc("hiitrack_properties_recorded_total", map[string]string{"bucket": bucket})
}

// TrackRateLimitRejected records a request rejected by the rate limiter.
func (m *Metrics) TrackRateLimitRejected(key string) {
	m.CounterInc("hiitrack_rate_limit_rejected_total", map[string]string{"key": key})
}

// Handler serves the registry in Prometheus text exposition format, series
// sorted by id so scrapes are stable.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		m.mu.RLock()
		defer m.mu.RUnlock()

		var sb strings.Builder

		typed := make(map[string]bool)
		for _, id := range sortedKeys(m.counters) {
			if name := seriesName(id); !typed[name] {
				typed[name] = true
				fmt.Fprintf(&sb, "# TYPE %s counter\n", name)
			}
			fmt.Fprintf(&sb, "%s %d\n", id, m.counters[id].Value())
		}

		for _, id := range sortedKeys(m.gauges) {
			if name := seriesName(id); !typed[name] {
				typed[name] = true
				fmt.Fprintf(&sb, "# TYPE %s gauge\n", name)
			}
			fmt.Fprintf(&sb, "%s %f\n", id, m.gauges[id].Value())
		}

		for _, id := range sortedKeys(m.histograms) {
			name := seriesName(id)
			if !typed[name] {
				typed[name] = true
				fmt.Fprintf(&sb, "# TYPE %s histogram\n", name)
			}
			h := m.histograms[id]
			h.mu.Lock()
			labelPart := strings.TrimPrefix(id, name)
			for i, b := range h.bounds {
				sb.WriteString(name + "_bucket" + withLabel(labelPart, fmt.Sprintf(`le="%g"`, b)))
				fmt.Fprintf(&sb, " %d\n", h.cum[i])
			}
			sb.WriteString(name + "_bucket" + withLabel(labelPart, `le="+Inf"`))
			fmt.Fprintf(&sb, " %d\n", h.count)
			fmt.Fprintf(&sb, "%s_sum%s %f\n", name, labelPart, h.sum)
			fmt.Fprintf(&sb, "%s_count%s %d\n", name, labelPart, h.count)
			h.mu.Unlock()
		}

		_, _ = w.Write([]byte(sb.String()))
	}
}

// withLabel merges an extra label into an already-rendered label part.
func withLabel(labelPart, extra string) string {
	if labelPart == "" {
		return "{" + extra + "}"
	}
	return "{" + extra + "," + strings.TrimSuffix(strings.TrimPrefix(labelPart, "{"), "}") + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
