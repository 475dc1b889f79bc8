// Package telemetry keeps in-process HTTP and business metrics and serves
// them in the Prometheus text exposition format.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/audit"
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

type histogram struct {
	mu      sync.Mutex
	buckets []int64
	count   int64
	sum     float64
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range durationBuckets {
		if v <= b {
			h.buckets[i]++
			return
		}
	}
}

// Metrics collects request durations by route and counts audited business
// events by action.
type Metrics struct {
	service string
	active  int64

	mu       sync.RWMutex
	requests map[string]*histogram
	events   map[string]int64

	pool func() *pgxpool.Stat
}

func NewMetrics(service string) *Metrics {
	return &Metrics{
		service:  service,
		requests: make(map[string]*histogram),
		events:   make(map[string]int64),
	}
}

// WatchPool adds connection pool gauges to every scrape.
func (m *Metrics) WatchPool(pool *pgxpool.Pool) {
	m.pool = pool.Stat
}

func requestKey(method, route string, status int) string {
	return method + "|" + route + "|" + strconv.Itoa(status)
}

func (m *Metrics) observe(key string, seconds float64) {
	m.mu.RLock()
	h, ok := m.requests[key]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if h, ok = m.requests[key]; !ok {
			h = &histogram{buckets: make([]int64, len(durationBuckets))}
			m.requests[key] = h
		}
		m.mu.Unlock()
	}
	h.observe(seconds)
}

// Middleware records one observation per request, labelled by the route
// pattern so ids do not explode cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&m.active, -1)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.observe(requestKey(c.Request().Method, route, status), time.Since(start).Seconds())
			return err
		}
	}
}

// Record implements audit.Recorder so business transitions show up as
// counters next to the request metrics.
func (m *Metrics) Record(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	m.events[e.Action]++
	m.mu.Unlock()
	return nil
}

func (m *Metrics) EventCount(action string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events[action]
}

func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, m.Expose())
	}
}

// Expose renders all metrics. Series are sorted so output is stable.
func (m *Metrics) Expose() string {
	var b strings.Builder

	m.mu.RLock()
	reqKeys := make([]string, 0, len(m.requests))
	for k := range m.requests {
		reqKeys = append(reqKeys, k)
	}
	evKeys := make([]string, 0, len(m.events))
	for k := range m.events {
		evKeys = append(evKeys, k)
	}
	m.mu.RUnlock()
	sort.Strings(reqKeys)
	sort.Strings(evKeys)

	b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
	b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
	for _, k := range reqKeys {
		parts := strings.SplitN(k, "|", 3)
		labels := fmt.Sprintf("service=%q,method=%q,route=%q,status_code=%q", m.service, parts[0], parts[1], parts[2])
		m.mu.RLock()
		h := m.requests[k]
		m.mu.RUnlock()
		writeHistogram(&b, "http_server_request_duration_seconds", labels, h)
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(&b, "http_server_active_requests{service=%q} %d\n\n", m.service, atomic.LoadInt64(&m.active))

	b.WriteString("# HELP his_business_events_total Audited business transitions by action.\n")
	b.WriteString("# TYPE his_business_events_total counter\n")
	for _, k := range evKeys {
		fmt.Fprintf(&b, "his_business_events_total{action=%q} %d\n", k, m.EventCount(k))
	}
	b.WriteByte('\n')

	if m.pool != nil {
		st := m.pool()
		b.WriteString("# HELP db_pool_connections Database pool connections by state.\n")
		b.WriteString("# TYPE db_pool_connections gauge\n")
		fmt.Fprintf(&b, "db_pool_connections{state=\"acquired\"} %d\n", st.AcquiredConns())
		fmt.Fprintf(&b, "db_pool_connections{state=\"idle\"} %d\n", st.IdleConns())
		fmt.Fprintf(&b, "db_pool_connections{state=\"max\"} %d\n\n", st.MaxConns())
	}

	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var running int64
	for i, bound := range durationBuckets {
		running += h.buckets[i]
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, bound, running)
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.count)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.sum)
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.count)
}
