package observability

import (
	"strconv"
	"sync"
	"time"
)

type routeStats struct {
	requests     int64
	errors       int64
	totalLatency time.Duration
}

// Metrics keeps in-memory per-route counters, keyed by path, method and
// outcome.
type Metrics struct {
	mu     sync.Mutex
	routes map[string]*routeStats
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{routes: make(map[string]*routeStats)}
}

// RecordRequest counts a completed request and accumulates its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.route(routeKey(path, method, strconv.Itoa(status)))
	stats.requests++
	stats.totalLatency += duration
}

// RecordError counts a request that resolved to a domain error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.route(routeKey(path, method, code)).errors++
}

func (m *Metrics) route(key string) *routeStats {
	stats, ok := m.routes[key]
	if !ok {
		stats = &routeStats{}
		m.routes[key] = stats
	}
	return stats
}

func routeKey(path, method, outcome string) string {
	return path + "|" + method + "|" + outcome
}
