package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	loginCount    map[string]int64
	loginDuration map[string]time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		loginCount:    make(map[string]int64),
		loginDuration: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordLogin counts a login attempt by outcome and internal reason.
func (m *Metrics) RecordLogin(outcome, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	key := outcome + "|" + reason
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginCount[key]++
	m.loginDuration[key] += duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests    map[string]int64   `json:"requests"`
	Errors      map[string]int64   `json:"errors"`
	Logins      map[string]int64   `json:"logins"`
	LoginMeanMs map[string]float64 `json:"login_mean_ms"` // per outcome|reason
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	means := make(map[string]float64, len(m.loginCount))
	for key, n := range m.loginCount {
		if n > 0 {
			means[key] = float64(m.loginDuration[key]/time.Duration(n)) / float64(time.Millisecond)
		}
	}
	return MetricsSnapshot{
		Requests:    copyCounts(m.requestCount),
		Errors:      copyCounts(m.errorCount),
		Logins:      copyCounts(m.loginCount),
		LoginMeanMs: means,
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
