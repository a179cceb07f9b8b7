package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/auth/login", "POST", 200, time.Millisecond)
	m.RecordError("/auth/login", "POST", "UNAUTHORIZED")
	m.RecordLogin("authentication_failure", "bad_password", 10*time.Millisecond)
	m.RecordLogin("authentication_failure", "bad_password", 30*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Requests["/auth/login|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/auth/login|POST|UNAUTHORIZED"])
	assert.Equal(t, int64(2), snap.Logins["authentication_failure|bad_password"])
	assert.Equal(t, 20.0, snap.LoginMeanMs["authentication_failure|bad_password"])
	assert.NotContains(t, snap.LoginMeanMs, "success|ok")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordLogin("success", "ok", 0)
	assert.Empty(t, m.Snapshot().Logins)
}
