package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Metrics_RecordIssue(t *testing.T) {
	m := NewMetrics()
	m.RecordIssue("fully_replayed", 4, 20*time.Millisecond)
	m.RecordIssue("fully_replayed", 1, time.Millisecond)
	m.RecordIssue("skipped", 0, time.Millisecond)
	m.RecordAnomalies("unmapped_field", 3)
	m.RecordAnomalies("coercion_failure", 0)
	m.RecordSinkFailures("write", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.issues.WithLabelValues("fully_replayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issues.WithLabelValues("skipped")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.snapshots))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.anomalies.WithLabelValues("unmapped_field")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sinkFailures.WithLabelValues("write")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.anomalies), "zero counts are not recorded")
}

func Test_Metrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordIssue("skipped", 0, 0)
		m.RecordRequest("/", "GET", 200, 0)
		m.RecordError("/", "GET", "internal_error")
		m.RecordRun("jira")
	})
}

func Test_Metrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/runs/latest", "GET", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `issuelog_http_requests_total{method="GET",path="/runs/latest",status="200"} 1`))
}
