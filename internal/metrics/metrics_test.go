package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RunFinished("success")
	m.RunFinished("success")
	m.RunFinished("no_data")
	m.AddRepos("scraped", 30)
	m.AddRepos("scraped", 0)
	m.AddDegraded(2)
	m.EmailSent("user", true)
	m.EmailSent("user", false)
	m.Trigger("triggered")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("no_data")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.repos.WithLabelValues("scraped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.degraded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("user", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggers.WithLabelValues("triggered")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunFinished("success")
		m.ObserveStage("scraping", time.Now())
		m.AddRepos("scraped", 1)
		m.AddDegraded(1)
		m.EmailSent("fallback", true)
		m.Trigger("limit_reached")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveStage("scraping", time.Now().Add(-2*time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "trending_digest_pipeline_stage_duration_seconds_count{stage=\"scraping\"} 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
