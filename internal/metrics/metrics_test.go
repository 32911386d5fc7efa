package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.NotificationsWritten("liked", 3)
		m.BatchCommit(nil)
		m.FanoutFailure("followers")
		m.Mutation("like", errors.New("boom"))
		m.Trigger("nats", nil)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.NotificationsWritten("posted", 2)
	m.NotificationsWritten("posted", 0)
	m.BatchCommit(nil)
	m.BatchCommit(errors.New("boom"))
	m.Mutation("follow", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.notificationsWritten.WithLabelValues("posted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchCommits.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchCommits.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("follow", "ok")))
}

func TestHandlerExposesEngineMetrics(t *testing.T) {
	m := New()
	m.FanoutFailure("commit")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `engine_fanout_failures_total{stage="commit"} 1`)
}
