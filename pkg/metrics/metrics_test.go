package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.JobAdmitted("media")
	m.JobAdmitted("audio")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsActive))

	m.JobFinished("media", "succeeded", 3*time.Second)
	m.JobFinished("audio", "failed", time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("media", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("audio", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.jobDuration))
}

func TestSessionAndArtifactMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.EventDropped("progress")
	m.EventDropped("progress")
	m.ArtifactReclaimed("deleted")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("progress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactsReclaimed.WithLabelValues("deleted")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/downloads/{name}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	for _, path := range []string{"/downloads/a.mp4", "/downloads/b.mp4", "/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/downloads/{name}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/health", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SessionOpened()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, _ := io.ReadAll(w.Body)
	assert.True(t, strings.Contains(string(body), "ytserver_sessions_active 1"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
