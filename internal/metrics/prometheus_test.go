package metrics

import (
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

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCreation("trigger", "created")
	m.RecordCreation("trigger", "created")
	m.RecordAdmissionRejected("explicit")
	m.UpdateQueueDepth(3)
	m.RecordSweep("periodic", 2, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CreationRequests.WithLabelValues("trigger", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionRejected.WithLabelValues("explicit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweepOrphans.WithLabelValues("periodic")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMetrics_MiddlewareUsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/v1/rooms/{room_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rooms/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/v1/rooms/{room_id}", "418")))

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, out.Code)
	assert.True(t, strings.Contains(out.Body.String(), "tempvoice_http_requests_total"))
}
