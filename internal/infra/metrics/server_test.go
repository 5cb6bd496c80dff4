package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouterHealthAndReadiness(t *testing.T) {
	ready := false
	h := NewRouter(func() bool { return ready })

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)

	ready = true
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
}

func TestRouterExposesRoopMetrics(t *testing.T) {
	FramesExtractedTotal.Add(3)
	PhaseDuration.WithLabelValues("video_path").Observe(1.5)

	rec := get(t, NewRouter(nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "roop_frames_extracted_total")
	assert.Contains(t, rec.Body.String(), `roop_phase_duration_seconds_count{phase="video_path"}`)
}
