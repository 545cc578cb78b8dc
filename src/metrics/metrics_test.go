package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesConverted.Inc()
	m.FramesConverted.Inc()
	m.FramesSkipped.Inc()
	m.Observe(StageInference, time.Now().Add(-time.Second))
	m.RunsTotal.WithLabelValues("completed").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesConverted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.FramesConverted.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesConverted))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).FramesConverted.Add(3)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "video2anime_frames_converted_total 3")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
