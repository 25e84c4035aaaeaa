package health

import (
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/ipmutex/pkg/ipmutex"
)

func testConfig(t *testing.T) *ipmutex.Config {
	config := ipmutex.DefaultConfig()
	config.Dir = t.TempDir()
	config.ProbeInterval = 10 * time.Millisecond
	config.CheckFreeSpace = false
	return config
}

func serve(h http.Handler, path string) *testResponseWriter {
	req, _ := http.NewRequest("GET", path, nil)
	rw := &testResponseWriter{}
	h.ServeHTTP(rw, req)
	return rw
}

func TestHandlerHealthy(t *testing.T) {
	config := testConfig(t)
	locks := ipmutex.NewRegistry(config)
	defer locks.Close()
	_, err := locks.Open("healthy")
	require.NoError(t, err)

	h := NewHandler(locks, Options{Dir: config.Dir})
	assert.Equal(t, http.StatusOK, serve(h, "/live").status)
	assert.Equal(t, http.StatusOK, serve(h, "/ready").status)
}

func TestHandlerStaleSegment(t *testing.T) {
	config := testConfig(t)
	locks := ipmutex.NewRegistry(config)
	defer locks.Close()
	_, err := locks.Open("stale")
	require.NoError(t, err)
	require.NoError(t, ipmutex.Remove("stale", config))

	h := NewHandler(locks, Options{Dir: config.Dir})
	rw := serve(h, "/live?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, rw.status)
	assert.Contains(t, string(rw.body), "was removed by its owner")
	// readiness includes the liveness checks
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/ready").status)
}

func TestHandlerNotReady(t *testing.T) {
	config := testConfig(t)
	locks := ipmutex.NewRegistry(config)
	defer locks.Close()

	h := NewHandler(locks, Options{Dir: config.Dir, MinFree: math.MaxUint64})
	assert.Equal(t, http.StatusOK, serve(h, "/live").status)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/ready").status)
}

func TestHandlerMetrics(t *testing.T) {
	config := testConfig(t)
	locks := ipmutex.NewRegistry(config)
	defer locks.Close()

	reg := prometheus.NewRegistry()
	h := NewHandler(locks, Options{Registerer: reg, Namespace: "ipmutex", Dir: config.Dir})
	assert.Equal(t, http.StatusOK, serve(h, "/ready").status)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	assert.Equal(t, "ipmutex_healthcheck_status", families[0].GetName())
}

type closedSource struct {
	m *ipmutex.Mutex
}

func (c closedSource) Each(fn func(*ipmutex.Mutex)) {
	fn(c.m)
}

func TestSegmentsCheckSkipsReleased(t *testing.T) {
	mu, err := ipmutex.NewWithConfig("released", testConfig(t))
	require.NoError(t, err)
	mu.Close()
	assert.NoError(t, SegmentsCheck(closedSource{m: mu})())
}

func TestSegmentsCheckDuringRelease(t *testing.T) {
	config := testConfig(t)
	locks := ipmutex.NewRegistry(config)
	defer locks.Close()
	check := SegmentsCheck(locks)

	for i := 0; i < 50; i++ {
		_, err := locks.Open("churn")
		require.NoError(t, err)
		done := make(chan struct{})
		go func() {
			defer close(done)
			locks.Release("churn")
		}()
		assert.NoError(t, check())
		<-done
	}
}

func TestFreeSpaceCheck(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, FreeSpaceCheck(dir, 1)())
	assert.Error(t, FreeSpaceCheck(dir, math.MaxUint64)())
	assert.Error(t, FreeSpaceCheck("/no/such/dir", 1)())
}

type testResponseWriter struct {
	headers http.Header
	status  int
	body    []byte
}

func (w *testResponseWriter) Header() http.Header {
	if w.headers == nil {
		w.headers = make(http.Header)
	}
	return w.headers
}

func (w *testResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body = append(w.body, b...)
	return len(b), nil
}

func (w *testResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
}
