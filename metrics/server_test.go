package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_CreatesServerWithAddress(t *testing.T) {
	server := NewServer(":9999")

	assert.NotNil(t, server)
	assert.NotNil(t, server.server)
	assert.Equal(t, ":9999", server.Addr())
}

func TestHandler_MetricsEndpointReturnsPrometheusFormat(t *testing.T) {
	NewCollector("test-handler").IncRuns(OutcomeGood)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "datacopy_runs_total")
}

func TestHandler_Healthz(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:9998")

	server.Start()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)
	assert.NoError(t, server.Err())

	resp, err := http.Get("http://127.0.0.1:9998/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	time.Sleep(100 * time.Millisecond)
	_, err = http.Get("http://127.0.0.1:9998/metrics")
	assert.Error(t, err)
}

func TestServer_ErrReportsBindFailure(t *testing.T) {
	server := NewServer("127.0.0.1:-1")

	server.Start()
	time.Sleep(100 * time.Millisecond)

	assert.Error(t, server.Err())
}
