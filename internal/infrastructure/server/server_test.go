package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/config"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.IPC.Bus = config.BusLoopback
	cfg.Store.Path = filepath.Join(t.TempDir(), ".widget.db")
	cfg.Server.Enabled = false
	cfg.Logging.Development = true
	return cfg
}

func TestRunServesUntilCancelled(t *testing.T) {
	s, err := New(testConfig(t), logging.NewNop())
	require.NoError(t, err)

	var states []string
	s.notify = func(state string) (bool, error) {
		states = append(states, state)
		return false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for the service to come up
	require.Eventually(t, func() bool {
		return s.Service().ViewerID() != ""
	}, 5*time.Second, 10*time.Millisecond)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/v1/widgets/w/launch", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.True(t, strings.Contains(string(body), "widgetd_launch_commands_total"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []string{"READY=1", "STOPPING=1"}, states)
}

func TestRunFailsOnBadStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""

	s, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	s.notify = func(string) (bool, error) { return false, nil }

	assert.Error(t, s.Run(context.Background()))
}

func TestGlobalRateLimitSharesOneBucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Global = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1

	s, err := New(cfg, logging.NewNop())
	require.NoError(t, err)

	first := httptest.NewRequest("GET", "/health", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, first)
	assert.Equal(t, http.StatusOK, w.Code)

	// A different client still draws from the same bucket
	second := httptest.NewRequest("GET", "/health", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, second)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
