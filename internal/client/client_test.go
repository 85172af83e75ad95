package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/widgetd/internal/api/http"
	"github.com/GriffinCanCode/widgetd/internal/domain/instance"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/widgetd/internal/ipc"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

const viewer = "org.example.viewer"

func setup(t *testing.T) (*Client, *ipc.Loopback) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := ipc.NewLoopback()
	svc := instance.NewService(bus, bus, filepath.Join(t.TempDir(), ".widget.db"), zap.NewNop())
	require.NoError(t, svc.Init(context.Background(), viewer))
	t.Cleanup(func() { svc.Fini() })

	router := gin.New()
	apihttp.NewHandlers(svc, zap.NewNop(), "test").WithLogLevel(logging.NewNop()).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return New(srv.URL, 5*time.Second), bus
}

func TestClientLifecycle(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	res, err := c.Launch(ctx, "org.example.clock@analog", LaunchOptions{Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Positive(t, res.PID)

	err = c.Emit(ctx, types.Bundle{
		ipc.KeyWidgetID:    "org.example.clock@analog",
		ipc.KeyInstanceID:  res.InstanceID,
		ipc.KeyStatus:      "0",
		ipc.KeyContentInfo: `{"tz":"UTC"}`,
	})
	require.NoError(t, err)

	info, err := c.Get(ctx, "org.example.clock@analog", res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, info.Status)
	assert.Equal(t, "UTC", info.Content["tz"])

	require.NoError(t, c.Resize(ctx, "org.example.clock@analog", res.InstanceID, 200, 200))
	require.NoError(t, c.Update(ctx, "org.example.clock@analog", res.InstanceID, nil, true))
	require.NoError(t, c.Period(ctx, "org.example.clock@analog", res.InstanceID, 60))
	require.NoError(t, c.Terminate(ctx, "org.example.clock@analog", res.InstanceID))
	require.NoError(t, c.Destroy(ctx, "org.example.clock@analog", res.InstanceID))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, viewer, stats.ViewerID)
	assert.Equal(t, 1, stats.Instances)
}

func TestClientList(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Create(ctx, "w")
		require.NoError(t, err)
	}
	_, err := c.Create(ctx, "other")
	require.NoError(t, err)

	all, err := c.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := c.List(ctx, "w", 2)
	require.NoError(t, err)
	assert.Len(t, some, 2)
}

func TestClientErrors(t *testing.T) {
	c, bus := setup(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "w", "missing:w")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	bus.SetLaunchFunc(func(context.Context, string, types.Bundle) (int, error) {
		return 0, errors.New("launcher down")
	})
	_, err = c.Launch(ctx, "w", LaunchOptions{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.NotEmpty(t, apiErr.InstanceID)
	assert.Contains(t, apiErr.Message, "launcher down")
}

func TestClientUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Stats(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClientLogLevel(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	level, err := c.LogLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "info", level)

	require.NoError(t, c.SetLogLevel(ctx, "warn"))
	level, err = c.LogLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "warn", level)

	var apiErr *APIError
	require.ErrorAs(t, c.SetLogLevel(ctx, "loud"), &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}
