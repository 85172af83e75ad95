package instance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/widgetd/internal/ipc"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestReapRemovesStaleCreatedInstances(t *testing.T) {
	bus := ipc.NewLoopback()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	svc := NewService(bus, bus, filepath.Join(t.TempDir(), ".widget.db"), zap.NewNop()).
		WithMetrics(metrics).
		WithClock(clock.Now).
		WithReaper(time.Minute, time.Hour)
	require.NoError(t, svc.Init(context.Background(), testViewer))
	defer svc.Fini()

	stale, err := svc.Create("w")
	require.NoError(t, err)

	held, err := svc.Create("w")
	require.NoError(t, err)
	h, err := svc.GetInstance("w", held)
	require.NoError(t, err)

	running, err := svc.Create("w")
	require.NoError(t, err)
	require.NoError(t, bus.SendEvent(context.Background(), testViewer, ipc.Created{Ref: ref("w", running)}))

	launched, err := svc.Launch(context.Background(), LaunchRequest{WidgetID: "w"})
	require.NoError(t, err)

	// Nothing is old enough yet
	assert.Zero(t, svc.Reap(clock.now.Add(30*time.Second)))

	fresh := clock.now.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.Reap(fresh))

	_, ok := svc.Find("w", stale)
	assert.False(t, ok)
	for _, kept := range []string{held, running, launched.InstanceID} {
		_, ok := svc.Find("w", kept)
		assert.True(t, ok, kept)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InstancesReaped))

	// Once released the held instance becomes reapable too
	require.NoError(t, svc.Unref(h))
	assert.Equal(t, 1, svc.Reap(fresh))
}

func TestReapDisabled(t *testing.T) {
	bus := ipc.NewLoopback()
	svc := NewService(bus, bus, filepath.Join(t.TempDir(), ".widget.db"), nil)
	require.NoError(t, svc.Init(context.Background(), testViewer))
	defer svc.Fini()

	_, err := svc.Create("w")
	require.NoError(t, err)
	assert.Zero(t, svc.Reap(time.Now().Add(24*time.Hour)))
}

func TestReapable(t *testing.T) {
	now := time.Now()
	base := func() *Instance { return newInstance("u:w", "w", now.Add(-time.Hour)) }

	assert.True(t, reapable(base(), now, time.Minute))

	tests := map[string]func(*Instance){
		"running": func(i *Instance) { i.status = types.StatusRunning },
		"pid":     func(i *Instance) { i.pid = 10 },
		"stored":  func(i *Instance) { i.stored = true },
		"ref":     func(i *Instance) { i.ref = 1 },
		"pending": func(i *Instance) { i.pending = 1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			inst := base()
			mutate(inst)
			assert.False(t, reapable(inst, now, time.Minute))
		})
	}
}
