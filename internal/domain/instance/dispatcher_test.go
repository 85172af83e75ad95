package instance

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	d := NewDispatcher(16, zap.NewNop(), nil)
	d.Start()

	var got []int
	for i := 0; i < 10; i++ {
		n := i
		assert.True(t, d.Post(func() { got = append(got, n) }))
	}
	d.Close()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(1, zap.NewNop(), metrics)

	// Not started, so the queue never drains
	assert.True(t, d.Post(func() {}))
	assert.False(t, d.Post(func() {}))
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DispatchDropped))

	d.Start()
	d.Close()
	assert.False(t, d.Post(func() {}))
	d.Close()
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(4, zap.NewNop(), nil)
	d.Start()

	var ran atomic.Bool
	d.Post(func() { panic("listener failure") })
	d.Post(func() { ran.Store(true) })
	d.Close()

	assert.True(t, ran.Load())
}

func TestDispatcherDoesNotBlockPoster(t *testing.T) {
	d := NewDispatcher(2, zap.NewNop(), nil)
	d.Start()
	release := make(chan struct{})
	d.Post(func() { <-release })

	start := time.Now()
	for i := 0; i < 10; i++ {
		d.Post(func() {})
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	d.Close()
}
