package instance

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
)

// DefaultQueueSize is the number of republished events that may wait for
// delivery before new ones are dropped
const DefaultQueueSize = 256

// Dispatcher runs queued deliveries one at a time on its own goroutine so
// listeners never execute on the IPC receive path.
type Dispatcher struct {
	mu      sync.RWMutex
	queue   chan func()
	closed  bool
	done    chan struct{}
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewDispatcher creates a stopped dispatcher with room for size pending jobs
func NewDispatcher(size int, logger *zap.Logger, metrics *monitoring.Metrics) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   make(chan func(), size),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Start launches the delivery goroutine
func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Listener panicked", zap.Any("panic", r))
		}
	}()
	job()
}

// Post queues job without blocking. It reports false when the queue is
// full or the dispatcher is closed.
func (d *Dispatcher) Post(job func()) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- job:
		return true
	default:
		d.metrics.IncDispatchDropped()
		d.logger.Warn("Listener queue full, dropping event", zap.Int("capacity", cap(d.queue)))
		return false
	}
}

// Len returns the number of queued jobs
func (d *Dispatcher) Len() int {
	return len(d.queue)
}

// Close stops accepting jobs, delivers what is queued and waits for the
// goroutine to exit. Start must have been called.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
