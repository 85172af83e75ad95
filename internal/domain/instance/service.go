package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/widgetd/internal/ipc"
	"github.com/GriffinCanCode/widgetd/internal/shared/id"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// EventListener receives simplified lifecycle events (create, destroy,
// pause, resume)
type EventListener func(ev types.LifecycleEvent)

// StatusListener receives every decoded event for one widget id
type StatusListener func(ev types.StatusEvent)

// ListenerID identifies an EventListener registration
type ListenerID uint64

// LaunchRequest describes an instance to launch. An empty InstanceID
// creates a new instance first.
type LaunchRequest struct {
	WidgetID   string
	InstanceID string
	Content    types.Content
	Width      int
	Height     int
}

// LaunchResult reports the launched instance
type LaunchResult struct {
	InstanceID string
	PID        int
}

// Service is the instance tracker of one viewer. It is inert until Init
// and must be shut down with Fini.
type Service struct {
	// mu guards the registry, every Instance and the init state
	mu         sync.Mutex
	viewerID   string
	registry   *Registry
	router     *Router
	sender     *Sender
	dispatcher *Dispatcher
	endpoint   ipc.Endpoint
	ready      bool

	store    *Store
	launcher ipc.Launcher
	bus      ipc.Bus
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	ids      id.Generator
	now      func() time.Time

	queueSize    int
	reapTTL      time.Duration
	reapInterval time.Duration
	stopReaper   context.CancelFunc
	reaperDone   chan struct{}

	lmu            sync.RWMutex
	nextListener   ListenerID
	eventListeners map[ListenerID]EventListener
	listenOrder    []ListenerID
	statusByWidget map[string]StatusListener
}

// NewService creates a service that persists to storePath and talks to
// the platform through launcher and bus
func NewService(launcher ipc.Launcher, bus ipc.Bus, storePath string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:          NewStore(storePath),
		launcher:       launcher,
		bus:            bus,
		logger:         logger,
		ids:            id.Default,
		now:            time.Now,
		queueSize:      DefaultQueueSize,
		eventListeners: make(map[ListenerID]EventListener),
		statusByWidget: make(map[string]StatusListener),
	}
}

// WithMetrics adds metrics tracking to the service
func (s *Service) WithMetrics(metrics *monitoring.Metrics) *Service {
	s.metrics = metrics
	return s
}

// WithReaper removes never-launched instances older than ttl, checking
// every interval. A zero ttl disables reaping.
func (s *Service) WithReaper(ttl, interval time.Duration) *Service {
	s.reapTTL = ttl
	s.reapInterval = interval
	return s
}

// WithQueueSize sets the capacity of the listener queue
func (s *Service) WithQueueSize(n int) *Service {
	s.queueSize = n
	return s
}

// WithIDGenerator replaces the instance id generator
func (s *Service) WithIDGenerator(g id.Generator) *Service {
	s.ids = g
	return s
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ViewerID returns the viewer the service was initialized for
func (s *Service) ViewerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewerID
}

// Init loads the viewer's stored instances and starts listening for
// lifecycle envelopes on an endpoint named after the viewer.
func (s *Service) Init(ctx context.Context, viewerID string) error {
	if viewerID == "" {
		return fmt.Errorf("%w: empty viewer id", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return fmt.Errorf("%w: service already initialized for %s", ErrAlreadyExists, s.viewerID)
	}

	records, err := s.store.Load(ctx, viewerID)
	if err != nil {
		s.metrics.RecordStoreFailure("load")
		return err
	}

	s.viewerID = viewerID
	s.registry = NewRegistry(viewerID, s.ids)
	now := s.now()
	for _, rec := range records {
		if rec.DecodeErr != nil {
			s.metrics.RecordStoreFailure("decode")
			s.logger.Warn("Restoring stored instance without content",
				zap.String("instance_id", rec.InstanceID),
				zap.Error(rec.DecodeErr),
			)
		}
		inst, err := s.registry.Add(rec.WidgetID, rec.InstanceID, rec.Content, now)
		if err != nil {
			s.logger.Warn("Skipping stored instance",
				zap.String("instance_id", rec.InstanceID),
				zap.Error(err),
			)
			continue
		}
		inst.stored = true
	}

	s.dispatcher = NewDispatcher(s.queueSize, s.logger.Named("dispatch"), s.metrics)
	s.router = &Router{
		viewerID: viewerID,
		registry: s.registry,
		store:    s.store,
		out:      s,
		logger:   s.logger.Named("router"),
		metrics:  s.metrics,
		now:      s.now,
	}
	s.sender = &Sender{
		launcher:  s.launcher,
		endpoint:  viewerID,
		callerPID: os.Getpid(),
		logger:    s.logger.Named("launcher"),
		metrics:   s.metrics,
	}

	endpoint, err := s.bus.CreateEndpoint(viewerID, s.handleEnvelope)
	if err != nil {
		s.store.Close()
		return fmt.Errorf("%w: create endpoint %s: %v", ErrIPC, viewerID, err)
	}
	s.endpoint = endpoint
	s.dispatcher.Start()

	if s.reapTTL > 0 {
		interval := s.reapInterval
		if interval <= 0 {
			interval = s.reapTTL
		}
		reapCtx, cancel := context.WithCancel(context.Background())
		s.stopReaper = cancel
		s.reaperDone = make(chan struct{})
		go s.runReaper(reapCtx, interval)
	}

	s.ready = true
	s.refreshGauges()
	s.logger.Info("Instance service initialized",
		zap.String("viewer_id", viewerID),
		zap.Int("restored", s.registry.Len()),
		zap.String("store", s.store.Path()),
	)
	return nil
}

// Fini leaves the endpoint, delivers pending events and closes the store.
// The registry is discarded; stored instances come back on the next Init.
func (s *Service) Fini() error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrClosed
	}
	s.ready = false
	endpoint := s.endpoint
	s.endpoint = nil
	stopReaper, reaperDone := s.stopReaper, s.reaperDone
	s.stopReaper, s.reaperDone = nil, nil
	s.mu.Unlock()

	// Leave without the lock so an in-flight handler can finish
	var errs []error
	if err := endpoint.Leave(); err != nil {
		errs = append(errs, fmt.Errorf("%w: leave endpoint: %v", ErrIPC, err))
	}
	if stopReaper != nil {
		stopReaper()
		<-reaperDone
	}
	s.dispatcher.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	s.registry = NewRegistry(s.viewerID, s.ids)
	s.refreshGauges()
	s.logger.Info("Instance service stopped", zap.String("viewer_id", s.viewerID))
	return errors.Join(errs...)
}

// Create registers a new instance of widgetID and returns its id
func (s *Service) Create(widgetID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return "", ErrClosed
	}
	inst, err := s.registry.Create(widgetID, s.now())
	if err != nil {
		return "", err
	}
	s.refreshGauges()
	s.logger.Debug("Instance created",
		zap.String("widget_id", widgetID),
		zap.String("instance_id", inst.id),
	)
	return inst.id, nil
}

// Launch starts the widget process for an instance, creating the instance
// first when req.InstanceID is empty. On failure the instance stays in the
// created state and the returned result still names it so the caller can
// retry with the same id.
func (s *Service) Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error) {
	if req.WidgetID == "" {
		return LaunchResult{}, fmt.Errorf("%w: empty widget id", ErrInvalidArgument)
	}

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return LaunchResult{}, ErrClosed
	}
	var inst *Instance
	if req.InstanceID == "" {
		created, err := s.registry.Create(req.WidgetID, s.now())
		if err != nil {
			s.mu.Unlock()
			return LaunchResult{}, err
		}
		inst = created
		s.refreshGauges()
	} else {
		inst = s.registry.Find(req.WidgetID, req.InstanceID)
		if inst == nil || inst.status == types.StatusDeleted {
			s.mu.Unlock()
			return LaunchResult{}, fmt.Errorf("%w: %s", ErrNotFound, req.InstanceID)
		}
	}
	inst.width, inst.height = req.Width, req.Height
	inst.pending++
	sender := s.sender
	result := LaunchResult{InstanceID: inst.id}
	s.mu.Unlock()

	pid, err := sender.Create(ctx, req.WidgetID, result.InstanceID, req.Content, req.Width, req.Height)

	s.mu.Lock()
	defer s.mu.Unlock()
	inst.pending--
	if err != nil {
		return result, err
	}
	// The instance may have been destroyed while the command was in flight
	if s.registry.Find(inst.widgetID, inst.id) == inst && inst.status != types.StatusDeleted {
		inst.pid = pid
	}
	result.PID = pid
	return result, nil
}

// Terminate asks the widget process to stop the instance. The registry
// changes only when the process reports back.
func (s *Service) Terminate(ctx context.Context, widgetID, instanceID string) error {
	sender, err := s.commandTarget(widgetID, instanceID)
	if err != nil {
		return err
	}
	return sender.Terminate(ctx, widgetID, instanceID)
}

// Destroy asks the widget process to delete the instance. The registry
// changes only when the process reports back.
func (s *Service) Destroy(ctx context.Context, widgetID, instanceID string) error {
	sender, err := s.commandTarget(widgetID, instanceID)
	if err != nil {
		return err
	}
	return sender.Destroy(ctx, widgetID, instanceID)
}

// Resize sends a new size to the instance and records it once sent
func (s *Service) Resize(ctx context.Context, widgetID, instanceID string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidArgument, width, height)
	}
	sender, err := s.commandTarget(widgetID, instanceID)
	if err != nil {
		return err
	}
	if err := sender.Resize(ctx, widgetID, instanceID, width, height); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst := s.registry.Find(widgetID, instanceID); inst != nil {
		inst.width, inst.height = width, height
	}
	return nil
}

// TriggerUpdate asks the instance to refresh its content
func (s *Service) TriggerUpdate(ctx context.Context, widgetID, instanceID string, content types.Content, force bool) error {
	sender, err := s.commandTarget(widgetID, instanceID)
	if err != nil {
		return err
	}
	return sender.Update(ctx, widgetID, instanceID, content, force)
}

// ChangePeriod records a new update period and forwards it to the instance
func (s *Service) ChangePeriod(ctx context.Context, widgetID, instanceID string, period float64) error {
	if period < 0 {
		return fmt.Errorf("%w: negative period", ErrInvalidArgument)
	}
	sender, err := s.commandTarget(widgetID, instanceID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if inst := s.registry.Find(widgetID, instanceID); inst != nil {
		inst.period = period
	}
	s.mu.Unlock()
	return sender.Period(ctx, widgetID, instanceID, period)
}

func (s *Service) commandTarget(widgetID, instanceID string) (*Sender, error) {
	if widgetID == "" || instanceID == "" {
		return nil, fmt.Errorf("%w: empty widget or instance id", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrClosed
	}
	inst := s.registry.Find(widgetID, instanceID)
	if inst == nil || inst.status == types.StatusDeleted {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	return s.sender, nil
}

// Foreach calls fn with a copy of every instance of widgetID in creation
// order until fn returns false. fn runs without the service lock held.
func (s *Service) Foreach(widgetID string, fn func(types.InstanceInfo) bool) error {
	if widgetID == "" || fn == nil {
		return fmt.Errorf("%w: empty widget id or visitor", ErrInvalidArgument)
	}
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrClosed
	}
	var infos []types.InstanceInfo
	s.registry.Foreach(widgetID, func(inst *Instance) bool {
		infos = append(infos, inst.info())
		return true
	})
	s.mu.Unlock()

	for _, info := range infos {
		if !fn(info) {
			break
		}
	}
	return nil
}

// GetInstance returns a counted handle to an instance. Release it with Unref.
func (s *Service) GetInstance(widgetID, instanceID string) (*Handle, error) {
	if widgetID == "" || instanceID == "" {
		return nil, fmt.Errorf("%w: empty widget or instance id", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrClosed
	}
	inst := s.registry.Find(widgetID, instanceID)
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, instanceID)
	}
	s.registry.Ref(inst)
	return &Handle{svc: s, inst: inst}, nil
}

// Unref releases a handle. An instance whose last reference goes away
// after deletion is freed.
func (s *Service) Unref(h *Handle) error {
	if h == nil || h.svc != s {
		return fmt.Errorf("%w: foreign or nil handle", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrClosed
	}
	if h.released {
		return ErrReleased
	}
	h.released = true
	if s.registry.Unref(h.inst) {
		s.refreshGauges()
	}
	return nil
}

// Find returns a copy of an instance without taking a reference
func (s *Service) Find(widgetID, instanceID string) (types.InstanceInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return types.InstanceInfo{}, false
	}
	inst := s.registry.Find(widgetID, instanceID)
	if inst == nil {
		return types.InstanceInfo{}, false
	}
	return inst.info(), true
}

// Count returns the number of instances of widgetID
func (s *Service) Count(widgetID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0
	}
	return s.registry.Count(widgetID)
}

// List returns a copy of every tracked instance
func (s *Service) List() []types.InstanceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	all := s.registry.All()
	out := make([]types.InstanceInfo, 0, len(all))
	for _, inst := range all {
		out = append(out, inst.info())
	}
	return out
}

// Stats returns registry statistics
func (s *Service) Stats() types.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := types.Stats{ViewerID: s.viewerID, ByStatus: map[string]int{}}
	if !s.ready {
		return stats
	}
	stats.Widgets = s.registry.Widgets()
	stats.Instances = s.registry.Len()
	stats.ByStatus = s.registry.CountByStatus()
	stats.QueueDepth = s.dispatcher.Len()
	return stats
}

// Emit sends a raw lifecycle envelope to the viewer endpoint over the bus,
// as a widget process would. It is applied when the endpoint receives it;
// malformed or unknown envelopes are logged and dropped there.
func (s *Service) Emit(ctx context.Context, env types.Bundle) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrClosed
	}
	viewerID := s.viewerID
	s.mu.Unlock()

	if err := s.bus.Send(ctx, viewerID, env); err != nil {
		return fmt.Errorf("%w: send to %s: %v", ErrIPC, viewerID, err)
	}
	return nil
}

func (s *Service) handleEnvelope(env types.Bundle) {
	ev, err := ipc.Decode(env)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ipc.ErrUnknownEvent) {
			reason = "unknown_event"
		}
		s.metrics.RecordDroppedEnvelope(reason)
		s.logger.Warn("Dropping lifecycle envelope", zap.String("reason", reason), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		s.metrics.RecordDroppedEnvelope("closed")
		return
	}
	ref := ev.Instance()
	if err := s.router.Route(context.Background(), ev); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.RecordDroppedEnvelope("not_found")
		}
		s.logger.Warn("Lifecycle event not fully applied",
			zap.String("event", ev.Kind().String()),
			zap.String("widget_id", ref.WidgetID),
			zap.String("instance_id", ref.InstanceID),
			zap.Error(err),
		)
	}
	s.refreshGauges()
}

// ListenEvent registers fn for simplified lifecycle events
func (s *Service) ListenEvent(fn EventListener) (ListenerID, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: nil listener", ErrInvalidArgument)
	}
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextListener++
	lid := s.nextListener
	s.eventListeners[lid] = fn
	s.listenOrder = append(s.listenOrder, lid)
	return lid, nil
}

// UnlistenEvent removes a listener registered with ListenEvent
func (s *Service) UnlistenEvent(lid ListenerID) error {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if _, ok := s.eventListeners[lid]; !ok {
		return fmt.Errorf("%w: listener %d", ErrNotFound, lid)
	}
	delete(s.eventListeners, lid)
	for i, cur := range s.listenOrder {
		if cur == lid {
			s.listenOrder = append(s.listenOrder[:i], s.listenOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ListenStatus registers the status listener of widgetID. Only one
// listener per widget id is allowed.
func (s *Service) ListenStatus(widgetID string, fn StatusListener) error {
	if widgetID == "" || fn == nil {
		return fmt.Errorf("%w: empty widget id or nil listener", ErrInvalidArgument)
	}
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if _, ok := s.statusByWidget[widgetID]; ok {
		return fmt.Errorf("%w: status listener for %s", ErrAlreadyExists, widgetID)
	}
	s.statusByWidget[widgetID] = fn
	return nil
}

// UnlistenStatus removes the status listener of widgetID
func (s *Service) UnlistenStatus(widgetID string) error {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if _, ok := s.statusByWidget[widgetID]; !ok {
		return fmt.Errorf("%w: status listener for %s", ErrNotFound, widgetID)
	}
	delete(s.statusByWidget, widgetID)
	return nil
}

func (s *Service) publishLifecycle(ev types.LifecycleEvent) {
	s.dispatcher.Post(func() {
		s.lmu.RLock()
		listeners := make([]EventListener, 0, len(s.listenOrder))
		for _, lid := range s.listenOrder {
			listeners = append(listeners, s.eventListeners[lid])
		}
		s.lmu.RUnlock()
		for _, fn := range listeners {
			s.dispatcher.deliver(func() { fn(ev) })
		}
	})
}

func (s *Service) publishStatus(ev types.StatusEvent) {
	s.dispatcher.Post(func() {
		s.lmu.RLock()
		fn := s.statusByWidget[ev.WidgetID]
		s.lmu.RUnlock()
		if fn != nil {
			fn(ev)
		}
	})
}

// refreshGauges must be called with mu held
func (s *Service) refreshGauges() {
	if s.metrics == nil || s.registry == nil {
		return
	}
	s.metrics.SetInstances(s.registry.CountByStatus())
}
