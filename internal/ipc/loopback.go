package ipc

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// LaunchCall records one command passed to Loopback.Launch
type LaunchCall struct {
	AppID   string
	Command types.Bundle
}

// LaunchFunc overrides how Loopback answers launch requests
type LaunchFunc func(ctx context.Context, appID string, cmd types.Bundle) (int, error)

// Loopback is an in-process Launcher and Bus. Sends are delivered
// synchronously on the sender's goroutine.
type Loopback struct {
	mu        sync.Mutex
	endpoints map[string][]*loopEndpoint
	calls     []LaunchCall
	launch    LaunchFunc
	nextPID   int
}

type loopEndpoint struct {
	bus     *Loopback
	name    string
	handler Handler
}

// NewLoopback creates an empty loopback transport
func NewLoopback() *Loopback {
	return &Loopback{
		endpoints: make(map[string][]*loopEndpoint),
		nextPID:   1000,
	}
}

// SetLaunchFunc replaces the default launch behavior (sequential pids)
func (l *Loopback) SetLaunchFunc(fn LaunchFunc) {
	l.mu.Lock()
	l.launch = fn
	l.mu.Unlock()
}

// Launch records the command and answers with a pid
func (l *Loopback) Launch(ctx context.Context, appID string, cmd types.Bundle) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	copied := make(types.Bundle, len(cmd))
	for k, v := range cmd {
		copied[k] = v
	}
	l.calls = append(l.calls, LaunchCall{AppID: appID, Command: copied})
	fn := l.launch
	if fn == nil {
		l.nextPID++
		pid := l.nextPID
		l.mu.Unlock()
		return pid, nil
	}
	l.mu.Unlock()
	return fn(ctx, appID, cmd)
}

// Launches returns the commands seen so far
func (l *Loopback) Launches() []LaunchCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LaunchCall, len(l.calls))
	copy(out, l.calls)
	return out
}

// CreateEndpoint subscribes h to envelopes sent to name
func (l *Loopback) CreateEndpoint(name string, h Handler) (Endpoint, error) {
	if name == "" || h == nil {
		return nil, fmt.Errorf("loopback endpoint requires a name and handler")
	}
	ep := &loopEndpoint{bus: l, name: name, handler: h}
	l.mu.Lock()
	l.endpoints[name] = append(l.endpoints[name], ep)
	l.mu.Unlock()
	return ep, nil
}

// Send delivers env to every endpoint named topic
func (l *Loopback) Send(ctx context.Context, topic string, env types.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	targets := append([]*loopEndpoint(nil), l.endpoints[topic]...)
	l.mu.Unlock()
	for _, ep := range targets {
		ep.handler(env)
	}
	return nil
}

// SendEvent encodes ev and sends it to topic
func (l *Loopback) SendEvent(ctx context.Context, topic string, ev Event) error {
	env, err := Encode(ev)
	if err != nil {
		return err
	}
	return l.Send(ctx, topic, env)
}

func (e *loopEndpoint) Name() string { return e.name }

func (e *loopEndpoint) Leave() error {
	l := e.bus
	l.mu.Lock()
	defer l.mu.Unlock()
	eps := l.endpoints[e.name]
	for i, ep := range eps {
		if ep == e {
			l.endpoints[e.name] = append(eps[:i], eps[i+1:]...)
			if len(l.endpoints[e.name]) == 0 {
				delete(l.endpoints, e.name)
			}
			return nil
		}
	}
	return ErrEndpointClosed
}
