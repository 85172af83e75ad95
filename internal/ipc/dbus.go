package ipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// D-Bus names used by the platform launcher and the app-com signal bus
const (
	DefaultLauncherDest = "org.tizen.AppLauncher"
	DefaultLauncherPath = "/org/tizen/AppLauncher"
	launcherMethod      = "org.tizen.AppLauncher.Launch"

	appComPath   dbus.ObjectPath = "/org/tizen/AppCom"
	appComIface                  = "org.tizen.AppCom"
	appComMember                 = "Deliver"

	signalBufferSize = 64
)

// Connect opens a private connection to the session or system bus
func Connect(kind string) (*dbus.Conn, error) {
	switch kind {
	case "session":
		return dbus.ConnectSessionBus()
	case "system":
		return dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unsupported bus kind %q", kind)
	}
}

// DBusLauncher sends launch commands as a method call on the launcher service
type DBusLauncher struct {
	conn    *dbus.Conn
	dest    string
	path    dbus.ObjectPath
	timeout time.Duration
}

// NewDBusLauncher creates a launcher bound to conn. A zero timeout leaves the
// deadline to ctx.
func NewDBusLauncher(conn *dbus.Conn, dest, path string, timeout time.Duration) *DBusLauncher {
	if dest == "" {
		dest = DefaultLauncherDest
	}
	if path == "" {
		path = DefaultLauncherPath
	}
	return &DBusLauncher{
		conn:    conn,
		dest:    dest,
		path:    dbus.ObjectPath(path),
		timeout: timeout,
	}
}

// Launch calls Launch(s appid, a{ss} bundle) -> i pid
func (l *DBusLauncher) Launch(ctx context.Context, appID string, cmd types.Bundle) (int, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var pid int32
	call := l.conn.Object(l.dest, l.path).CallWithContext(ctx, launcherMethod, 0, appID, map[string]string(cmd))
	if err := call.Store(&pid); err != nil {
		return 0, fmt.Errorf("launch %s: %w", appID, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("launch %s: launcher returned %d", appID, pid)
	}
	return int(pid), nil
}

// DBusBus carries envelopes as org.tizen.AppCom.Deliver(s topic, a{ss} envelope)
// signals. Each endpoint adds a match rule on its topic and filters the
// shared signal stream.
type DBusBus struct {
	conn   *dbus.Conn
	logger *zap.Logger
}

// NewDBusBus wraps conn
func NewDBusBus(conn *dbus.Conn, logger *zap.Logger) *DBusBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBusBus{conn: conn, logger: logger}
}

type dbusEndpoint struct {
	bus     *DBusBus
	name    string
	handler Handler
	signals chan *dbus.Signal
	match   []dbus.MatchOption
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// CreateEndpoint starts delivering signals addressed to name
func (b *DBusBus) CreateEndpoint(name string, h Handler) (Endpoint, error) {
	if name == "" || h == nil {
		return nil, fmt.Errorf("dbus endpoint requires a name and handler")
	}
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(appComPath),
		dbus.WithMatchInterface(appComIface),
		dbus.WithMatchMember(appComMember),
		dbus.WithMatchArg(0, name),
	}
	if err := b.conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("add match for %s: %w", name, err)
	}

	ep := &dbusEndpoint{
		bus:     b,
		name:    name,
		handler: h,
		signals: make(chan *dbus.Signal, signalBufferSize),
		match:   match,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.conn.Signal(ep.signals)
	go ep.receive()
	return ep, nil
}

// Send emits env on topic
func (b *DBusBus) Send(ctx context.Context, topic string, env types.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.Emit(appComPath, appComIface+"."+appComMember, topic, map[string]string(env)); err != nil {
		return fmt.Errorf("emit to %s: %w", topic, err)
	}
	return nil
}

func (e *dbusEndpoint) receive() {
	defer close(e.done)
	for {
		var sig *dbus.Signal
		select {
		case <-e.quit:
			return
		case sig = <-e.signals:
		}
		if sig == nil || sig.Path != appComPath || sig.Name != appComIface+"."+appComMember || len(sig.Body) < 2 {
			continue
		}
		topic, ok := sig.Body[0].(string)
		if !ok || topic != e.name {
			continue
		}
		env, ok := sig.Body[1].(map[string]string)
		if !ok {
			e.bus.logger.Warn("Dropping signal with unexpected body",
				zap.String("endpoint", e.name),
				zap.String("sender", sig.Sender),
			)
			continue
		}
		e.handler(types.Bundle(env))
	}
}

func (e *dbusEndpoint) Name() string { return e.name }

// Leave removes the match rule and stops delivery. Handlers already
// running are allowed to finish.
func (e *dbusEndpoint) Leave() error {
	var err error
	left := false
	e.once.Do(func() {
		left = true
		err = e.bus.conn.RemoveMatchSignal(e.match...)
		e.bus.conn.RemoveSignal(e.signals)
		close(e.quit)
		<-e.done
	})
	if !left {
		return ErrEndpointClosed
	}
	return err
}
