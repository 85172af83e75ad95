package ipc

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// Launch command keys understood by the platform launcher and widget apps
const (
	KeyCallerPID = "__WIDGET_CALLER_PID__"
	KeyEndpoint  = "__WIDGET_ENDPOINT__"
	KeyWidth     = "__WIDGET_WIDTH__"
	KeyHeight    = "__WIDGET_HEIGHT__"
	KeyPeriod    = "__WIDGET_PERIOD__"
	KeyForce     = "__WIDGET_FORCE__"
	KeyOperation = "__WIDGET_OP__"
)

// Operations carried in KeyOperation
const (
	OpCreate    = "create"
	OpTerminate = "terminate"
	OpDestroy   = "destroy"
	OpResize    = "resize"
	OpUpdate    = "update"
	OpPeriod    = "period"
)

var ErrEndpointClosed = errors.New("ipc endpoint closed")

// Launcher asks the platform to deliver a command to an application,
// starting its process when needed. It returns the pid of the target.
type Launcher interface {
	Launch(ctx context.Context, appID string, cmd types.Bundle) (int, error)
}

// Handler receives raw envelopes delivered to an endpoint
type Handler func(env types.Bundle)

// Endpoint is a live subscription created on a Bus
type Endpoint interface {
	Name() string
	Leave() error
}

// Bus is the asynchronous pub/sub channel widget processes report on
type Bus interface {
	CreateEndpoint(name string, h Handler) (Endpoint, error)
	Send(ctx context.Context, topic string, env types.Bundle) error
}
