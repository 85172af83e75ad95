package instance

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/widgetd/internal/ipc"
	"github.com/GriffinCanCode/widgetd/internal/shared/id"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// Sender builds launcher commands for an instance. It never touches the
// registry and never retries.
type Sender struct {
	launcher  ipc.Launcher
	endpoint  string
	callerPID int
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// Create asks the launcher to start the widget app and create the instance.
// It returns the pid of the widget process.
func (s *Sender) Create(ctx context.Context, widgetID, instanceID string, content types.Content, width, height int) (int, error) {
	cmd := types.Bundle{
		ipc.KeyWidth:  strconv.Itoa(width),
		ipc.KeyHeight: strconv.Itoa(height),
	}
	if len(content) > 0 {
		raw, err := content.Encode()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		cmd[ipc.KeyContentInfo] = raw
	}
	return s.send(ctx, ipc.OpCreate, widgetID, instanceID, cmd)
}

// Terminate asks the widget app to stop the instance
func (s *Sender) Terminate(ctx context.Context, widgetID, instanceID string) error {
	_, err := s.send(ctx, ipc.OpTerminate, widgetID, instanceID, nil)
	return err
}

// Destroy asks the widget app to delete the instance permanently
func (s *Sender) Destroy(ctx context.Context, widgetID, instanceID string) error {
	_, err := s.send(ctx, ipc.OpDestroy, widgetID, instanceID, nil)
	return err
}

// Resize asks the widget app to render the instance at a new size
func (s *Sender) Resize(ctx context.Context, widgetID, instanceID string, width, height int) error {
	_, err := s.send(ctx, ipc.OpResize, widgetID, instanceID, types.Bundle{
		ipc.KeyWidth:  strconv.Itoa(width),
		ipc.KeyHeight: strconv.Itoa(height),
	})
	return err
}

// Update asks the instance to refresh, optionally with new content
func (s *Sender) Update(ctx context.Context, widgetID, instanceID string, content types.Content, force bool) error {
	cmd := types.Bundle{ipc.KeyForce: strconv.FormatBool(force)}
	if len(content) > 0 {
		raw, err := content.Encode()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		cmd[ipc.KeyContentInfo] = raw
	}
	_, err := s.send(ctx, ipc.OpUpdate, widgetID, instanceID, cmd)
	return err
}

// Period tells the instance its new update period in seconds
func (s *Sender) Period(ctx context.Context, widgetID, instanceID string, period float64) error {
	_, err := s.send(ctx, ipc.OpPeriod, widgetID, instanceID, types.Bundle{
		ipc.KeyPeriod: strconv.FormatFloat(period, 'f', -1, 64),
	})
	return err
}

func (s *Sender) send(ctx context.Context, op, widgetID, instanceID string, extra types.Bundle) (int, error) {
	cmd := types.Bundle{
		ipc.KeyWidgetID:   widgetID,
		ipc.KeyInstanceID: instanceID,
		ipc.KeyOperation:  op,
		ipc.KeyCallerPID:  strconv.Itoa(s.callerPID),
		ipc.KeyEndpoint:   s.endpoint,
	}
	for k, v := range extra {
		cmd[k] = v
	}

	appID := id.AppID(widgetID)
	timer := monitoring.NewTimer(s.metrics, op)
	pid, err := s.launcher.Launch(ctx, appID, cmd)
	if err == nil && pid <= 0 {
		err = fmt.Errorf("launcher returned pid %d", pid)
	}
	if err != nil {
		timer.Stop("failure")
		s.logger.Warn("Launcher command failed",
			zap.String("operation", op),
			zap.String("app_id", appID),
			zap.String("instance_id", instanceID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("%w: %s %s: %v", ErrIPC, op, instanceID, err)
	}
	timer.Stop("success")
	return pid, nil
}
