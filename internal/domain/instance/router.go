package instance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/widgetd/internal/ipc"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// publisher receives events the router republishes
type publisher interface {
	publishLifecycle(ev types.LifecycleEvent)
	publishStatus(ev types.StatusEvent)
}

// Router applies decoded lifecycle events to the registry and store.
// Callers hold the Service lock.
type Router struct {
	viewerID string
	registry *Registry
	store    *Store
	out      publisher
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// Route applies ev. It returns ErrNotFound when the instance is unknown or
// already deleted; the caller logs and drops the event in that case.
func (r *Router) Route(ctx context.Context, ev ipc.Event) error {
	ref := ev.Instance()
	inst := r.registry.Find(ref.WidgetID, ref.InstanceID)
	if inst == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, ref.InstanceID)
	}
	if inst.status == types.StatusDeleted {
		return fmt.Errorf("%w: %s already deleted", ErrNotFound, ref.InstanceID)
	}
	r.metrics.RecordEvent(ev.Kind().String())

	// Status listeners see every event before the registry may free the instance
	r.out.publishStatus(types.StatusEvent{
		Event:      ev.Kind(),
		WidgetID:   ref.WidgetID,
		InstanceID: ref.InstanceID,
		Content:    ipc.ContentOf(ev).Clone(),
	})

	var err error
	switch e := ev.(type) {
	case ipc.Created:
		inst.content = e.Content.Clone()
		inst.status = types.StatusRunning
		err = r.Persist(ctx, inst)
		r.lifecycle(types.EventCreate, inst)
	case ipc.Terminated:
		inst.content = e.Content.Clone()
		inst.status = types.StatusTerminated
		inst.pid = 0
		err = r.Persist(ctx, inst)
	case ipc.Destroyed:
		inst.status = types.StatusDeleted
		inst.pid = 0
		r.lifecycle(types.EventDestroy, inst)
		err = r.Persist(ctx, inst)
	case ipc.Paused:
		r.lifecycle(types.EventPause, inst)
	case ipc.Resumed:
		inst.status = types.StatusRunning
		r.lifecycle(types.EventResume, inst)
	case ipc.Updated:
		inst.content = e.Content.Clone()
		err = r.Persist(ctx, inst)
	case ipc.Notified:
		r.logger.Debug("Widget notification",
			zap.String("event", e.Code.String()),
			zap.String("widget_id", ref.WidgetID),
			zap.String("instance_id", ref.InstanceID),
		)
	}
	return err
}

// Persist mirrors inst into the store. A deleted instance is removed from
// the store and the registry's own reference is released.
func (r *Router) Persist(ctx context.Context, inst *Instance) error {
	if inst.status == types.StatusDeleted {
		var err error
		if inst.stored {
			if err = r.store.Delete(ctx, inst); err != nil {
				r.metrics.RecordStoreFailure("delete")
				r.logger.Error("Failed to delete instance row",
					zap.String("instance_id", inst.id),
					zap.Error(err),
				)
			}
		}
		r.registry.Unref(inst)
		return err
	}

	if err := r.store.Upsert(ctx, r.viewerID, inst); err != nil {
		r.metrics.RecordStoreFailure("upsert")
		r.logger.Error("Failed to persist instance",
			zap.String("instance_id", inst.id),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *Router) lifecycle(kind types.EventKind, inst *Instance) {
	r.out.publishLifecycle(types.LifecycleEvent{
		Event:      kind,
		WidgetID:   inst.widgetID,
		InstanceID: inst.id,
		Timestamp:  r.now(),
	})
}
