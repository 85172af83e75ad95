package instance

import (
	"time"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// Instance is one widget occurrence. All fields are guarded by the owning
// Service's lock.
type Instance struct {
	id        string
	widgetID  string
	pid       int
	width     int
	height    int
	period    float64
	content   types.Content
	status    types.Status
	stored    bool
	ref       int
	createdAt time.Time

	// launches in flight; the reaper skips instances with pending > 0
	pending int
}

// WidgetApp groups the instances of one widget class for a viewer
type WidgetApp struct {
	WidgetID  string
	ViewerID  string
	instances []*Instance
}

func newInstance(id, widgetID string, now time.Time) *Instance {
	return &Instance{
		id:        id,
		widgetID:  widgetID,
		status:    types.StatusCreated,
		createdAt: now,
	}
}

// ID returns the instance id
func (i *Instance) ID() string { return i.id }

// WidgetID returns the owning widget id
func (i *Instance) WidgetID() string { return i.widgetID }

func (i *Instance) info() types.InstanceInfo {
	return types.InstanceInfo{
		ID:        i.id,
		WidgetID:  i.widgetID,
		PID:       i.pid,
		Width:     i.width,
		Height:    i.height,
		Period:    i.period,
		Status:    i.status,
		Stored:    i.stored,
		Refs:      i.ref,
		Content:   i.content.Clone(),
		CreatedAt: i.createdAt,
	}
}

// Handle is a counted reference to an instance handed out by GetInstance.
// Every handle must be released exactly once with Service.Unref.
type Handle struct {
	svc      *Service
	inst     *Instance
	released bool
}

// ID returns the instance id
func (h *Handle) ID() string { return h.inst.id }

// WidgetID returns the owning widget id
func (h *Handle) WidgetID() string { return h.inst.widgetID }

// Info returns a copy of the instance state
func (h *Handle) Info() (types.InstanceInfo, error) {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	if h.released {
		return types.InstanceInfo{}, ErrReleased
	}
	return h.inst.info(), nil
}

// Content returns a copy of the last reported content
func (h *Handle) Content() (types.Content, error) {
	info, err := h.Info()
	if err != nil {
		return nil, err
	}
	return info.Content, nil
}
