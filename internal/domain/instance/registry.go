package instance

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/widgetd/internal/shared/id"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// maxIDAttempts bounds regeneration when a generator returns a taken id
const maxIDAttempts = 8

// Registry is the in-memory map of widget id -> WidgetApp -> instances.
// It does no locking of its own; the Service serialises access.
type Registry struct {
	viewerID string
	apps     map[string]*WidgetApp
	order    []string
	byID     map[string]*Instance
	ids      id.Generator
}

// NewRegistry creates an empty registry for viewerID
func NewRegistry(viewerID string, ids id.Generator) *Registry {
	if ids == nil {
		ids = id.Default
	}
	return &Registry{
		viewerID: viewerID,
		apps:     make(map[string]*WidgetApp),
		byID:     make(map[string]*Instance),
		ids:      ids,
	}
}

// Create allocates a new instance of widgetID in the created state with no
// external references.
func (r *Registry) Create(widgetID string, now time.Time) (*Instance, error) {
	if widgetID == "" {
		return nil, fmt.Errorf("%w: empty widget id", ErrInvalidArgument)
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		instanceID := r.ids.NewInstanceID(widgetID)
		if _, taken := r.byID[instanceID]; taken {
			continue
		}
		inst := newInstance(instanceID, widgetID, now)
		r.attach(inst)
		return inst, nil
	}
	return nil, fmt.Errorf("%w: could not allocate a unique id for %s", ErrAlreadyExists, widgetID)
}

// Add registers an instance with a known id, as read back from the store
func (r *Registry) Add(widgetID, instanceID string, content types.Content, now time.Time) (*Instance, error) {
	if widgetID == "" || instanceID == "" {
		return nil, fmt.Errorf("%w: empty widget or instance id", ErrInvalidArgument)
	}
	if _, taken := r.byID[instanceID]; taken {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, instanceID)
	}
	inst := newInstance(instanceID, widgetID, now)
	inst.content = content
	r.attach(inst)
	return inst, nil
}

func (r *Registry) attach(inst *Instance) {
	app, ok := r.apps[inst.widgetID]
	if !ok {
		app = &WidgetApp{WidgetID: inst.widgetID, ViewerID: r.viewerID}
		r.apps[inst.widgetID] = app
		r.order = append(r.order, inst.widgetID)
	}
	app.instances = append(app.instances, inst)
	r.byID[inst.id] = inst
}

// Find returns the instance or nil
func (r *Registry) Find(widgetID, instanceID string) *Instance {
	app, ok := r.apps[widgetID]
	if !ok {
		return nil
	}
	for _, inst := range app.instances {
		if inst.id == instanceID {
			return inst
		}
	}
	return nil
}

// App returns the WidgetApp entry for widgetID or nil
func (r *Registry) App(widgetID string) *WidgetApp {
	return r.apps[widgetID]
}

// Remove detaches inst, dropping its WidgetApp when it was the last one.
// An instance this registry does not own is ignored, even when another
// instance with the same id is registered.
func (r *Registry) Remove(inst *Instance) {
	if r.byID[inst.id] != inst {
		return
	}
	delete(r.byID, inst.id)
	inst.content = nil

	app := r.apps[inst.widgetID]
	for i, cur := range app.instances {
		if cur == inst {
			app.instances = append(app.instances[:i], app.instances[i+1:]...)
			break
		}
	}
	if len(app.instances) > 0 {
		return
	}
	delete(r.apps, inst.widgetID)
	for i, w := range r.order {
		if w == inst.widgetID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Ref takes a reference on inst
func (r *Registry) Ref(inst *Instance) {
	inst.ref++
}

// Unref drops a reference. Once the count goes negative the instance is
// removed and Unref reports true.
func (r *Registry) Unref(inst *Instance) bool {
	inst.ref--
	if inst.ref < 0 {
		r.Remove(inst)
		return true
	}
	return false
}

// Foreach visits the instances of widgetID in insertion order until fn
// returns false. It reports whether every instance was visited.
func (r *Registry) Foreach(widgetID string, fn func(*Instance) bool) bool {
	app, ok := r.apps[widgetID]
	if !ok {
		return true
	}
	visit := append([]*Instance(nil), app.instances...)
	for _, inst := range visit {
		if !fn(inst) {
			return false
		}
	}
	return true
}

// All returns every instance, grouped by widget in first-seen order
func (r *Registry) All() []*Instance {
	out := make([]*Instance, 0, len(r.byID))
	for _, widgetID := range r.order {
		out = append(out, r.apps[widgetID].instances...)
	}
	return out
}

// Count returns the number of instances of widgetID
func (r *Registry) Count(widgetID string) int {
	if app, ok := r.apps[widgetID]; ok {
		return len(app.instances)
	}
	return 0
}

// Len returns the number of instances across all widgets
func (r *Registry) Len() int {
	return len(r.byID)
}

// Widgets returns the number of WidgetApp entries
func (r *Registry) Widgets() int {
	return len(r.apps)
}

// CountByStatus tallies instances per status name
func (r *Registry) CountByStatus() map[string]int {
	out := map[string]int{
		types.StatusCreated.String():    0,
		types.StatusRunning.String():    0,
		types.StatusTerminated.String(): 0,
		types.StatusDeleted.String():    0,
	}
	for _, inst := range r.byID {
		out[inst.status.String()]++
	}
	return out
}
