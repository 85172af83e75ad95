package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the lifecycle code a widget process reports
type EventKind int

const (
	EventCreate EventKind = iota
	EventDestroy
	EventTerminate
	EventPause
	EventResume
	EventUpdate
	EventPeriodChanged
	EventSizeChanged
	EventExtraUpdated
	EventFault
	EventAppRestartRequest
)

var eventNames = [...]string{
	EventCreate:            "create",
	EventDestroy:           "destroy",
	EventTerminate:         "terminate",
	EventPause:             "pause",
	EventResume:            "resume",
	EventUpdate:            "update",
	EventPeriodChanged:     "period_changed",
	EventSizeChanged:       "size_changed",
	EventExtraUpdated:      "extra_updated",
	EventFault:             "fault",
	EventAppRestartRequest: "app_restart_request",
}

// Valid reports whether k is a known event code
func (k EventKind) Valid() bool {
	return k >= EventCreate && k <= EventAppRestartRequest
}

func (k EventKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return eventNames[k]
}

// MarshalJSON encodes the event kind by name
func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the name produced by MarshalJSON
func (k *EventKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range eventNames {
		if n == name {
			*k = EventKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event %q", name)
}

// LifecycleEvent is the simplified event republished to viewer listeners
type LifecycleEvent struct {
	Event      EventKind `json:"event"`
	WidgetID   string    `json:"widget_id"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusEvent carries every decoded event for a widget to its status listener
type StatusEvent struct {
	Event      EventKind `json:"event"`
	WidgetID   string    `json:"widget_id"`
	InstanceID string    `json:"instance_id"`
	Content    Content   `json:"content_info,omitempty"`
}
