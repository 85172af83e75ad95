package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a widget instance
type Status int

const (
	StatusCreated Status = iota
	StatusRunning
	StatusTerminated
	StatusDeleted
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusRunning:
		return "running"
	case StatusTerminated:
		return "terminated"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status by name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a status name back into a Status
func ParseStatus(name string) (Status, error) {
	for _, s := range []Status{StatusCreated, StatusRunning, StatusTerminated, StatusDeleted} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown instance status %q", name)
}

// InstanceInfo is a point-in-time copy of an instance record
type InstanceInfo struct {
	ID        string    `json:"id"`
	WidgetID  string    `json:"widget_id"`
	PID       int       `json:"pid"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Period    float64   `json:"period"`
	Status    Status    `json:"status"`
	Stored    bool      `json:"stored"`
	Refs      int       `json:"refs"`
	Content   Content   `json:"content_info,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats contains instance registry statistics
type Stats struct {
	Widgets    int            `json:"widgets"`
	Instances  int            `json:"instances"`
	ByStatus   map[string]int `json:"by_status"`
	ViewerID   string         `json:"viewer_id"`
	QueueDepth int            `json:"queue_depth"`
}
