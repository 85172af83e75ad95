package ipc

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

// Envelope keys shared with widget processes
const (
	KeyWidgetID    = "__WIDGET_ID__"
	KeyInstanceID  = "__WIDGET_INSTANCE_ID__"
	KeyStatus      = "__WIDGET_STATUS__"
	KeyContentInfo = "__WIDGET_CONTENT_INFO__"
)

var (
	ErrMalformedEnvelope = errors.New("malformed lifecycle envelope")
	ErrUnknownEvent      = errors.New("unknown lifecycle event")
)

// Ref names the instance an event is about
type Ref struct {
	WidgetID   string
	InstanceID string
}

// Instance returns the referenced instance
func (r Ref) Instance() Ref { return r }

// Event is a decoded lifecycle envelope
type Event interface {
	Instance() Ref
	Kind() types.EventKind
}

// Created reports that the widget process created its instance
type Created struct {
	Ref
	Content types.Content
}

// Destroyed reports that the instance is gone for good
type Destroyed struct{ Ref }

// Terminated reports that the process stopped but the instance may come back
type Terminated struct {
	Ref
	Content types.Content
}

// Paused reports that the instance went invisible
type Paused struct{ Ref }

// Resumed reports that the instance is visible again
type Resumed struct{ Ref }

// Updated carries fresh content from the instance
type Updated struct {
	Ref
	Content types.Content
}

// Notified covers the informational codes that carry no state change
// (period/size/extra changes, faults and restart requests).
type Notified struct {
	Ref
	Code    types.EventKind
	Content types.Content
}

func (Created) Kind() types.EventKind    { return types.EventCreate }
func (Destroyed) Kind() types.EventKind  { return types.EventDestroy }
func (Terminated) Kind() types.EventKind { return types.EventTerminate }
func (Paused) Kind() types.EventKind     { return types.EventPause }
func (Resumed) Kind() types.EventKind    { return types.EventResume }
func (Updated) Kind() types.EventKind    { return types.EventUpdate }
func (n Notified) Kind() types.EventKind { return n.Code }

// Decode validates an envelope and converts it into a typed event.
func Decode(env types.Bundle) (Event, error) {
	ref := Ref{WidgetID: env[KeyWidgetID], InstanceID: env[KeyInstanceID]}
	if ref.WidgetID == "" {
		return nil, fmt.Errorf("%w: missing widget id", ErrMalformedEnvelope)
	}
	if ref.InstanceID == "" {
		return nil, fmt.Errorf("%w: missing instance id", ErrMalformedEnvelope)
	}
	rawStatus, ok := env[KeyStatus]
	if !ok {
		return nil, fmt.Errorf("%w: missing status", ErrMalformedEnvelope)
	}
	code, err := strconv.Atoi(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: status %q: %v", ErrMalformedEnvelope, rawStatus, err)
	}
	kind := types.EventKind(code)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: code %d", ErrUnknownEvent, code)
	}
	switch kind {
	case types.EventDestroy:
		return Destroyed{Ref: ref}, nil
	case types.EventPause:
		return Paused{Ref: ref}, nil
	case types.EventResume:
		return Resumed{Ref: ref}, nil
	}

	// Only the remaining kinds carry content
	content, err := types.DecodeContent(env[KeyContentInfo])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	switch kind {
	case types.EventCreate:
		return Created{Ref: ref, Content: content}, nil
	case types.EventTerminate:
		return Terminated{Ref: ref, Content: content}, nil
	case types.EventUpdate:
		return Updated{Ref: ref, Content: content}, nil
	default:
		return Notified{Ref: ref, Code: kind, Content: content}, nil
	}
}

// Encode builds the wire envelope for an event
func Encode(ev Event) (types.Bundle, error) {
	ref := ev.Instance()
	env := types.Bundle{
		KeyWidgetID:   ref.WidgetID,
		KeyInstanceID: ref.InstanceID,
		KeyStatus:     strconv.Itoa(int(ev.Kind())),
	}
	content := ContentOf(ev)
	if content != nil {
		raw, err := content.Encode()
		if err != nil {
			return nil, err
		}
		env[KeyContentInfo] = raw
	}
	return env, nil
}

// ContentOf returns the content an event carries, if any
func ContentOf(ev Event) types.Content {
	switch e := ev.(type) {
	case Created:
		return e.Content
	case Terminated:
		return e.Content
	case Updated:
		return e.Content
	case Notified:
		return e.Content
	}
	return nil
}
