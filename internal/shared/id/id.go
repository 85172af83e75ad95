// Package id provides identifier handling for widget instances.
//
// Instance ids have the form "<uuid>:<widget_id>" so the owning widget can
// always be recovered from the id alone. Widget ids name a widget class
// inside an application package, written "<app_id>@<class>" or just
// "<app_id>" for single-class packages.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Separator joins the unique part and the widget id of an instance id
const Separator = ":"

// classSeparator splits the application id from the widget class
const classSeparator = "@"

// Generator creates instance ids
type Generator interface {
	NewInstanceID(widgetID string) string
}

// UUIDGenerator generates random (v4) instance ids
type UUIDGenerator struct{}

// NewInstanceID returns a fresh "<uuid>:<widget_id>" id
func (UUIDGenerator) NewInstanceID(widgetID string) string {
	return uuid.NewString() + Separator + widgetID
}

// Default is the generator used when none is injected
var Default Generator = UUIDGenerator{}

// NewInstanceID generates an instance id with the default generator
func NewInstanceID(widgetID string) string {
	return Default.NewInstanceID(widgetID)
}

// AppID returns the application that provides a widget class
func AppID(widgetID string) string {
	app, _, _ := strings.Cut(widgetID, classSeparator)
	return app
}
