// Package client is a resty based client for the widgetd control surface.
package client
