// Package server assembles widgetd: the bus transport, the instance
// service, the gin control surface and the Prometheus endpoint.
//
// Run blocks until its context is cancelled. It reports readiness to
// systemd once the instance service has loaded its store, and leaves the
// bus before returning.
package server
