// Command widgetd tracks the widget instances of one viewer.
//
// It loads the viewer's stored instances, listens for lifecycle envelopes
// on the bus and serves a JSON control surface:
//
//	widgetd -config /etc/widgetd.yaml
//	widgetd -viewer org.example.homescreen -bus loopback -port 8710
//
// SIGINT and SIGTERM leave the bus and close the store before exiting.
package main
