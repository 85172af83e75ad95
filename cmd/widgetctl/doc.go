// Command widgetctl drives a running widgetd over its HTTP control surface.
//
//	widgetctl launch org.example.clock@analog 320 240
//	widgetctl list org.example.clock@analog
//	widgetctl emit org.example.clock@analog <instance_id> 0 '{"tz":"UTC"}'
package main
