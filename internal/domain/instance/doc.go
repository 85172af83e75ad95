// Package instance tracks the widget instances owned by one viewer.
//
// Components:
//   - Store: SQLite persistence of instance rows, scoped by viewer
//   - Registry: widget id -> WidgetApp -> instances, with reference counts
//   - Router: applies decoded lifecycle events to the registry and store
//   - Sender: builds launcher commands (create, terminate, destroy, ...)
//   - Dispatcher: single goroutine that delivers republished events
//   - Service: the public API tying the above together (Init/Fini)
//
// Lifecycle:
//
//	created --(create/resume)--> running --(terminate)--> terminated
//	   any --(destroy)--> deleted --(store delete, unref)--> freed
//
// Nothing leaves the deleted state. Instances that never get past created
// after a failed launch are reaped once they exceed the configured TTL.
//
// Example Usage:
//
//	svc := instance.NewService(launcher, bus, "/var/lib/widgetd/instance.db", logger)
//	if err := svc.Init(ctx, "org.example.homescreen"); err != nil { ... }
//	defer svc.Fini()
//
//	res, err := svc.Launch(ctx, instance.LaunchRequest{WidgetID: "org.example.clock", Width: 360, Height: 360})
//	h, err := svc.GetInstance("org.example.clock", res.InstanceID)
//	defer svc.Unref(h)
package instance
