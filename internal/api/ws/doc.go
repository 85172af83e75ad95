// Package ws streams simplified lifecycle events (create, destroy, pause,
// resume) to WebSocket clients.
//
// Each connection registers its own event listener and receives one JSON
// object per event. A slow client loses events rather than stalling the
// listener queue.
//
// Example Usage:
//
//	handler := ws.NewHandler(service, logger, metrics)
//	router.GET("/v1/events", handler.HandleConnection)
package ws
