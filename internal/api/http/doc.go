// Package http exposes the instance service over a JSON control surface.
//
// Routes:
//
//	GET    /health
//	GET    /v1/stats
//	GET    /v1/instances
//	POST   /v1/envelopes
//	GET    /v1/log-level
//	PUT    /v1/log-level
//	POST   /v1/widgets/:widget/launch
//	GET    /v1/widgets/:widget/instances[?limit=n]
//	POST   /v1/widgets/:widget/instances
//	GET    /v1/widgets/:widget/instances/:instance
//	DELETE /v1/widgets/:widget/instances/:instance
//	POST   /v1/widgets/:widget/instances/:instance/{terminate,resize,update,period}
//
// Commands that only reach the widget process answer 202; the registry
// changes once the process reports back.
package http
