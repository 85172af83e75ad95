// Package config provides layered configuration for widgetd.
//
// Values start from Default, are overlaid by an optional YAML file and
// finally by environment variables prefixed with WIDGETD.
//
// Configuration Sections:
//   - Server: HTTP control surface (host, port, enabled)
//   - Viewer: viewer id whose instances are tracked
//   - Store: instance database path
//   - IPC: bus kind (session, system, loopback) and launcher address
//   - Instance: reaper ttl/interval and listener queue size
//   - Logging: log level and output format
//   - RateLimit: per-IP or global rate limiting
//
// Example Usage:
//
//	cfg, err := config.Load("/etc/widgetd.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Addr())
//
// Environment Variables:
//   - WIDGETD_SERVER_PORT, WIDGETD_SERVER_HOST, WIDGETD_VIEWER_ID
//   - WIDGETD_STORE_PATH, WIDGETD_IPC_BUS, WIDGETD_IPC_LAUNCH_TIMEOUT
//   - WIDGETD_INSTANCE_REAP_TTL, WIDGETD_LOGGING_LEVEL, WIDGETD_LOGGING_DEVELOPMENT
//   - WIDGETD_RATE_LIMIT_RPS, WIDGETD_RATE_LIMIT_BURST, WIDGETD_RATE_LIMIT_ENABLED,
//     WIDGETD_RATE_LIMIT_GLOBAL
package config
