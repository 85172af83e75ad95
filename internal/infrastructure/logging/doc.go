// Package logging builds the daemon's zap logger.
//
// Production output is JSON on stderr so journald can index the fields;
// development output is colored console text. The level is atomic and can
// be changed while the daemon runs.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "debug"})
//	logger.Component("router").Info("Lifecycle event", zap.String("event", "create"))
package logging
