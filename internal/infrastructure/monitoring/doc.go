/*
Package monitoring provides metrics collection for widgetd.

# Overview

Prometheus metrics for the HTTP control surface, the instance registry,
lifecycle event handling, launcher commands and the instance store.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "create")
	// ... send command ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
