/*
Package monitoring provides Prometheus metrics collection.

# Overview

Tracks HTTP traffic on the dispatch surface plus the manager's own domain
signals: lifecycle actions by app/action/outcome, action durations, lock
contention rejections, liveness probe results, log reads, and stream
connections.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record domain metrics
	metrics.RecordAction("demo", "start", "success", d)
	metrics.RecordStatus("demo", true)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
