/*
Package monitoring provides Prometheus metrics collection for the service.

# Overview

This package tracks script executions, upstream bridge calls made on behalf
of scripts, and the HTTP surface itself.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record an execution
	metrics.RecordExecution(monitoring.OutcomeSuccess, duration)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
