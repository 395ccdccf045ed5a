/*
Package monitoring provides Prometheus metrics for scriptgate.

# Overview

Each Metrics owns a private registry holding HTTP, script, broker,
dependency and WebSocket metrics, plus the Go and process collectors.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "GM_xmlhttpRequest")
	// ... operation runs to its terminal event ...
	timer.Stop("completed")
*/
package monitoring
