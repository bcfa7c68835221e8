/*
Package monitoring provides metrics collection.

# Overview

Metrics live on a private Prometheus registry and cover HTTP requests,
chain executions, library injections and page operations (document
fetches and loads). Metrics implements jquery.Observer, so passing it to
a bridge is enough to record executions and injections.

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	bridge := jquery.NewBridge(page, jquery.Options{Observer: metrics})

	timer := monitoring.NewTimer(metrics, "fetch")
	doc, err := client.Get(ctx, url)
	timer.StopErr(err)
*/
package monitoring
