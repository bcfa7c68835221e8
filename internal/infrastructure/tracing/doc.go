/*
Package tracing provides lightweight request tracing.

# Overview

Every HTTP request gets a span; the query handlers open child spans for
document loads and chain executions. Finished spans are handed to a
buffered collector that writes them to the structured log.

# Usage

	tracer := tracing.New("pjq", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Trace(ctx, "exec", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("selector", selector)
		return run(ctx)
	})

# Trace Format

Trace context travels in two HTTP headers:
- X-Trace-ID: Unique identifier for entire request flow
- X-Span-ID: Identifier for current operation
*/
package tracing
