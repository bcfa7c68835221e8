// Package fetch retrieves remote documents: pages to load into a sandbox
// and library builds configured by URL.
//
// Built on go-resty/resty with a retryablehttp transport, an x/time/rate
// limiter and the resilience circuit breaker. Bodies are decoded to UTF-8
// using the declared charset, falling back to chardet detection.
package fetch
