package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/juiceqa/puppeteer-jquery/internal/fetch"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/resilience"
	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/page/sandbox"
	"github.com/juiceqa/puppeteer-jquery/internal/script"
)

var badRequest = []error{
	errBadRequest,
	script.ErrInvalidScript,
	jquery.ErrUnsupportedMethod,
	jquery.ErrValueAccessor,
	jquery.ErrUnserializable,
	jquery.ErrInvalidLocal,
}

// statusFor maps an error to the response status. Order matters: an
// ExecError caused by a sandbox timeout is a timeout, not a script error.
func statusFor(err error) int {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	var statusErr *fetch.StatusError
	var execErr *jquery.ExecError
	switch {
	case errors.Is(err, jquery.ErrWaitTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, sandbox.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sandbox.ErrExhausted), errors.Is(err, sandbox.ErrPoolClosed),
		errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr), errors.Is(err, fetch.ErrTooLarge):
		return http.StatusBadGateway
	case errors.As(err, &execErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
