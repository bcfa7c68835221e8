/*
Package resilience provides the circuit breaker used for outbound fetches.

A breaker trips after repeated failures of the guarded dependency and
rejects further calls with ErrCircuitOpen until Timeout elapses. It then
lets MaxRequests trial calls through (half-open) and closes again once
they all succeed.

	breaker := resilience.New("fetch", resilience.Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	err := breaker.Do(ctx, func(ctx context.Context) error {
		return fetchPage(ctx, url)
	})

Context cancellation by the caller is not held against the dependency.

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
