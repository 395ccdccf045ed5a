/*
Package resilience provides the circuit breaker that guards outbound
dependency fetches.

A breaker is Closed while requests succeed, Open (failing fast with
ErrCircuitOpen) after ReadyToTrip reports too many failures, and Half-Open
once Timeout passes, letting MaxRequests probes through:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                        ^                    |
	                        +-----[failure]------+

Usage:

	breaker := resilience.New("deps", resilience.DependencySettings())
	body, err := resilience.Do(breaker, func() ([]byte, error) {
		return fetch(ctx, url)
	})

Breakers never retry. The broker's privileged operations do not go through
one at all; it is used only where a retry policy already exists.
*/
package resilience
