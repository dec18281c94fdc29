/*
Package health implements the deploy path's health-wait step: polling a
freshly created container's running state until it comes up or the attempt
budget is exhausted.

hangar performs exactly one kind of health check — "is the container
running" — via the Inspector interface, which the runtime adapter
satisfies. There is no HTTP or TCP endpoint probing; readiness is judged
purely from the container runtime's own state.

# Usage

	err := health.WaitRunning(ctx, runtimeAdapter, containerName, 10, time.Second)
	if err != nil {
		// roll back: remove the container, its volume, and the built/pulled image
	}

WaitRunning polls up to attempts times at the given interval and returns
on the first success; it returns an error once the budget is exhausted,
signaling the caller to roll back.
*/
package health
