/*
Package metrics provides Prometheus metrics collection and exposition for the
hangar control plane, plus the health/readiness/liveness HTTP handlers used
by the load balancer and process supervisor.

These are internal operational metrics about the control plane itself —
request counts, deployment/update durations, reconciler cycle counts, event
broadcast lag and channel counts — never the tenant container CPU/memory
samples that flow out over the event plane's metrics events, which are
streamed live to subscribers and never persisted.

# Metric categories

  - API: request count and duration by method
  - Deployment: deploy-path count by outcome, duration, rollback count by stage
  - Update: blue-green update count by kind/outcome, duration by kind
  - Reconciler: cycle count and duration by worker
  - Event plane: events emitted by channel/type, lag detections, open channel gauges

# Usage

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DeploymentDuration)
	...
	metrics.DeploymentsTotal.WithLabelValues("completed").Inc()

Mount the registry and health endpoints from the HTTP router:

	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())

# Health

RegisterComponent/UpdateComponent feed a package-level health checker.
Readiness treats {store, runtime, tenantdb} as critical components — the
process is not ready to accept deploy requests until all three have
reported healthy at least once.
*/
package metrics
