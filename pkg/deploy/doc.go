// Package deploy implements hangar's two mutating project operations: the
// deploy-path state machine that creates a brand new project (pull-or-build,
// health-wait, persist, provision) and the blue-green updater that swaps a
// running project's container for a new one without downtime.
//
// Both operations share the same collaborators (runtime adapter, tenant-DB
// provisioner, secrets manager, source fetcher, event hub, store) and the
// same stage-emission discipline: every side-effecting step is wrapped in a
// withStage call that emits a "before" event, runs the step, and on failure
// synchronously emits a Failed event carrying the stage that was in flight
// before the error is returned to the caller.
package deploy
