// Package reconciler runs hangar's background workers: a container-runtime
// event listener that turns Docker lifecycle events into container-status
// events on the event plane, a periodic metrics collector that samples
// resource usage only for projects with live subscribers, and a
// channel-GC worker that tears down idle per-project and per-creation
// event channels.
package reconciler
