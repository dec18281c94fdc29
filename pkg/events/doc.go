// Package events implements hangar's event fan-out plane: four channel
// classes (admin, all, per-project, per-creation) that stream deployment
// progress, container status, and telemetry to connected HTTP/SSE clients.
//
// Each channel is a bounded, non-blocking broadcast. Emission never waits
// on a slow consumer: when a subscriber's buffer is full, the event is
// dropped for that subscriber only, and the drop count is folded into a
// System(warning) event delivered as soon as buffer space frees up. Lost
// events are never retransmitted, and a lagging subscriber is never
// disconnected for it.
//
// Per-project and per-creation channels are created lazily on first
// subscription or emission and torn down by the reconciler's channel-GC
// worker once their subscriber count reaches zero.
package events
