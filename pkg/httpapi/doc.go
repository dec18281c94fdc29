// Package httpapi is hangar's orchestrator glue: it decodes HTTP requests
// into the orchestrator's request types, maps its responses and errors
// back onto the wire, and exposes the four SSE event streams.
// It depends on the deploy, storage, events, runtime, tenantdb,
// and security packages but contains no business logic of its own — every
// decision belongs to pkg/deploy, pkg/validate, or the store.
//
// Session authentication (the ticket validator and the bearer-token
// verification used for session cookies) lives outside this module;
// this package depends on it only through the
// Authenticator interface in auth.go, with a JWT-bearer implementation
// provided as the default wiring for cmd/hangar.
package httpapi
