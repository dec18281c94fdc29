/*
Package runtime is hangar's thin typed façade over the Docker Engine API,
used for every container and volume operation the orchestrator,
blue-green updater, and reconciler need: pull, scan (via the external
grype binary), build, digest inspection, container/volume create and
teardown, log tailing, stats sampling, and the daemon event stream.

Adapter wraps a single *client.Client built from the standard Docker
environment variables. Every method translates Docker's own error shapes
(404-as-absent, authentication failures) into the project error codes
defined in pkg/apperr, so callers never inspect Docker error types
directly.

# Container creation

CreateProjectContainer applies hangar's fixed security and resource
profile — no-new-privileges, AppArmor, a PID limit, file descriptor and
process ulimits, a noexec tmpfs at /tmp, and Traefik routing labels keyed
by project name — then starts the container. A failure at any step rolls
back whatever was already created (the volume, then the container) in a
detached goroutine so the caller's error path isn't blocked on cleanup.
*/
package runtime
