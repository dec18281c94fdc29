/*
Package log provides structured logging for the hangar control plane using
zerolog.

The log package wraps zerolog to give every component a JSON-structured (or
console, for local development) logger with a consistent set of context
fields: component, project, owner, container, request_id. All logs include
timestamps and can be filtered by severity at startup.

# Usage

Initializing the logger (once, from main):

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("orchestrator started")
	log.Error("tenant database provisioning failed")

Structured logging:

	log.Logger.Info().
		Str("project", "demo").
		Str("owner", "alice").
		Msg("deploy completed")

Context loggers:

	orchLog := log.WithComponent("orchestrator")
	orchLog.Info().Str("project", name).Msg("starting deploy")

	projLog := log.WithProject("demo")
	projLog.Warn().Msg("health check did not pass within 10 attempts")

# Design

Global Logger pattern: a single package-level zerolog.Logger, initialized
once via Init and read from everywhere without being threaded through every
call. Context loggers (WithComponent, WithProject, WithOwner, WithContainer,
WithRequestID) attach one field and return a derived zerolog.Logger — cheap,
immutable, safe to hold onto for the lifetime of a request or background
task.

Never log decrypted secret values (env vars, database passwords) — only
their keys/names.
*/
package log
