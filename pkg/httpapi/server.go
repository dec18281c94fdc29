package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cuemby/hangar/pkg/deploy"
	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/log"
	"github.com/cuemby/hangar/pkg/metrics"
	"github.com/cuemby/hangar/pkg/runtime"
	"github.com/cuemby/hangar/pkg/security"
	"github.com/cuemby/hangar/pkg/storage"
)

// Config carries the request-timeout tiers and the domain suffix used
// to shape project responses.
type Config struct {
	TimeoutNormal time.Duration
	TimeoutLong   time.Duration
	DomainSuffix  string
}

// Server wires the orchestrator, store, event hub, runtime adapter, and
// secrets manager into an HTTP router. It holds no state of its own
// beyond its collaborators.
type Server struct {
	store   storage.Store
	orch    *deploy.Orchestrator
	hub     *events.Hub
	runtime *runtime.Adapter
	secrets *security.SecretsManager
	auth    Authenticator
	cfg     Config
	logger  zerolog.Logger
}

// New builds a Server from its collaborators.
func New(
	store storage.Store,
	orch *deploy.Orchestrator,
	hub *events.Hub,
	rt *runtime.Adapter,
	secrets *security.SecretsManager,
	auth Authenticator,
	cfg Config,
) *Server {
	return &Server{
		store:   store,
		orch:    orch,
		hub:     hub,
		runtime: rt,
		secrets: secrets,
		auth:    auth,
		cfg:     cfg,
		logger:  log.WithComponent("httpapi"),
	}
}

// Router builds the complete chi router: ambient ops endpoints, the
// authenticated project/database/participant surface, and the SSE
// streams, each route group wrapped in its timeout tier.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverPanic)
	r.Use(withRequestID)

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	normal := withTimeout(s.cfg.TimeoutNormal)
	long := withTimeout(s.cfg.TimeoutLong)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/projects", func(r chi.Router) {
			r.With(normal).Get("/", s.handleListProjects)
			r.With(long).Post("/", s.handleDeploy)

			r.Route("/{projectID}", func(r chi.Router) {
				r.With(normal).Get("/", s.handleGetProject)
				r.With(long).Delete("/", s.handlePurge)

				r.With(long).Post("/image", s.handleUpdateImage)
				r.With(long).Post("/env", s.handleUpdateEnv)
				r.With(long).Post("/rebuild", s.handleRebuild)

				r.With(normal).Post("/participants", s.handleAddParticipant)
				r.With(normal).Delete("/participants/{participantID}", s.handleRemoveParticipant)

				r.With(long).Post("/database", s.handleProvisionDatabase)
				r.With(long).Delete("/database", s.handleDeprovisionDatabase)

				r.With(normal).Get("/logs", s.handleLogs)
				r.Get("/stream", s.handleProjectStream)
			})
		})

		r.Get("/creations/stream", s.handleCreationStream)
		r.Get("/stream", s.handleAllStream)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/stream", s.handleAdminStream)
		})
	})

	return r
}
