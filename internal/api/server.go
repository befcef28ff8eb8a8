package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/idp/internal/api/handler"
	mw "github.com/edvin/idp/internal/api/middleware"
	"github.com/edvin/idp/internal/config"
	"github.com/edvin/idp/internal/core"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	signer   *core.Signer
	pool     *pgxpool.Pool
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, signer *core.Signer, services *core.Services, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		signer:   signer,
		pool:     pool,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// OAuth protocol surface. These endpoints authenticate their callers
	// by protocol means (client secrets, pending requests); only the
	// session-based approve shortcut takes a bearer token.
	oauth := handler.NewOAuth(s.services.Authorization, s.services.Token,
		s.services.Client, s.signer, s.cfg.SignInURL)
	s.router.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", oauth.Authorize)
		r.Post("/login", oauth.Login)
		r.Post("/consent", oauth.Consent)
		r.Get("/federated/google/callback", oauth.FederatedCallback)
		r.Post("/token", oauth.Token)
		r.Post("/introspect", oauth.Introspect)
		r.Post("/revoke", oauth.Revoke)
		r.Get("/jwks", oauth.JWKS)

		r.Group(func(r chi.Router) {
			r.Use(mw.BearerAuth(s.services.Token))
			r.Post("/approve", oauth.Approve)
		})
	})

	account := handler.NewAccount(s.services.Account)
	role := handler.NewRole(s.services.Role)
	client := handler.NewClient(s.services.Client, s.services.ClientSecret)

	// Public registration
	s.router.Post("/api/v1/accounts", account.Register)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.BearerAuth(s.services.Token))

		// Accounts
		r.Get("/accounts", account.List)
		r.Get("/accounts/{id}", account.Get)

		// Account roles: grants go through the service-level guardrails,
		// so any authenticated manager may call them.
		r.Get("/accounts/{id}/roles", role.List)
		r.Post("/accounts/{id}/roles", role.Add)
		r.Delete("/accounts/{id}/roles", role.Remove)

		// Administrative surface
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin(s.cfg.AdminClientID))

			r.Delete("/accounts/{id}", account.Delete)

			// Clients
			r.Get("/clients", client.List)
			r.Post("/clients", client.Create)
			r.Get("/clients/{clientID}", client.Get)
			r.Put("/clients/{clientID}", client.Update)
			r.Delete("/clients/{clientID}", client.Delete)

			// Client secrets
			r.Get("/clients/{clientID}/secrets", client.ListSecrets)
			r.Post("/clients/{clientID}/secrets", client.CreateSecret)
			r.Post("/secrets/{secretID}/revoke", client.RevokeSecret)
			r.Delete("/secrets/{secretID}", client.DeleteSecret)

			// Machine-client roles
			r.Get("/clients/{clientID}/roles", role.ListService)
			r.Post("/clients/{clientID}/roles", role.AddService)
			r.Delete("/clients/{clientID}/roles", role.RemoveService)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(checks)
}
