// Package server exposes the dashboard over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/openvaults/vaultdash/internal/formstate"
	"github.com/openvaults/vaultdash/internal/integrations"
	"github.com/openvaults/vaultdash/internal/vault"
)

const (
	requestTimeout  = 30 * time.Second
	rateLimit       = 60
	rateLimitWindow = time.Minute
	maxBodyBytes    = 1 << 20
)

// Server routes dashboard requests to the vault service, form-state manager
// and integrations registry.
type Server struct {
	vault        *vault.Service
	forms        *formstate.Manager
	integrations *integrations.Registry
	metrics      *Metrics
	logger       *zap.Logger

	httpServer *http.Server
}

// New builds the server and its router.
func New(addr string, svc *vault.Service, forms *formstate.Manager, reg *integrations.Registry, metrics *Metrics, logger *zap.Logger) *Server {
	s := &Server{
		vault:        svc,
		forms:        forms,
		integrations: reg,
		metrics:      metrics,
		logger:       logger.Named("server"),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(httprate.LimitByIP(rateLimit, rateLimitWindow))
	r.Use(s.logRequests)

	r.Get("/healthz", s.metrics.instrument("healthz", s.handleHealth))
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/holdings", s.metrics.instrument("holdings", s.handleHoldings))
		r.Get("/assets", s.metrics.instrument("assets", s.handleAssets))
		r.Get("/quote", s.metrics.instrument("quote", s.handleQuote))
		r.Post("/swap", s.metrics.instrument("swap", s.handleSwap))
		r.Post("/deposit", s.metrics.instrument("deposit", s.handleDeposit))
		r.Post("/withdraw", s.metrics.instrument("withdraw", s.handleWithdraw))

		r.Get("/forms/{name}", s.metrics.instrument("forms_get", s.handleFormLoad))
		r.Put("/forms/{name}", s.metrics.instrument("forms_put", s.handleFormSave))
		r.Delete("/forms/{name}", s.metrics.instrument("forms_delete", s.handleFormReset))

		r.Get("/integrations", s.metrics.instrument("integrations", s.handleIntegrations))
		r.Post("/integrations/{key}", s.metrics.instrument("integrations_toggle", s.handleIntegrationToggle))
	})

	return r
}

// Start runs the listener until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps user errors to 400 with the user-facing message and
// everything else to 500 with a generic body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ue, ok := vault.AsUserError(err); ok {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: ue.Message})
		return
	}
	s.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
