// Package server exposes a votesync Store over HTTP and websocket.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"votesync/services/sessiond/middleware"
	"votesync/store"
)

// Config wires a Server.
type Config struct {
	Store       *store.Store
	Logger      *slog.Logger
	Gatherer    prometheus.Gatherer
	Auth        *middleware.Authenticator
	RateLimiter *middleware.RateLimiter
}

// Server serves session snapshots, contract reads and write requests.
type Server struct {
	store    *store.Store
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	auth     *middleware.Authenticator
	limiter  *middleware.RateLimiter

	router http.Handler
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		store:    cfg.Store,
		logger:   logger.With(slog.String("component", "sessiond")),
		gatherer: gatherer,
		auth:     cfg.Auth,
		limiter:  cfg.RateLimiter,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(api chi.Router) {
		api.Get("/session", s.getSession)
		api.Get("/session/stream", s.streamSession)
		api.Get("/proposals", s.getProposals)
		api.Get("/winner", s.getWinner)
		api.Get("/voters/{address}", s.getVoter)
		api.Get("/networks/{id}", s.getNetwork)

		api.Group(func(writes chi.Router) {
			if s.limiter != nil {
				writes.Use(s.limiter.Middleware)
			}
			if s.auth != nil {
				writes.Use(s.auth.Middleware)
			}
			writes.Post("/wallet/connect", s.connectWallet)
			writes.Post("/wallet/disconnect", s.disconnectWallet)
			writes.Post("/phase", s.advancePhase)
			writes.Post("/voters", s.addVoter)
			writes.Post("/proposals", s.addProposal)
			writes.Post("/votes", s.vote)
			writes.Post("/tally", s.tally)
		})
	})

	return otelhttp.NewHandler(r, "sessiond")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	s.writeJSON(w, status, errorDTO{Error: messageFor(err)})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
