// Package server wires the gate into the public HTTP surface: the
// forward-auth endpoint and health probes.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"rategate/internal/auth"
	"rategate/internal/gate"
	"rategate/internal/health"
)

// Server builds the public request handler. It is stateless; all decision
// state lives in the gate and its stores.
type Server struct {
	gate     *gate.Gate
	verifier *auth.Verifier
	health   *health.Handler
	logger   *slog.Logger
}

// New creates a Server. verifier may be nil, in which case every request is
// treated as anonymous.
func New(g *gate.Gate, verifier *auth.Verifier, healthHandler *health.Handler, logger *slog.Logger) *Server {
	return &Server{
		gate:     g,
		verifier: verifier,
		health:   healthHandler,
		logger:   logger.With("component", "server"),
	}
}

// Handler returns the full routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/authorize", s.Authorize)
	mux.HandleFunc("/healthz", s.health.Health)
	mux.HandleFunc("/healthz/live", s.health.Live)
	mux.HandleFunc("/healthz/ready", s.health.Ready)
	return mux
}

// Authorize is the forward-auth endpoint. Reverse proxies (nginx
// auth_request, traefik forwardAuth) send a subrequest here carrying the
// original request's path, method, and client headers; 204 admits the
// request, 429 rejects it.
func (s *Server) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var principal *auth.Principal
	if s.verifier != nil {
		principal = s.verifier.FromAuthorization(r.Header.Get("Authorization"))
	}

	decision := s.gate.Decide(r.Context(), gate.Request{
		Path:       forwardedPath(r),
		Method:     forwardedMethod(r),
		Headers:    r.Header,
		RemoteAddr: r.RemoteAddr,
		Principal:  principal,
	})

	gate.ApplyHeaders(w, decision)

	if !decision.Allowed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(decision.Denial.StatusCode)
		if err := json.NewEncoder(w).Encode(decision.Denial); err != nil {
			s.logger.Error("failed to encode denial", "error", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// forwardedPath extracts the original request path. Traefik sends
// X-Forwarded-Uri, the nginx ingress sends X-Original-URI; a direct call
// falls back to the subrequest's own path.
func forwardedPath(r *http.Request) string {
	if uri := r.Header.Get("X-Forwarded-Uri"); uri != "" {
		return stripQuery(uri)
	}
	if uri := r.Header.Get("X-Original-URI"); uri != "" {
		return stripQuery(uri)
	}
	return r.URL.Path
}

func forwardedMethod(r *http.Request) string {
	if m := r.Header.Get("X-Forwarded-Method"); m != "" {
		return m
	}
	if m := r.Header.Get("X-Original-Method"); m != "" {
		return m
	}
	return r.Method
}

func stripQuery(uri string) string {
	for i := 0; i < len(uri); i++ {
		if uri[i] == '?' {
			return uri[:i]
		}
	}
	return uri
}
