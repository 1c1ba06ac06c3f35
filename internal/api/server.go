// Package api implements the HTTP surface of the agent: tool discovery
// and invocation under /v1, plus health and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netpilot-labs/unifi-agent/internal/buildinfo"
	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/tools"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// maxArgsBytes bounds the tool argument payload. Tool arguments are
// small JSON objects; anything larger is a caller bug.
const maxArgsBytes = 1 << 20

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	registry *tools.Registry
	session  *unifi.Session
	perms    *permissions.Checker
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates the API server. It does not listen until
// [Server.Start].
func NewServer(address string, port int, registry *tools.Registry, session *unifi.Session, perms *permissions.Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		registry: registry,
		session:  session,
		perms:    perms,
		logger:   logger,
	}
}

// Handler returns the fully routed handler. Split out from Start so
// tests can serve it without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/tools", s.handleToolList)
	mux.HandleFunc("POST /v1/tools/{name}", s.handleToolCall)
	mux.HandleFunc("GET /v1/permissions", s.handlePermissions)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or [Server.Shutdown] is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "unifi-agent",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// handleHealth reports agent liveness and controller reachability. An
// unreachable controller degrades the status but keeps the endpoint at
// 200: the agent itself is alive, and orchestrators should not restart
// it for a controller outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reachable := s.session.EnsureConnected(r.Context())

	status := "ok"
	if !reachable {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":               status,
		"controller_reachable": reachable,
		"site":                 s.session.Site(),
		"cache_entries":        s.session.Cache().Len(),
		"uptime":               buildinfo.Uptime().Truncate(time.Second).String(),
	}, s.logger)
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"count": len(list),
		"tools": list,
	}, s.logger)
}

// handleToolCall executes one tool. The request body is the tool's
// argument object; an empty body means no arguments. Tool-level
// failures ride inside a 200 response with success:false — only an
// unknown tool or an unreadable body maps to an HTTP error.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxArgsBytes))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	result, err := s.registry.Execute(r.Context(), name, string(body))
	if err != nil {
		var unavailable *tools.ErrToolUnavailable
		if errors.As(err, &unavailable) {
			s.errorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("tool execution failed", "tool", name, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "tool execution failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"policy": s.perms.Describe(),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
