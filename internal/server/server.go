// Package server provides the HTTP handlers and routing for the MCP gateway.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"calendar-mcp/internal/discovery"
	"calendar-mcp/internal/dispatch"
	"calendar-mcp/internal/metrics"
	"calendar-mcp/internal/registry"
)

// Config contains HTTP-level settings.
type Config struct {
	APIKey         string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Server contains the configured router and the components it exposes.
type Server struct {
	cfg         Config
	router      *chi.Mux
	registry    *registry.Registry
	dispatcher  *dispatch.Dispatcher
	broadcaster *discovery.Broadcaster
	log         *zap.Logger
}

// New constructs a Server with middleware and routes configured.
func New(cfg Config, reg *registry.Registry, d *dispatch.Dispatcher, b *discovery.Broadcaster, log *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:         cfg,
		router:      chi.NewRouter(),
		registry:    reg,
		dispatcher:  d,
		broadcaster: b,
		log:         log,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.instrument)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// Streams are long-lived: no request timeout and no caller auth.
	s.router.Get("/mcp-events", b.ServeHTTP)

	s.router.Route("/mcp", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/tools", s.handleListTools)
		r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/message", s.handleMessage)
	})

	return s
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

// instrument logs each request and records its metrics under the matched route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		s.log.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
		)
	})
}

// auth accepts X-API-Key or a bearer token. It runs before the body is read.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if key == "" {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				key = strings.TrimSpace(token)
			}
		}
		if key == "" {
			s.writeError(w, dispatch.NewError(dispatch.KindUnauthorized, "", "missing API key", nil))
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
			s.writeError(w, dispatch.NewError(dispatch.KindForbidden, "", "invalid API key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Tools: s.registry.Len()})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, discovery.BuildFrame(s.registry, s.log))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg MessageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&msg); err != nil {
		s.writeError(w, dispatch.NewError(dispatch.KindMalformedRequest, "", "request body is not a valid tool call: "+err.Error(), err))
		return
	}
	req, ok := msg.request()
	if !ok {
		s.writeError(w, dispatch.NewError(dispatch.KindMalformedRequest, "", "toolCall is required", nil))
		return
	}

	resp, err := s.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{ToolResponse: resp})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var derr *dispatch.Error
	if !errors.As(err, &derr) {
		s.log.Error("unclassified dispatch failure", zap.Error(err))
		derr = dispatch.NewError(dispatch.KindHandler, "", "internal error", err)
	}
	writeJSON(w, derr.Kind.Status(), ErrorResponse{Error: derr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
