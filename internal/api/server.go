// Package api mounts the HTTP surface: the JSON API on a goa muxer, plus the
// long-lived MJPEG and websocket routes that bypass request logging.
package api

import (
	"context"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"

	"crosswatch/internal/logging"
	"crosswatch/internal/middleware"
	"crosswatch/internal/services"
)

// Services bundles the service implementations the API exposes. Sources is
// required; the routes of a nil service are not mounted.
type Services struct {
	Health  *services.HealthImplementation
	Sources *services.SourceImplementation
	System  *services.SystemImplementation
	Auth    *services.AuthImplementation
	Events  *services.EventImplementation
	Config  *services.ConfigImplementation
}

// Streams holds the handlers mounted outside the goa muxer
type Streams struct {
	Feed      http.Handler
	Snapshot  http.Handler
	Telemetry http.Handler
}

// Server is the HTTP front of the service
type Server struct {
	svc       Services
	streams   Streams
	validator middleware.TokenValidator
	mux       goahttp.Muxer
	logger    logging.Logger
	mounts    []string
}

// New builds the server. validator guards mutating routes and may be nil.
func New(svc Services, streams Streams, validator middleware.TokenValidator, logger logging.Logger) *Server {
	s := &Server{
		svc:       svc,
		streams:   streams,
		validator: validator,
		mux:       goahttp.NewMuxer(),
		logger:    logger.Named("http"),
	}
	s.mount()
	return s
}

// Mounts lists the mounted "METHOD pattern" pairs in mount order
func (s *Server) Mounts() []string {
	return s.mounts
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	var api http.Handler = s.mux
	{
		api = s.accessLog(api)
		api = httpmdlwr.RequestID(httpmdlwr.UseXRequestIDHeaderOption(true))(api)
	}

	root := http.NewServeMux()
	if s.streams.Feed != nil {
		root.Handle("GET /api/sources/{id}/feed", s.streams.Feed)
	}
	if s.streams.Telemetry != nil {
		root.Handle("GET /ws/telemetry/{id}", s.streams.Telemetry)
	}
	root.Handle("/", api)
	return root
}

func (s *Server) handle(method, pattern string, h http.HandlerFunc) {
	s.mux.Handle(method, pattern, h)
	s.mounts = append(s.mounts, method+" "+pattern)
}

// protect wraps h with bearer-token auth when a validator is configured
func (s *Server) protect(h http.HandlerFunc) http.HandlerFunc {
	if s.validator == nil {
		return h
	}
	return middleware.AuthMiddleware(s.validator)(h).ServeHTTP
}

func (s *Server) mount() {
	if s.svc.Health != nil {
		s.handle(http.MethodGet, "/healthz", s.healthz)
		s.handle(http.MethodGet, "/readyz", s.readyz)
	}
	if s.svc.System != nil {
		s.handle(http.MethodGet, "/api/system", s.systemStatus)
	}

	if s.svc.Auth != nil {
		s.handle(http.MethodPost, "/api/login", s.login)
		s.handle(http.MethodGet, "/api/auth/status", s.protectOptional(s.authStatus))
	}

	s.handle(http.MethodGet, "/api/sources", s.listSources)
	s.handle(http.MethodPost, "/api/sources", s.protect(s.startSource))
	s.handle(http.MethodGet, "/api/sources/{id}", s.getSource)
	s.handle(http.MethodDelete, "/api/sources/{id}", s.protect(s.stopSource))
	s.handle(http.MethodPost, "/api/sources/{id}/reset", s.protect(s.resetSource))
	s.handle(http.MethodGet, "/api/sources/{id}/stats", s.sourceStats)
	s.handle(http.MethodGet, "/api/sources/{id}/violations", s.sourceViolations)
	s.handle(http.MethodGet, "/api/sources/{id}/faces", s.sourceFaces)
	if s.streams.Snapshot != nil {
		s.handle(http.MethodGet, "/api/sources/{id}/snapshot", s.snapshot)
	}

	if s.svc.Events != nil {
		s.handle(http.MethodGet, "/api/sessions", s.listSessions)
		s.handle(http.MethodGet, "/api/events/crossings", s.listCrossings)
		s.handle(http.MethodGet, "/api/events/alerts", s.listAlerts)
		s.handle(http.MethodGet, "/api/events/recognitions", s.listRecognitions)
	}

	if s.svc.Config != nil {
		s.handle(http.MethodGet, "/api/config/detection", s.getDetectionConfig)
		s.handle(http.MethodGet, "/api/config/notifications", s.protect(s.getNotifications))
		s.handle(http.MethodPatch, "/api/config/notifications", s.protect(s.updateNotifications))
		s.handle(http.MethodPost, "/api/config/notifications/test", s.protect(s.testNotification))
	}
}

// protectOptional attaches claims when a valid token is present but never
// rejects the request
func (s *Server) protectOptional(h http.HandlerFunc) http.HandlerFunc {
	if s.validator == nil {
		return h
	}
	guarded := middleware.AuthMiddleware(s.validator)(h)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			h(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	}
}

// accessLog logs one line per request, with the request ID
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := httpmdlwr.CaptureResponse(w)
		next.ServeHTTP(rw, r)

		status := rw.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{
			"id", requestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rw.ContentLength,
			"duration", time.Since(started),
			"remote", r.RemoteAddr,
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warnw("request", fields...)
			return
		}
		s.logger.Debugw("request", fields...)
	})
}

// respond encodes v, or err mapped to its status code
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	ctx := r.Context()
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	if encErr := encode(ctx, w, status, v); encErr != nil {
		s.logger.Errorw("encoding response", "id", requestID(ctx), "error", encErr)
	}
}

func (s *Server) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := statusOf(err)
	body.RequestID = requestID(ctx)
	if status == http.StatusInternalServerError {
		s.logger.Errorw("request failed", "id", body.RequestID, "error", err)
	}
	if encErr := encode(ctx, w, status, body); encErr != nil {
		s.logger.Errorw("encoding error response", "id", body.RequestID, "error", encErr)
	}
}
