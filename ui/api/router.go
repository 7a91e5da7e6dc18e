package api

import (
	"net/http"
	"time"

	"github.com/youssefsiam38/convmem/ui/service"
)

// Config holds API router configuration.
type Config struct {
	// ReadOnly disables turns, session creation and deletion.
	ReadOnly bool

	// PageSize for pagination.
	PageSize int

	// Logger for structured logging.
	Logger Logger
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type router struct {
	svc    *service.Service
	config *Config
}

// NewRouter returns the JSON API over svc. A nil cfg means writable with
// the default page size.
func NewRouter(svc *service.Service, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{
			PageSize: service.DefaultPageLimit,
		}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = service.DefaultPageLimit
	}

	r := &router{
		svc:    svc,
		config: cfg,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /dashboard", r.handleDashboard)

	mux.HandleFunc("GET /sessions", r.handleListSessions)
	mux.HandleFunc("POST /sessions", r.writable(r.handleCreateSession))
	mux.HandleFunc("GET /sessions/{id}", r.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", r.writable(r.handleDeleteSession))
	mux.HandleFunc("GET /sessions/{id}/stats", r.handleGetSessionStats)
	mux.HandleFunc("GET /sessions/{id}/context", r.handleGetContextStatus)

	mux.HandleFunc("POST /sessions/{id}/turns", r.writable(r.handleTurn))

	mux.HandleFunc("GET /sessions/{id}/messages", r.handleListMessages)
	mux.HandleFunc("GET /sessions/{id}/summaries", r.handleListSummaries)
	mux.HandleFunc("GET /sessions/{id}/export", r.handleExport)

	return recoveryMiddleware(loggingMiddleware(jsonMiddleware(mux), cfg.Logger), cfg.Logger)
}

// writable rejects the request with 403 when the router is read-only.
func (rt *router) writable(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.config.ReadOnly {
			writeError(w, http.StatusForbidden, "read_only", "API is in read-only mode")
			return
		}
		next(w, r)
	}
}

// jsonMiddleware defaults the content type to JSON. Export overrides it.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one debug line per request, or a warning for
// server errors. Turns can take seconds, so the duration is included.
func loggingMiddleware(next http.Handler, logger Logger) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		args := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start)}
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("request failed", args...)
			return
		}
		logger.Debug("request served", args...)
	})
}

// recoveryMiddleware turns a handler panic into a 500 envelope.
func recoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if logger != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				}
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
