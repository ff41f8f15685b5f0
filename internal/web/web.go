package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"venuecal/internal/calendar"
	"venuecal/internal/config"
	appLog "venuecal/internal/log"
	"venuecal/internal/materialize"
	"venuecal/internal/model"
	"venuecal/internal/preview"
	"venuecal/internal/sweep"
)

type EventStore interface {
	Create(ctx context.Context, event *model.Event) error
	Get(ctx context.Context, id uint) (*model.Event, error)
}

type ExceptionStore interface {
	List(ctx context.Context, eventID uint) ([]model.Exception, error)
	Upsert(ctx context.Context, eventID uint, date calendar.Date, reason string) error
	Delete(ctx context.Context, eventID uint, date calendar.Date) error
}

type Previewer interface {
	Preview(ctx context.Context, req preview.Request) (preview.Summary, error)
	Occurrences(ctx context.Context, eventID uint, horizon *preview.Horizon) (preview.Summary, error)
}

type Materializer interface {
	ConvertToReal(ctx context.Context, req materialize.ConvertRequest) (uint, error)
	RestoreToVirtual(ctx context.Context, realEventID uint) error
}

// OrphanReporter runs the orphan sweep on demand and exposes its latest report.
type OrphanReporter interface {
	RunOnce(ctx context.Context) (sweep.Report, error)
	Last() sweep.Report
}

// Deps are the collaborators the HTTP layer dispatches to. Orphans may be nil.
type Deps struct {
	Events      EventStore
	Exceptions  ExceptionStore
	Preview     Previewer
	Materialize Materializer
	Orphans     OrphanReporter
}

// Server provides the HTTP API over the recurrence core.
type Server struct {
	cfg    *config.Config
	deps   Deps
	loc    *time.Location
	router chi.Router
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		loc:  cfg.Location(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler for this server.
func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(observe)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if n := s.cfg.RateLimit.RequestsPerMinute; n > 0 {
			r.Use(rateLimit(n, time.Minute))
		}

		r.Post("/preview", s.handlePreview)
		r.Post("/materialize", s.handleMaterialize)
		r.Post("/restore", s.handleRestore)
		r.Get("/orphans", s.handleOrphans)

		r.Post("/events", s.handleCreateEvent)
		r.Route("/events/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetEvent)
			r.Get("/occurrences", s.handleOccurrences)
			r.Get("/feed.ics", s.handleFeed)
			r.Get("/exceptions", s.handleListExceptions)
			r.Put("/exceptions/{date}", s.handlePutException)
			r.Delete("/exceptions/{date}", s.handleDeleteException)
		})
	})
	return r
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="venuecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// defaultHorizon is applied when an open-ended rule is expanded without
// an explicit horizon.
func (s *Server) defaultHorizon() *preview.Horizon {
	h := s.cfg.Preview.DefaultHorizon
	return &preview.Horizon{Mode: preview.HorizonMode(h.Mode), Value: h.Value}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errResp{Error: msg, Code: code})
}
