package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/lazypower/atlas/internal/api"
	"github.com/lazypower/atlas/internal/engine"
	"github.com/lazypower/atlas/internal/scheduler"
	"github.com/lazypower/atlas/internal/store"
	"github.com/lazypower/atlas/internal/transfer"
)

// Options tunes the HTTP layer.
type Options struct {
	// RateLimit is the sustained number of mutating requests per second
	// allowed per client. Zero disables limiting.
	RateLimit float64
	// RateBurst is the number of mutating requests a client may burst.
	RateBurst int
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{RateLimit: 10, RateBurst: 20}
}

// Server is the atlas HTTP API server.
type Server struct {
	eng     *engine.Engine
	db      *store.DB
	log     *slog.Logger
	router  chi.Router
	limiter *rateLimiter
	version string
	started time.Time
}

// New creates a new Server around the engine.
func New(eng *engine.Engine, version string, opts Options) *Server {
	s := &Server{
		eng:     eng,
		db:      eng.DB,
		log:     eng.Logger,
		version: version,
		started: time.Now(),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = newRateLimiter(rate.Limit(opts.RateLimit), burst)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/dashboard", s.handleDashboard)

		r.Get("/problems", s.handleListProblems)
		r.Get("/problems/{id}", s.handleGetProblem)
		r.Get("/problems/{id}/attempts", s.handleListProblemAttempts)

		r.Get("/attempts", s.handleListAttempts)
		r.Get("/attempts/{id}", s.handleGetAttempt)
		r.Get("/attempts/{id}/mistakes", s.handleListAttemptMistakes)

		r.Get("/mistakes", s.handleListMistakes)
		r.Get("/mistake-types", s.handleListMistakeTypes)

		r.Get("/reviews/queue", s.handleReviewQueue)
		r.Get("/reviews/{id}", s.handleGetReview)
		r.Get("/reviews/{id}/history", s.handleReviewHistory)

		r.Get("/export", s.handleExport)

		// Mutating routes share the per-client limiter.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)

			r.Post("/problems", s.handleCreateProblem)
			r.Put("/problems/{id}", s.handleUpdateProblem)
			r.Delete("/problems/{id}", s.handleDeleteProblem)
			r.Post("/problems/{id}/attempts", s.handleStartAttempt)
			r.Post("/attempts/{id}/finish", s.handleFinishAttempt)
			r.Post("/attempts/{id}/mistakes", s.handleRecordMistake)
			r.Post("/reviews/{id}/grade", s.handleGradeReview)
			r.Delete("/reviews/{id}", s.handleDeleteReview)
			r.Post("/import", s.handleImport)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}
	schema, err := s.db.SchemaVersion()
	if err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, api.Health{
		Status:        "ok",
		Version:       s.version,
		Uptime:        time.Since(s.started).Seconds(),
		DB:            dbOK,
		DBPath:        s.db.Path,
		SchemaVersion: schema,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduler.ErrInvalidRating):
		writeErrorMessage(w, http.StatusBadRequest, "invalid rating")
	case errors.Is(err, engine.ErrValidation), errors.Is(err, transfer.ErrInvalidDocument),
		errors.Is(err, scheduler.ErrDateOutOfRange):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "not found")
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
