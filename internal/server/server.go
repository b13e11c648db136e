// Package server exposes the prospecting API over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chainreach/prospect-cli/internal/opportunity"
	"github.com/chainreach/prospect-cli/internal/outreach"
	"github.com/chainreach/prospect-cli/internal/store"
)

// Server wires the orchestrator, advancer, and store into HTTP handlers.
type Server struct {
	store        store.Store
	orchestrator *opportunity.Orchestrator
	advancer     *outreach.Advancer
	port         int
}

func New(st store.Store, orch *opportunity.Orchestrator, adv *outreach.Advancer, port int) *Server {
	return &Server{store: st, orchestrator: orch, advancer: adv, port: port}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-User-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Post("/scan/text", s.handleScanText)
		r.Post("/scan/page", s.handleScanPage)
		r.Post("/scan/watchlist", s.handleScanWatchlist)

		r.Get("/opportunities", s.handleListOpportunities)
		r.Post("/opportunities/{id}/convert", s.handleConvert)
		r.Post("/opportunities/{id}/discard", s.handleDiscard)
		r.Post("/opportunities/{id}/snooze", s.handleSnooze)
		r.Post("/opportunities/{id}/enrich", s.handleEnrich)

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)

		r.Post("/contacts", s.handleCreateContact)

		r.Post("/sequences", s.handleCreateSequence)
		r.Get("/sequences/{id}/next", s.handleNextStep)
		r.Post("/steps/{id}/action", s.handleStepAction)

		r.Get("/watchlist", s.handleListWatchlist)
		r.Post("/watchlist", s.handleAddWatchlist)
	})

	return r
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		zap.L().Info("server: shutting down")
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server: shutdown")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userIDKey carries the authenticated user through the request context.
type ctxKey string

const userIDKey ctxKey = "userID"

// requireUser enforces the X-User-ID scoping header on every data route.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, eris.New("server: missing X-User-ID header"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, store.ErrConflict), eris.Is(err, outreach.ErrAlreadyActioned):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
