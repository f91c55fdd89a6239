package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"canvas-imagegen/internal/usecase"
)

// Server exposes the job API and the worker trigger. Processing itself
// happens on the worker pool; HTTP handlers only enqueue work and read
// state.
type Server struct {
	enqueueUC usecase.EnqueueUseCase
	galleryUC usecase.GalleryUseCase
	auth      *AuthManager
	submit    func() error
	log       *zerolog.Logger
}

func NewServer(
	enqueueUC usecase.EnqueueUseCase,
	galleryUC usecase.GalleryUseCase,
	auth *AuthManager,
	submit func() error,
	logger *zerolog.Logger,
) *Server {
	srvLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		enqueueUC: enqueueUC,
		galleryUC: galleryUC,
		auth:      auth,
		submit:    submit,
		log:       &srvLog,
	}
}

// Router builds the route tree. The worker trigger sits behind auth; the
// job API is open to the fronting layer, which owns end-user identity.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", enqueueHandler(s.enqueueUC))
		r.Get("/jobs/{id}", jobGetHandler(s.enqueueUC))
		r.Get("/generations", generationsHandler(s.galleryUC))
		r.Get("/credits", balanceHandler(s.galleryUC))

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/worker/run", workerRunHandler(s.submit))
		})
	})
	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || !s.auth.Authorize(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// ListenAndServe runs the HTTP server until ctx is done, then drains with
// a short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
