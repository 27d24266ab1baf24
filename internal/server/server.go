package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lu0b0/2925-mail-2api/internal/config"
	"github.com/lu0b0/2925-mail-2api/internal/lookup"
	"github.com/lu0b0/2925-mail-2api/internal/observability"
	"github.com/lu0b0/2925-mail-2api/internal/platform/mail2925"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type finder interface {
	Find(ctx context.Context, c lookup.Criteria) (lookup.Result, error)
}

type Server struct {
	cfg     *config.Config
	router  chi.Router
	session *mail2925.Session
	finder  finder
	log     *observability.Logger
}

func New(cfg *config.Config, session *mail2925.Session) *Server {
	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		session: session,
		finder:  lookup.NewFinder(session),
		log:     observability.Component("server"),
	}
	s.router.Use(observability.RequestIDMiddleware)
	s.router.Use(observability.TraceMiddleware)
	s.router.Use(observability.RecoverMiddleware("server"))
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/mails", s.handleMails)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.log.Info(shutdownCtx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"token":  s.session != nil && s.session.HasToken(),
	})
}
