package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lu0b0/2925-mail-2api/internal/config"
	"github.com/lu0b0/2925-mail-2api/internal/observability"
	"github.com/lu0b0/2925-mail-2api/internal/platform/mail2925"
	"github.com/lu0b0/2925-mail-2api/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	observability.Init(observability.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Verbose: cfg.LogVerbose})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.OTELServiceName,
		Environment: cfg.OTELEnvironment,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	cookie, err := mail2925.LoadCredential(cfg.CookieFile)
	if err != nil {
		log.Fatalf("credential: %v", err)
	}
	profile, err := mail2925.LoadProfile(cfg.ProviderProfile)
	if err != nil {
		log.Fatalf("header profile: %v", err)
	}
	session, err := mail2925.NewSessionWithOptions(ctx, cookie, mail2925.Options{
		BaseURL:    cfg.ProviderBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
		Profile:    profile,
	})
	if err != nil {
		log.Fatalf("session: %v", err)
	}

	srv := server.New(cfg, session)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server: %v", err)
	}
}
