package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oakenlabs/textgate/internal/config"
	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/internal/provider/gemini"
	"github.com/oakenlabs/textgate/pkg/errors"
)

// Exit codes follow the sysexits convention: 64 for unusable
// configuration, 69 for a required service being unavailable, 70 for
// an internal failure.
const (
	exitOK          = 0
	exitConfig      = 64
	exitUnavailable = 69
	exitInternal    = 70
)

var errRemoteUnavailable = fmt.Errorf("remote cache required in production but unreachable")

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile       = flag.String("config", "", "path to a YAML override file")
		cachePreset      = flag.String("cache-preset", "auto", "cache preset name, or auto to infer from the environment")
		resiliencePreset = flag.String("resilience-preset", "auto", "resilience preset name, or auto to infer from the environment")
	)
	flag.Parse()

	cfg, err := config.Resolve(config.Options{
		CachePreset:      *cachePreset,
		ResiliencePreset: *resiliencePreset,
		OverrideFile:     *configFile,
		Getenv:           os.Getenv,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		return exitConfig
	}

	log := observability.NewLogger(observability.LoggerConfig{
		Level:      observability.ParseLevel(cfg.Logging.Level),
		Output:     os.Stderr,
		JSONFormat: true,
	}, observability.NewRedactor())

	client, err := gemini.New(cfg.AI.GeminiAPIKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		return exitConfig
	}

	app, err := newApplication(cfg, client, log)
	if err != nil {
		if errors.KindOf(err) == errors.KindConfiguration {
			fmt.Fprintln(os.Stderr, "configuration:", err)
			return exitConfig
		}
		fmt.Fprintln(os.Stderr, "startup:", err)
		return exitInternal
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.checkRemote(ctx); err != nil {
		log.RedactedError("remote cache check failed", "error", err)
		return exitUnavailable
	}

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      app.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.RedactedInfo("server listening",
			"addr", cfg.Server.ListenAddr,
			"environment", string(cfg.Environment),
			"cache_preset", cfg.Cache.Preset,
			"resilience_preset", cfg.Resilience.Preset,
			"remote_cache", app.cache.RemoteConfigured())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		log.RedactedError("server failed", "error", err)
		return exitInternal
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.RedactedError("shutdown did not complete cleanly", "error", err)
		return exitInternal
	}

	log.RedactedInfo("server stopped")
	return exitOK
}
