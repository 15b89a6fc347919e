package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"multidisplay/internal/config"
	"multidisplay/internal/handlers"
	"multidisplay/internal/logger"
	"multidisplay/internal/signage"
	"multidisplay/pkg/versioned"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	_ = mime.AddExtensionType(".js", "application/javascript")
	_ = mime.AddExtensionType(".css", "text/css")

	templates, assignments, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	broadcaster := signage.NewBroadcaster(templates, assignments, signage.NewRegistry(), log)

	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return err
	}
	r := handlers.NewRouter(broadcaster, log, handlers.RouterOptions{
		OutboxSize:     cfg.OutboxSize,
		TemplateWrites: rate.NewLimiter(rate.Limit(cfg.TemplateWriteRate), cfg.TemplateWriteBurst),
		Static:         staticFS,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// Display and controller connections stay open indefinitely, and a
		// read deadline would cancel SSE request contexts.
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.Backend).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config) (templates, assignments versioned.Store, closeFn func(), err error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return versioned.NewMemory(), versioned.NewMemory(), func() {}, nil
	case config.BackendRedis:
		client, err := versioned.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		// Store calls keep working while connections drain on shutdown.
		storeCtx := context.Background()
		templates := versioned.NewRedisWithClient(storeCtx, client, cfg.RedisPrefix+":templates")
		assignments := versioned.NewRedisWithClient(storeCtx, client, cfg.RedisPrefix+":client_info")
		return templates, assignments, func() { client.Close() }, nil
	default:
		templates, err := versioned.OpenDir(cfg.TemplatesDir())
		if err != nil {
			return nil, nil, nil, err
		}
		assignments, err := versioned.OpenDir(cfg.AssignmentsDir())
		if err != nil {
			return nil, nil, nil, err
		}
		return templates, assignments, func() {}, nil
	}
}

//go:embed static/*
var embeddedStatic embed.FS
