package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gorelay/internal/server"
)

const (
	exitOK = iota
	exitRuntime
	exitConfig
)

var errConfig = errors.New("configuration")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		if errors.Is(err, errConfig) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

func run() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	path := os.Getenv("RELAY_CONFIG")
	if path == "" {
		path = server.DefaultConfigPath
	}
	cfg, err := server.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	log := server.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int64("max_message_size", cfg.MaxMessageSize).
		Msg("Starting relay server")

	srv := server.New(*cfg, log)
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")
		return errors.Join(
			server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log),
			srv.Shutdown(cfg.ShutdownTimeout),
		)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server stopped cleanly")
	return nil
}
