// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/auth"
	"github.com/vinizap/pronode/config"
	httphandlers "github.com/vinizap/pronode/http"
	"github.com/vinizap/pronode/logging"
	"github.com/vinizap/pronode/pgstore"
	"github.com/vinizap/pronode/remote"
	"github.com/vinizap/pronode/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("logging")
	}
	if cfg.JWTSecret == "" && cfg.PasswordHash == "" {
		log.Warn().Msg("neither LUMI_JWT_SECRET nor LUMI_PASSWORD_HASH set, every request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// run serves until ctx is cancelled or the listener fails. Everything it
// opens is closed before it returns.
func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	var store remote.Store
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer pg.Close()
		store = pg
		log.Info().Msg("using postgres store")
	} else {
		store = remote.NewMemory()
		log.Warn().Msg("LUMI_DATABASE_URL not set, data lives in memory only")
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := ws.NewHub(store, auth.Authorize, log)
	go hub.Run(hubCtx)

	server := httphandlers.NewServer(store, auth.New(cfg.JWTSecret, cfg.PasswordHash), hub, log)

	errc := make(chan error, 1)
	go func() { errc <- server.Listen(cfg.Addr()) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	done := make(chan error, 1)
	go func() { done <- server.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		return errors.New("shutdown timed out")
	}
}
