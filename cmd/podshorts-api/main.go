package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"podshorts/internal/backend"
	"podshorts/internal/bootstrap"
	"podshorts/internal/config"
	server "podshorts/internal/http"
	"podshorts/internal/jobs"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("PODSHORTS_CONFIG", "config/config.yaml"), "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := backend.New(cfg.Backend)
	if err != nil {
		log.Fatalf("backend client: %v", err)
	}
	deps := server.Deps{
		Backend:  be,
		Renderer: bootstrap.Renderer(cfg),
	}

	uploader, audio, err := bootstrap.Media(cfg, logger)
	switch {
	case errors.Is(err, bootstrap.ErrMediaDisabled):
		logger.Warn("media_uploads_disabled", "reason", err.Error())
	case err != nil:
		log.Fatalf("cloudinary: %v", err)
	default:
		deps.Uploader = uploader
		deps.Audio = audio
	}

	st, err := bootstrap.Ledger(cfg)
	if err != nil {
		log.Fatalf("upload ledger: %v", err)
	}
	if st != nil {
		deps.Ledger = st
		defer st.DB.Close()
		go jobs.NewSweeper(cfg.Retention, st, logger).Start(rootCtx)
	} else {
		logger.Warn("upload_ledger_disabled", "reason", "database.dsn is empty")
	}

	rdb, err := bootstrap.Redis(rootCtx, cfg)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}
	deps.Cache = bootstrap.Snapshots(cfg, rdb)

	s := server.NewServer(cfg, deps, rdb, logger)

	go func() {
		<-rootCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			logger.Error("shutdown_failed", "error", err)
		}
	}()

	logger.Info("listening", "host", cfg.Server.Host, "port", cfg.Server.Port, "backend", be.BaseURL())
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
