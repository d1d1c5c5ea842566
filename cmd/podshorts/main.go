package main

import (
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"podshorts/internal/backend"
	"podshorts/internal/bootstrap"
	"podshorts/internal/cli"
	"podshorts/internal/config"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("PODSHORTS_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Retry and poll warnings go to stderr so stdout stays scriptable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	be, err := backend.New(cfg.Backend)
	if err != nil {
		log.Fatal("Failed to configure backend:", err)
	}

	app := &cli.App{
		Config:   cfg,
		Backend:  be,
		Renderer: bootstrap.Renderer(cfg),
		Logger:   logger,
	}
	uploader, audio, err := bootstrap.Media(cfg, logger)
	if err != nil && !errors.Is(err, bootstrap.ErrMediaDisabled) {
		log.Fatal("Failed to configure cloudinary:", err)
	}
	if err == nil {
		app.Uploader = uploader
		app.Audio = audio
	}

	cli.Execute(app)
}
