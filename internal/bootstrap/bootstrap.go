package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"podshorts/internal/cache"
	"podshorts/internal/config"
	"podshorts/internal/media"
	"podshorts/internal/migrate"
	"podshorts/internal/results"
	"podshorts/internal/store"
	"podshorts/internal/youtube"
)

// ErrMediaDisabled is returned by Media when no Cloudinary credentials are
// configured. Callers may continue without the upload features.
var ErrMediaDisabled = errors.New("cloudinary is not configured")

// Media builds the retrying uploader and the YouTube audio source.
func Media(cfg *config.Config, logger *slog.Logger) (*media.Uploader, *youtube.Source, error) {
	if strings.TrimSpace(cfg.Cloudinary.CloudName) == "" {
		return nil, nil, ErrMediaDisabled
	}
	client, err := media.NewClient(cfg.Cloudinary)
	if err != nil {
		return nil, nil, err
	}
	up := media.NewUploader(client, media.PolicyFromConfig(cfg.Cloudinary), cfg.Cloudinary.SpoolDir, logger)
	return up, youtube.NewSource(), nil
}

// Ledger migrates and opens the upload ledger. It returns nil without an
// error when no DSN is configured.
func Ledger(cfg *config.Config) (*store.Store, error) {
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		return nil, nil
	}
	if err := migrate.Run(dsn); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	db, err := store.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open db failed: %w", err)
	}
	return store.New(db), nil
}

// Redis connects to the configured Redis. It returns nil without an error
// when no URL is configured.
func Redis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	raw := strings.TrimSpace(cfg.Redis.URL)
	if raw == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Snapshots picks the Redis snapshot cache when Redis is available and
// an in-process cache otherwise.
func Snapshots(cfg *config.Config, rdb *redis.Client) cache.Snapshots {
	ttl := time.Duration(cfg.Cache.SnapshotTTLMinutes) * time.Minute
	if rdb != nil {
		return cache.NewRedis(rdb, ttl)
	}
	return cache.NewMemory(ttl)
}

// Renderer builds the result renderer from the Cloudinary and web settings.
func Renderer(cfg *config.Config) results.Renderer {
	return results.Renderer{CloudName: cfg.Cloudinary.CloudName, WebBaseURL: cfg.Web.BaseURL}
}
