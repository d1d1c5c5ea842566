package http

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"

	"podshorts/internal/cache"
	"podshorts/internal/config"
	"podshorts/internal/media"
	"podshorts/internal/model"
	"podshorts/internal/results"
	"podshorts/internal/youtube"
)

// JobsBackend is the subset of the processing backend used by handlers.
type JobsBackend interface {
	CreateShorts(ctx context.Context, req model.CreateShortsRequest) (*model.ShortsAccepted, error)
	ShortsStatus(ctx context.Context, id string) (model.ProcessingJob, error)
	UserShorts(ctx context.Context, username string) ([]model.ProcessingJob, error)
	CreateDubbing(ctx context.Context, req model.CreateDubbingRequest) (*model.DubbingAccepted, error)
	DubbingStatus(ctx context.Context, id string) (model.DubbingJob, error)
	UserDubbings(ctx context.Context, username string) ([]model.DubbingJob, error)
	UploadInstagram(ctx context.Context, req model.InstagramUploadRequest) (*model.InstagramUploadResult, error)
}

// MediaUploader republishes a stream to the media host.
type MediaUploader interface {
	UploadStream(ctx context.Context, r io.Reader, p media.UploadParams) (*media.Upload, error)
}

// UploadLedger records successful uploads.
type UploadLedger interface {
	InsertUpload(ctx context.Context, rec model.UploadRecord) (model.UploadRecord, error)
	ListUploadsByUser(ctx context.Context, username string, limit int) ([]model.UploadRecord, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators injected into every request. Ledger and
// Cache are optional.
type Deps struct {
	Backend  JobsBackend
	Uploader MediaUploader
	Audio    youtube.AudioSource
	Ledger   UploadLedger
	Cache    cache.Snapshots
	Renderer results.Renderer
}

func injectDeps(cfg *config.Config, d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("deps", &d)
		return c.Next()
	}
}

func depsFrom(c *fiber.Ctx) *Deps {
	d, _ := c.Locals("deps").(*Deps)
	if d == nil {
		return &Deps{}
	}
	return d
}

func configFrom(c *fiber.Ctx) *config.Config {
	cfg, _ := c.Locals("config").(*config.Config)
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}
