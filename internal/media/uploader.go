package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/sethvargo/go-retry"

	"podshorts/internal/config"
)

// ErrRetriesExhausted marks an upload that kept failing with the
// retryable code until the retry bound was reached.
var ErrRetriesExhausted = errors.New("upload failed after retries")

// Backend performs one upload attempt.
type Backend interface {
	Upload(ctx context.Context, r io.Reader, p UploadParams) (*UploadResult, error)
}

// UploadError reports how many attempts a failed upload made.
type UploadError struct {
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%v (attempts: %d)", e.Err, e.Attempts)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Upload is a successful upload together with its attempt count and the
// number of bytes sent.
type Upload struct {
	UploadResult
	Attempts int
	Size     int64
}

// RetryPolicy bounds how an upload is retried: only RetryCode is retried,
// at most MaxRetries times, waiting Delay between attempts.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	RetryCode  int
}

// DefaultRetryPolicy retries client timeouts three times, two seconds apart.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	Delay:      2 * time.Second,
	RetryCode:  StatusClientTimeout,
}

// PolicyFromConfig reads the retry policy from the Cloudinary section.
func PolicyFromConfig(cfg config.CloudinaryConfig) RetryPolicy {
	p := DefaultRetryPolicy
	if cfg.MaxRetries > 0 {
		p.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelayMs > 0 {
		p.Delay = time.Duration(cfg.RetryDelayMs) * time.Millisecond
	}
	if cfg.RetryCode != 0 {
		p.RetryCode = cfg.RetryCode
	}
	return p
}

// Uploader wraps a Backend with the retry policy. Streams are spooled to
// a temporary file first so every attempt can re-read them from the start.
type Uploader struct {
	backend  Backend
	policy   RetryPolicy
	spoolDir string
	logger   *slog.Logger
}

func NewUploader(backend Backend, policy RetryPolicy, spoolDir string, logger *slog.Logger) *Uploader {
	if policy.Delay <= 0 {
		policy.Delay = DefaultRetryPolicy.Delay
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Uploader{backend: backend, policy: policy, spoolDir: spoolDir, logger: logger}
}

// UploadStream spools r and uploads it with retries.
func (u *Uploader) UploadStream(ctx context.Context, r io.Reader, p UploadParams) (*Upload, error) {
	spool, err := os.CreateTemp(u.spoolDir, "podshorts-spool-*")
	if err != nil {
		return nil, fmt.Errorf("create spool: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	if _, err := io.Copy(spool, r); err != nil {
		return nil, fmt.Errorf("spool stream: %w", err)
	}
	return u.UploadSeeker(ctx, spool, p)
}

// UploadSeeker uploads rs with retries, rewinding it before each attempt.
func (u *Uploader) UploadSeeker(ctx context.Context, rs io.ReadSeeker, p UploadParams) (*Upload, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("measure upload: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(u.policy.MaxRetries), retry.NewConstant(u.policy.Delay))

	attempts := 0
	var result *UploadResult
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind upload: %w", err)
		}
		attempts++

		res, err := u.backend.Upload(ctx, rs, p)
		if err == nil {
			result = res
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.HTTPCode == u.policy.RetryCode {
			if attempts <= u.policy.MaxRetries {
				u.logInfo("upload_retry",
					"attempt", attempts,
					"code", apiErr.HTTPCode,
					"delay_ms", u.policy.Delay.Milliseconds(),
				)
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.HTTPCode == u.policy.RetryCode && attempts > u.policy.MaxRetries {
			err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}
		u.logInfo("upload_failed", "attempts", attempts, "error", err)
		return nil, &UploadError{Attempts: attempts, Err: err}
	}

	u.logInfo("upload_succeeded",
		"public_id", result.PublicID,
		"attempts", attempts,
		"bytes", size,
	)
	return &Upload{UploadResult: *result, Attempts: attempts, Size: size}, nil
}

func (u *Uploader) logInfo(msg string, args ...any) {
	if u.logger != nil {
		u.logger.Info(msg, args...)
	}
}
