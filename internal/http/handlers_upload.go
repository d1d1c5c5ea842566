package http

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"podshorts/internal/media"
	"podshorts/internal/metrics"
	"podshorts/internal/model"
	"podshorts/internal/validate"
)

func uploadYouTubeHandler(c *fiber.Ctx) error {
	var body validate.YouTubeUploadForm
	if err := c.BodyParser(&body); err != nil {
		return invalidJSON(c)
	}
	form, err := validate.YouTubeUpload(body)
	if err != nil {
		if fe, ok := validate.AsFieldErrors(err); ok {
			return validationFailed(c, fe)
		}
		return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	}

	cfg := configFrom(c)
	deps := depsFrom(c)
	if deps.Audio == nil || deps.Uploader == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "UPLOADS_DISABLED", "media uploads are not configured", nil)
	}
	logger := loggerFrom(c)
	ctx := c.Context()

	audio, err := deps.Audio.OpenAudio(ctx, form.YouTubeURL)
	if err != nil {
		logger.Error("youtube_download_failed", "url", form.YouTubeURL, "error", err)
		metrics.RecordUpload(string(model.UploadSourceYouTube), "download_failed", 0, 0)
		return errorJSON(c, fiber.StatusBadGateway, "DOWNLOAD_FAILED", "ytdl download error", nil)
	}
	defer audio.Stream.Close()

	up, err := deps.Uploader.UploadStream(ctx, audio.Stream, media.UploadParams{
		Folder:   cfg.Cloudinary.YouTubeFolder,
		Filename: audio.Filename(),
		Tags:     []string{"youtube", audio.VideoID},
	})
	if err != nil {
		return uploadFailed(c, model.UploadSourceYouTube, err)
	}
	metrics.RecordUpload(string(model.UploadSourceYouTube), "success", up.Attempts, up.Size)

	meta, _ := json.Marshal(map[string]interface{}{
		"videoId":         audio.VideoID,
		"title":           audio.Title,
		"author":          audio.Author,
		"durationSeconds": int64(audio.Duration.Seconds()),
		"mimeType":        audio.MimeType,
	})
	recordUpload(ctx, c, deps, model.UploadRecord{
		Username:  form.Username,
		Source:    model.UploadSourceYouTube,
		SourceRef: form.YouTubeURL,
		SecureURL: up.SecureURL,
		PublicID:  up.PublicID,
		Attempts:  up.Attempts,
		Bytes:     up.Size,
		Metadata:  meta,
	})

	return c.JSON(YouTubeUploadResponse{
		CloudinaryURL: up.SecureURL,
		PublicID:      up.PublicID,
		Attempts:      up.Attempts,
	})
}

func uploadFileHandler(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return errorJSON(c, fiber.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}

	cfg := configFrom(c)
	deps := depsFrom(c)
	if deps.Uploader == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "UPLOADS_DISABLED", "media uploads are not configured", nil)
	}

	fh, _ := c.FormFile("file")
	info, err := validate.FileHeader(fh, int64(cfg.Uploads.MaxFileMB)<<20)
	if err != nil {
		if fe, ok := validate.AsFieldErrors(err); ok {
			return validationFailed(c, fe)
		}
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	}

	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "No file uploaded", nil)
	}
	defer f.Close()

	ctx := c.Context()
	up, err := deps.Uploader.UploadStream(ctx, f, media.UploadParams{
		Folder:   cfg.Cloudinary.FileFolder,
		Filename: info.Filename,
		Tags:     []string{"upload"},
	})
	if err != nil {
		return uploadFailed(c, model.UploadSourceFile, err)
	}
	metrics.RecordUpload(string(model.UploadSourceFile), "success", up.Attempts, up.Size)

	meta, _ := json.Marshal(map[string]interface{}{
		"filename": info.Filename,
		"mimeType": info.MimeType,
	})
	recordUpload(ctx, c, deps, model.UploadRecord{
		Username:  strings.TrimSpace(c.FormValue("username")),
		Source:    model.UploadSourceFile,
		SourceRef: info.Filename,
		SecureURL: up.SecureURL,
		PublicID:  up.PublicID,
		Attempts:  up.Attempts,
		Bytes:     up.Size,
		Metadata:  meta,
	})

	return c.JSON(FileUploadResponse{URL: up.SecureURL, PublicID: up.PublicID})
}

func uploadFailed(c *fiber.Ctx, source model.UploadSource, err error) error {
	attempts := 0
	var upErr *media.UploadError
	if errors.As(err, &upErr) {
		attempts = upErr.Attempts
	}
	loggerFrom(c).Error("cloudinary_upload_failed", "source", source, "attempts", attempts, "error", err)

	details := fiber.Map{"attempts": attempts}
	if errors.Is(err, media.ErrRetriesExhausted) {
		metrics.RecordUpload(string(source), "exhausted", attempts, 0)
		return errorJSON(c, fiber.StatusInternalServerError, "UPLOAD_RETRIES_EXHAUSTED", "Cloudinary upload failed after retries", details)
	}
	metrics.RecordUpload(string(source), "failed", attempts, 0)
	return errorJSON(c, fiber.StatusInternalServerError, "UPLOAD_FAILED", "Cloudinary upload failed", details)
}

// recordUpload writes the ledger row. Ledger failures are logged and do not
// fail the request: the media is already hosted.
func recordUpload(ctx context.Context, c *fiber.Ctx, deps *Deps, rec model.UploadRecord) {
	if deps.Ledger == nil {
		return
	}
	if _, err := deps.Ledger.InsertUpload(ctx, rec); err != nil {
		loggerFrom(c).Error("upload_ledger_insert_failed", "public_id", rec.PublicID, "error", err)
	}
}
