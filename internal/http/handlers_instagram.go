package http

import (
	"github.com/gofiber/fiber/v2"

	"podshorts/internal/validate"
)

// instagramUploadHandler forwards a clip to the backend for posting as a
// Reel. Credentials pass through and are never logged.
func instagramUploadHandler(c *fiber.Ctx) error {
	var body validate.InstagramForm
	if err := c.BodyParser(&body); err != nil {
		return invalidJSON(c)
	}
	req, err := validate.Instagram(body)
	if err != nil {
		if fe, ok := validate.AsFieldErrors(err); ok {
			return validationFailed(c, fe)
		}
		return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	}

	out, err := depsFrom(c).Backend.UploadInstagram(c.Context(), req)
	if err != nil {
		return backendFailed(c, err)
	}
	loggerFrom(c).Info("instagram_upload_forwarded", "video_path", req.VideoPath, "media_id", out.MediaID)
	return c.JSON(out)
}
