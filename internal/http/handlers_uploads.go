package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"podshorts/internal/model"
)

func uploadsHistoryHandler(c *fiber.Ctx) error {
	ledger := depsFrom(c).Ledger
	if ledger == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "LEDGER_DISABLED", "upload history requires a database", nil)
	}
	username := strings.TrimSpace(c.Params("username"))
	if username == "" {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "Missing username", nil)
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 500", nil)
	}

	list, err := ledger.ListUploadsByUser(c.Context(), username, limit)
	if err != nil {
		loggerFrom(c).Error("upload_ledger_list_failed", "username", username, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "failed to list uploads", nil)
	}
	if list == nil {
		list = []model.UploadRecord{}
	}
	return c.JSON(UploadsResponse{Success: true, Uploads: list})
}
