package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/middleware"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
	"github.com/noah-isme/gema-groupwork/internal/service"
	"github.com/noah-isme/gema-groupwork/internal/utils"
)

func userIDFromContext(c *fiber.Ctx) int64 {
	switch id := c.Locals("user_id").(type) {
	case int64:
		return id
	case int:
		return int64(id)
	case uint:
		return int64(id)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func parseInt64Param(c *fiber.Ctx, key string) (int64, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func stageRequest(c *fiber.Ctx) service.StageRequest {
	return service.StageRequest{
		UserID:     userIDFromContext(c),
		CourseID:   c.Params("course"),
		ProjectID:  c.Params("project"),
		ActivityID: c.Params("activity"),
		StageID:    c.Params("stage"),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// handleError maps service failures onto the result envelope.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	var apiErr *projectapi.APIError
	switch {
	case errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrActivityNotFound),
		errors.Is(err, service.ErrStageNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrOutsiderDisallowed):
		return utils.SendError(c, fiber.StatusForbidden, "You are not permitted to view this content")
	case errors.Is(err, service.ErrStageUnavailable),
		errors.Is(err, service.ErrNotWorkgroupMember),
		errors.Is(err, service.ErrCannotMarkOther):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrStageNotOpen):
		return utils.SendError(c, fiber.StatusConflict, "This stage is not open yet")
	case errors.Is(err, service.ErrStageClosed):
		return utils.SendError(c, fiber.StatusConflict, "This stage is closed")
	case errors.Is(err, service.ErrCannotMarkComplete):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrWrongStageKind),
		errors.Is(err, service.ErrReviewSubjectRequired),
		errors.Is(err, service.ErrInvalidReviewSubject),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrUnknownUpload):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrInvalidProject):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.As(err, &apiErr):
		requestLogger(logger, c).Error().Err(err).Int("upstream_status", apiErr.Code).Msg("project service request failed")
		return utils.SendError(c, fiber.StatusBadGateway, apiErr.Message)
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
