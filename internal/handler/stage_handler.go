package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/service"
	"github.com/noah-isme/gema-groupwork/internal/utils"
)

// StageHandler exposes the stage pipeline to the host.
type StageHandler struct {
	service   service.StageService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewStageHandler builds a stage handler instance.
func NewStageHandler(service service.StageService, validator *validator.Validate, logger zerolog.Logger) *StageHandler {
	return &StageHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "stage_handler").Logger(),
	}
}

// Register attaches the routes to a group mounted at /courses/:course/projects/:project.
func (h *StageHandler) Register(router fiber.Router) {
	router.Get("", h.navigator)

	stage := router.Group("/activities/:activity/stages/:stage")
	stage.Get("", h.view)
	stage.Post("/complete", h.markComplete)
	stage.Post("/reviews", h.submitReview)
	stage.Get("/peer-feedback", h.peerFeedback)
	stage.Get("/group-feedback", h.groupFeedback)
	stage.Get("/workgroups/:workgroup/submissions", h.otherSubmissions)
}

func (h *StageHandler) navigator(c *fiber.Ctx) error {
	nav, err := h.service.Navigator(c.UserContext(), userIDFromContext(c), c.Params("course"), c.Params("project"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "project retrieved", nav)
}

func (h *StageHandler) view(c *fiber.Ctx) error {
	view, err := h.service.View(c.UserContext(), stageRequest(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "stage retrieved", view)
}

func (h *StageHandler) markComplete(c *fiber.Ctx) error {
	var payload dto.MarkCompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleError(c, h.logger, err)
	}

	result, err := h.service.MarkComplete(c.UserContext(), stageRequest(c), payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStates(c, fiber.StatusOK, result.Message, result.States, result.Data)
}

func (h *StageHandler) submitReview(c *fiber.Ctx) error {
	var payload dto.SubmitReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleError(c, h.logger, err)
	}

	result, err := h.service.SubmitReview(c.UserContext(), stageRequest(c), payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStates(c, fiber.StatusOK, result.Message, result.States, result.Data)
}

func (h *StageHandler) peerFeedback(c *fiber.Ctx) error {
	feedback, err := h.service.PeerFeedback(c.UserContext(), stageRequest(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "feedback retrieved", feedback)
}

func (h *StageHandler) groupFeedback(c *fiber.Ctx) error {
	feedback, err := h.service.GroupFeedback(c.UserContext(), stageRequest(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "feedback retrieved", feedback)
}

func (h *StageHandler) otherSubmissions(c *fiber.Ctx) error {
	workgroupID, err := parseInt64Param(c, "workgroup")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	links, err := h.service.OtherSubmissions(c.UserContext(), stageRequest(c), workgroupID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", links)
}
