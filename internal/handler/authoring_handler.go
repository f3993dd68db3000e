package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/activityxml"
	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/service"
	"github.com/noah-isme/gema-groupwork/internal/utils"
)

// AuthoringHandler imports and exports project definitions as XML.
type AuthoringHandler struct {
	catalog   service.ProjectCatalog
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuthoringHandler builds an authoring handler instance.
func NewAuthoringHandler(catalog service.ProjectCatalog, validator *validator.Validate, logger zerolog.Logger) *AuthoringHandler {
	return &AuthoringHandler{
		catalog:   catalog,
		validator: validator,
		logger:    logger.With().Str("component", "authoring_handler").Logger(),
	}
}

// Register attaches the routes to a group mounted at /courses/:course/projects.
func (h *AuthoringHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Put("/:project", h.put)
	router.Get("/:project", h.export)
	router.Delete("/:project", h.delete)
}

func (h *AuthoringHandler) list(c *fiber.Ctx) error {
	defs, err := h.catalog.List(c.UserContext(), c.Params("course"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "projects retrieved", defs)
}

func (h *AuthoringHandler) put(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "project xml is required")
	}

	def, err := h.catalog.Import(c.UserContext(), c.Params("course"), c.Params("project"), body)
	if err != nil {
		if errors.Is(err, service.ErrInvalidProject) && len(def.Messages) > 0 {
			return utils.SendErrorWithData(c, fiber.StatusUnprocessableEntity, err.Error(), def)
		}
		return handleError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().
		Str("course_id", def.CourseID).
		Str("project_id", def.ProjectID).
		Int64("author_id", userIDFromContext(c)).
		Msg("project definition saved")
	return utils.SendSuccess(c, "project saved", def)
}

func (h *AuthoringHandler) export(c *fiber.Ctx) error {
	var query dto.ProjectExportQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := h.validator.Struct(query); err != nil {
		return handleError(c, h.logger, err)
	}
	format := activityxml.FormatNode
	if query.Format != "" {
		format = activityxml.Format(query.Format)
	}

	data, err := h.catalog.Export(c.UserContext(), c.Params("course"), c.Params("project"), format)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.Status(fiber.StatusOK).Send(data)
}

func (h *AuthoringHandler) delete(c *fiber.Ctx) error {
	if err := h.catalog.Delete(c.UserContext(), c.Params("course"), c.Params("project")); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "project deleted", nil)
}
