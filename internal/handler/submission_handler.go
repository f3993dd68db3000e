package handler

import (
	"io"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/service"
	"github.com/noah-isme/gema-groupwork/internal/utils"
)

// SubmissionHandler accepts deliverable uploads for submission stages.
type SubmissionHandler struct {
	service service.StageService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.StageService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the upload route. limiter may be nil.
func (h *SubmissionHandler) Register(router fiber.Router, limiter fiber.Handler) {
	handlers := []fiber.Handler{h.upload}
	if limiter != nil {
		handlers = append([]fiber.Handler{limiter}, handlers...)
	}
	router.Post("/activities/:activity/stages/:stage/uploads", handlers...)
}

// upload expects one multipart file field per upload id.
func (h *SubmissionHandler) upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrNoFiles.Error())
	}

	uploadIDs := make([]string, 0, len(form.File))
	for uploadID, headers := range form.File {
		if len(headers) > 0 {
			uploadIDs = append(uploadIDs, uploadID)
		}
	}
	sort.Strings(uploadIDs)

	files := make([]service.UploadFile, 0, len(uploadIDs))
	closers := make([]io.Closer, 0, len(uploadIDs))
	defer func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}()

	for _, uploadID := range uploadIDs {
		header := form.File[uploadID][0]
		file, err := header.Open()
		if err != nil {
			requestLogger(h.logger, c).Warn().Err(err).Str("upload_id", uploadID).Msg("failed to open uploaded file")
			return utils.SendError(c, fiber.StatusBadRequest, "invalid file for "+uploadID)
		}
		closers = append(closers, file)
		files = append(files, service.UploadFile{UploadID: uploadID, Filename: header.Filename, Content: file})
	}

	result, err := h.service.Upload(c.UserContext(), stageRequest(c), files)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStates(c, fiber.StatusOK, result.Message, result.States, result.Data)
}
