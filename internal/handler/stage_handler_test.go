package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-groupwork/internal/config"
	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/handler"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
	"github.com/noah-isme/gema-groupwork/internal/router"
	"github.com/noah-isme/gema-groupwork/internal/service"
)

const stagePath = "/api/v2/courses/course-1/projects/gp1/activities/act1/stages/"

type stubStageService struct {
	err error

	lastRequest service.StageRequest
	lastReview  dto.SubmitReviewRequest
	lastMark    dto.MarkCompleteRequest
	uploads     map[string]string
	workgroup   int64
}

func (s *stubStageService) View(_ context.Context, req service.StageRequest) (dto.StageViewResponse, error) {
	s.lastRequest = req
	if s.err != nil {
		return dto.StageViewResponse{}, s.err
	}
	return dto.StageViewResponse{StageID: req.StageID, State: models.StageStateIncomplete}, nil
}

func (s *stubStageService) MarkComplete(_ context.Context, req service.StageRequest, payload dto.MarkCompleteRequest) (dto.ActionResult, error) {
	s.lastRequest = req
	s.lastMark = payload
	if s.err != nil {
		return dto.ActionResult{}, s.err
	}
	return dto.ActionResult{
		Message: "Stage marked complete",
		States:  []dto.StageStateItem{{ActivityID: "act1", StageID: req.StageID, State: models.StageStateCompleted}},
	}, nil
}

func (s *stubStageService) SubmitReview(_ context.Context, req service.StageRequest, payload dto.SubmitReviewRequest) (dto.ActionResult, error) {
	s.lastRequest = req
	s.lastReview = payload
	if s.err != nil {
		return dto.ActionResult{}, s.err
	}
	return dto.ActionResult{Message: "Thanks for your feedback", Data: map[string]any{"created": len(payload.Answers)}}, nil
}

func (s *stubStageService) Upload(_ context.Context, req service.StageRequest, files []service.UploadFile) (dto.ActionResult, error) {
	s.lastRequest = req
	if s.err != nil {
		return dto.ActionResult{}, s.err
	}
	s.uploads = map[string]string{}
	for _, file := range files {
		data, err := io.ReadAll(file.Content)
		if err != nil {
			return dto.ActionResult{}, err
		}
		s.uploads[file.UploadID] = file.Filename + "=" + string(data)
	}
	return dto.ActionResult{Message: "Upload successful"}, nil
}

func (s *stubStageService) PeerFeedback(_ context.Context, req service.StageRequest) ([]dto.AssessmentFeedbackResponse, error) {
	s.lastRequest = req
	return []dto.AssessmentFeedbackResponse{{QuestionID: "q_team", Answers: []string{"kind"}}}, s.err
}

func (s *stubStageService) GroupFeedback(_ context.Context, req service.StageRequest) ([]dto.AssessmentFeedbackResponse, error) {
	s.lastRequest = req
	return []dto.AssessmentFeedbackResponse{}, s.err
}

func (s *stubStageService) OtherSubmissions(_ context.Context, req service.StageRequest, workgroupID int64) ([]dto.SubmissionResponse, error) {
	s.lastRequest = req
	s.workgroup = workgroupID
	return []dto.SubmissionResponse{{UploadID: "A", Title: "Report"}}, s.err
}

func (s *stubStageService) Navigator(_ context.Context, userID int64, courseID, projectID string) (dto.NavigatorResponse, error) {
	s.lastRequest = service.StageRequest{UserID: userID, CourseID: courseID, ProjectID: projectID}
	return dto.NavigatorResponse{ProjectID: projectID, Views: []string{}}, s.err
}

var _ service.StageService = (*stubStageService)(nil)

func newStageApp(svc service.StageService) *fiber.App {
	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	app := fiber.New()
	router.Register(app, config.Config{AppName: "test"}, router.Dependencies{
		StageHandler:      handler.NewStageHandler(svc, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(svc, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", int64(7))
			return c.Next()
		},
	})
	return app
}

type envelope struct {
	Result         string               `json:"result"`
	Msg            string               `json:"msg"`
	NewStageStates []dto.StageStateItem `json:"new_stage_states"`
	Data           json.RawMessage      `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestStageViewPassesRouteAndUser(t *testing.T) {
	svc := &stubStageService{}
	app := newStageApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, stagePath+"upload", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	require.Equal(t, "success", payload.Result)
	require.Equal(t, service.StageRequest{UserID: 7, CourseID: "course-1", ProjectID: "gp1", ActivityID: "act1", StageID: "upload"}, svc.lastRequest)
}

func TestMarkCompleteReturnsNewStageStates(t *testing.T) {
	svc := &stubStageService{}
	app := newStageApp(svc)

	req := httptest.NewRequest(http.MethodPost, stagePath+"done/complete", strings.NewReader(`{"user_id":7}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	require.Equal(t, "Stage marked complete", payload.Msg)
	require.Len(t, payload.NewStageStates, 1)
	require.Equal(t, models.StageStateCompleted, payload.NewStageStates[0].State)
	require.Equal(t, int64(7), svc.lastMark.UserID)
}

func TestMarkCompleteWithoutBody(t *testing.T) {
	svc := &stubStageService{}
	resp, err := newStageApp(svc).Test(httptest.NewRequest(http.MethodPost, stagePath+"done/complete", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Zero(t, svc.lastMark.UserID)
}

func TestSubmitReviewValidatesPayload(t *testing.T) {
	svc := &stubStageService{}
	app := newStageApp(svc)

	req := httptest.NewRequest(http.MethodPost, stagePath+"review/reviews", strings.NewReader(`{"group_id":20}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, stagePath+"review/reviews", strings.NewReader(`{"group_id":20,"answers":{"q1":"80"}}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, int64(20), svc.lastReview.GroupID)
	require.Equal(t, "80", svc.lastReview.Answers["q1"])

	payload := decodeEnvelope(t, resp)
	require.Equal(t, "Thanks for your feedback", payload.Msg)
	require.JSONEq(t, `{"created":1}`, string(payload.Data))
}

func TestStageErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "stage missing", err: service.ErrStageNotFound, status: fiber.StatusNotFound},
		{name: "outsider", err: service.ErrOutsiderDisallowed, status: fiber.StatusForbidden},
		{name: "unavailable", err: service.ErrStageUnavailable, status: fiber.StatusForbidden},
		{name: "closed", err: service.ErrStageClosed, status: fiber.StatusConflict},
		{name: "not open", err: service.ErrStageNotOpen, status: fiber.StatusConflict},
		{name: "wrong subject", err: service.ErrInvalidReviewSubject, status: fiber.StatusBadRequest},
		{name: "too large", err: service.ErrUploadTooLarge, status: fiber.StatusRequestEntityTooLarge},
		{name: "upstream", err: &projectapi.APIError{Code: http.StatusServiceUnavailable, Message: "down"}, status: fiber.StatusBadGateway},
		{name: "generic", err: errors.New("boom"), status: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newStageApp(&stubStageService{err: tc.err})
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, stagePath+"review", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			payload := decodeEnvelope(t, resp)
			require.Equal(t, "error", payload.Result)
			require.NotEmpty(t, payload.Msg)
		})
	}
}

func TestOtherSubmissionsParsesWorkgroup(t *testing.T) {
	svc := &stubStageService{}
	app := newStageApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, stagePath+"review/workgroups/20/submissions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, int64(20), svc.workgroup)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, stagePath+"review/workgroups/abc/submissions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNavigatorRoute(t *testing.T) {
	svc := &stubStageService{}
	resp, err := newStageApp(svc).Test(httptest.NewRequest(http.MethodGet, "/api/v2/courses/course-1/projects/gp1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "gp1", svc.lastRequest.ProjectID)
	require.Equal(t, int64(7), svc.lastRequest.UserID)
}

func TestUploadForwardsEveryFileField(t *testing.T) {
	svc := &stubStageService{}
	app := newStageApp(svc)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for uploadID, content := range map[string]string{"A": "report", "B": "slides"} {
		part, err := writer.CreateFormFile(uploadID, strings.ToLower(uploadID)+".txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, stagePath+"upload/uploads", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]string{"A": "a.txt=report", "B": "b.txt=slides"}, svc.uploads)
}

func TestUploadWithoutMultipartBody(t *testing.T) {
	resp, err := newStageApp(&stubStageService{}).Test(httptest.NewRequest(http.MethodPost, stagePath+"upload/uploads", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
