package service

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/events"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
	"github.com/noah-isme/gema-groupwork/internal/repository"
)

// StageRequest addresses a stage on behalf of an authenticated user.
type StageRequest struct {
	UserID     int64
	CourseID   string
	ProjectID  string
	ActivityID string
	StageID    string
}

// UploadFile is one file posted to a submission slot.
type UploadFile struct {
	UploadID string
	Filename string
	Content  io.Reader
}

// StageService is the host-facing surface of the stage pipeline.
type StageService interface {
	View(ctx context.Context, req StageRequest) (dto.StageViewResponse, error)
	MarkComplete(ctx context.Context, req StageRequest, payload dto.MarkCompleteRequest) (dto.ActionResult, error)
	SubmitReview(ctx context.Context, req StageRequest, payload dto.SubmitReviewRequest) (dto.ActionResult, error)
	Upload(ctx context.Context, req StageRequest, files []UploadFile) (dto.ActionResult, error)
	PeerFeedback(ctx context.Context, req StageRequest) ([]dto.AssessmentFeedbackResponse, error)
	GroupFeedback(ctx context.Context, req StageRequest) ([]dto.AssessmentFeedbackResponse, error)
	OtherSubmissions(ctx context.Context, req StageRequest, workgroupID int64) ([]dto.SubmissionResponse, error)
	Navigator(ctx context.Context, userID int64, courseID, projectID string) (dto.NavigatorResponse, error)
}

type stageService struct {
	catalog     ProjectCatalog
	access      AccessControl
	states      repository.StageStateRepository
	reviews     ReviewEngine
	tracker     SubmissionTracker
	completions CompletionPublisher
	api         ProjectAPI
	emitter     events.Emitter
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// StageServiceDeps groups the collaborators of the stage service.
type StageServiceDeps struct {
	Catalog     ProjectCatalog
	Access      AccessControl
	States      repository.StageStateRepository
	Reviews     ReviewEngine
	Tracker     SubmissionTracker
	Completions CompletionPublisher
	API         ProjectAPI
	Emitter     events.Emitter
}

// NewStageService constructs the stage service.
func NewStageService(deps StageServiceDeps, logger zerolog.Logger) StageService {
	return &stageService{
		catalog:     deps.Catalog,
		access:      deps.Access,
		states:      deps.States,
		reviews:     deps.Reviews,
		tracker:     deps.Tracker,
		completions: deps.Completions,
		api:         deps.API,
		emitter:     deps.Emitter,
		logger:      logger.With().Str("component", "stage_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-groupwork/internal/service/stage"),
		now:         time.Now,
	}
}

func (s *stageService) open(ctx context.Context, req StageRequest) (*stageScope, *models.Stage, error) {
	project, err := s.catalog.Project(ctx, req.CourseID, req.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	activity, ok := project.Activity(req.ActivityID)
	if !ok {
		return nil, nil, ErrActivityNotFound
	}
	stage, ok := activity.Stage(req.StageID)
	if !ok {
		return nil, nil, ErrStageNotFound
	}

	scope, err := s.scopeFor(ctx, req.UserID, req.CourseID, project, activity, nil)
	if err != nil {
		return nil, nil, err
	}
	return scope, stage, nil
}

func (s *stageService) scopeFor(ctx context.Context, userID int64, courseID string, project *models.Project, activity *models.Activity, viewer *Viewer) (*stageScope, error) {
	if viewer == nil {
		resolved, err := s.access.Viewer(ctx, userID, courseID)
		if err != nil {
			return nil, err
		}
		viewer = &resolved
	}

	stored, err := s.states.ListForActivity(ctx, userID, courseID, activity.ContentID)
	if err != nil {
		return nil, err
	}
	return newStageScope(courseID, project, activity, *viewer, s.now().UTC(), stored), nil
}

// stageState evaluates the per-kind completion predicate.
func (s *stageService) stageState(ctx context.Context, scope *stageScope, stage *models.Stage) (models.StageState, error) {
	if state, ok := scope.cached(stage.ID); ok {
		return state, nil
	}

	var state models.StageState
	switch stage.Kind {
	case models.StageKindSubmission:
		state = models.StageStateNotStarted
		if !scope.viewer.Workgroup.IsEmpty() {
			latest, err := s.tracker.Latest(ctx, scope.viewer.Workgroup.ID)
			if err != nil {
				return "", err
			}
			state = SubmissionStatus(stage.UploadIDs(), latest)
		}
	case models.StageKindTeamEvaluation, models.StageKindPeerReview:
		state = models.StageStateNotStarted
		if scope.stored(stage.ID).Visited && AvailableToUser(scope.activity, stage, scope.viewer) {
			status, err := s.reviews.Status(ctx, scope.activity, stage, scope.viewer)
			if err != nil {
				return "", err
			}
			state = status
		}
	default:
		state = models.StageStateNotStarted
		if scope.stored(stage.ID).Completed {
			state = models.StageStateCompleted
		}
	}
	return scope.remember(stage.ID, state), nil
}

func (s *stageService) canMarkComplete(ctx context.Context, scope *stageScope, stage *models.Stage) (bool, error) {
	if !AvailableToUser(scope.activity, stage, scope.viewer) || !CanMarkCompleteBase(stage, scope.viewer, scope.now) {
		return false, nil
	}

	switch stage.Kind {
	case models.StageKindEvaluationDisplay:
		return s.reviews.EvaluationsReceived(ctx, scope.activity, scope.viewer)
	case models.StageKindGradeDisplay:
		_, ok, err := s.reviews.ActivityGrade(ctx, scope.activity, scope.viewer.Workgroup.ID)
		return ok, err
	default:
		return true, nil
	}
}

func (s *stageService) stateItems(ctx context.Context, scope *stageScope) ([]dto.StageStateItem, error) {
	items := make([]dto.StageStateItem, 0, len(scope.activity.Stages))
	for i := range scope.activity.Stages {
		stage := &scope.activity.Stages[i]
		state, err := s.stageState(ctx, scope, stage)
		if err != nil {
			return nil, err
		}
		items = append(items, dto.StageStateItem{
			ActivityID: scope.activity.ContentID,
			StageID:    stage.ID,
			State:      state,
		})
	}
	return items, nil
}

// complete sets the local completed flag and publishes the completion for the viewer.
func (s *stageService) complete(ctx context.Context, scope *stageScope, stage *models.Stage) error {
	if err := s.states.MarkCompleted(ctx, scope.key(stage.ID), scope.now); err != nil {
		return err
	}
	scope.markCompleted(stage.ID)
	return s.completions.Publish(ctx, scope.courseID, scope.activity.ContentID, stage.ID, scope.viewer.UserID)
}

func (s *stageService) progress(ctx context.Context, scope *stageScope, stage *models.Stage, state models.StageState) {
	s.emitter.Emit(ctx, events.Event{
		Name:      events.Progress,
		UserID:    scope.viewer.UserID,
		CourseID:  scope.courseID,
		ContentID: scope.activity.ContentID,
		Payload: map[string]any{
			"stage": stage.ID,
			"state": string(state),
		},
	})
}

// View renders a stage. Visiting a stage the viewer can complete marks it visited; basic and display
// stages complete on first render.
func (s *stageService) View(ctx context.Context, req StageRequest) (dto.StageViewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "stages.view", trace.WithAttributes(stageAttrs(req)...))
	defer span.End()

	scope, stage, err := s.open(ctx, req)
	if err != nil {
		span.RecordError(err)
		return dto.StageViewResponse{}, err
	}
	if !AvailableToUser(scope.activity, stage, scope.viewer) {
		return dto.StageViewResponse{}, ErrStageUnavailable
	}

	canComplete, err := s.canMarkComplete(ctx, scope, stage)
	if err != nil {
		span.RecordError(err)
		return dto.StageViewResponse{}, err
	}

	if canComplete {
		stored := scope.stored(stage.ID)
		if !stored.Visited {
			if err := s.states.MarkVisited(ctx, scope.key(stage.ID), scope.now); err != nil {
				span.RecordError(err)
				return dto.StageViewResponse{}, err
			}
			scope.markVisited(stage.ID)
		}
		autoComplete := stage.Kind == models.StageKindBasic || stage.Kind.IsDisplay()
		if autoComplete && !stored.Completed {
			if err := s.complete(ctx, scope, stage); err != nil {
				span.RecordError(err)
				return dto.StageViewResponse{}, err
			}
		}
	}

	state, err := s.stageState(ctx, scope, stage)
	if err != nil {
		span.RecordError(err)
		return dto.StageViewResponse{}, err
	}

	view := dto.StageViewResponse{
		ActivityID:      scope.activity.ContentID,
		StageID:         stage.ID,
		Kind:            stage.Kind,
		DisplayName:     stage.DisplayName,
		Content:         stage.Content,
		OpenDate:        stage.OpenDate,
		CloseDate:       stage.CloseDate,
		IsOpen:          IsOpen(stage, scope.now),
		IsClosed:        IsClosed(stage, scope.viewer, scope.now),
		AvailableNow:    AvailableNow(stage, scope.viewer, scope.now),
		CanMarkComplete: canComplete,
		State:           state,
		WorkgroupID:     scope.viewer.Workgroup.ID,
		AdminGrader:     scope.viewer.AdminGrader,
		Resources:       dto.NewResourceResponses(stage.Resources),
		Submissions:     make([]dto.SubmissionSlotResponse, 0, len(stage.Submissions)),
		Questions:       dto.NewQuestionResponses(stage.Questions),
		Subjects:        make([]dto.ReviewSubjectResponse, 0),
	}

	if stage.Kind == models.StageKindSubmission {
		latest, err := s.tracker.Latest(ctx, scope.viewer.Workgroup.ID)
		if err != nil {
			span.RecordError(err)
			return dto.StageViewResponse{}, err
		}
		for _, slot := range stage.Submissions {
			entry := dto.SubmissionSlotResponse{UploadID: slot.UploadID, DisplayName: slot.DisplayName, Description: slot.Description}
			if current, ok := latest[slot.UploadID]; ok {
				response := dto.NewSubmissionResponse(current)
				entry.Current = &response
			}
			view.Submissions = append(view.Submissions, entry)
		}
	}

	if stage.Kind.IsReview() {
		subjects, err := s.reviews.Subjects(ctx, scope.activity, stage, scope.viewer)
		if err != nil {
			span.RecordError(err)
			return dto.StageViewResponse{}, err
		}
		for _, subject := range subjects {
			view.Subjects = append(view.Subjects, dto.ReviewSubjectResponse{ID: subject.ID, Kind: subject.Kind, Name: subject.Name})
		}
	}

	return view, nil
}

// MarkComplete handles the explicit completion of basic and completion stages.
func (s *stageService) MarkComplete(ctx context.Context, req StageRequest, payload dto.MarkCompleteRequest) (dto.ActionResult, error) {
	if payload.UserID != 0 && payload.UserID != req.UserID {
		return dto.ActionResult{}, ErrCannotMarkOther
	}

	ctx, span := s.tracer.Start(ctx, "stages.mark_complete", trace.WithAttributes(stageAttrs(req)...))
	defer span.End()

	scope, stage, err := s.open(ctx, req)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	if stage.Kind != models.StageKindBasic && stage.Kind != models.StageKindCompletion {
		return dto.ActionResult{}, ErrWrongStageKind
	}
	if err := CheckActionAllowed(scope.activity, stage, scope.viewer, scope.now); err != nil {
		return dto.ActionResult{}, err
	}
	canComplete, err := s.canMarkComplete(ctx, scope, stage)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	if !canComplete {
		return dto.ActionResult{}, ErrCannotMarkComplete
	}

	if err := s.complete(ctx, scope, stage); err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	s.progress(ctx, scope, stage, models.StageStateCompleted)

	states, err := s.stateItems(ctx, scope)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	return dto.ActionResult{Message: "Stage marked complete", States: states}, nil
}

// SubmitReview stores the viewer's answers about one subject and refreshes the stage.
func (s *stageService) SubmitReview(ctx context.Context, req StageRequest, payload dto.SubmitReviewRequest) (dto.ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "stages.submit_review", trace.WithAttributes(stageAttrs(req)...))
	defer span.End()

	scope, stage, err := s.open(ctx, req)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	if !stage.Kind.IsReview() {
		return dto.ActionResult{}, ErrWrongStageKind
	}
	if err := CheckActionAllowed(scope.activity, stage, scope.viewer, scope.now); err != nil {
		return dto.ActionResult{}, err
	}

	result, err := s.reviews.Submit(ctx, SubmitReviewInput{
		CourseID:  req.CourseID,
		Activity:  scope.activity,
		Stage:     stage,
		Viewer:    scope.viewer,
		SubjectID: payload.SubjectID(stage.Kind),
		Answers:   models.ReviewAnswers(payload.Answers),
	})
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}

	if !scope.stored(stage.ID).Visited {
		if err := s.states.MarkVisited(ctx, scope.key(stage.ID), scope.now); err != nil {
			span.RecordError(err)
			return dto.ActionResult{}, err
		}
		scope.markVisited(stage.ID)
	}

	state, err := s.stageState(ctx, scope, stage)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	if state == models.StageStateCompleted {
		if err := s.completions.Publish(ctx, req.CourseID, scope.activity.ContentID, stage.ID, req.UserID); err != nil {
			span.RecordError(err)
			return dto.ActionResult{}, err
		}
	}
	s.progress(ctx, scope, stage, state)

	states, err := s.stateItems(ctx, scope)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}

	data := map[string]any{
		"created": result.Created,
		"updated": result.Updated,
		"deleted": result.Deleted,
	}
	if result.Grade != nil {
		data["grade"] = *result.Grade
	}
	return dto.ActionResult{Message: "Thanks for your feedback", States: states, Data: data}, nil
}

// Upload records every posted file against its slot.
func (s *stageService) Upload(ctx context.Context, req StageRequest, files []UploadFile) (dto.ActionResult, error) {
	if len(files) == 0 {
		return dto.ActionResult{}, ErrNoFiles
	}

	ctx, span := s.tracer.Start(ctx, "stages.upload", trace.WithAttributes(stageAttrs(req)...))
	defer span.End()

	scope, stage, err := s.open(ctx, req)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	if stage.Kind != models.StageKindSubmission {
		return dto.ActionResult{}, ErrWrongStageKind
	}
	if err := CheckActionAllowed(scope.activity, stage, scope.viewer, scope.now); err != nil {
		return dto.ActionResult{}, err
	}
	declared := stage.UploadIDs()
	for _, file := range files {
		if !slices.Contains(declared, file.UploadID) {
			return dto.ActionResult{}, fmt.Errorf("%w: %s", ErrUnknownUpload, file.UploadID)
		}
	}

	uploaded := make([]dto.SubmissionResponse, 0, len(files))
	state := models.StageStateNotStarted
	for _, file := range files {
		result, err := s.tracker.Upload(ctx, UploadRequest{
			CourseID: req.CourseID,
			Activity: scope.activity,
			Stage:    stage,
			Viewer:   scope.viewer,
			UploadID: file.UploadID,
			Filename: file.Filename,
			Content:  file.Content,
		})
		if err != nil {
			span.RecordError(err)
			return dto.ActionResult{}, err
		}
		state = result.State
		response := dto.NewSubmissionResponse(result.Submission)
		if response.UploadID == "" {
			response.UploadID = file.UploadID
		}
		uploaded = append(uploaded, response)
	}
	s.progress(ctx, scope, stage, state)

	states, err := s.stateItems(ctx, scope)
	if err != nil {
		span.RecordError(err)
		return dto.ActionResult{}, err
	}
	return dto.ActionResult{Message: "Upload successful", States: states, Data: uploaded}, nil
}

func (s *stageService) feedbackScope(ctx context.Context, req StageRequest, kind models.StageKind) (*stageScope, *models.Stage, error) {
	scope, stage, err := s.open(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if stage.Kind != kind {
		return nil, nil, ErrWrongStageKind
	}
	if !AvailableToUser(scope.activity, stage, scope.viewer) {
		return nil, nil, ErrStageUnavailable
	}
	if scope.viewer.Workgroup.IsEmpty() {
		return nil, nil, ErrNotWorkgroupMember
	}
	return scope, stage, nil
}

// PeerFeedback returns the team evaluation answers the viewer received.
func (s *stageService) PeerFeedback(ctx context.Context, req StageRequest) ([]dto.AssessmentFeedbackResponse, error) {
	scope, stage, err := s.feedbackScope(ctx, req, models.StageKindEvaluationDisplay)
	if err != nil {
		return nil, err
	}
	return s.reviews.PeerFeedback(ctx, scope.activity, stage, scope.viewer)
}

// GroupFeedback returns the peer review answers the viewer's workgroup received.
func (s *stageService) GroupFeedback(ctx context.Context, req StageRequest) ([]dto.AssessmentFeedbackResponse, error) {
	scope, stage, err := s.feedbackScope(ctx, req, models.StageKindGradeDisplay)
	if err != nil {
		return nil, err
	}
	return s.reviews.GroupFeedback(ctx, scope.activity, stage, scope.viewer)
}

// OtherSubmissions lists the deliverables of a workgroup the viewer reviews.
func (s *stageService) OtherSubmissions(ctx context.Context, req StageRequest, workgroupID int64) ([]dto.SubmissionResponse, error) {
	if workgroupID == 0 {
		return nil, ErrReviewSubjectRequired
	}
	scope, stage, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	if stage.Kind != models.StageKindPeerReview {
		return nil, ErrWrongStageKind
	}
	if !AvailableToUser(scope.activity, stage, scope.viewer) {
		return nil, ErrStageUnavailable
	}

	subjects, err := s.reviews.Subjects(ctx, scope.activity, stage, scope.viewer)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(subjects, func(subject ReviewSubject) bool { return subject.ID == workgroupID }) {
		return nil, ErrInvalidReviewSubject
	}
	return s.tracker.Links(ctx, scope.activity, workgroupID)
}

// Navigator lists every activity of a project with the viewer's stage states and remote completions.
func (s *stageService) Navigator(ctx context.Context, userID int64, courseID, projectID string) (dto.NavigatorResponse, error) {
	ctx, span := s.tracer.Start(ctx, "stages.navigator", trace.WithAttributes(
		attribute.Int64("stage.user_id", userID),
		attribute.String("stage.course_id", courseID),
		attribute.String("stage.project_id", projectID),
	))
	defer span.End()

	project, err := s.catalog.Project(ctx, courseID, projectID)
	if err != nil {
		span.RecordError(err)
		return dto.NavigatorResponse{}, err
	}
	viewer, err := s.access.Viewer(ctx, userID, courseID)
	if err != nil {
		span.RecordError(err)
		return dto.NavigatorResponse{}, err
	}

	remote := make(map[string]struct{})
	for completion, err := range s.api.Completions(ctx, courseID, projectapi.CompletionFilter{UserIDs: []int64{userID}}) {
		if err != nil {
			span.RecordError(err)
			return dto.NavigatorResponse{}, err
		}
		stage := ""
		if completion.Stage != nil {
			stage = *completion.Stage
		}
		remote[completionKey(completion.ContentID, stage)] = struct{}{}
	}

	response := dto.NavigatorResponse{
		ProjectID:   project.ID,
		DisplayName: project.DisplayName,
		Views:       project.Navigator.Views,
		WorkgroupID: viewer.Workgroup.ID,
		Activities:  make([]dto.NavigatorActivityResponse, 0, len(project.Activities)),
	}
	if response.Views == nil {
		response.Views = []string{}
	}

	for i := range project.Activities {
		activity := &project.Activities[i]
		scope, err := s.scopeFor(ctx, userID, courseID, project, activity, &viewer)
		if err != nil {
			span.RecordError(err)
			return dto.NavigatorResponse{}, err
		}

		_, activityDone := remote[completionKey(activity.ContentID, "")]
		entry := dto.NavigatorActivityResponse{
			ContentID:   activity.ContentID,
			DisplayName: activity.DisplayName,
			Weight:      activity.Weight,
			Completed:   activityDone,
			Stages:      make([]dto.NavigatorStageResponse, 0, len(activity.Stages)),
		}
		for j := range activity.Stages {
			stage := &activity.Stages[j]
			state, err := s.stageState(ctx, scope, stage)
			if err != nil {
				span.RecordError(err)
				return dto.NavigatorResponse{}, err
			}
			_, done := remote[completionKey(activity.ContentID, stage.ID)]
			entry.Stages = append(entry.Stages, dto.NavigatorStageResponse{
				StageID:         stage.ID,
				Kind:            stage.Kind,
				DisplayName:     stage.DisplayName,
				OpenDate:        stage.OpenDate,
				CloseDate:       stage.CloseDate,
				AvailableNow:    AvailableNow(stage, viewer, scope.now),
				AvailableToUser: AvailableToUser(activity, stage, viewer),
				State:           state,
				RemoteCompleted: done,
			})
		}
		response.Activities = append(response.Activities, entry)
	}
	return response, nil
}

func completionKey(contentID, stageID string) string {
	return strings.Join([]string{contentID, stageID}, "|")
}

func stageAttrs(req StageRequest) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("stage.user_id", req.UserID),
		attribute.String("stage.course_id", req.CourseID),
		attribute.String("stage.activity_id", req.ActivityID),
		attribute.String("stage.stage_id", req.StageID),
	}
}
