package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/events"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/observability"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
)

const (
	SubjectKindUser      = "user"
	SubjectKindWorkgroup = "workgroup"

	reviewAssignmentType = "reviewassignment"
)

// ReviewSubject is a teammate or a workgroup a reviewer answers questions about.
type ReviewSubject struct {
	ID   int64
	Kind string
	Name string
}

// SubmitReviewInput is one reviewer's answers about one subject.
type SubmitReviewInput struct {
	CourseID  string
	Activity  *models.Activity
	Stage     *models.Stage
	Viewer    Viewer
	SubjectID int64
	Answers   models.ReviewAnswers
}

// SubmitReviewResult reports what a review submission changed.
type SubmitReviewResult struct {
	Created int
	Updated int
	Deleted int
	// Grade is set when a peer review submission produced an activity grade for the subject.
	Grade *float64
}

// ReviewEngine aggregates review answers into completion status and activity grades.
type ReviewEngine interface {
	Subjects(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) ([]ReviewSubject, error)
	Status(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) (models.StageState, error)
	Submit(ctx context.Context, input SubmitReviewInput) (SubmitReviewResult, error)
	ActivityGrade(ctx context.Context, activity *models.Activity, workgroupID int64) (float64, bool, error)
	EvaluationsReceived(ctx context.Context, activity *models.Activity, viewer Viewer) (bool, error)
	PeerFeedback(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) ([]dto.AssessmentFeedbackResponse, error)
	GroupFeedback(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) ([]dto.AssessmentFeedbackResponse, error)
}

type reviewEngine struct {
	api           ProjectAPI
	completions   CompletionPublisher
	emitter       events.Emitter
	notifications NotificationService
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewReviewEngine constructs the review engine.
func NewReviewEngine(api ProjectAPI, completions CompletionPublisher, emitter events.Emitter, notifications NotificationService, logger zerolog.Logger) ReviewEngine {
	return &reviewEngine{
		api:           api,
		completions:   completions,
		emitter:       emitter,
		notifications: notifications,
		logger:        logger.With().Str("component", "review_engine").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-groupwork/internal/service/review"),
	}
}

// Subjects lists who the viewer reviews in a stage: teammates for team evaluations, other workgroups
// for peer reviews. In TA review mode the only peer review subject is the workgroup under review.
func (e *reviewEngine) Subjects(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) ([]ReviewSubject, error) {
	switch stage.Kind {
	case models.StageKindTeamEvaluation:
		teammates := viewer.Workgroup.Teammates(viewer.UserID)
		subjects := make([]ReviewSubject, 0, len(teammates))
		for _, member := range teammates {
			subjects = append(subjects, ReviewSubject{ID: member.ID, Kind: SubjectKindUser, Name: member.Username})
		}
		return subjects, nil
	case models.StageKindPeerReview:
		if viewer.AdminGrader {
			if viewer.Workgroup.IsEmpty() {
				return []ReviewSubject{}, nil
			}
			return []ReviewSubject{workgroupSubject(viewer.Workgroup)}, nil
		}
		return e.assignedWorkgroups(ctx, activity, viewer)
	default:
		return nil, ErrWrongStageKind
	}
}

func (e *reviewEngine) assignedWorkgroups(ctx context.Context, activity *models.Activity, viewer Viewer) ([]ReviewSubject, error) {
	groups, err := e.api.GetUserReviewAssignmentGroups(ctx, viewer.UserID, viewer.CourseID, activity.ContentID)
	if err != nil {
		return nil, err
	}

	seen := map[int64]struct{}{}
	subjects := make([]ReviewSubject, 0)
	for _, group := range groups {
		workgroups, err := e.api.GetReviewAssignmentWorkgroups(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		for _, wg := range workgroups {
			if wg.ID == 0 || wg.ID == viewer.Workgroup.ID {
				continue
			}
			if _, dup := seen[wg.ID]; dup {
				continue
			}
			seen[wg.ID] = struct{}{}
			subjects = append(subjects, workgroupSubject(wg))
		}
	}
	slices.SortFunc(subjects, func(a, b ReviewSubject) int { return cmp.Compare(a.ID, b.ID) })
	return subjects, nil
}

func workgroupSubject(wg models.Workgroup) ReviewSubject {
	name := wg.Name
	if name == "" {
		name = fmt.Sprintf("Group %d", wg.ID)
	}
	return ReviewSubject{ID: wg.ID, Kind: SubjectKindWorkgroup, Name: name}
}

func reviewKey(subject int64, question string) string {
	return strconv.FormatInt(subject, 10) + ":" + question
}

// Status maps the viewer's answers over subjects × required questions.
func (e *reviewEngine) Status(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) (models.StageState, error) {
	subjects, err := e.Subjects(ctx, activity, stage, viewer)
	if err != nil {
		return "", err
	}

	required := make(map[string]struct{})
	for _, subject := range subjects {
		for _, q := range stage.RequiredQuestionIDs() {
			required[reviewKey(subject.ID, q)] = struct{}{}
		}
	}
	if len(required) == 0 {
		return models.StageStateCompleted, nil
	}

	performed := make(map[string]struct{})
	switch stage.Kind {
	case models.StageKindTeamEvaluation:
		items, err := e.api.GetReviewItems(ctx, projectapi.PeerReviews, viewer.Workgroup.ID, activity.ContentID)
		if err != nil {
			return "", err
		}
		for _, item := range items {
			if item.ReviewerID() == viewer.UserID && item.HasAnswer() {
				performed[reviewKey(item.PeerID(), item.Question)] = struct{}{}
			}
		}
	case models.StageKindPeerReview:
		for _, subject := range subjects {
			items, err := e.api.GetReviewItems(ctx, projectapi.WorkgroupReviews, subject.ID, activity.ContentID)
			if err != nil {
				return "", err
			}
			for _, item := range items {
				if item.ReviewerID() == viewer.UserID && item.HasAnswer() {
					performed[reviewKey(subject.ID, item.Question)] = struct{}{}
				}
			}
		}
	}

	return ReviewStatus(required, performed), nil
}

// Submit applies update-or-create-or-delete for every answered question the stage knows about.
// Unmentioned questions and unchanged answers are left alone.
func (e *reviewEngine) Submit(ctx context.Context, input SubmitReviewInput) (SubmitReviewResult, error) {
	stage := input.Stage
	if !stage.Kind.IsReview() {
		return SubmitReviewResult{}, ErrWrongStageKind
	}
	if input.SubjectID == 0 {
		return SubmitReviewResult{}, ErrReviewSubjectRequired
	}

	attrs := []attribute.KeyValue{
		attribute.String("review.stage_id", stage.ID),
		attribute.String("review.kind", string(stage.Kind)),
		attribute.Int64("review.subject_id", input.SubjectID),
	}
	ctx, span := e.tracer.Start(ctx, "reviews.submit", trace.WithAttributes(attrs...))
	defer span.End()

	subjects, err := e.Subjects(ctx, input.Activity, stage, input.Viewer)
	if err != nil {
		span.RecordError(err)
		return SubmitReviewResult{}, err
	}
	if !slices.ContainsFunc(subjects, func(s ReviewSubject) bool { return s.ID == input.SubjectID }) {
		return SubmitReviewResult{}, ErrInvalidReviewSubject
	}

	kind, existing, err := e.existingItems(ctx, input)
	if err != nil {
		span.RecordError(err)
		return SubmitReviewResult{}, err
	}

	questions := make([]string, 0, len(input.Answers))
	for q := range input.Answers {
		if _, ok := stage.Question(q); ok {
			questions = append(questions, q)
		}
	}
	slices.Sort(questions)

	var result SubmitReviewResult
	for _, q := range questions {
		answer := input.Answers[q]
		empty := strings.TrimSpace(answer) == ""
		current, found := existing[q]

		switch {
		case found && empty:
			if err := e.api.DeleteReviewItem(ctx, kind, current.ID); err != nil {
				span.RecordError(err)
				return result, err
			}
			result.Deleted++
		case found && current.Answer != answer:
			current.Answer = answer
			if _, err := e.api.UpdateReviewItem(ctx, kind, current.ID, current); err != nil {
				span.RecordError(err)
				return result, err
			}
			result.Updated++
		case !found && !empty:
			if _, err := e.api.CreateReviewItem(ctx, kind, e.newItem(input, q, answer)); err != nil {
				span.RecordError(err)
				return result, err
			}
			result.Created++
		}
	}

	if stage.Kind != models.StageKindPeerReview {
		return result, nil
	}

	for _, q := range questions {
		question, _ := stage.Question(q)
		answer := input.Answers[q]
		if !question.Grade || strings.TrimSpace(answer) == "" {
			continue
		}
		e.emitter.Emit(ctx, events.Event{
			Name:      events.GradeQuestionScore,
			UserID:    input.Viewer.UserID,
			CourseID:  input.CourseID,
			ContentID: input.Activity.ContentID,
			Payload: map[string]any{
				"question":        q,
				"answer":          answer,
				"reviewer_id":     input.Viewer.UserID,
				"is_admin_grader": input.Viewer.AdminGrader,
				"group_id":        input.SubjectID,
				"content_id":      input.Activity.ContentID,
			},
		})
	}

	grade, ok, err := e.ActivityGrade(ctx, input.Activity, input.SubjectID)
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	if ok {
		if err := e.postGrade(ctx, input.CourseID, input.Activity, input.SubjectID, grade); err != nil {
			span.RecordError(err)
			return result, err
		}
		result.Grade = &grade
	}
	return result, nil
}

func (e *reviewEngine) existingItems(ctx context.Context, input SubmitReviewInput) (projectapi.ReviewKind, map[string]models.ReviewItem, error) {
	existing := make(map[string]models.ReviewItem)
	viewer := input.Viewer

	if input.Stage.Kind == models.StageKindTeamEvaluation {
		items, err := e.api.GetReviewItems(ctx, projectapi.PeerReviews, viewer.Workgroup.ID, input.Activity.ContentID)
		if err != nil {
			return "", nil, err
		}
		for _, item := range items {
			if item.ReviewerID() == viewer.UserID && item.PeerID() == input.SubjectID {
				existing[item.Question] = item
			}
		}
		return projectapi.PeerReviews, existing, nil
	}

	items, err := e.api.GetReviewItems(ctx, projectapi.WorkgroupReviews, input.SubjectID, input.Activity.ContentID)
	if err != nil {
		return "", nil, err
	}
	for _, item := range items {
		if item.ReviewerID() == viewer.UserID {
			existing[item.Question] = item
		}
	}
	return projectapi.WorkgroupReviews, existing, nil
}

func (e *reviewEngine) newItem(input SubmitReviewInput, question, answer string) models.ReviewItem {
	item := models.ReviewItem{
		Reviewer:  models.UserRef(input.Viewer.UserID),
		Question:  question,
		Answer:    answer,
		ContentID: input.Activity.ContentID,
	}
	if input.Stage.Kind == models.StageKindTeamEvaluation {
		peer := models.UserRef(input.SubjectID)
		workgroup := input.Viewer.Workgroup.ID
		item.User = &peer
		item.Workgroup = &workgroup
		return item
	}
	workgroup := input.SubjectID
	item.Workgroup = &workgroup
	return item
}

// ActivityGrade computes the grade of a workgroup from the review items stored against it. Review
// items are read fresh on every call.
func (e *reviewEngine) ActivityGrade(ctx context.Context, activity *models.Activity, workgroupID int64) (float64, bool, error) {
	questions := activity.GradeQuestionIDs()
	if len(questions) == 0 || workgroupID == 0 {
		return 0, false, nil
	}

	reviewers, err := e.assignedReviewers(ctx, activity, workgroupID)
	if err != nil {
		return 0, false, err
	}
	items, err := e.api.GetReviewItems(ctx, projectapi.WorkgroupReviews, workgroupID, activity.ContentID)
	if err != nil {
		return 0, false, err
	}

	grade, ok := CalculateGrade(GradeInput{
		GradeQuestions: questions,
		Reviewers:      reviewers,
		Items:          items,
	})
	return grade, ok, nil
}

func (e *reviewEngine) assignedReviewers(ctx context.Context, activity *models.Activity, workgroupID int64) ([]int64, error) {
	groups, err := e.api.GetWorkgroupReviewAssignmentGroups(ctx, workgroupID)
	if err != nil {
		return nil, err
	}

	reviewers := make([]int64, 0)
	for _, group := range groups {
		if group.Type != "" && group.Type != reviewAssignmentType {
			continue
		}
		if group.Data.XBlockID != activity.ContentID {
			continue
		}
		users, err := e.api.GetReviewAssignmentUsers(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			reviewers = append(reviewers, user.ID)
		}
	}
	return reviewers, nil
}

func (e *reviewEngine) postGrade(ctx context.Context, courseID string, activity *models.Activity, workgroupID int64, grade float64) error {
	err := e.api.PostGrade(ctx, workgroupID, models.GroupGrade{
		CourseID:  courseID,
		ContentID: activity.ContentID,
		Grade:     grade,
		MaxGrade:  activity.Weight,
	})
	if err != nil {
		observability.GradesPosted().WithLabelValues("error").Inc()
		return err
	}
	observability.GradesPosted().WithLabelValues("success").Inc()

	e.emitter.Emit(ctx, events.Event{
		Name:      events.FinalGrade,
		CourseID:  courseID,
		ContentID: activity.ContentID,
		Payload: map[string]any{
			"grade_value": grade,
			"group_id":    workgroupID,
			"content_id":  activity.ContentID,
		},
	})
	e.emitter.Emit(ctx, events.Event{
		Name:      events.Grade,
		CourseID:  courseID,
		ContentID: activity.ContentID,
		Payload: map[string]any{
			"value":     grade,
			"max_value": activity.Weight,
		},
	})

	workgroup, err := e.api.GetWorkgroup(ctx, workgroupID)
	if err != nil {
		return err
	}
	if err := e.completions.PublishForMembers(ctx, courseID, activity.ContentID, "", *workgroup); err != nil {
		return err
	}

	e.notifications.GradesPosted(ctx, courseID, activity, workgroupID, workgroup.UserIDs())
	e.logger.Info().Int64("workgroup_id", workgroupID).Str("content_id", activity.ContentID).Float64("grade", grade).Msg("activity grade posted")
	return nil
}

// EvaluationsReceived reports whether every teammate answered every required team evaluation
// question about the viewer.
func (e *reviewEngine) EvaluationsReceived(ctx context.Context, activity *models.Activity, viewer Viewer) (bool, error) {
	questions := activity.RequiredQuestionIDs(models.StageKindTeamEvaluation)
	teammates := viewer.Workgroup.Teammates(viewer.UserID)

	required := make(map[string]struct{}, len(questions)*len(teammates))
	for _, member := range teammates {
		for _, q := range questions {
			required[reviewKey(member.ID, q)] = struct{}{}
		}
	}
	if len(required) == 0 {
		return true, nil
	}

	items, err := e.api.GetReviewItems(ctx, projectapi.PeerReviews, viewer.Workgroup.ID, activity.ContentID)
	if err != nil {
		return false, err
	}
	performed := make(map[string]struct{})
	for _, item := range items {
		if item.PeerID() == viewer.UserID && item.HasAnswer() {
			performed[reviewKey(item.ReviewerID(), item.Question)] = struct{}{}
		}
	}

	return ReviewStatus(required, performed) == models.StageStateCompleted, nil
}

// PeerFeedback returns what teammates answered about the viewer, without naming reviewers.
func (e *reviewEngine) PeerFeedback(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) ([]dto.AssessmentFeedbackResponse, error) {
	items, err := e.api.GetReviewItems(ctx, projectapi.PeerReviews, viewer.Workgroup.ID, activity.ContentID)
	if err != nil {
		return nil, err
	}
	about := make([]models.ReviewItem, 0, len(items))
	for _, item := range items {
		if item.PeerID() == viewer.UserID {
			about = append(about, item)
		}
	}
	return collectFeedback(activity, stage, about), nil
}

// GroupFeedback returns what other workgroups answered about the viewer's workgroup.
func (e *reviewEngine) GroupFeedback(ctx context.Context, activity *models.Activity, stage *models.Stage, viewer Viewer) ([]dto.AssessmentFeedbackResponse, error) {
	items, err := e.api.GetReviewItems(ctx, projectapi.WorkgroupReviews, viewer.Workgroup.ID, activity.ContentID)
	if err != nil {
		return nil, err
	}
	return collectFeedback(activity, stage, items), nil
}

func collectFeedback(activity *models.Activity, stage *models.Stage, items []models.ReviewItem) []dto.AssessmentFeedbackResponse {
	feedback := make([]dto.AssessmentFeedbackResponse, 0, len(stage.Assessments))
	for _, assessment := range stage.Assessments {
		entry := dto.AssessmentFeedbackResponse{
			QuestionID: assessment.QuestionID,
			Title:      assessment.Title,
			Answers:    make([]string, 0),
		}
		if entry.Title == "" {
			entry.Title = questionTitle(activity, assessment.QuestionID)
		}

		values := make([]float64, 0)
		for _, item := range items {
			if item.Question != assessment.QuestionID || !item.HasAnswer() {
				continue
			}
			entry.Answers = append(entry.Answers, item.Answer)
			if value, err := strconv.ParseFloat(strings.TrimSpace(item.Answer), 64); err == nil && !math.IsNaN(value) && !math.IsInf(value, 0) {
				values = append(values, value)
			}
		}
		if assessment.ShowMean && len(values) > 0 {
			m := mean(values)
			entry.Mean = &m
		}
		feedback = append(feedback, entry)
	}
	return feedback
}

func questionTitle(activity *models.Activity, questionID string) string {
	for i := range activity.Stages {
		if q, ok := activity.Stages[i].Question(questionID); ok {
			return q.Title
		}
	}
	return ""
}
