package dto

import (
	"time"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// StageRef addresses a stage through the route parameters.
type StageRef struct {
	CourseID   string `validate:"required"`
	ProjectID  string `validate:"required"`
	ActivityID string `validate:"required"`
	StageID    string `validate:"required"`
}

// StageStateItem reports the state of one stage after an action.
type StageStateItem struct {
	ActivityID string            `json:"activity_id"`
	StageID    string            `json:"stage_id"`
	State      models.StageState `json:"state"`
}

// SubmitReviewRequest carries a reviewer's answers for one subject. PeerID names a teammate for
// team evaluations, GroupID a workgroup for peer reviews.
type SubmitReviewRequest struct {
	PeerID  int64             `json:"peer_id" validate:"omitempty,gt=0"`
	GroupID int64             `json:"group_id" validate:"omitempty,gt=0"`
	Answers map[string]string `json:"answers" validate:"required"`
}

// SubjectID returns whichever subject the request names.
func (r SubmitReviewRequest) SubjectID(kind models.StageKind) int64 {
	if kind == models.StageKindTeamEvaluation {
		return r.PeerID
	}
	return r.GroupID
}

// MarkCompleteRequest optionally names the user being marked; it must be the caller.
type MarkCompleteRequest struct {
	UserID int64 `json:"user_id" validate:"omitempty,gt=0"`
}

// ReviewSubjectResponse is a teammate or workgroup a reviewer answers questions about.
type ReviewSubjectResponse struct {
	ID   int64  `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// QuestionResponse is a review question as shown to the reviewer.
type QuestionResponse struct {
	ID         string `json:"question_id"`
	Title      string `json:"title"`
	Required   bool   `json:"required"`
	Grade      bool   `json:"grade"`
	SingleLine bool   `json:"single_line"`
	Content    string `json:"content"`
}

// ResourceResponse is a reading attached to a stage.
type ResourceResponse struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	URL             string `json:"url"`
	GradingCriteria bool   `json:"grading_criteria"`
}

// UploaderResponse describes who uploaded a submission.
type UploaderResponse struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Organizations []string `json:"organizations"`
}

// SubmissionResponse is the latest upload for a slot.
type SubmissionResponse struct {
	UploadID string            `json:"upload_id"`
	Title    string            `json:"title,omitempty"`
	URL      string            `json:"document_url"`
	Filename string            `json:"document_filename"`
	MimeType string            `json:"mime_type,omitempty"`
	Modified time.Time         `json:"modified"`
	Uploader *UploaderResponse `json:"uploader,omitempty"`
}

// SubmissionSlotResponse is a declared upload slot and what currently fills it.
type SubmissionSlotResponse struct {
	UploadID    string              `json:"upload_id"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description,omitempty"`
	Current     *SubmissionResponse `json:"current,omitempty"`
}

// AssessmentFeedbackResponse collects the answers received for one question.
type AssessmentFeedbackResponse struct {
	QuestionID string   `json:"question_id"`
	Title      string   `json:"title,omitempty"`
	Answers    []string `json:"answers"`
	Mean       *float64 `json:"mean,omitempty"`
}

// StageViewResponse is everything a client needs to render a stage.
type StageViewResponse struct {
	ActivityID      string                   `json:"activity_id"`
	StageID         string                   `json:"stage_id"`
	Kind            models.StageKind         `json:"kind"`
	DisplayName     string                   `json:"display_name"`
	Content         string                   `json:"content,omitempty"`
	OpenDate        *time.Time               `json:"open_date,omitempty"`
	CloseDate       *time.Time               `json:"close_date,omitempty"`
	IsOpen          bool                     `json:"is_open"`
	IsClosed        bool                     `json:"is_closed"`
	AvailableNow    bool                     `json:"available_now"`
	CanMarkComplete bool                     `json:"can_mark_complete"`
	State           models.StageState        `json:"state"`
	WorkgroupID     int64                    `json:"workgroup_id"`
	AdminGrader     bool                     `json:"admin_grader"`
	Resources       []ResourceResponse       `json:"resources"`
	Submissions     []SubmissionSlotResponse `json:"submissions"`
	Questions       []QuestionResponse       `json:"questions"`
	Subjects        []ReviewSubjectResponse  `json:"subjects"`
}

// NavigatorStageResponse is one row of the project navigator.
type NavigatorStageResponse struct {
	StageID         string            `json:"stage_id"`
	Kind            models.StageKind  `json:"kind"`
	DisplayName     string            `json:"display_name"`
	OpenDate        *time.Time        `json:"open_date,omitempty"`
	CloseDate       *time.Time        `json:"close_date,omitempty"`
	AvailableNow    bool              `json:"available_now"`
	AvailableToUser bool              `json:"available_to_user"`
	State           models.StageState `json:"state"`
	RemoteCompleted bool              `json:"remote_completed"`
}

// NavigatorActivityResponse groups navigator rows by activity.
type NavigatorActivityResponse struct {
	ContentID   string                   `json:"content_id"`
	DisplayName string                   `json:"display_name"`
	Weight      float64                  `json:"weight"`
	Completed   bool                     `json:"completed"`
	Stages      []NavigatorStageResponse `json:"stages"`
}

// NavigatorResponse is the project overview for the current user.
type NavigatorResponse struct {
	ProjectID   string                      `json:"project_id"`
	DisplayName string                      `json:"display_name"`
	Views       []string                    `json:"views"`
	WorkgroupID int64                       `json:"workgroup_id"`
	Activities  []NavigatorActivityResponse `json:"activities"`
}

// ActionResult is what a stage action returns; handlers wrap it in the result envelope.
type ActionResult struct {
	Message string
	States  []StageStateItem
	Data    any
}

// NewQuestionResponses maps stage questions.
func NewQuestionResponses(questions []models.Question) []QuestionResponse {
	out := make([]QuestionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, QuestionResponse{
			ID:         q.ID,
			Title:      q.Title,
			Required:   q.Required,
			Grade:      q.Grade,
			SingleLine: q.SingleLine,
			Content:    q.Content,
		})
	}
	return out
}

// NewResourceResponses maps stage resources.
func NewResourceResponses(resources []models.Resource) []ResourceResponse {
	out := make([]ResourceResponse, 0, len(resources))
	for _, r := range resources {
		out = append(out, ResourceResponse{
			Title:           r.Title,
			Description:     r.Description,
			URL:             r.URL,
			GradingCriteria: r.GradingCriteria,
		})
	}
	return out
}

// NewSubmissionResponse maps a stored submission.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		UploadID: submission.UploadID,
		URL:      submission.DocumentURL,
		Filename: submission.DocumentFilename,
		MimeType: submission.MimeType,
		Modified: submission.Modified,
	}
}
