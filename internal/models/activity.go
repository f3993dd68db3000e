package models

import "time"

// StageKind identifies one of the stage variants an activity pipeline is built from.
type StageKind string

const (
	StageKindBasic             StageKind = "basic"
	StageKindCompletion        StageKind = "completion"
	StageKindSubmission        StageKind = "submission"
	StageKindTeamEvaluation    StageKind = "team_evaluation"
	StageKindPeerReview        StageKind = "peer_review"
	StageKindEvaluationDisplay StageKind = "evaluation_display"
	StageKindGradeDisplay      StageKind = "grade_display"
)

// StageKinds lists every supported stage kind in authoring order.
var StageKinds = []StageKind{
	StageKindBasic,
	StageKindCompletion,
	StageKindSubmission,
	StageKindTeamEvaluation,
	StageKindPeerReview,
	StageKindEvaluationDisplay,
	StageKindGradeDisplay,
}

// IsReview reports whether the stage collects review answers.
func (k StageKind) IsReview() bool {
	return k == StageKindTeamEvaluation || k == StageKindPeerReview
}

// IsDisplay reports whether the stage only shows received feedback.
func (k StageKind) IsDisplay() bool {
	return k == StageKindEvaluationDisplay || k == StageKindGradeDisplay
}

// Valid reports whether the kind is known.
func (k StageKind) Valid() bool {
	for _, known := range StageKinds {
		if k == known {
			return true
		}
	}
	return false
}

// StageState is the per-user progress of a stage.
type StageState string

const (
	StageStateNotStarted StageState = "not_started"
	StageStateIncomplete StageState = "incomplete"
	StageStateCompleted  StageState = "completed"
)

// Project is the root of the content tree.
type Project struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	DisplayName string     `json:"display_name"`
	Activities  []Activity `json:"activities"`
	Navigator   Navigator  `json:"navigator"`
}

// Navigator configures the project navigation view block.
type Navigator struct {
	DisplayName string   `json:"display_name"`
	Views       []string `json:"views"`
}

// Activity finds an activity by content id.
func (p *Project) Activity(contentID string) (*Activity, bool) {
	for i := range p.Activities {
		if p.Activities[i].ContentID == contentID {
			return &p.Activities[i], true
		}
	}
	return nil, false
}

// Activity is a gradable unit owning an ordered stage pipeline.
type Activity struct {
	ContentID                 string  `json:"content_id"`
	DisplayName               string  `json:"display_name"`
	Weight                    float64 `json:"weight"`
	GroupReviewsRequiredCount int     `json:"group_reviews_required_count"`
	UserReviewCount           int     `json:"user_review_count"`
	Stages                    []Stage `json:"stages"`
}

// TAGraded reports whether only admin graders may grade the activity.
func (a *Activity) TAGraded() bool {
	return a.GroupReviewsRequiredCount == 0
}

// Stage finds a stage by id.
func (a *Activity) Stage(id string) (*Stage, bool) {
	for i := range a.Stages {
		if a.Stages[i].ID == id {
			return &a.Stages[i], true
		}
	}
	return nil, false
}

// GradeQuestionIDs returns the graded question ids of every peer review stage, in authoring order.
func (a *Activity) GradeQuestionIDs() []string {
	ids := make([]string, 0)
	seen := map[string]struct{}{}
	for _, stage := range a.Stages {
		if stage.Kind != StageKindPeerReview {
			continue
		}
		for _, q := range stage.Questions {
			if !q.Grade {
				continue
			}
			if _, ok := seen[q.ID]; ok {
				continue
			}
			seen[q.ID] = struct{}{}
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// RequiredQuestionIDs returns the required question ids across all stages of the given kind.
func (a *Activity) RequiredQuestionIDs(kind StageKind) []string {
	ids := make([]string, 0)
	for _, stage := range a.Stages {
		if stage.Kind == kind {
			ids = append(ids, stage.RequiredQuestionIDs()...)
		}
	}
	return ids
}

// Stage is one step of an activity pipeline.
type Stage struct {
	ID          string           `json:"id"`
	Kind        StageKind        `json:"kind"`
	DisplayName string           `json:"display_name"`
	OpenDate    *time.Time       `json:"open_date,omitempty"`
	CloseDate   *time.Time       `json:"close_date,omitempty"`
	Content     string           `json:"content,omitempty"`
	Resources   []Resource       `json:"resources,omitempty"`
	Submissions []SubmissionSlot `json:"submissions,omitempty"`
	Questions   []Question       `json:"questions,omitempty"`
	Assessments []Assessment     `json:"assessments,omitempty"`
}

// AllowAdminGraderAccess reports whether TA graders may use the stage.
func (s *Stage) AllowAdminGraderAccess() bool {
	return s.Kind == StageKindPeerReview
}

// RequiredQuestionIDs returns the ids of the stage's required questions.
func (s *Stage) RequiredQuestionIDs() []string {
	ids := make([]string, 0, len(s.Questions))
	for _, q := range s.Questions {
		if q.Required {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// UploadIDs returns the upload ids declared by the stage's submission components.
func (s *Stage) UploadIDs() []string {
	ids := make([]string, 0, len(s.Submissions))
	for _, sub := range s.Submissions {
		ids = append(ids, sub.UploadID)
	}
	return ids
}

// Question returns the stage question with the given id.
func (s *Stage) Question(id string) (*Question, bool) {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i], true
		}
	}
	return nil, false
}

// Question is a review question owned by a review stage.
type Question struct {
	ID         string `json:"question_id"`
	Title      string `json:"title"`
	Required   bool   `json:"required"`
	Grade      bool   `json:"grade"`
	SingleLine bool   `json:"single_line,omitempty"`
	Content    string `json:"content,omitempty"`
}

// Assessment shows the answers a display stage reports for one question.
type Assessment struct {
	QuestionID string `json:"question_id"`
	Title      string `json:"title,omitempty"`
	ShowMean   bool   `json:"show_mean,omitempty"`
}

// Resource is a reading or reference document attached to a stage.
type Resource struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	URL             string `json:"url"`
	GradingCriteria bool   `json:"grading_criteria,omitempty"`
}

// SubmissionSlot is a submission component owned by a submission stage.
type SubmissionSlot struct {
	UploadID    string `json:"upload_id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}
