package activityxml

import (
	"fmt"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

type validator struct {
	messages []models.ValidationMessage
}

func (v *validator) errorf(path, format string, args ...any) {
	v.messages = append(v.messages, models.ValidationMessage{
		Severity: models.ValidationError,
		Path:     path,
		Text:     fmt.Sprintf(format, args...),
	})
}

func (v *validator) warnf(path, format string, args ...any) {
	v.messages = append(v.messages, models.ValidationMessage{
		Severity: models.ValidationWarning,
		Path:     path,
		Text:     fmt.Sprintf(format, args...),
	})
}

// Validate reports authoring problems in a project. It never fails; callers decide whether
// error-severity messages block publishing.
func Validate(project models.Project) []models.ValidationMessage {
	v := &validator{messages: make([]models.ValidationMessage, 0)}

	if len(project.Activities) == 0 {
		v.errorf(project.ID, "project has no activities")
	}

	seenActivities := map[string]struct{}{}
	for _, activity := range project.Activities {
		path := activity.ContentID
		if activity.ContentID == "" {
			v.errorf(project.ID, "activity %q has no content id", activity.DisplayName)
		} else if _, dup := seenActivities[activity.ContentID]; dup {
			v.errorf(path, "duplicate activity content id")
		}
		seenActivities[activity.ContentID] = struct{}{}

		validateActivity(v, path, activity)
	}

	return v.messages
}

// HasErrors reports whether any message has error severity.
func HasErrors(messages []models.ValidationMessage) bool {
	for _, m := range messages {
		if m.Severity == models.ValidationError {
			return true
		}
	}
	return false
}

func validateActivity(v *validator, path string, activity models.Activity) {
	if activity.Weight < 0 {
		v.errorf(path, "weight must not be negative")
	}
	if activity.GroupReviewsRequiredCount < 0 {
		v.errorf(path, "group_reviews_required_count must not be negative")
	}
	if activity.UserReviewCount < 0 {
		v.errorf(path, "user_review_count must not be negative")
	}
	if len(activity.Stages) == 0 {
		v.warnf(path, "activity has no stages")
	}

	kinds := map[models.StageKind]bool{}
	questionsByKind := map[models.StageKind]map[string]struct{}{}
	seenStages := map[string]struct{}{}

	for _, stage := range activity.Stages {
		stagePath := path + "/" + stage.ID
		if _, dup := seenStages[stage.ID]; dup {
			v.errorf(stagePath, "duplicate stage id")
		}
		seenStages[stage.ID] = struct{}{}

		if !stage.Kind.Valid() {
			v.errorf(stagePath, "unknown stage kind %q", stage.Kind)
			continue
		}
		kinds[stage.Kind] = true

		if stage.OpenDate != nil && stage.CloseDate != nil && stage.OpenDate.After(*stage.CloseDate) {
			v.errorf(stagePath, "open date is after close date")
		}

		switch stage.Kind {
		case models.StageKindSubmission:
			if len(stage.Submissions) == 0 {
				v.errorf(stagePath, "submission stage requires at least one submission component")
			}
			uploads := map[string]struct{}{}
			for _, slot := range stage.Submissions {
				if slot.UploadID == "" {
					v.errorf(stagePath, "submission %q has no upload id", slot.DisplayName)
					continue
				}
				if _, dup := uploads[slot.UploadID]; dup {
					v.errorf(stagePath, "duplicate upload id %q", slot.UploadID)
				}
				uploads[slot.UploadID] = struct{}{}
			}
		case models.StageKindTeamEvaluation, models.StageKindPeerReview:
			if len(stage.Questions) == 0 {
				v.errorf(stagePath, "review stage requires at least one question")
			}
			if questionsByKind[stage.Kind] == nil {
				questionsByKind[stage.Kind] = map[string]struct{}{}
			}
			seen := map[string]struct{}{}
			for _, q := range stage.Questions {
				if q.ID == "" {
					v.errorf(stagePath, "question %q has no question id", q.Title)
					continue
				}
				if _, dup := seen[q.ID]; dup {
					v.errorf(stagePath, "duplicate question id %q", q.ID)
				}
				seen[q.ID] = struct{}{}
				questionsByKind[stage.Kind][q.ID] = struct{}{}
			}
		case models.StageKindEvaluationDisplay, models.StageKindGradeDisplay:
			if len(stage.Assessments) == 0 {
				v.warnf(stagePath, "display stage has no assessments")
			}
		}

		if stage.Kind != models.StageKindPeerReview {
			for _, q := range stage.Questions {
				if q.Grade {
					v.errorf(stagePath, "graded question %q is only allowed in a peer review stage", q.ID)
				}
			}
		}
	}

	checkDisplay := func(display, source models.StageKind) {
		if !kinds[display] {
			return
		}
		if !kinds[source] {
			v.errorf(path, "%s stage requires a %s stage in the same activity", display, source)
			return
		}
		for _, stage := range activity.Stages {
			if stage.Kind != display {
				continue
			}
			for _, a := range stage.Assessments {
				if _, ok := questionsByKind[source][a.QuestionID]; !ok {
					v.errorf(path+"/"+stage.ID, "assessment references unknown question %q", a.QuestionID)
				}
			}
		}
	}
	checkDisplay(models.StageKindEvaluationDisplay, models.StageKindTeamEvaluation)
	checkDisplay(models.StageKindGradeDisplay, models.StageKindPeerReview)

	if kinds[models.StageKindPeerReview] && len(activity.GradeQuestionIDs()) == 0 {
		v.warnf(path, "peer review stage has no graded questions, the activity will never be graded")
	}
}
