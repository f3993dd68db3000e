package service

import (
	"time"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// Viewer is the user a stage is evaluated for.
type Viewer struct {
	UserID   int64
	CourseID string
	// Workgroup is the resolved workgroup; in TA review mode it is the workgroup under review.
	Workgroup models.Workgroup
	// AdminGrader is set when the user reviews through the TA_REVIEW_WORKGROUP preference.
	AdminGrader bool
	// Outsider is set when the user is outside the workgroup but holds an allow-listed course role.
	Outsider bool
}

// IsMember reports whether the viewer belongs to the resolved workgroup.
func (v Viewer) IsMember() bool {
	return !v.Workgroup.IsEmpty() && v.Workgroup.HasUser(v.UserID)
}

// GradingOverride reports whether close dates are ignored for the viewer.
func (v Viewer) GradingOverride() bool {
	return v.AdminGrader || v.Outsider
}

// IsOpen reports whether the open date, if any, has passed.
func IsOpen(stage *models.Stage, now time.Time) bool {
	return stage.OpenDate == nil || !stage.OpenDate.After(now)
}

// IsClosed reports whether the close date has passed. Admin graders and outsiders never see a closed stage.
func IsClosed(stage *models.Stage, viewer Viewer, now time.Time) bool {
	if viewer.GradingOverride() {
		return false
	}
	return stage.CloseDate != nil && stage.CloseDate.Before(now)
}

// AvailableNow reports whether the stage accepts work right now.
func AvailableNow(stage *models.Stage, viewer Viewer, now time.Time) bool {
	return IsOpen(stage, now) && !IsClosed(stage, viewer, now)
}

// AvailableToUser reports whether the viewer may use the stage at all.
func AvailableToUser(activity *models.Activity, stage *models.Stage, viewer Viewer) bool {
	if viewer.AdminGrader && !stage.AllowAdminGraderAccess() {
		return false
	}
	if activity.TAGraded() && stage.Kind == models.StageKindPeerReview && !viewer.AdminGrader {
		return false
	}
	return true
}

// CanMarkCompleteBase applies the temporal and membership rules shared by every stage kind.
func CanMarkCompleteBase(stage *models.Stage, viewer Viewer, now time.Time) bool {
	if !AvailableNow(stage, viewer, now) {
		return false
	}
	if viewer.IsMember() {
		return true
	}
	return viewer.AdminGrader && stage.AllowAdminGraderAccess()
}

// CheckActionAllowed explains why the viewer cannot act on a stage, or returns nil.
func CheckActionAllowed(activity *models.Activity, stage *models.Stage, viewer Viewer, now time.Time) error {
	if !AvailableToUser(activity, stage, viewer) {
		return ErrStageUnavailable
	}
	if !IsOpen(stage, now) {
		return ErrStageNotOpen
	}
	if IsClosed(stage, viewer, now) {
		return ErrStageClosed
	}
	if !viewer.IsMember() && !(viewer.AdminGrader && stage.AllowAdminGraderAccess()) {
		return ErrNotWorkgroupMember
	}
	return nil
}

// ReviewStatus maps performed answer keys against the required ones.
func ReviewStatus(required, performed map[string]struct{}) models.StageState {
	if len(required) == 0 {
		return models.StageStateCompleted
	}
	hits := 0
	for key := range required {
		if _, ok := performed[key]; ok {
			hits++
		}
	}
	switch {
	case hits == len(required):
		return models.StageStateCompleted
	case hits > 0:
		return models.StageStateIncomplete
	default:
		return models.StageStateNotStarted
	}
}

// SubmissionStatus maps the uploads present for a workgroup against the ones a stage declares.
func SubmissionStatus(uploadIDs []string, latest map[string]models.Submission) models.StageState {
	if len(uploadIDs) == 0 {
		return models.StageStateCompleted
	}
	hits := 0
	for _, id := range uploadIDs {
		if _, ok := latest[id]; ok {
			hits++
		}
	}
	switch {
	case hits == len(uploadIDs):
		return models.StageStateCompleted
	case hits > 0:
		return models.StageStateIncomplete
	default:
		return models.StageStateNotStarted
	}
}
