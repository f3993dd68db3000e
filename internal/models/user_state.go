package models

import (
	"time"

	"gorm.io/datatypes"
)

// StageUserState is the host-managed per-user field state of a stage.
type StageUserState struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      int64      `gorm:"not null;uniqueIndex:idx_stage_user_state" json:"user_id"`
	CourseID    string     `gorm:"size:255;not null;uniqueIndex:idx_stage_user_state" json:"course_id"`
	ActivityID  string     `gorm:"size:255;not null;uniqueIndex:idx_stage_user_state" json:"activity_id"`
	StageID     string     `gorm:"size:255;not null;uniqueIndex:idx_stage_user_state" json:"stage_id"`
	Visited     bool       `gorm:"not null;default:false" json:"visited"`
	Completed   bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StageKey addresses a stage for a user within a course.
type StageKey struct {
	UserID     int64
	CourseID   string
	ActivityID string
	StageID    string
}

// ProjectDefinition is an authored project stored as its source XML.
type ProjectDefinition struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CourseID           string         `gorm:"size:255;not null;uniqueIndex:idx_project_definition" json:"course_id"`
	ProjectID          string         `gorm:"size:255;not null;uniqueIndex:idx_project_definition" json:"project_id"`
	DisplayName        string         `gorm:"size:255" json:"display_name"`
	Format             string         `gorm:"size:16;not null" json:"format"`
	Source             string         `gorm:"type:text;not null" json:"source"`
	Checksum           string         `gorm:"size:64" json:"checksum"`
	ValidationMessages datatypes.JSON `json:"validation_messages"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ValidationMessage is an authoring-time configuration problem.
type ValidationMessage struct {
	Severity string `json:"severity"`
	Path     string `json:"path"`
	Text     string `json:"text"`
}

const (
	ValidationError   = "error"
	ValidationWarning = "warning"
)
