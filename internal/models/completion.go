package models

import "time"

// Completion is an append-only marker that a user finished a piece of content.
type Completion struct {
	ID        int64      `json:"id,omitempty"`
	UserID    int64      `json:"user_id"`
	CourseID  string     `json:"course_id"`
	ContentID string     `json:"content_id"`
	Stage     *string    `json:"stage,omitempty"`
	Created   *time.Time `json:"created,omitempty"`
	Modified  *time.Time `json:"modified,omitempty"`
}

// GroupGrade is the activity grade posted for a workgroup.
type GroupGrade struct {
	CourseID  string  `json:"course_id"`
	ContentID string  `json:"content_id"`
	Grade     float64 `json:"grade"`
	MaxGrade  float64 `json:"max_grade"`
}

// UserDetails describes a user known to the project service.
type UserDetails struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName returns the best human readable name.
func (u UserDetails) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.FirstName != "" || u.LastName != "" {
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}

// Organization is an organization a user belongs to.
type Organization struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// CourseRole is a role a user holds within a course.
type CourseRole struct {
	ID       int64  `json:"id,omitempty"`
	CourseID string `json:"course_id"`
	Role     string `json:"role"`
}

// ProjectDetails is the project record a workgroup belongs to.
type ProjectDetails struct {
	ID           int64  `json:"id"`
	CourseID     string `json:"course_id"`
	ContentID    string `json:"content_id"`
	Organization *int64 `json:"organization,omitempty"`
}

// UserPreferences holds per-user preference values keyed by name.
type UserPreferences map[string]string

// TAReviewWorkgroupPreference is the preference key that puts a user in TA review mode.
const TAReviewWorkgroupPreference = "TA_REVIEW_WORKGROUP"
