package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UserRef is a user identifier that the project service may encode either as a number or as a string.
type UserRef int64

// UnmarshalJSON accepts 12, "12" and null.
func (u *UserRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*u = 0
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*u = 0
			return nil
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user reference %q: %w", raw, err)
		}
		*u = UserRef(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*u = UserRef(n)
	return nil
}

// Int64 returns the numeric user id.
func (u UserRef) Int64() int64 {
	return int64(u)
}

// WorkgroupUser is a member entry of a workgroup.
type WorkgroupUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Workgroup is a small set of users collaborating on an activity.
type Workgroup struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name,omitempty"`
	Project  int64           `json:"project,omitempty"`
	Users    []WorkgroupUser `json:"users"`
	Created  *time.Time      `json:"created,omitempty"`
	Modified *time.Time      `json:"modified,omitempty"`
}

// EmptyWorkgroup is returned for users that do not belong to any workgroup.
var EmptyWorkgroup = Workgroup{ID: 0, Users: []WorkgroupUser{}}

// IsEmpty reports whether this is the sentinel workgroup.
func (w Workgroup) IsEmpty() bool {
	return w.ID == 0
}

// HasUser reports whether the user is a member.
func (w Workgroup) HasUser(userID int64) bool {
	for _, u := range w.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// UserIDs returns the member ids in workgroup order.
func (w Workgroup) UserIDs() []int64 {
	ids := make([]int64, 0, len(w.Users))
	for _, u := range w.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

// Teammates returns every member except the given user.
func (w Workgroup) Teammates(userID int64) []WorkgroupUser {
	peers := make([]WorkgroupUser, 0, len(w.Users))
	for _, u := range w.Users {
		if u.ID != userID {
			peers = append(peers, u)
		}
	}
	return peers
}

// ReviewAssignmentGroup links a set of reviewers to the workgroups they review for one activity.
type ReviewAssignmentGroup struct {
	ID   int64                     `json:"id"`
	Name string                    `json:"name"`
	Type string                    `json:"type"`
	Data ReviewAssignmentGroupData `json:"data"`
}

// ReviewAssignmentGroupData is the free-form payload attached to a review assignment group.
type ReviewAssignmentGroupData struct {
	XBlockID       string     `json:"xblock_id"`
	AssignmentDate *time.Time `json:"assignment_date,omitempty"`
}
