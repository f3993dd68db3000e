package models

import (
	"strings"
	"time"
)

// ReviewItem is one stored answer from a reviewer to a subject for a question.
// Exactly one of User (team evaluation) or Workgroup (peer review) names the subject.
type ReviewItem struct {
	ID        int64      `json:"id,omitempty"`
	Reviewer  UserRef    `json:"reviewer"`
	User      *UserRef   `json:"user,omitempty"`
	Workgroup *int64     `json:"workgroup,omitempty"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	ContentID string     `json:"content_id"`
	Created   *time.Time `json:"created,omitempty"`
	Modified  *time.Time `json:"modified,omitempty"`
}

// HasAnswer reports whether the item carries a non-empty answer.
func (r ReviewItem) HasAnswer() bool {
	return strings.TrimSpace(r.Answer) != ""
}

// ReviewerID returns the reviewer user id.
func (r ReviewItem) ReviewerID() int64 {
	return r.Reviewer.Int64()
}

// PeerID returns the reviewed user id, or zero for workgroup reviews.
func (r ReviewItem) PeerID() int64 {
	if r.User == nil {
		return 0
	}
	return r.User.Int64()
}

// WorkgroupID returns the workgroup the item belongs to, or zero.
func (r ReviewItem) WorkgroupID() int64 {
	if r.Workgroup == nil {
		return 0
	}
	return *r.Workgroup
}

// ReviewAnswers maps question ids to answers for a single review submission.
type ReviewAnswers map[string]string
