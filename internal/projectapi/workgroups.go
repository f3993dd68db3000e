package projectapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// GetUserWorkgroup returns the user's workgroup in the course, or nil when the user has none.
func (c *Client) GetUserWorkgroup(ctx context.Context, userID int64, courseID string) (*models.Workgroup, error) {
	query := url.Values{}
	query.Set("course_id", courseID)

	groups, err := getList[models.Workgroup](ctx, c, "users/{id}/workgroups", fmt.Sprintf("users/%d/workgroups", userID), query)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	// the listing omits members, so load the full record
	return c.GetWorkgroup(ctx, groups[0].ID)
}

// GetWorkgroup loads a workgroup with its members.
func (c *Client) GetWorkgroup(ctx context.Context, workgroupID int64) (*models.Workgroup, error) {
	var workgroup models.Workgroup
	if err := c.getJSON(ctx, "workgroups/{id}", fmt.Sprintf("workgroups/%d", workgroupID), nil, &workgroup); err != nil {
		return nil, err
	}
	if workgroup.ID == 0 {
		workgroup.ID = workgroupID
	}
	if workgroup.Users == nil {
		workgroup.Users = []models.WorkgroupUser{}
	}
	return &workgroup, nil
}

// GetWorkgroupSubmissions lists every submission recorded for the workgroup.
func (c *Client) GetWorkgroupSubmissions(ctx context.Context, workgroupID int64) ([]models.Submission, error) {
	return getList[models.Submission](ctx, c, "workgroups/{id}/submissions", fmt.Sprintf("workgroups/%d/submissions", workgroupID), nil)
}

// CreateSubmission records an uploaded document for a workgroup.
func (c *Client) CreateSubmission(ctx context.Context, payload models.SubmissionCreate) (*models.Submission, error) {
	var created models.Submission
	if err := c.postJSON(ctx, "submissions", "submissions/", payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// PostGrade stores the activity grade of a workgroup.
func (c *Client) PostGrade(ctx context.Context, workgroupID int64, grade models.GroupGrade) error {
	return c.postJSON(ctx, "workgroups/{id}/grades", fmt.Sprintf("workgroups/%d/grades", workgroupID), grade, nil)
}

// GetUserReviewAssignmentGroups lists the review assignment groups the user belongs to for one activity.
func (c *Client) GetUserReviewAssignmentGroups(ctx context.Context, userID int64, courseID, xblockID string) ([]models.ReviewAssignmentGroup, error) {
	query := url.Values{}
	query.Set("type", "reviewassignment")
	query.Set("course", courseID)
	query.Set("data__xblock_id", xblockID)

	return getList[models.ReviewAssignmentGroup](ctx, c, "users/{id}/groups", fmt.Sprintf("users/%d/groups", userID), query)
}

// GetReviewAssignmentWorkgroups lists the workgroups a review assignment group reviews.
func (c *Client) GetReviewAssignmentWorkgroups(ctx context.Context, assignmentID int64) ([]models.Workgroup, error) {
	return getList[models.Workgroup](ctx, c, "groups/{id}/workgroups", fmt.Sprintf("groups/%d/workgroups", assignmentID), nil)
}

// GetReviewAssignmentUsers lists the reviewers in a review assignment group.
func (c *Client) GetReviewAssignmentUsers(ctx context.Context, assignmentID int64) ([]models.WorkgroupUser, error) {
	return getList[models.WorkgroupUser](ctx, c, "groups/{id}/users", fmt.Sprintf("groups/%d/users", assignmentID), nil)
}

// GetWorkgroupReviewAssignmentGroups lists the review assignment groups that review a workgroup.
func (c *Client) GetWorkgroupReviewAssignmentGroups(ctx context.Context, workgroupID int64) ([]models.ReviewAssignmentGroup, error) {
	return getList[models.ReviewAssignmentGroup](ctx, c, "workgroups/{id}/groups", fmt.Sprintf("workgroups/%d/groups", workgroupID), nil)
}

// GetProject loads the project record a workgroup belongs to.
func (c *Client) GetProject(ctx context.Context, projectID int64) (*models.ProjectDetails, error) {
	var project models.ProjectDetails
	if err := c.getJSON(ctx, "projects/{id}", fmt.Sprintf("projects/%d", projectID), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}
