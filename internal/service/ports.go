package service

import (
	"context"
	"errors"
	"iter"

	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
)

var (
	ErrStageNotFound         = errors.New("stage not found")
	ErrActivityNotFound      = errors.New("activity not found")
	ErrProjectNotFound       = errors.New("project not found")
	ErrStageNotOpen          = errors.New("stage is not open yet")
	ErrStageClosed           = errors.New("stage is closed")
	ErrStageUnavailable      = errors.New("stage is not available to the current user")
	ErrOutsiderDisallowed    = errors.New("user is not permitted to view this workgroup")
	ErrNotWorkgroupMember    = errors.New("user is not a member of a workgroup")
	ErrCannotMarkOther       = errors.New("cannot mark another user complete")
	ErrCannotMarkComplete    = errors.New("stage cannot be marked complete")
	ErrWrongStageKind        = errors.New("operation not supported by this stage")
	ErrReviewSubjectRequired = errors.New("review subject is required")
	ErrInvalidReviewSubject  = errors.New("review subject is not assigned to the reviewer")
	ErrUploadTooLarge        = errors.New("uploaded file exceeds size limit")
	ErrNoFiles               = errors.New("no files were uploaded")
	ErrUnknownUpload         = errors.New("unknown upload id for this stage")
	ErrInvalidProject        = errors.New("project definition has validation errors")
)

// ProjectAPI is the view of the project service the engines depend on.
type ProjectAPI interface {
	GetUserWorkgroup(ctx context.Context, userID int64, courseID string) (*models.Workgroup, error)
	GetWorkgroup(ctx context.Context, workgroupID int64) (*models.Workgroup, error)
	GetWorkgroupSubmissions(ctx context.Context, workgroupID int64) ([]models.Submission, error)
	CreateSubmission(ctx context.Context, payload models.SubmissionCreate) (*models.Submission, error)
	PostGrade(ctx context.Context, workgroupID int64, grade models.GroupGrade) error

	GetReviewItems(ctx context.Context, kind projectapi.ReviewKind, workgroupID int64, contentID string) ([]models.ReviewItem, error)
	CreateReviewItem(ctx context.Context, kind projectapi.ReviewKind, item models.ReviewItem) (*models.ReviewItem, error)
	UpdateReviewItem(ctx context.Context, kind projectapi.ReviewKind, itemID int64, item models.ReviewItem) (*models.ReviewItem, error)
	DeleteReviewItem(ctx context.Context, kind projectapi.ReviewKind, itemID int64) error

	GetUserReviewAssignmentGroups(ctx context.Context, userID int64, courseID, xblockID string) ([]models.ReviewAssignmentGroup, error)
	GetReviewAssignmentWorkgroups(ctx context.Context, assignmentID int64) ([]models.Workgroup, error)
	GetReviewAssignmentUsers(ctx context.Context, assignmentID int64) ([]models.WorkgroupUser, error)
	GetWorkgroupReviewAssignmentGroups(ctx context.Context, workgroupID int64) ([]models.ReviewAssignmentGroup, error)

	GetProject(ctx context.Context, projectID int64) (*models.ProjectDetails, error)
	GetUserDetails(ctx context.Context, userID int64) (*models.UserDetails, error)
	GetUserPreferences(ctx context.Context, userID int64) (models.UserPreferences, error)
	GetUserOrganizations(ctx context.Context, userID int64) ([]models.Organization, error)
	GetUserRoles(ctx context.Context, userID int64, courseID string) ([]models.CourseRole, error)

	MarkComplete(ctx context.Context, completion models.Completion) error
	Completions(ctx context.Context, courseID string, filter projectapi.CompletionFilter) iter.Seq2[models.Completion, error]
}

var _ ProjectAPI = (*projectapi.Client)(nil)
