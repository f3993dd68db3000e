package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/cache"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/observability"
)

// DefaultWorkgroupCacheTTL is short enough that membership changes show up within one page load.
const DefaultWorkgroupCacheTTL = 5 * time.Second

// Resolution is the workgroup a user acts for within a course.
type Resolution struct {
	Workgroup   models.Workgroup `json:"workgroup"`
	AdminGrader bool             `json:"admin_grader"`
}

// WorkgroupResolver determines the current workgroup of a user, honouring TA review mode.
type WorkgroupResolver interface {
	Resolve(ctx context.Context, userID int64, courseID string) (Resolution, error)
	HasOutsiderRole(ctx context.Context, userID int64, courseID string) (bool, error)
}

type workgroupResolver struct {
	api           ProjectAPI
	memo          cache.Store
	ttl           time.Duration
	outsiderRoles map[string]struct{}
	logger        zerolog.Logger
}

// NewWorkgroupResolver builds a resolver. outsiderRoles is the allow-list of course roles that may
// review workgroups they do not belong to.
func NewWorkgroupResolver(api ProjectAPI, memo cache.Store, ttl time.Duration, outsiderRoles []string, logger zerolog.Logger) WorkgroupResolver {
	if memo == nil {
		memo = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultWorkgroupCacheTTL
	}
	roles := make(map[string]struct{}, len(outsiderRoles))
	for _, role := range outsiderRoles {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			roles[strings.ToLower(trimmed)] = struct{}{}
		}
	}

	return &workgroupResolver{
		api:           api,
		memo:          memo,
		ttl:           ttl,
		outsiderRoles: roles,
		logger:        logger.With().Str("component", "workgroup_resolver").Logger(),
	}
}

func (r *workgroupResolver) Resolve(ctx context.Context, userID int64, courseID string) (Resolution, error) {
	key := fmt.Sprintf("workgroup:%d:%s", userID, courseID)

	var cached Resolution
	if ok, err := r.memo.Get(ctx, key, &cached); err == nil && ok {
		observability.WorkgroupLookups().WithLabelValues("hit").Inc()
		return cached, nil
	}
	observability.WorkgroupLookups().WithLabelValues("miss").Inc()

	resolution, err := r.resolve(ctx, userID, courseID)
	if err != nil {
		return Resolution{}, err
	}

	if err := r.memo.Set(ctx, key, resolution, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to memoize workgroup")
	}
	return resolution, nil
}

func (r *workgroupResolver) resolve(ctx context.Context, userID int64, courseID string) (Resolution, error) {
	prefs, err := r.api.GetUserPreferences(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}

	if raw := strings.TrimSpace(prefs[models.TAReviewWorkgroupPreference]); raw != "" {
		return r.resolveTAReview(ctx, userID, courseID, raw)
	}

	workgroup, err := r.api.GetUserWorkgroup(ctx, userID, courseID)
	if err != nil {
		return Resolution{}, err
	}
	if workgroup == nil {
		return Resolution{Workgroup: models.EmptyWorkgroup}, nil
	}
	return Resolution{Workgroup: *workgroup}, nil
}

func (r *workgroupResolver) resolveTAReview(ctx context.Context, userID int64, courseID, raw string) (Resolution, error) {
	allowed, err := r.HasOutsiderRole(ctx, userID, courseID)
	if err != nil {
		return Resolution{}, err
	}
	if !allowed {
		r.logger.Warn().Int64("user_id", userID).Str("course_id", courseID).Msg("TA review requested without an outsider role")
		return Resolution{}, ErrOutsiderDisallowed
	}

	workgroupID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || workgroupID <= 0 {
		return Resolution{}, fmt.Errorf("%w: invalid review workgroup %q", ErrOutsiderDisallowed, raw)
	}

	workgroup, err := r.api.GetWorkgroup(ctx, workgroupID)
	if err != nil {
		return Resolution{}, err
	}

	if workgroup.Project != 0 {
		project, err := r.api.GetProject(ctx, workgroup.Project)
		if err != nil {
			return Resolution{}, err
		}
		if project.CourseID != "" && project.CourseID != courseID {
			return Resolution{}, fmt.Errorf("%w: workgroup %d belongs to another course", ErrOutsiderDisallowed, workgroupID)
		}
	}

	return Resolution{Workgroup: *workgroup, AdminGrader: true}, nil
}

func (r *workgroupResolver) HasOutsiderRole(ctx context.Context, userID int64, courseID string) (bool, error) {
	if len(r.outsiderRoles) == 0 {
		return false, nil
	}
	roles, err := r.api.GetUserRoles(ctx, userID, courseID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if _, ok := r.outsiderRoles[strings.ToLower(role.Role)]; ok {
			return true, nil
		}
	}
	return false, nil
}
