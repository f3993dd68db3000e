package service

import (
	"context"

	"github.com/rs/zerolog"
)

// AccessControl turns an authenticated user into a Viewer and gates views to workgroup members,
// admin graders and allow-listed outsiders.
type AccessControl interface {
	Viewer(ctx context.Context, userID int64, courseID string) (Viewer, error)
}

type accessControl struct {
	resolver WorkgroupResolver
	logger   zerolog.Logger
}

// NewAccessControl builds the access gate on top of the workgroup resolver.
func NewAccessControl(resolver WorkgroupResolver, logger zerolog.Logger) AccessControl {
	return &accessControl{
		resolver: resolver,
		logger:   logger.With().Str("component", "access_control").Logger(),
	}
}

// Viewer resolves the user's workgroup and rejects users outside it unless they are admin graders or
// hold an outsider role.
func (a *accessControl) Viewer(ctx context.Context, userID int64, courseID string) (Viewer, error) {
	resolution, err := a.resolver.Resolve(ctx, userID, courseID)
	if err != nil {
		return Viewer{}, err
	}

	viewer := Viewer{
		UserID:      userID,
		CourseID:    courseID,
		Workgroup:   resolution.Workgroup,
		AdminGrader: resolution.AdminGrader,
	}
	if viewer.AdminGrader || viewer.IsMember() {
		return viewer, nil
	}

	outsider, err := a.resolver.HasOutsiderRole(ctx, userID, courseID)
	if err != nil {
		return Viewer{}, err
	}
	if !outsider {
		a.logger.Debug().Int64("user_id", userID).Str("course_id", courseID).Msg("outsider rejected")
		return Viewer{}, ErrOutsiderDisallowed
	}

	viewer.Outsider = true
	return viewer, nil
}
