package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// StageStateRepository persists per-user visited and completed flags of stages.
type StageStateRepository interface {
	Get(ctx context.Context, key models.StageKey) (models.StageUserState, error)
	ListForActivity(ctx context.Context, userID int64, courseID, activityID string) ([]models.StageUserState, error)
	MarkVisited(ctx context.Context, key models.StageKey, at time.Time) error
	MarkCompleted(ctx context.Context, key models.StageKey, at time.Time) error
}

type stageStateRepository struct {
	db *gorm.DB
}

// NewStageStateRepository instantiates the repository.
func NewStageStateRepository(db *gorm.DB) StageStateRepository {
	return &stageStateRepository{db: db}
}

var stageStateConflict = []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "activity_id"}, {Name: "stage_id"}}

// Get returns the stored state, or a zero state carrying the key when nothing was stored yet.
func (r *stageStateRepository) Get(ctx context.Context, key models.StageKey) (models.StageUserState, error) {
	var state models.StageUserState
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND activity_id = ? AND stage_id = ?", key.UserID, key.CourseID, key.ActivityID, key.StageID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StageUserState{
			UserID:     key.UserID,
			CourseID:   key.CourseID,
			ActivityID: key.ActivityID,
			StageID:    key.StageID,
		}, nil
	}
	if err != nil {
		return models.StageUserState{}, err
	}
	return state, nil
}

func (r *stageStateRepository) ListForActivity(ctx context.Context, userID int64, courseID, activityID string) ([]models.StageUserState, error) {
	var states []models.StageUserState
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND activity_id = ?", userID, courseID, activityID).
		Order("id ASC").
		Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *stageStateRepository) MarkVisited(ctx context.Context, key models.StageKey, at time.Time) error {
	state := models.StageUserState{
		UserID:     key.UserID,
		CourseID:   key.CourseID,
		ActivityID: key.ActivityID,
		StageID:    key.StageID,
		Visited:    true,
		CreatedAt:  at,
		UpdatedAt:  at,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: stageStateConflict,
		DoUpdates: clause.Assignments(map[string]any{
			"visited":    true,
			"updated_at": at,
		}),
	}).Create(&state).Error
}

// MarkCompleted sets the completed flag. The first completion time is kept.
func (r *stageStateRepository) MarkCompleted(ctx context.Context, key models.StageKey, at time.Time) error {
	completedAt := at
	state := models.StageUserState{
		UserID:      key.UserID,
		CourseID:    key.CourseID,
		ActivityID:  key.ActivityID,
		StageID:     key.StageID,
		Completed:   true,
		CompletedAt: &completedAt,
		CreatedAt:   at,
		UpdatedAt:   at,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: stageStateConflict,
		DoUpdates: clause.Assignments(map[string]any{
			"completed":    true,
			"completed_at": gorm.Expr("COALESCE(stage_user_states.completed_at, ?)", at),
			"updated_at":   at,
		}),
	}).Create(&state).Error
}
