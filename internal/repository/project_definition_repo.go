package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// ProjectDefinitionRepository stores authored project XML per course.
type ProjectDefinitionRepository interface {
	Save(ctx context.Context, definition *models.ProjectDefinition) error
	Get(ctx context.Context, courseID, projectID string) (models.ProjectDefinition, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.ProjectDefinition, error)
	Delete(ctx context.Context, courseID, projectID string) error
}

type projectDefinitionRepository struct {
	db *gorm.DB
}

// NewProjectDefinitionRepository instantiates the repository.
func NewProjectDefinitionRepository(db *gorm.DB) ProjectDefinitionRepository {
	return &projectDefinitionRepository{db: db}
}

// Save inserts the definition or replaces the stored one for the same course and project.
func (r *projectDefinitionRepository) Save(ctx context.Context, definition *models.ProjectDefinition) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "format", "source", "checksum", "validation_messages", "updated_at"}),
	}).Create(definition).Error
}

func (r *projectDefinitionRepository) Get(ctx context.Context, courseID, projectID string) (models.ProjectDefinition, error) {
	var definition models.ProjectDefinition
	if err := r.db.WithContext(ctx).
		Where("course_id = ? AND project_id = ?", courseID, projectID).
		First(&definition).Error; err != nil {
		return models.ProjectDefinition{}, err
	}
	return definition, nil
}

func (r *projectDefinitionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.ProjectDefinition, error) {
	var definitions []models.ProjectDefinition
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("project_id ASC").
		Find(&definitions).Error; err != nil {
		return nil, err
	}
	return definitions, nil
}

func (r *projectDefinitionRepository) Delete(ctx context.Context, courseID, projectID string) error {
	result := r.db.WithContext(ctx).
		Where("course_id = ? AND project_id = ?", courseID, projectID).
		Delete(&models.ProjectDefinition{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
