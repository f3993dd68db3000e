package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// ProjectExportQuery selects the XML dialect of an export.
type ProjectExportQuery struct {
	Format string `query:"format" validate:"omitempty,oneof=legacy node"`
}

// ProjectDefinitionResponse summarises a stored project definition.
type ProjectDefinitionResponse struct {
	CourseID    string                     `json:"course_id"`
	ProjectID   string                     `json:"project_id"`
	DisplayName string                     `json:"display_name"`
	Format      string                     `json:"format"`
	Checksum    string                     `json:"checksum"`
	Activities  int                        `json:"activities"`
	Messages    []models.ValidationMessage `json:"validation_messages"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// NewProjectDefinitionResponse maps a stored definition. activities is the parsed activity count.
func NewProjectDefinitionResponse(def models.ProjectDefinition, activities int) ProjectDefinitionResponse {
	messages := make([]models.ValidationMessage, 0)
	if len(def.ValidationMessages) > 0 {
		_ = json.Unmarshal(def.ValidationMessages, &messages)
	}
	return ProjectDefinitionResponse{
		CourseID:    def.CourseID,
		ProjectID:   def.ProjectID,
		DisplayName: def.DisplayName,
		Format:      def.Format,
		Checksum:    def.Checksum,
		Activities:  activities,
		Messages:    messages,
		UpdatedAt:   def.UpdatedAt,
	}
}
