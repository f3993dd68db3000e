package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-groupwork/internal/activityxml"
	"github.com/noah-isme/gema-groupwork/internal/dto"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/repository"
)

// ProjectCatalog stores authored project definitions and serves their parsed trees.
type ProjectCatalog interface {
	Project(ctx context.Context, courseID, projectID string) (*models.Project, error)
	Import(ctx context.Context, courseID, projectID string, source []byte) (dto.ProjectDefinitionResponse, error)
	Export(ctx context.Context, courseID, projectID string, format activityxml.Format) ([]byte, error)
	List(ctx context.Context, courseID string) ([]dto.ProjectDefinitionResponse, error)
	Delete(ctx context.Context, courseID, projectID string) error
}

type projectCatalog struct {
	repo   repository.ProjectDefinitionRepository
	parser *activityxml.Parser
	logger zerolog.Logger

	// parsed trees keyed by course, project and source checksum
	mu     sync.RWMutex
	parsed map[string]models.Project
}

// NewProjectCatalog constructs the catalog.
func NewProjectCatalog(repo repository.ProjectDefinitionRepository, parser *activityxml.Parser, logger zerolog.Logger) ProjectCatalog {
	return &projectCatalog{
		repo:   repo,
		parser: parser,
		logger: logger.With().Str("component", "project_catalog").Logger(),
		parsed: make(map[string]models.Project),
	}
}

func (c *projectCatalog) Project(ctx context.Context, courseID, projectID string) (*models.Project, error) {
	def, err := c.repo.Get(ctx, courseID, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	project, err := c.load(def)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *projectCatalog) load(def models.ProjectDefinition) (models.Project, error) {
	key := parsedKey(def)
	c.mu.RLock()
	project, ok := c.parsed[key]
	c.mu.RUnlock()
	if ok && def.Checksum != "" {
		return project, nil
	}

	project, _, err := c.parser.Parse([]byte(def.Source), def.ProjectID)
	if err != nil {
		c.logger.Error().Err(err).Str("course_id", def.CourseID).Str("project_id", def.ProjectID).Msg("stored project no longer parses")
		return models.Project{}, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	project.CourseID = def.CourseID

	if def.Checksum != "" {
		c.mu.Lock()
		c.parsed[key] = project
		c.mu.Unlock()
	}
	return project, nil
}

// parsedKey scopes a memoized tree to its definition. Content ids fall back to the project id,
// so the same source stored under two projects parses to different trees.
func parsedKey(def models.ProjectDefinition) string {
	return def.CourseID + "|" + def.ProjectID + "|" + def.Checksum
}

// Import validates and stores a definition. When validation reports errors the messages are
// returned together with ErrInvalidProject and nothing is stored.
func (c *projectCatalog) Import(ctx context.Context, courseID, projectID string, source []byte) (dto.ProjectDefinitionResponse, error) {
	courseID = strings.TrimSpace(courseID)
	projectID = strings.TrimSpace(projectID)
	if courseID == "" || projectID == "" {
		return dto.ProjectDefinitionResponse{}, fmt.Errorf("%w: course and project ids are required", ErrInvalidProject)
	}

	project, format, err := c.parser.Parse(source, projectID)
	if err != nil {
		return dto.ProjectDefinitionResponse{}, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	project.CourseID = courseID

	messages := activityxml.Validate(project)
	encoded, err := json.Marshal(messages)
	if err != nil {
		return dto.ProjectDefinitionResponse{}, err
	}

	sum := sha256.Sum256(source)
	def := models.ProjectDefinition{
		CourseID:           courseID,
		ProjectID:          projectID,
		DisplayName:        project.DisplayName,
		Format:             string(format),
		Source:             string(source),
		Checksum:           hex.EncodeToString(sum[:]),
		ValidationMessages: datatypes.JSON(encoded),
	}

	if activityxml.HasErrors(messages) {
		return dto.NewProjectDefinitionResponse(def, len(project.Activities)), ErrInvalidProject
	}

	if err := c.repo.Save(ctx, &def); err != nil {
		return dto.ProjectDefinitionResponse{}, err
	}

	c.mu.Lock()
	c.parsed[parsedKey(def)] = project
	c.mu.Unlock()

	c.logger.Info().
		Str("course_id", courseID).
		Str("project_id", projectID).
		Str("format", string(format)).
		Int("activities", len(project.Activities)).
		Int("warnings", len(messages)).
		Msg("project definition imported")

	return dto.NewProjectDefinitionResponse(def, len(project.Activities)), nil
}

func (c *projectCatalog) Export(ctx context.Context, courseID, projectID string, format activityxml.Format) ([]byte, error) {
	project, err := c.Project(ctx, courseID, projectID)
	if err != nil {
		return nil, err
	}
	return activityxml.Export(*project, format)
}

func (c *projectCatalog) List(ctx context.Context, courseID string) ([]dto.ProjectDefinitionResponse, error) {
	defs, err := c.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ProjectDefinitionResponse, 0, len(defs))
	for _, def := range defs {
		activities := 0
		if project, err := c.load(def); err == nil {
			activities = len(project.Activities)
		}
		out = append(out, dto.NewProjectDefinitionResponse(def, activities))
	}
	return out, nil
}

func (c *projectCatalog) Delete(ctx context.Context, courseID, projectID string) error {
	if err := c.repo.Delete(ctx, courseID, projectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return err
	}

	prefix := courseID + "|" + projectID + "|"
	c.mu.Lock()
	for key := range c.parsed {
		if strings.HasPrefix(key, prefix) {
			delete(c.parsed, key)
		}
	}
	c.mu.Unlock()
	return nil
}
