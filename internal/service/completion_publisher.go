package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/events"
	"github.com/noah-isme/gema-groupwork/internal/models"
	"github.com/noah-isme/gema-groupwork/internal/observability"
	"github.com/noah-isme/gema-groupwork/internal/projectapi"
)

// CompletionPublisher records completion markers in the project service. Completion records are a
// set: a duplicate insert is not an error.
type CompletionPublisher interface {
	Publish(ctx context.Context, courseID, contentID, stageID string, userID int64) error
	PublishForMembers(ctx context.Context, courseID, contentID, stageID string, workgroup models.Workgroup) error
}

type completionPublisher struct {
	api     ProjectAPI
	emitter events.Emitter
	logger  zerolog.Logger
}

// NewCompletionPublisher wires completion publication to the project service and the host event stream.
func NewCompletionPublisher(api ProjectAPI, emitter events.Emitter, logger zerolog.Logger) CompletionPublisher {
	return &completionPublisher{
		api:     api,
		emitter: emitter,
		logger:  logger.With().Str("component", "completion_publisher").Logger(),
	}
}

func (p *completionPublisher) Publish(ctx context.Context, courseID, contentID, stageID string, userID int64) error {
	completion := models.Completion{
		UserID:    userID,
		CourseID:  courseID,
		ContentID: contentID,
	}
	if stageID != "" {
		stage := stageID
		completion.Stage = &stage
	}

	if err := p.api.MarkComplete(ctx, completion); err != nil {
		if !projectapi.IsConflict(err) {
			observability.CompletionsPublished().WithLabelValues("error").Inc()
			return err
		}
		observability.CompletionsPublished().WithLabelValues("duplicate").Inc()
		p.logger.Debug().Int64("user_id", userID).Str("content_id", contentID).Str("stage_id", stageID).Msg("completion already recorded")
	} else {
		observability.CompletionsPublished().WithLabelValues("created").Inc()
	}

	p.emitter.Emit(ctx, events.Event{
		Name:      events.Progress,
		UserID:    userID,
		CourseID:  courseID,
		ContentID: contentID,
		Payload: map[string]any{
			"stage":     stageID,
			"completed": true,
		},
	})
	return nil
}

// PublishForMembers publishes for every member and reports every failure joined together.
func (p *completionPublisher) PublishForMembers(ctx context.Context, courseID, contentID, stageID string, workgroup models.Workgroup) error {
	var errs []error
	for _, userID := range workgroup.UserIDs() {
		if err := p.Publish(ctx, courseID, contentID, stageID, userID); err != nil {
			p.logger.Error().Err(err).Int64("user_id", userID).Int64("workgroup_id", workgroup.ID).Msg("failed to publish member completion")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
