package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

const (
	NotificationGradesPosted = "grades_posted"
	NotificationFileUploaded = "file_uploaded"
)

// Notification is a message fanned out to workgroup members.
type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	CourseID    string    `json:"course_id"`
	ContentID   string    `json:"content_id"`
	WorkgroupID int64     `json:"workgroup_id"`
	ActorID     int64     `json:"actor_id,omitempty"`
	Recipients  []int64   `json:"recipients"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

// NotificationService dispatches workgroup notifications. Delivery is best effort: failures are
// logged and never returned.
type NotificationService interface {
	GradesPosted(ctx context.Context, courseID string, activity *models.Activity, workgroup int64, recipients []int64)
	FileUploaded(ctx context.Context, courseID string, activity *models.Activity, workgroup int64, uploader int64, filename string, recipients []int64)
}

type notificationEvent struct {
	Source       string       `json:"source"`
	Notification Notification `json:"notification"`
}

type notificationService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	nodeID      string
	now         func() time.Time
}

// NewNotificationService constructs a notification service publishing on <base>:notifications and
// the matching NATS subject.
func NewNotificationService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-groupwork/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
		nodeID:      uuid.NewString(),
		now:         time.Now,
	}
}

func (s *notificationService) GradesPosted(ctx context.Context, courseID string, activity *models.Activity, workgroup int64, recipients []int64) {
	s.send(ctx, Notification{
		Type:        NotificationGradesPosted,
		CourseID:    courseID,
		ContentID:   activity.ContentID,
		WorkgroupID: workgroup,
		Recipients:  recipients,
		Message:     fmt.Sprintf("Grades for %s are now available.", s.plain(nameOrID(activity))),
	})
}

func (s *notificationService) FileUploaded(ctx context.Context, courseID string, activity *models.Activity, workgroup int64, uploader int64, filename string, recipients []int64) {
	filename = s.plain(filename)
	if filename == "" {
		filename = "a file"
	}
	s.send(ctx, Notification{
		Type:        NotificationFileUploaded,
		CourseID:    courseID,
		ContentID:   activity.ContentID,
		WorkgroupID: workgroup,
		ActorID:     uploader,
		Recipients:  recipients,
		Message:     fmt.Sprintf("A teammate uploaded %s to %s.", filename, s.plain(nameOrID(activity))),
	})
}

func (s *notificationService) send(ctx context.Context, notification Notification) {
	if len(notification.Recipients) == 0 {
		return
	}

	notification.ID = uuid.NewString()
	notification.SentAt = s.now().UTC()

	attrs := []attribute.KeyValue{
		attribute.String("notification.type", notification.Type),
		attribute.Int64("notification.workgroup_id", notification.WorkgroupID),
		attribute.Int("notification.recipients", len(notification.Recipients)),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(attrs...))
	defer span.End()

	if err := s.publish(spanCtx, notification); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("type", notification.Type).Int64("workgroup_id", notification.WorkgroupID).Msg("failed to publish notification")
		return
	}

	s.logger.Info().
		Str("type", notification.Type).
		Int64("workgroup_id", notification.WorkgroupID).
		Ints64("recipients", notification.Recipients).
		Msg("notification dispatched")
}

func (s *notificationService) publish(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notificationEvent{Source: s.nodeID, Notification: notification})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// plain strips markup from a user-supplied value. Messages are plain text, so entities the policy
// escapes are decoded again.
func (s *notificationService) plain(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func nameOrID(activity *models.Activity) string {
	if strings.TrimSpace(activity.DisplayName) != "" {
		return activity.DisplayName
	}
	return activity.ContentID
}
