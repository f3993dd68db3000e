package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-groupwork/internal/observability"
)

// Event names emitted to the host and analytics pipeline.
const (
	ReceivedSubmission = "activity.received_submission"
	GradeQuestionScore = "group_activity.received_grade_question_score"
	FinalGrade         = "group_activity.final_grade"
	Progress           = "progress"
	Grade              = "grade"
)

// Event is one analytics or host event.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	UserID    int64          `json:"user_id,omitempty"`
	CourseID  string         `json:"course_id,omitempty"`
	ContentID string         `json:"content_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// Emitter publishes events. Emission is best effort and never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Publisher fans events out to redis pub/sub and NATS when configured, and always logs them.
type Publisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewPublisher builds an emitter. channelBase namespaces the redis channel (<base>:events) and the
// NATS subject (<base with dots>.events.<event name>). Both transports are optional.
func NewPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Publisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &Publisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_publisher").Logger(),
		now:          time.Now,
	}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = p.now().UTC()
	}

	p.logger.Info().
		Str("event", event.Name).
		Int64("user_id", event.UserID).
		Str("course_id", event.CourseID).
		Str("content_id", event.ContentID).
		Interface("payload", event.Payload).
		Msg("event emitted")
	observability.EventsEmitted().WithLabelValues(event.Name, "log").Inc()

	if p.redis == nil && p.nats == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to encode event")
		return
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			p.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to publish event to redis")
		} else {
			observability.EventsEmitted().WithLabelValues(event.Name, "redis").Inc()
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		subject := p.natsSubject + "." + strings.ReplaceAll(event.Name, ".", "_")
		if err := p.nats.Publish(subject, payload); err != nil {
			p.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to publish event to nats")
		} else {
			observability.EventsEmitted().WithLabelValues(event.Name, "nats").Inc()
		}
	}
}

// Recorder keeps emitted events in memory. It backs dry-run previews and tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{events: make([]Event, 0)}
}

func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of every recorded event in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in emission order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.Name)
	}
	return names
}

// Multi emits to every wrapped emitter in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(ctx, event)
		}
	}
}
