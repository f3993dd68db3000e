package events

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublisherPublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "groupwork:events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewPublisher(client, nil, "groupwork", zerolog.New(io.Discard))
	publisher.Emit(ctx, Event{
		Name:      FinalGrade,
		CourseID:  "course",
		ContentID: "act",
		Payload:   map[string]any{"grade_value": 70, "group_id": 4},
	})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, FinalGrade, got.Name)
	require.NotEmpty(t, got.ID)
	require.False(t, got.EmittedAt.IsZero())
	require.Equal(t, float64(70), got.Payload["grade_value"])
}

func TestPublisherWithoutTransportsOnlyLogs(t *testing.T) {
	publisher := NewPublisher(nil, nil, "", zerolog.New(io.Discard))
	require.NotPanics(t, func() {
		publisher.Emit(context.Background(), Event{Name: Progress, UserID: 1})
	})
}

func TestMultiForwardsToEveryEmitter(t *testing.T) {
	first := NewRecorder()
	second := NewRecorder()

	Multi{first, nil, second}.Emit(context.Background(), Event{Name: Grade})

	require.Equal(t, []string{Grade}, first.Names())
	require.Equal(t, []string{Grade}, second.Names())
}
