package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teamforge/collab-roles/internal/domain"
)

func sampleEvent() domain.Event {
	return domain.Event{
		ID:         "e1",
		Name:       domain.EventApplicationAccepted,
		OccurredAt: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Payload: domain.ApplicationEventPayload{
			ApplicationID: "a1",
			ProjectID:     "p1",
			ProjectRoleID: "r1",
			ApplicantID:   "u1",
			Status:        "APPROVAL",
			Message:       "accepted",
		},
	}
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	pub := NewLogPublisher(zap.New(core))

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))

	entries := logs.FilterMessage("lifecycle event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "application.accepted", fields["event"])
	assert.Equal(t, "a1", fields["application_id"])
	assert.Equal(t, "APPROVAL", fields["status"])
	assert.Equal(t, "events", entries[0].LoggerName)
}

func TestLogPublisherNilLogger(t *testing.T) {
	assert.NoError(t, NewLogPublisher(nil).Publish(context.Background(), sampleEvent()))
}

func TestNewRedisPublisherRequiresClient(t *testing.T) {
	_, err := NewRedisPublisher(nil, "")
	assert.Error(t, err)
}
