// Package events delivers application lifecycle events to subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/domain"
)

const DefaultChannel = "collab.applications"

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     goredis.UniversalClient
	channel string
}

func NewRedisPublisher(rdb goredis.UniversalClient, channel string) (*RedisPublisher, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Name, err)
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Name, p.channel, err)
	}
	return nil
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	p.logger.Info("lifecycle event",
		zap.String("event_id", event.ID),
		zap.String("event", string(event.Name)),
		zap.Time("occurred_at", event.OccurredAt),
		zap.String("application_id", event.Payload.ApplicationID),
		zap.String("project_id", event.Payload.ProjectID),
		zap.String("project_role_id", event.Payload.ProjectRoleID),
		zap.String("applicant_id", event.Payload.ApplicantID),
		zap.String("status", event.Payload.Status),
	)
	return nil
}
