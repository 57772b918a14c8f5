//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/teamforge/collab-roles/internal/domain"
)

type RedisPublisherSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *goredis.Client
}

func TestRedisPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisPublisherSuite))
}

func (s *RedisPublisherSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	url, err := container.ConnectionString(ctx)
	s.Require().NoError(err)
	opts, err := goredis.ParseURL(url)
	s.Require().NoError(err)

	s.client = goredis.NewClient(opts)
	s.Require().NoError(s.client.Ping(ctx).Err())
}

func (s *RedisPublisherSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *RedisPublisherSuite) TestPublishDeliversJSON() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := s.client.Subscribe(ctx, "test.applications")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	s.Require().NoError(err)

	pub, err := NewRedisPublisher(s.client, "test.applications")
	s.Require().NoError(err)
	s.Require().NoError(pub.Publish(ctx, sampleEvent()))

	msg, err := sub.ReceiveMessage(ctx)
	s.Require().NoError(err)

	var got domain.Event
	s.Require().NoError(json.Unmarshal([]byte(msg.Payload), &got))
	s.Equal(sampleEvent(), got)
}

func (s *RedisPublisherSuite) TestDefaultChannel() {
	pub, err := NewRedisPublisher(s.client, "")
	s.Require().NoError(err)
	s.Equal(DefaultChannel, pub.Channel())
}
