package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/domain"
	"github.com/teamforge/collab-roles/internal/metrics"
)

const (
	opApply  = "apply"
	opAccept = "accept"
	opReject = "reject"
	opCancel = "cancel"

	defaultEventTimeout = 2 * time.Second
)

// ReapplyPolicy decides whether a rejected applicant may apply to the same role again.
type ReapplyPolicy string

const (
	ReapplyBlockedAfterRejection ReapplyPolicy = "block_after_rejection"
	ReapplyAllowedAfterRejection ReapplyPolicy = "allow_after_rejection"
)

func ParseReapplyPolicy(raw string) (ReapplyPolicy, error) {
	switch p := ReapplyPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case ReapplyBlockedAfterRejection, ReapplyAllowedAfterRejection:
		return p, nil
	default:
		return "", fmt.Errorf("unknown reapply policy %q", raw)
	}
}

// CompetingPolicy decides what happens to the other pending applications of a
// role once one of them is accepted.
type CompetingPolicy string

const (
	CompetingRejectOnAccept CompetingPolicy = "reject_competing"
	CompetingLeavePending   CompetingPolicy = "leave_pending"
)

func ParseCompetingPolicy(raw string) (CompetingPolicy, error) {
	switch p := CompetingPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case CompetingRejectOnAccept, CompetingLeavePending:
		return p, nil
	default:
		return "", fmt.Errorf("unknown competing applications policy %q", raw)
	}
}

type Policy struct {
	Reapply   ReapplyPolicy
	Competing CompetingPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Reapply:   ReapplyBlockedAfterRejection,
		Competing: CompetingRejectOnAccept,
	}
}

type Deps struct {
	Store        Store
	Events       EventSink
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	EventTimeout time.Duration
	Clock        func() time.Time
}

type Service struct {
	store        Store
	events       EventSink
	logger       *zap.Logger
	metrics      *metrics.Metrics
	policy       Policy
	eventTimeout time.Duration
	tracer       trace.Tracer
	now          func() time.Time
	newID        func() string
}

func New(deps Deps, policy Policy) *Service {
	s := &Service{
		store:        deps.Store,
		events:       deps.Events,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		policy:       policy,
		eventTimeout: deps.EventTimeout,
		tracer:       otel.Tracer("github.com/teamforge/collab-roles/internal/service"),
		now:          storageClock(deps.Clock),
		newID:        uuid.NewString,
	}
	if s.events == nil {
		s.events = discardSink{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.eventTimeout <= 0 {
		s.eventTimeout = defaultEventTimeout
	}
	if s.policy.Reapply == "" {
		s.policy.Reapply = ReapplyBlockedAfterRejection
	}
	if s.policy.Competing == "" {
		s.policy.Competing = CompetingRejectOnAccept
	}
	return s
}

// storageClock reads clock in UTC at TIMESTAMPTZ precision.
func storageClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC().Truncate(time.Microsecond)
	}
}

func (s *Service) Policy() Policy {
	return s.policy
}

type discardSink struct{}

func (discardSink) Publish(context.Context, domain.Event) error { return nil }

// begin opens a span for op; the returned func records outcome and duration.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "application."+op)

	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = string(domain.CodeOf(err))
			if outcome == "" {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		s.metrics.ObserveOperation(op, outcome, time.Since(start))
	}
}

// translate passes domain errors through and hides anything else behind sentinel.
func (s *Service) translate(op string, sentinel *domain.Error, err error) error {
	if domain.CodeOf(err) != "" {
		return err
	}
	s.logger.Error(sentinel.Message, zap.String("operation", op), zap.Error(err))
	return domain.WithCause(sentinel, err)
}

func (s *Service) event(name domain.EventName, app domain.Application) domain.Event {
	return domain.NewApplicationEvent(s.newID(), name, app, s.now())
}

// emit hands event to the sink. Failures are logged and counted but never
// returned: the transition is already committed.
func (s *Service) emit(ctx context.Context, event domain.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()

	if err := s.events.Publish(ctx, event); err != nil {
		s.metrics.IncEvent(string(event.Name), "failed")
		s.logger.Warn("lifecycle event not delivered",
			zap.String("event", string(event.Name)),
			zap.String("application_id", event.Payload.ApplicationID),
			zap.Error(err),
		)
		return
	}
	s.metrics.IncEvent(string(event.Name), "published")
}
