package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/godamri/helix-audit/pkg/contextx"
	"github.com/google/uuid"
)

// Service is the producer-side facade called at create/update/delete
// boundaries. It never reports failure to its caller: every problem is
// logged and counted. A nil *Service is a valid no-op.
type Service struct {
	publisher   Publisher
	serviceName string
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

type ServiceOption func(*Service)

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides eventId generation.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) { s.newID = newID }
}

func NewService(serviceName string, publisher Publisher, logger *slog.Logger, opts ...ServiceOption) *Service {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		publisher:   publisher,
		serviceName: serviceName,
		logger:      logger.With("component", "audit_service", "service_name", serviceName),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PublishCreate(ctx context.Context, entityType, entityID string, newValue any, userID string) {
	s.Publish(ctx, EventCreated, entityType, entityID, nil, newValue, userID)
}

func (s *Service) PublishUpdate(ctx context.Context, entityType, entityID string, oldValue, newValue any, userID string) {
	s.Publish(ctx, EventUpdated, entityType, entityID, oldValue, newValue, userID)
}

func (s *Service) PublishDelete(ctx context.Context, entityType, entityID string, oldValue any, userID string) {
	s.Publish(ctx, EventDeleted, entityType, entityID, oldValue, nil, userID)
}

// Publish builds an event from the before/after snapshots and enqueues it.
// An empty userID falls back to the principal carried by ctx.
func (s *Service) Publish(ctx context.Context, eventType EventType, entityType, entityID string, oldValue, newValue any, userID string) {
	if s == nil {
		return
	}

	event, err := s.buildEvent(ctx, eventType, entityType, entityID, oldValue, newValue, userID)
	if err != nil {
		eventsPublished.WithLabelValues("service", outcomeFailed).Inc()
		s.logger.ErrorContext(ctx, "failed to build audit event",
			"event_type", string(eventType),
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
		return
	}

	s.PublishEvent(ctx, event)
}

// PublishEvent enqueues a caller-built event, filling eventId, timestamp and
// serviceName when they are empty.
func (s *Service) PublishEvent(ctx context.Context, event Event) {
	if s == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			eventsPublished.WithLabelValues("service", outcomeFailed).Inc()
			s.logger.ErrorContext(ctx, "audit publisher panicked",
				"event_id", event.EventID,
				"error", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if event.EventID == "" {
		event.EventID = s.newID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if event.ServiceName == "" {
		event.ServiceName = s.serviceName
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		eventsPublished.WithLabelValues("service", outcomeFailed).Inc()
		s.logger.WarnContext(ctx, "audit event not published",
			"event_id", event.EventID,
			"event_type", string(event.EventType),
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

func (s *Service) buildEvent(ctx context.Context, eventType EventType, entityType, entityID string, oldValue, newValue any, userID string) (Event, error) {
	oldRaw, err := EncodeValue(oldValue)
	if err != nil {
		return Event{}, fmt.Errorf("old value: %w", err)
	}
	newRaw, err := EncodeValue(newValue)
	if err != nil {
		return Event{}, fmt.Errorf("new value: %w", err)
	}

	if userID == "" {
		userID = contextx.GetAuthPrincipalID(ctx)
	}

	return Event{
		EventID:     s.newID(),
		EventType:   eventType,
		ServiceName: s.serviceName,
		EntityType:  entityType,
		EntityID:    entityID,
		UserID:      userID,
		UserInfo:    contextx.GetUserInfo(ctx),
		OldValue:    oldRaw,
		NewValue:    newRaw,
		Timestamp:   s.now().UTC(),
		RequestID:   contextx.GetRequestID(ctx),
	}, nil
}

// EncodeValue turns an entity snapshot into its opaque wire form. Strings and
// raw bytes pass through untouched; everything else is JSON encoded.
func EncodeValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case json.RawMessage:
		return string(val), nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("audit: encode value: %w", err)
	}
	return string(raw), nil
}
