package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/authservice/internal/domain"
	pkgkafka "github.com/utafrali/authservice/pkg/kafka"
	"github.com/utafrali/authservice/pkg/logger"
)

// TopicUserRegistered is the Kafka topic for registration events.
const TopicUserRegistered = "auth.user.registered"

// EventTypeUserRegistered is the event_type of registration events.
const EventTypeUserRegistered = "user.registered"

// Aggregate type constant.
const AggregateTypeUser = "user"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Publisher publishes user domain events.
type Publisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
}

// eventSink is satisfied by *pkgkafka.Producer.
type eventSink interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user domain events to Kafka.
type Producer struct {
	sink   eventSink
	logger *slog.Logger
}

// NewProducer creates a new event producer backed by the Kafka producer.
func NewProducer(producer *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{sink: producer, logger: logger}
}

// PublishUserRegistered publishes a user.registered event keyed by user id.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}

	event, err := pkgkafka.NewEvent(EventTypeUserRegistered, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.sink.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
	)

	return nil
}

// NoopPublisher discards events. It is used when Kafka is disabled.
type NoopPublisher struct{}

// PublishUserRegistered does nothing.
func (NoopPublisher) PublishUserRegistered(context.Context, *domain.User) error {
	return nil
}
