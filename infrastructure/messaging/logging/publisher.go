// Package logging is an event publisher that writes events to the
// application log. It is the default when no event bus is configured.
package logging

import (
	"context"

	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/events"
)

var _ ports.EventPublisher = (*Publisher)(nil)

// Publisher logs every event at debug level.
type Publisher struct {
	logger *zap.Logger
}

func NewPublisher(logger *zap.Logger) *Publisher {
	return &Publisher{logger: logger.Named("events")}
}

func (p *Publisher) Publish(ctx context.Context, domainEvents []events.DomainEvent) error {
	for _, event := range domainEvents {
		p.logger.Debug("Domain event",
			zap.String("event_type", event.GetEventType()),
			zap.String("idea_id", event.GetIdeaID()),
			zap.String("node_id", event.GetAggregateID()),
			zap.Int("version", event.GetVersion()),
			zap.Time("timestamp", event.GetTimestamp()),
		)
	}
	return ctx.Err()
}
