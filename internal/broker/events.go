package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"agri-storefront/internal/models"
	"agri-storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is the publishing side of a Producer
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing storefront events. Every event is keyed by
// the shopper session so one shopper's events stay ordered.
type EventPublisher struct {
	writer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(writer EventWriter) *EventPublisher {
	return &EventPublisher{writer: writer}
}

func sessionKey(sessionID string) string {
	return "session-" + sessionID
}

// PublishOrderCommitted publishes ORDER_COMMITTED
func (ep *EventPublisher) PublishOrderCommitted(ctx context.Context, event *models.OrderCommittedEvent) error {
	return ep.writer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishPaymentVerified publishes PAYMENT_VERIFIED
func (ep *EventPublisher) PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error {
	return ep.writer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishPaymentVerificationFailed publishes PAYMENT_VERIFICATION_FAILED
func (ep *EventPublisher) PublishPaymentVerificationFailed(ctx context.Context, event *models.PaymentVerificationFailedEvent) error {
	return ep.writer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onPaymentVerified func(context.Context, *models.PaymentVerifiedEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger().Named("events")}
}

// OnPaymentVerified registers a handler for PAYMENT_VERIFIED events
func (eh *EventHandler) OnPaymentVerified(handler func(context.Context, *models.PaymentVerifiedEvent) error) {
	eh.onPaymentVerified = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		// a poison message would otherwise block the partition
		eh.logger.Error("Dropping undecodable message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePaymentVerified:
		if eh.onPaymentVerified != nil {
			var event models.PaymentVerifiedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentVerified event: %w", err)
			}
			return eh.onPaymentVerified(ctx, &event)
		}

	case models.EventTypeOrderCommitted, models.EventTypePaymentVerificationFailed:
		// informational for downstream consumers

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
