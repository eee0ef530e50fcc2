package worker

import (
	"context"

	"agri-storefront/internal/broker"
	"agri-storefront/internal/models"
	"agri-storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageSource feeds messages to a handler until ctx is done
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PaymentVerifiedHandler receives PAYMENT_VERIFIED events
type PaymentVerifiedHandler interface {
	HandlePaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error
}

// ReconciliationWorker consumes storefront events and records payments whose
// order could not be created
type ReconciliationWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(source MessageSource, handler PaymentVerifiedHandler) *ReconciliationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentVerified(handler.HandlePaymentVerified)

	return &ReconciliationWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger().Named("worker"),
	}
}

// Handle processes one message
func (w *ReconciliationWorker) Handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Start blocks until ctx is cancelled
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciliation worker")
	return w.source.StartConsuming(ctx, w.Handle)
}

// Stop stops the worker
func (w *ReconciliationWorker) Stop() error {
	w.logger.Info("Stopping reconciliation worker")
	return w.source.Close()
}
