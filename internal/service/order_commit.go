package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agri-storefront/internal/cart"
	"agri-storefront/internal/models"
	"agri-storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrDuplicateCommit = errors.New("order submission already in progress")
	ErrNoConfirmation  = errors.New("no order confirmation for session")
)

// OrderCreationError is returned when the backend rejected or failed the order
type OrderCreationError struct {
	Err error
}

func (e *OrderCreationError) Error() string {
	return "order creation failed: " + e.Err.Error()
}

func (e *OrderCreationError) Unwrap() error {
	return e.Err
}

// OrderBackend creates orders in the order-management system
type OrderBackend interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.OrderRecord, error)
}

// EventPublisher publishes storefront events
type EventPublisher interface {
	PublishOrderCommitted(ctx context.Context, event *models.OrderCommittedEvent) error
	PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error
	PublishPaymentVerificationFailed(ctx context.Context, event *models.PaymentVerificationFailedEvent) error
}

// KVStore is the Redis surface used for confirmations and commit locks
type KVStore interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// CartProvider resolves a shopper session to its cart
type CartProvider interface {
	Cart(ctx context.Context, sessionID string) (*cart.Store, error)
}

// Confirmation is the hand-off record read by the confirmation view
type Confirmation struct {
	Order       *models.OrderRecord `json:"order"`
	PaymentTerm string              `json:"payment_term"`
	CommittedAt time.Time           `json:"committed_at"`
}

const (
	DefaultConfirmationTTL = 30 * time.Minute
	commitLockTTL          = time.Minute
	publishTimeout         = 5 * time.Second
)

// OrderCommitter submits built payloads to the backend and hands the result
// to the confirmation view
type OrderCommitter struct {
	backend         OrderBackend
	kv              KVStore
	publisher       EventPublisher
	carts           CartProvider
	confirmationTTL time.Duration
	logger          *zap.Logger
}

func NewOrderCommitter(
	backend OrderBackend,
	kv KVStore,
	publisher EventPublisher,
	carts CartProvider,
	confirmationTTL time.Duration,
) *OrderCommitter {
	if confirmationTTL <= 0 {
		confirmationTTL = DefaultConfirmationTTL
	}
	return &OrderCommitter{
		backend:         backend,
		kv:              kv,
		publisher:       publisher,
		carts:           carts,
		confirmationTTL: confirmationTTL,
		logger:          util.GetLogger(),
	}
}

func confirmationKey(sessionID string) string {
	return "confirmation:" + sessionID
}

func cartClearedKey(sessionID string, orderID int64) string {
	return fmt.Sprintf("cart-cleared:%s:%d", sessionID, orderID)
}

func commitLockKey(idempotencyKey string) string {
	return "commit:" + idempotencyKey
}

// Commit creates the order. The lock on the idempotency key is kept until it
// expires after a success and released after a failure so the shopper can retry.
func (c *OrderCommitter) Commit(ctx context.Context, sessionID string, payload *models.CreateOrderRequest) (*models.OrderRecord, error) {
	ctx, span := util.StartSpan(ctx, "OrderCommitter.Commit")
	defer span.End()

	if payload.IdempotencyKey == "" {
		payload.IdempotencyKey = uuid.New().String()
	}
	lockKey := commitLockKey(payload.IdempotencyKey)

	acquired, err := c.kv.AcquireLock(ctx, lockKey, commitLockTTL)
	switch {
	case err != nil:
		// a paid order still gets committed while Redis is down
		c.logger.Warn("Commit lock unavailable, continuing without it",
			zap.String("session_id", sessionID), zap.Error(err))
	case !acquired:
		util.OrderCommitFailuresTotal.WithLabelValues("duplicate").Inc()
		c.logger.Info("Duplicate order submission rejected",
			zap.String("session_id", sessionID),
			zap.String("idempotency_key", payload.IdempotencyKey))
		return nil, ErrDuplicateCommit
	}

	order, err := c.backend.CreateOrder(ctx, payload)
	if err != nil {
		util.OrderCommitFailuresTotal.WithLabelValues("backend").Inc()
		util.RecordError(span, err)
		if acquired {
			if relErr := c.kv.ReleaseLock(context.WithoutCancel(ctx), lockKey); relErr != nil {
				c.logger.Warn("Failed to release commit lock", zap.Error(relErr))
			}
		}
		return nil, &OrderCreationError{Err: err}
	}

	util.OrdersCommittedTotal.WithLabelValues(payload.PaymentTerm).Inc()
	c.logger.Info("Order committed",
		zap.String("session_id", sessionID),
		zap.Int64("order_id", order.ID),
		zap.String("order_no", order.OrderNo),
		zap.String("payment_term", payload.PaymentTerm),
		zap.Int64("total_amount", payload.TotalAmount))

	conf := Confirmation{Order: order, PaymentTerm: payload.PaymentTerm, CommittedAt: time.Now()}
	if err := c.kv.SetJSON(ctx, confirmationKey(sessionID), conf, c.confirmationTTL); err != nil {
		c.logger.Error("Failed to store order confirmation",
			zap.String("session_id", sessionID),
			zap.String("order_no", order.OrderNo),
			zap.Error(err))
	}

	c.publishCommitted(ctx, sessionID, payload, order)
	return order, nil
}

func (c *OrderCommitter) publishCommitted(ctx context.Context, sessionID string, payload *models.CreateOrderRequest, order *models.OrderRecord) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := &models.OrderCommittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCommitted,
			Timestamp: time.Now(),
		},
		SessionID:   sessionID,
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		PaymentTerm: payload.PaymentTerm,
		TotalAmount: payload.TotalAmount,
		ItemCount:   len(payload.Items),
	}
	if err := c.publisher.PublishOrderCommitted(pubCtx, event); err != nil {
		c.logger.Error("Failed to publish OrderCommitted event", zap.Error(err))
	}
}

// Confirmation returns the last committed order of the session. The first
// read for an order empties the cart; later reads of the same record leave
// the shopper's new cart alone.
func (c *OrderCommitter) Confirmation(ctx context.Context, sessionID string) (*Confirmation, error) {
	var conf Confirmation
	found, err := c.kv.GetJSON(ctx, confirmationKey(sessionID), &conf)
	if err != nil {
		return nil, fmt.Errorf("failed to load confirmation: %w", err)
	}
	if !found || conf.Order == nil {
		return nil, ErrNoConfirmation
	}

	first, err := c.kv.AcquireLock(ctx, cartClearedKey(sessionID, conf.Order.ID), c.confirmationTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to mark confirmation read: %w", err)
	}
	if !first {
		return &conf, nil
	}

	store, err := c.carts.Cart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	store.Clear(ctx)
	c.logger.Debug("Cart cleared after confirmation",
		zap.String("session_id", sessionID),
		zap.String("order_no", conf.Order.OrderNo))

	return &conf, nil
}

// DismissConfirmation drops the hand-off record
func (c *OrderCommitter) DismissConfirmation(ctx context.Context, sessionID string) error {
	if err := c.kv.Delete(ctx, confirmationKey(sessionID)); err != nil {
		return fmt.Errorf("failed to delete confirmation: %w", err)
	}
	return nil
}
