package service

import (
	"context"
	"fmt"

	"agri-storefront/internal/models"
	"agri-storefront/internal/util"

	"go.uber.org/zap"
)

// ReconciliationStore persists commit-failed payments
type ReconciliationStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	RecordReconciliation(ctx context.Context, eventID, eventType string, r *models.Reconciliation) (bool, error)
	ListReconciliations(ctx context.Context, status string, limit int) ([]models.Reconciliation, error)
	GetReconciliation(ctx context.Context, id int64) (*models.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, id int64) error
}

// ReconciliationService turns "paid but no order" outcomes into an operator
// work list
type ReconciliationService struct {
	store  ReconciliationStore
	logger *zap.Logger
}

func NewReconciliationService(store ReconciliationStore) *ReconciliationService {
	return &ReconciliationService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// HandlePaymentVerified records the payment when its order could not be created
func (rs *ReconciliationService) HandlePaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error {
	ctx, span := util.StartSpan(ctx, "ReconciliationService.HandlePaymentVerified")
	defer span.End()

	if event.CommitError == "" {
		return nil
	}

	processed, err := rs.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		rs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	rec := &models.Reconciliation{
		VerificationID: event.VerificationID,
		SessionID:      event.SessionID,
		Reference:      event.Reference,
		ExpectedAmount: event.ExpectedAmount,
		PaidAmount:     event.PaidAmount,
		Description:    event.Description,
		CommitError:    event.CommitError,
		Status:         models.ReconciliationPending,
	}

	recorded, err := rs.store.RecordReconciliation(ctx, event.EventID, event.EventType, rec)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to record reconciliation: %w", err)
	}
	if !recorded {
		rs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	util.ReconciliationsRecordedTotal.Inc()
	rs.logger.Warn("Payment needs manual reconciliation",
		zap.Int64("reconciliation_id", rec.ID),
		zap.String("verification_id", rec.VerificationID),
		zap.String("reference", rec.Reference),
		zap.Float64("paid_amount", rec.PaidAmount),
		zap.String("commit_error", rec.CommitError))
	return nil
}

// ListPending returns unresolved reconciliations, newest first
func (rs *ReconciliationService) ListPending(ctx context.Context, limit int) ([]models.Reconciliation, error) {
	return rs.store.ListReconciliations(ctx, models.ReconciliationPending, limit)
}

// Get returns one reconciliation regardless of its status
func (rs *ReconciliationService) Get(ctx context.Context, id int64) (*models.Reconciliation, error) {
	return rs.store.GetReconciliation(ctx, id)
}

// Resolve marks a reconciliation handled by an operator
func (rs *ReconciliationService) Resolve(ctx context.Context, id int64) error {
	if err := rs.store.ResolveReconciliation(ctx, id); err != nil {
		return err
	}
	rs.logger.Info("Reconciliation resolved", zap.Int64("reconciliation_id", id))
	return nil
}
