package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"agri-storefront/internal/models"
)

var ErrReconciliationNotFound = errors.New("reconciliation not found or already resolved")

const reconciliationColumns = `id, verification_id, session_id, reference, expected_amount, paid_amount,
	description, commit_error, status, created_at, resolved_at`

// RecordReconciliation stores a commit-failed payment and marks the
// originating event processed in one transaction. It returns false when the
// event had already been recorded.
func (s *Store) RecordReconciliation(ctx context.Context, eventID, eventType string, r *models.Reconciliation) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if r.Status == "" {
		r.Status = models.ReconciliationPending
	}

	query := `
		INSERT INTO payment_reconciliations
			(verification_id, session_id, reference, expected_amount, paid_amount, description, commit_error, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err = tx.QueryRowxContext(ctx, query,
		r.VerificationID, r.SessionID, r.Reference, r.ExpectedAmount, r.PaidAmount,
		r.Description, r.CommitError, r.Status,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert reconciliation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListReconciliations returns reconciliations with the given status, newest first
func (s *Store) ListReconciliations(ctx context.Context, status string, limit int) ([]models.Reconciliation, error) {
	if limit <= 0 {
		limit = 100
	}
	recs := []models.Reconciliation{}
	err := s.db.SelectContext(ctx, &recs,
		"SELECT "+reconciliationColumns+" FROM payment_reconciliations WHERE status = $1 ORDER BY created_at DESC LIMIT $2",
		status, limit)
	return recs, err
}

// GetReconciliation retrieves a reconciliation by ID
func (s *Store) GetReconciliation(ctx context.Context, id int64) (*models.Reconciliation, error) {
	var r models.Reconciliation
	err := s.db.GetContext(ctx, &r,
		"SELECT "+reconciliationColumns+" FROM payment_reconciliations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReconciliationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ResolveReconciliation marks a pending reconciliation resolved
func (s *Store) ResolveReconciliation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payment_reconciliations SET status = $1, resolved_at = NOW() WHERE id = $2 AND status = $3",
		models.ReconciliationResolved, id, models.ReconciliationPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrReconciliationNotFound
	}
	return nil
}
