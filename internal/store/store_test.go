package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"agri-storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreFromDB(sqlx.NewDb(db, "postgres")), mock
}

func TestIsEventProcessed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)")).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.IsEventProcessed(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReconciliation(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_events")).
		WithArgs("evt-1", models.EventTypePaymentVerified).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO payment_reconciliations")).
		WithArgs("ver-1", "sess-1", "dh1a2b3c4d", int64(150000), 150000.0, "DH1A2B3C4D thanh toan", "backend down", models.ReconciliationPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, created))
	mock.ExpectCommit()

	r := &models.Reconciliation{
		VerificationID: "ver-1",
		SessionID:      "sess-1",
		Reference:      "dh1a2b3c4d",
		ExpectedAmount: 150000,
		PaidAmount:     150000,
		Description:    "DH1A2B3C4D thanh toan",
		CommitError:    "backend down",
	}
	recorded, err := s.RecordReconciliation(context.Background(), "evt-1", models.EventTypePaymentVerified, r)

	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, int64(7), r.ID)
	assert.Equal(t, created, r.CreatedAt)
	assert.Equal(t, models.ReconciliationPending, r.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReconciliation_DuplicateEvent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_events")).
		WithArgs("evt-1", models.EventTypePaymentVerified).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	recorded, err := s.RecordReconciliation(context.Background(), "evt-1", models.EventTypePaymentVerified, &models.Reconciliation{})
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReconciliations(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "verification_id", "session_id", "reference", "expected_amount", "paid_amount",
		"description", "commit_error", "status", "created_at", "resolved_at",
	}).AddRow(1, "ver-1", "sess-1", "dh1", 1000, 1000.0, "DH1 x", "boom", models.ReconciliationPending, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_reconciliations WHERE status = $1")).
		WithArgs(models.ReconciliationPending, 100).
		WillReturnRows(rows)

	recs, err := s.ListReconciliations(context.Background(), models.ReconciliationPending, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "boom", recs[0].CommitError)
	assert.Nil(t, recs[0].ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveReconciliation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_reconciliations SET status = $1")).
		WithArgs(models.ReconciliationResolved, int64(3), models.ReconciliationPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_reconciliations SET status = $1")).
		WithArgs(models.ReconciliationResolved, int64(3), models.ReconciliationPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.ResolveReconciliation(context.Background(), 3))
	assert.ErrorIs(t, s.ResolveReconciliation(context.Background(), 3), ErrReconciliationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReconciliation_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_reconciliations WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetReconciliation(context.Background(), 9)
	assert.ErrorIs(t, err, ErrReconciliationNotFound)
}
