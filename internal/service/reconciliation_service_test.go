package service

import (
	"context"
	"errors"
	"testing"

	"agri-storefront/internal/models"
	"agri-storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func verifiedEvent(commitErr string) *models.PaymentVerifiedEvent {
	return &models.PaymentVerifiedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypePaymentVerified,
		},
		VerificationID: "ver-1",
		SessionID:      "s1",
		Reference:      "dh00ff00ff",
		ExpectedAmount: 150000,
		PaidAmount:     150000,
		Description:    "DH00FF00FF thanh toan don hang",
		CommitError:    commitErr,
	}
}

func TestHandlePaymentVerified(t *testing.T) {
	tests := []struct {
		name       string
		event      *models.PaymentVerifiedEvent
		setupMocks func(*MockReconciliationStore)
		wantErr    bool
	}{
		{
			name:       "committed order needs nothing",
			event:      verifiedEvent(""),
			setupMocks: func(m *MockReconciliationStore) {},
		},
		{
			name:  "commit failure is recorded",
			event: verifiedEvent("order creation failed: 503"),
			setupMocks: func(m *MockReconciliationStore) {
				m.On("IsEventProcessed", mock.Anything, "evt-1").Return(false, nil)
				m.On("RecordReconciliation", mock.Anything, "evt-1", models.EventTypePaymentVerified,
					mock.MatchedBy(func(r *models.Reconciliation) bool {
						return r.VerificationID == "ver-1" &&
							r.PaidAmount == 150000 &&
							r.CommitError == "order creation failed: 503" &&
							r.Status == models.ReconciliationPending
					})).Return(true, nil).Run(func(args mock.Arguments) {
					args.Get(3).(*models.Reconciliation).ID = 11
				})
			},
		},
		{
			name:  "already processed event is skipped",
			event: verifiedEvent("boom"),
			setupMocks: func(m *MockReconciliationStore) {
				m.On("IsEventProcessed", mock.Anything, "evt-1").Return(true, nil)
			},
		},
		{
			name:  "race lost inside the transaction is not an error",
			event: verifiedEvent("boom"),
			setupMocks: func(m *MockReconciliationStore) {
				m.On("IsEventProcessed", mock.Anything, "evt-1").Return(false, nil)
				m.On("RecordReconciliation", mock.Anything, "evt-1", mock.Anything, mock.Anything).Return(false, nil)
			},
		},
		{
			name:  "store failure is returned for redelivery",
			event: verifiedEvent("boom"),
			setupMocks: func(m *MockReconciliationStore) {
				m.On("IsEventProcessed", mock.Anything, "evt-1").Return(false, nil)
				m.On("RecordReconciliation", mock.Anything, "evt-1", mock.Anything, mock.Anything).
					Return(false, errors.New("db down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockReconciliationStore)
			tt.setupMocks(m)

			err := NewReconciliationService(m).HandlePaymentVerified(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestListPendingAndResolve(t *testing.T) {
	m := new(MockReconciliationStore)
	m.On("ListReconciliations", mock.Anything, models.ReconciliationPending, 50).
		Return([]models.Reconciliation{{ID: 1, Status: models.ReconciliationPending}}, nil)
	m.On("GetReconciliation", mock.Anything, int64(1)).
		Return(&models.Reconciliation{ID: 1, Status: models.ReconciliationPending}, nil)
	m.On("GetReconciliation", mock.Anything, int64(2)).Return(nil, store.ErrReconciliationNotFound)
	m.On("ResolveReconciliation", mock.Anything, int64(1)).Return(nil).Once()
	m.On("ResolveReconciliation", mock.Anything, int64(1)).Return(store.ErrReconciliationNotFound).Once()

	rs := NewReconciliationService(m)

	recs, err := rs.ListPending(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec, err := rs.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	_, err = rs.Get(context.Background(), 2)
	assert.ErrorIs(t, err, store.ErrReconciliationNotFound)

	require.NoError(t, rs.Resolve(context.Background(), 1))
	assert.ErrorIs(t, rs.Resolve(context.Background(), 1), store.ErrReconciliationNotFound)
}
