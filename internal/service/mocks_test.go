package service

import (
	"context"
	"sync"

	"agri-storefront/internal/feed"
	"agri-storefront/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.OrderRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderRecord), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderCommitted(ctx context.Context, event *models.OrderCommittedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishPaymentVerificationFailed(ctx context.Context, event *models.PaymentVerificationFailedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockCommitter struct {
	mock.Mock
}

func (m *MockCommitter) Commit(ctx context.Context, sessionID string, payload *models.CreateOrderRequest) (*models.OrderRecord, error) {
	args := m.Called(ctx, sessionID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderRecord), args.Error(1)
}

type MockMethods struct {
	mock.Mock
}

func (m *MockMethods) PaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentMethod), args.Error(1)
}

type MockReconciliationStore struct {
	mock.Mock
}

func (m *MockReconciliationStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReconciliationStore) RecordReconciliation(ctx context.Context, eventID, eventType string, r *models.Reconciliation) (bool, error) {
	args := m.Called(ctx, eventID, eventType, r)
	return args.Bool(0), args.Error(1)
}

func (m *MockReconciliationStore) ListReconciliations(ctx context.Context, status string, limit int) ([]models.Reconciliation, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reconciliation), args.Error(1)
}

func (m *MockReconciliationStore) GetReconciliation(ctx context.Context, id int64) (*models.Reconciliation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reconciliation), args.Error(1)
}

func (m *MockReconciliationStore) ResolveReconciliation(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// memoryPersister keeps carts in process
type memoryPersister struct {
	mu   sync.Mutex
	data map[string][]models.CartLine
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{data: make(map[string][]models.CartLine)}
}

func (p *memoryPersister) Load(_ context.Context, key string) ([]models.CartLine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[key], nil
}

func (p *memoryPersister) Save(_ context.Context, key string, lines []models.CartLine) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = lines
	return nil
}

// gatedFeed answers every fetch with whatever respond returns
type gatedFeed struct {
	respond func(ctx context.Context) feed.Result
}

func (g *gatedFeed) FetchRecentTransactions(ctx context.Context) feed.Result {
	return g.respond(ctx)
}
