package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agri-storefront/internal/checkout"
	"agri-storefront/internal/feed"
	"agri-storefront/internal/models"
	"agri-storefront/internal/util"
	"agri-storefront/internal/verification"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrVerificationNotFound = errors.New("verification session not found")

// PaymentMethodSource lists the configured payment methods
type PaymentMethodSource interface {
	PaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
}

// Committer turns a built payload into an order
type Committer interface {
	Commit(ctx context.Context, sessionID string, payload *models.CreateOrderRequest) (*models.OrderRecord, error)
}

type CheckoutConfig struct {
	Bank         checkout.BankAccount
	NoteSuffix   string
	Verification verification.Config
	// how long a finished verification stays readable
	Retention time.Duration
}

// CheckoutRequest is what the shopper submits from the checkout form
type CheckoutRequest struct {
	Form           models.CheckoutForm
	Profile        *models.UserProfile
	IdempotencyKey string
}

// PendingPayment is what the transfer modal needs to show
type PendingPayment struct {
	SessionID string              `json:"session_id"`
	Amount    int64               `json:"amount"`
	Note      string              `json:"note"`
	QRURL     string              `json:"qr_url"`
	Status    verification.Status `json:"status"`
}

type CheckoutResult struct {
	PaymentTerm string              `json:"payment_term"`
	Order       *models.OrderRecord `json:"order,omitempty"`
	Payment     *PendingPayment     `json:"payment,omitempty"`
}

// CheckoutService validates checkouts, commits cash-on-delivery orders
// directly and runs bank-transfer verification for prepaid ones. Each shopper
// has at most one open verification.
type CheckoutService struct {
	carts     CartProvider
	methods   PaymentMethodSource
	committer Committer
	fetcher   feed.Fetcher
	publisher EventPublisher
	cfg       CheckoutConfig
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*verification.Session
}

func NewCheckoutService(
	carts CartProvider,
	methods PaymentMethodSource,
	committer Committer,
	fetcher feed.Fetcher,
	publisher EventPublisher,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.NoteSuffix == "" {
		cfg.NoteSuffix = checkout.DefaultNoteSuffix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 15 * time.Minute
	}
	return &CheckoutService{
		carts:     carts,
		methods:   methods,
		committer: committer,
		fetcher:   fetcher,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger().Named("checkout"),
		sessions:  make(map[string]*verification.Session),
	}
}

// ActivePaymentMethods lists the methods a shopper may pick
func (s *CheckoutService) ActivePaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	methods, err := s.methods.PaymentMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment methods: %w", err)
	}
	active := make([]models.PaymentMethod, 0, len(methods))
	for _, m := range methods {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active, nil
}

// Checkout builds the order payload from the shopper's cart. COD orders are
// committed right away; prepaid orders start a verification session and are
// committed once the transfer is seen.
func (s *CheckoutService) Checkout(ctx context.Context, sessionID string, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	store, err := s.carts.Cart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	methods, err := s.methods.PaymentMethods(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load payment methods: %w", err)
	}

	form := checkout.FormFromProfile(req.Form, req.Profile)
	method := checkout.FindPaymentMethod(methods, form.PaymentMethodID)

	payload, err := checkout.Build(store.Snapshot(), form, method)
	if err != nil {
		util.CheckoutValidationFailuresTotal.Inc()
		return nil, err
	}
	payload.IdempotencyKey = req.IdempotencyKey
	if payload.IdempotencyKey == "" {
		payload.IdempotencyKey = uuid.New().String()
	}

	if payload.PaymentTerm == models.PaymentTermCOD {
		order, err := s.committer.Commit(ctx, sessionID, payload)
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{PaymentTerm: payload.PaymentTerm, Order: order}, nil
	}

	pending, err := s.startVerification(ctx, sessionID, payload)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{PaymentTerm: payload.PaymentTerm, Payment: pending}, nil
}

func (s *CheckoutService) startVerification(ctx context.Context, sessionID string, payload *models.CreateOrderRequest) (*PendingPayment, error) {
	note := checkout.NewPaymentNote(checkout.NewReferenceCode(), s.cfg.NoteSuffix)

	commit := func(ctx context.Context) (*models.OrderRecord, error) {
		return s.committer.Commit(ctx, sessionID, payload)
	}

	cfg := s.cfg.Verification
	var sess *verification.Session
	cfg.OnTerminal = func(snap verification.Snapshot) {
		s.onTerminal(sessionID, sess, snap)
	}
	sess = verification.NewSession(s.fetcher, verification.Expectation{Amount: payload.TotalAmount, Note: note}, commit, cfg)

	s.mu.Lock()
	prev := s.sessions[sessionID]
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	if err := sess.Start(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("Awaiting bank transfer",
		zap.String("session_id", sessionID),
		zap.String("verification_id", sess.ID()),
		zap.Int64("amount", payload.TotalAmount),
		zap.String("note", note))

	return &PendingPayment{
		SessionID: sess.ID(),
		Amount:    payload.TotalAmount,
		Note:      note,
		QRURL:     checkout.QRImageURL(s.cfg.Bank, payload.TotalAmount, note),
		Status:    sess.Snapshot().Status,
	}, nil
}

func (s *CheckoutService) onTerminal(sessionID string, sess *verification.Session, snap verification.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var err error
	switch snap.Status {
	case verification.StatusSuccess:
		event := &models.PaymentVerifiedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentVerified,
				Timestamp: time.Now(),
			},
			VerificationID: snap.ID,
			SessionID:      sessionID,
			Reference:      snap.Reference,
			ExpectedAmount: snap.ExpectedAmount,
			CommitError:    snap.CommitError,
		}
		if snap.Matched != nil {
			event.PaidAmount = snap.Matched.Amount
			event.Description = snap.Matched.Description
		}
		if snap.Order != nil {
			event.OrderNo = snap.Order.OrderNo
		}
		err = s.publisher.PublishPaymentVerified(ctx, event)

	case verification.StatusFailed:
		err = s.publisher.PublishPaymentVerificationFailed(ctx, &models.PaymentVerificationFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentVerificationFailed,
				Timestamp: time.Now(),
			},
			VerificationID: snap.ID,
			SessionID:      sessionID,
			Reference:      snap.Reference,
			ExpectedAmount: snap.ExpectedAmount,
			LastError:      string(snap.LastError),
		})
	}
	if err != nil {
		s.logger.Error("Failed to publish verification outcome",
			zap.String("verification_id", snap.ID),
			zap.String("status", string(snap.Status)),
			zap.Error(err))
	}

	time.AfterFunc(s.cfg.Retention, func() {
		s.forget(sessionID, sess)
	})
}

// forget drops sess from the registry unless it has been replaced since
func (s *CheckoutService) forget(sessionID string, sess *verification.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sessionID] == sess {
		delete(s.sessions, sessionID)
	}
}

func (s *CheckoutService) lookup(sessionID, verificationID string) (*verification.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.ID() != verificationID {
		return nil, ErrVerificationNotFound
	}
	return sess, nil
}

// Verification returns the state of the shopper's verification session
func (s *CheckoutService) Verification(sessionID, verificationID string) (verification.Snapshot, error) {
	sess, err := s.lookup(sessionID, verificationID)
	if err != nil {
		return verification.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// CloseVerification dismisses the transfer modal. A verifying session returns
// to idle and stops polling; a commit already under way still completes and
// is published.
func (s *CheckoutService) CloseVerification(sessionID, verificationID string) (verification.Snapshot, error) {
	sess, err := s.lookup(sessionID, verificationID)
	if err != nil {
		return verification.Snapshot{}, err
	}
	s.forget(sessionID, sess)
	sess.Close()
	return sess.Snapshot(), nil
}

// Shutdown closes every open verification session and waits until ctx is
// done for commits that are still running
func (s *CheckoutService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*verification.Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	for _, sess := range sessions {
		done := sess.Done()
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Shutdown interrupted an order commit",
				zap.String("verification_id", sess.ID()))
			return
		}
	}
}
