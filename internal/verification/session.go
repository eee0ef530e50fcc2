package verification

import (
	"context"
	"errors"
	"sync"
	"time"

	"agri-storefront/internal/checkout"
	"agri-storefront/internal/feed"
	"agri-storefront/internal/models"
	"agri-storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status of a verification session. Success and failed are terminal.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusVerifying Status = "verifying"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// CommitState separates "payment detected" from "order created"
type CommitState string

const (
	CommitNotAttempted CommitState = ""
	CommitInProgress   CommitState = "committing"
	CommitSucceeded    CommitState = "committed"
	CommitFailed       CommitState = "commit_failed"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultTimeout      = 2 * time.Minute
	commitTimeout       = 30 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("verification session already started")
	ErrSessionClosed  = errors.New("verification session closed")
)

// CommitFunc creates the order once the payment has been detected
type CommitFunc func(ctx context.Context) (*models.OrderRecord, error)

// Expectation is what the incoming transfer must look like
type Expectation struct {
	Amount int64
	Note   string
}

// Config tunes a session. Zero values fall back to the defaults and the wall clock.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        Clock
	// OnTerminal runs on the session goroutine after success (with the commit
	// outcome filled in) or timeout. It must not call Close.
	OnTerminal func(Snapshot)
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Clock == nil {
		c.Clock = WallClock{}
	}
	return c
}

// Snapshot is a copy of the session state safe to hand out
type Snapshot struct {
	ID             string              `json:"id"`
	Status         Status              `json:"status"`
	ExpectedAmount int64               `json:"expected_amount"`
	Note           string              `json:"note"`
	Reference      string              `json:"reference"`
	Commit         CommitState         `json:"commit,omitempty"`
	CommitError    string              `json:"commit_error,omitempty"`
	Order          *models.OrderRecord `json:"order,omitempty"`
	Matched        *feed.Record        `json:"matched,omitempty"`
	LastError      feed.ErrorCode      `json:"last_error,omitempty"`
	Checks         int                 `json:"checks"`
	StartedAt      time.Time           `json:"started_at,omitempty"`
	EndedAt        time.Time           `json:"ended_at,omitempty"`
}

// Session polls the transaction feed until a transfer matching the
// expectation shows up or the timeout elapses, and commits the order at
// most once.
type Session struct {
	id      string
	cfg     Config
	fetcher feed.Fetcher
	commit  CommitFunc
	exp     Expectation
	token   string
	logger  *zap.Logger

	mu           sync.Mutex
	status       Status
	started      bool
	closed       bool
	hasCommitted bool
	commitState  CommitState
	commitErr    string
	order        *models.OrderRecord
	matched      *feed.Record
	lastErr      feed.ErrorCode
	checks       int
	startedAt    time.Time
	endedAt      time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewSession creates an idle session. The reference token is taken from the
// first word of exp.Note.
func NewSession(fetcher feed.Fetcher, exp Expectation, commit CommitFunc, cfg Config) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		cfg:     cfg.withDefaults(),
		fetcher: fetcher,
		commit:  commit,
		exp:     exp,
		token:   checkout.ReferenceToken(exp.Note),
		status:  StatusIdle,
		logger:  util.GetLogger().Named("verification").With(zap.String("verification_id", id)),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Start enters verifying, checks the feed immediately, then every
// PollInterval until a match or Timeout. ctx only carries values; the
// session outlives it and ends through Close or a terminal transition.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.status = StatusVerifying
	s.startedAt = s.cfg.Clock.Now()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	// timers are created before the goroutine starts so the timeout counts from here
	ticker := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	timer := s.cfg.Clock.NewTimer(s.cfg.Timeout)
	s.mu.Unlock()

	util.VerificationSessionsStarted.Inc()
	s.logger.Info("Verification started",
		zap.Int64("expected_amount", s.exp.Amount),
		zap.String("reference", s.token))

	go s.run(runCtx, ticker, timer)
	return nil
}

func (s *Session) run(ctx context.Context, ticker Ticker, timer Timer) {
	defer close(s.done)
	defer ticker.Stop()
	defer timer.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.Tick(ctx)
		case <-timer.C():
			s.Expire()
			return
		}
	}
}

// Tick performs one feed check. It is a no-op unless the session is verifying.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.status != StatusVerifying {
		s.mu.Unlock()
		return
	}
	s.checks++
	s.mu.Unlock()

	res := s.fetcher.FetchRecentTransactions(ctx)

	s.mu.Lock()
	// closed or expired while the fetch was in flight
	if s.status != StatusVerifying {
		s.mu.Unlock()
		return
	}
	if !res.OK() {
		s.lastErr = res.Err
		s.mu.Unlock()
		util.VerificationTicksTotal.WithLabelValues("error").Inc()
		return
	}
	s.lastErr = ""

	rec, ok := Match(res.Records, s.exp.Amount, s.token)
	if !ok {
		s.mu.Unlock()
		util.VerificationTicksTotal.WithLabelValues("no_match").Inc()
		return
	}

	s.status = StatusSuccess
	s.matched = &rec
	s.endedAt = s.cfg.Clock.Now()
	s.teardownLocked()

	shouldCommit := !s.hasCommitted
	s.hasCommitted = true
	if shouldCommit {
		s.commitState = CommitInProgress
	}
	s.mu.Unlock()

	util.VerificationTicksTotal.WithLabelValues("match").Inc()
	s.logger.Info("Payment detected",
		zap.Float64("amount", rec.Amount),
		zap.String("description", rec.Description))

	if !shouldCommit {
		return
	}
	s.runCommit(ctx)
}

func (s *Session) runCommit(ctx context.Context) {
	// the run context is already cancelled by teardown
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	order, err := s.callCommit(commitCtx)

	s.mu.Lock()
	if err != nil {
		s.commitState = CommitFailed
		s.commitErr = err.Error()
	} else {
		s.commitState = CommitSucceeded
		s.order = order
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		util.VerificationOutcomesTotal.WithLabelValues(string(CommitFailed)).Inc()
		s.logger.Error("Payment detected but order creation failed, needs reconciliation", zap.Error(err))
	} else {
		util.VerificationOutcomesTotal.WithLabelValues(string(CommitSucceeded)).Inc()
	}

	s.notifyTerminal(snap)
}

func (s *Session) callCommit(ctx context.Context) (order *models.OrderRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("commit panicked")
			s.logger.Error("Commit panicked", zap.Any("panic", r))
		}
	}()
	if s.commit == nil {
		return nil, errors.New("no commit operation configured")
	}
	return s.commit(ctx)
}

// Expire moves a verifying session to failed. It is a no-op in any other state.
func (s *Session) Expire() {
	s.mu.Lock()
	if s.status != StatusVerifying {
		s.mu.Unlock()
		return
	}
	s.status = StatusFailed
	s.endedAt = s.cfg.Clock.Now()
	s.teardownLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	util.VerificationOutcomesTotal.WithLabelValues("timeout").Inc()
	s.logger.Info("Verification timed out",
		zap.Int("checks", snap.Checks),
		zap.String("last_error", string(snap.LastError)))

	s.notifyTerminal(snap)
}

// Close cancels the ticker and timeout. A verifying session goes back to
// idle; success and failed are kept. Close waits for the session goroutine
// unless a commit is in flight, in which case the commit finishes on its own
// and still reports through OnTerminal. A closed session cannot be restarted.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wasVerifying := s.status == StatusVerifying
	committing := s.commitState == CommitInProgress
	s.closed = true
	s.teardownLocked()
	if s.status == StatusVerifying {
		s.status = StatusIdle
	}
	done := s.done
	s.mu.Unlock()

	if done != nil && !committing {
		<-done
	}
	if wasVerifying {
		util.VerificationOutcomesTotal.WithLabelValues("closed").Inc()
	}
	s.logger.Debug("Verification closed", zap.Bool("commit_in_flight", committing))
}

// Done is closed when the session goroutine exits; nil before Start
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// teardownLocked is the single place timers are cancelled
func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) notifyTerminal(snap Snapshot) {
	if s.cfg.OnTerminal != nil {
		s.cfg.OnTerminal(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Status:         s.status,
		ExpectedAmount: s.exp.Amount,
		Note:           s.exp.Note,
		Reference:      s.token,
		Commit:         s.commitState,
		CommitError:    s.commitErr,
		Order:          s.order,
		LastError:      s.lastErr,
		Checks:         s.checks,
		StartedAt:      s.startedAt,
		EndedAt:        s.endedAt,
	}
	if s.matched != nil {
		m := *s.matched
		snap.Matched = &m
	}
	return snap
}
