package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agri-storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrSessionRequired = errors.New("session id is required")

const (
	// DefaultNamespace prefixes every persisted cart key
	DefaultNamespace = "cart"
	// DefaultIdleEviction is how long an untouched cart stays in memory
	DefaultIdleEviction = time.Hour
)

type entry struct {
	store    *Store
	lastUsed time.Time
}

// Manager hands out one Store per shopper session, restoring it from the
// persister the first time the session is seen. Carts untouched for longer
// than the idle window are dropped from memory; the persisted copy stays.
type Manager struct {
	namespace string
	persister Persister
	now       func() time.Time
	logger    *zap.Logger

	mu    sync.Mutex
	carts map[string]*entry
	sfg   singleflight.Group
}

func NewManager(namespace string, persister Persister) *Manager {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Manager{
		namespace: namespace,
		persister: persister,
		now:       time.Now,
		logger:    util.GetLogger().Named("cart"),
		carts:     make(map[string]*entry),
	}
}

// Key returns the storage key for a session's cart
func (m *Manager) Key(sessionID string) string {
	return fmt.Sprintf("%s:%s", m.namespace, sessionID)
}

// Cart returns the store for sessionID. A failed restore is not cached, so
// the next call tries the persister again.
func (m *Manager) Cart(ctx context.Context, sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	if s, ok := m.lookup(sessionID); ok {
		return s, nil
	}

	// concurrent first requests for one session must share a single Store
	v, err, _ := m.sfg.Do(sessionID, func() (interface{}, error) {
		if s, ok := m.lookup(sessionID); ok {
			return s, nil
		}

		// one caller's cancellation must not fail the load for the others
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		restored, err := Restore(loadCtx, m.Key(sessionID), m.persister)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.carts[sessionID] = &entry{store: restored, lastUsed: m.now()}
		m.mu.Unlock()
		return restored, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Store), nil
}

func (m *Manager) lookup(sessionID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.carts[sessionID]
	if !ok {
		return nil, false
	}
	e.lastUsed = m.now()
	return e.store, true
}

// EvictIdle drops carts not requested within idle and returns how many were dropped
func (m *Manager) EvictIdle(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.carts {
		if e.lastUsed.Before(cutoff) {
			delete(m.carts, id)
			n++
		}
	}
	return n
}

// Len returns the number of carts held in memory
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts)
}

// RunEviction calls EvictIdle every interval until ctx is cancelled
func (m *Manager) RunEviction(ctx context.Context, interval, idle time.Duration) {
	if idle <= 0 {
		idle = DefaultIdleEviction
	}
	if interval <= 0 {
		interval = idle / 4
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(idle); n > 0 {
				m.logger.Debug("Evicted idle carts", zap.Int("count", n), zap.Int("remaining", m.Len()))
			}
		}
	}
}
