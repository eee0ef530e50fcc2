package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agri-storefront/internal/models"
	"agri-storefront/internal/util"

	"go.uber.org/zap"
)

// Action tells the caller whether AddItem created a new line or grew an existing one
type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdated Action = "updated"
)

// AddResult reports what AddItem did. Quantity is the amount just added for a
// new line, or the new line total for an existing one.
type AddResult struct {
	Action   Action `json:"action"`
	Quantity int    `json:"quantity"`
}

// Snapshot is a point-in-time copy of the cart with its derived totals
type Snapshot struct {
	Lines      []models.CartLine `json:"lines"`
	TotalItems int               `json:"total_items"`
	TotalPrice int64             `json:"total_price"`
}

// IsEmpty reports whether the snapshot has no lines
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Persister is the durable side of the cart. Failures never affect the in-memory state.
type Persister interface {
	Load(ctx context.Context, key string) ([]models.CartLine, error)
	Save(ctx context.Context, key string, lines []models.CartLine) error
}

const persistTimeout = 2 * time.Second

// Store owns the line items of a single cart. Every mutation is written
// through to the persister before the call returns.
type Store struct {
	mu        sync.Mutex
	key       string
	lines     []models.CartLine
	persister Persister
	subs      map[int]func(Snapshot)
	nextSub   int
	logger    *zap.Logger
}

// NewStore creates a cart seeded with lines. persister may be nil for a memory-only cart.
func NewStore(key string, lines []models.CartLine, persister Persister) *Store {
	s := &Store{
		key:       key,
		persister: persister,
		subs:      make(map[int]func(Snapshot)),
		logger:    util.GetLogger().Named("cart"),
	}
	for _, l := range lines {
		if l.Quantity < 1 || s.indexOf(l.Product.ID) >= 0 {
			continue
		}
		s.lines = append(s.lines, l)
	}
	return s
}

// Restore loads a cart from the persister. An unreadable blob yields an
// empty cart; any other load failure is returned so the stored cart is not
// overwritten by an empty one.
func Restore(ctx context.Context, key string, persister Persister) (*Store, error) {
	var lines []models.CartLine
	if persister != nil {
		loaded, err := persister.Load(ctx, key)
		switch {
		case errors.Is(err, ErrUnreadableCart):
			util.CartPersistFailuresTotal.WithLabelValues("decode").Inc()
			util.GetLogger().Warn("Discarding unreadable cart",
				zap.String("key", key),
				zap.Error(err))
		case err != nil:
			util.CartPersistFailuresTotal.WithLabelValues("load").Inc()
			return nil, fmt.Errorf("failed to restore cart %s: %w", key, err)
		default:
			lines = loaded
		}
	}
	return NewStore(key, lines, persister), nil
}

// AddItem merges quantity into the line for product, creating it if needed
func (s *Store) AddItem(ctx context.Context, product models.ProductRef, quantity int) AddResult {
	s.mu.Lock()

	idx := s.indexOf(product.ID)
	if quantity < 1 {
		current := 0
		if idx >= 0 {
			current = s.lines[idx].Quantity
		}
		s.mu.Unlock()
		return AddResult{Action: ActionUpdated, Quantity: current}
	}

	var res AddResult
	if idx >= 0 {
		s.lines[idx].Quantity += quantity
		res = AddResult{Action: ActionUpdated, Quantity: s.lines[idx].Quantity}
	} else {
		s.lines = append(s.lines, models.CartLine{Product: product, Quantity: quantity})
		res = AddResult{Action: ActionAdded, Quantity: quantity}
	}

	snap := s.commitLocked(ctx, "add")
	s.mu.Unlock()

	s.notify(snap)
	return res
}

// RemoveItem deletes the line for productID if present
func (s *Store) RemoveItem(ctx context.Context, productID int64) {
	s.mu.Lock()
	idx := s.indexOf(productID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	snap := s.commitLocked(ctx, "remove")
	s.mu.Unlock()

	s.notify(snap)
}

// UpdateQuantity replaces the quantity of a line; quantity <= 0 removes it
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(ctx, productID)
		return
	}

	s.mu.Lock()
	idx := s.indexOf(productID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.lines[idx].Quantity = quantity
	snap := s.commitLocked(ctx, "update")
	s.mu.Unlock()

	s.notify(snap)
}

// Clear empties the cart
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	snap := s.commitLocked(ctx, "clear")
	s.mu.Unlock()

	s.notify(snap)
}

// Lines returns a copy of the current lines
func (s *Store) Lines() []models.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLinesLocked()
}

// TotalItems is the sum of all line quantities
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalItems(s.lines)
}

// TotalPrice is the sum of quantity*price over all lines
func (s *Store) TotalPrice() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalPrice(s.lines)
}

// Snapshot returns the lines together with freshly computed totals
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after every mutation. The returned
// func removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) commitLocked(ctx context.Context, op string) Snapshot {
	util.CartMutationsTotal.WithLabelValues(op).Inc()
	snap := s.snapshotLocked()

	if s.persister == nil {
		return snap
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.persister.Save(ctx, s.key, snap.Lines); err != nil {
		util.CartPersistFailuresTotal.WithLabelValues("save").Inc()
		s.logger.Warn("Failed to persist cart",
			zap.String("key", s.key),
			zap.String("op", op),
			zap.Error(err))
	}
	return snap
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Lines:      s.copyLinesLocked(),
		TotalItems: totalItems(s.lines),
		TotalPrice: totalPrice(s.lines),
	}
}

func (s *Store) copyLinesLocked() []models.CartLine {
	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) indexOf(productID int64) int {
	for i := range s.lines {
		if s.lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

func totalItems(lines []models.CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func totalPrice(lines []models.CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += int64(l.Quantity) * l.Product.Price
	}
	return total
}
