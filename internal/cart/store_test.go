package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"agri-storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPersister struct {
	mu      sync.Mutex
	data    map[string][]models.CartLine
	saveErr error
	loadErr error
	saves   int
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{data: make(map[string][]models.CartLine)}
}

func (m *memoryPersister) Load(_ context.Context, key string) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[key], nil
}

func (m *memoryPersister) Save(_ context.Context, key string, lines []models.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = lines
	return nil
}

var (
	seed       = models.ProductRef{ID: 1, Name: "Hạt giống cà chua", Price: 25000}
	fertilizer = models.ProductRef{ID: 2, Name: "Phân bón NPK", Price: 120000}
	sprayer    = models.ProductRef{ID: 3, Name: "Bình phun", Price: 350000}
)

func TestAddItem_NewAndRepeat(t *testing.T) {
	s := NewStore("cart:t", nil, nil)
	ctx := context.Background()

	res := s.AddItem(ctx, seed, 2)
	assert.Equal(t, AddResult{Action: ActionAdded, Quantity: 2}, res)

	res = s.AddItem(ctx, seed, 3)
	assert.Equal(t, AddResult{Action: ActionUpdated, Quantity: 5}, res)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestAddItem_OneLinePerProduct(t *testing.T) {
	s := NewStore("cart:t", nil, nil)
	ctx := context.Background()

	adds := []struct {
		product models.ProductRef
		qty     int
	}{
		{seed, 1}, {fertilizer, 2}, {seed, 4}, {sprayer, 1}, {fertilizer, 3}, {seed, 1},
	}
	want := map[int64]int{}
	for _, a := range adds {
		s.AddItem(ctx, a.product, a.qty)
		want[a.product.ID] += a.qty
	}

	lines := s.Lines()
	assert.Len(t, lines, len(want))
	for _, l := range lines {
		assert.Equal(t, want[l.Product.ID], l.Quantity, "product %d", l.Product.ID)
	}
	assert.Equal(t, 12, s.TotalItems())
}

func TestAddItem_NonPositiveIsNoop(t *testing.T) {
	s := NewStore("cart:t", nil, nil)
	ctx := context.Background()
	s.AddItem(ctx, seed, 2)

	res := s.AddItem(ctx, seed, 0)
	assert.Equal(t, 2, res.Quantity)
	assert.Equal(t, 2, s.TotalItems())

	res = s.AddItem(ctx, fertilizer, -1)
	assert.Equal(t, 0, res.Quantity)
	assert.Len(t, s.Lines(), 1)
}

func TestTotalPrice_TracksMutations(t *testing.T) {
	s := NewStore("cart:t", nil, nil)
	ctx := context.Background()

	check := func() {
		var want int64
		for _, l := range s.Lines() {
			want += int64(l.Quantity) * l.Product.Price
		}
		assert.Equal(t, want, s.TotalPrice())
	}

	s.AddItem(ctx, seed, 2)
	check()
	s.AddItem(ctx, fertilizer, 1)
	check()
	s.UpdateQuantity(ctx, seed.ID, 7)
	check()
	assert.Equal(t, int64(7*25000+120000), s.TotalPrice())
	s.RemoveItem(ctx, fertilizer.ID)
	check()
	s.RemoveItem(ctx, seed.ID)
	check()
	assert.Equal(t, int64(0), s.TotalPrice())
	assert.Equal(t, 0, s.TotalItems())
}

func TestUpdateQuantity_NonPositiveRemoves(t *testing.T) {
	for _, qty := range []int{0, -5} {
		s := NewStore("cart:t", nil, nil)
		ctx := context.Background()
		s.AddItem(ctx, seed, 3)
		s.AddItem(ctx, fertilizer, 1)

		s.UpdateQuantity(ctx, seed.ID, qty)

		lines := s.Lines()
		require.Len(t, lines, 1, "qty %d", qty)
		assert.Equal(t, fertilizer.ID, lines[0].Product.ID)
	}
}

func TestUpdateQuantity_ReplacesAndIgnoresUnknown(t *testing.T) {
	s := NewStore("cart:t", nil, nil)
	ctx := context.Background()
	s.AddItem(ctx, seed, 3)

	s.UpdateQuantity(ctx, seed.ID, 1)
	assert.Equal(t, 1, s.TotalItems())

	s.UpdateQuantity(ctx, 999, 4)
	assert.Len(t, s.Lines(), 1)
}

func TestRemoveItem_Missing(t *testing.T) {
	p := newMemoryPersister()
	s := NewStore("cart:t", nil, p)

	s.RemoveItem(context.Background(), 42)
	assert.Equal(t, 0, p.saves)
}

func TestClear(t *testing.T) {
	p := newMemoryPersister()
	s := NewStore("cart:t", nil, p)
	ctx := context.Background()
	s.AddItem(ctx, seed, 1)
	s.AddItem(ctx, sprayer, 1)

	s.Clear(ctx)

	assert.Empty(t, s.Lines())
	assert.Empty(t, p.data["cart:t"])
}

func TestMutations_WriteThrough(t *testing.T) {
	p := newMemoryPersister()
	s := NewStore("cart:t", nil, p)
	ctx := context.Background()

	s.AddItem(ctx, seed, 2)
	s.AddItem(ctx, fertilizer, 1)
	s.UpdateQuantity(ctx, seed.ID, 4)

	restored, err := Restore(ctx, "cart:t", p)
	require.NoError(t, err)
	assert.Equal(t, s.Lines(), restored.Lines())
	assert.Equal(t, s.TotalPrice(), restored.TotalPrice())
}

func TestMutations_PersistFailureIsSwallowed(t *testing.T) {
	p := newMemoryPersister()
	p.saveErr = errors.New("quota exceeded")
	s := NewStore("cart:t", nil, p)

	res := s.AddItem(context.Background(), seed, 2)

	assert.Equal(t, ActionAdded, res.Action)
	assert.Equal(t, 2, s.TotalItems())
	assert.Equal(t, 1, p.saves)
}

func TestRestore_LoadFailureIsReturned(t *testing.T) {
	p := newMemoryPersister()
	p.loadErr = errors.New("connection refused")

	s, err := Restore(context.Background(), "cart:t", p)
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestRestore_UnreadableBlobStartsEmpty(t *testing.T) {
	p := newMemoryPersister()
	p.loadErr = ErrUnreadableCart

	s, err := Restore(context.Background(), "cart:t", p)
	require.NoError(t, err)
	assert.Empty(t, s.Lines())
}

func TestNewStore_DropsInvalidSeedLines(t *testing.T) {
	s := NewStore("cart:t", []models.CartLine{
		{Product: seed, Quantity: 2},
		{Product: seed, Quantity: 9},
		{Product: fertilizer, Quantity: 0},
	}, nil)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestSubscribe(t *testing.T) {
	s := NewStore("cart:t", nil, nil)
	ctx := context.Background()

	var got []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		got = append(got, snap)
	})

	s.AddItem(ctx, seed, 2)
	s.AddItem(ctx, fertilizer, 1)
	unsubscribe()
	s.Clear(ctx)

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].TotalItems)
	assert.Equal(t, int64(2*25000+120000), got[1].TotalPrice)
}

func TestLines_ReturnsCopy(t *testing.T) {
	s := NewStore("cart:t", nil, nil)
	s.AddItem(context.Background(), seed, 2)

	lines := s.Lines()
	lines[0].Quantity = 100

	assert.Equal(t, 2, s.TotalItems())
}
