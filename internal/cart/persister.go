package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agri-storefront/internal/models"
)

// JSONStore is the key->JSON blob storage the cart is persisted to
type JSONStore interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrUnreadableCart is returned by Load when the stored blob cannot be decoded
var ErrUnreadableCart = errors.New("stored cart is unreadable")

// RedisPersister keeps each cart as a JSON array of lines under its key
type RedisPersister struct {
	store JSONStore
	ttl   time.Duration
}

// NewRedisPersister creates a persister. ttl of zero keeps carts indefinitely.
func NewRedisPersister(store JSONStore, ttl time.Duration) *RedisPersister {
	return &RedisPersister{store: store, ttl: ttl}
}

func (p *RedisPersister) Load(ctx context.Context, key string) ([]models.CartLine, error) {
	var lines []models.CartLine
	found, err := p.store.GetJSON(ctx, key, &lines)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return nil, fmt.Errorf("%w: %v", ErrUnreadableCart, err)
	case err != nil:
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return lines, nil
}

// Save writes lines; an empty cart deletes the key instead
func (p *RedisPersister) Save(ctx context.Context, key string, lines []models.CartLine) error {
	if len(lines) == 0 {
		return p.store.Delete(ctx, key)
	}
	return p.store.SetJSON(ctx, key, lines, p.ttl)
}

var _ Persister = (*RedisPersister)(nil)
