package repository

import (
	"context"

	"github.com/ontime-app/backend/internal/models"
)

type idempotencyRepository struct {
	store *LocalStore
}

// NewIdempotencyRepository creates an idempotency repository backed by the
// local store. Replay records stay on device so retried requests resolve
// even when the remote store is unreachable.
func NewIdempotencyRepository(store *LocalStore) IdempotencyRepository {
	return &idempotencyRepository{store: store}
}

func (r *idempotencyRepository) Get(ctx context.Context, key, route, userID string) (*models.IdempotencyKey, error) {
	return r.store.GetIdempotency(ctx, key, route, userID)
}

func (r *idempotencyRepository) Store(ctx context.Context, key, route, userID string, responseBody []byte, statusCode int) error {
	return r.store.StoreIdempotency(ctx, key, route, userID, responseBody, statusCode)
}
