package storage

import (
	"context"

	"ammPool/internal/model"
)

// Storage defines a sink for committed pool events.
type Storage interface {
	PutEventBatch(ctx context.Context, events []model.PoolEvent) error
}
