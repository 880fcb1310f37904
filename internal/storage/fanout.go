package storage

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ammPool/internal/model"
)

// Fanout writes every batch to all sinks concurrently.
type Fanout []Storage

func (f Fanout) PutEventBatch(ctx context.Context, events []model.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range f {
		sink := sink
		g.Go(func() error {
			return sink.PutEventBatch(gctx, events)
		})
	}
	return g.Wait()
}
