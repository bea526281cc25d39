package boc

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonkit/go-boc/cell"
)

// ParallelDiff is Diff expanding the cells of each depth with up to workers
// goroutines. It pays off when references are loaded lazily from a bag.
func ParallelDiff(ctx context.Context, prev, cur cell.Cell, workers int) ([]*Change, error) {
	start := time.Now()
	if cell.Equal(prev, cur) {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}
	df, err := newDiffer(prev, cur)
	if err != nil {
		return nil, err
	}

	expanded := int64(0) // updated atomically
	changes, err := df.run(ctx, func(entries []*diffEntry, depth int) error {
		grp, ctx := errgroup.WithContext(ctx)
		work := make(chan *diffEntry)
		grp.Go(func() error {
			defer close(work)
			for _, e := range entries {
				select {
				case work <- e:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		for i := 0; i < workers; i++ {
			grp.Go(func() error {
				for e := range work {
					atomic.AddInt64(&expanded, 1)
					if err := df.expand(e, depth); err != nil {
						return err
					}
				}
				return nil
			})
		}
		return grp.Wait()
	})
	if err != nil {
		return nil, err
	}
	log.Infow("parallel diff", "duration", time.Since(start), "expanded", expanded, "changes", len(changes))
	return changes, nil
}
