package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Run executes fn once per rank of a new world of n ranks and waits for all of
// them. The first rank to fail cancels the context of every other rank, so a
// fatal error anywhere aborts the whole run.
func Run(ctx context.Context, n int, fn func(ctx context.Context, c *Comm) error) error {
	if n < 1 {
		return fmt.Errorf("comm: invalid rank count %d", n)
	}
	world := NewWorld(n)
	g, gCtx := errgroup.WithContext(ctx)
	for r := 0; r < n; r++ {
		c := world.Comm(r)
		g.Go(func() error {
			if err := fn(gCtx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
