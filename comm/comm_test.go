package comm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshmotion/utils"
)

func TestSendRecvOrdering(t *testing.T) {
	err := Run(context.Background(), 2, func(ctx context.Context, c *Comm) error {
		if c.Rank() == 0 {
			for i := 0; i < 3; i++ {
				if err := c.Send(ctx, 1, 7, []float64{float64(i)}); err != nil {
					return err
				}
			}
			return nil
		}
		for i := 0; i < 3; i++ {
			d, err := c.Recv(ctx, 0, 7)
			if err != nil {
				return err
			}
			if d[0] != float64(i) {
				return errors.New("messages out of order")
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRecvTagMismatch(t *testing.T) {
	err := Run(context.Background(), 2, func(ctx context.Context, c *Comm) error {
		if c.Rank() == 0 {
			return c.Send(ctx, 1, 1, nil)
		}
		_, err := c.Recv(ctx, 0, 2)
		return err
	})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindComm))
}

func TestCollectives(t *testing.T) {
	const n = 4
	var (
		mu   sync.Mutex
		sums = make([][]float64, n)
	)
	err := Run(context.Background(), n, func(ctx context.Context, c *Comm) error {
		r := float64(c.Rank())
		s, err := c.AllreduceSum(ctx, []float64{r, 1})
		if err != nil {
			return err
		}
		mn, err := c.AllreduceMin(ctx, []float64{r})
		if err != nil {
			return err
		}
		mx, err := c.AllreduceMax(ctx, []float64{r})
		if err != nil {
			return err
		}
		all, err := c.Allgather(ctx, []float64{r * 10})
		if err != nil {
			return err
		}
		g, err := c.Gather(ctx, 2, []float64{r})
		if err != nil {
			return err
		}
		if err := c.Barrier(ctx); err != nil {
			return err
		}
		if mn[0] != 0 || mx[0] != n-1 {
			return errors.New("bad min/max")
		}
		for i := range all {
			if all[i][0] != float64(i*10) {
				return errors.New("bad allgather")
			}
		}
		if (c.Rank() == 2) != (g != nil) {
			return errors.New("gather result on wrong rank")
		}
		mu.Lock()
		sums[c.Rank()] = s
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	for r := 0; r < n; r++ {
		assert.Equal(t, []float64{6, 4}, sums[r])
	}
}

func TestRunCancelsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), 3, func(ctx context.Context, c *Comm) error {
		if c.Rank() == 1 {
			return boom
		}
		// The other ranks block in a collective that rank 1 never joins
		_, err := c.AllreduceSum(ctx, []float64{1})
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSingleRank(t *testing.T) {
	c := Self()
	v, err := c.AllreduceSum(context.Background(), []float64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, v)
	assert.Equal(t, []int{1, -4, 7}, DecodeInts(EncodeInts([]int{1, -4, 7})))
}
