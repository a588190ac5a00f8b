// Package comm provides the distributed-memory substrate used by every rank of
// a run. Ranks execute the same program (SPMD) as goroutines and exchange data
// only through explicit point-to-point messages and collectives.
package comm

import (
	"context"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/notargets/meshmotion/utils"
)

// Reserved tags for collectives. User tags must be non-negative.
const (
	tagReduce = -1 - iota
	tagBcast
	tagGather
	tagAllgather
)

const linkCapacity = 64

var (
	// messagesTotal counts point-to-point messages by operation
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshmotion_comm_messages_total",
		Help: "Total messages sent between ranks by operation",
	}, []string{"operation"})

	// valuesTotal counts float64 values moved between ranks
	valuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshmotion_comm_values_total",
		Help: "Total float64 values sent between ranks",
	})
)

type message struct {
	tag  int
	data []float64
}

// World connects Size ranks with one FIFO link per ordered rank pair
type World struct {
	size  int
	links [][]chan message // [source][destination]
}

// NewWorld creates a world of n ranks
func NewWorld(n int) *World {
	if n < 1 {
		panic(fmt.Sprintf("comm: invalid world size %d", n))
	}
	w := &World{size: n, links: make([][]chan message, n)}
	for src := 0; src < n; src++ {
		w.links[src] = make([]chan message, n)
		for dst := 0; dst < n; dst++ {
			w.links[src][dst] = make(chan message, linkCapacity)
		}
	}
	return w
}

// Size returns the number of ranks
func (w *World) Size() int { return w.size }

// Comm returns the communicator of a rank
func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("comm: rank %d outside world of size %d", rank, w.size))
	}
	return &Comm{world: w, rank: rank}
}

// Comm is the per-rank handle on a World. A Comm is used by exactly one
// goroutine.
type Comm struct {
	world *World
	rank  int
}

// Self returns a single-rank communicator
func Self() *Comm {
	return NewWorld(1).Comm(0)
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.world.size }

// Send copies data to rank dst. It blocks only if the link is full.
func (c *Comm) Send(ctx context.Context, dst, tag int, data []float64) error {
	return c.send(ctx, dst, tag, data, "send")
}

func (c *Comm) send(ctx context.Context, dst, tag int, data []float64, op string) error {
	if dst < 0 || dst >= c.world.size {
		return utils.Errorf("Send", utils.KindComm, -1, "rank %d: invalid destination %d", c.rank, dst)
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	select {
	case c.world.links[c.rank][dst] <- message{tag: tag, data: buf}:
	case <-ctx.Done():
		return ctx.Err()
	}
	messagesTotal.WithLabelValues(op).Inc()
	valuesTotal.Add(float64(len(buf)))
	return nil
}

// Recv receives the next message from rank src. Messages between a pair of
// ranks arrive in send order; a message with a different tag is an error.
func (c *Comm) Recv(ctx context.Context, src, tag int) ([]float64, error) {
	if src < 0 || src >= c.world.size {
		return nil, utils.Errorf("Recv", utils.KindComm, -1, "rank %d: invalid source %d", c.rank, src)
	}
	select {
	case m := <-c.world.links[src][c.rank]:
		if m.tag != tag {
			return nil, utils.Errorf("Recv", utils.KindComm, -1,
				"rank %d: expected tag %d from rank %d, got %d", c.rank, tag, src, m.tag)
		}
		return m.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Bcast distributes root's data to every rank
func (c *Comm) Bcast(ctx context.Context, root int, data []float64) ([]float64, error) {
	if c.rank == root {
		for dst := 0; dst < c.world.size; dst++ {
			if dst == root {
				continue
			}
			if err := c.send(ctx, dst, tagBcast, data, "bcast"); err != nil {
				return nil, err
			}
		}
		out := make([]float64, len(data))
		copy(out, data)
		return out, nil
	}
	return c.Recv(ctx, root, tagBcast)
}

// Gather collects every rank's data on root, in rank order. Non-root ranks
// receive nil.
func (c *Comm) Gather(ctx context.Context, root int, data []float64) ([][]float64, error) {
	if c.rank != root {
		return nil, c.send(ctx, root, tagGather, data, "gather")
	}
	out := make([][]float64, c.world.size)
	for src := 0; src < c.world.size; src++ {
		if src == root {
			out[src] = append([]float64(nil), data...)
			continue
		}
		d, err := c.Recv(ctx, src, tagGather)
		if err != nil {
			return nil, err
		}
		out[src] = d
	}
	return out, nil
}

// Allgather returns every rank's data on every rank, in rank order
func (c *Comm) Allgather(ctx context.Context, data []float64) ([][]float64, error) {
	for dst := 0; dst < c.world.size; dst++ {
		if dst == c.rank {
			continue
		}
		if err := c.send(ctx, dst, tagAllgather, data, "allgather"); err != nil {
			return nil, err
		}
	}
	out := make([][]float64, c.world.size)
	for src := 0; src < c.world.size; src++ {
		if src == c.rank {
			out[src] = append([]float64(nil), data...)
			continue
		}
		d, err := c.Recv(ctx, src, tagAllgather)
		if err != nil {
			return nil, err
		}
		out[src] = d
	}
	return out, nil
}

// AllreduceSum returns the element-wise sum of vals over all ranks
func (c *Comm) AllreduceSum(ctx context.Context, vals []float64) ([]float64, error) {
	return c.allreduce(ctx, vals, func(a, b float64) float64 { return a + b })
}

// AllreduceMin returns the element-wise minimum of vals over all ranks
func (c *Comm) AllreduceMin(ctx context.Context, vals []float64) ([]float64, error) {
	return c.allreduce(ctx, vals, math.Min)
}

// AllreduceMax returns the element-wise maximum of vals over all ranks
func (c *Comm) AllreduceMax(ctx context.Context, vals []float64) ([]float64, error) {
	return c.allreduce(ctx, vals, math.Max)
}

// Barrier returns once every rank has entered it
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.allreduce(ctx, nil, func(a, b float64) float64 { return a })
	return err
}

// allreduce folds contributions on rank 0 in rank order, so every rank sees a
// bit-identical result, then broadcasts it
func (c *Comm) allreduce(ctx context.Context, vals []float64, op func(a, b float64) float64) ([]float64, error) {
	if c.world.size == 1 {
		return append([]float64(nil), vals...), nil
	}
	if c.rank != 0 {
		if err := c.send(ctx, 0, tagReduce, vals, "reduce"); err != nil {
			return nil, err
		}
		return c.Recv(ctx, 0, tagBcast)
	}
	acc := append([]float64(nil), vals...)
	for src := 1; src < c.world.size; src++ {
		d, err := c.Recv(ctx, src, tagReduce)
		if err != nil {
			return nil, err
		}
		if len(d) != len(acc) {
			return nil, utils.Errorf("Allreduce", utils.KindComm, -1,
				"rank %d contributed %d values, expected %d", src, len(d), len(acc))
		}
		for i := range acc {
			acc[i] = op(acc[i], d[i])
		}
	}
	return c.Bcast(ctx, 0, acc)
}

// SumInt is AllreduceSum for a single integer
func (c *Comm) SumInt(ctx context.Context, v int) (int, error) {
	r, err := c.AllreduceSum(ctx, []float64{float64(v)})
	if err != nil {
		return 0, err
	}
	return int(r[0]), nil
}

// EncodeInts packs integers for transport
func EncodeInts(v []int) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// DecodeInts unpacks integers sent with EncodeInts
func DecodeInts(v []float64) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(math.Round(x))
	}
	return out
}
