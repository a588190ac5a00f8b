package geometry

import (
	"context"
	"fmt"
)

const (
	tagHalo = iota + 1
	tagAccumulate
)

// CommunicateHalo copies owned values of a point field (stride values per
// point) to the halo copies held by other ranks. Collective.
func (g *Geometry) CommunicateHalo(ctx context.Context, field []float64, stride int) error {
	if err := g.checkField(field, stride); err != nil {
		return err
	}
	rank, size := g.Comm.Rank(), g.Comm.Size()
	for q := 0; q < size; q++ {
		pick := g.Halo.GetPickIndices(rank, q)
		if q == rank || len(pick) == 0 {
			continue
		}
		if err := g.Comm.Send(ctx, q, tagHalo, gatherField(field, pick, stride)); err != nil {
			return err
		}
	}
	for q := 0; q < size; q++ {
		place := g.Halo.GetPlaceIndices(rank, q)
		if q == rank || len(place) == 0 {
			continue
		}
		buf, err := g.Comm.Recv(ctx, q, tagHalo)
		if err != nil {
			return err
		}
		if len(buf) != len(place)*stride {
			return fmt.Errorf("halo from rank %d: %d values for %d points", q, len(buf), len(place))
		}
		for i, p := range place {
			copy(field[p*stride:(p+1)*stride], buf[i*stride:(i+1)*stride])
		}
	}
	return nil
}

// Accumulate sums the partial values held on halo copies into the owners,
// then refreshes every halo copy with the total. Collective.
func (g *Geometry) Accumulate(ctx context.Context, field []float64, stride int) error {
	if err := g.checkField(field, stride); err != nil {
		return err
	}
	rank, size := g.Comm.Rank(), g.Comm.Size()
	for q := 0; q < size; q++ {
		place := g.Halo.GetPlaceIndices(rank, q)
		if q == rank || len(place) == 0 {
			continue
		}
		if err := g.Comm.Send(ctx, q, tagAccumulate, gatherField(field, place, stride)); err != nil {
			return err
		}
	}
	for q := 0; q < size; q++ {
		pick := g.Halo.GetPickIndices(rank, q)
		if q == rank || len(pick) == 0 {
			continue
		}
		buf, err := g.Comm.Recv(ctx, q, tagAccumulate)
		if err != nil {
			return err
		}
		if len(buf) != len(pick)*stride {
			return fmt.Errorf("accumulate from rank %d: %d values for %d points", q, len(buf), len(pick))
		}
		for i, p := range pick {
			for s := 0; s < stride; s++ {
				field[p*stride+s] += buf[i*stride+s]
			}
		}
	}
	return g.CommunicateHalo(ctx, field, stride)
}

// CommunicateVectors runs CommunicateHalo on a per-point vector field
func (g *Geometry) CommunicateVectors(ctx context.Context, v [][]float64) error {
	flat := Flatten(v, g.Dim)
	if err := g.CommunicateHalo(ctx, flat, g.Dim); err != nil {
		return err
	}
	Unflatten(flat, v, g.Dim)
	return nil
}

// AllreduceSum sums vals over every rank
func (g *Geometry) AllreduceSum(ctx context.Context, vals []float64) ([]float64, error) {
	return g.Comm.AllreduceSum(ctx, vals)
}

func (g *Geometry) checkField(field []float64, stride int) error {
	if stride < 1 || len(field) != g.NPoint()*stride {
		return fmt.Errorf("field of %d values does not match %d points with stride %d",
			len(field), g.NPoint(), stride)
	}
	return nil
}

func gatherField(field []float64, idx []int, stride int) []float64 {
	buf := make([]float64, 0, len(idx)*stride)
	for _, p := range idx {
		buf = append(buf, field[p*stride:(p+1)*stride]...)
	}
	return buf
}

// Flatten packs a per-point vector field point-major
func Flatten(v [][]float64, stride int) []float64 {
	flat := make([]float64, len(v)*stride)
	for i, x := range v {
		copy(flat[i*stride:(i+1)*stride], x)
	}
	return flat
}

// Unflatten unpacks a point-major field into v
func Unflatten(flat []float64, v [][]float64, stride int) {
	for i := range v {
		copy(v[i], flat[i*stride:(i+1)*stride])
	}
}
