package deform

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/notargets/meshmotion/geometry"
)

// Interpolator evaluates the inverse distance weighted average of values,
// given at sources, at every target point
type Interpolator interface {
	Interpolate(targets, sources, values [][]float64, power float64) ([][]float64, error)
}

// HostIDW interpolates on the host
type HostIDW struct{}

func (HostIDW) Interpolate(targets, sources, values [][]float64, power float64) ([][]float64, error) {
	if len(sources) != len(values) {
		return nil, fmt.Errorf("idw: %d sources with %d values", len(sources), len(values))
	}
	out := make([][]float64, len(targets))
	for i, x := range targets {
		out[i] = make([]float64, len(x))
		if len(sources) == 0 {
			continue
		}
		var wsum float64
		exact := -1
		for j, s := range sources {
			r := dist(x, s)
			if r < 1e-14 {
				exact = j
				break
			}
			w := math.Pow(r, -power)
			wsum += w
			for d := range out[i] {
				out[i][d] += w * values[j][d]
			}
		}
		if exact >= 0 {
			copy(out[i], values[exact])
			continue
		}
		for d := range out[i] {
			out[i][d] /= wsum
		}
	}
	return out, nil
}

// Algebraic moves interior points by inverse distance weighting of the
// boundary motion, without assembling a system
type Algebraic struct {
	opts Options
}

func (a *Algebraic) Kind() Kind { return Legacy }

func (a *Algebraic) Apply(ctx context.Context, g *geometry.Geometry) (Report, error) {
	start := time.Now()
	rep := Report{Algorithm: Legacy, Increments: a.opts.Increments}
	b := newBoundary(g, a.opts.Deformable)

	var err error
	if rep.MaxDisplacement, err = b.maxDisplacement(ctx, g); err != nil {
		return rep, err
	}

	var interior []int
	for p := 0; p < g.NPointDomain; p++ {
		if !b.onMarker(p) {
			interior = append(interior, p)
		}
	}

	dim := g.Dim
	n := float64(a.opts.Increments)
	for inc := 0; inc < a.opts.Increments; inc++ {
		// Every rank sees every owned marker point with its increment
		var local []float64
		for p := 0; p < g.NPointDomain; p++ {
			if !b.onMarker(p) {
				continue
			}
			local = append(local, g.Coords[p]...)
			for _, v := range b.delta[p] {
				local = append(local, v/n)
			}
		}
		all, err := g.Comm.Allgather(ctx, local)
		if err != nil {
			return rep, err
		}
		var sources, values [][]float64
		for _, buf := range all {
			for i := 0; i+2*dim <= len(buf); i += 2 * dim {
				sources = append(sources, buf[i:i+dim])
				values = append(values, buf[i+dim:i+2*dim])
			}
		}

		targets := make([][]float64, len(interior))
		for i, p := range interior {
			targets[i] = g.Coords[p]
		}
		disp, err := a.opts.Interpolator.Interpolate(targets, sources, values, a.opts.Power)
		if err != nil {
			return rep, err
		}
		for i, p := range interior {
			for d := 0; d < dim; d++ {
				g.Coords[p][d] += disp[i][d]
			}
		}
		for p := 0; p < g.NPointDomain; p++ {
			if b.onMarker(p) {
				for d := 0; d < dim; d++ {
					g.Coords[p][d] += b.delta[p][d] / n
				}
			}
		}
		if err := g.CommunicateVectors(ctx, g.Coords); err != nil {
			return rep, err
		}
	}
	b.snap(g)
	return rep, finish(ctx, g, &rep, start)
}
