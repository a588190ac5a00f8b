package deform

import (
	"context"
	"math"
	"time"

	"github.com/notargets/meshmotion/element"
	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/numerics"
	"github.com/notargets/meshmotion/solver"
)

// Elastic treats the mesh as a pseudo-elastic solid. Each increment assembles
// the stiffness on the current mesh and solves for the interior motion with
// the boundary motion as Dirichlet data.
type Elastic struct {
	opts   Options
	table  *numerics.Table
	solver *solver.MeshSolver
}

func (a *Elastic) Kind() Kind { return SolverBased }

func (a *Elastic) Apply(ctx context.Context, g *geometry.Geometry) (Report, error) {
	start := time.Now()
	rep := Report{Algorithm: SolverBased, Increments: a.opts.Increments}
	b := newBoundary(g, a.opts.Deformable)

	var err error
	if rep.MaxDisplacement, err = b.maxDisplacement(ctx, g); err != nil {
		return rep, err
	}
	if a.table.Model.Stiffness == numerics.WallDistance {
		wd, err := wallDistance(ctx, g, b)
		if err != nil {
			return rep, err
		}
		a.table.SetWallDistance(wd)
	}

	dim := g.Dim
	fixed := make([]bool, g.NPoint()*dim)
	for p := range b.delta {
		if b.onMarker(p) {
			for d := 0; d < dim; d++ {
				fixed[p*dim+d] = true
			}
		}
	}

	n := float64(a.opts.Increments)
	for inc := 0; inc < a.opts.Increments; inc++ {
		if err := a.solver.Assemble(ctx, a.table); err != nil {
			return rep, err
		}
		u := make([]float64, g.NPoint()*dim)
		for p, d := range b.delta {
			for i, v := range d {
				u[p*dim+i] = v / n
			}
		}
		res, err := a.solver.Solve(ctx, u, fixed)
		if err != nil {
			return rep, err
		}
		rep.Iterations += res.Iterations
		rep.Residual = res.Residual
		for p := range g.Coords {
			for d := 0; d < dim; d++ {
				g.Coords[p][d] += u[p*dim+d]
			}
		}
	}
	b.snap(g)
	return rep, finish(ctx, g, &rep, start)
}

// wallDistance returns, per local element, the distance from its centroid to
// the nearest vertex of a deformable marker
func wallDistance(ctx context.Context, g *geometry.Geometry, b *boundary) ([]float64, error) {
	var local []float64
	for p, moving := range b.moving {
		if moving && g.Owned(p) {
			local = append(local, g.Coords[p]...)
		}
	}
	all, err := g.Comm.Allgather(ctx, local)
	if err != nil {
		return nil, err
	}
	var walls [][]float64
	for _, buf := range all {
		for i := 0; i+g.Dim <= len(buf); i += g.Dim {
			walls = append(walls, buf[i:i+g.Dim])
		}
	}

	wd := make([]float64, len(g.Elements))
	for k := range g.Elements {
		c := element.Centroid(g.ElementPoints(k))
		d := math.Inf(1)
		for _, w := range walls {
			d = math.Min(d, dist(c, w))
		}
		if math.IsInf(d, 1) {
			d = 1
		}
		wd[k] = d
	}
	return wd, nil
}
