// Package deform moves the volume mesh of a zone so that it follows the
// displacements prescribed on its deformable boundary markers.
//
// Two algorithms share one contract: a solver-based pseudo-elastic method and
// a legacy algebraic method that extrapolates boundary motion by inverse
// distance weighting. Both check every element against its load orientation
// afterwards and fail on inversion.
package deform

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/numerics"
	"github.com/notargets/meshmotion/solver"
	"github.com/notargets/meshmotion/utils"
)

// Kind names a deformation algorithm
type Kind int

const (
	SolverBased Kind = iota
	Legacy
)

func (k Kind) String() string {
	switch k {
	case SolverBased:
		return "solver"
	case Legacy:
		return "legacy"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration name onto a Kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case "", "solver":
		return SolverBased, nil
	case "legacy":
		return Legacy, nil
	}
	return 0, fmt.Errorf("unknown deformation algorithm %q", name)
}

// Report describes one deformation pass
type Report struct {
	Algorithm       Kind
	Increments      int
	Iterations      int     // Linear iterations over all increments
	Residual        float64 // Last linear residual
	MaxDisplacement float64 // Largest boundary displacement applied, over all ranks
	Quality         geometry.QualityReport
	Duration        time.Duration
}

// Algorithm moves the mesh points of g to follow g.BoundDisp on the
// deformable markers. Collective.
type Algorithm interface {
	Kind() Kind
	Apply(ctx context.Context, g *geometry.Geometry) (Report, error)
}

// Options configure either algorithm
type Options struct {
	Deformable   func(tag string) bool // Markers that follow BoundDisp; the rest are clamped
	Increments   int                   // Sub-steps the boundary motion is split into
	Power        float64               // Inverse distance exponent (legacy)
	Interpolator Interpolator          // Legacy interpolation backend; nil runs on the host
}

// New returns the algorithm of the given kind. The solver-based algorithm
// needs the zone's operator table and mesh solver.
func New(kind Kind, opts Options, table *numerics.Table, ms *solver.MeshSolver) (Algorithm, error) {
	if opts.Deformable == nil {
		opts.Deformable = func(string) bool { return false }
	}
	if opts.Increments < 1 {
		opts.Increments = 1
	}
	if opts.Power <= 0 {
		opts.Power = 3
	}
	switch kind {
	case SolverBased:
		if table == nil || ms == nil {
			return nil, fmt.Errorf("solver-based deformation needs a numerics table and a mesh solver")
		}
		return &Elastic{opts: opts, table: table, solver: ms}, nil
	case Legacy:
		if opts.Interpolator == nil {
			opts.Interpolator = HostIDW{}
		}
		return &Algebraic{opts: opts}, nil
	}
	return nil, fmt.Errorf("unknown deformation algorithm %v", kind)
}

// boundary holds the total motion still to be applied to every local marker
// point. Points of deformable markers head for InitialCoords + BoundDisp, all
// other marker points stay where they are.
type boundary struct {
	delta  [][]float64 // Per local point, nil away from markers
	target [][]float64
	moving []bool
}

func newBoundary(g *geometry.Geometry, deformable func(string) bool) *boundary {
	b := &boundary{
		delta:  make([][]float64, g.NPoint()),
		target: make([][]float64, g.NPoint()),
		moving: make([]bool, g.NPoint()),
	}
	for _, m := range g.Markers {
		if deformable(m.Tag) {
			continue
		}
		for _, p := range m.Vertices {
			b.target[p] = append([]float64(nil), g.Coords[p]...)
		}
	}
	// Deformable markers win where they meet clamped ones
	for _, m := range g.Markers {
		if !deformable(m.Tag) {
			continue
		}
		for _, p := range m.Vertices {
			t := make([]float64, g.Dim)
			for d := range t {
				t[d] = g.InitialCoords[p][d] + g.BoundDisp[p][d]
			}
			b.target[p] = t
			b.moving[p] = true
		}
	}
	for p, t := range b.target {
		if t == nil {
			continue
		}
		b.delta[p] = make([]float64, g.Dim)
		for d := range t {
			b.delta[p][d] = t[d] - g.Coords[p][d]
		}
	}
	return b
}

func (b *boundary) onMarker(p int) bool { return b.target[p] != nil }

// maxDisplacement is the largest boundary motion over all ranks
func (b *boundary) maxDisplacement(ctx context.Context, g *geometry.Geometry) (float64, error) {
	var m float64
	for p, d := range b.delta {
		if d != nil && g.Owned(p) {
			m = math.Max(m, norm(d))
		}
	}
	// NaN survives the max reduction, so every rank rejects together
	v, err := g.Comm.AllreduceMax(ctx, []float64{m})
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v[0]) || math.IsInf(v[0], 0) {
		return 0, utils.Errorf("Deform", utils.KindDegenerate, g.Zone, "non-finite boundary displacement")
	}
	return v[0], nil
}

// snap places every marker point exactly on its target
func (b *boundary) snap(g *geometry.Geometry) {
	for p, t := range b.target {
		if t != nil {
			copy(g.Coords[p], t)
		}
	}
}

// finish validates the deformed mesh and refreshes the marker normals
func finish(ctx context.Context, g *geometry.Geometry, rep *Report, start time.Time) error {
	q, err := g.CheckQuality(ctx)
	if err != nil {
		return err
	}
	rep.Quality = q
	rep.Duration = time.Since(start)
	if g.Comm.Rank() == 0 {
		observe(g.Zone, rep)
	}
	if !q.Valid() {
		return utils.Errorf("Deform", utils.KindDegenerate, g.Zone,
			"%d inverted elements after %s deformation, worst element %d (quality %.3g)",
			q.Inverted, rep.Algorithm, q.WorstID, q.MinQuality)
	}
	if err := g.ComputeNormals(ctx); err != nil {
		return err
	}
	utils.Logger(ctx).Info("mesh deformed", "zone", g.Zone, "algorithm", rep.Algorithm.String(),
		"increments", rep.Increments, "iterations", rep.Iterations,
		"max_displacement", rep.MaxDisplacement, "min_quality", q.MinQuality,
		"duration", rep.Duration)
	return nil
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func dist(a, b []float64) float64 {
	var s float64
	for d := range a {
		dx := a[d] - b[d]
		s += dx * dx
	}
	return math.Sqrt(s)
}
