// Package solver holds the mesh-motion solver container: a distributed
// sparse stiffness matrix and the conjugate-gradient solve that moves the
// interior points for prescribed boundary displacements.
package solver

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/numerics"
	"github.com/notargets/meshmotion/utils"
)

// Result describes a linear solve
type Result struct {
	Iterations int
	Residual   float64 // Final residual relative to the right-hand side
	Converged  bool
}

// MeshSolver assembles and solves the pseudo-elastic system of one zone on one
// rank. Rows of halo points hold partial sums; owners see full rows after
// accumulation.
type MeshSolver struct {
	Tolerance     float64
	MaxIterations int

	geo *geometry.Geometry
	dim int
	n   int // Local dofs, owned and halo

	// Dof-level CSR
	rowPtr []int
	colIdx []int
	val    []float64
	diag   []float64
}

// New allocates the solver and the sparsity pattern of g's element
// connectivity
func New(g *geometry.Geometry, tolerance float64, maxIterations int) *MeshSolver {
	s := &MeshSolver{
		Tolerance:     tolerance,
		MaxIterations: maxIterations,
		geo:           g,
		dim:           g.Dim,
		n:             g.NPoint() * g.Dim,
	}
	s.buildSparsity()
	return s
}

func (s *MeshSolver) buildSparsity() {
	np := s.geo.NPoint()
	nbrs := make([]map[int]bool, np)
	for i := range nbrs {
		nbrs[i] = map[int]bool{i: true}
	}
	for _, e := range s.geo.Elements {
		for _, a := range e.Nodes {
			for _, b := range e.Nodes {
				nbrs[a][b] = true
			}
		}
	}

	s.rowPtr = make([]int, s.n+1)
	for i := 0; i < np; i++ {
		cols := make([]int, 0, len(nbrs[i]))
		for j := range nbrs[i] {
			cols = append(cols, j)
		}
		sort.Ints(cols)
		for a := 0; a < s.dim; a++ {
			row := i*s.dim + a
			for _, j := range cols {
				for b := 0; b < s.dim; b++ {
					s.colIdx = append(s.colIdx, j*s.dim+b)
				}
			}
			s.rowPtr[row+1] = len(s.colIdx)
		}
	}
	s.val = make([]float64, len(s.colIdx))
	s.diag = make([]float64, s.n)
}

// NonZeros returns the number of stored matrix entries
func (s *MeshSolver) NonZeros() int { return len(s.val) }

func (s *MeshSolver) add(row, col int, v float64) error {
	cols := s.colIdx[s.rowPtr[row]:s.rowPtr[row+1]]
	k := sort.SearchInts(cols, col)
	if k == len(cols) || cols[k] != col {
		return fmt.Errorf("entry (%d,%d) outside the sparsity pattern", row, col)
	}
	s.val[s.rowPtr[row]+k] += v
	return nil
}

// Assemble builds the stiffness matrix from the table in the current
// coordinates. Collective.
func (s *MeshSolver) Assemble(ctx context.Context, table *numerics.Table) error {
	for i := range s.val {
		s.val[i] = 0
	}
	err := table.Each(s.geo, func(sx numerics.Simplex, K *mat.Dense) error {
		for a, na := range sx.Nodes {
			for b, nb := range sx.Nodes {
				for da := 0; da < s.dim; da++ {
					for db := 0; db < s.dim; db++ {
						v := K.At(a*s.dim+da, b*s.dim+db)
						if err := s.add(na*s.dim+da, nb*s.dim+db, v); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return utils.NewError("Assemble", utils.KindDegenerate, s.geo.Zone, fmt.Errorf("%w: %v", utils.ErrDegenerateElement, err))
	}

	for row := 0; row < s.n; row++ {
		s.diag[row] = 0
		for k := s.rowPtr[row]; k < s.rowPtr[row+1]; k++ {
			if s.colIdx[k] == row {
				s.diag[row] = s.val[k]
			}
		}
	}
	return s.geo.Accumulate(ctx, s.diag, s.dim)
}

// mulLocal computes y = A x with the rank-local (partial) rows
func (s *MeshSolver) mulLocal(y, x []float64) {
	for row := 0; row < s.n; row++ {
		var sum float64
		for k := s.rowPtr[row]; k < s.rowPtr[row+1]; k++ {
			sum += s.val[k] * x[s.colIdx[k]]
		}
		y[row] = sum
	}
}

// MatVec computes y = A x for a halo-consistent x; y is halo-consistent on
// return. Collective.
func (s *MeshSolver) MatVec(ctx context.Context, y, x []float64) error {
	s.mulLocal(y, x)
	return s.geo.Accumulate(ctx, y, s.dim)
}

// dot is the global inner product over owned dofs. Collective.
func (s *MeshSolver) dot(ctx context.Context, a, b []float64) (float64, error) {
	owned := s.geo.NPointDomain * s.dim
	v, err := s.geo.AllreduceSum(ctx, []float64{floats.Dot(a[:owned], b[:owned])})
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Solve finds u with A u = 0 away from the fixed dofs and u = u on the fixed
// dofs. u must be halo-consistent and carry the prescribed values on fixed
// dofs; it is overwritten with the solution. Collective.
func (s *MeshSolver) Solve(ctx context.Context, u []float64, fixed []bool) (Result, error) {
	if len(u) != s.n || len(fixed) != s.n {
		return Result{}, fmt.Errorf("solve: vectors of %d/%d values for %d dofs", len(u), len(fixed), s.n)
	}
	log := utils.Logger(ctx)

	mask := func(v []float64) {
		for i, f := range fixed {
			if f {
				v[i] = 0
			}
		}
	}

	// Right-hand side: b = -A ub on free dofs, zero on fixed ones
	ub := make([]float64, s.n)
	for i := range ub {
		if fixed[i] {
			ub[i] = u[i]
		}
	}
	b := make([]float64, s.n)
	if err := s.MatVec(ctx, b, ub); err != nil {
		return Result{}, err
	}
	floats.Scale(-1, b)
	mask(b)

	// Operator restricted to free dofs, identity on fixed dofs
	apply := func(y, x []float64) error {
		xm := make([]float64, s.n)
		copy(xm, x)
		mask(xm)
		if err := s.MatVec(ctx, y, xm); err != nil {
			return err
		}
		for i, f := range fixed {
			if f {
				y[i] = x[i]
			}
		}
		return nil
	}
	precond := func(z, r []float64) {
		for i := range r {
			d := s.diag[i]
			if fixed[i] || d == 0 {
				z[i] = r[i]
				continue
			}
			z[i] = r[i] / d
		}
	}

	bnorm2, err := s.dot(ctx, b, b)
	if err != nil {
		return Result{}, err
	}
	if math.IsNaN(bnorm2) || math.IsInf(bnorm2, 0) {
		return Result{}, utils.Errorf("Solve", utils.KindDegenerate, s.geo.Zone, "non-finite right-hand side")
	}
	w := make([]float64, s.n)
	res := Result{Converged: true}
	if bnorm2 > 0 {
		res, err = s.cg(ctx, w, b, math.Sqrt(bnorm2), apply, precond)
		if err != nil {
			return res, err
		}
	}

	for i := range u {
		if !fixed[i] {
			u[i] = w[i]
		}
	}
	if !res.Converged {
		log.Warn("mesh solve did not converge", "zone", s.geo.Zone,
			"iterations", res.Iterations, "residual", res.Residual)
	} else {
		log.Debug("mesh solve", "zone", s.geo.Zone, "iterations", res.Iterations,
			"residual", res.Residual)
	}
	return res, nil
}

// cg runs Jacobi-preconditioned conjugate gradients from x = 0
func (s *MeshSolver) cg(ctx context.Context, x, b []float64, bnorm float64,
	apply func(y, x []float64) error, precond func(z, r []float64)) (Result, error) {

	r := append([]float64(nil), b...)
	z := make([]float64, s.n)
	p := make([]float64, s.n)
	q := make([]float64, s.n)

	precond(z, r)
	copy(p, z)
	rz, err := s.dot(ctx, r, z)
	if err != nil {
		return Result{}, err
	}

	res := Result{Residual: 1}
	for it := 1; it <= s.MaxIterations; it++ {
		if err := apply(q, p); err != nil {
			return res, err
		}
		pq, err := s.dot(ctx, p, q)
		if err != nil {
			return res, err
		}
		if pq <= 0 {
			return res, utils.Errorf("Solve", utils.KindDegenerate, s.geo.Zone,
				"stiffness matrix is not positive definite (p.Ap = %g)", pq)
		}
		alpha := rz / pq
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, q)

		rr, err := s.dot(ctx, r, r)
		if err != nil {
			return res, err
		}
		res.Iterations = it
		res.Residual = math.Sqrt(rr) / bnorm
		if res.Residual < s.Tolerance {
			res.Converged = true
			return res, nil
		}

		precond(z, r)
		rzNew, err := s.dot(ctx, r, z)
		if err != nil {
			return res, err
		}
		beta := rzNew / rz
		rz = rzNew
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return res, nil
}
