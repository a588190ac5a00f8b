// Package numerics holds the per-zone operator tables used by the
// solver-based mesh deformation: a pseudo-elastic material model and the
// linear simplex decomposition of every element.
package numerics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// StiffnessKind selects how the pseudo-elastic modulus varies over the mesh
type StiffnessKind int

const (
	InverseVolume StiffnessKind = iota // E = E0 / element volume; small cells stiffen
	Constant                           // E = E0 everywhere
	WallDistance                       // E = E0 / distance to the nearest deforming vertex
)

var stiffnessNames = map[string]StiffnessKind{
	"inverse_volume": InverseVolume,
	"constant":       Constant,
	"wall_distance":  WallDistance,
}

// ParseStiffness maps a configuration name onto a StiffnessKind
func ParseStiffness(name string) (StiffnessKind, error) {
	if name == "" {
		return InverseVolume, nil
	}
	k, ok := stiffnessNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown stiffness kind %q", name)
	}
	return k, nil
}

func (k StiffnessKind) String() string {
	for n, v := range stiffnessNames {
		if v == k {
			return n
		}
	}
	return fmt.Sprintf("StiffnessKind(%d)", int(k))
}

// Elasticity is the isotropic linear-elastic material the mesh is modelled as
type Elasticity struct {
	E         float64 // Reference Young's modulus
	Nu        float64 // Poisson ratio, in [0, 0.5)
	Stiffness StiffnessKind
}

// Modulus returns the Young's modulus of an element
func (el Elasticity) Modulus(volume, wallDistance float64) float64 {
	const floor = 1e-30
	switch el.Stiffness {
	case Constant:
		return el.E
	case WallDistance:
		return el.E / math.Max(wallDistance, floor)
	}
	return el.E / math.Max(math.Abs(volume), floor)
}

// Constitutive returns the stress-strain matrix for modulus E. 2D uses plane
// strain; strains are ordered xx, yy, (zz,) xy(, yz, xz).
func (el Elasticity) Constitutive(dim int, E float64) *mat.Dense {
	lambda := E * el.Nu / ((1 + el.Nu) * (1 - 2*el.Nu))
	mu := E / (2 * (1 + el.Nu))

	if dim == 2 {
		return mat.NewDense(3, 3, []float64{
			lambda + 2*mu, lambda, 0,
			lambda, lambda + 2*mu, 0,
			0, 0, mu,
		})
	}
	D := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			D.Set(i, j, lambda)
		}
		D.Set(i, i, lambda+2*mu)
		D.Set(i+3, i+3, mu)
	}
	return D
}

// ShapeGradients returns the gradients of the linear shape functions of a
// simplex and its signed measure
func ShapeGradients(pts [][]float64) ([][]float64, float64, error) {
	dim := len(pts) - 1
	if dim < 1 || len(pts[0]) != dim {
		return nil, 0, fmt.Errorf("%d points do not form a simplex", len(pts))
	}

	// Columns of E are the edges from vertex 0
	E := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		for d := 0; d < dim; d++ {
			E.Set(d, i, pts[i+1][d]-pts[0][d])
		}
	}
	det := mat.Det(E)
	if det == 0 || math.IsNaN(det) {
		return nil, 0, fmt.Errorf("degenerate simplex")
	}

	var inv mat.Dense
	if err := inv.Inverse(E); err != nil {
		return nil, 0, fmt.Errorf("degenerate simplex: %w", err)
	}

	grads := make([][]float64, dim+1)
	grads[0] = make([]float64, dim)
	for i := 1; i <= dim; i++ {
		grads[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			grads[i][d] = inv.At(i-1, d)
			grads[0][d] -= grads[i][d]
		}
	}

	measure := det
	for k := 2; k <= dim; k++ {
		measure /= float64(k)
	}
	return grads, measure, nil
}

// strainDisplacement builds the B matrix of a linear simplex
func strainDisplacement(grads [][]float64) *mat.Dense {
	dim := len(grads[0])
	n := len(grads)
	if dim == 2 {
		B := mat.NewDense(3, 2*n, nil)
		for a, g := range grads {
			B.Set(0, 2*a, g[0])
			B.Set(1, 2*a+1, g[1])
			B.Set(2, 2*a, g[1])
			B.Set(2, 2*a+1, g[0])
		}
		return B
	}
	B := mat.NewDense(6, 3*n, nil)
	for a, g := range grads {
		c := 3 * a
		B.Set(0, c, g[0])
		B.Set(1, c+1, g[1])
		B.Set(2, c+2, g[2])
		B.Set(3, c, g[1])
		B.Set(3, c+1, g[0])
		B.Set(4, c+1, g[2])
		B.Set(4, c+2, g[1])
		B.Set(5, c, g[2])
		B.Set(5, c+2, g[0])
	}
	return B
}

// SimplexStiffness returns the stiffness matrix of a linear simplex with
// modulus E, dofs ordered node-major
func (el Elasticity) SimplexStiffness(pts [][]float64, E float64) (*mat.Dense, error) {
	grads, measure, err := ShapeGradients(pts)
	if err != nil {
		return nil, err
	}
	dim := len(pts[0])
	B := strainDisplacement(grads)
	D := el.Constitutive(dim, E)

	var DB, K mat.Dense
	DB.Mul(D, B)
	K.Mul(B.T(), &DB)
	K.Scale(math.Abs(measure), &K)
	return &K, nil
}
