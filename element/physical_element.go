package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SimplexDeterminant returns det[x1-x0, x2-x0, ...] for a simplex given by its
// vertex coordinates. The number of vertices must be one more than the length
// of each coordinate.
func SimplexDeterminant(pts [][]float64) float64 {
	n := len(pts) - 1
	if n < 1 {
		return 0
	}
	if n == 1 {
		return pts[1][0] - pts[0][0]
	}
	J := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < n; d++ {
			J.Set(i, d, pts[i+1][d]-pts[0][d])
		}
	}
	return mat.Det(J)
}

// SignedVolume returns the signed measure (length, area, volume) of a simplex
func SignedVolume(pts [][]float64) float64 {
	det := SimplexDeterminant(pts)
	switch len(pts) - 1 {
	case 2:
		return det / 2
	case 3:
		return det / 6
	}
	return det
}

// gather picks the vertices listed in idx out of pts
func gather(pts [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = pts[j]
	}
	return out
}

// Volume returns the signed measure of an element as the weighted sum of its
// simplex decomposition
func Volume(g GeometryType, pts [][]float64) float64 {
	simplices, w := g.Simplices()
	var vol float64
	for _, s := range simplices {
		vol += w * SignedVolume(gather(pts, s))
	}
	return vol
}

// CornerJacobians returns the corner Jacobian determinants of an element
func CornerJacobians(g GeometryType, pts [][]float64) []float64 {
	corners := g.CornerSimplices()
	jac := make([]float64, len(corners))
	for i, c := range corners {
		jac[i] = SimplexDeterminant(gather(pts, c))
	}
	return jac
}

// Orientation returns +1 or -1 for a well-formed element. An element whose
// corner Jacobians disagree in sign, or vanish, is malformed.
func Orientation(g GeometryType, pts [][]float64) (float64, error) {
	if len(pts) != g.NVp() {
		return 0, fmt.Errorf("%s needs %d vertices, got %d", g, g.NVp(), len(pts))
	}
	vol := Volume(g, pts)
	if vol == 0 || math.IsNaN(vol) {
		return 0, fmt.Errorf("%s has zero volume", g)
	}
	sign := math.Copysign(1, vol)
	for i, j := range CornerJacobians(g, pts) {
		if j*sign <= 0 {
			return 0, fmt.Errorf("%s corner %d has Jacobian %g against orientation %+g", g, i, j, sign)
		}
	}
	return sign, nil
}

// Quality returns the smallest corner Jacobian of an element measured in the
// orientation the element was created with, normalised by the mean corner
// Jacobian magnitude. Values <= 0 mean the element is inverted or degenerate;
// a non-finite corner Jacobian gives -1.
func Quality(g GeometryType, pts [][]float64, sign float64) float64 {
	jac := CornerJacobians(g, pts)
	var mean float64
	for _, j := range jac {
		if math.IsNaN(j) || math.IsInf(j, 0) {
			return -1
		}
		mean += math.Abs(j)
	}
	mean /= float64(len(jac))
	if mean == 0 {
		return 0
	}
	q := math.Inf(1)
	for _, j := range jac {
		q = math.Min(q, sign*j/mean)
	}
	return q
}

// Centroid returns the arithmetic mean of the vertices
func Centroid(pts [][]float64) []float64 {
	c := make([]float64, len(pts[0]))
	for _, p := range pts {
		for d := range c {
			c[d] += p[d]
		}
	}
	for d := range c {
		c[d] /= float64(len(pts))
	}
	return c
}

// FaceNormal returns the area-weighted normal of a boundary face (a line in
// 2D, a triangle or quadrilateral in 3D). Orientation follows the vertex order.
func FaceNormal(pts [][]float64) []float64 {
	switch {
	case len(pts) == 2 && len(pts[0]) == 2:
		return []float64{pts[1][1] - pts[0][1], -(pts[1][0] - pts[0][0])}
	case len(pts) == 3:
		return scale(cross(sub(pts[1], pts[0]), sub(pts[2], pts[0])), 0.5)
	case len(pts) == 4:
		return scale(cross(sub(pts[2], pts[0]), sub(pts[3], pts[1])), 0.5)
	}
	return make([]float64, len(pts[0]))
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func cross(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func scale(a []float64, s float64) []float64 {
	for i := range a {
		a[i] *= s
	}
	return a
}
