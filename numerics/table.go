package numerics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/meshmotion/element"
	"github.com/notargets/meshmotion/geometry"
)

// Simplex is one linear simplex of an element's decomposition
type Simplex struct {
	Element int     // Local element index
	Nodes   []int   // Local point indices
	Weight  float64 // Share of the element covered by this simplex
}

// Table is the per-zone operator table consumed by the mesh solver
type Table struct {
	Dim          int
	Model        Elasticity
	Simplices    []Simplex
	WallDistance []float64 // Per local element; only used by WallDistance stiffness
}

// NewTable decomposes every local element of g into linear simplices
func NewTable(g *geometry.Geometry, model Elasticity) *Table {
	t := &Table{Dim: g.Dim, Model: model}
	for k, e := range g.Elements {
		simplices, w := e.Type.Simplices()
		for _, s := range simplices {
			nodes := make([]int, len(s))
			for i, l := range s {
				nodes[i] = e.Nodes[l]
			}
			t.Simplices = append(t.Simplices, Simplex{Element: k, Nodes: nodes, Weight: w})
		}
	}
	return t
}

// SetWallDistance records the distance of every local element to the nearest
// deforming boundary vertex
func (t *Table) SetWallDistance(d []float64) {
	t.WallDistance = d
}

// ElementModulus returns the modulus of local element k
func (t *Table) ElementModulus(g *geometry.Geometry, k int) float64 {
	var wd float64
	if k < len(t.WallDistance) {
		wd = t.WallDistance[k]
	}
	e := g.Elements[k]
	return t.Model.Modulus(element.Volume(e.Type, g.ElementPoints(k)), wd)
}

// Each calls fn with the stiffness matrix of every simplex of the table in
// the current coordinates of g
func (t *Table) Each(g *geometry.Geometry, fn func(s Simplex, K *mat.Dense) error) error {
	moduli := make([]float64, len(g.Elements))
	for k := range g.Elements {
		moduli[k] = t.ElementModulus(g, k)
	}
	for _, s := range t.Simplices {
		pts := make([][]float64, len(s.Nodes))
		for i, n := range s.Nodes {
			pts[i] = g.Coords[n]
		}
		K, err := t.Model.SimplexStiffness(pts, moduli[s.Element])
		if err != nil {
			return fmt.Errorf("element %d: %w", g.Elements[s.Element].GlobalID, err)
		}
		if s.Weight != 1 {
			K.Scale(s.Weight, K)
		}
		if err := fn(s, K); err != nil {
			return err
		}
	}
	return nil
}
