package geometry

import (
	"fmt"

	"github.com/notargets/meshmotion/element"
)

// BoxSpec describes a structured box mesh
type BoxSpec struct {
	Dim    int       // 2 or 3
	N      []int     // Cells per direction
	Length []float64 // Edge length per direction
	Origin []float64 // Lower corner, zero when nil
	Tets   bool      // Split 3D cells into six tetrahedra
}

// BoxMarkers are the marker tags of a box, by axis and side
var BoxMarkers = [3][2]string{
	{"left", "right"},
	{"lower", "upper"},
	{"back", "front"},
}

// NewBox generates a structured mesh of quadrilaterals (2D), hexahedra or
// tetrahedra (3D), with one marker per box side
func NewBox(spec BoxSpec) (*MeshData, error) {
	dim := spec.Dim
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("box: unsupported dimension %d", dim)
	}
	if len(spec.N) != dim || len(spec.Length) != dim {
		return nil, fmt.Errorf("box: need %d cell counts and lengths", dim)
	}
	origin := spec.Origin
	if origin == nil {
		origin = make([]float64, dim)
	}
	for d := 0; d < dim; d++ {
		if spec.N[d] < 1 || spec.Length[d] <= 0 {
			return nil, fmt.Errorf("box: invalid size along axis %d", d)
		}
	}

	n := [3]int{1, 1, 1}
	copy(n[:], spec.N)
	np := [3]int{n[0] + 1, n[1] + 1, n[2] + 1}
	if dim == 2 {
		np[2] = 1
	}

	md := &MeshData{Dim: dim, NZone: 1}
	for k := 0; k < np[2]; k++ {
		for j := 0; j < np[1]; j++ {
			for i := 0; i < np[0]; i++ {
				idx := [3]int{i, j, k}
				x := make([]float64, dim)
				for d := 0; d < dim; d++ {
					x[d] = origin[d] + spec.Length[d]*float64(idx[d])/float64(n[d])
				}
				md.Coords = append(md.Coords, x)
			}
		}
	}
	id := func(i, j, k int) int { return i + np[0]*(j+np[1]*k) }

	if dim == 2 {
		for j := 0; j < n[1]; j++ {
			for i := 0; i < n[0]; i++ {
				md.Elements = append(md.Elements, Element{
					Type:  element.Quad,
					Nodes: []int{id(i, j, 0), id(i+1, j, 0), id(i+1, j+1, 0), id(i, j+1, 0)},
				})
			}
		}
	} else {
		tets, _ := element.Hex.Simplices()
		for k := 0; k < n[2]; k++ {
			for j := 0; j < n[1]; j++ {
				for i := 0; i < n[0]; i++ {
					hex := []int{
						id(i, j, k), id(i+1, j, k), id(i+1, j+1, k), id(i, j+1, k),
						id(i, j, k+1), id(i+1, j, k+1), id(i+1, j+1, k+1), id(i, j+1, k+1),
					}
					if !spec.Tets {
						md.Elements = append(md.Elements, Element{Type: element.Hex, Nodes: hex})
						continue
					}
					for _, s := range tets {
						nodes := []int{hex[s[0]], hex[s[1]], hex[s[2]], hex[s[3]]}
						if element.Volume(element.Tet, md.points(nodes)) < 0 {
							nodes[1], nodes[2] = nodes[2], nodes[1]
						}
						md.Elements = append(md.Elements, Element{Type: element.Tet, Nodes: nodes})
					}
				}
			}
		}
	}

	var planes []PlaneSelector
	for d := 0; d < dim; d++ {
		h := spec.Length[d] / float64(n[d])
		planes = append(planes,
			PlaneSelector{Tag: BoxMarkers[d][0], Axis: d, Value: origin[d], Tolerance: 1e-6 * h},
			PlaneSelector{Tag: BoxMarkers[d][1], Axis: d, Value: origin[d] + spec.Length[d], Tolerance: 1e-6 * h},
		)
	}
	md.SynthesizeMarkers(planes, "")
	return md, nil
}
