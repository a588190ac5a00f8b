package element

import "fmt"

// GeometryType identifies the shape of an element
type GeometryType uint8

const (
	// 1D element type
	Line GeometryType = iota // Line segment

	// 2D element types
	Tri  // Triangle
	Quad // Quadrilateral

	// 3D element types
	Tet     // Tetrahedron
	Hex     // Hexahedron
	Prism   // Triangular prism
	Pyramid // Square-based pyramid
)

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D1 Dimensionality = iota + 1 // 1D elements (lines, edges)
	D2                           // 2D elements (triangles, quadrilaterals)
	D3                           // 3D elements (tetrahedra, hexahedra, etc.)
)

// vtkIDs are the element identifiers used by SU2 and VTK files
var vtkIDs = map[GeometryType]int{
	Line:    3,
	Tri:     5,
	Quad:    9,
	Tet:     10,
	Hex:     12,
	Prism:   13,
	Pyramid: 14,
}

var names = map[GeometryType]string{
	Line:    "Line",
	Tri:     "Triangle",
	Quad:    "Quadrilateral",
	Tet:     "Tetrahedron",
	Hex:     "Hexahedron",
	Prism:   "Prism",
	Pyramid: "Pyramid",
}

func (g GeometryType) String() string {
	if n, ok := names[g]; ok {
		return n
	}
	return fmt.Sprintf("GeometryType(%d)", uint8(g))
}

// VTKID returns the SU2/VTK identifier of the element type
func (g GeometryType) VTKID() int {
	return vtkIDs[g]
}

// FromVTK maps an SU2/VTK identifier to a GeometryType
func FromVTK(id int) (GeometryType, error) {
	for g, v := range vtkIDs {
		if v == id {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unsupported element identifier %d", id)
}

// FromNodeCount infers a volume element type from its vertex count. Readers that
// only hand back connectivity (no type tag) rely on this.
func FromNodeCount(dim Dimensionality, n int) (GeometryType, error) {
	switch {
	case dim == D2 && n == 3:
		return Tri, nil
	case dim == D2 && n == 4:
		return Quad, nil
	case dim == D3 && n == 4:
		return Tet, nil
	case dim == D3 && n == 5:
		return Pyramid, nil
	case dim == D3 && n == 6:
		return Prism, nil
	case dim == D3 && n == 8:
		return Hex, nil
	}
	return 0, fmt.Errorf("no %dD element has %d vertices", dim, n)
}

// Properties contains metadata describing an element type
type Properties struct {
	Name       string         // Full descriptive name
	Type       GeometryType   // Element shape
	NVp        int            // Number of vertex nodes
	NFaces     int            // Number of faces (edges in 2D)
	Dimensions Dimensionality // Spatial dimension
}

// Properties returns the catalogue entry for g
func (g GeometryType) Properties() Properties {
	p := Properties{
		Name:   g.String(),
		Type:   g,
		NFaces: len(faceTable[g]),
	}
	switch g {
	case Line:
		p.NVp, p.Dimensions = 2, D1
	case Tri:
		p.NVp, p.Dimensions = 3, D2
	case Quad:
		p.NVp, p.Dimensions = 4, D2
	case Tet:
		p.NVp, p.Dimensions = 4, D3
	case Hex:
		p.NVp, p.Dimensions = 8, D3
	case Prism:
		p.NVp, p.Dimensions = 6, D3
	case Pyramid:
		p.NVp, p.Dimensions = 5, D3
	}
	return p
}

// NVp returns the number of vertices of g
func (g GeometryType) NVp() int {
	return g.Properties().NVp
}

// Dimensions returns the spatial dimension of g
func (g GeometryType) Dimensions() Dimensionality {
	return g.Properties().Dimensions
}

// IsBoundaryOf reports whether g can be a boundary face of a volume element in dim
func (g GeometryType) IsBoundaryOf(dim Dimensionality) bool {
	switch dim {
	case D2:
		return g == Line
	case D3:
		return g == Tri || g == Quad
	}
	return false
}
