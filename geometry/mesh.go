// Package geometry holds the mesh store: the global mesh as read from file and
// the per-rank, per-zone view of it that the deformation core works on.
package geometry

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/gocfd/DG3D/mesh"

	"github.com/notargets/meshmotion/element"
)

// Element is one element of the global mesh
type Element struct {
	Type  element.GeometryType
	Nodes []int // Global point indices
}

// MarkerData is a named group of boundary elements of the global mesh
type MarkerData struct {
	Tag      string
	Elements []Element
}

// MeshData is the global mesh of one zone as read from file
type MeshData struct {
	Dim      int
	Zone     int
	NZone    int
	Coords   [][]float64
	Elements []Element
	Markers  []MarkerData

	// Source is the gocfd mesh this data was converted from, when it was read
	// through gocfd; graph partitioning needs it.
	Source *mesh.Mesh
}

// NumPoints returns the number of points in the mesh
func (md *MeshData) NumPoints() int { return len(md.Coords) }

// MarkerIndex returns the index of a marker tag or -1
func (md *MeshData) MarkerIndex(tag string) int {
	for i, m := range md.Markers {
		if m.Tag == tag {
			return i
		}
	}
	return -1
}

// Centroids returns the centroid of every element
func (md *MeshData) Centroids() [][]float64 {
	c := make([][]float64, len(md.Elements))
	for k, e := range md.Elements {
		c[k] = element.Centroid(md.points(e.Nodes))
	}
	return c
}

// ElementTypes returns the type of every element
func (md *MeshData) ElementTypes() []element.GeometryType {
	t := make([]element.GeometryType, len(md.Elements))
	for k, e := range md.Elements {
		t[k] = e.Type
	}
	return t
}

func (md *MeshData) points(nodes []int) [][]float64 {
	pts := make([][]float64, len(nodes))
	for i, n := range nodes {
		pts[i] = md.Coords[n]
	}
	return pts
}

// Validate checks connectivity and element orientation. Node indices must be
// in range, coordinates finite, every element must have a consistent
// orientation and non-zero volume, and every boundary element must match a
// face of exactly one volume element.
func (md *MeshData) Validate() error {
	if md.Dim != 2 && md.Dim != 3 {
		return fmt.Errorf("unsupported dimension %d", md.Dim)
	}
	if len(md.Elements) == 0 {
		return fmt.Errorf("mesh has no elements")
	}
	for i, x := range md.Coords {
		if len(x) != md.Dim {
			return fmt.Errorf("point %d has %d coordinates, expected %d", i, len(x), md.Dim)
		}
		for _, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("point %d has non-finite coordinate", i)
			}
		}
	}

	np := md.NumPoints()
	checkNodes := func(what string, k int, e Element) error {
		if len(e.Nodes) != e.Type.NVp() {
			return fmt.Errorf("%s %d: %s with %d nodes", what, k, e.Type, len(e.Nodes))
		}
		for _, n := range e.Nodes {
			if n < 0 || n >= np {
				return fmt.Errorf("%s %d: node %d out of range [0,%d)", what, k, n, np)
			}
		}
		return nil
	}

	for k, e := range md.Elements {
		if int(e.Type.Dimensions()) != md.Dim {
			return fmt.Errorf("element %d: %s in a %dD mesh", k, e.Type, md.Dim)
		}
		if err := checkNodes("element", k, e); err != nil {
			return err
		}
		if _, err := element.Orientation(e.Type, md.points(e.Nodes)); err != nil {
			return fmt.Errorf("element %d: %w", k, err)
		}
	}

	faces := md.faceIndex()
	for _, m := range md.Markers {
		for k, e := range m.Elements {
			if !e.Type.IsBoundaryOf(element.Dimensionality(md.Dim)) {
				return fmt.Errorf("marker %s element %d: %s cannot bound a %dD mesh", m.Tag, k, e.Type, md.Dim)
			}
			if err := checkNodes("marker "+m.Tag+" element", k, e); err != nil {
				return err
			}
			if _, ok := faces[faceKey(e.Nodes)]; !ok {
				return fmt.Errorf("marker %s element %d matches no element face", m.Tag, k)
			}
		}
	}
	return nil
}

// faceRef locates a face of a volume element
type faceRef struct {
	Element int
	Face    int
	count   int
}

// faceIndex maps every element face to the element holding it
func (md *MeshData) faceIndex() map[string]*faceRef {
	faces := make(map[string]*faceRef)
	for k, e := range md.Elements {
		for f, local := range e.Type.Faces() {
			nodes := make([]int, len(local))
			for i, l := range local {
				nodes[i] = e.Nodes[l]
			}
			key := faceKey(nodes)
			if ref, ok := faces[key]; ok {
				ref.count++
				continue
			}
			faces[key] = &faceRef{Element: k, Face: f, count: 1}
		}
	}
	return faces
}

// faceKey is an order independent identifier for a face
func faceKey(nodes []int) string {
	s := append([]int(nil), nodes...)
	sort.Ints(s)
	return fmt.Sprint(s)
}

// PlaneSelector assigns exterior faces lying in an axis-aligned plane to a marker
type PlaneSelector struct {
	Tag       string
	Axis      int // 0, 1 or 2
	Value     float64
	Tolerance float64
}

// SynthesizeMarkers builds markers from the exterior faces of the mesh. A face
// whose nodes all lie in a selector's plane goes to that selector's marker;
// remaining exterior faces go to exteriorTag (dropped when exteriorTag is
// empty). Markers appear in selector order, followed by the exterior marker.
func (md *MeshData) SynthesizeMarkers(selectors []PlaneSelector, exteriorTag string) {
	md.Markers = md.Markers[:0]
	for _, s := range selectors {
		md.Markers = append(md.Markers, MarkerData{Tag: s.Tag})
	}
	exterior := MarkerData{Tag: exteriorTag}

	faces := md.faceIndex()
	// Walk elements in order so marker content is deterministic
	for k, e := range md.Elements {
		for f, local := range e.Type.Faces() {
			nodes := make([]int, len(local))
			for i, l := range local {
				nodes[i] = e.Nodes[l]
			}
			ref := faces[faceKey(nodes)]
			if ref.count != 1 || ref.Element != k || ref.Face != f {
				continue
			}
			be := Element{Type: e.Type.FaceType(f), Nodes: nodes}
			placed := false
			for i, s := range selectors {
				if md.inPlane(nodes, s) {
					md.Markers[i].Elements = append(md.Markers[i].Elements, be)
					placed = true
					break
				}
			}
			if !placed {
				exterior.Elements = append(exterior.Elements, be)
			}
		}
	}
	if exteriorTag != "" && len(exterior.Elements) > 0 {
		md.Markers = append(md.Markers, exterior)
	}
}

func (md *MeshData) inPlane(nodes []int, s PlaneSelector) bool {
	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-9
	}
	if s.Axis < 0 || s.Axis >= md.Dim {
		return false
	}
	for _, n := range nodes {
		if math.Abs(md.Coords[n][s.Axis]-s.Value) > tol {
			return false
		}
	}
	return true
}
