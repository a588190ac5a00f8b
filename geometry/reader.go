package geometry

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"

	"github.com/notargets/meshmotion/element"
)

// ReadOptions controls how meshes without native marker information receive
// their markers
type ReadOptions struct {
	Planes      []PlaneSelector
	ExteriorTag string
}

// DefaultExteriorTag names the marker collecting unselected exterior faces
const DefaultExteriorTag = "boundary"

// ReadFile reads a mesh file and returns one MeshData per zone. Native SU2
// files are parsed directly; Gambit (.neu) and Gmsh (.msh) files are read
// through gocfd and get their markers from the exterior faces.
func ReadFile(path string, opts ReadOptions) ([]*MeshData, error) {
	var zones []*MeshData
	switch strings.ToLower(filepath.Ext(path)) {
	case ".su2":
		z, err := ReadSU2File(path)
		if err != nil {
			return nil, err
		}
		zones = z
	case ".neu", ".msh":
		m, err := readers.ReadMeshFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		md, err := FromGocfd(m, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		zones = []*MeshData{md}
	default:
		return nil, fmt.Errorf("%s: unsupported mesh format %q", path, filepath.Ext(path))
	}

	for _, z := range zones {
		if err := z.Validate(); err != nil {
			return nil, fmt.Errorf("%s zone %d: %w", path, z.Zone, err)
		}
	}
	return zones, nil
}

// FromGocfd converts a gocfd volume mesh
func FromGocfd(m *mesh.Mesh, opts ReadOptions) (*MeshData, error) {
	md := &MeshData{
		Dim:    3,
		NZone:  1,
		Coords: make([][]float64, len(m.Vertices)),
		Source: m,
	}
	for i, v := range m.Vertices {
		if len(v) < 3 {
			return nil, fmt.Errorf("vertex %d has %d coordinates", i, len(v))
		}
		md.Coords[i] = []float64{v[0], v[1], v[2]}
	}

	md.Elements = make([]Element, 0, m.NumElements)
	for k := 0; k < m.NumElements; k++ {
		nodes := m.EtoV[k]
		g, err := element.FromNodeCount(element.D3, len(nodes))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", k, err)
		}
		md.Elements = append(md.Elements, Element{Type: g, Nodes: append([]int(nil), nodes...)})
	}

	exterior := opts.ExteriorTag
	if exterior == "" {
		exterior = DefaultExteriorTag
	}
	md.SynthesizeMarkers(opts.Planes, exterior)
	return md, nil
}
