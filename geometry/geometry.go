package geometry

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/meshmotion/comm"
	"github.com/notargets/meshmotion/element"
	"github.com/notargets/meshmotion/partitions"
	"github.com/notargets/meshmotion/utils"
)

// LocalElement is an element held by this rank
type LocalElement struct {
	Type     element.GeometryType
	GlobalID int
	Nodes    []int   // Local point indices
	Sign     float64 // Orientation at load time
}

// BoundaryElement is a boundary face held by this rank, attached to the local
// volume element it bounds
type BoundaryElement struct {
	Type     element.GeometryType
	GlobalID int   // Index within the global marker
	Nodes    []int // Local point indices
	Element  int   // Local index of the adjacent volume element
}

// Marker is the rank-local view of a boundary marker. Vertices are every local
// point on the marker, owned points first.
type Marker struct {
	Index    int
	Tag      string
	Vertices []int // Local point indices
	Elements []BoundaryElement
	Normals  [][]float64 // Area-weighted outward normal per vertex

	vertexOf map[int]int // Local point → vertex index
}

// VertexOf returns the marker vertex index of a local point, or -1
func (m *Marker) VertexOf(point int) int {
	if v, ok := m.vertexOf[point]; ok {
		return v
	}
	return -1
}

// Geometry is the rank-local view of one zone's mesh. Points owned by this
// rank come first, ordered by global id, followed by halo copies of points
// owned elsewhere, also ordered by global id.
type Geometry struct {
	Zone int
	Dim  int
	Comm *comm.Comm

	NGlobalPoint   int
	NGlobalElement int
	NPointDomain   int // Points owned by this rank

	Coords        [][]float64 // Current coordinates
	InitialCoords [][]float64 // Coordinates as loaded
	GlobalID      []int       // Local point → global point
	Elements      []LocalElement
	Markers       []*Marker
	Edges         [][2]int

	// Per-point boundary fields written through the coupling interface
	BoundDisp [][]float64
	Velocity  [][]float64

	Halo *utils.HaloConnector

	globalToLocal map[int]int
}

// NPoint returns the number of local points, owned and halo
func (g *Geometry) NPoint() int { return len(g.Coords) }

// Owned reports whether local point i is owned by this rank
func (g *Geometry) Owned(i int) bool { return i < g.NPointDomain }

// LocalIndex returns the local index of a global point, or -1 when the point
// is not held by this rank
func (g *Geometry) LocalIndex(globalID int) int {
	if i, ok := g.globalToLocal[globalID]; ok {
		return i
	}
	return -1
}

// MarkerByTag returns a marker by tag, or nil
func (g *Geometry) MarkerByTag(tag string) *Marker {
	for _, m := range g.Markers {
		if m.Tag == tag {
			return m
		}
	}
	return nil
}

// ElementPoints returns the current coordinates of element k's nodes
func (g *Geometry) ElementPoints(k int) [][]float64 {
	e := g.Elements[k]
	pts := make([][]float64, len(e.Nodes))
	for i, n := range e.Nodes {
		pts[i] = g.Coords[n]
	}
	return pts
}

// Decompose partitions the mesh on rank 0 and broadcasts the element → rank
// map, so every rank uses an identical layout
func Decompose(ctx context.Context, c *comm.Comm, md *MeshData, strategy partitions.PartitionStrategy) (*partitions.PartitionLayout, error) {
	var eToP []float64
	if c.Rank() == 0 {
		pb := &partitions.PartitionBuilder{
			Mesh: &partitions.MeshConnectivity{
				NumElements:  len(md.Elements),
				ElementTypes: md.ElementTypes(),
				Centroids:    md.Centroids(),
			},
			NumPartitions: c.Size(),
			Strategy:      strategy,
		}
		if md.Source != nil {
			pb.Partitioner = &partitions.MetisPartitioner{Mesh: md.Source, ImbalanceFactor: 0.05}
		}
		layout, err := pb.BuildPartitions()
		if err != nil {
			// Other ranks are released with an empty map and fail validation
			_, _ = c.Bcast(ctx, 0, nil)
			return nil, err
		}
		eToP = comm.EncodeInts(layout.EToP)
	}
	eToP, err := c.Bcast(ctx, 0, eToP)
	if err != nil {
		return nil, err
	}
	if len(eToP) != len(md.Elements) {
		return nil, fmt.Errorf("decomposition failed on rank 0")
	}
	return partitions.NewLayout(comm.DecodeInts(eToP), c.Size(), md.ElementTypes())
}

// Build constructs the rank-local geometry of a zone. Every rank calls it with
// the same global mesh and layout.
func Build(md *MeshData, layout *partitions.PartitionLayout, c *comm.Comm) (*Geometry, error) {
	if err := md.Validate(); err != nil {
		return nil, utils.NewError("Build", utils.KindMesh, md.Zone, fmt.Errorf("%w: %v", utils.ErrMeshTopology, err))
	}
	if layout.NumPartitions != c.Size() || layout.TotalElements != len(md.Elements) {
		return nil, utils.Errorf("Build", utils.KindMesh, md.Zone,
			"layout of %d partitions/%d elements does not match %d ranks/%d elements",
			layout.NumPartitions, layout.TotalElements, c.Size(), len(md.Elements))
	}
	rank := c.Rank()
	np := md.NumPoints()

	// Owner of a point is the lowest rank holding an element with it
	owner := make([]int, np)
	for i := range owner {
		owner[i] = -1
	}
	holders := make([]map[int]bool, c.Size())
	for p := range holders {
		holders[p] = make(map[int]bool)
	}
	for k, e := range md.Elements {
		p := layout.EToP[k]
		for _, n := range e.Nodes {
			holders[p][n] = true
			if owner[n] < 0 || p < owner[n] {
				owner[n] = p
			}
		}
	}
	for i, o := range owner {
		if o < 0 {
			// Orphan points belong to rank 0 so every point has an owner
			owner[i] = 0
			holders[0][i] = true
		}
	}

	// Local ordering of every partition: owned by global id, then halos
	localToGlobal := make([][]int, c.Size())
	for p := range localToGlobal {
		var owned, halo []int
		for n := range holders[p] {
			if owner[n] == p {
				owned = append(owned, n)
			} else {
				halo = append(halo, n)
			}
		}
		sort.Ints(owned)
		sort.Ints(halo)
		localToGlobal[p] = append(owned, halo...)
	}

	hc, err := utils.NewHaloConnector(np, owner, localToGlobal)
	if err != nil {
		return nil, utils.NewError("Build", utils.KindMesh, md.Zone, err)
	}

	g := &Geometry{
		Zone:           md.Zone,
		Dim:            md.Dim,
		Comm:           c,
		NGlobalPoint:   np,
		NGlobalElement: len(md.Elements),
		Halo:           hc,
		GlobalID:       localToGlobal[rank],
		globalToLocal:  hc.GlobalToLocalPoint[rank],
	}
	for _, gid := range g.GlobalID {
		if owner[gid] == rank {
			g.NPointDomain++
		}
	}

	n := len(g.GlobalID)
	g.Coords = make([][]float64, n)
	g.InitialCoords = make([][]float64, n)
	g.BoundDisp = make([][]float64, n)
	g.Velocity = make([][]float64, n)
	for i, gid := range g.GlobalID {
		g.Coords[i] = append([]float64(nil), md.Coords[gid]...)
		g.InitialCoords[i] = append([]float64(nil), md.Coords[gid]...)
		g.BoundDisp[i] = make([]float64, g.Dim)
		g.Velocity[i] = make([]float64, g.Dim)
	}

	localOf := make(map[int]int) // global element → local element
	for _, k := range layout.Partitions[rank].Elements {
		e := md.Elements[k]
		le := LocalElement{Type: e.Type, GlobalID: k, Nodes: make([]int, len(e.Nodes))}
		for i, gn := range e.Nodes {
			le.Nodes[i] = g.globalToLocal[gn]
		}
		sign, err := element.Orientation(e.Type, md.points(e.Nodes))
		if err != nil {
			return nil, utils.Errorf("Build", utils.KindMesh, md.Zone, "element %d: %v", k, err)
		}
		le.Sign = sign
		localOf[k] = len(g.Elements)
		g.Elements = append(g.Elements, le)
	}

	if err := g.buildMarkers(md, layout, localOf); err != nil {
		return nil, err
	}
	g.buildEdges()
	return g, nil
}

func (g *Geometry) buildMarkers(md *MeshData, layout *partitions.PartitionLayout, localOf map[int]int) error {
	faces := md.faceIndex()
	for mi, m := range md.Markers {
		lm := &Marker{Index: mi, Tag: m.Tag, vertexOf: make(map[int]int)}
		onMarker := make(map[int]bool)
		for be, e := range m.Elements {
			for _, n := range e.Nodes {
				onMarker[n] = true
			}
			ref, ok := faces[faceKey(e.Nodes)]
			if !ok {
				return utils.Errorf("Build", utils.KindMesh, md.Zone,
					"marker %s element %d matches no element face", m.Tag, be)
			}
			local, ok := localOf[ref.Element]
			if !ok {
				continue
			}
			b := BoundaryElement{Type: e.Type, GlobalID: be, Element: local, Nodes: make([]int, len(e.Nodes))}
			for i, gn := range e.Nodes {
				b.Nodes[i] = g.globalToLocal[gn]
			}
			lm.Elements = append(lm.Elements, b)
		}

		// Local indices are already owned-first then by global id
		for i, gid := range g.GlobalID {
			if onMarker[gid] {
				lm.vertexOf[i] = len(lm.Vertices)
				lm.Vertices = append(lm.Vertices, i)
			}
		}
		lm.Normals = make([][]float64, len(lm.Vertices))
		for v := range lm.Normals {
			lm.Normals[v] = make([]float64, g.Dim)
		}
		g.Markers = append(g.Markers, lm)
	}
	return nil
}

// buildEdges collects the unique element edges, as pairs of local points
func (g *Geometry) buildEdges() {
	seen := make(map[[2]int]bool)
	add := func(a, b int) {
		if a > b {
			a, b = b, a
		}
		e := [2]int{a, b}
		if !seen[e] {
			seen[e] = true
			g.Edges = append(g.Edges, e)
		}
	}
	for _, e := range g.Elements {
		for _, f := range e.Type.Faces() {
			if len(f) == 2 {
				add(e.Nodes[f[0]], e.Nodes[f[1]])
				continue
			}
			for i := range f {
				add(e.Nodes[f[i]], e.Nodes[f[(i+1)%len(f)]])
			}
		}
	}
}

// MinEdgeLength returns the shortest local edge in the current coordinates
func (g *Geometry) MinEdgeLength() float64 {
	minLen := math.Inf(1)
	for _, e := range g.Edges {
		var s float64
		for d := 0; d < g.Dim; d++ {
			dx := g.Coords[e[1]][d] - g.Coords[e[0]][d]
			s += dx * dx
		}
		minLen = math.Min(minLen, math.Sqrt(s))
	}
	return minLen
}
