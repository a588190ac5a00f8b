package driver

import (
	"context"
	"math"

	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/deform"
	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/utils"
)

// Marker kinds reported by GetAllBoundaryMarkersType
const (
	MarkerDeformable = "deform_mesh"
	MarkerMoving     = "moving"
	MarkerFixed      = "fixed"
)

// Coupling is the boundary data-exchange surface of one zone on one rank.
// Markers are addressed by index and vertices by their index within the
// marker; both are stable for the life of the driver. It is not safe for
// concurrent use.
type Coupling struct {
	zone *Zone
	geo  *geometry.Geometry
	cfg  config.Config
}

func (c *Coupling) misuse(op, format string, args ...interface{}) error {
	return utils.Errorf(op, utils.KindCoupling, c.geo.Zone, format, args...)
}

func (c *Coupling) marker(op string, m int) (*geometry.Marker, error) {
	if m < 0 || m >= len(c.geo.Markers) {
		return nil, c.misuse(op, "marker %d out of range [0, %d)", m, len(c.geo.Markers))
	}
	return c.geo.Markers[m], nil
}

// vertex returns the local point of vertex v of marker m
func (c *Coupling) vertex(op string, m, v int) (int, error) {
	mk, err := c.marker(op, m)
	if err != nil {
		return 0, err
	}
	if v < 0 || v >= len(mk.Vertices) {
		return 0, c.misuse(op, "vertex %d out of range [0, %d) on marker %s", v, len(mk.Vertices), mk.Tag)
	}
	return mk.Vertices[v], nil
}

func (c *Coupling) deformable(op string, m int) (*geometry.Marker, error) {
	mk, err := c.marker(op, m)
	if err != nil {
		return nil, err
	}
	if !c.cfg.IsDeformable(mk.Tag) {
		return nil, c.misuse(op, "marker %s is not deformable", mk.Tag)
	}
	return mk, nil
}

// GetAllBoundaryMarkers maps every marker tag to its index
func (c *Coupling) GetAllBoundaryMarkers() map[string]int {
	out := make(map[string]int, len(c.geo.Markers))
	for i, m := range c.geo.Markers {
		out[m.Tag] = i
	}
	return out
}

// GetAllBoundaryMarkersType maps every marker tag to its kind. Markers driven
// by the configured surface motion are moving; they are always deformable too.
func (c *Coupling) GetAllBoundaryMarkersType() map[string]string {
	moving := make(map[string]bool)
	if c.cfg.Motion.Kind != "none" {
		for _, t := range c.cfg.MovingMarkers() {
			moving[t] = true
		}
	}
	out := make(map[string]string, len(c.geo.Markers))
	for _, m := range c.geo.Markers {
		switch {
		case moving[m.Tag]:
			out[m.Tag] = MarkerMoving
		case c.cfg.IsDeformable(m.Tag):
			out[m.Tag] = MarkerDeformable
		default:
			out[m.Tag] = MarkerFixed
		}
	}
	return out
}

// GetAllDeformMeshMarkersTag returns the deformable marker tags in index order
func (c *Coupling) GetAllDeformMeshMarkersTag() []string {
	var tags []string
	for _, m := range c.geo.Markers {
		if c.cfg.IsDeformable(m.Tag) {
			tags = append(tags, m.Tag)
		}
	}
	return tags
}

// GetNumberDimensions returns the mesh dimension, 2 or 3
func (c *Coupling) GetNumberDimensions() int { return c.geo.Dim }

// GetNumberElements returns the number of elements held by this rank
func (c *Coupling) GetNumberElements() int { return len(c.geo.Elements) }

// GetNumberElementsMarker returns the number of boundary elements of marker m
// held by this rank
func (c *Coupling) GetNumberElementsMarker(m int) (int, error) {
	mk, err := c.marker("GetNumberElementsMarker", m)
	if err != nil {
		return 0, err
	}
	return len(mk.Elements), nil
}

// GetNumberVertices returns the number of local points, owned and halo
func (c *Coupling) GetNumberVertices() int { return c.geo.NPoint() }

// GetNumberVerticesMarker returns the number of local vertices of marker m,
// halo vertices included
func (c *Coupling) GetNumberVerticesMarker(m int) (int, error) {
	mk, err := c.marker("GetNumberVerticesMarker", m)
	if err != nil {
		return 0, err
	}
	return len(mk.Vertices), nil
}

// GetNumberHaloVertices returns the number of local points owned by another
// rank
func (c *Coupling) GetNumberHaloVertices() int { return c.geo.NPoint() - c.geo.NPointDomain }

// GetNumberHaloVerticesMarker returns how many vertices of marker m are halo
// copies
func (c *Coupling) GetNumberHaloVerticesMarker(m int) (int, error) {
	mk, err := c.marker("GetNumberHaloVerticesMarker", m)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range mk.Vertices {
		if !c.geo.Owned(p) {
			n++
		}
	}
	return n, nil
}

// GetVertexIDs returns the global id of every local point
func (c *Coupling) GetVertexIDs() []int {
	return append([]int(nil), c.geo.GlobalID...)
}

// GetVertexIDsMarker returns the global point id of every vertex of marker m
func (c *Coupling) GetVertexIDsMarker(m int) ([]int, error) {
	mk, err := c.marker("GetVertexIDsMarker", m)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(mk.Vertices))
	for v, p := range mk.Vertices {
		ids[v] = c.geo.GlobalID[p]
	}
	return ids, nil
}

// GetElementIDs returns the global id of every local element
func (c *Coupling) GetElementIDs() []int {
	ids := make([]int, len(c.geo.Elements))
	for k, e := range c.geo.Elements {
		ids[k] = e.GlobalID
	}
	return ids
}

// GetElementIDsMarker returns the ids of the marker's boundary elements held
// by this rank, numbered within the marker
func (c *Coupling) GetElementIDsMarker(m int) ([]int, error) {
	mk, err := c.marker("GetElementIDsMarker", m)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(mk.Elements))
	for i, b := range mk.Elements {
		ids[i] = b.GlobalID
	}
	return ids, nil
}

// GetConnectivity returns the global point ids of every local element
func (c *Coupling) GetConnectivity() [][]int {
	conn := make([][]int, len(c.geo.Elements))
	for k, e := range c.geo.Elements {
		conn[k] = c.globalIDs(e.Nodes)
	}
	return conn
}

// GetConnectivityMarker returns the global point ids of every boundary element
// of marker m held by this rank
func (c *Coupling) GetConnectivityMarker(m int) ([][]int, error) {
	mk, err := c.marker("GetConnectivityMarker", m)
	if err != nil {
		return nil, err
	}
	conn := make([][]int, len(mk.Elements))
	for i, b := range mk.Elements {
		conn[i] = c.globalIDs(b.Nodes)
	}
	return conn, nil
}

func (c *Coupling) globalIDs(nodes []int) []int {
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = c.geo.GlobalID[n]
	}
	return ids
}

// GetDomain reports, per local point, whether this rank owns it
func (c *Coupling) GetDomain() []bool {
	dom := make([]bool, c.geo.NPoint())
	for p := range dom {
		dom[p] = c.geo.Owned(p)
	}
	return dom
}

// GetDomainMarker reports, per vertex of marker m, whether this rank owns it
func (c *Coupling) GetDomainMarker(m int) ([]bool, error) {
	mk, err := c.marker("GetDomainMarker", m)
	if err != nil {
		return nil, err
	}
	dom := make([]bool, len(mk.Vertices))
	for v, p := range mk.Vertices {
		dom[v] = c.geo.Owned(p)
	}
	return dom, nil
}

// IsAHaloNode reports whether a marker vertex is a copy of a point owned
// elsewhere
func (c *Coupling) IsAHaloNode(m, v int) (bool, error) {
	p, err := c.vertex("IsAHaloNode", m, v)
	if err != nil {
		return false, err
	}
	return !c.geo.Owned(p), nil
}

// GetVertexGlobalIndex returns the global point id of vertex v of marker m
func (c *Coupling) GetVertexGlobalIndex(m, v int) (int, error) {
	p, err := c.vertex("GetVertexGlobalIndex", m, v)
	if err != nil {
		return 0, err
	}
	return c.geo.GlobalID[p], nil
}

// PointIndex returns the local index of a global point, or -1 when this rank
// does not hold it
func (c *Coupling) PointIndex(globalID int) int { return c.geo.LocalIndex(globalID) }

// GetInitialMeshCoord returns the undeformed coordinates of a marker vertex
func (c *Coupling) GetInitialMeshCoord(m, v int) ([]float64, error) {
	p, err := c.vertex("GetInitialMeshCoord", m, v)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), c.geo.InitialCoords[p]...), nil
}

// GetVertexNormal returns the outward normal at a marker vertex, scaled by
// the surrounding face area unless unit is set
func (c *Coupling) GetVertexNormal(m, v int, unit bool) ([]float64, error) {
	mk, err := c.marker("GetVertexNormal", m)
	if err != nil {
		return nil, err
	}
	if _, err := c.vertex("GetVertexNormal", m, v); err != nil {
		return nil, err
	}
	n := append([]float64(nil), mk.Normals[v]...)
	if unit {
		var s float64
		for _, x := range n {
			s += x * x
		}
		if s > 0 {
			s = math.Sqrt(s)
			for i := range n {
				n[i] /= s
			}
		}
	}
	return n, nil
}

// GetVertexUnitNormal is GetVertexNormal with unit set
func (c *Coupling) GetVertexUnitNormal(m, v int) ([]float64, error) {
	return c.GetVertexNormal(m, v, true)
}

// GetCoordinates returns a copy of the current coordinates of every local
// point
func (c *Coupling) GetCoordinates() [][]float64 {
	return copyAll(c.geo.Coords)
}

// GetCoordinatesMarker returns a copy of the current coordinates of every
// vertex of marker m. Halo values are as last written locally.
func (c *Coupling) GetCoordinatesMarker(m int) ([][]float64, error) {
	mk, err := c.marker("GetCoordinatesMarker", m)
	if err != nil {
		return nil, err
	}
	return copyRows(c.geo.Coords, mk.Vertices), nil
}

// SetCoordinates overwrites the current coordinates of every local point,
// bypassing the deformation algorithms
func (c *Coupling) SetCoordinates(coords [][]float64) error {
	if err := c.checkRows("SetCoordinates", coords, c.geo.NPoint()); err != nil {
		return err
	}
	for p, x := range coords {
		copy(c.geo.Coords[p], x)
	}
	return nil
}

// SetCoordinatesMarker overwrites the current coordinates of every vertex of
// marker m. Rows must match the mesh dimension and be finite.
func (c *Coupling) SetCoordinatesMarker(m int, coords [][]float64) error {
	mk, err := c.marker("SetCoordinatesMarker", m)
	if err != nil {
		return err
	}
	if err := c.checkRows("SetCoordinatesMarker", coords, len(mk.Vertices)); err != nil {
		return err
	}
	for v, p := range mk.Vertices {
		copy(c.geo.Coords[p], coords[v])
	}
	return nil
}

// SetVertexCoordX, SetVertexCoordY and SetVertexCoordZ overwrite one
// coordinate of vertex v of marker m. A component beyond the mesh dimension or
// a non-finite value fails with ErrCouplingMisuse.
func (c *Coupling) SetVertexCoordX(m, v int, x float64) error { return c.setVertexCoord(m, v, 0, x) }
func (c *Coupling) SetVertexCoordY(m, v int, y float64) error { return c.setVertexCoord(m, v, 1, y) }
func (c *Coupling) SetVertexCoordZ(m, v int, z float64) error { return c.setVertexCoord(m, v, 2, z) }

func (c *Coupling) setVertexCoord(m, v, dim int, value float64) error {
	p, err := c.vertex("SetVertexCoord", m, v)
	if err != nil {
		return err
	}
	if dim >= c.geo.Dim {
		return c.misuse("SetVertexCoord", "component %d of a %dD mesh", dim, c.geo.Dim)
	}
	if !finite(value) {
		return c.misuse("SetVertexCoord", "non-finite value %g", value)
	}
	c.geo.Coords[p][dim] = value
	return nil
}

// GetDisplacementsMarker returns the boundary displacement of every vertex of
// marker m, as last written locally. Halo vertices hold the owner's value only
// after CommunicateMeshDisplacement.
func (c *Coupling) GetDisplacementsMarker(m int) ([][]float64, error) {
	mk, err := c.marker("GetDisplacementsMarker", m)
	if err != nil {
		return nil, err
	}
	return copyRows(c.geo.BoundDisp, mk.Vertices), nil
}

// SetDisplacementsMarker writes the boundary displacement of every vertex of
// marker m, relative to the undeformed mesh. Halo vertices of other ranks see
// the values after CommunicateMeshDisplacement. Writing to a marker that is
// not deformable fails with ErrCouplingMisuse and changes nothing.
func (c *Coupling) SetDisplacementsMarker(m int, disp [][]float64) error {
	mk, err := c.deformable("SetDisplacementsMarker", m)
	if err != nil {
		return err
	}
	if err := c.checkRows("SetDisplacementsMarker", disp, len(mk.Vertices)); err != nil {
		return err
	}
	for v, p := range mk.Vertices {
		copy(c.geo.BoundDisp[p], disp[v])
	}
	return nil
}

// GetMeshDisplacementsMarker is GetDisplacementsMarker
func (c *Coupling) GetMeshDisplacementsMarker(m int) ([][]float64, error) {
	return c.GetDisplacementsMarker(m)
}

// SetMeshDisplacementsMarker is SetDisplacementsMarker
func (c *Coupling) SetMeshDisplacementsMarker(m int, disp [][]float64) error {
	return c.SetDisplacementsMarker(m, disp)
}

// GetVelocitiesMarker returns the boundary velocity of every vertex of marker
// m, as last written locally. Halo copies are not refreshed.
func (c *Coupling) GetVelocitiesMarker(m int) ([][]float64, error) {
	mk, err := c.marker("GetVelocitiesMarker", m)
	if err != nil {
		return nil, err
	}
	return copyRows(c.geo.Velocity, mk.Vertices), nil
}

// SetVelocitiesMarker writes the boundary velocity of every vertex of a
// deformable marker
func (c *Coupling) SetVelocitiesMarker(m int, vel [][]float64) error {
	mk, err := c.deformable("SetVelocitiesMarker", m)
	if err != nil {
		return err
	}
	if err := c.checkRows("SetVelocitiesMarker", vel, len(mk.Vertices)); err != nil {
		return err
	}
	for v, p := range mk.Vertices {
		copy(c.geo.Velocity[p], vel[v])
	}
	return nil
}

// CommunicateMeshDisplacement copies the boundary displacement of every owned
// point to its halo copies on other ranks. Collective.
func (c *Coupling) CommunicateMeshDisplacement(ctx context.Context) error {
	return c.geo.CommunicateVectors(ctx, c.geo.BoundDisp)
}

// Update deforms the zone with the solver-based algorithm. Collective.
func (c *Coupling) Update(ctx context.Context) (deform.Report, error) {
	if _, err := c.zone.Numerics.Get(); err != nil {
		return deform.Report{}, err
	}
	return c.updateConfigured(ctx)
}

// UpdateLegacy deforms the zone with the algebraic algorithm. Collective.
func (c *Coupling) UpdateLegacy(ctx context.Context) (deform.Report, error) {
	alg, err := c.zone.Legacy.Get()
	if err != nil {
		return deform.Report{}, err
	}
	return c.apply(ctx, alg)
}

// updateConfigured deforms the zone with its configured algorithm
func (c *Coupling) updateConfigured(ctx context.Context) (deform.Report, error) {
	alg, err := c.zone.Algorithm.Get()
	if err != nil {
		return deform.Report{}, err
	}
	return c.apply(ctx, alg)
}

func (c *Coupling) apply(ctx context.Context, alg deform.Algorithm) (deform.Report, error) {
	return alg.Apply(ctx, c.geo)
}

func (c *Coupling) checkRows(op string, rows [][]float64, n int) error {
	if len(rows) != n {
		return c.misuse(op, "%d values for %d vertices", len(rows), n)
	}
	for i, r := range rows {
		if len(r) != c.geo.Dim {
			return c.misuse(op, "row %d has %d components, want %d", i, len(r), c.geo.Dim)
		}
		for _, x := range r {
			if !finite(x) {
				return c.misuse(op, "row %d has non-finite value %g", i, x)
			}
		}
	}
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func copyAll(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for i, r := range src {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// copyRows copies the rows of src selected by idx
func copyRows(src [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, p := range idx {
		out[i] = append([]float64(nil), src[p]...)
	}
	return out
}
