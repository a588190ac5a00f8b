package geometry

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshmotion/comm"
	"github.com/notargets/meshmotion/element"
	"github.com/notargets/meshmotion/partitions"
	"github.com/notargets/meshmotion/utils"
)

const twoTriangles = `% two triangles on the unit square
NDIME= 2
NELEM= 2
5 0 1 2 0
5 0 2 3 1
NPOIN= 4
0.0 0.0 0
1.0 0.0 1
1.0 1.0 2
0.0 1.0 3
NMARK= 2
MARKER_TAG= wall
MARKER_ELEMS= 2
3 0 1
3 1 2
MARKER_TAG= farfield
MARKER_ELEMS= 2
3 2 3
3 3 0
`

func TestReadSU2(t *testing.T) {
	zones, err := ReadSU2(strings.NewReader(twoTriangles))
	require.NoError(t, err)
	require.Len(t, zones, 1)

	md := zones[0]
	assert.Equal(t, 2, md.Dim)
	assert.Equal(t, 4, md.NumPoints())
	assert.Len(t, md.Elements, 2)
	assert.Equal(t, element.Tri, md.Elements[0].Type)
	assert.Equal(t, 1, md.MarkerIndex("farfield"))
	assert.Equal(t, -1, md.MarkerIndex("inlet"))
	assert.NoError(t, md.Validate())
}

func TestReadSU2MultiZoneRoundTrip(t *testing.T) {
	a, err := NewBox(BoxSpec{Dim: 2, N: []int{2, 1}, Length: []float64{2, 1}})
	require.NoError(t, err)
	b, err := NewBox(BoxSpec{Dim: 2, N: []int{1, 1}, Length: []float64{1, 1}, Origin: []float64{2, 0}})
	require.NoError(t, err)
	b.Zone = 1

	var sb strings.Builder
	require.NoError(t, WriteSU2(&sb, a, b))

	zones, err := ReadSU2(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Len(t, zones, 2)
	for i, z := range zones {
		assert.Equal(t, i, z.Zone)
		assert.Equal(t, 2, z.NZone)
	}
	assert.Equal(t, a.Coords, zones[0].Coords)
	assert.Equal(t, b.Elements, zones[1].Elements)
	assert.Len(t, zones[1].Markers, 4)
}

func TestReadSU2Errors(t *testing.T) {
	cases := map[string]string{
		"missing points":   "NDIME= 2\nNELEM= 1\n5 0 1 2\nNPOIN= 3\n0 0\n",
		"bad element type": "NDIME= 2\nNELEM= 1\n99 0 1 2\n",
		"zone count":       "NZONE= 2\nIZONE= 1\nNDIME= 2\nNELEM= 0\n",
		"garbage":          "hello\n",
		"empty":            "",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSU2(strings.NewReader(content))
			assert.Error(t, err)
		})
	}
}

func TestValidateRejectsMalformedConnectivity(t *testing.T) {
	md, err := NewBox(BoxSpec{Dim: 2, N: []int{1, 1}, Length: []float64{1, 1}})
	require.NoError(t, err)
	require.NoError(t, md.Validate())

	bad := *md
	bad.Elements = []Element{{Type: element.Quad, Nodes: []int{0, 1, 3, 9}}}
	assert.Error(t, bad.Validate())

	// Bow-tie quadrilateral: the valid ordering is 0 1 3 2
	bad.Elements = []Element{{Type: element.Quad, Nodes: []int{0, 1, 2, 3}}}
	assert.Error(t, bad.Validate())

	// Boundary element that bounds nothing
	bad = *md
	bad.Markers = []MarkerData{{Tag: "diag", Elements: []Element{{Type: element.Line, Nodes: []int{0, 3}}}}}
	assert.Error(t, bad.Validate())
}

func TestNewBox(t *testing.T) {
	hex, err := NewBox(BoxSpec{Dim: 3, N: []int{2, 2, 2}, Length: []float64{1, 1, 1}})
	require.NoError(t, err)
	assert.Equal(t, 27, hex.NumPoints())
	assert.Len(t, hex.Elements, 8)
	require.Len(t, hex.Markers, 6)
	for i, m := range hex.Markers {
		assert.Equal(t, BoxMarkers[i/2][i%2], m.Tag)
		assert.Len(t, m.Elements, 4)
	}
	require.NoError(t, hex.Validate())

	tets, err := NewBox(BoxSpec{Dim: 3, N: []int{2, 2, 2}, Length: []float64{1, 1, 1}, Tets: true})
	require.NoError(t, err)
	assert.Len(t, tets.Elements, 48)
	for _, m := range tets.Markers {
		assert.Len(t, m.Elements, 8)
	}
	require.NoError(t, tets.Validate())

	var vol float64
	for _, e := range tets.Elements {
		v := element.Volume(e.Type, tets.points(e.Nodes))
		assert.Greater(t, v, 0.0)
		vol += v
	}
	assert.InDelta(t, 1.0, vol, 1e-12)

	_, err = NewBox(BoxSpec{Dim: 4})
	assert.Error(t, err)
}

// buildRanks builds the geometry of md on every rank of a world of size n and
// hands each rank's geometry to fn
func buildRanks(t *testing.T, md *MeshData, n int, fn func(ctx context.Context, g *Geometry) error) {
	t.Helper()
	err := comm.Run(context.Background(), n, func(ctx context.Context, c *comm.Comm) error {
		layout, err := Decompose(ctx, c, md, partitions.BlockPartition)
		if err != nil {
			return err
		}
		g, err := Build(md, layout, c)
		if err != nil {
			return err
		}
		return fn(ctx, g)
	})
	require.NoError(t, err)
}

func TestBuildOwnershipAndOrdering(t *testing.T) {
	// Two quads side by side: points 1 and 4 are shared
	md, err := NewBox(BoxSpec{Dim: 2, N: []int{2, 1}, Length: []float64{2, 1}})
	require.NoError(t, err)

	buildRanks(t, md, 2, func(ctx context.Context, g *Geometry) error {
		switch g.Comm.Rank() {
		case 0:
			assert.Equal(t, []int{0, 1, 3, 4}, g.GlobalID)
			assert.Equal(t, 4, g.NPointDomain)
		case 1:
			assert.Equal(t, []int{2, 5, 1, 4}, g.GlobalID)
			assert.Equal(t, 2, g.NPointDomain)
			assert.False(t, g.Owned(2))
			assert.Equal(t, 3, g.LocalIndex(4))
			assert.Equal(t, -1, g.LocalIndex(0))
		}
		assert.Len(t, g.Elements, 1)
		assert.Len(t, g.Markers, 4)
		assert.Len(t, g.Edges, 4)
		assert.InDelta(t, 1.0, g.MinEdgeLength(), 1e-12)
		return g.Halo.Verify()
	})
}

func TestCommunicateHaloAndAccumulate(t *testing.T) {
	md, err := NewBox(BoxSpec{Dim: 2, N: []int{2, 1}, Length: []float64{2, 1}})
	require.NoError(t, err)

	buildRanks(t, md, 2, func(ctx context.Context, g *Geometry) error {
		field := make([]float64, g.NPoint())
		for i, gid := range g.GlobalID {
			field[i] = -1
			if g.Owned(i) {
				field[i] = float64(gid * 10)
			}
		}
		if err := g.CommunicateHalo(ctx, field, 1); err != nil {
			return err
		}
		for i, gid := range g.GlobalID {
			assert.Equal(t, float64(gid*10), field[i], "rank %d point %d", g.Comm.Rank(), gid)
		}

		ones := make([]float64, g.NPoint())
		for i := range ones {
			ones[i] = 1
		}
		if err := g.Accumulate(ctx, ones, 1); err != nil {
			return err
		}
		for i, gid := range g.GlobalID {
			want := 1.0
			if gid == 1 || gid == 4 {
				want = 2
			}
			assert.Equal(t, want, ones[i], "rank %d point %d", g.Comm.Rank(), gid)
		}
		return nil
	})
}

func TestComputeNormalsPointOutward(t *testing.T) {
	md, err := NewBox(BoxSpec{Dim: 3, N: []int{2, 2, 2}, Length: []float64{2, 2, 2}})
	require.NoError(t, err)

	buildRanks(t, md, 2, func(ctx context.Context, g *Geometry) error {
		if err := g.ComputeNormals(ctx); err != nil {
			return err
		}
		left := g.MarkerByTag("left")
		front := g.MarkerByTag("front")
		for v, p := range left.Vertices {
			assert.Less(t, left.Normals[v][0], 0.0)
			assert.InDelta(t, 0, left.Normals[v][1], 1e-12)
			if g.GlobalID[p] == 12 {
				// Centre of the face carries a quarter of each of its four faces
				assert.InDelta(t, -1.0, left.Normals[v][0], 1e-12)
			}
		}
		for v := range front.Vertices {
			assert.Greater(t, front.Normals[v][2], 0.0)
		}
		return nil
	})
}

func TestCheckQuality(t *testing.T) {
	md, err := NewBox(BoxSpec{Dim: 2, N: []int{2, 2}, Length: []float64{1, 1}})
	require.NoError(t, err)

	buildRanks(t, md, 2, func(ctx context.Context, g *Geometry) error {
		rep, err := g.CheckQuality(ctx)
		if err != nil {
			return err
		}
		assert.True(t, rep.Valid())
		assert.InDelta(t, 1.0, rep.MinQuality, 1e-12)
		assert.InDelta(t, 0.25, rep.MinVolume, 1e-12)

		// Pull the centre point through the opposite corner on its owner
		if i := g.LocalIndex(4); i >= 0 {
			g.Coords[i] = []float64{-0.6, -0.6}
		}
		rep, err = g.CheckQuality(ctx)
		if err != nil {
			return err
		}
		assert.False(t, rep.Valid())
		assert.Greater(t, rep.Inverted, 0)
		assert.GreaterOrEqual(t, rep.WorstID, 0)
		return nil
	})
}

func TestCheckQualityRejectsNonFiniteCoordinates(t *testing.T) {
	md, err := NewBox(BoxSpec{Dim: 2, N: []int{2, 2}, Length: []float64{1, 1}})
	require.NoError(t, err)

	buildRanks(t, md, 2, func(ctx context.Context, g *Geometry) error {
		if i := g.LocalIndex(4); i >= 0 {
			g.Coords[i] = []float64{math.NaN(), 0.5}
		}
		rep, err := g.CheckQuality(ctx)
		if err != nil {
			return err
		}
		assert.False(t, rep.Valid())
		assert.Greater(t, rep.Inverted, 0)
		assert.Equal(t, -1.0, rep.MinQuality)
		assert.False(t, math.IsNaN(rep.MinVolume))
		return nil
	})
}

func TestBuildRejectsLayoutMismatch(t *testing.T) {
	md, err := NewBox(BoxSpec{Dim: 2, N: []int{2, 1}, Length: []float64{2, 1}})
	require.NoError(t, err)
	layout, err := partitions.NewLayout([]int{0, 0}, 1, nil)
	require.NoError(t, err)

	_, err = Build(md, layout, comm.NewWorld(2).Comm(0))
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindMesh))
}

// Two tetrahedra sharing the face 2-3-4
const gambitTwoTets = `        CONTROL INFO 2.0.0
** GAMBIT NEUTRAL FILE
two tets
PROGRAM:                  Test     VERSION:  1.0
Mon Jan  1 00:00:00 2025
     NUMNP     NELEM     NGRPS    NBSETS     NDFCD     NDFVL
         5         2         1         1         3         3
ENDOFSECTION
   NODAL COORDINATES 2.0.0
         1   0.00000000000e+00   0.00000000000e+00   0.00000000000e+00
         2   1.00000000000e+00   0.00000000000e+00   0.00000000000e+00
         3   0.00000000000e+00   1.00000000000e+00   0.00000000000e+00
         4   0.00000000000e+00   0.00000000000e+00   1.00000000000e+00
         5   1.00000000000e+00   1.00000000000e+00   1.00000000000e+00
ENDOFSECTION
   ELEMENTS/CELLS 2.0.0
         1         6         4         1         2         3         4
         2         6         4         2         3         4         5
ENDOFSECTION
       BOUNDARY CONDITIONS 2.0.0
wall            1         1         0         0         0         0         0         0
         1         6         1
ENDOFSECTION`

func TestReadFileGambit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two_tets.neu")
	require.NoError(t, os.WriteFile(path, []byte(gambitTwoTets), 0o644))

	zones, err := ReadFile(path, ReadOptions{
		Planes: []PlaneSelector{{Tag: "bottom", Axis: 2, Value: 0}},
	})
	require.NoError(t, err)
	require.Len(t, zones, 1)

	md := zones[0]
	assert.Equal(t, 3, md.Dim)
	assert.Equal(t, 5, md.NumPoints())
	assert.Len(t, md.Elements, 2)
	assert.NotNil(t, md.Source)

	// Six exterior triangles: one on z=0, the rest on the catch-all marker
	require.Len(t, md.Markers, 2)
	assert.Equal(t, "bottom", md.Markers[0].Tag)
	assert.Len(t, md.Markers[0].Elements, 1)
	assert.Equal(t, DefaultExteriorTag, md.Markers[1].Tag)
	assert.Len(t, md.Markers[1].Elements, 5)

	for _, e := range md.Elements {
		assert.False(t, math.IsNaN(element.Volume(e.Type, md.points(e.Nodes))))
	}
}

func TestReadFileUnsupported(t *testing.T) {
	_, err := ReadFile("mesh.cgns", ReadOptions{})
	assert.Error(t, err)
}
