package element

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unitElements = map[GeometryType][][]float64{
	Tri:  {{0, 0}, {1, 0}, {0, 1}},
	Quad: {{0, 0}, {1, 0}, {1, 1}, {0, 1}},
	Tet:  {{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	Hex: {
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	},
	Prism:   {{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 0, 1}, {0, 1, 1}},
	Pyramid: {{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {0.5, 0.5, 1}},
}

func TestVolumeOfUnitElements(t *testing.T) {
	expected := map[GeometryType]float64{
		Tri:     0.5,
		Quad:    1,
		Tet:     1. / 6,
		Hex:     1,
		Prism:   0.5,
		Pyramid: 1. / 3,
	}
	for g, pts := range unitElements {
		vol := Volume(g, pts)
		if math.Abs(vol-expected[g]) > 1e-12 {
			t.Errorf("%s: volume %g, want %g", g, vol, expected[g])
		}
		sign, err := Orientation(g, pts)
		require.NoError(t, err, g.String())
		assert.Equal(t, 1.0, sign, g.String())
		assert.InDelta(t, 1.0, Quality(g, pts, sign), 1e-12, g.String())
	}
}

func TestOrientationIsRelative(t *testing.T) {
	// Reversing a tet's base flips the sign but the element stays valid
	pts := unitElements[Tet]
	flipped := [][]float64{pts[0], pts[2], pts[1], pts[3]}
	sign, err := Orientation(Tet, flipped)
	require.NoError(t, err)
	assert.Equal(t, -1.0, sign)
	assert.Greater(t, Quality(Tet, flipped, sign), 0.0)
}

func TestInvertedHexIsDetected(t *testing.T) {
	pts := make([][]float64, 8)
	for i, p := range unitElements[Hex] {
		pts[i] = append([]float64(nil), p...)
	}
	sign, err := Orientation(Hex, pts)
	require.NoError(t, err)

	// Push the top face through the bottom one
	for i := 4; i < 8; i++ {
		pts[i][2] = -0.5
	}
	assert.Less(t, Quality(Hex, pts, sign), 0.0)
	_, err = Orientation(Hex, [][]float64{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}, // bow-tie base
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	})
	assert.Error(t, err)
}

func TestFromVTKRoundTrip(t *testing.T) {
	for g := Line; g <= Pyramid; g++ {
		got, err := FromVTK(g.VTKID())
		require.NoError(t, err)
		assert.Equal(t, g, got)
	}
	_, err := FromVTK(7)
	assert.Error(t, err)
}

func TestFromNodeCount(t *testing.T) {
	tests := []struct {
		dim  Dimensionality
		n    int
		want GeometryType
	}{
		{D2, 3, Tri}, {D2, 4, Quad}, {D3, 4, Tet}, {D3, 5, Pyramid}, {D3, 6, Prism}, {D3, 8, Hex},
	}
	for _, tt := range tests {
		g, err := FromNodeCount(tt.dim, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, g)
	}
	_, err := FromNodeCount(D2, 8)
	assert.Error(t, err)
}

func TestFaceNormals(t *testing.T) {
	n := FaceNormal([][]float64{{0, 0}, {2, 0}})
	assert.InDeltaSlice(t, []float64{0, -2}, n, 1e-12)

	n = FaceNormal([][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	assert.InDeltaSlice(t, []float64{0, 0, 0.5}, n, 1e-12)

	n = FaceNormal([][]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}})
	assert.InDeltaSlice(t, []float64{0, 0, 1}, n, 1e-12)
}

func TestFaceTables(t *testing.T) {
	for g := Tri; g <= Pyramid; g++ {
		p := g.Properties()
		assert.Equal(t, len(g.Faces()), p.NFaces, g.String())
		for f, face := range g.Faces() {
			ft := g.FaceType(f)
			assert.Equal(t, len(face), ft.NVp(), g.String())
			assert.True(t, ft.IsBoundaryOf(p.Dimensions), g.String())
			for _, v := range face {
				assert.Less(t, v, p.NVp)
			}
		}
	}
}

func TestQualityOfNonFiniteElement(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		pts := [][]float64{{0, 0}, {1, 0}, {1, bad}, {0, 1}}
		q := Quality(Quad, pts, 1)
		assert.Equal(t, -1.0, q, "corner %g", bad)
		assert.LessOrEqual(t, Quality(Quad, pts, -1), 0.0)
	}
}
