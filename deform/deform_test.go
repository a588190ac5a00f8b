package deform

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshmotion/comm"
	"github.com/notargets/meshmotion/element"
	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/numerics"
	"github.com/notargets/meshmotion/partitions"
	"github.com/notargets/meshmotion/solver"
	"github.com/notargets/meshmotion/utils"
)

func runCube(t *testing.T, tets bool, ranks int, fn func(ctx context.Context, g *geometry.Geometry) error) error {
	t.Helper()
	md, err := geometry.NewBox(geometry.BoxSpec{Dim: 3, N: []int{2, 2, 2}, Length: []float64{1, 1, 1}, Tets: tets})
	require.NoError(t, err)
	return comm.Run(context.Background(), ranks, func(ctx context.Context, c *comm.Comm) error {
		layout, err := geometry.Decompose(ctx, c, md, partitions.BlockPartition)
		if err != nil {
			return err
		}
		g, err := geometry.Build(md, layout, c)
		if err != nil {
			return err
		}
		return fn(ctx, g)
	})
}

func newAlgorithm(kind Kind, g *geometry.Geometry, increments int) (Algorithm, error) {
	opts := Options{
		Deformable: func(tag string) bool { return tag == "right" },
		Increments: increments,
	}
	table := numerics.NewTable(g, numerics.Elasticity{E: 1, Nu: 0.3})
	return New(kind, opts, table, solver.New(g, 1e-10, 1000))
}

// pushRight displaces the x = 1 face by dx
func pushRight(g *geometry.Geometry, dx float64) {
	for _, p := range g.MarkerByTag("right").Vertices {
		g.BoundDisp[p][0] = dx
	}
}

func TestDeformationKeepsElementsValid(t *testing.T) {
	const dx = -0.1 // A fifth of the element edge
	for _, kind := range []Kind{SolverBased, Legacy} {
		for _, tets := range []bool{false, true} {
			for _, ranks := range []int{1, 2} {
				err := runCube(t, tets, ranks, func(ctx context.Context, g *geometry.Geometry) error {
					pushRight(g, dx)
					a, err := newAlgorithm(kind, g, 2)
					if err != nil {
						return err
					}
					rep, err := a.Apply(ctx, g)
					if err != nil {
						return err
					}
					assert.True(t, rep.Quality.Valid(), "%v tets=%v ranks=%d", kind, tets, ranks)
					assert.InDelta(t, -dx, rep.MaxDisplacement, 1e-12)
					for k, e := range g.Elements {
						q := element.Quality(e.Type, g.ElementPoints(k), e.Sign)
						if q <= 0 {
							t.Errorf("%v tets=%v ranks=%d: element %d quality %g", kind, tets, ranks, e.GlobalID, q)
						}
					}
					for _, p := range g.MarkerByTag("right").Vertices {
						assert.InDelta(t, 1+dx, g.Coords[p][0], 1e-12)
					}
					for _, p := range g.MarkerByTag("left").Vertices {
						assert.InDelta(t, 0, g.Coords[p][0], 1e-12)
					}
					// Centre point follows part of the boundary motion
					if c := g.LocalIndex(13); c >= 0 {
						x := g.Coords[c][0]
						if !(x < 0.5 && x > 0.5+dx) {
							t.Errorf("%v tets=%v ranks=%d: centre x = %g", kind, tets, ranks, x)
						}
					}
					return nil
				})
				require.NoError(t, err)
			}
		}
	}
}

func TestDeformationIsDeterministic(t *testing.T) {
	var first [][]float64
	for run := 0; run < 2; run++ {
		err := runCube(t, true, 1, func(ctx context.Context, g *geometry.Geometry) error {
			pushRight(g, -0.1)
			a, err := newAlgorithm(SolverBased, g, 1)
			if err != nil {
				return err
			}
			if _, err := a.Apply(ctx, g); err != nil {
				return err
			}
			if first == nil {
				first = g.Coords
				return nil
			}
			assert.Equal(t, first, g.Coords)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestClampedMarkersIgnoreDisplacement(t *testing.T) {
	err := runCube(t, false, 1, func(ctx context.Context, g *geometry.Geometry) error {
		for _, p := range g.MarkerByTag("left").Vertices {
			g.BoundDisp[p][0] = 0.2
		}
		a, err := newAlgorithm(Legacy, g, 1)
		if err != nil {
			return err
		}
		rep, err := a.Apply(ctx, g)
		if err != nil {
			return err
		}
		assert.Zero(t, rep.MaxDisplacement)
		for p := range g.Coords {
			assert.Equal(t, g.InitialCoords[p], g.Coords[p])
		}
		return nil
	})
	require.NoError(t, err)
}

func TestInvertedMeshIsFatal(t *testing.T) {
	for _, kind := range []Kind{SolverBased, Legacy} {
		err := runCube(t, true, 2, func(ctx context.Context, g *geometry.Geometry) error {
			pushRight(g, -1.5)
			a, err := newAlgorithm(kind, g, 1)
			if err != nil {
				return err
			}
			_, err = a.Apply(ctx, g)
			return err
		})
		require.Error(t, err, "%v", kind)
		assert.True(t, utils.IsKind(err, utils.KindDegenerate), "%v: %v", kind, err)
	}
}

func TestNonFiniteDisplacementIsFatal(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(-1)} {
		for _, kind := range []Kind{SolverBased, Legacy} {
			err := runCube(t, false, 2, func(ctx context.Context, g *geometry.Geometry) error {
				pushRight(g, bad)
				a, err := newAlgorithm(kind, g, 1)
				if err != nil {
					return err
				}
				_, err = a.Apply(ctx, g)
				for p := range g.Coords {
					assert.Equal(t, g.InitialCoords[p], g.Coords[p], "%v moved point %d", kind, p)
				}
				return err
			})
			require.Error(t, err, "%v %g", kind, bad)
			assert.True(t, utils.IsKind(err, utils.KindDegenerate), "%v: %v", kind, err)
		}
	}
}

func TestHostIDW(t *testing.T) {
	sources := [][]float64{{0, 0}, {1, 0}}
	values := [][]float64{{1, 0}, {3, 0}}
	out, err := HostIDW{}.Interpolate([][]float64{{0.5, 0}, {1, 0}, {0.25, 0}}, sources, values, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2, out[0][0], 1e-12)
	assert.InDelta(t, 3, out[1][0], 1e-12)
	// Weights 16 and 16/9
	assert.InDelta(t, (16*1+16.0/9*3)/(16+16.0/9), out[2][0], 1e-12)

	_, err = HostIDW{}.Interpolate(nil, sources, values[:1], 2)
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("legacy")
	require.NoError(t, err)
	assert.Equal(t, Legacy, k)
	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, SolverBased, k)
	_, err = ParseKind("spring")
	assert.Error(t, err)

	_, err = New(SolverBased, Options{}, nil, nil)
	assert.Error(t, err)
}
