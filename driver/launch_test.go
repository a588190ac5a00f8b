package driver

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshmotion/comm"
	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/utils"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func readZone(t *testing.T, path string) *geometry.MeshData {
	t.Helper()
	zones, err := geometry.ReadSU2File(path)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	return zones[0]
}

func TestLaunchDeform(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
solver: euler
deform_markers: [upper]
mesh:
  box: {dim: 2, cells: [4, 2], length: [1, 1]}
motion:
  kind: translation
  velocity: [0, -0.05]
output:
  dir: `+dir+`
partition:
  ranks: 2
`)
	require.NoError(t, Launch(context.Background(), path, 0, ModeDeform))

	md := readZone(t, filepath.Join(dir, "mesh_out.su2"))
	require.Len(t, md.Coords, 15)
	for i := 10; i < 15; i++ {
		assert.InDelta(t, 0.95, md.Coords[i][1], 1e-12, "point %d", i)
	}
	for i := 0; i < 5; i++ {
		assert.InDelta(t, 0, md.Coords[i][1], 1e-12, "point %d", i)
	}
	assert.FileExists(t, filepath.Join(dir, "surface_deformed.csv"))
}

func TestLaunchHarmonicBalance(t *testing.T) {
	dir := t.TempDir()
	cfg := boxConfig(1)
	cfg.Unsteady = config.HarmonicBalance
	cfg.TimeInstances = 3
	cfg.Motion = config.MotionConfig{Kind: "plunging", Amplitude: []float64{0, 0.05}, Omega: 2 * math.Pi, TimeStep: 1, Steps: 1}
	cfg.Output.Disabled = false
	cfg.Output.Dir = dir
	meshes, err := ReadMeshes(cfg)
	require.NoError(t, err)

	require.NoError(t, LaunchConfig(context.Background(), cfg, meshes, 2, ModeSolve))
	for n := 0; n < 3; n++ {
		md := readZone(t, filepath.Join(dir, fmt.Sprintf("mesh_out_%05d.su2", n)))
		want := 1 + 0.05*math.Sin(2*math.Pi*float64(n)/3)
		assert.InDelta(t, want, md.Coords[12][1], 1e-12, "instance %d", n)
	}
	assert.NoFileExists(t, filepath.Join(dir, "mesh_out.su2"))
}

func TestLaunchRejectsStructuralMultiZone(t *testing.T) {
	dir := t.TempDir()
	cfg := boxConfig(2)
	cfg.Solver = config.Elasticity
	cfg.Output.Disabled = false
	cfg.Output.Dir = dir
	meshes, err := ReadMeshes(cfg)
	require.NoError(t, err)

	err = LaunchConfig(context.Background(), cfg, meshes, 2, ModeSolve)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindConfig), "%v", err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFluidStructureTransfer(t *testing.T) {
	cfg := boxConfig(2)
	cfg.FSI = true
	cfg.DeformMarkers = []string{"left", "right"}
	cfg.Coupling = config.CouplingConfig{FluidMarker: "right", StructureMarker: "left", Iterations: 2, Relaxation: 0.5}
	cfg.Motion = config.MotionConfig{Kind: "translation", Velocity: []float64{0, 0.05}, TimeStep: 1, Steps: 1}
	sel, err := Select(PredicatesFor(cfg, 2))
	require.NoError(t, err)
	require.Equal(t, FluidStructure, sel.Variant)
	meshes, err := ReadMeshes(cfg)
	require.NoError(t, err)

	err = comm.Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
		s, err := NewSolver(ctx, sel, cfg, c, WithMeshes(meshes))
		if err != nil {
			return err
		}
		defer s.Postprocessing(ctx)
		if err := s.StartSolver(ctx); err != nil {
			return err
		}
		f, ok := s.(*fluidStructure)
		if !assert.True(t, ok) {
			return nil
		}

		structure, _ := f.structure.GetDisplacementsMarker(f.structureMarker)
		for _, d := range structure {
			assert.InDelta(t, 0.05, d[1], 1e-15)
		}
		// Two relaxed iterations: 0.5, then 0.75 of the structural value
		fluid, _ := f.fluid.GetDisplacementsMarker(f.fluidMarker)
		coords, _ := f.fluid.GetCoordinatesMarker(f.fluidMarker)
		for v, d := range fluid {
			assert.InDelta(t, 0.0375, d[1], 1e-15)
			x0, _ := f.fluid.GetInitialMeshCoord(f.fluidMarker, v)
			assert.InDelta(t, x0[1]+0.0375, coords[v][1], 1e-12)
			assert.InDelta(t, 1, x0[0], 1e-15)
		}
		return nil
	})
	require.NoError(t, err)
}
