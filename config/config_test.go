package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshmotion/utils"
)

const boxConfig = `
solver: euler
unsteady: harmonic_balance
time_instances: 3
hb_period: 2.0
mesh:
  box:
    dim: 2
    cells: [4, 2]
    length: [2.0, 1.0]
    zones: 2
deform_markers: [upper]
deform:
  algorithm: legacy
  idw_power: 2
motion:
  kind: plunging
  amplitude: [0.0, 0.05]
  omega: 6.28
zones:
  - time_instances: 3
  - deform_markers: [lower]
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(boxConfig))
	require.NoError(t, err)

	assert.Equal(t, Euler, cfg.Solver)
	assert.Equal(t, HarmonicBalance, cfg.Unsteady)
	assert.Equal(t, "legacy", cfg.Deform.Algorithm)
	assert.Equal(t, 2.0, cfg.Deform.IDWPower)
	assert.Equal(t, "inverse_volume", cfg.Deform.Stiffness)
	assert.Equal(t, 0.3, cfg.Deform.PoissonRatio)
	assert.Equal(t, 1, cfg.Partition.Ranks)
	assert.Equal(t, "surface_deformed.csv", cfg.Output.SurfaceFile)
	assert.Equal(t, 2, cfg.Mesh.Box.Zones)
	assert.True(t, cfg.IsDeformable("upper"))
	assert.False(t, cfg.IsDeformable("lower"))
	assert.Equal(t, []string{"upper"}, cfg.MovingMarkers())
}

func TestZoneOverrides(t *testing.T) {
	cfg, err := Parse([]byte(boxConfig))
	require.NoError(t, err)

	z1 := cfg.Zone(1)
	assert.Equal(t, []string{"lower"}, z1.DeformMarkers)
	assert.Equal(t, 3, z1.TimeInstances)
	assert.Equal(t, []string{"upper"}, cfg.DeformMarkers, "overrides must not leak into the snapshot")

	z5 := cfg.Zone(5)
	assert.Equal(t, cfg.DeformMarkers, z5.DeformMarkers)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown solver":   "solver: lbm\nmesh: {file: a.su2}\n",
		"no mesh":          "solver: euler\n",
		"bad poisson":      "solver: euler\nmesh: {file: a.su2}\ndeform: {poisson_ratio: 0.5}\n",
		"bad algorithm":    "solver: euler\nmesh: {file: a.su2}\ndeform: {algorithm: spring}\n",
		"box size":         "solver: euler\nmesh: {box: {dim: 3, cells: [1, 1], length: [1, 1]}}\n",
		"bad plane axis":   "solver: euler\nmesh: {file: a.neu, planes: [{marker: wall, axis: w}]}\n",
		"malformed yaml":   "solver: [euler\n",
		"zero ranks":       "solver: euler\nmesh: {file: a.su2}\npartition: {ranks: 0}\n",
		"unknown strategy": "solver: euler\nmesh: {file: a.su2}\npartition: {strategy: hilbert}\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(boxConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TimeInstances)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindConfig))

	require.NoError(t, os.WriteFile(path, []byte("solver: lbm\nmesh: {file: a.su2}\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConfigInconsistency))
}

func TestSolverKinds(t *testing.T) {
	for _, s := range []SolverKind{Elasticity, Poisson, Wave, Heat} {
		assert.True(t, s.SingleZoneOnly(), string(s))
	}
	for _, s := range []SolverKind{Euler, NavierStokes, RANS} {
		assert.False(t, s.SingleZoneOnly(), string(s))
	}
}

func TestPlaneAxis(t *testing.T) {
	assert.Equal(t, 0, PlaneConfig{Axis: "x"}.AxisIndex())
	assert.Equal(t, 1, PlaneConfig{Axis: "y"}.AxisIndex())
	assert.Equal(t, 2, PlaneConfig{Axis: "z"}.AxisIndex())
}
