package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBoxConfig(t *testing.T, extra string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "box.yaml")
	body := `
solver: euler
deform_markers: [upper]
mesh:
  box: {dim: 2, cells: [3, 3], length: [1, 1]}
motion:
  kind: translation
  velocity: [0.02, 0]
output:
  dir: ` + dir + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return dir, path
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateReportsDriver(t *testing.T) {
	_, path := writeBoxConfig(t, "")
	out, err := execute("validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "driver: multizone")
	assert.Contains(t, out, "zones: 1")
}

func TestDeformWritesOutputAndMetrics(t *testing.T) {
	dir, path := writeBoxConfig(t, "")
	out, err := execute("deform", "--ranks", "2", "--metrics", "-", path)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "mesh_out.su2"))
	assert.FileExists(t, filepath.Join(dir, "surface_deformed.csv"))
	assert.Contains(t, out, "meshmotion_deform_updates_total")
}

func TestSolveFailsOnInconsistentConfig(t *testing.T) {
	dir, path := writeBoxConfig(t, "fsi: true\n")
	_, err := execute("solve", path)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "mesh_out.su2"))
}

func TestMissingConfig(t *testing.T) {
	_, err := execute("deform", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
