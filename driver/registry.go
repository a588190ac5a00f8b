package driver

import (
	"fmt"

	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/deform"
	"github.com/notargets/meshmotion/device"
	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/movement"
	"github.com/notargets/meshmotion/numerics"
	"github.com/notargets/meshmotion/output"
	"github.com/notargets/meshmotion/solver"
	"github.com/notargets/meshmotion/utils"
)

// Stage is the preprocessing progress of a registry
type Stage int

const (
	StageUnpopulated Stage = iota
	StageInput
	StageGeometry
	StageOutput
	StageSolver
	StageNumerics
	StageReady
	StageReleased
)

var stageNames = [...]string{"unpopulated", "input", "geometry", "output", "solver", "numerics", "ready", "released"}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Slot holds one container that may not have been produced yet
type Slot[T any] struct {
	name  string
	zone  int
	value T
	set   bool
}

// Set populates the slot
func (s *Slot[T]) Set(v T) {
	s.value, s.set = v, true
}

// Get returns the container, or ErrNotPopulated when its producing stage has
// not run
func (s *Slot[T]) Get() (T, error) {
	if !s.set {
		var zero T
		return zero, utils.NewError("Get", utils.KindStage, s.zone, fmt.Errorf("%s: %w", s.name, utils.ErrNotPopulated))
	}
	return s.value, nil
}

// Populated reports whether the slot holds a container
func (s *Slot[T]) Populated() bool { return s.set }

// Clear empties the slot and returns what it held
func (s *Slot[T]) Clear() (T, bool) {
	v, ok := s.value, s.set
	var zero T
	s.value, s.set = zero, false
	return v, ok
}

// Zone holds the containers of one zone
type Zone struct {
	Index     int
	Config    Slot[config.Config] // Zone view with overrides applied
	Mesh      Slot[*geometry.MeshData]
	Geometry  Slot[*geometry.Geometry]
	Output    Slot[*output.Writer]
	Solver    Slot[*solver.MeshSolver]
	Numerics  Slot[*numerics.Table]
	Motion    Slot[movement.SurfaceMotion]
	Algorithm Slot[deform.Algorithm] // Configured algorithm
	Legacy    Slot[deform.Algorithm] // Always available to UpdateLegacy
}

func newZone(i int) *Zone {
	z := &Zone{Index: i}
	z.Config.name, z.Config.zone = "config", i
	z.Mesh.name, z.Mesh.zone = "mesh", i
	z.Geometry.name, z.Geometry.zone = "geometry", i
	z.Output.name, z.Output.zone = "output", i
	z.Solver.name, z.Solver.zone = "solver", i
	z.Numerics.name, z.Numerics.zone = "numerics", i
	z.Motion.name, z.Motion.zone = "surface motion", i
	z.Algorithm.name, z.Algorithm.zone = "grid movement", i
	z.Legacy.name, z.Legacy.zone = "legacy grid movement", i
	return z
}

// Registry owns every container of a driver. Stages advance strictly in
// order and the registry is released exactly once.
type Registry struct {
	stage  Stage
	Zones  []*Zone
	kernel Slot[*device.IDWKernel]
}

// NewRegistry returns an unpopulated registry
func NewRegistry() *Registry {
	r := &Registry{}
	r.kernel.name, r.kernel.zone = "device kernel", -1
	return r
}

// Stage returns the last completed stage
func (r *Registry) Stage() Stage { return r.stage }

// Advance records the completion of stage s, which must directly follow the
// current stage
func (r *Registry) Advance(s Stage) error {
	if r.stage == StageReleased || s != r.stage+1 {
		return utils.Errorf("Advance", utils.KindStage, -1, "stage %s after %s", s, r.stage)
	}
	r.stage = s
	return nil
}

// Require fails unless stage s has completed
func (r *Registry) Require(s Stage) error {
	if r.stage == StageReleased {
		return utils.Errorf("Require", utils.KindStage, -1, "registry released")
	}
	if r.stage < s {
		return utils.Errorf("Require", utils.KindStage, -1, "needs stage %s, at %s", s, r.stage)
	}
	return nil
}

// Allocate creates the zone entries once the zone count is known
func (r *Registry) Allocate(nZone int) {
	r.Zones = make([]*Zone, nZone)
	for i := range r.Zones {
		r.Zones[i] = newZone(i)
	}
}

// Zone returns zone i
func (r *Registry) Zone(i int) (*Zone, error) {
	if i < 0 || i >= len(r.Zones) {
		return nil, utils.Errorf("Zone", utils.KindCoupling, i, "zone out of range [0, %d)", len(r.Zones))
	}
	return r.Zones[i], nil
}

// Release drops every container, populated or not. Only the first call has
// an effect.
func (r *Registry) Release() bool {
	if r.stage == StageReleased {
		return false
	}
	for _, z := range r.Zones {
		z.Legacy.Clear()
		z.Algorithm.Clear()
		z.Motion.Clear()
		z.Numerics.Clear()
		z.Solver.Clear()
		z.Output.Clear()
		z.Geometry.Clear()
		z.Mesh.Clear()
		z.Config.Clear()
	}
	if k, ok := r.kernel.Clear(); ok {
		k.Free()
		k.Device.Free()
	}
	r.stage = StageReleased
	return true
}
