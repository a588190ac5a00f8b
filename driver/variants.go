package driver

import (
	"context"
	"fmt"
	"math"

	"github.com/notargets/meshmotion/comm"
	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/movement"
	"github.com/notargets/meshmotion/utils"
)

// Solver is a top-level driver variant
type Solver interface {
	Variant() Variant
	StartSolver(ctx context.Context) error
	Postprocessing(ctx context.Context) error
}

// NewSolver preprocesses the zones of a selection and returns its driver.
// Collective.
func NewSolver(ctx context.Context, sel Selection, cfg *config.Config, c *comm.Comm, opts ...Option) (Solver, error) {
	d, err := NewDeformation(ctx, cfg, c, opts...)
	if err != nil {
		return nil, err
	}
	if d.NZone() != sel.NZone {
		d.Postprocessing(ctx)
		return nil, utils.Errorf("NewSolver", utils.KindConfig, -1,
			"%s driver selected for %d zones, mesh has %d", sel.Variant, sel.NZone, d.NZone())
	}
	switch sel.Variant {
	case SingleZone, MultiZone:
		return &marching{variant: sel.Variant, d: d}, nil
	case HarmonicBalance, MultiZoneHarmonicBalance:
		return &harmonicBalance{variant: sel.Variant, d: d, instances: sel.NTimeInstances / sel.NZone}, nil
	case FluidStructure:
		fsi, err := newFluidStructure(d)
		if err != nil {
			d.Postprocessing(ctx)
			return nil, err
		}
		return fsi, nil
	}
	d.Postprocessing(ctx)
	return nil, fmt.Errorf("unknown driver variant %v", sel.Variant)
}

// marching deforms every zone once per time step of the surface motion
type marching struct {
	variant Variant
	d       *Deformation
}

func (m *marching) Variant() Variant { return m.variant }

func (m *marching) StartSolver(ctx context.Context) error {
	mc := m.d.Config.Motion
	for step := 1; step <= mc.Steps; step++ {
		m.d.Time = float64(step) * mc.TimeStep
		if err := m.d.Run(ctx); err != nil {
			return err
		}
		instance := -1
		if mc.Steps > 1 {
			instance = step
		}
		if err := m.d.OutputInstance(ctx, instance); err != nil {
			return err
		}
	}
	return nil
}

func (m *marching) Postprocessing(ctx context.Context) error { return m.d.Postprocessing(ctx) }

// harmonicBalance deforms every zone at each time instance t_n = n T / N of
// the period, starting from the undeformed mesh each time
type harmonicBalance struct {
	variant   Variant
	d         *Deformation
	instances int
}

func (h *harmonicBalance) Variant() Variant { return h.variant }

func (h *harmonicBalance) StartSolver(ctx context.Context) error {
	period := h.d.Config.HBPeriod
	for n := 0; n < h.instances; n++ {
		if err := h.d.Reset(ctx); err != nil {
			return err
		}
		h.d.Time = float64(n) * period / float64(h.instances)
		if err := h.d.Run(ctx); err != nil {
			return err
		}
		if err := h.d.OutputInstance(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (h *harmonicBalance) Postprocessing(ctx context.Context) error { return h.d.Postprocessing(ctx) }

// StructuralSolver produces the interface displacement of the structural zone
type StructuralSolver interface {
	Solve(ctx context.Context, t float64, structure *Coupling, marker int) error
}

// PrescribedMotion is a structural solver whose interface follows a surface
// motion
type PrescribedMotion struct {
	Motion movement.SurfaceMotion
}

func (s PrescribedMotion) Solve(ctx context.Context, t float64, structure *Coupling, marker int) error {
	n, err := structure.GetNumberVerticesMarker(marker)
	if err != nil {
		return err
	}
	disp := make([][]float64, n)
	for v := range disp {
		x0, err := structure.GetInitialMeshCoord(marker, v)
		if err != nil {
			return err
		}
		disp[v] = s.Motion.Displacement(x0, t)
	}
	return structure.SetDisplacementsMarker(marker, disp)
}

// fluidStructure couples zone 0 (fluid) to zone 1 (structure) through a
// shared interface: each iteration the structural solver moves the
// structural interface, the structure mesh follows, and the relaxed interface
// displacement deforms the fluid mesh
type fluidStructure struct {
	d          *Deformation
	Structural StructuralSolver

	fluid, structure             *Coupling
	fluidMarker, structureMarker int
}

func newFluidStructure(d *Deformation) (*fluidStructure, error) {
	f := &fluidStructure{d: d}
	var err error
	if f.fluid, err = d.Coupling(0); err != nil {
		return nil, err
	}
	if f.structure, err = d.Coupling(1); err != nil {
		return nil, err
	}
	cc := d.Config.Coupling
	if f.fluidMarker, err = interfaceMarker(f.fluid, cc.FluidMarker); err != nil {
		return nil, err
	}
	if f.structureMarker, err = interfaceMarker(f.structure, cc.StructureMarker); err != nil {
		return nil, err
	}
	motion, err := d.reg.Zones[1].Motion.Get()
	if err != nil {
		return nil, err
	}
	f.Structural = PrescribedMotion{Motion: motion}
	return f, nil
}

func interfaceMarker(c *Coupling, tag string) (int, error) {
	m, ok := c.GetAllBoundaryMarkers()[tag]
	if !ok || tag == "" {
		return 0, utils.Errorf("FluidStructure", utils.KindConfig, c.geo.Zone, "no interface marker %q", tag)
	}
	if !c.cfg.IsDeformable(tag) {
		return 0, utils.Errorf("FluidStructure", utils.KindConfig, c.geo.Zone, "interface marker %q is not deformable", tag)
	}
	return m, nil
}

func (f *fluidStructure) Variant() Variant { return FluidStructure }

func (f *fluidStructure) StartSolver(ctx context.Context) error {
	cfg := f.d.Config
	log := utils.Logger(ctx)
	for step := 1; step <= cfg.Motion.Steps; step++ {
		t := float64(step) * cfg.Motion.TimeStep
		for it := 0; it < cfg.Coupling.Iterations; it++ {
			if err := f.Structural.Solve(ctx, t, f.structure, f.structureMarker); err != nil {
				return err
			}
			if err := f.structure.CommunicateMeshDisplacement(ctx); err != nil {
				return err
			}
			if _, err := f.structure.updateConfigured(ctx); err != nil {
				return err
			}
			change, err := f.transfer(ctx, cfg.Coupling.Relaxation)
			if err != nil {
				return err
			}
			if err := f.fluid.CommunicateMeshDisplacement(ctx); err != nil {
				return err
			}
			if _, err := f.fluid.updateConfigured(ctx); err != nil {
				return err
			}
			log.Info("fluid-structure iteration", "step", step, "iteration", it, "interface_change", change)
		}
		instance := -1
		if cfg.Motion.Steps > 1 {
			instance = step
		}
		if err := f.d.OutputInstance(ctx, instance); err != nil {
			return err
		}
	}
	return nil
}

// transfer moves the structural interface displacement onto the coincident
// fluid interface vertices with relaxation, returning the largest change of
// the fluid interface displacement over all ranks. Collective.
func (f *fluidStructure) transfer(ctx context.Context, relaxation float64) (float64, error) {
	sg := f.structure.geo
	dim := sg.Dim
	sm := sg.Markers[f.structureMarker]
	var local []float64
	for _, p := range sm.Vertices {
		if sg.Owned(p) {
			local = append(local, sg.InitialCoords[p]...)
			local = append(local, sg.BoundDisp[p]...)
		}
	}
	all, err := sg.Comm.Allgather(ctx, local)
	if err != nil {
		return 0, err
	}
	var xs, ds [][]float64
	for _, buf := range all {
		for i := 0; i+2*dim <= len(buf); i += 2 * dim {
			xs = append(xs, buf[i:i+dim])
			ds = append(ds, buf[i+dim:i+2*dim])
		}
	}

	fg := f.fluid.geo
	old, err := f.fluid.GetDisplacementsMarker(f.fluidMarker)
	if err != nil {
		return 0, err
	}
	tol := 1e-6 * fg.MinEdgeLength()
	var change float64
	next := make([][]float64, len(old))
	for v, p := range fg.Markers[f.fluidMarker].Vertices {
		best, bestDist := -1, math.Inf(1)
		for j, x := range xs {
			var s float64
			for d := 0; d < dim; d++ {
				dx := fg.InitialCoords[p][d] - x[d]
				s += dx * dx
			}
			if s < bestDist {
				best, bestDist = j, s
			}
		}
		if best < 0 || math.Sqrt(bestDist) > tol {
			return 0, utils.Errorf("FluidStructure", utils.KindMesh, fg.Zone,
				"fluid interface point %d has no structural counterpart", fg.GlobalID[p])
		}
		next[v] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			next[v][d] = old[v][d] + relaxation*(ds[best][d]-old[v][d])
			if fg.Owned(p) {
				change = math.Max(change, math.Abs(next[v][d]-old[v][d]))
			}
		}
	}
	if err := f.fluid.SetDisplacementsMarker(f.fluidMarker, next); err != nil {
		return 0, err
	}
	m, err := fg.Comm.AllreduceMax(ctx, []float64{change})
	if err != nil {
		return 0, err
	}
	return m[0], nil
}

func (f *fluidStructure) Postprocessing(ctx context.Context) error { return f.d.Postprocessing(ctx) }
