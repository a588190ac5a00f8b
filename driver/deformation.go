// Package driver sequences the preprocessing of a mesh-deformation run,
// exposes the boundary coupling interface and selects the top-level driver
// variant for a configuration.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/notargets/meshmotion/comm"
	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/deform"
	"github.com/notargets/meshmotion/device"
	"github.com/notargets/meshmotion/geometry"
	"github.com/notargets/meshmotion/movement"
	"github.com/notargets/meshmotion/numerics"
	"github.com/notargets/meshmotion/output"
	"github.com/notargets/meshmotion/partitions"
	"github.com/notargets/meshmotion/solver"
	"github.com/notargets/meshmotion/utils"
)

// Deformation is the mesh-deformation driver of one rank. It owns the
// container registry of every zone.
type Deformation struct {
	Config *config.Config
	Comm   *comm.Comm
	Time   float64 // Time the surface motion is evaluated at by Run

	reg    *Registry
	nDim   int
	meshes []*geometry.MeshData

	startTime      time.Time
	preprocessTime time.Duration
	computeTime    time.Duration
}

// Option adjusts a Deformation before preprocessing
type Option func(*Deformation)

// WithMeshes supplies the zone meshes instead of reading them from the
// configured mesh input
func WithMeshes(meshes []*geometry.MeshData) Option {
	return func(d *Deformation) { d.meshes = meshes }
}

// NewDeformation runs the preprocessing pipeline. On failure the partially
// populated registry is released and the error returned. Collective.
func NewDeformation(ctx context.Context, cfg *config.Config, c *comm.Comm, opts ...Option) (*Deformation, error) {
	d := &Deformation{
		Config:    cfg,
		Comm:      c,
		Time:      cfg.Motion.TimeStep,
		reg:       NewRegistry(),
		startTime: time.Now(),
	}
	for _, o := range opts {
		o(d)
	}

	stages := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StageInput, d.inputPreprocessing},
		{StageGeometry, d.geometricalPreprocessing},
		{StageOutput, d.outputPreprocessing},
		{StageSolver, d.solverPreprocessing},
		{StageNumerics, d.numericsPreprocessing},
	}
	log := utils.Logger(ctx)
	for _, s := range stages {
		if err := s.run(ctx); err != nil {
			d.reg.Release()
			return nil, err
		}
		if err := d.reg.Advance(s.stage); err != nil {
			d.reg.Release()
			return nil, err
		}
		log.Debug("preprocessing stage complete", "stage", s.stage.String())
	}
	if err := d.reg.Advance(StageReady); err != nil {
		d.reg.Release()
		return nil, err
	}
	d.preprocessTime = time.Since(d.startTime)
	log.Info("preprocessing complete", "zones", len(d.reg.Zones), "dim", d.nDim,
		"duration", d.preprocessTime)
	return d, nil
}

// NZone returns the number of zones
func (d *Deformation) NZone() int { return len(d.reg.Zones) }

// NDim returns the mesh dimension
func (d *Deformation) NDim() int { return d.nDim }

// Registry exposes the containers
func (d *Deformation) Registry() *Registry { return d.reg }

func (d *Deformation) inputPreprocessing(ctx context.Context) error {
	if d.meshes == nil {
		meshes, err := ReadMeshes(d.Config)
		if err != nil {
			return err
		}
		d.meshes = meshes
	}
	nZone := len(d.meshes)
	if nZone == 0 {
		return utils.Errorf("InputPreprocessing", utils.KindMesh, -1, "mesh has no zones")
	}
	if d.Config.Solver.SingleZoneOnly() && nZone > 1 {
		return utils.Errorf("InputPreprocessing", utils.KindConfig, -1,
			"solver %s supports a single zone, mesh has %d", d.Config.Solver, nZone)
	}
	if len(d.Config.Zones) > nZone {
		return utils.Errorf("InputPreprocessing", utils.KindConfig, -1,
			"%d zone overrides for %d zones", len(d.Config.Zones), nZone)
	}

	d.nDim = d.meshes[0].Dim
	d.reg.Allocate(nZone)
	for i, md := range d.meshes {
		if err := md.Validate(); err != nil {
			return utils.NewError("InputPreprocessing", utils.KindMesh, i, fmt.Errorf("%w: %v", utils.ErrMeshTopology, err))
		}
		if md.Dim != d.nDim {
			return utils.Errorf("InputPreprocessing", utils.KindMesh, i,
				"dimension %d differs from zone 0 (%d)", md.Dim, d.nDim)
		}
		if md.Zone != i {
			return utils.Errorf("InputPreprocessing", utils.KindMesh, i, "mesh of zone %d given at position %d", md.Zone, i)
		}
		zcfg := d.Config.Zone(i)
		for _, tag := range append(append([]string(nil), zcfg.DeformMarkers...), zcfg.MovingMarkers()...) {
			if md.MarkerIndex(tag) < 0 {
				return utils.Errorf("InputPreprocessing", utils.KindConfig, i, "no marker %q in the mesh", tag)
			}
		}
		// Surface motion is applied through the deformable markers only
		if zcfg.Motion.Kind != "none" {
			for _, tag := range zcfg.MovingMarkers() {
				if !zcfg.IsDeformable(tag) {
					return utils.Errorf("InputPreprocessing", utils.KindConfig, i,
						"moving marker %q is not a deform marker", tag)
				}
			}
		}
		z := d.reg.Zones[i]
		z.Config.Set(zcfg)
		z.Mesh.Set(md)
	}
	return nil
}

// ReadMeshes returns the zone meshes named by the configuration, read from
// file or generated
func ReadMeshes(cfg *config.Config) ([]*geometry.MeshData, error) {
	if b := cfg.Mesh.Box; b != nil {
		var meshes []*geometry.MeshData
		for i := 0; i < b.Zones; i++ {
			origin := make([]float64, b.Dim)
			origin[0] = float64(i) * b.Length[0]
			md, err := geometry.NewBox(geometry.BoxSpec{
				Dim: b.Dim, N: b.Cells, Length: b.Length, Origin: origin, Tets: b.Tets,
			})
			if err != nil {
				return nil, utils.NewError("ReadMeshes", utils.KindConfig, i, err)
			}
			md.Zone, md.NZone = i, b.Zones
			meshes = append(meshes, md)
		}
		return meshes, nil
	}

	opts := geometry.ReadOptions{ExteriorTag: cfg.Mesh.ExteriorMarker}
	for _, p := range cfg.Mesh.Planes {
		opts.Planes = append(opts.Planes, geometry.PlaneSelector{
			Tag: p.Marker, Axis: p.AxisIndex(), Value: p.Value, Tolerance: p.Tolerance,
		})
	}
	meshes, err := geometry.ReadFile(cfg.Mesh.File, opts)
	if err != nil {
		if utils.IsKind(err, utils.KindMesh) {
			return nil, err
		}
		return nil, utils.NewError("ReadMeshes", utils.KindMesh, -1, fmt.Errorf("%w: %v", utils.ErrMeshTopology, err))
	}
	return meshes, nil
}

func (d *Deformation) geometricalPreprocessing(ctx context.Context) error {
	strategy, err := partitions.ParseStrategy(d.Config.Partition.Strategy)
	if err != nil {
		return utils.NewError("GeometricalPreprocessing", utils.KindConfig, -1, err)
	}
	for _, z := range d.reg.Zones {
		md, err := z.Mesh.Get()
		if err != nil {
			return err
		}
		layout, err := geometry.Decompose(ctx, d.Comm, md, strategy)
		if err != nil {
			return err
		}
		g, err := geometry.Build(md, layout, d.Comm)
		if err != nil {
			return err
		}
		if err := g.ComputeNormals(ctx); err != nil {
			return err
		}
		z.Geometry.Set(g)
		utils.Logger(ctx).Info("zone geometry built", "zone", z.Index, "points", g.NPoint(),
			"owned", g.NPointDomain, "elements", len(g.Elements), "markers", len(g.Markers))
	}
	return nil
}

func (d *Deformation) outputPreprocessing(ctx context.Context) error {
	for _, z := range d.reg.Zones {
		zcfg, err := z.Config.Get()
		if err != nil {
			return err
		}
		z.Output.Set(output.New(zcfg.Output, len(d.reg.Zones)))
	}
	return nil
}

func (d *Deformation) solverPreprocessing(ctx context.Context) error {
	for _, z := range d.reg.Zones {
		zcfg, err := z.Config.Get()
		if err != nil {
			return err
		}
		kind, err := deform.ParseKind(zcfg.Deform.Algorithm)
		if err != nil {
			return utils.NewError("SolverPreprocessing", utils.KindConfig, z.Index, err)
		}
		if kind != deform.SolverBased {
			continue
		}
		g, err := z.Geometry.Get()
		if err != nil {
			return err
		}
		z.Solver.Set(solver.New(g, zcfg.Deform.LinearTolerance, zcfg.Deform.LinearIterations))
	}
	return nil
}

func (d *Deformation) numericsPreprocessing(ctx context.Context) error {
	for _, z := range d.reg.Zones {
		zcfg, err := z.Config.Get()
		if err != nil {
			return err
		}
		g, err := z.Geometry.Get()
		if err != nil {
			return err
		}
		kind, err := deform.ParseKind(zcfg.Deform.Algorithm)
		if err != nil {
			return utils.NewError("NumericsPreprocessing", utils.KindConfig, z.Index, err)
		}

		motion, err := movement.FromConfig(zcfg.Motion, g.Dim)
		if err != nil {
			return utils.NewError("NumericsPreprocessing", utils.KindConfig, z.Index, err)
		}
		z.Motion.Set(motion)

		opts := deform.Options{
			Deformable: zcfg.IsDeformable,
			Increments: zcfg.Deform.Increments,
			Power:      zcfg.Deform.IDWPower,
		}
		if zcfg.Deform.Device != "" {
			k, err := d.idwKernel(ctx, zcfg.Deform.Device)
			if err != nil {
				return utils.NewError("NumericsPreprocessing", utils.KindConfig, z.Index, err)
			}
			opts.Interpolator = k
		}
		legacy, err := deform.New(deform.Legacy, opts, nil, nil)
		if err != nil {
			return err
		}
		z.Legacy.Set(legacy)

		if kind == deform.Legacy {
			z.Algorithm.Set(legacy)
			continue
		}
		stiffness, err := numerics.ParseStiffness(zcfg.Deform.Stiffness)
		if err != nil {
			return utils.NewError("NumericsPreprocessing", utils.KindConfig, z.Index, err)
		}
		table := numerics.NewTable(g, numerics.Elasticity{
			E: zcfg.Deform.YoungModulus, Nu: zcfg.Deform.PoissonRatio, Stiffness: stiffness,
		})
		z.Numerics.Set(table)
		ms, err := z.Solver.Get()
		if err != nil {
			return err
		}
		alg, err := deform.New(deform.SolverBased, opts, table, ms)
		if err != nil {
			return err
		}
		z.Algorithm.Set(alg)
	}
	return nil
}

// idwKernel returns the shared device kernel, creating it on first use.
// "auto" picks the first backend that can be created.
func (d *Deformation) idwKernel(ctx context.Context, props string) (*device.IDWKernel, error) {
	if k, err := d.reg.kernel.Get(); err == nil {
		return k, nil
	}
	if props == "auto" {
		props = ""
	}
	dev, err := device.NewDevice(ctx, props)
	if err != nil {
		return nil, err
	}
	k, err := device.NewIDWKernel(dev)
	if err != nil {
		dev.Free()
		return nil, err
	}
	d.reg.kernel.Set(k)
	return k, nil
}

// Coupling returns the coupling interface of a zone
func (d *Deformation) Coupling(zone int) (*Coupling, error) {
	if err := d.reg.Require(StageGeometry); err != nil {
		return nil, err
	}
	z, err := d.reg.Zone(zone)
	if err != nil {
		return nil, err
	}
	g, err := z.Geometry.Get()
	if err != nil {
		return nil, err
	}
	zcfg, err := z.Config.Get()
	if err != nil {
		return nil, err
	}
	return &Coupling{zone: z, geo: g, cfg: zcfg}, nil
}

// Run applies the configured surface motion at d.Time, synchronises the
// boundary displacements and deforms every zone with its configured
// algorithm. Collective.
func (d *Deformation) Run(ctx context.Context) error {
	if err := d.reg.Require(StageReady); err != nil {
		return err
	}
	start := time.Now()
	defer func() { d.computeTime += time.Since(start) }()

	for i, z := range d.reg.Zones {
		c, err := d.Coupling(i)
		if err != nil {
			return err
		}
		motion, err := z.Motion.Get()
		if err != nil {
			return err
		}
		if c.cfg.Motion.Kind != "none" {
			if err := movement.Apply(c.geo, c.cfg.MovingMarkers(), motion, d.Time); err != nil {
				return utils.NewError("Run", utils.KindConfig, i, err)
			}
		}
		if err := c.CommunicateMeshDisplacement(ctx); err != nil {
			return err
		}
		if _, err := c.updateConfigured(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Output writes every zone as steady output. Collective.
func (d *Deformation) Output(ctx context.Context) error {
	return d.OutputInstance(ctx, -1)
}

// OutputInstance writes every zone with a time-instance suffix. Collective.
func (d *Deformation) OutputInstance(ctx context.Context, instance int) error {
	if err := d.reg.Require(StageReady); err != nil {
		return err
	}
	for _, z := range d.reg.Zones {
		w, err := z.Output.Get()
		if err != nil {
			return err
		}
		g, err := z.Geometry.Get()
		if err != nil {
			return err
		}
		paths, err := w.Write(ctx, g, instance)
		if err != nil {
			return err
		}
		for _, p := range paths {
			utils.Logger(ctx).Info("wrote output", "zone", z.Index, "file", p)
		}
	}
	return nil
}

// Reset returns every zone to its undeformed coordinates and clears the
// boundary fields
func (d *Deformation) Reset(ctx context.Context) error {
	if err := d.reg.Require(StageReady); err != nil {
		return err
	}
	for _, z := range d.reg.Zones {
		g, err := z.Geometry.Get()
		if err != nil {
			return err
		}
		for p := range g.Coords {
			copy(g.Coords[p], g.InitialCoords[p])
			for i := range g.BoundDisp[p] {
				g.BoundDisp[p][i], g.Velocity[p][i] = 0, 0
			}
		}
		if err := g.ComputeNormals(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Postprocessing logs the timers and releases every container. Only the
// first call has an effect.
func (d *Deformation) Postprocessing(ctx context.Context) error {
	if !d.reg.Release() {
		return nil
	}
	utils.Logger(ctx).Info("deformation finished",
		"preprocessing", d.preprocessTime, "compute", d.computeTime,
		"total", time.Since(d.startTime))
	return nil
}
