// Package config loads the immutable configuration snapshot of a run
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/notargets/meshmotion/utils"
)

// DefaultFile is used when no configuration file is named
const DefaultFile = "default.yaml"

// SolverKind names the physics solver a run is configured for
type SolverKind string

const (
	Euler        SolverKind = "euler"
	NavierStokes SolverKind = "navier_stokes"
	RANS         SolverKind = "rans"
	Elasticity   SolverKind = "elasticity"
	Poisson      SolverKind = "poisson"
	Wave         SolverKind = "wave"
	Heat         SolverKind = "heat"
)

// SingleZoneOnly reports whether the solver supports only single-zone runs
func (s SolverKind) SingleZoneOnly() bool {
	switch s {
	case Elasticity, Poisson, Wave, Heat:
		return true
	}
	return false
}

// UnsteadyMode names the time treatment of a run
type UnsteadyMode string

const (
	Steady          UnsteadyMode = "steady"
	TimeStepping    UnsteadyMode = "time_stepping"
	HarmonicBalance UnsteadyMode = "harmonic_balance"
)

// Config is the configuration snapshot shared by every zone and rank. It is
// not modified after Load.
type Config struct {
	Solver        SolverKind   `yaml:"solver" validate:"required,oneof=euler navier_stokes rans elasticity poisson wave heat"`
	Unsteady      UnsteadyMode `yaml:"unsteady" validate:"oneof=steady time_stepping harmonic_balance"`
	TimeInstances int          `yaml:"time_instances" validate:"gte=1"`
	HBPeriod      float64      `yaml:"hb_period" validate:"gt=0"`
	FSI           bool         `yaml:"fsi"`

	Mesh          MeshConfig      `yaml:"mesh"`
	Deform        DeformConfig    `yaml:"deform"`
	DeformMarkers []string        `yaml:"deform_markers" validate:"dive,required"`
	Motion        MotionConfig    `yaml:"motion"`
	Coupling      CouplingConfig  `yaml:"coupling"`
	Output        OutputConfig    `yaml:"output"`
	Partition     PartitionConfig `yaml:"partition"`
	Zones         []ZoneConfig    `yaml:"zones" validate:"dive"`
}

// MeshConfig names the mesh input
type MeshConfig struct {
	File           string        `yaml:"file" validate:"required_without=Box"`
	Planes         []PlaneConfig `yaml:"planes" validate:"dive"`
	ExteriorMarker string        `yaml:"exterior_marker"`
	Box            *BoxConfig    `yaml:"box"`
}

// PlaneConfig assigns exterior faces in an axis-aligned plane to a marker
type PlaneConfig struct {
	Marker    string  `yaml:"marker" validate:"required"`
	Axis      string  `yaml:"axis" validate:"oneof=x y z"`
	Value     float64 `yaml:"value"`
	Tolerance float64 `yaml:"tolerance" validate:"gte=0"`
}

// AxisIndex returns 0, 1 or 2 for x, y or z
func (p PlaneConfig) AxisIndex() int {
	switch p.Axis {
	case "y":
		return 1
	case "z":
		return 2
	}
	return 0
}

// BoxConfig generates a structured mesh in place of a mesh file
type BoxConfig struct {
	Dim    int       `yaml:"dim" validate:"oneof=2 3"`
	Cells  []int     `yaml:"cells" validate:"required,dive,gte=1"`
	Length []float64 `yaml:"length" validate:"required,dive,gt=0"`
	Tets   bool      `yaml:"tets"`
	Zones  int       `yaml:"zones" validate:"gte=1"` // Identical boxes stacked along x
}

// DeformConfig selects and tunes the deformation algorithm
type DeformConfig struct {
	Algorithm        string  `yaml:"algorithm" validate:"oneof=solver legacy"`
	Stiffness        string  `yaml:"stiffness" validate:"oneof=constant inverse_volume wall_distance"`
	YoungModulus     float64 `yaml:"young_modulus" validate:"gt=0"`
	PoissonRatio     float64 `yaml:"poisson_ratio" validate:"gte=0,lt=0.5"`
	LinearTolerance  float64 `yaml:"linear_tolerance" validate:"gt=0"`
	LinearIterations int     `yaml:"linear_iterations" validate:"gte=1"`
	Increments       int     `yaml:"increments" validate:"gte=1"`
	IDWPower         float64 `yaml:"idw_power" validate:"gt=0"`
	Device           string  `yaml:"device"` // OCCA device properties for legacy offload
}

// MotionConfig describes the prescribed surface motion
type MotionConfig struct {
	Kind      string    `yaml:"kind" validate:"oneof=none translation plunging pitching rotation"`
	Markers   []string  `yaml:"markers"` // Defaults to the deformable markers
	Velocity  []float64 `yaml:"velocity"`
	Amplitude []float64 `yaml:"amplitude"`
	Omega     float64   `yaml:"omega" validate:"gte=0"`
	Pitch     float64   `yaml:"pitch"` // Pitching amplitude, degrees
	Origin    []float64 `yaml:"origin"`
	TimeStep  float64   `yaml:"time_step" validate:"gte=0"`
	Steps     int       `yaml:"steps" validate:"gte=1"`
}

// CouplingConfig tunes the fluid-structure coupling loop
type CouplingConfig struct {
	FluidMarker     string  `yaml:"fluid_marker"`     // Interface marker of the fluid zone (zone 0)
	StructureMarker string  `yaml:"structure_marker"` // Interface marker of the structural zone (zone 1)
	Iterations      int     `yaml:"iterations" validate:"gte=1"`
	Relaxation      float64 `yaml:"relaxation" validate:"gt=0,lte=1"`
}

// OutputConfig names the files written by the output stage
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	MeshFile    string `yaml:"mesh_file" validate:"required"`
	SurfaceFile string `yaml:"surface_file" validate:"required"`
	Disabled    bool   `yaml:"disabled"`
}

// PartitionConfig controls the domain decomposition
type PartitionConfig struct {
	Ranks    int    `yaml:"ranks" validate:"gte=1"`
	Strategy string `yaml:"strategy" validate:"oneof=block roundrobin graph sfc"`
}

// ZoneConfig overrides settings for one zone
type ZoneConfig struct {
	TimeInstances int      `yaml:"time_instances" validate:"gte=0"`
	DeformMarkers []string `yaml:"deform_markers"`
}

// Default returns the configuration every file is layered over
func Default() Config {
	return Config{
		Unsteady:      Steady,
		TimeInstances: 1,
		HBPeriod:      1,
		Deform: DeformConfig{
			Algorithm:        "solver",
			Stiffness:        "inverse_volume",
			YoungModulus:     1,
			PoissonRatio:     0.3,
			LinearTolerance:  1e-10,
			LinearIterations: 2000,
			Increments:       1,
			IDWPower:         3,
		},
		Motion: MotionConfig{Kind: "none", TimeStep: 1, Steps: 1},
		Coupling: CouplingConfig{
			Iterations: 1,
			Relaxation: 1,
		},
		Output: OutputConfig{
			MeshFile:    "mesh_out.su2",
			SurfaceFile: "surface_deformed.csv",
		},
		Partition: PartitionConfig{Ranks: 1, Strategy: "block"},
	}
}

var validate = validator.New()

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewError("config.load", utils.KindConfig, -1, err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, utils.NewError("config.load", utils.KindConfig, -1, fmt.Errorf("%s: %w", path, err))
	}
	return cfg, nil
}

// Parse decodes and validates a YAML configuration
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if cfg.Mesh.Box != nil && cfg.Mesh.Box.Zones == 0 {
		cfg.Mesh.Box.Zones = 1
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrConfigInconsistency, err)
	}
	if b := cfg.Mesh.Box; b != nil && (len(b.Cells) != b.Dim || len(b.Length) != b.Dim) {
		return nil, fmt.Errorf("%w: box needs %d cell counts and lengths", utils.ErrConfigInconsistency, b.Dim)
	}
	return &cfg, nil
}

// Zone returns the configuration of zone i with its overrides applied
func (c *Config) Zone(i int) Config {
	z := *c
	if i >= 0 && i < len(c.Zones) {
		o := c.Zones[i]
		if o.TimeInstances > 0 {
			z.TimeInstances = o.TimeInstances
		}
		if o.DeformMarkers != nil {
			z.DeformMarkers = o.DeformMarkers
		}
	}
	return z
}

// IsDeformable reports whether a marker tag is listed for mesh deformation
func (c *Config) IsDeformable(tag string) bool {
	for _, m := range c.DeformMarkers {
		if m == tag {
			return true
		}
	}
	return false
}

// MovingMarkers returns the markers driven by the surface motion
func (c *Config) MovingMarkers() []string {
	if len(c.Motion.Markers) > 0 {
		return c.Motion.Markers
	}
	return c.DeformMarkers
}
