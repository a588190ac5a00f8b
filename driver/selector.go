package driver

import (
	"fmt"

	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/utils"
)

// Variant names a top-level driver
type Variant int

const (
	SingleZone Variant = iota
	HarmonicBalance
	MultiZoneHarmonicBalance
	FluidStructure
	MultiZone
)

var variantNames = [...]string{"single_zone", "harmonic_balance", "multizone_harmonic_balance", "fluid_structure", "multizone"}

func (v Variant) String() string {
	if v >= 0 && int(v) < len(variantNames) {
		return variantNames[v]
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Predicates are the configuration facts a driver is selected on
type Predicates struct {
	Solver        config.SolverKind
	Unsteady      config.UnsteadyMode
	NZone         int
	FSI           bool
	TimeInstances []int // Per zone
}

// PredicatesFor derives the predicates of a configuration and its zone count
func PredicatesFor(cfg *config.Config, nZone int) Predicates {
	p := Predicates{Solver: cfg.Solver, Unsteady: cfg.Unsteady, NZone: nZone, FSI: cfg.FSI}
	for i := 0; i < nZone; i++ {
		p.TimeInstances = append(p.TimeInstances, cfg.Zone(i).TimeInstances)
	}
	return p
}

// Selection is the outcome of driver selection
type Selection struct {
	Variant        Variant
	NZone          int
	NTimeInstances int // Total instances the driver runs
}

type rule struct {
	name   string
	match  func(Predicates) bool
	decide func(Predicates) (Selection, error)
}

func isHB(p Predicates) bool { return p.Unsteady == config.HarmonicBalance }

func perZoneInstances(p Predicates) int {
	if len(p.TimeInstances) == 0 {
		return 1
	}
	return p.TimeInstances[0]
}

// decisionTable holds mutually exclusive rules; exactly one matches any
// predicates
var decisionTable = []rule{
	{
		name:  "single-zone solver",
		match: func(p Predicates) bool { return p.Solver.SingleZoneOnly() },
		decide: func(p Predicates) (Selection, error) {
			if p.NZone > 1 {
				return Selection{}, fmt.Errorf("solver %s supports a single zone, mesh has %d", p.Solver, p.NZone)
			}
			return Selection{Variant: SingleZone, NZone: 1, NTimeInstances: 1}, nil
		},
	},
	{
		name:  "harmonic balance",
		match: func(p Predicates) bool { return !p.Solver.SingleZoneOnly() && isHB(p) && p.NZone == 1 },
		decide: func(p Predicates) (Selection, error) {
			return Selection{Variant: HarmonicBalance, NZone: 1, NTimeInstances: perZoneInstances(p)}, nil
		},
	},
	{
		name:  "multi-zone harmonic balance",
		match: func(p Predicates) bool { return !p.Solver.SingleZoneOnly() && isHB(p) && p.NZone > 1 },
		decide: func(p Predicates) (Selection, error) {
			n := perZoneInstances(p)
			for i, t := range p.TimeInstances {
				if t != n {
					return Selection{}, fmt.Errorf("zone %d has %d time instances, zone 0 has %d", i, t, n)
				}
			}
			return Selection{Variant: MultiZoneHarmonicBalance, NZone: p.NZone, NTimeInstances: n * p.NZone}, nil
		},
	},
	{
		name:  "fluid-structure",
		match: func(p Predicates) bool { return !p.Solver.SingleZoneOnly() && !isHB(p) && p.FSI },
		decide: func(p Predicates) (Selection, error) {
			if p.NZone != 2 {
				return Selection{}, fmt.Errorf("fluid-structure coupling needs 2 zones, mesh has %d", p.NZone)
			}
			return Selection{Variant: FluidStructure, NZone: 2, NTimeInstances: 1}, nil
		},
	},
	{
		name:  "multi-zone",
		match: func(p Predicates) bool { return !p.Solver.SingleZoneOnly() && !isHB(p) && !p.FSI },
		decide: func(p Predicates) (Selection, error) {
			return Selection{Variant: MultiZone, NZone: p.NZone, NTimeInstances: 1}, nil
		},
	},
}

// Matching returns the names of every rule matching p
func Matching(p Predicates) []string {
	var names []string
	for _, r := range decisionTable {
		if r.match(p) {
			names = append(names, r.name)
		}
	}
	return names
}

// Select picks the driver variant for p. Inconsistent predicates are a
// configuration error.
func Select(p Predicates) (Selection, error) {
	if p.NZone < 1 {
		return Selection{}, utils.Errorf("Select", utils.KindConfig, -1, "zone count %d", p.NZone)
	}
	for _, r := range decisionTable {
		if !r.match(p) {
			continue
		}
		s, err := r.decide(p)
		if err != nil {
			return Selection{}, utils.Errorf("Select", utils.KindConfig, -1, "%s: %v", r.name, err)
		}
		return s, nil
	}
	return Selection{}, utils.Errorf("Select", utils.KindConfig, -1, "no driver for %+v", p)
}
