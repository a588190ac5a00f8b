// Package movement prescribes rigid surface motions for the deformable
// markers of a zone. A motion maps an undeformed point and a time onto the
// point's displacement and velocity.
package movement

import (
	"fmt"
	"math"

	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/geometry"
)

// SurfaceMotion is a prescribed boundary motion
type SurfaceMotion interface {
	Displacement(x0 []float64, t float64) []float64
	Velocity(x0 []float64, t float64) []float64
}

// None leaves the surface in place
type None struct{}

func (m None) Displacement(x0 []float64, t float64) []float64 { return make([]float64, len(x0)) }
func (m None) Velocity(x0 []float64, t float64) []float64     { return make([]float64, len(x0)) }

// Translation moves the surface at constant velocity
type Translation struct {
	V []float64
}

func (m Translation) Displacement(x0 []float64, t float64) []float64 {
	d := make([]float64, len(x0))
	for i := range d {
		d[i] = m.V[i] * t
	}
	return d
}

func (m Translation) Velocity(x0 []float64, t float64) []float64 {
	return append([]float64(nil), m.V[:len(x0)]...)
}

// Plunging oscillates the surface: d = A sin(ωt)
type Plunging struct {
	Amplitude []float64
	Omega     float64
}

func (m Plunging) Displacement(x0 []float64, t float64) []float64 {
	d := make([]float64, len(x0))
	s := math.Sin(m.Omega * t)
	for i := range d {
		d[i] = m.Amplitude[i] * s
	}
	return d
}

func (m Plunging) Velocity(x0 []float64, t float64) []float64 {
	v := make([]float64, len(x0))
	c := m.Omega * math.Cos(m.Omega*t)
	for i := range v {
		v[i] = m.Amplitude[i] * c
	}
	return v
}

// Rotation turns the surface about the z axis through Origin by Angle(t)
type Rotation struct {
	Origin []float64
	Angle  func(t float64) float64
	Rate   func(t float64) float64
}

// Pitching rotates by θ(t) = Amplitude sin(ωt), Amplitude in radians
func Pitching(origin []float64, amplitude, omega float64) Rotation {
	return Rotation{
		Origin: origin,
		Angle:  func(t float64) float64 { return amplitude * math.Sin(omega*t) },
		Rate:   func(t float64) float64 { return amplitude * omega * math.Cos(omega*t) },
	}
}

// Steady rotates at constant angular velocity omega
func Steady(origin []float64, omega float64) Rotation {
	return Rotation{
		Origin: origin,
		Angle:  func(t float64) float64 { return omega * t },
		Rate:   func(float64) float64 { return omega },
	}
}

func (m Rotation) Displacement(x0 []float64, t float64) []float64 {
	th := m.Angle(t)
	c, s := math.Cos(th), math.Sin(th)
	rx, ry := x0[0]-m.origin(0), x0[1]-m.origin(1)
	d := make([]float64, len(x0))
	d[0] = c*rx - s*ry - rx
	d[1] = s*rx + c*ry - ry
	return d
}

func (m Rotation) Velocity(x0 []float64, t float64) []float64 {
	th, w := m.Angle(t), m.Rate(t)
	c, s := math.Cos(th), math.Sin(th)
	rx, ry := x0[0]-m.origin(0), x0[1]-m.origin(1)
	v := make([]float64, len(x0))
	v[0] = w * (-s*rx - c*ry)
	v[1] = w * (c*rx - s*ry)
	return v
}

func (m Rotation) origin(i int) float64 {
	if i < len(m.Origin) {
		return m.Origin[i]
	}
	return 0
}

// FromConfig builds the motion described by the configuration
func FromConfig(mc config.MotionConfig, dim int) (SurfaceMotion, error) {
	vec := func(name string, v []float64) ([]float64, error) {
		if len(v) < dim {
			return nil, fmt.Errorf("motion %s: %s needs %d components, has %d", mc.Kind, name, dim, len(v))
		}
		return v[:dim], nil
	}
	switch mc.Kind {
	case "", "none":
		return None{}, nil
	case "translation":
		v, err := vec("velocity", mc.Velocity)
		if err != nil {
			return nil, err
		}
		return Translation{V: v}, nil
	case "plunging":
		a, err := vec("amplitude", mc.Amplitude)
		if err != nil {
			return nil, err
		}
		return Plunging{Amplitude: a, Omega: mc.Omega}, nil
	case "pitching":
		return Pitching(mc.Origin, mc.Pitch*math.Pi/180, mc.Omega), nil
	case "rotation":
		return Steady(mc.Origin, mc.Omega), nil
	}
	return nil, fmt.Errorf("unknown surface motion %q", mc.Kind)
}

// Apply writes the displacement and velocity of motion at time t onto every
// local vertex of the named markers. Unknown markers are an error.
func Apply(g *geometry.Geometry, markers []string, motion SurfaceMotion, t float64) error {
	for _, tag := range markers {
		m := g.MarkerByTag(tag)
		if m == nil {
			return fmt.Errorf("zone %d has no marker %q", g.Zone, tag)
		}
		for _, p := range m.Vertices {
			copy(g.BoundDisp[p], motion.Displacement(g.InitialCoords[p], t))
			copy(g.Velocity[p], motion.Velocity(g.InitialCoords[p], t))
		}
	}
	return nil
}
