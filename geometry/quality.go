package geometry

import (
	"context"
	"math"

	"github.com/notargets/meshmotion/element"
)

// QualityReport summarises element validity over all ranks
type QualityReport struct {
	MinQuality float64 // Smallest normalised corner Jacobian
	MinVolume  float64 // Smallest signed volume, in load orientation
	Inverted   int     // Elements with a non-positive corner Jacobian
	WorstID    int     // Global id of the worst element
}

// Valid reports whether every element kept its orientation
func (q QualityReport) Valid() bool { return q.Inverted == 0 && q.MinQuality > 0 }

// CheckQuality measures every element against the orientation it had at load
// time. Collective.
func (g *Geometry) CheckQuality(ctx context.Context) (QualityReport, error) {
	minQ, minV := math.Inf(1), math.Inf(1)
	worst := -1
	inverted := 0
	for k, e := range g.Elements {
		pts := g.ElementPoints(k)
		q := element.Quality(e.Type, pts, e.Sign)
		if q <= 0 {
			inverted++
		}
		if q < minQ {
			minQ, worst = q, e.GlobalID
		}
		if v := e.Sign * element.Volume(e.Type, pts); !math.IsNaN(v) {
			minV = math.Min(minV, v)
		}
	}

	mins, err := g.Comm.AllreduceMin(ctx, []float64{minQ, minV})
	if err != nil {
		return QualityReport{}, err
	}
	// The worst element id travels with its quality; ties resolve to the lowest id
	cand := math.Inf(1)
	if minQ == mins[0] && worst >= 0 {
		cand = float64(worst)
	}
	ids, err := g.Comm.AllreduceMin(ctx, []float64{cand})
	if err != nil {
		return QualityReport{}, err
	}
	n, err := g.Comm.SumInt(ctx, inverted)
	if err != nil {
		return QualityReport{}, err
	}

	rep := QualityReport{MinQuality: mins[0], MinVolume: mins[1], Inverted: n, WorstID: -1}
	if !math.IsInf(ids[0], 1) {
		rep.WorstID = int(ids[0])
	}
	return rep, nil
}

// ComputeNormals recomputes the area-weighted outward normal of every marker
// vertex from the current coordinates. Collective.
func (g *Geometry) ComputeNormals(ctx context.Context) error {
	for _, m := range g.Markers {
		sum := make([]float64, g.NPoint()*g.Dim)
		for _, b := range m.Elements {
			pts := make([][]float64, len(b.Nodes))
			for i, n := range b.Nodes {
				pts[i] = g.Coords[n]
			}
			normal := element.FaceNormal(pts)

			// Point away from the adjacent element
			fc := element.Centroid(pts)
			ec := element.Centroid(g.ElementPoints(b.Element))
			var dot float64
			for d := 0; d < g.Dim; d++ {
				dot += normal[d] * (fc[d] - ec[d])
			}
			if dot < 0 {
				for d := range normal {
					normal[d] = -normal[d]
				}
			}

			share := 1 / float64(len(b.Nodes))
			for _, n := range b.Nodes {
				for d := 0; d < g.Dim; d++ {
					sum[n*g.Dim+d] += share * normal[d]
				}
			}
		}
		if err := g.Accumulate(ctx, sum, g.Dim); err != nil {
			return err
		}
		for v, p := range m.Vertices {
			copy(m.Normals[v], sum[p*g.Dim:(p+1)*g.Dim])
		}
	}
	return nil
}
