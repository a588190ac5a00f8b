// Package output writes the deformed mesh of a zone. Every rank takes part in
// gathering its owned data; rank 0 writes the files.
package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/notargets/meshmotion/config"
	"github.com/notargets/meshmotion/element"
	"github.com/notargets/meshmotion/geometry"
)

// Writer writes the SU2 mesh and the surface table of one zone
type Writer struct {
	Dir         string
	MeshFile    string
	SurfaceFile string
	NZone       int // File names carry a zone suffix when > 1
	Disabled    bool
}

// New returns the writer for a run with nZone zones
func New(oc config.OutputConfig, nZone int) *Writer {
	return &Writer{
		Dir:         oc.Dir,
		MeshFile:    oc.MeshFile,
		SurfaceFile: oc.SurfaceFile,
		NZone:       nZone,
		Disabled:    oc.Disabled,
	}
}

// Snapshot is the global mesh of a zone gathered on rank 0
type Snapshot struct {
	Mesh    *geometry.MeshData
	Initial [][]float64 // Undeformed coordinates by global point
}

// Path returns the file name for a zone and time instance; instance < 0
// means steady output
func (w *Writer) Path(name string, zone, instance int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if w.NZone > 1 {
		base += "_" + strconv.Itoa(zone)
	}
	if instance >= 0 {
		base += fmt.Sprintf("_%05d", instance)
	}
	return filepath.Join(w.Dir, base+ext)
}

// Write gathers g and writes both files from rank 0. Collective; returns the
// written paths on rank 0.
func (w *Writer) Write(ctx context.Context, g *geometry.Geometry, instance int) ([]string, error) {
	if w.Disabled {
		return nil, nil
	}
	snap, err := Collect(ctx, g)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	if w.Dir != "" {
		if err := os.MkdirAll(w.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
	}

	meshPath := w.Path(w.MeshFile, g.Zone, instance)
	if err := writeFile(meshPath, func(f io.Writer) error {
		return geometry.WriteSU2(f, snap.Mesh)
	}); err != nil {
		return nil, err
	}
	surfPath := w.Path(w.SurfaceFile, g.Zone, instance)
	if err := writeFile(surfPath, func(f io.Writer) error {
		return WriteSurface(f, snap)
	}); err != nil {
		return nil, err
	}
	return []string{meshPath, surfPath}, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("output %s: %w", path, err)
	}
	return f.Close()
}

// Collect gathers the owned points, elements and marker elements of every rank
// onto rank 0, which gets the global mesh; other ranks get nil. Collective.
func Collect(ctx context.Context, g *geometry.Geometry) (*Snapshot, error) {
	dim := g.Dim

	// Points: gid, current, initial
	var pts []float64
	for p := 0; p < g.NPointDomain; p++ {
		pts = append(pts, float64(g.GlobalID[p]))
		pts = append(pts, g.Coords[p]...)
		pts = append(pts, g.InitialCoords[p]...)
	}
	// Elements: gid, vtk, n, global nodes
	var elems []float64
	for _, e := range g.Elements {
		elems = append(elems, float64(e.GlobalID), float64(e.Type.VTKID()), float64(len(e.Nodes)))
		for _, n := range e.Nodes {
			elems = append(elems, float64(g.GlobalID[n]))
		}
	}
	// Marker elements: marker, gid, vtk, n, global nodes
	var marks []float64
	for mi, m := range g.Markers {
		for _, b := range m.Elements {
			marks = append(marks, float64(mi), float64(b.GlobalID), float64(b.Type.VTKID()), float64(len(b.Nodes)))
			for _, n := range b.Nodes {
				marks = append(marks, float64(g.GlobalID[n]))
			}
		}
	}

	allPts, err := g.Comm.Gather(ctx, 0, pts)
	if err != nil {
		return nil, err
	}
	allElems, err := g.Comm.Gather(ctx, 0, elems)
	if err != nil {
		return nil, err
	}
	allMarks, err := g.Comm.Gather(ctx, 0, marks)
	if err != nil {
		return nil, err
	}
	if g.Comm.Rank() != 0 {
		return nil, nil
	}

	md := &geometry.MeshData{
		Dim:      dim,
		Zone:     g.Zone,
		Coords:   make([][]float64, g.NGlobalPoint),
		Elements: make([]geometry.Element, g.NGlobalElement),
		Markers:  make([]geometry.MarkerData, len(g.Markers)),
	}
	initial := make([][]float64, g.NGlobalPoint)
	for _, buf := range allPts {
		for i := 0; i+1+2*dim <= len(buf); i += 1 + 2*dim {
			gid := int(buf[i])
			md.Coords[gid] = append([]float64(nil), buf[i+1:i+1+dim]...)
			initial[gid] = append([]float64(nil), buf[i+1+dim:i+1+2*dim]...)
		}
	}
	for gid, x := range md.Coords {
		if x == nil {
			return nil, fmt.Errorf("output: point %d has no owner", gid)
		}
	}

	for _, buf := range allElems {
		for i := 0; i < len(buf); {
			gid, n := int(buf[i]), int(buf[i+2])
			t, err := element.FromVTK(int(buf[i+1]))
			if err != nil {
				return nil, err
			}
			md.Elements[gid] = geometry.Element{Type: t, Nodes: toInts(buf[i+3 : i+3+n])}
			i += 3 + n
		}
	}

	type indexed struct {
		gid int
		e   geometry.Element
	}
	byMarker := make([][]indexed, len(g.Markers))
	for _, buf := range allMarks {
		for i := 0; i < len(buf); {
			mi, gid, n := int(buf[i]), int(buf[i+1]), int(buf[i+3])
			t, err := element.FromVTK(int(buf[i+2]))
			if err != nil {
				return nil, err
			}
			byMarker[mi] = append(byMarker[mi], indexed{gid, geometry.Element{Type: t, Nodes: toInts(buf[i+4 : i+4+n])}})
			i += 4 + n
		}
	}
	for mi, m := range g.Markers {
		list := byMarker[mi]
		sort.Slice(list, func(a, b int) bool { return list[a].gid < list[b].gid })
		md.Markers[mi].Tag = m.Tag
		for _, ie := range list {
			md.Markers[mi].Elements = append(md.Markers[mi].Elements, ie.e)
		}
	}
	return &Snapshot{Mesh: md, Initial: initial}, nil
}

func toInts(v []float64) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

// WriteSurface writes one row per marker point: marker tag, global point id,
// coordinates and displacement from the undeformed mesh
func WriteSurface(w io.Writer, snap *Snapshot) error {
	md := snap.Mesh
	axes := []string{"x", "y", "z"}[:md.Dim]

	cw := csv.NewWriter(w)
	header := []string{"marker", "global_id"}
	header = append(header, axes...)
	for _, a := range axes {
		header = append(header, "d"+a)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'e', 15, 64) }
	for _, m := range md.Markers {
		seen := make(map[int]bool)
		var ids []int
		for _, e := range m.Elements {
			for _, n := range e.Nodes {
				if !seen[n] {
					seen[n] = true
					ids = append(ids, n)
				}
			}
		}
		sort.Ints(ids)
		for _, id := range ids {
			row := []string{m.Tag, strconv.Itoa(id)}
			for _, v := range md.Coords[id] {
				row = append(row, f(v))
			}
			for d, v := range md.Coords[id] {
				row = append(row, f(v-snap.Initial[id][d]))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
