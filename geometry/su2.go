package geometry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/meshmotion/element"
)

// ReadSU2File reads a native SU2 ASCII mesh, one MeshData per zone
func ReadSU2File(path string) ([]*MeshData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zones, err := ReadSU2(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return zones, nil
}

type su2Scanner struct {
	sc   *bufio.Scanner
	line int
}

// next returns the next non-empty, non-comment line
func (s *su2Scanner) next() (string, bool) {
	for s.sc.Scan() {
		s.line++
		l := strings.TrimSpace(s.sc.Text())
		if l == "" || strings.HasPrefix(l, "%") {
			continue
		}
		return l, true
	}
	return "", false
}

func (s *su2Scanner) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", s.line, fmt.Sprintf(format, args...))
}

// keyword splits "KEY= value" lines
func keyword(l string) (key, value string, ok bool) {
	i := strings.Index(l, "=")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(l[:i]), strings.TrimSpace(l[i+1:]), true
}

func firstInt(v string) (int, error) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0, fmt.Errorf("missing value")
	}
	return strconv.Atoi(fields[0])
}

// ReadSU2 parses a native SU2 ASCII mesh. Multi-zone files carry NZONE= and an
// IZONE= line ahead of each zone.
func ReadSU2(r io.Reader) ([]*MeshData, error) {
	s := &su2Scanner{sc: bufio.NewScanner(r)}
	s.sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		zones []*MeshData
		cur   *MeshData
		nZone = 1
	)
	newZone := func(idx int) {
		cur = &MeshData{Zone: idx}
		zones = append(zones, cur)
	}

	for {
		l, ok := s.next()
		if !ok {
			break
		}
		key, value, ok := keyword(l)
		if !ok {
			return nil, s.errorf("unexpected content %q", l)
		}
		switch key {
		case "NZONE", "IZONE", "NDIME", "NELEM", "NPOIN", "NMARK":
		default:
			// Unused sections (e.g. FFD boxes) are skipped
			continue
		}
		n, err := firstInt(value)
		if err != nil {
			return nil, s.errorf("%s: %v", key, err)
		}

		switch key {
		case "NZONE":
			nZone = n
		case "IZONE":
			newZone(n - 1)
		case "NDIME":
			if cur == nil || cur.Dim != 0 {
				newZone(len(zones))
			}
			cur.Dim = n
		case "NELEM":
			if cur == nil || cur.Dim == 0 {
				return nil, s.errorf("NELEM before NDIME")
			}
			if cur.Elements, err = s.readElements(n); err != nil {
				return nil, err
			}
		case "NPOIN":
			if cur == nil || cur.Dim == 0 {
				return nil, s.errorf("NPOIN before NDIME")
			}
			if cur.Coords, err = s.readPoints(n, cur.Dim); err != nil {
				return nil, err
			}
		case "NMARK":
			if cur == nil {
				return nil, s.errorf("NMARK before NDIME")
			}
			if cur.Markers, err = s.readMarkers(n); err != nil {
				return nil, err
			}
		}
	}

	if len(zones) == 0 {
		return nil, fmt.Errorf("no zones found")
	}
	if len(zones) != nZone {
		return nil, fmt.Errorf("NZONE= %d but %d zones found", nZone, len(zones))
	}
	for i, z := range zones {
		z.NZone = nZone
		if z.Zone != i {
			return nil, fmt.Errorf("zone %d listed as IZONE= %d", i, z.Zone+1)
		}
	}
	return zones, nil
}

func (s *su2Scanner) readElements(n int) ([]Element, error) {
	elems := make([]Element, 0, n)
	for k := 0; k < n; k++ {
		l, ok := s.next()
		if !ok {
			return nil, s.errorf("expected %d elements, found %d", n, k)
		}
		e, err := parseElement(l)
		if err != nil {
			return nil, s.errorf("%v", err)
		}
		elems = append(elems, e)
	}
	return elems, nil
}

func parseElement(l string) (Element, error) {
	fields := strings.Fields(l)
	if len(fields) < 2 {
		return Element{}, fmt.Errorf("short element line %q", l)
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return Element{}, err
	}
	g, err := element.FromVTK(id)
	if err != nil {
		return Element{}, err
	}
	nv := g.NVp()
	// An optional trailing element index follows the nodes
	if len(fields) < 1+nv {
		return Element{}, fmt.Errorf("%s needs %d nodes: %q", g, nv, l)
	}
	nodes := make([]int, nv)
	for i := 0; i < nv; i++ {
		if nodes[i], err = strconv.Atoi(fields[1+i]); err != nil {
			return Element{}, err
		}
	}
	return Element{Type: g, Nodes: nodes}, nil
}

func (s *su2Scanner) readPoints(n, dim int) ([][]float64, error) {
	pts := make([][]float64, n)
	for i := 0; i < n; i++ {
		l, ok := s.next()
		if !ok {
			return nil, s.errorf("expected %d points, found %d", n, i)
		}
		fields := strings.Fields(l)
		if len(fields) < dim {
			return nil, s.errorf("point %d has %d coordinates", i, len(fields))
		}
		x := make([]float64, dim)
		for d := 0; d < dim; d++ {
			v, err := strconv.ParseFloat(fields[d], 64)
			if err != nil {
				return nil, s.errorf("point %d: %v", i, err)
			}
			x[d] = v
		}
		pts[i] = x
	}
	return pts, nil
}

func (s *su2Scanner) readMarkers(n int) ([]MarkerData, error) {
	markers := make([]MarkerData, 0, n)
	for m := 0; m < n; m++ {
		l, ok := s.next()
		if !ok {
			return nil, s.errorf("expected %d markers, found %d", n, m)
		}
		key, tag, ok := keyword(l)
		if !ok || key != "MARKER_TAG" {
			return nil, s.errorf("expected MARKER_TAG, got %q", l)
		}
		l, ok = s.next()
		if !ok {
			return nil, s.errorf("marker %s: missing MARKER_ELEMS", tag)
		}
		key, value, ok := keyword(l)
		if !ok || key != "MARKER_ELEMS" {
			return nil, s.errorf("marker %s: expected MARKER_ELEMS, got %q", tag, l)
		}
		ne, err := firstInt(value)
		if err != nil {
			return nil, s.errorf("marker %s: %v", tag, err)
		}
		elems, err := s.readElements(ne)
		if err != nil {
			return nil, err
		}
		markers = append(markers, MarkerData{Tag: tag, Elements: elems})
	}
	return markers, nil
}

// WriteSU2 writes zones in native SU2 ASCII format
func WriteSU2(w io.Writer, zones ...*MeshData) error {
	bw := bufio.NewWriter(w)
	if len(zones) > 1 {
		fmt.Fprintf(bw, "NZONE= %d\n", len(zones))
	}
	for _, md := range zones {
		if len(zones) > 1 {
			fmt.Fprintf(bw, "IZONE= %d\n", md.Zone+1)
		}
		fmt.Fprintf(bw, "NDIME= %d\n", md.Dim)
		fmt.Fprintf(bw, "NELEM= %d\n", len(md.Elements))
		for k, e := range md.Elements {
			writeElement(bw, e)
			fmt.Fprintf(bw, " %d\n", k)
		}
		fmt.Fprintf(bw, "NPOIN= %d\n", len(md.Coords))
		for i, x := range md.Coords {
			for _, v := range x {
				fmt.Fprintf(bw, "%.15e ", v)
			}
			fmt.Fprintf(bw, "%d\n", i)
		}
		fmt.Fprintf(bw, "NMARK= %d\n", len(md.Markers))
		for _, m := range md.Markers {
			fmt.Fprintf(bw, "MARKER_TAG= %s\n", m.Tag)
			fmt.Fprintf(bw, "MARKER_ELEMS= %d\n", len(m.Elements))
			for _, e := range m.Elements {
				writeElement(bw, e)
				fmt.Fprintln(bw)
			}
		}
	}
	return bw.Flush()
}

func writeElement(w io.Writer, e Element) {
	fmt.Fprintf(w, "%d", e.Type.VTKID())
	for _, n := range e.Nodes {
		fmt.Fprintf(w, " %d", n)
	}
}
