package storage

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/membrane"
	"github.com/san-kum/memdyn/internal/mesh"
)

// Property is a per-vertex scalar written after the coordinates.
type Property struct {
	Name   string
	Values []float64
}

// SystemProperties lists the per-vertex fields of sys written to PLY
// frames. Vector fields are split into _x, _y and _z columns.
func SystemProperties(sys *membrane.System) []Property {
	g := sys.Geometry
	props := []Property{
		{"protein_density", sys.ProteinDensity},
		{"mean_curvature", g.VertexMeanCurvatures()},
		{"gaussian_curvature", g.VertexGaussianCurvatures()},
		{"spontaneous_curvature", sys.H0},
		{"bending_rigidity", sys.Kb},
		{"geodesic_distance", sys.GeodesicDistance},
		{"protein_mask", sys.ProteinMask},
	}
	props = append(props, splitVectors("velocity", sys.Velocity)...)
	props = append(props, splitVectors("force_mask", sys.ForceMask)...)
	for _, f := range sys.Forces.Vectors() {
		props = append(props, splitVectors(f.Name, f.Field)...)
	}
	for _, f := range sys.Forces.Scalars() {
		props = append(props, Property{f.Name, f.Field})
	}
	return props
}

func splitVectors(name string, v []r3.Vec) []Property {
	x := make([]float64, len(v))
	y := make([]float64, len(v))
	z := make([]float64, len(v))
	for i, p := range v {
		x[i], y[i], z[i] = p.X, p.Y, p.Z
	}
	return []Property{{name + "_x", x}, {name + "_y", y}, {name + "_z", z}}
}

// WritePLY writes an ASCII PLY mesh. Every property must have one value
// per vertex.
func WritePLY(w io.Writer, triangles [][3]int, positions []r3.Vec, props []Property) error {
	n := len(positions)
	for _, p := range props {
		if len(p.Values) != n {
			return fmt.Errorf("ply property %s has %d values for %d vertices", p.Name, len(p.Values), n)
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ply")
	fmt.Fprintln(bw, "format ascii 1.0")
	fmt.Fprintln(bw, "comment memdyn")
	fmt.Fprintf(bw, "element vertex %d\n", n)
	for _, c := range []string{"x", "y", "z"} {
		fmt.Fprintf(bw, "property double %s\n", c)
	}
	for _, p := range props {
		fmt.Fprintf(bw, "property double %s\n", p.Name)
	}
	fmt.Fprintf(bw, "element face %d\n", len(triangles))
	fmt.Fprintln(bw, "property list uchar int vertex_indices")
	fmt.Fprintln(bw, "end_header")

	for v, x := range positions {
		fmt.Fprintf(bw, "%.17g %.17g %.17g", x.X, x.Y, x.Z)
		for _, p := range props {
			fmt.Fprintf(bw, " %.17g", p.Values[v])
		}
		bw.WriteByte('\n')
	}
	for _, t := range triangles {
		fmt.Fprintf(bw, "3 %d %d %d\n", t[0], t[1], t[2])
	}
	return bw.Flush()
}

// PLYMesh is a parsed PLY file.
type PLYMesh struct {
	Positions  []r3.Vec
	Faces      [][3]int
	Properties map[string][]float64
	// Order lists the extra vertex properties as they appear in the header.
	Order []string
}

type plyElement struct {
	name  string
	count int
	props []string
	list  bool
}

// ReadPLY parses an ASCII PLY with triangular faces.
func ReadPLY(r io.Reader) (*PLYMesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "ply" {
		return nil, fmt.Errorf("ply: missing magic")
	}
	var elems []*plyElement
	for {
		if !sc.Scan() {
			return nil, fmt.Errorf("ply: unterminated header")
		}
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "format":
			if len(f) < 2 || f[1] != "ascii" {
				return nil, fmt.Errorf("ply: unsupported format %q", strings.Join(f[1:], " "))
			}
		case "comment", "obj_info":
		case "element":
			if len(f) != 3 {
				return nil, fmt.Errorf("ply: bad element line %q", sc.Text())
			}
			n, err := strconv.Atoi(f[2])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("ply: bad element count %q", f[2])
			}
			elems = append(elems, &plyElement{name: f[1], count: n})
		case "property":
			if len(elems) == 0 {
				return nil, fmt.Errorf("ply: property before element")
			}
			e := elems[len(elems)-1]
			if len(f) >= 5 && f[1] == "list" {
				e.list = true
				e.props = append(e.props, f[4])
			} else if len(f) == 3 {
				e.props = append(e.props, f[2])
			} else {
				return nil, fmt.Errorf("ply: bad property line %q", sc.Text())
			}
		case "end_header":
			return readPLYBody(sc, elems)
		default:
			return nil, fmt.Errorf("ply: unknown header keyword %q", f[0])
		}
	}
}

func readPLYBody(sc *bufio.Scanner, elems []*plyElement) (*PLYMesh, error) {
	out := &PLYMesh{Properties: make(map[string][]float64)}
	next := func() ([]string, error) {
		for sc.Scan() {
			if f := strings.Fields(sc.Text()); len(f) > 0 {
				return f, nil
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}

	for _, e := range elems {
		switch {
		case e.name == "vertex":
			if err := out.readVertices(e, next); err != nil {
				return nil, err
			}
		case e.name == "face" && e.list:
			for i := 0; i < e.count; i++ {
				f, err := next()
				if err != nil {
					return nil, fmt.Errorf("ply: face %d: %w", i, err)
				}
				if len(f) < 4 || f[0] != "3" {
					return nil, fmt.Errorf("ply: face %d is not a triangle", i)
				}
				var t [3]int
				for k := range t {
					if t[k], err = strconv.Atoi(f[k+1]); err != nil {
						return nil, fmt.Errorf("ply: face %d: %w", i, err)
					}
				}
				out.Faces = append(out.Faces, t)
			}
		default:
			for i := 0; i < e.count; i++ {
				if _, err := next(); err != nil {
					return nil, fmt.Errorf("ply: element %s: %w", e.name, err)
				}
			}
		}
	}
	return out, nil
}

func (m *PLYMesh) readVertices(e *plyElement, next func() ([]string, error)) error {
	col := map[string]int{}
	for i, p := range e.props {
		col[p] = i
		if p != "x" && p != "y" && p != "z" {
			m.Order = append(m.Order, p)
			m.Properties[p] = make([]float64, e.count)
		}
	}
	for _, c := range []string{"x", "y", "z"} {
		if _, ok := col[c]; !ok {
			return fmt.Errorf("ply: vertex element has no %s", c)
		}
	}

	m.Positions = make([]r3.Vec, e.count)
	row := make([]float64, len(e.props))
	for i := 0; i < e.count; i++ {
		f, err := next()
		if err != nil {
			return fmt.Errorf("ply: vertex %d: %w", i, err)
		}
		if len(f) < len(e.props) {
			return fmt.Errorf("ply: vertex %d has %d values, want %d", i, len(f), len(e.props))
		}
		for k := range row {
			if row[k], err = strconv.ParseFloat(f[k], 64); err != nil {
				return fmt.Errorf("ply: vertex %d: %w", i, err)
			}
		}
		m.Positions[i] = r3.Vec{X: row[col["x"]], Y: row[col["y"]], Z: row[col["z"]]}
		for _, p := range m.Order {
			m.Properties[p][i] = row[col[p]]
		}
	}
	return nil
}

// Geometry builds the mesh and embedding described by the file.
func (m *PLYMesh) Geometry() (*geometry.Geometry, error) {
	hm, err := mesh.FromFaces(len(m.Positions), m.Faces)
	if err != nil {
		return nil, err
	}
	return geometry.New(hm, m.Positions)
}

// Vector reassembles a field split by SystemProperties. It returns nil
// when any component is missing.
func (m *PLYMesh) Vector(name string) []r3.Vec {
	x, okx := m.Properties[name+"_x"]
	y, oky := m.Properties[name+"_y"]
	z, okz := m.Properties[name+"_z"]
	if !okx || !oky || !okz {
		return nil
	}
	out := make([]r3.Vec, len(x))
	for i := range out {
		out[i] = r3.Vec{X: x[i], Y: y[i], Z: z[i]}
	}
	return out
}

// State extracts positions, velocity and protein density when present.
func (m *PLYMesh) State(t float64) membrane.State {
	st := membrane.State{Time: t, Positions: m.Positions}
	if v := m.Vector("velocity"); v != nil {
		st.Velocity = v
	}
	if phi, ok := m.Properties["protein_density"]; ok {
		st.ProteinDensity = phi
	}
	return st
}
