package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/membrane"
	"github.com/san-kum/memdyn/internal/mesh"
)

// Frame is one line of traj.jsonl.
type Frame struct {
	Index          int          `json:"frame"`
	Time           float64      `json:"time"`
	Vertices       int          `json:"vertices"`
	Faces          int          `json:"faces"`
	Positions      [][3]float64 `json:"positions"`
	Velocity       [][3]float64 `json:"velocity,omitempty"`
	ProteinDensity []float64    `json:"protein_density,omitempty"`
	Triangles      [][3]int     `json:"triangles"`
}

func NewFrame(sys *membrane.System, index int) Frame {
	m := sys.Geometry.Mesh()
	return Frame{
		Index:          index,
		Time:           sys.Time,
		Vertices:       m.NumVertices(),
		Faces:          m.NumFaces(),
		Positions:      toArrays(sys.Geometry.Positions()),
		Velocity:       toArrays(sys.Velocity),
		ProteinDensity: append([]float64(nil), sys.ProteinDensity...),
		Triangles:      m.Triangles(),
	}
}

func toArrays(v []r3.Vec) [][3]float64 {
	out := make([][3]float64, len(v))
	for i, p := range v {
		out[i] = [3]float64{p.X, p.Y, p.Z}
	}
	return out
}

func toVecs(a [][3]float64) []r3.Vec {
	if a == nil {
		return nil
	}
	out := make([]r3.Vec, len(a))
	for i, p := range a {
		out[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return out
}

// State converts the frame into a restorable system state.
func (f *Frame) State() membrane.State {
	st := membrane.State{
		Time:      f.Time,
		Positions: toVecs(f.Positions),
	}
	if f.Velocity != nil {
		st.Velocity = dynamo.VectorField(toVecs(f.Velocity))
	}
	if f.ProteinDensity != nil {
		st.ProteinDensity = dynamo.Field(append([]float64(nil), f.ProteinDensity...))
	}
	return st
}

// Geometry rebuilds the frame's mesh.
func (f *Frame) Geometry() (*geometry.Geometry, error) {
	m, err := mesh.FromFaces(len(f.Positions), f.Triangles)
	if err != nil {
		return nil, err
	}
	return geometry.New(m, toVecs(f.Positions))
}

// LoadFrame reads frame index from traj.jsonl in dir. A negative index
// selects the last frame.
func LoadFrame(dir string, index int) (*Frame, error) {
	file, err := os.Open(filepath.Join(dir, trajectoryFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<30)
	var last *Frame
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", trajectoryFile, err)
		}
		if index >= 0 && f.Index == index {
			return &f, nil
		}
		last = &f
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if index < 0 && last != nil {
		return last, nil
	}
	return nil, fmt.Errorf("frame %d not found in %s", index, dir)
}
