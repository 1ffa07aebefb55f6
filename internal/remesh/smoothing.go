package remesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/geometry"
)

// VertexShift moves every free interior vertex to the tangential
// component of its one-ring barycenter. All targets are computed from the
// positions before the move.
func VertexShift(g *geometry.Geometry, locked []bool) int {
	m := g.Mesh()
	normals := g.VertexNormals()
	next := make([]r3.Vec, len(g.Positions()))
	copy(next, g.Positions())
	moved := 0
	for v := range next {
		if !m.VertexAlive(v) || m.IsBoundaryVertex(v) || (locked != nil && locked[v]) {
			continue
		}
		var sum r3.Vec
		n := 0
		for u := range m.Neighbors(v) {
			sum = r3.Add(sum, g.Position(u))
			n++
		}
		if n == 0 {
			continue
		}
		d := r3.Sub(r3.Scale(1/float64(n), sum), g.Position(v))
		d = r3.Sub(d, r3.Scale(r3.Dot(d, normals[v]), normals[v]))
		next[v] = r3.Add(next[v], d)
		moved++
	}
	g.SetPositions(next)
	return moved
}

// Smoother relaxes marked vertices along a caller supplied force, usually
// the bending force, until its norm over the marked set drops under Tol.
type Smoother struct {
	Step    float64
	Tol     float64
	MaxIter int
}

// Smooth runs the relaxation over the vertices flagged in marker, or over
// every vertex when marker is nil, and returns the iterations taken.
func (s Smoother) Smooth(g *geometry.Geometry, marker []bool, force func() []r3.Vec) int {
	for it := 0; it < s.MaxIter; it++ {
		f := force()
		delta := make([]r3.Vec, len(f))
		norm := 0.0
		for v := range f {
			if marker != nil && !marker[v] {
				continue
			}
			if !g.Mesh().VertexAlive(v) {
				continue
			}
			delta[v] = f[v]
			norm += r3.Norm2(f[v])
		}
		if math.Sqrt(norm) < s.Tol {
			return it
		}
		g.Translate(s.Step, delta)
	}
	return s.MaxIter
}

// Smoother returns the relaxation settings carried by m.
func (m *Mutator) Smoother() Smoother {
	return Smoother{Step: m.SmoothingStep, Tol: m.SmoothingTol, MaxIter: m.SmoothingMaxIter}
}
