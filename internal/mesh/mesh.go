// Package mesh implements a manifold triangle mesh as a half-edge arena.
//
// Elements are addressed by integer indices that stay stable while the
// mesh is mutated. Flips, splits and collapses tombstone the elements they
// remove; Compact squeezes the arena and returns the index remapping that
// callers apply to their per-element data in one step.
package mesh

import (
	"fmt"
	"iter"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// Mesh is a half-edge triangle mesh. Boundary half-edges have face -1 and
// are linked by next around each boundary loop.
type Mesh struct {
	next []int
	twin []int
	vert []int
	edge []int
	face []int

	vHe []int
	eHe []int
	fHe []int

	vDead []bool
	eDead []bool
	fDead []bool
	hDead []bool

	nDeadV, nDeadE, nDeadF int
}

// FromFaces builds a mesh over nVertices vertices from consistently oriented
// triangles.
func FromFaces(nVertices int, faces [][3]int) (*Mesh, error) {
	if nVertices <= 0 || len(faces) == 0 {
		return nil, dynamo.Topologyf("empty mesh (%d vertices, %d faces)", nVertices, len(faces))
	}

	m := &Mesh{
		vHe:   make([]int, nVertices),
		vDead: make([]bool, nVertices),
	}
	for i := range m.vHe {
		m.vHe[i] = -1
	}

	type key struct{ u, v int }
	directed := make(map[key]int, 3*len(faces))

	for f, tri := range faces {
		for _, idx := range tri {
			if idx < 0 || idx >= nVertices {
				return nil, dynamo.Topologyf("face %d references vertex %d out of range", f, idx)
			}
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
			return nil, dynamo.Topologyf("face %d is degenerate", f)
		}

		m.fHe = append(m.fHe, -1)
		m.fDead = append(m.fDead, false)

		var hs [3]int
		for k := 0; k < 3; k++ {
			u, v := tri[k], tri[(k+1)%3]
			if _, dup := directed[key{u, v}]; dup {
				return nil, dynamo.Topologyf("edge %d-%d is non-manifold or inconsistently oriented", u, v)
			}
			var h int
			if o, ok := directed[key{v, u}]; ok {
				h = m.twin[o]
			} else {
				h = m.eHe[m.newEdge(u, v)]
			}
			m.vert[h] = u
			m.face[h] = f
			directed[key{u, v}] = h
			hs[k] = h
			m.vHe[u] = h
		}
		for k := 0; k < 3; k++ {
			m.next[hs[k]] = hs[(k+1)%3]
		}
		m.fHe[f] = hs[0]
	}

	boundaryOut := make(map[int]int)
	for h := range m.next {
		if m.face[h] >= 0 {
			continue
		}
		u := m.vert[h]
		if _, dup := boundaryOut[u]; dup {
			return nil, dynamo.Topologyf("vertex %d is a non-manifold boundary vertex", u)
		}
		boundaryOut[u] = h
	}
	for h := range m.next {
		if m.face[h] >= 0 {
			continue
		}
		m.next[h] = boundaryOut[m.Tip(h)]
	}
	for v, h := range boundaryOut {
		m.vHe[v] = h
	}

	for v := range m.vHe {
		if m.vHe[v] < 0 {
			return nil, dynamo.Topologyf("vertex %d is isolated", v)
		}
	}
	if err := m.checkFans(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mesh) newEdge(u, v int) int {
	e := len(m.eHe)
	h, t := len(m.next), len(m.next)+1
	m.next = append(m.next, -1, -1)
	m.twin = append(m.twin, t, h)
	m.vert = append(m.vert, u, v)
	m.edge = append(m.edge, e, e)
	m.face = append(m.face, -1, -1)
	m.hDead = append(m.hDead, false, false)
	m.eHe = append(m.eHe, h)
	m.eDead = append(m.eDead, false)
	return e
}

func (m *Mesh) newVertex() int {
	m.vHe = append(m.vHe, -1)
	m.vDead = append(m.vDead, false)
	return len(m.vHe) - 1
}

func (m *Mesh) newFace() int {
	m.fHe = append(m.fHe, -1)
	m.fDead = append(m.fDead, false)
	return len(m.fHe) - 1
}

// checkFans verifies that rotating around every vertex visits all of its
// outgoing half-edges, i.e. every vertex link is a single fan.
func (m *Mesh) checkFans() error {
	count := make([]int, len(m.vHe))
	for h := range m.next {
		if !m.hDead[h] {
			count[m.vert[h]]++
		}
	}
	for v := range m.vHe {
		if m.vDead[v] {
			continue
		}
		if m.Degree(v) != count[v] {
			return dynamo.Topologyf("vertex %d is non-manifold", v)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	c := *m
	c.next = append([]int(nil), m.next...)
	c.twin = append([]int(nil), m.twin...)
	c.vert = append([]int(nil), m.vert...)
	c.edge = append([]int(nil), m.edge...)
	c.face = append([]int(nil), m.face...)
	c.vHe = append([]int(nil), m.vHe...)
	c.eHe = append([]int(nil), m.eHe...)
	c.fHe = append([]int(nil), m.fHe...)
	c.vDead = append([]bool(nil), m.vDead...)
	c.eDead = append([]bool(nil), m.eDead...)
	c.fDead = append([]bool(nil), m.fDead...)
	c.hDead = append([]bool(nil), m.hDead...)
	return &c
}

func (m *Mesh) NumVertices() int  { return len(m.vHe) - m.nDeadV }
func (m *Mesh) NumEdges() int     { return len(m.eHe) - m.nDeadE }
func (m *Mesh) NumFaces() int     { return len(m.fHe) - m.nDeadF }
func (m *Mesh) NumHalfedges() int { return 2 * m.NumEdges() }

// VertexSlots is the arena size, including tombstoned vertices.
func (m *Mesh) VertexSlots() int { return len(m.vHe) }
func (m *Mesh) EdgeSlots() int   { return len(m.eHe) }
func (m *Mesh) FaceSlots() int   { return len(m.fHe) }

// Compacted reports whether the arena holds no tombstones.
func (m *Mesh) Compacted() bool { return m.nDeadV == 0 && m.nDeadE == 0 && m.nDeadF == 0 }

func (m *Mesh) Next(h int) int   { return m.next[h] }
func (m *Mesh) Twin(h int) int   { return m.twin[h] }
func (m *Mesh) Vertex(h int) int { return m.vert[h] }
func (m *Mesh) Tip(h int) int    { return m.vert[m.twin[h]] }
func (m *Mesh) Edge(h int) int   { return m.edge[h] }
func (m *Mesh) Face(h int) int   { return m.face[h] }

func (m *Mesh) VertexHalfedge(v int) int { return m.vHe[v] }
func (m *Mesh) EdgeHalfedge(e int) int   { return m.eHe[e] }
func (m *Mesh) FaceHalfedge(f int) int   { return m.fHe[f] }

func (m *Mesh) VertexAlive(v int) bool { return v >= 0 && v < len(m.vHe) && !m.vDead[v] }
func (m *Mesh) EdgeAlive(e int) bool   { return e >= 0 && e < len(m.eHe) && !m.eDead[e] }
func (m *Mesh) FaceAlive(f int) bool   { return f >= 0 && f < len(m.fHe) && !m.fDead[f] }

func (m *Mesh) IsBoundaryHalfedge(h int) bool { return m.face[h] < 0 }

func (m *Mesh) IsBoundaryEdge(e int) bool {
	h := m.eHe[e]
	return m.face[h] < 0 || m.face[m.twin[h]] < 0
}

func (m *Mesh) IsBoundaryVertex(v int) bool {
	for h := range m.Outgoing(v) {
		if m.face[h] < 0 {
			return true
		}
	}
	return false
}

func (m *Mesh) HasBoundary() bool {
	for h := range m.face {
		if !m.hDead[h] && m.face[h] < 0 {
			return true
		}
	}
	return false
}

// Outgoing yields the half-edges leaving v, boundary half-edges included.
func (m *Mesh) Outgoing(v int) iter.Seq[int] {
	return func(yield func(int) bool) {
		start := m.vHe[v]
		if start < 0 {
			return
		}
		h := start
		for {
			if !yield(h) {
				return
			}
			h = m.next[m.twin[h]]
			if h == start {
				return
			}
		}
	}
}

// Neighbors yields the vertices adjacent to v.
func (m *Mesh) Neighbors(v int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for h := range m.Outgoing(v) {
			if !yield(m.Tip(h)) {
				return
			}
		}
	}
}

// VertexFaces yields the faces incident to v.
func (m *Mesh) VertexFaces(v int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for h := range m.Outgoing(v) {
			if m.face[h] >= 0 && !yield(m.face[h]) {
				return
			}
		}
	}
}

func (m *Mesh) Degree(v int) int {
	n := 0
	for range m.Outgoing(v) {
		n++
	}
	return n
}

func (m *Mesh) FaceHalfedges(f int) [3]int {
	h := m.fHe[f]
	return [3]int{h, m.next[h], m.next[m.next[h]]}
}

func (m *Mesh) FaceVertices(f int) [3]int {
	hs := m.FaceHalfedges(f)
	return [3]int{m.vert[hs[0]], m.vert[hs[1]], m.vert[hs[2]]}
}

func (m *Mesh) EdgeVertices(e int) (int, int) {
	h := m.eHe[e]
	return m.vert[h], m.Tip(h)
}

// Triangles returns the vertex triples of all live faces in face order.
func (m *Mesh) Triangles() [][3]int {
	out := make([][3]int, 0, m.NumFaces())
	for f := range m.fHe {
		if !m.fDead[f] {
			out = append(out, m.FaceVertices(f))
		}
	}
	return out
}

// EdgeBetween returns the edge joining u and v, or -1.
func (m *Mesh) EdgeBetween(u, v int) int {
	for h := range m.Outgoing(u) {
		if m.Tip(h) == v {
			return m.edge[h]
		}
	}
	return -1
}

// BoundaryLoops returns the half-edges of every boundary loop.
func (m *Mesh) BoundaryLoops() [][]int {
	seen := make([]bool, len(m.next))
	var loops [][]int
	for h := range m.next {
		if m.hDead[h] || m.face[h] >= 0 || seen[h] {
			continue
		}
		var loop []int
		for c := h; !seen[c]; c = m.next[c] {
			seen[c] = true
			loop = append(loop, c)
		}
		loops = append(loops, loop)
	}
	return loops
}

func (m *Mesh) EulerCharacteristic() int {
	return m.NumVertices() - m.NumEdges() + m.NumFaces()
}

func (m *Mesh) Genus() int {
	return (2 - m.EulerCharacteristic() - len(m.BoundaryLoops())) / 2
}

// Validate checks the internal pointer invariants of the arena.
func (m *Mesh) Validate() error {
	for h := range m.next {
		if m.hDead[h] {
			continue
		}
		if m.twin[m.twin[h]] != h {
			return fmt.Errorf("mesh: half-edge %d twin mismatch", h)
		}
		if m.edge[m.twin[h]] != m.edge[h] {
			return fmt.Errorf("mesh: half-edge %d edge mismatch", h)
		}
		if m.hDead[m.next[h]] {
			return fmt.Errorf("mesh: half-edge %d points to dead next", h)
		}
		if m.Tip(h) != m.vert[m.next[h]] {
			return fmt.Errorf("mesh: half-edge %d next does not start at its tip", h)
		}
		if f := m.face[h]; f >= 0 {
			if m.fDead[f] {
				return fmt.Errorf("mesh: half-edge %d in dead face %d", h, f)
			}
			if m.next[m.next[m.next[h]]] != h {
				return fmt.Errorf("mesh: face %d is not a triangle", f)
			}
		}
		if m.vDead[m.vert[h]] {
			return fmt.Errorf("mesh: half-edge %d leaves dead vertex", h)
		}
	}
	for v, h := range m.vHe {
		if m.vDead[v] {
			continue
		}
		if h < 0 || m.hDead[h] || m.vert[h] != v {
			return fmt.Errorf("mesh: vertex %d has invalid half-edge %d", v, h)
		}
	}
	for f, h := range m.fHe {
		if !m.fDead[f] && (m.hDead[h] || m.face[h] != f) {
			return fmt.Errorf("mesh: face %d has invalid half-edge %d", f, h)
		}
	}
	for e, h := range m.eHe {
		if !m.eDead[e] && (m.hDead[h] || m.edge[h] != e) {
			return fmt.Errorf("mesh: edge %d has invalid half-edge %d", e, h)
		}
	}
	return m.checkFans()
}
