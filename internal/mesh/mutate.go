package mesh

// FlipEdge rotates an interior edge to join the two opposite vertices.
// It refuses flips that would duplicate an existing edge or leave an
// endpoint without a proper fan.
func (m *Mesh) FlipEdge(e int) bool {
	if !m.EdgeAlive(e) || m.IsBoundaryEdge(e) {
		return false
	}
	h := m.eHe[e]
	t := m.twin[h]
	hn, hp := m.next[h], m.next[m.next[h]]
	tn, tp := m.next[t], m.next[m.next[t]]
	a, b := m.vert[h], m.vert[t]
	c, d := m.vert[hp], m.vert[tp]
	if c == d || m.EdgeBetween(c, d) >= 0 {
		return false
	}
	if !m.canLoseNeighbor(a) || !m.canLoseNeighbor(b) {
		return false
	}
	f0, f1 := m.face[h], m.face[t]

	// f0 = (a, d, c), f1 = (b, c, d)
	m.vert[h], m.vert[t] = d, c
	m.next[tn], m.next[h], m.next[hp] = h, hp, tn
	m.next[hn], m.next[t], m.next[tp] = t, tp, hn
	m.face[tn], m.face[h], m.face[hp] = f0, f0, f0
	m.face[hn], m.face[t], m.face[tp] = f1, f1, f1
	m.fHe[f0], m.fHe[f1] = h, t

	if m.vHe[a] == h {
		m.vHe[a] = tn
	}
	if m.vHe[b] == t {
		m.vHe[b] = hn
	}
	return true
}

// canLoseNeighbor reports whether v keeps a valid fan after one of its
// interior edges is flipped away: three neighbours for an interior vertex,
// one face for a boundary vertex.
func (m *Mesh) canLoseNeighbor(v int) bool {
	if m.IsBoundaryVertex(v) {
		return m.Degree(v) >= 3
	}
	return m.Degree(v) >= 4
}

// SplitEdge inserts a vertex on e and re-triangulates the incident faces.
// The new vertex is appended to the arena; its position is the caller's
// business.
func (m *Mesh) SplitEdge(e int) (int, bool) {
	if !m.EdgeAlive(e) {
		return -1, false
	}
	h := m.eHe[e]
	if m.face[h] < 0 {
		h = m.twin[h]
	}
	t := m.twin[h]
	b := m.vert[t]
	hn, hp := m.next[h], m.next[m.next[h]]
	c := m.vert[hp]
	f0 := m.face[h]
	boundary := m.face[t] < 0

	var bp int
	if boundary {
		bp = m.boundaryPrev(t)
	}

	mv := m.newVertex()
	e1 := m.newEdge(mv, b)
	h1, t1 := m.eHe[e1], m.twin[m.eHe[e1]]
	e2 := m.newEdge(mv, c)
	h2, t2 := m.eHe[e2], m.twin[m.eHe[e2]]

	// f0 = (a, m, c), fA = (m, b, c)
	fA := m.newFace()
	m.vert[t] = mv
	m.next[h], m.next[h2], m.next[hp] = h2, hp, h
	m.face[h], m.face[h2], m.face[hp] = f0, f0, f0
	m.next[h1], m.next[hn], m.next[t2] = hn, t2, h1
	m.face[h1], m.face[hn], m.face[t2] = fA, fA, fA
	m.fHe[f0], m.fHe[fA] = h, h1

	if boundary {
		tnext := m.next[t]
		m.next[bp] = t1
		m.next[t1] = t
		m.next[t] = tnext
		m.face[t1] = -1
		m.vHe[mv] = t
	} else {
		tn, tp := m.next[t], m.next[m.next[t]]
		d := m.vert[tp]
		f1 := m.face[t]
		e3 := m.newEdge(mv, d)
		h3, t3 := m.eHe[e3], m.twin[m.eHe[e3]]
		// f1 = (b, m, d), fB = (m, a, d)
		fB := m.newFace()
		m.next[t1], m.next[h3], m.next[tp] = h3, tp, t1
		m.face[t1], m.face[h3], m.face[tp] = f1, f1, f1
		m.next[t], m.next[tn], m.next[t3] = tn, t3, t
		m.face[t], m.face[tn], m.face[t3] = fB, fB, fB
		m.fHe[f1], m.fHe[fB] = t1, t
		m.vHe[mv] = h1
	}

	if m.vHe[b] == t {
		m.vHe[b] = t1
	}
	return mv, true
}

// boundaryPrev returns the boundary half-edge whose next is h.
func (m *Mesh) boundaryPrev(h int) int {
	for o := range m.Outgoing(m.vert[h]) {
		in := m.twin[o]
		if m.face[in] < 0 && m.next[in] == h {
			return in
		}
	}
	return -1
}

// CollapseEdge merges the endpoints of e. The tail vertex survives unless
// only the tip lies on the boundary. It returns the surviving and removed
// vertices.
func (m *Mesh) CollapseEdge(e int) (survivor, removed int, ok bool) {
	if !m.EdgeAlive(e) {
		return -1, -1, false
	}
	h := m.eHe[e]
	if m.face[h] < 0 {
		h = m.twin[h]
	}
	boundaryEdge := m.face[m.twin[h]] < 0
	a, b := m.vert[h], m.Tip(h)
	aB, bB := m.IsBoundaryVertex(a), m.IsBoundaryVertex(b)
	if !boundaryEdge {
		if aB && bB {
			return -1, -1, false
		}
		if bB && !aB {
			h = m.twin[h]
			a, b = b, a
		}
	}
	t := m.twin[h]
	hn, hp := m.next[h], m.next[m.next[h]]
	c := m.vert[hp]

	var d = -1
	var tn, tp int
	if !boundaryEdge {
		tn, tp = m.next[t], m.next[m.next[t]]
		d = m.vert[tp]
	}

	if !m.linkCondition(a, b, c, d) {
		return -1, -1, false
	}
	if m.Degree(c) <= 3 || (d >= 0 && m.Degree(d) <= 3) {
		return -1, -1, false
	}
	if boundaryEdge && m.NumFaces() <= 1 {
		return -1, -1, false
	}

	// every half-edge leaving b now leaves a
	var fromB []int
	for o := range m.Outgoing(b) {
		fromB = append(fromB, o)
	}

	var bp, bn int
	if boundaryEdge {
		bp = m.boundaryPrev(t)
		bn = m.next[t]
	}
	aOut, cOut := m.twin[hp], m.twin[hn]
	dOut := -1
	if !boundaryEdge {
		dOut = m.twin[tn]
	}

	m.mergeTwins(hp, hn)
	if !boundaryEdge {
		m.mergeTwins(tn, tp)
	}

	for _, o := range fromB {
		if !m.hDead[o] {
			m.vert[o] = a
		}
	}

	m.killFace(m.face[h])
	m.killHalfedge(h)
	m.killHalfedge(hn)
	m.killHalfedge(hp)
	if boundaryEdge {
		m.next[bp] = bn
		m.killHalfedge(t)
	} else {
		m.killFace(m.face[t])
		m.killHalfedge(t)
		m.killHalfedge(tn)
		m.killHalfedge(tp)
	}
	m.killEdge(e)
	m.killVertex(b)

	m.vHe[a], m.vHe[c] = aOut, cOut
	m.repairVertex(a)
	m.repairVertex(c)
	if d >= 0 {
		m.vHe[d] = dOut
		m.repairVertex(d)
	}
	return a, b, true
}

// linkCondition reports whether the common neighbours of a and b are
// exactly the apexes of the faces on the collapsed edge.
func (m *Mesh) linkCondition(a, b, c, d int) bool {
	nb := make(map[int]bool)
	for v := range m.Neighbors(b) {
		nb[v] = true
	}
	for v := range m.Neighbors(a) {
		if nb[v] && v != c && v != d {
			return false
		}
	}
	return true
}

// mergeTwins removes the edges of face half-edges x and y and pairs their
// outer twins on the edge of x.
func (m *Mesh) mergeTwins(x, y int) {
	ox, oy := m.twin[x], m.twin[y]
	ex, ey := m.edge[x], m.edge[y]
	m.twin[ox], m.twin[oy] = oy, ox
	m.edge[oy] = ex
	m.eHe[ex] = ox
	m.killEdge(ey)
}

// repairVertex re-points v at a live outgoing half-edge, preferring a
// boundary one.
func (m *Mesh) repairVertex(v int) {
	if m.vDead[v] {
		return
	}
	h := m.vHe[v]
	if h < 0 || m.hDead[h] || m.vert[h] != v {
		h = -1
		for o := range m.vert {
			if !m.hDead[o] && m.vert[o] == v {
				h = o
				break
			}
		}
		m.vHe[v] = h
	}
	if h < 0 {
		return
	}
	for o := range m.Outgoing(v) {
		if m.face[o] < 0 {
			m.vHe[v] = o
			return
		}
	}
}

func (m *Mesh) killHalfedge(h int) {
	m.hDead[h] = true
}

func (m *Mesh) killEdge(e int) {
	if !m.eDead[e] {
		m.eDead[e] = true
		m.nDeadE++
	}
}

func (m *Mesh) killFace(f int) {
	if !m.fDead[f] {
		m.fDead[f] = true
		m.nDeadF++
	}
}

func (m *Mesh) killVertex(v int) {
	if !m.vDead[v] {
		m.vDead[v] = true
		m.nDeadV++
	}
}

// Remap maps old arena indices to compacted ones; removed elements map to -1.
type Remap struct {
	Vertex []int
	Edge   []int
	Face   []int
}

// Compact removes tombstoned elements and renumbers the rest in order.
func (m *Mesh) Compact() Remap {
	r := Remap{
		Vertex: squeeze(m.vDead),
		Edge:   squeeze(m.eDead),
		Face:   squeeze(m.fDead),
	}
	hmap := squeeze(m.hDead)

	nh := 0
	for _, i := range hmap {
		if i >= 0 {
			nh++
		}
	}
	next := make([]int, nh)
	twin := make([]int, nh)
	vert := make([]int, nh)
	edge := make([]int, nh)
	face := make([]int, nh)
	for h, nhIdx := range hmap {
		if nhIdx < 0 {
			continue
		}
		next[nhIdx] = hmap[m.next[h]]
		twin[nhIdx] = hmap[m.twin[h]]
		vert[nhIdx] = r.Vertex[m.vert[h]]
		edge[nhIdx] = r.Edge[m.edge[h]]
		if m.face[h] >= 0 {
			face[nhIdx] = r.Face[m.face[h]]
		} else {
			face[nhIdx] = -1
		}
	}

	m.vHe = remapOwners(m.vHe, r.Vertex, hmap)
	m.eHe = remapOwners(m.eHe, r.Edge, hmap)
	m.fHe = remapOwners(m.fHe, r.Face, hmap)
	m.next, m.twin, m.vert, m.edge, m.face = next, twin, vert, edge, face
	m.vDead = make([]bool, len(m.vHe))
	m.eDead = make([]bool, len(m.eHe))
	m.fDead = make([]bool, len(m.fHe))
	m.hDead = make([]bool, nh)
	m.nDeadV, m.nDeadE, m.nDeadF = 0, 0, 0
	return r
}

func squeeze(dead []bool) []int {
	out := make([]int, len(dead))
	n := 0
	for i, d := range dead {
		if d {
			out[i] = -1
			continue
		}
		out[i] = n
		n++
	}
	return out
}

func remapOwners(owner, elemMap, hmap []int) []int {
	n := 0
	for _, i := range elemMap {
		if i >= 0 {
			n++
		}
	}
	out := make([]int, n)
	for old, nw := range elemMap {
		if nw >= 0 {
			out[nw] = hmap[owner[old]]
		}
	}
	return out
}

// RemapField returns src reindexed through a Remap slice.
func RemapField[T any](src []T, remap []int) []T {
	n := 0
	for _, i := range remap {
		if i >= 0 {
			n++
		}
	}
	out := make([]T, n)
	for old, nw := range remap {
		if nw >= 0 && old < len(src) {
			out[nw] = src[old]
		}
	}
	return out
}
