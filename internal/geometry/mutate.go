package geometry

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/mesh"
)

func (g *Geometry) FlipEdge(e int) bool {
	ok := g.mesh.FlipEdge(e)
	if ok {
		g.Refresh()
	}
	return ok
}

// SplitEdge splits e at its midpoint and returns the new vertex.
func (g *Geometry) SplitEdge(e int) (int, bool) {
	i, j := g.mesh.EdgeVertices(e)
	mid := r3.Scale(0.5, r3.Add(g.pos[i], g.pos[j]))
	v, ok := g.mesh.SplitEdge(e)
	if !ok {
		return -1, false
	}
	g.pos = append(g.pos, mid)
	g.Refresh()
	return v, true
}

// CollapseEdge merges the endpoints of e. The survivor moves to the edge
// midpoint, or stays put when it alone lies on the boundary.
func (g *Geometry) CollapseEdge(e int) (survivor, removed int, ok bool) {
	i, j := g.mesh.EdgeVertices(e)
	bi, bj := g.mesh.IsBoundaryVertex(i), g.mesh.IsBoundaryVertex(j)
	pi, pj := g.pos[i], g.pos[j]
	survivor, removed, ok = g.mesh.CollapseEdge(e)
	if !ok {
		return -1, -1, false
	}
	switch {
	case bi == bj:
		g.pos[survivor] = r3.Scale(0.5, r3.Add(pi, pj))
	case bi:
		g.pos[survivor] = pi
	default:
		g.pos[survivor] = pj
	}
	g.Refresh()
	return survivor, removed, true
}

// Compact squeezes the mesh arena and the position slice together.
func (g *Geometry) Compact() mesh.Remap {
	r := g.mesh.Compact()
	g.pos = mesh.RemapField(g.pos, r.Vertex)
	g.Refresh()
	return r
}
