package geometry

import (
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/spatial/r3"
)

// edgeGraph returns the mesh edge graph weighted by edge length.
func (g *Geometry) edgeGraph() *simple.WeightedUndirectedGraph {
	eg := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for v := 0; v < g.mesh.VertexSlots(); v++ {
		if g.mesh.VertexAlive(v) {
			eg.AddNode(simple.Node(v))
		}
	}
	lengths := g.EdgeLengths()
	for e := 0; e < g.mesh.EdgeSlots(); e++ {
		if !g.mesh.EdgeAlive(e) {
			continue
		}
		i, j := g.mesh.EdgeVertices(e)
		eg.SetWeightedEdge(eg.NewWeightedEdge(simple.Node(i), simple.Node(j), lengths[e]))
	}
	return eg
}

// GeodesicDistance returns the shortest edge-path distance from source to
// every vertex. Tombstoned and unreachable vertices get +Inf.
func (g *Geometry) GeodesicDistance(source int) []float64 {
	eg := g.edgeGraph()
	sp := path.DijkstraFrom(simple.Node(source), eg)
	out := make([]float64, g.mesh.VertexSlots())
	for v := range out {
		out[v] = sp.WeightTo(int64(v))
	}
	return out
}

// GeodesicDistanceFromPoint measures distances from a point lying on face f.
// The point is joined to the face corners by straight segments.
func (g *Geometry) GeodesicDistanceFromPoint(p r3.Vec, f int) []float64 {
	eg := g.edgeGraph()
	src := simple.Node(g.mesh.VertexSlots())
	eg.AddNode(src)
	for _, v := range g.mesh.FaceVertices(f) {
		eg.SetWeightedEdge(eg.NewWeightedEdge(src, simple.Node(v), r3.Norm(r3.Sub(p, g.pos[v]))))
	}
	sp := path.DijkstraFrom(src, eg)
	out := make([]float64, g.mesh.VertexSlots())
	for v := range out {
		out[v] = sp.WeightTo(int64(v))
	}
	return out
}

// ClosestFace returns the live face whose centroid is nearest p.
func (g *Geometry) ClosestFace(p r3.Vec) int {
	best, bestD := -1, math.Inf(1)
	for f := 0; f < g.mesh.FaceSlots(); f++ {
		if !g.mesh.FaceAlive(f) {
			continue
		}
		vs := g.mesh.FaceVertices(f)
		c := r3.Scale(1.0/3, r3.Add(g.pos[vs[0]], r3.Add(g.pos[vs[1]], g.pos[vs[2]])))
		if d := r3.Norm2(r3.Sub(c, p)); d < bestD {
			best, bestD = f, d
		}
	}
	return best
}
