package geometry

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

type vertexPoint struct {
	r3.Vec
	id int
}

func (p vertexPoint) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return p.X
	case 1:
		return p.Y
	}
	return p.Z
}

func (p vertexPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coord(d) - c.(vertexPoint).coord(d)
}

func (p vertexPoint) Dims() int { return 3 }

func (p vertexPoint) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(vertexPoint).Vec))
}

type vertexPoints []vertexPoint

func (p vertexPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p vertexPoints) Len() int                      { return len(p) }
func (p vertexPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p vertexPoints) Pivot(d kdtree.Dim) int {
	pl := vertexPlane{Dim: d, vertexPoints: p}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

type vertexPlane struct {
	kdtree.Dim
	vertexPoints
}

func (p vertexPlane) Less(i, j int) bool {
	return p.vertexPoints[i].coord(p.Dim) < p.vertexPoints[j].coord(p.Dim)
}
func (p vertexPlane) Swap(i, j int) {
	p.vertexPoints[i], p.vertexPoints[j] = p.vertexPoints[j], p.vertexPoints[i]
}
func (p vertexPlane) Slice(start, end int) kdtree.SortSlicer {
	p.vertexPoints = p.vertexPoints[start:end]
	return p
}

func (g *Geometry) tree() *kdtree.Tree {
	return g.c.kdtree.get(func() *kdtree.Tree {
		pts := make(vertexPoints, 0, g.mesh.NumVertices())
		for v, p := range g.pos {
			if g.mesh.VertexAlive(v) {
				pts = append(pts, vertexPoint{Vec: p, id: v})
			}
		}
		return kdtree.New(pts, false)
	})
}

// NearestVertex returns the live vertex closest to p.
func (g *Geometry) NearestVertex(p r3.Vec) int {
	c, _ := g.tree().Nearest(vertexPoint{Vec: p, id: -1})
	if c == nil {
		return -1
	}
	return c.(vertexPoint).id
}

// Within returns the vertices whose distance to p is at most radius, in
// increasing distance order.
func (g *Geometry) Within(p r3.Vec, radius float64) []int {
	keep := kdtree.NewDistKeeper(radius * radius)
	g.tree().NearestSet(keep, vertexPoint{Vec: p, id: -1})
	found := make([]kdtree.ComparableDist, 0, keep.Len())
	for _, cd := range keep.Heap {
		if cd.Comparable != nil {
			found = append(found, cd)
		}
	}
	slices.SortFunc(found, func(a, b kdtree.ComparableDist) int {
		return cmp.Compare(a.Dist, b.Dist)
	})
	out := make([]int, len(found))
	for i, cd := range found {
		out[i] = cd.Comparable.(vertexPoint).id
	}
	return out
}
