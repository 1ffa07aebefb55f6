// Package geometry computes discrete differential quantities on a triangle
// mesh with vertex positions.
//
// Every derived quantity is cached behind its own validity flag. Any write
// through SetPosition, SetPositions, Translate, the mutation wrappers or
// Refresh invalidates all of them, so a reader never observes a value
// computed before the latest mutation. Per-element slices are indexed by
// arena slot; tombstoned slots hold zero values.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/mesh"
)

type cached[T any] struct {
	valid bool
	val   T
}

func (c *cached[T]) get(compute func() T) T {
	if !c.valid {
		c.val = compute()
		c.valid = true
	}
	return c.val
}

type caches struct {
	faceAreas      cached[[]float64]
	faceNormals    cached[[]r3.Vec]
	edgeLengths    cached[[]float64]
	cornerAngles   cached[[]float64]
	cotanWeights   cached[[]float64]
	dualAreas      cached[[]float64]
	vertexNormals  cached[[]r3.Vec]
	volumeGradient cached[[]r3.Vec]
	laplacian      cached[*Laplacian]
	meanCurvature  cached[[]float64]
	gaussian       cached[[]float64]
	dihedral       cached[[]float64]
	lcr            cached[[]float64]
	kdtree         cached[*kdtree.Tree]
}

// Geometry couples a mesh with vertex positions.
type Geometry struct {
	mesh *mesh.Mesh
	pos  []r3.Vec
	c    caches
}

func New(m *mesh.Mesh, positions []r3.Vec) (*Geometry, error) {
	if len(positions) != m.VertexSlots() {
		return nil, fmt.Errorf("geometry: %d positions for %d vertex slots", len(positions), m.VertexSlots())
	}
	return &Geometry{mesh: m, pos: positions}, nil
}

// Clone returns a deep copy with cold caches.
func (g *Geometry) Clone() *Geometry {
	return &Geometry{mesh: g.mesh.Clone(), pos: append([]r3.Vec(nil), g.pos...)}
}

func (g *Geometry) Mesh() *mesh.Mesh { return g.mesh }

// Positions returns the position slice. Callers must not write into it;
// use SetPosition or Translate instead.
func (g *Geometry) Positions() []r3.Vec { return g.pos }

func (g *Geometry) Position(v int) r3.Vec { return g.pos[v] }

func (g *Geometry) SetPosition(v int, p r3.Vec) {
	g.pos[v] = p
	g.Refresh()
}

// SetPositions copies p into the position slice.
func (g *Geometry) SetPositions(p []r3.Vec) {
	copy(g.pos, p)
	g.Refresh()
}

// Translate moves every vertex by alpha*delta.
func (g *Geometry) Translate(alpha float64, delta []r3.Vec) {
	for i := range g.pos {
		g.pos[i] = r3.Add(g.pos[i], r3.Scale(alpha, delta[i]))
	}
	g.Refresh()
}

// ReplaceMesh swaps in new connectivity and positions.
func (g *Geometry) ReplaceMesh(m *mesh.Mesh, positions []r3.Vec) error {
	if len(positions) != m.VertexSlots() {
		return fmt.Errorf("geometry: %d positions for %d vertex slots", len(positions), m.VertexSlots())
	}
	g.mesh, g.pos = m, positions
	g.Refresh()
	return nil
}

// Refresh invalidates every cached quantity.
func (g *Geometry) Refresh() {
	g.c = caches{}
}

func (g *Geometry) edgeVector(h int) r3.Vec {
	return r3.Sub(g.pos[g.mesh.Tip(h)], g.pos[g.mesh.Vertex(h)])
}

// EdgeLength computes the length of edge e from the current positions.
func (g *Geometry) EdgeLength(e int) float64 {
	return r3.Norm(g.edgeVector(g.mesh.EdgeHalfedge(e)))
}

// FaceArea computes the area of face f from the current positions.
func (g *Geometry) FaceArea(f int) float64 {
	return 0.5 * r3.Norm(g.faceCross(f))
}

// FaceNormal computes the unit normal of face f.
func (g *Geometry) FaceNormal(f int) r3.Vec {
	c := g.faceCross(f)
	n := r3.Norm(c)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, c)
}

func (g *Geometry) faceCross(f int) r3.Vec {
	vs := g.mesh.FaceVertices(f)
	a, b, c := g.pos[vs[0]], g.pos[vs[1]], g.pos[vs[2]]
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// OppositeAngle returns the interior angle opposite half-edge h, or 0 for
// a boundary half-edge.
func (g *Geometry) OppositeAngle(h int) float64 {
	if g.mesh.IsBoundaryHalfedge(h) {
		return 0
	}
	m := g.mesh
	w := m.Vertex(m.Next(m.Next(h)))
	a := r3.Sub(g.pos[m.Vertex(h)], g.pos[w])
	b := r3.Sub(g.pos[m.Tip(h)], g.pos[w])
	return math.Atan2(r3.Norm(r3.Cross(a, b)), r3.Dot(a, b))
}

// Cotan returns the cotangent of the angle opposite half-edge h.
func (g *Geometry) Cotan(h int) float64 {
	if g.mesh.IsBoundaryHalfedge(h) {
		return 0
	}
	m := g.mesh
	w := m.Vertex(m.Next(m.Next(h)))
	a := r3.Sub(g.pos[m.Vertex(h)], g.pos[w])
	b := r3.Sub(g.pos[m.Tip(h)], g.pos[w])
	s := r3.Norm(r3.Cross(a, b))
	if s == 0 {
		return 0
	}
	return r3.Dot(a, b) / s
}

// DihedralAngle returns the signed bending angle across edge e, positive
// where the surface is convex, zero on the boundary.
func (g *Geometry) DihedralAngle(e int) float64 {
	if g.mesh.IsBoundaryEdge(e) {
		return 0
	}
	h := g.mesh.EdgeHalfedge(e)
	n1 := g.FaceNormal(g.mesh.Face(h))
	n2 := g.FaceNormal(g.mesh.Face(g.mesh.Twin(h)))
	dir := g.edgeVector(h)
	l := r3.Norm(dir)
	if l == 0 {
		return 0
	}
	return math.Atan2(r3.Dot(r3.Scale(1/l, dir), r3.Cross(n1, n2)), r3.Dot(n1, n2))
}

func (g *Geometry) FaceAreas() []float64 {
	return g.c.faceAreas.get(func() []float64 {
		out := make([]float64, g.mesh.FaceSlots())
		for f := range out {
			if g.mesh.FaceAlive(f) {
				out[f] = g.FaceArea(f)
			}
		}
		return out
	})
}

func (g *Geometry) FaceNormals() []r3.Vec {
	return g.c.faceNormals.get(func() []r3.Vec {
		out := make([]r3.Vec, g.mesh.FaceSlots())
		for f := range out {
			if g.mesh.FaceAlive(f) {
				out[f] = g.FaceNormal(f)
			}
		}
		return out
	})
}

func (g *Geometry) EdgeLengths() []float64 {
	return g.c.edgeLengths.get(func() []float64 {
		out := make([]float64, g.mesh.EdgeSlots())
		for e := range out {
			if g.mesh.EdgeAlive(e) {
				out[e] = g.EdgeLength(e)
			}
		}
		return out
	})
}

// CornerAngles is indexed by half-edge and holds the angle opposite it.
func (g *Geometry) CornerAngles() []float64 {
	return g.c.cornerAngles.get(func() []float64 {
		out := make([]float64, 2*g.mesh.EdgeSlots())
		for e := 0; e < g.mesh.EdgeSlots(); e++ {
			if !g.mesh.EdgeAlive(e) {
				continue
			}
			h := g.mesh.EdgeHalfedge(e)
			t := g.mesh.Twin(h)
			out[h] = g.OppositeAngle(h)
			out[t] = g.OppositeAngle(t)
		}
		return out
	})
}

// EdgeCotanWeights holds (cot α + cot β)/2 per edge.
func (g *Geometry) EdgeCotanWeights() []float64 {
	return g.c.cotanWeights.get(func() []float64 {
		out := make([]float64, g.mesh.EdgeSlots())
		for e := range out {
			if !g.mesh.EdgeAlive(e) {
				continue
			}
			h := g.mesh.EdgeHalfedge(e)
			out[e] = 0.5 * (g.Cotan(h) + g.Cotan(g.mesh.Twin(h)))
		}
		return out
	})
}

// VertexDualAreas is the barycentric lumped mass.
func (g *Geometry) VertexDualAreas() []float64 {
	return g.c.dualAreas.get(func() []float64 {
		fa := g.FaceAreas()
		out := make([]float64, g.mesh.VertexSlots())
		for f, a := range fa {
			if !g.mesh.FaceAlive(f) {
				continue
			}
			for _, v := range g.mesh.FaceVertices(f) {
				out[v] += a / 3
			}
		}
		return out
	})
}

// VertexNormals are angle weighted.
func (g *Geometry) VertexNormals() []r3.Vec {
	return g.c.vertexNormals.get(func() []r3.Vec {
		fn := g.FaceNormals()
		angles := g.CornerAngles()
		out := make([]r3.Vec, g.mesh.VertexSlots())
		for f := range fn {
			if !g.mesh.FaceAlive(f) {
				continue
			}
			for _, h := range g.mesh.FaceHalfedges(f) {
				// the corner opposite h sits at the tail of prev(h)
				w := g.mesh.Vertex(g.mesh.Next(g.mesh.Next(h)))
				out[w] = r3.Add(out[w], r3.Scale(angles[h], fn[f]))
			}
		}
		for v := range out {
			if n := r3.Norm(out[v]); n > 0 {
				out[v] = r3.Scale(1/n, out[v])
			}
		}
		return out
	})
}

// VolumeGradient is the exact gradient of the enclosed volume with respect
// to each vertex position.
func (g *Geometry) VolumeGradient() []r3.Vec {
	return g.c.volumeGradient.get(func() []r3.Vec {
		out := make([]r3.Vec, g.mesh.VertexSlots())
		for f := 0; f < g.mesh.FaceSlots(); f++ {
			if !g.mesh.FaceAlive(f) {
				continue
			}
			vs := g.mesh.FaceVertices(f)
			for k := 0; k < 3; k++ {
				i, j, l := vs[k], vs[(k+1)%3], vs[(k+2)%3]
				out[i] = r3.Add(out[i], r3.Scale(1.0/6, r3.Cross(g.pos[j], g.pos[l])))
			}
		}
		return out
	})
}

func (g *Geometry) CotanLaplacian() *Laplacian {
	return g.c.laplacian.get(func() *Laplacian {
		return newLaplacian(g.mesh, g.EdgeCotanWeights())
	})
}

// VertexMeanCurvatures returns H = (L·x/2)·n / A, positive on a sphere with
// outward normals.
func (g *Geometry) VertexMeanCurvatures() []float64 {
	return g.c.meanCurvature.get(func() []float64 {
		lx := g.CotanLaplacian().ApplyVec(g.pos)
		normals := g.VertexNormals()
		areas := g.VertexDualAreas()
		out := make([]float64, g.mesh.VertexSlots())
		for v := range out {
			if !g.mesh.VertexAlive(v) || areas[v] == 0 {
				continue
			}
			out[v] = 0.5 * r3.Dot(lx[v], normals[v]) / areas[v]
		}
		return out
	})
}

// VertexGaussianCurvatures returns the integrated angle defect per vertex.
func (g *Geometry) VertexGaussianCurvatures() []float64 {
	return g.c.gaussian.get(func() []float64 {
		angles := g.CornerAngles()
		sum := make([]float64, g.mesh.VertexSlots())
		for f := 0; f < g.mesh.FaceSlots(); f++ {
			if !g.mesh.FaceAlive(f) {
				continue
			}
			for _, h := range g.mesh.FaceHalfedges(f) {
				w := g.mesh.Vertex(g.mesh.Next(g.mesh.Next(h)))
				sum[w] += angles[h]
			}
		}
		out := make([]float64, len(sum))
		for v := range out {
			if !g.mesh.VertexAlive(v) {
				continue
			}
			if g.mesh.IsBoundaryVertex(v) {
				out[v] = math.Pi - sum[v]
			} else {
				out[v] = 2*math.Pi - sum[v]
			}
		}
		return out
	})
}

func (g *Geometry) DihedralAngles() []float64 {
	return g.c.dihedral.get(func() []float64 {
		out := make([]float64, g.mesh.EdgeSlots())
		for e := range out {
			if g.mesh.EdgeAlive(e) {
				out[e] = g.DihedralAngle(e)
			}
		}
		return out
	})
}

// LengthCrossRatios holds l_il·l_jk / (l_ki·l_lj) for interior edge ij with
// opposite vertices k and l; boundary edges hold 0.
func (g *Geometry) LengthCrossRatios() []float64 {
	return g.c.lcr.get(func() []float64 {
		lengths := g.EdgeLengths()
		m := g.mesh
		out := make([]float64, m.EdgeSlots())
		for e := range out {
			if !m.EdgeAlive(e) || m.IsBoundaryEdge(e) {
				continue
			}
			h := m.EdgeHalfedge(e)
			t := m.Twin(h)
			jk := lengths[m.Edge(m.Next(h))]
			ki := lengths[m.Edge(m.Next(m.Next(h)))]
			il := lengths[m.Edge(m.Next(t))]
			lj := lengths[m.Edge(m.Next(m.Next(t)))]
			if ki*lj == 0 {
				continue
			}
			out[e] = il * jk / (ki * lj)
		}
		return out
	})
}

func (g *Geometry) Area() float64 {
	sum := 0.0
	for _, a := range g.FaceAreas() {
		sum += a
	}
	return sum
}

// Volume is the signed volume enclosed with respect to the origin.
func (g *Geometry) Volume() float64 {
	vol := 0.0
	for f := 0; f < g.mesh.FaceSlots(); f++ {
		if !g.mesh.FaceAlive(f) {
			continue
		}
		vs := g.mesh.FaceVertices(f)
		vol += r3.Dot(g.pos[vs[0]], r3.Cross(g.pos[vs[1]], g.pos[vs[2]])) / 6
	}
	return vol
}

func (g *Geometry) MinEdgeLength() float64 {
	lengths := g.EdgeLengths()
	minLen := math.Inf(1)
	for e, l := range lengths {
		if g.mesh.EdgeAlive(e) && l < minLen {
			minLen = l
		}
	}
	return minLen
}

func (g *Geometry) MeanEdgeLength() float64 {
	lengths := g.EdgeLengths()
	sum := 0.0
	for e, l := range lengths {
		if g.mesh.EdgeAlive(e) {
			sum += l
		}
	}
	return sum / float64(g.mesh.NumEdges())
}

// MassMatrix returns the lumped vertex mass as a diagonal operator over
// vertex slots.
func (g *Geometry) MassMatrix() *mat.DiagDense {
	areas := g.VertexDualAreas()
	return mat.NewDiagDense(len(areas), append([]float64(nil), areas...))
}

// FaceGradient returns the piecewise-constant gradient of a vertex scalar
// on every face.
func (g *Geometry) FaceGradient(u []float64) []r3.Vec {
	normals := g.FaceNormals()
	areas := g.FaceAreas()
	out := make([]r3.Vec, g.mesh.FaceSlots())
	for f := range out {
		if !g.mesh.FaceAlive(f) || areas[f] == 0 {
			continue
		}
		for _, h := range g.mesh.FaceHalfedges(f) {
			// vertex opposite h contributes along N × e_h
			w := g.mesh.Vertex(g.mesh.Next(g.mesh.Next(h)))
			grad := r3.Cross(normals[f], g.edgeVector(h))
			out[f] = r3.Add(out[f], r3.Scale(u[w]/(2*areas[f]), grad))
		}
	}
	return out
}

// VertexGradient averages FaceGradient over incident faces, weighted by
// face area.
func (g *Geometry) VertexGradient(u []float64) []r3.Vec {
	fg := g.FaceGradient(u)
	areas := g.FaceAreas()
	out := make([]r3.Vec, g.mesh.VertexSlots())
	for v := range out {
		if !g.mesh.VertexAlive(v) {
			continue
		}
		wsum := 0.0
		for f := range g.mesh.VertexFaces(v) {
			out[v] = r3.Add(out[v], r3.Scale(areas[f], fg[f]))
			wsum += areas[f]
		}
		if wsum > 0 {
			out[v] = r3.Scale(1/wsum, out[v])
		}
	}
	return out
}
