// Package remesh decides and applies local connectivity changes that keep
// a simulated triangle mesh well shaped.
//
// A mutation pass flips, then splits, then collapses, each in edge order,
// and ends with one compaction. Per-vertex data registered in a Fields value
// is grown on split and remapped on compaction so that its length always
// matches the vertex count afterwards.
package remesh

import (
	"math"
	"slices"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/mesh"
)

// Mutator holds the criteria of the mutation pass.
type Mutator struct {
	// The pass switches follow membrane.Options and are not configured
	// here.
	IsFlipEdge     bool `yaml:"-"`
	IsSplitEdge    bool `yaml:"-"`
	IsCollapseEdge bool `yaml:"-"`
	IsShiftVertex  bool `yaml:"-"`
	IsSmoothenMesh bool `yaml:"smoothen_mesh"`

	FlipNonDelaunay            bool `yaml:"flip_non_delaunay"`
	FlipNonDelaunayRequireFlat bool `yaml:"flip_non_delaunay_require_flat"`

	SplitLarge          bool `yaml:"split_large"`
	SplitLong           bool `yaml:"split_long"`
	SplitCurved         bool `yaml:"split_curved"`
	SplitSharp          bool `yaml:"split_sharp"`
	SplitFat            bool `yaml:"split_fat"`
	SplitSkinnyDelaunay bool `yaml:"split_skinny_delaunay"`

	CollapseSkinny bool `yaml:"collapse_skinny"`
	CollapseSmall  bool `yaml:"collapse_small"`
	CollapseFlat   bool `yaml:"collapse_flat"`

	MinimumEdgeLength float64 `yaml:"minimum_edge_length"`
	TargetFaceArea    float64 `yaml:"target_face_area"`
	CurvTol           float64 `yaml:"curv_tol"`
	FlatTolerance     float64 `yaml:"flat_tolerance"`

	// TargetEdgeLength is the mean reference edge length used by SplitLong.
	TargetEdgeLength float64 `yaml:"-"`

	SmoothingStep    float64 `yaml:"smoothing_step"`
	SmoothingTol     float64 `yaml:"smoothing_tol"`
	SmoothingMaxIter int     `yaml:"smoothing_max_iter"`
}

func DefaultMutator() Mutator {
	return Mutator{
		MinimumEdgeLength: 0.001,
		TargetFaceArea:    0.001,
		CurvTol:           0.0012,
		FlatTolerance:     0.05,
		SmoothingStep:     1e-4,
		SmoothingTol:      1e-6,
		SmoothingMaxIter:  10,
	}
}

// Active reports whether a pass can change the mesh at all.
func (m *Mutator) Active() bool {
	return m.IsFlipEdge || m.IsSplitEdge || m.IsCollapseEdge || m.IsShiftVertex
}

// Fields are the per-vertex slices a pass keeps in step with the mesh.
type Fields struct {
	scalars []*[]float64
	vectors []*[]r3.Vec
	flags   []*[]bool
}

func (f *Fields) Scalar(p *[]float64) { f.scalars = append(f.scalars, p) }
func (f *Fields) Vector(p *[]r3.Vec)  { f.vectors = append(f.vectors, p) }
func (f *Fields) Flag(p *[]bool)      { f.flags = append(f.flags, p) }

func (f *Fields) clone() Fields {
	return Fields{
		scalars: slices.Clone(f.scalars),
		vectors: slices.Clone(f.vectors),
		flags:   slices.Clone(f.flags),
	}
}

func (f *Fields) interpolate(a, b int) {
	for _, p := range f.scalars {
		*p = append(*p, 0.5*((*p)[a]+(*p)[b]))
	}
	for _, p := range f.vectors {
		*p = append(*p, r3.Scale(0.5, r3.Add((*p)[a], (*p)[b])))
	}
	for _, p := range f.flags {
		*p = append(*p, (*p)[a] && (*p)[b])
	}
}

func (f *Fields) remap(r []int) {
	for _, p := range f.scalars {
		*p = mesh.RemapField(*p, r)
	}
	for _, p := range f.vectors {
		*p = mesh.RemapField(*p, r)
	}
	for _, p := range f.flags {
		*p = mesh.RemapField(*p, r)
	}
}

// Stats summarises one pass.
type Stats struct {
	Flips     int
	Splits    int
	Collapses int
	// Marker flags vertices touched by the pass, indexed after compaction.
	Marker []bool
	Remap  mesh.Remap
}

func (s Stats) Changed() bool { return s.Flips+s.Splits+s.Collapses > 0 }

// Mutate runs one flip, split and collapse pass over g. phi is the protein
// density used by SplitSharp and may be nil. Vertices flagged in locked are
// never collapsed away.
func (m *Mutator) Mutate(g *geometry.Geometry, phi []float64, locked []bool, f *Fields, logger *log.Logger) Stats {
	if logger == nil {
		logger = log.Default()
	}
	var fields Fields
	if f != nil {
		fields = f.clone()
	}
	marker := make([]bool, g.Mesh().VertexSlots())
	fields.Flag(&marker)
	if locked != nil {
		locked = slices.Clone(locked)
		fields.Flag(&locked)
	}
	var st Stats

	if m.IsFlipEdge {
		n := g.Mesh().EdgeSlots()
		for e := 0; e < n; e++ {
			if !m.IfFlip(g, e) {
				continue
			}
			i, j := g.Mesh().EdgeVertices(e)
			if g.FlipEdge(e) {
				st.Flips++
				marker[i], marker[j] = true, true
			}
		}
	}

	if m.IsSplitEdge {
		phi = slices.Clone(phi)
		curv := principalCurvature(g)
		n := g.Mesh().EdgeSlots()
		for e := 0; e < n; e++ {
			if !g.Mesh().EdgeAlive(e) || !m.ifSplit(g, e, phi, curv) {
				continue
			}
			i, j := g.Mesh().EdgeVertices(e)
			v, ok := g.SplitEdge(e)
			if !ok {
				continue
			}
			fields.interpolate(i, j)
			curv = append(curv, 0.5*(curv[i]+curv[j]))
			if phi != nil {
				phi = append(phi, 0.5*(phi[i]+phi[j]))
			}
			marker[v], marker[i], marker[j] = true, true, true
			st.Splits++
		}
	}

	if m.IsCollapseEdge {
		n := g.Mesh().EdgeSlots()
		for e := 0; e < n; e++ {
			if !m.IfCollapse(g, e) {
				continue
			}
			i, j := g.Mesh().EdgeVertices(e)
			if locked != nil && (locked[i] || locked[j]) {
				continue
			}
			survivor, _, ok := g.CollapseEdge(e)
			if !ok {
				continue
			}
			marker[survivor] = true
			st.Collapses++
		}
	}

	st.Remap = g.Compact()
	fields.remap(st.Remap.Vertex)
	st.Marker = marker
	if st.Changed() {
		logger.Debug("mesh mutated", "flips", st.Flips, "splits", st.Splits, "collapses", st.Collapses,
			"vertices", g.Mesh().NumVertices())
	}
	return st
}

// IfFlip reports whether e is a non-Delaunay interior edge that may flip.
func (m *Mutator) IfFlip(g *geometry.Geometry, e int) bool {
	if !m.FlipNonDelaunay || !g.Mesh().EdgeAlive(e) || g.Mesh().IsBoundaryEdge(e) {
		return false
	}
	h := g.Mesh().EdgeHalfedge(e)
	if g.OppositeAngle(h)+g.OppositeAngle(g.Mesh().Twin(h)) <= math.Pi {
		return false
	}
	if m.FlipNonDelaunayRequireFlat && math.Abs(g.DihedralAngle(e)) >= m.FlatTolerance {
		return false
	}
	return true
}

// IfSplit reports whether any enabled split criterion fires on e.
func (m *Mutator) IfSplit(g *geometry.Geometry, e int, phi []float64) bool {
	if !g.Mesh().EdgeAlive(e) {
		return false
	}
	return m.ifSplit(g, e, phi, principalCurvature(g))
}

func (m *Mutator) ifSplit(g *geometry.Geometry, e int, phi []float64, curv []float64) bool {
	msh := g.Mesh()
	l := g.EdgeLength(e)
	if l < 2*m.MinimumEdgeLength {
		return false
	}
	h := msh.EdgeHalfedge(e)
	i, j := msh.EdgeVertices(e)

	if m.SplitLong && m.TargetEdgeLength > 0 && l > 2*m.TargetEdgeLength {
		return true
	}
	if m.SplitSharp && phi != nil && math.Abs(phi[i]-phi[j]) > 0.1 {
		return true
	}
	if m.SplitCurved {
		k := math.Max(curv[i], curv[j])
		if k > 0 && l > math.Sqrt(8*m.CurvTol/k) {
			return true
		}
	}
	delaunay := g.OppositeAngle(h)+g.OppositeAngle(msh.Twin(h)) <= math.Pi
	for _, he := range []int{h, msh.Twin(h)} {
		f := msh.Face(he)
		if f < 0 {
			continue
		}
		if m.SplitLarge && g.FaceArea(f) > 4*m.TargetFaceArea {
			return true
		}
		if m.SplitFat && g.OppositeAngle(he) > math.Pi/2 {
			return true
		}
		if m.SplitSkinnyDelaunay && delaunay && aspectRatio(g, f) > 3 {
			return true
		}
	}
	return false
}

// IfCollapse reports whether e should collapse.
func (m *Mutator) IfCollapse(g *geometry.Geometry, e int) bool {
	msh := g.Mesh()
	if !msh.EdgeAlive(e) {
		return false
	}
	h := msh.EdgeHalfedge(e)

	fire := false
	if m.CollapseSmall {
		area := 0.0
		for _, he := range []int{h, msh.Twin(h)} {
			if f := msh.Face(he); f >= 0 {
				area += g.FaceArea(f)
			}
		}
		fire = area < m.TargetFaceArea || g.EdgeLength(e) < m.MinimumEdgeLength
	}
	if !fire && m.CollapseSkinny {
		for _, he := range []int{h, msh.Twin(h)} {
			if msh.Face(he) >= 0 && g.OppositeAngle(he) < math.Pi/12 {
				fire = true
			}
		}
	}
	if fire && m.CollapseFlat && math.Abs(g.DihedralAngle(e)) >= m.FlatTolerance {
		return false
	}
	return fire
}

// aspectRatio is longest edge times perimeter over 4√3 area; 1 for an
// equilateral triangle.
func aspectRatio(g *geometry.Geometry, f int) float64 {
	vs := g.Mesh().FaceVertices(f)
	p := g.Positions()
	a := r3.Norm(r3.Sub(p[vs[1]], p[vs[0]]))
	b := r3.Norm(r3.Sub(p[vs[2]], p[vs[1]]))
	c := r3.Norm(r3.Sub(p[vs[0]], p[vs[2]]))
	area := g.FaceArea(f)
	if area == 0 {
		return math.Inf(1)
	}
	return math.Max(a, math.Max(b, c)) * (a + b + c) / (4 * math.Sqrt(3) * area)
}

// principalCurvature returns the larger absolute principal curvature per
// vertex.
func principalCurvature(g *geometry.Geometry) []float64 {
	h := g.VertexMeanCurvatures()
	kInt := g.VertexGaussianCurvatures()
	area := g.VertexDualAreas()
	out := make([]float64, len(h))
	for v := range out {
		if area[v] == 0 {
			continue
		}
		k := kInt[v] / area[v]
		out[v] = math.Abs(h[v]) + math.Sqrt(math.Max(h[v]*h[v]-k, 0))
	}
	return out
}

// MarkVertices flags every vertex within layer rings of v.
func MarkVertices(m *mesh.Mesh, marker []bool, v, layer int) {
	marker[v] = true
	frontier := []int{v}
	for ; layer > 0 && len(frontier) > 0; layer-- {
		var next []int
		for _, u := range frontier {
			for w := range m.Neighbors(u) {
				if !marker[w] {
					marker[w] = true
					next = append(next, w)
				}
			}
		}
		frontier = next
	}
}
