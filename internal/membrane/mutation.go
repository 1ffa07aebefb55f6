package membrane

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/remesh"
)

// MutateMesh runs one remesh pass and brings every per-vertex field in
// line with the new connectivity. Marked vertices are then relaxed along
// the bending force when smoothing is enabled. It reports whether the
// connectivity changed.
func (s *System) MutateMesh() bool {
	if !s.Options.IsMeshMutate() {
		return false
	}
	g := s.Geometry
	centerPos := g.Position(s.CenterVertex)

	var fields remesh.Fields
	phi := []float64(s.ProteinDensity)
	vel := []r3.Vec(s.Velocity)
	rate := []float64(s.ProteinRateOfChange)
	geo := []float64(s.GeodesicDistance)
	fields.Scalar(&phi)
	fields.Vector(&vel)
	fields.Scalar(&rate)
	fields.Scalar(&geo)

	st := s.Mutator.Mutate(g, phi, s.Locked(), &fields, s.logger)
	s.ProteinDensity, s.Velocity, s.ProteinRateOfChange, s.GeodesicDistance = phi, vel, rate, geo
	s.MutationMarker = st.Marker
	if !st.Changed() {
		return false
	}

	if nc := st.Remap.Vertex[s.CenterVertex]; nc >= 0 {
		s.CenterVertex = nc
	} else {
		s.CenterVertex = g.NearestVertex(centerPos)
	}
	s.resetReferenceElements()
	s.UpdateConfigurations()

	if s.Mutator.IsSmoothenMesh {
		s.SmoothMarked()
	}
	return true
}

// SmoothMarked relaxes the vertices flagged in MutationMarker, and their
// neighbours, along the bending force.
func (s *System) SmoothMarked() int {
	m := s.Geometry.Mesh()
	marker := make([]bool, m.NumVertices())
	for v, b := range s.MutationMarker {
		if b {
			remesh.MarkVertices(m, marker, v, 1)
		}
	}
	locked := s.Locked()
	for v := range marker {
		marker[v] = marker[v] && !locked[v]
	}
	it := s.Mutator.Smoother().Smooth(s.Geometry, marker, func() []r3.Vec {
		s.UpdateConfigurations()
		out := make([]r3.Vec, m.NumVertices())
		s.computeBendingForce(s.Kb, s.H0, out)
		return out
	})
	s.UpdateConfigurations()
	return it
}

// ShiftVertices moves every free vertex to the tangential barycenter of its
// neighbours.
func (s *System) ShiftVertices() {
	if !s.Options.IsVertexShift {
		return
	}
	remesh.VertexShift(s.Geometry, s.Locked())
	s.UpdateConfigurations()
}
