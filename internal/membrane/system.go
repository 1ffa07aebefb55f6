// Package membrane holds the mechanochemical state of a simulated membrane
// and evaluates its free energy, forces and chemical potentials.
//
// A System references a geometry.Geometry and owns every per-vertex field
// derived from it. Every field is indexed by vertex and sized to the
// current vertex count; a mesh mutation pass resizes them together.
package membrane

import (
	"math"
	"math/rand/v2"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/remesh"
)

const (
	// KBoltzmann is in pN·µm/K.
	KBoltzmann = 1.380649e-5
	// GasConstant is in pN·µm/(attomol·K).
	GasConstant = 8.31446
	// VantHoff is the van 't Hoff factor of the osmolyte.
	VantHoff = 1.0
)

// System is the simulated membrane.
type System struct {
	Parameters Parameters
	Options    Options
	Mutator    remesh.Mutator
	Geometry   *geometry.Geometry
	Time       float64

	ProteinDensity      dynamo.Field
	Velocity            dynamo.VectorField
	ProteinRateOfChange dynamo.Field
	H0                  dynamo.Field
	Kb                  dynamo.Field
	Kd                  dynamo.Field

	// ForceMask holds 1 for every free position component and 0 for held
	// ones.
	ForceMask      dynamo.VectorField
	ProteinMask    dynamo.Field
	MutationMarker []bool

	GeodesicDistance dynamo.Field
	Center           r3.Vec
	CenterVertex     int

	RefArea        float64
	RefVolume      float64
	RefEdgeLengths []float64
	RefFaceAreas   []float64
	RefLCR         []float64

	Area            float64
	Volume          float64
	OsmoticPressure float64
	SurfaceTension  float64
	InterfacialArea float64
	ExternalWork    float64

	Forces        Forces
	Energy        Energy
	MechErrorNorm float64
	ChemErrorNorm float64

	noise  distuv.Normal
	logger *log.Logger
	isOpen bool
}

// NewSystem validates the configuration against g and initialises every
// field. Protein density comes from Parameters.Protein0. The mesh of g is
// compacted first if it carries tombstones.
func NewSystem(g *geometry.Geometry, p Parameters, o Options, mu remesh.Mutator, seed uint64, logger *log.Logger) (*System, error) {
	if logger == nil {
		logger = log.Default()
	}
	if !g.Mesh().Compacted() {
		g.Compact()
	}
	s := &System{
		Parameters: p,
		Options:    o,
		Mutator:    mu,
		Geometry:   g,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
		logger: logger,
		isOpen: g.Mesh().HasBoundary(),
	}
	if err := s.CheckConfiguration(); err != nil {
		return nil, err
	}

	n := g.Mesh().NumVertices()
	s.Velocity = dynamo.NewVectorField(n)
	s.ProteinRateOfChange = make(dynamo.Field, n)
	s.MutationMarker = make([]bool, n)
	s.Forces = newForces(n)

	s.RefArea = g.Area()
	s.RefVolume = g.Volume()
	s.resetReferenceElements()
	s.Mutator.IsFlipEdge = s.Options.IsEdgeFlip
	s.Mutator.IsSplitEdge = s.Options.IsSplitEdge
	s.Mutator.IsCollapseEdge = s.Options.IsCollapseEdge
	s.Mutator.IsShiftVertex = s.Options.IsVertexShift
	s.Mutator.TargetEdgeLength = g.MeanEdgeLength()

	if err := s.locateCenter(); err != nil {
		return nil, err
	}
	s.UpdateGeodesics()
	s.initProteinDensity()
	if err := s.checkSelfAvoidance(); err != nil {
		return nil, err
	}
	s.UpdateConfigurations()
	return s, nil
}

// Logger returns the logger the System reports to.
func (s *System) Logger() *log.Logger { return s.logger }

// IsOpen reports whether the mesh has a boundary.
func (s *System) IsOpen() bool { return s.isOpen }

// CheckConfiguration rejects inconsistent parameter and option
// combinations. Disabling shape variation zeroes Ksg and Kv and turns mesh
// mutation off; both are reported at Warn.
func (s *System) CheckConfiguration() error {
	p, o := &s.Parameters, &s.Options
	m := s.Geometry.Mesh()
	n := m.NumVertices()

	if o.IsPreferredVolume && o.IsConstantOsmoticPressure {
		return dynamo.Configurationf("preferred volume and constant osmotic pressure are mutually exclusive")
	}
	if o.IsPreferredVolume && p.Osmotic.Vt <= 0 {
		return dynamo.Configurationf("preferred volume requires vt > 0, got %g", p.Osmotic.Vt)
	}
	if !o.IsPreferredVolume && !o.IsConstantOsmoticPressure && p.Osmotic.Kv != 0 && p.Osmotic.N <= 0 {
		return dynamo.Configurationf("ambient osmotic pressure requires n > 0")
	}
	if m.HasBoundary() {
		if o.ShapeBoundary == ShapeBoundaryNone && o.IsShapeVariation {
			return dynamo.Configurationf("open mesh requires a shape boundary condition")
		}
	} else if g := m.Genus(); g != 0 {
		return dynamo.Topologyf("closed mesh of genus %d is not supported", g)
	}
	if !p.Bending.Relation.Valid() {
		return dynamo.Configurationf("unknown bending relation %d", int(p.Bending.Relation))
	}
	if len(p.Protein0) != 1 && len(p.Protein0) != 3 && len(p.Protein0) != n {
		return dynamo.Configurationf("protein0 needs 1, 3 or %d entries, got %d", n, len(p.Protein0))
	}
	if len(p.Protein0) == 3 {
		if p.Protein0[0] <= 0 {
			return dynamo.Configurationf("protein0 disk radius must be positive, got %g", p.Protein0[0])
		}
		if p.Sharpness <= 0 {
			return dynamo.Configurationf("protein0 disk requires sharpness > 0, got %g", p.Sharpness)
		}
		for _, v := range p.Protein0[1:] {
			if v < 0 || v > 1 {
				return dynamo.Configurationf("protein0 density %g is outside [0, 1]", v)
			}
		}
	} else {
		for _, v := range p.Protein0 {
			if v < 0 || v > 1 {
				return dynamo.Configurationf("protein0 density %g is outside [0, 1]", v)
			}
		}
	}
	if p.DPD.Gamma < 0 {
		return dynamo.Configurationf("dpd gamma must be non-negative, got %g", p.DPD.Gamma)
	}
	if p.Temp < 0 {
		return dynamo.Configurationf("temperature must be non-negative, got %g", p.Temp)
	}
	if p.Bc < 0 {
		return dynamo.Configurationf("protein mobility must be non-negative, got %g", p.Bc)
	}
	if p.SelfAvoidance.Mu != 0 && p.SelfAvoidance.Cutoff <= p.SelfAvoidance.D {
		return dynamo.Configurationf("self avoidance cutoff %g must exceed d %g", p.SelfAvoidance.Cutoff, p.SelfAvoidance.D)
	}
	if len(p.Point.Position) == 0 && (p.Point.Index < 0 || p.Point.Index >= n) {
		return dynamo.Configurationf("center index %d out of range [0, %d)", p.Point.Index, n)
	}
	if l := len(p.Point.Position); l != 0 && l != 2 && l != 3 {
		return dynamo.Configurationf("center position needs 2 or 3 coordinates, got %d", l)
	}

	if !o.IsShapeVariation {
		if p.Tension.Ksg != 0 || p.Osmotic.Kv != 0 {
			s.logger.Warn("shape variation disabled, zeroing ksg and kv", "ksg", p.Tension.Ksg, "kv", p.Osmotic.Kv)
		}
		p.Tension.Ksg = 0
		p.Osmotic.Kv = 0
		if o.IsMeshMutate() || o.IsVertexShift {
			s.logger.Warn("shape variation disabled, mesh mutation turned off")
		}
		o.IsEdgeFlip, o.IsSplitEdge, o.IsCollapseEdge, o.IsVertexShift = false, false, false, false
	}
	return nil
}

// UpdateConfigurations re-derives everything that depends on positions,
// protein density or connectivity: the global geometry, H0, Kb and Kd, and
// the masks.
func (s *System) UpdateConfigurations() {
	s.Geometry.Refresh()
	s.Area = s.Geometry.Area()
	s.Volume = s.Geometry.Volume()
	s.updateMaterial()
	s.updateMasks()
}

func (s *System) updateMaterial() {
	n := len(s.ProteinDensity)
	s.H0 = resize(s.H0, n)
	s.Kb = resize(s.Kb, n)
	s.Kd = resize(s.Kd, n)
	b := s.Parameters.Bending
	for v, phi := range s.ProteinDensity {
		f := b.Relation.shape(phi)
		s.H0[v] = b.H0c * f
		s.Kb[v] = b.Kb + b.Kbc*f
		s.Kd[v] = s.Parameters.Deviatoric.Kd + s.Parameters.Deviatoric.Kdc*phi
	}
}

// shape is the dimensionless protein response: φ for linear and
// φ²/(1+φ²) for hill.
func (r Relation) shape(phi float64) float64 {
	if r == RelationHill {
		return phi * phi / (1 + phi*phi)
	}
	return phi
}

// shapeDerivative is d shape/dφ.
func (r Relation) shapeDerivative(phi float64) float64 {
	if r == RelationHill {
		d := 1 + phi*phi
		return 2 * phi / (d * d)
	}
	return 1
}

func (s *System) updateMasks() {
	m := s.Geometry.Mesh()
	n := m.NumVertices()
	s.ForceMask = dynamo.NewVectorField(n)
	s.ForceMask.Fill(r3.Vec{X: 1, Y: 1, Z: 1})
	s.ProteinMask = make(dynamo.Field, n)
	for v := range s.ProteinMask {
		s.ProteinMask[v] = 1
	}

	if s.isOpen {
		for v := 0; v < n; v++ {
			if !m.IsBoundaryVertex(v) {
				continue
			}
			switch s.Options.ShapeBoundary {
			case ShapeBoundaryRoller:
				s.ForceMask[v].Z = 0
			case ShapeBoundaryPin:
				s.ForceMask[v] = r3.Vec{}
			case ShapeBoundaryFixed:
				s.ForceMask[v] = r3.Vec{}
				for u := range m.Neighbors(v) {
					s.ForceMask[u] = r3.Vec{}
				}
			}
			if s.Options.ProteinBoundary == ProteinBoundaryPin {
				s.ProteinMask[v] = 0
			}
		}
	}

	if s.Parameters.Radius > 0 {
		for v, d := range s.GeodesicDistance {
			if d > s.Parameters.Radius {
				s.ForceMask[v] = r3.Vec{}
				s.ProteinMask[v] = 0
			}
		}
	}
}

// Locked reports the vertices with at least one held component.
func (s *System) Locked() []bool {
	out := make([]bool, len(s.ForceMask))
	for v, m := range s.ForceMask {
		out[v] = m != r3.Vec{X: 1, Y: 1, Z: 1}
	}
	return out
}

func (s *System) resetReferenceElements() {
	g := s.Geometry
	s.RefEdgeLengths = append([]float64(nil), g.EdgeLengths()...)
	s.RefFaceAreas = append([]float64(nil), g.FaceAreas()...)
	s.RefLCR = append([]float64(nil), g.LengthCrossRatios()...)
}

func (s *System) locateCenter() error {
	pt := s.Parameters.Point
	switch len(pt.Position) {
	case 0:
		s.CenterVertex = pt.Index
		s.Center = s.Geometry.Position(pt.Index)
	case 2:
		s.Center = r3.Vec{X: pt.Position[0], Y: pt.Position[1]}
		s.CenterVertex = s.nearestInPlane(s.Center)
		s.Center.Z = s.Geometry.Position(s.CenterVertex).Z
	default:
		s.Center = r3.Vec{X: pt.Position[0], Y: pt.Position[1], Z: pt.Position[2]}
		s.CenterVertex = s.Geometry.NearestVertex(s.Center)
	}
	if s.CenterVertex < 0 {
		return dynamo.Topologyf("mesh has no vertices")
	}
	return nil
}

func (s *System) nearestInPlane(p r3.Vec) int {
	best, bestD := -1, math.Inf(1)
	for v, x := range s.Geometry.Positions() {
		d := math.Hypot(x.X-p.X, x.Y-p.Y)
		if d < bestD {
			best, bestD = v, d
		}
	}
	return best
}

// UpdateGeodesics recomputes the geodesic distance from the center. A
// floating center first moves to the highest vertex within three mean edge
// lengths of its current position.
func (s *System) UpdateGeodesics() {
	g := s.Geometry
	if s.Parameters.Point.IsFloatVertex {
		best := s.CenterVertex
		for _, v := range g.Within(g.Position(s.CenterVertex), 3*g.MeanEdgeLength()) {
			if g.Position(v).Z > g.Position(best).Z {
				best = v
			}
		}
		if best != s.CenterVertex {
			s.logger.Debug("center moved", "from", s.CenterVertex, "to", best)
		}
		s.CenterVertex = best
		s.Center = g.Position(best)
	}
	if len(s.Parameters.Point.Position) == 0 || s.Parameters.Point.IsFloatVertex {
		s.GeodesicDistance = g.GeodesicDistance(s.CenterVertex)
		return
	}
	s.GeodesicDistance = g.GeodesicDistanceFromPoint(s.Center, g.ClosestFace(s.Center))
}

func (s *System) initProteinDensity() {
	n := s.Geometry.Mesh().NumVertices()
	p := s.Parameters
	s.ProteinDensity = make(dynamo.Field, n)
	switch len(p.Protein0) {
	case 1:
		for v := range s.ProteinDensity {
			s.ProteinDensity[v] = p.Protein0[0]
		}
	case 3:
		r, in, out := p.Protein0[0], p.Protein0[1], p.Protein0[2]
		for v, d := range s.GeodesicDistance {
			s.ProteinDensity[v] = out + (in-out)*0.5*(1+math.Tanh(p.Sharpness*(r-d)))
		}
	default:
		copy(s.ProteinDensity, p.Protein0)
	}
}

// State is the restorable part of a System.
type State struct {
	Time           float64
	Positions      []r3.Vec
	Velocity       dynamo.VectorField
	ProteinDensity dynamo.Field
}

// Snapshot copies positions, velocity, protein density and time.
func (s *System) Snapshot() State {
	return State{
		Time:           s.Time,
		Positions:      append([]r3.Vec(nil), s.Geometry.Positions()...),
		Velocity:       s.Velocity.Clone(),
		ProteinDensity: s.ProteinDensity.Clone(),
	}
}

// Restore writes st back. The vertex count must not have changed since
// the snapshot was taken.
func (s *System) Restore(st State) {
	s.Time = st.Time
	s.Geometry.SetPositions(st.Positions)
	copy(s.Velocity, st.Velocity)
	copy(s.ProteinDensity, st.ProteinDensity)
	s.UpdateConfigurations()
}

// Continue loads a saved frame into the System. The frame must describe a
// mesh with the same vertex and face counts.
func (s *System) Continue(st State, faces int) error {
	m := s.Geometry.Mesh()
	if len(st.Positions) != m.NumVertices() || faces != m.NumFaces() {
		return dynamo.Topologyf("frame has %d vertices and %d faces, mesh has %d and %d",
			len(st.Positions), faces, m.NumVertices(), m.NumFaces())
	}
	if st.Velocity != nil && len(st.Velocity) != m.NumVertices() {
		return dynamo.Topologyf("frame velocity has %d entries for %d vertices", len(st.Velocity), m.NumVertices())
	}
	if st.ProteinDensity != nil && len(st.ProteinDensity) != m.NumVertices() {
		return dynamo.Topologyf("frame protein density has %d entries for %d vertices", len(st.ProteinDensity), m.NumVertices())
	}
	s.Time = st.Time
	s.Geometry.SetPositions(st.Positions)
	if st.Velocity != nil {
		copy(s.Velocity, st.Velocity)
	}
	if st.ProteinDensity != nil {
		copy(s.ProteinDensity, st.ProteinDensity)
	}
	s.UpdateGeodesics()
	s.UpdateConfigurations()
	s.logger.Info("continuing from frame", "time", st.Time, "vertices", m.NumVertices())
	return nil
}

// targetArea is the preferred surface area including the reservoir.
func (s *System) targetArea() float64 {
	return s.RefArea + s.Parameters.Tension.ARes
}

// targetVolume is the preferred enclosed volume including the reservoir.
func (s *System) targetVolume() float64 {
	return s.RefVolume*s.Parameters.Osmotic.Vt + s.Parameters.Osmotic.VRes
}

// TargetArea and TargetVolume expose the constraint targets used by the
// augmented Lagrangian update.
func (s *System) TargetArea() float64   { return s.targetArea() }
func (s *System) TargetVolume() float64 { return s.targetVolume() }

func resize(f dynamo.Field, n int) dynamo.Field {
	if len(f) == n {
		return f
	}
	return f.Resize(n, 0)
}
