package membrane

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// CheckFiniteness reports whether positions, velocity, protein density,
// forces, potentials and energies are all finite.
func (s *System) CheckFiniteness() bool {
	return len(s.nonFinite()) == 0
}

// FinitenessErrorBacktrace logs every non-finite component and returns an
// error wrapping dynamo.ErrNonFinite, or nil when everything is finite.
func (s *System) FinitenessErrorBacktrace() error {
	bad := s.nonFinite()
	if len(bad) == 0 {
		return nil
	}
	for _, name := range bad {
		s.logger.Error("non-finite component", "name", name, "time", s.Time)
	}
	return fmt.Errorf("%w: %v", dynamo.ErrNonFinite, bad)
}

func (s *System) nonFinite() []string {
	var bad []string
	if !dynamo.VectorField(s.Geometry.Positions()).IsValid() {
		bad = append(bad, "position")
	}
	if !s.Velocity.IsValid() {
		bad = append(bad, "velocity")
	}
	if !s.ProteinDensity.IsValid() {
		bad = append(bad, "protein_density")
	}
	for _, f := range s.Forces.Vectors() {
		if !f.Field.IsValid() {
			bad = append(bad, f.Name)
		}
	}
	for _, f := range s.Forces.Scalars() {
		if !f.Field.IsValid() {
			bad = append(bad, f.Name)
		}
	}
	terms := s.Energy.Terms()
	for _, name := range TermNames {
		if v := terms[name]; math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, name+"_energy")
		}
	}
	if math.IsNaN(s.Energy.Kinetic) || math.IsInf(s.Energy.Kinetic, 0) {
		bad = append(bad, "kinetic_energy")
	}
	return slices.Compact(bad)
}

// Sample summarises the last force and energy evaluation.
func (s *System) Sample() dynamo.Sample {
	return dynamo.Sample{
		Time:          s.Time,
		Total:         s.Energy.Total,
		Kinetic:       s.Energy.Kinetic,
		Potential:     s.Energy.Potential,
		Terms:         s.Energy.Terms(),
		MechErrorNorm: s.MechErrorNorm,
		ChemErrorNorm: s.ChemErrorNorm,
		Area:          s.Area,
		Volume:        s.Volume,
		Vertices:      s.Geometry.Mesh().NumVertices(),
	}
}
