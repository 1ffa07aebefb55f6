package integrators

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/membrane"
)

// minStepFraction is the smallest accepted step as a fraction of dt.
const minStepFraction = 1e-5

// LineSearchCause classifies a failed line search.
type LineSearchCause string

const (
	CauseWrongGradient LineSearchCause = "wrong gradient sign"
	CauseDiscontinuity LineSearchCause = "energy discontinuity"
	CauseRoundOff      LineSearchCause = "round-off"
)

// backtrack shrinks α from dt by rho until the potential energy satisfies
// the sufficient decrease condition along (d, dphi). On success positions,
// protein density and time are advanced by α. On failure the state is
// restored, the integrator fails with ErrLineSearch and α is returned.
func (in *Integrator) backtrack(d dynamo.VectorField, dphi dynamo.Field, rho, c1 float64) float64 {
	s := in.System
	init := s.Snapshot()
	e0 := s.ComputePotentialEnergy()
	prev := s.Energy
	slope := s.Forces.Mechanical.Dot(d) + floats.Dot(s.Forces.ChemicalPotential, dphi)

	alpha := in.TimeStep
	for {
		moveAlong(s, init, d, dphi, alpha)
		e := s.ComputePotentialEnergy()
		if e <= e0-c1*alpha*slope {
			break
		}
		if alpha < minStepFraction*in.TimeStep {
			cause := in.lineSearchErrorBacktrace(init, prev, d, dphi)
			s.Restore(init)
			in.fail(fmt.Errorf("%w: alpha=%g (%s)", dynamo.ErrLineSearch, alpha, cause))
			return alpha
		}
		alpha *= rho
	}
	s.Time = init.Time + alpha
	return alpha
}

func moveAlong(s *membrane.System, init membrane.State, d dynamo.VectorField, dphi dynamo.Field, alpha float64) {
	pos := make([]r3.Vec, len(init.Positions))
	for v := range pos {
		pos[v] = r3.Add(init.Positions[v], r3.Scale(alpha, d[v]))
	}
	s.Geometry.SetPositions(pos)
	for v := range s.ProteinDensity {
		s.ProteinDensity[v] = init.ProteinDensity[v] + alpha*dphi[v]
	}
	s.UpdateConfigurations()
}

// lineSearchErrorBacktrace probes each energy term at α = dt·2⁻ᵏ for
// k = 0..8 along the failed direction and logs which terms fail to
// decrease. The returned cause looks at the total potential: no decrease
// anywhere points at a wrong gradient, an increase only at the small steps
// at a discontinuity, anything else at round-off.
func (in *Integrator) lineSearchErrorBacktrace(init membrane.State, prev membrane.Energy, d dynamo.VectorField, dphi dynamo.Field) LineSearchCause {
	s := in.System
	const probes = 9
	before := prev.Terms()
	decreases := make(map[string][]bool, len(membrane.TermNames))
	total := make([]bool, probes)

	alpha := in.TimeStep
	for k := 0; k < probes; k++ {
		moveAlong(s, init, d, dphi, alpha)
		e := s.ComputePotentialEnergy()
		total[k] = e < prev.Potential
		after := s.Energy.Terms()
		for _, name := range membrane.TermNames {
			decreases[name] = append(decreases[name], after[name] <= before[name])
		}
		alpha /= 2
	}

	for _, name := range membrane.TermNames {
		if !slices.Contains(decreases[name], false) {
			continue
		}
		in.logger.Error("energy term increases along search direction",
			"term", name,
			"energy", before[name],
			"decreases", decreases[name])
	}

	cause := classifyLineSearch(total)
	in.logger.Error("line search failed",
		"time", s.Time,
		"energy", prev.Potential,
		"mech_error", s.MechErrorNorm,
		"chem_error", s.ChemErrorNorm,
		"cause", string(cause))
	return cause
}

// classifyLineSearch reads decreases ordered from the largest step to the
// smallest.
func classifyLineSearch(decreases []bool) LineSearchCause {
	if !slices.Contains(decreases, true) {
		return CauseWrongGradient
	}
	small := decreases[len(decreases)/2:]
	if !slices.Contains(small, true) {
		return CauseDiscontinuity
	}
	return CauseRoundOff
}
