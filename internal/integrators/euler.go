package integrators

import (
	"github.com/san-kum/memdyn/internal/dynamo"
)

// Euler steps are gradient flow: the velocity is the masked mechanical
// force and the protein density follows its rate of change.

func checkEulerParameters(in *Integrator) error {
	if g := in.System.Parameters.DPD.Gamma; g != 0 {
		return dynamo.Configurationf("gamma has to be 0 for euler integration, got %g", g)
	}
	return nil
}

func statusEuler(in *Integrator) {
	s := in.System
	in.computeForcing()
	if in.converged() {
		in.finish(dynamo.Converged, "error norm below tolerance")
	}
	if s.Time > in.TotalTime {
		in.finish(dynamo.TimedOut, "reached time")
	}
	s.ComputeTotalEnergy()
	in.checkCommon()
}

func marchEuler(in *Integrator) {
	s := in.System
	s.Velocity = s.Forces.Mechanical.Clone()
	if in.IsBacktrack {
		in.backtrack(s.Velocity, s.ProteinRateOfChange.Clone(), in.Rho, in.C1)
	} else {
		s.Geometry.Translate(in.TimeStep, s.Velocity)
		stepProtein(s.ProteinDensity, s.ProteinRateOfChange, in.TimeStep)
		s.Time += in.TimeStep
		s.UpdateConfigurations()
	}
	s.ShiftVertices()
}

func stepProtein(phi, rate dynamo.Field, dt float64) {
	for v := range phi {
		phi[v] += rate[v] * dt
	}
}
