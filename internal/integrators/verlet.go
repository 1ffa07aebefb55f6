package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
)

func checkVelocityVerletParameters(in *Integrator) error {
	if in.IsBacktrack {
		return dynamo.Configurationf("velocity verlet does not support backtracking")
	}
	return nil
}

func statusVelocityVerlet(in *Integrator) {
	s := in.System
	if in.converged() {
		in.finish(dynamo.Converged, "error norm below tolerance")
	}
	if s.Time > in.TotalTime {
		in.finish(dynamo.TimedOut, "reached time")
	}
	s.AccumulateExternalWork(in.TimeStep)
	s.ComputeTotalEnergy()
	in.checkCommon()
}

// marchVelocityVerlet takes one kick-drift-kick step. The damping force is
// evaluated at the predicted velocity v + ½dt·F_prev.
func marchVelocityVerlet(in *Integrator) {
	s := in.System
	dt := in.TimeStep
	hdt := 0.5 * dt
	prev := in.pastForce
	if len(prev) != len(s.Velocity) {
		prev = s.Forces.Mechanical.Clone()
	}

	drift := make([]r3.Vec, len(s.Velocity))
	for v := range drift {
		drift[v] = r3.Add(s.Velocity[v], r3.Scale(hdt, prev[v]))
	}
	s.Geometry.Translate(dt, drift)
	s.UpdateConfigurations()

	old := s.Velocity.Clone()
	s.Velocity.AddScaled(hdt, prev)
	s.ComputePhysicalForcing(dt)

	f := s.Forces.Mechanical
	for v := range s.Velocity {
		s.Velocity[v] = r3.Add(old[v], r3.Scale(hdt, r3.Add(prev[v], f[v])))
	}
	in.pastForce = f.Clone()
	s.Time += dt

	stepProtein(s.ProteinDensity, s.ProteinRateOfChange, dt)
	s.UpdateConfigurations()
}
