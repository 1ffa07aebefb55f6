package integrators

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/membrane"
)

func TestParseScheme(t *testing.T) {
	tests := []struct {
		in   string
		want Scheme
	}{
		{"euler", Euler},
		{"velocity_verlet", VelocityVerlet},
		{"velocity-verlet", VelocityVerlet},
		{"VV", VelocityVerlet},
		{"cg", ConjugateGradient},
		{"conjugate_gradient", ConjugateGradient},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScheme(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := ParseScheme("rk4")
	assert.Error(t, err)

	for _, s := range Schemes() {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back Scheme
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	_, err = Scheme(7).MarshalText()
	assert.Error(t, err)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero dt", func(o *Options) { o.TimeStep = 0 }},
		{"negative total time", func(o *Options) { o.TotalTime = -1 }},
		{"zero save period", func(o *Options) { o.SavePeriod = 0 }},
		{"negative tolerance", func(o *Options) { o.Tolerance = -1 }},
		{"rho of one", func(o *Options) { o.Rho = 1 }},
		{"zero c1", func(o *Options) { o.C1 = 0 }},
		{"negative mesh period", func(o *Options) { o.ProcessMeshPeriod = -1 }},
	}
	require.NoError(t, DefaultOptions(Euler).Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions(Euler)
			tt.mutate(&o)
			assert.ErrorIs(t, o.Validate(), dynamo.ErrConfiguration)
		})
	}
}

func TestSchemeParameterChecks(t *testing.T) {
	p := bending(1)
	p.DPD.Gamma = 1
	s, err := sphereSystem(1, 1, p, membrane.DefaultOptions(), 1)
	require.NoError(t, err)

	_, err = New(s, Euler, DefaultOptions(Euler))
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
	_, err = New(s, ConjugateGradient, DefaultOptions(ConjugateGradient))
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
	_, err = New(s, VelocityVerlet, DefaultOptions(VelocityVerlet))
	assert.NoError(t, err)

	o := DefaultOptions(VelocityVerlet)
	o.IsBacktrack = true
	_, err = New(s, VelocityVerlet, o)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)

	_, err = New(s, Scheme(9), DefaultOptions(Euler))
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestNewRecordsReferenceLevels(t *testing.T) {
	s, err := sphereSystem(2, 1.2, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 0.01)
	o.TotalTime = 5
	in, err := New(s, Euler, o)
	require.NoError(t, err)

	l := s.Geometry.MinEdgeLength()
	assert.InDelta(t, 0.01/(l*l), in.DtSize2Ratio, 1e-12)
	assert.Equal(t, 5.0, in.ProcessMeshPeriod)
	assert.Equal(t, 5.0, in.UpdateGeodesicsPeriod)
	assert.InDelta(t, s.Forces.Mechanical.MaxAbs(), in.InitialMaximumForce, 0)
	assert.Positive(t, in.InitialMaximumForce)
	assert.InDelta(t, s.Energy.Total-s.Energy.InteriorPenalty, in.InitialTotalEnergy, 1e-12)
	assert.Equal(t, dynamo.Running, in.State)
}

func TestInitialMaximumForceUsesChemicalPotentialWithoutShape(t *testing.T) {
	p := bending(1)
	p.Adsorption.Epsilon = -1
	p.Protein0 = []float64{0.5}
	o := membrane.DefaultOptions()
	o.IsShapeVariation = false
	o.IsProteinVariation = true
	s, err := sphereSystem(1, 1, p, o, 1)
	require.NoError(t, err)
	in, err := New(s, Euler, stepOptions(Euler, 0.01))
	require.NoError(t, err)
	assert.InDelta(t, s.Forces.ChemicalPotential.MaxAbs(), in.InitialMaximumForce, 0)
	assert.Positive(t, in.InitialMaximumForce)
}

func TestAdaptiveTimeStepFollowsMeshSize(t *testing.T) {
	s, err := sphereSystem(2, 1, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 0.01)
	o.IsAdaptiveStep = true
	o.IsBacktrack = false
	in, err := New(s, Euler, o)
	require.NoError(t, err)

	pos := s.Geometry.Positions()
	scaled := make([]r3.Vec, len(pos))
	for v, p := range pos {
		scaled[v] = r3.Scale(0.5, p)
	}
	s.Geometry.SetPositions(scaled)
	s.UpdateConfigurations()
	in.Step(1)
	assert.InDelta(t, 0.0025, in.TimeStep, 1e-12)
	assert.InDelta(t, in.TimeStep, in.CharacteristicTimeStep, 0)
}

func TestStepCountsMarches(t *testing.T) {
	s, err := sphereSystem(1, 1.2, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 1e-3)
	o.IsBacktrack = false
	in, err := New(s, Euler, o)
	require.NoError(t, err)

	assert.Equal(t, dynamo.Running, in.Step(4))
	assert.Equal(t, 4, in.Steps())
	assert.InDelta(t, 4e-3, s.Time, 1e-12)
}

func TestRunConvergesBelowTolerance(t *testing.T) {
	s, err := sphereSystem(1, 1, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 1e-3)
	o.Tolerance = 1e6
	in, err := New(s, Euler, o)
	require.NoError(t, err)
	rec := &memRecorder{}
	in.Recorder = rec

	res := in.Run(context.Background())
	assert.Equal(t, dynamo.Converged, res.Status)
	assert.True(t, res.Success)
	assert.Zero(t, res.Steps)
	assert.Equal(t, []int{0}, rec.frames)
	assert.False(t, rec.failed)
	assert.NoError(t, res.Err)
}

func TestRunTimeoutFailsMinimizer(t *testing.T) {
	s, err := sphereSystem(1, 1.2, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 0.01)
	o.IsBacktrack = false
	o.TotalTime = 0.1
	o.SavePeriod = 0.03
	in, err := New(s, Euler, o)
	require.NoError(t, err)
	rec := &memRecorder{}
	in.Recorder = rec

	var samples []dynamo.Sample
	in.AddObserver(dynamo.ObserverFunc(func(s dynamo.Sample) { samples = append(samples, s) }))

	res := in.Run(context.Background())
	assert.Equal(t, dynamo.TimedOut, res.Status)
	assert.False(t, res.Success)
	assert.True(t, rec.failed)
	assert.Greater(t, res.Time, 0.1)

	require.GreaterOrEqual(t, len(rec.frames), 4)
	for i, f := range rec.frames {
		assert.Equal(t, i, f)
	}
	assert.Equal(t, 0.0, rec.times[0])
	assert.Equal(t, res.Time, rec.times[len(rec.times)-1])
	assert.Len(t, samples, len(rec.frames))
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := sphereSystem(1, 1.2, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	in, err := New(s, Euler, stepOptions(Euler, 1e-3))
	require.NoError(t, err)
	rec := &memRecorder{}
	in.Recorder = rec

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := in.Run(ctx)
	assert.Equal(t, dynamo.Failed, res.Status)
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.True(t, errors.Is(res.Err, dynamo.ErrContextCanceled))
	assert.True(t, rec.failed)
	assert.NotEmpty(t, rec.frames)

	var simErr *dynamo.SimulationError
	require.ErrorAs(t, res.Err, &simErr)
	assert.Equal(t, "euler", simErr.Component)
}

func TestRunProcessesMesh(t *testing.T) {
	o := membrane.DefaultOptions()
	o.IsSplitEdge = true
	s, err := sphereSystem(1, 1, bending(1), o, 1)
	require.NoError(t, err)
	s.Mutator.SplitLong = true
	s.Mutator.TargetEdgeLength = 0.2
	n0 := s.Geometry.Mesh().NumVertices()

	io := stepOptions(Euler, 1e-4)
	io.IsBacktrack = false
	io.TotalTime = 5e-4
	io.ProcessMeshPeriod = 1e-4
	in, err := New(s, Euler, io)
	require.NoError(t, err)

	res := in.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Greater(t, res.Final.Vertices, n0)
	n := s.Geometry.Mesh().NumVertices()
	assert.Len(t, s.ProteinDensity, n)
	assert.Len(t, s.Velocity, n)
	assert.Len(t, s.Forces.Mechanical, n)
}

func TestEnergyCapFailsRun(t *testing.T) {
	s, err := sphereSystem(1, 1.2, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 1e-3)
	o.IsCapEnergy = true
	in, err := New(s, Euler, o)
	require.NoError(t, err)

	s.Parameters.Bending.Kb = 2
	s.UpdateConfigurations()
	in.Step(1)
	assert.Equal(t, dynamo.Failed, in.State)
	assert.ErrorIs(t, in.Err(), dynamo.ErrEnergyIncrease)
}

func TestNonFiniteStateFailsRun(t *testing.T) {
	s, err := sphereSystem(1, 1, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	in, err := New(s, VelocityVerlet, stepOptions(VelocityVerlet, 1e-3))
	require.NoError(t, err)

	s.Velocity[3].X = math.NaN()
	assert.Equal(t, dynamo.Failed, in.Step(1))
	assert.ErrorIs(t, in.Err(), dynamo.ErrNonFinite)
	assert.Zero(t, in.Steps())
}

func TestBacktrackFailsUphill(t *testing.T) {
	s, err := sphereSystem(2, 1.3, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 1e-2)
	o.Rho = 0.5
	in, err := New(s, Euler, o)
	require.NoError(t, err)

	before := s.Snapshot()
	uphill := s.Forces.Mechanical.Clone()
	for v := range uphill {
		uphill[v] = r3.Scale(-1, uphill[v])
	}
	alpha := in.backtrack(uphill, make(dynamo.Field, len(uphill)), o.Rho, o.C1)

	assert.Less(t, alpha, minStepFraction*o.TimeStep)
	assert.Equal(t, dynamo.Failed, in.State)
	assert.ErrorIs(t, in.Err(), dynamo.ErrLineSearch)
	assert.ErrorContains(t, in.Err(), string(CauseWrongGradient))
	assert.Equal(t, before.Positions, s.Geometry.Positions())
	assert.Equal(t, before.Time, s.Time)
}

func TestBacktrackAcceptsDescent(t *testing.T) {
	s, err := sphereSystem(2, 1.3, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(Euler, 1e-2)
	in, err := New(s, Euler, o)
	require.NoError(t, err)

	e0 := s.ComputePotentialEnergy()
	alpha := in.backtrack(s.Forces.Mechanical.Clone(), make(dynamo.Field, len(s.Velocity)), o.Rho, o.C1)
	assert.Positive(t, alpha)
	assert.LessOrEqual(t, alpha, o.TimeStep)
	assert.InDelta(t, alpha, s.Time, 1e-15)
	assert.Less(t, s.ComputePotentialEnergy(), e0)
	assert.Equal(t, dynamo.Running, in.State)
}

func TestMoveAlongRefreshesGeometry(t *testing.T) {
	s, err := sphereSystem(1, 1, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	start := s.Snapshot()
	v0 := s.Geometry.Volume()

	radial := make(dynamo.VectorField, len(start.Positions))
	copy(radial, start.Positions)
	moveAlong(s, start, radial, make(dynamo.Field, len(radial)), 0.1)

	assert.InEpsilon(t, 1.331*v0, s.Geometry.Volume(), 1e-12)
	for v, p := range s.Geometry.Positions() {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(p, r3.Scale(1.1, start.Positions[v]))), 1e-14)
	}
	assert.NotEqual(t, start.Positions[0], s.Geometry.Position(0))
}

func TestVelocityVerletDriftsByPastForce(t *testing.T) {
	s, err := sphereSystem(1, 1.2, bending(1), membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	const dt = 1e-2
	in, err := New(s, VelocityVerlet, stepOptions(VelocityVerlet, dt))
	require.NoError(t, err)
	require.Zero(t, s.Velocity.MaxAbs())

	before := s.Snapshot()
	force := s.Forces.Mechanical.Clone()
	marchVelocityVerlet(in)

	for v, p := range s.Geometry.Positions() {
		want := r3.Add(before.Positions[v], r3.Scale(0.5*dt*dt, force[v]))
		assert.InDelta(t, 0, r3.Norm(r3.Sub(p, want)), 1e-15, "vertex %d", v)
	}
	assert.Equal(t, s.Geometry.Clone().Area(), s.Geometry.Area())
	assert.InDelta(t, dt, s.Time, 1e-15)
}

func TestClassifyLineSearch(t *testing.T) {
	tests := []struct {
		name      string
		decreases []bool
		want      LineSearchCause
	}{
		{"never decreases", []bool{false, false, false, false}, CauseWrongGradient},
		{"only large steps decrease", []bool{true, true, false, false}, CauseDiscontinuity},
		{"small steps decrease", []bool{false, false, true, true}, CauseRoundOff},
		{"mixed", []bool{true, false, false, true}, CauseRoundOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyLineSearch(tt.decreases))
		})
	}
}

func constrainedVesicle(t *testing.T, augmented bool) (*membrane.System, *Integrator) {
	t.Helper()
	p := bending(1)
	p.Tension.Ksg = 2
	p.Osmotic = membrane.Osmotic{Kv: 1, Vt: 0.8}
	s, err := sphereSystem(2, 1, p, membrane.DefaultOptions(), 1)
	require.NoError(t, err)
	o := stepOptions(ConjugateGradient, 1e-3)
	o.IsAugmentedLagrangian = augmented
	in, err := New(s, ConjugateGradient, o)
	require.NoError(t, err)
	return s, in
}

func TestAugmentedLagrangianUpdatesMultipliers(t *testing.T) {
	s, in := constrainedVesicle(t, true)
	in.cg.count = 3

	thresholdConstraints(in)
	assert.Equal(t, dynamo.Running, in.State)
	assert.Zero(t, in.cg.count)
	assert.Zero(t, s.Parameters.LambdaSG)
	vt := s.TargetVolume()
	assert.InDelta(t, (s.Volume-vt)/(vt*vt), s.Parameters.LambdaV, 1e-12)
	assert.Positive(t, s.Parameters.LambdaV)
	assert.InDelta(t, 0.25, in.cg.volumeDifference, 0.01)
	assert.Equal(t, 2.0, s.Parameters.Tension.Ksg)
}

func TestIncrementalPenaltyScalesModuli(t *testing.T) {
	s, in := constrainedVesicle(t, false)
	thresholdConstraints(in)
	assert.Equal(t, dynamo.Running, in.State)
	assert.InDelta(t, 1.1, s.Parameters.Osmotic.Kv, 1e-12)
	assert.Equal(t, 2.0, s.Parameters.Tension.Ksg)
	assert.Zero(t, s.Parameters.LambdaV)
}

func TestConstraintsSatisfiedConverges(t *testing.T) {
	s, in := constrainedVesicle(t, true)
	s.Parameters.Osmotic.Vt = 1
	thresholdConstraints(in)
	assert.Equal(t, dynamo.Converged, in.State)
}

func TestEnsembleRunsReplicas(t *testing.T) {
	p := bending(0.1)
	p.Temp = 1
	p.DPD.Gamma = 1
	factory := func(seed uint64) (*Integrator, error) {
		s, err := sphereSystem(1, 1, p, membrane.DefaultOptions(), seed)
		if err != nil {
			return nil, err
		}
		o := stepOptions(VelocityVerlet, 1e-3)
		o.TotalTime = 0.01
		return New(s, VelocityVerlet, o)
	}
	e := NewEnsemble(factory, 3, 10)
	e.SetLimit(2)
	results, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, dynamo.TimedOut, r.Status)
		assert.True(t, r.Success)
	}
	assert.NotEqual(t, results[0].Final.Total, results[1].Final.Total)

	again, err := NewEnsemble(factory, 1, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, results[0].Final.Total, again[0].Final.Total)
}

func TestEnsembleReportsBuildErrors(t *testing.T) {
	boom := errors.New("boom")
	e := NewEnsemble(func(seed uint64) (*Integrator, error) {
		if seed == 2 {
			return nil, boom
		}
		s, err := sphereSystem(1, 1, bending(1), membrane.DefaultOptions(), seed)
		if err != nil {
			return nil, err
		}
		o := stepOptions(VelocityVerlet, 1e-3)
		o.TotalTime = 1e-3
		return New(s, VelocityVerlet, o)
	}, 3, 0)
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}
