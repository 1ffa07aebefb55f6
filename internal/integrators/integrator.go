package integrators

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/membrane"
)

// eventEpsilon is the fraction of a time step used to move past a mesh
// processing or geodesic event without marching.
const eventEpsilon = 1e-10

// Recorder persists frames of a run.
type Recorder interface {
	Save(s *membrane.System, frame int) error
	MarkFailed() error
}

// Options are the stepping controls shared by every scheme. Zero mesh and
// geodesic periods default to TotalTime.
type Options struct {
	TimeStep   float64 `yaml:"dt"`
	TotalTime  float64 `yaml:"total_time"`
	SavePeriod float64 `yaml:"save_period"`
	Tolerance  float64 `yaml:"tolerance"`

	IsAdaptiveStep bool    `yaml:"adaptive"`
	IsBacktrack    bool    `yaml:"backtrack"`
	Rho            float64 `yaml:"rho"`
	C1             float64 `yaml:"c1"`
	IsCapEnergy    bool    `yaml:"cap_energy"`

	RestartPeriod         int     `yaml:"restart_period"`
	ConstraintTolerance   float64 `yaml:"constraint_tolerance"`
	IsAugmentedLagrangian bool    `yaml:"augmented_lagrangian"`
	Increment             float64 `yaml:"increment"`

	ProcessMeshPeriod     float64 `yaml:"process_mesh_period"`
	UpdateGeodesicsPeriod float64 `yaml:"update_geodesics_period"`
}

// DefaultOptions returns the stepping defaults of a scheme.
func DefaultOptions(scheme Scheme) Options {
	o := Options{
		TimeStep:            0.1,
		TotalTime:           1000,
		SavePeriod:          50,
		Tolerance:           1e-11,
		Rho:                 0.99,
		C1:                  1e-4,
		RestartPeriod:       5,
		ConstraintTolerance: 0.01,
		Increment:           1.1,
	}
	switch scheme {
	case Euler:
		o.IsBacktrack = true
	case ConjugateGradient:
		o.IsBacktrack = true
		o.Rho, o.C1 = 0.9, 0.0005
	}
	return o
}

// Validate checks the numeric bounds of the options.
func (o Options) Validate() error {
	switch {
	case !(o.TimeStep > 0):
		return dynamo.Configurationf("time step must be positive, got %g", o.TimeStep)
	case !(o.TotalTime > 0):
		return dynamo.Configurationf("total time must be positive, got %g", o.TotalTime)
	case !(o.SavePeriod > 0):
		return dynamo.Configurationf("save period must be positive, got %g", o.SavePeriod)
	case o.Tolerance < 0:
		return dynamo.Configurationf("tolerance must be non-negative, got %g", o.Tolerance)
	case o.ProcessMeshPeriod < 0 || o.UpdateGeodesicsPeriod < 0:
		return dynamo.Configurationf("event periods must be non-negative")
	}
	if o.IsBacktrack {
		if !(o.Rho > 0 && o.Rho < 1) {
			return dynamo.Configurationf("rho must lie in (0, 1), got %g", o.Rho)
		}
		if !(o.C1 > 0 && o.C1 < 1) {
			return dynamo.Configurationf("c1 must lie in (0, 1), got %g", o.C1)
		}
	}
	return nil
}

// Integrator advances a membrane System with one Scheme.
type Integrator struct {
	Options
	System *membrane.System
	Scheme Scheme

	// CharacteristicTimeStep is the requested step. TimeStep follows the
	// mesh size when IsAdaptiveStep is set.
	CharacteristicTimeStep float64
	DtSize2Ratio           float64
	InitialMaximumForce    float64
	InitialTotalEnergy     float64

	State    dynamo.Status
	Recorder Recorder

	metrics   []dynamo.Metric
	observers []dynamo.Observer
	logger    *log.Logger

	steps int
	frame int
	err   error

	pastForce dynamo.VectorField
	cg        cgState
}

// New validates the scheme against the System, runs the initial force
// evaluation and records the reference force and energy levels.
func New(sys *membrane.System, scheme Scheme, opts Options) (*Integrator, error) {
	if !scheme.Valid() {
		return nil, dynamo.Configurationf("unknown scheme %d", int(scheme))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.ProcessMeshPeriod == 0 {
		opts.ProcessMeshPeriod = opts.TotalTime
	}
	if opts.UpdateGeodesicsPeriod == 0 {
		opts.UpdateGeodesicsPeriod = opts.TotalTime
	}
	in := &Integrator{
		Options:                opts,
		System:                 sys,
		Scheme:                 scheme,
		CharacteristicTimeStep: opts.TimeStep,
		logger:                 sys.Logger().With("scheme", scheme.String()),
	}
	if err := in.checkParameters(); err != nil {
		return nil, err
	}

	minEdge := sys.Geometry.MinEdgeLength()
	in.DtSize2Ratio = opts.TimeStep / (minEdge * minEdge)

	in.computeForcing()
	if sys.Options.IsShapeVariation {
		in.InitialMaximumForce = sys.Forces.Mechanical.MaxAbs()
	} else {
		in.InitialMaximumForce = sys.Forces.ChemicalPotential.MaxAbs()
	}
	sys.ComputeTotalEnergy()
	in.InitialTotalEnergy = sys.Energy.Total - sys.Energy.InteriorPenalty
	in.pastForce = sys.Forces.Mechanical.Clone()

	in.logger.Debug("integrator ready",
		"dt", in.TimeStep,
		"dt_size2_ratio", in.DtSize2Ratio,
		"max_force", in.InitialMaximumForce,
		"energy", in.InitialTotalEnergy)
	return in, nil
}

func (in *Integrator) AddMetric(m dynamo.Metric)     { in.metrics = append(in.metrics, m) }
func (in *Integrator) AddObserver(o dynamo.Observer) { in.observers = append(in.observers, o) }

// Steps returns the number of marches taken so far.
func (in *Integrator) Steps() int { return in.steps }

// Err returns the cause of a Failed state.
func (in *Integrator) Err() error { return in.err }

// Run integrates until the state leaves Running. Frames are saved every
// SavePeriod, at the initial time and on exit. A cancelled context stops
// the run gracefully and reports it as Failed.
func (in *Integrator) Run(ctx context.Context) dynamo.Result {
	s := in.System
	initialTime := s.Time
	lastSave, lastProcessMesh, lastUpdateGeodesics := s.Time, s.Time, s.Time

	for _, m := range in.metrics {
		m.Reset()
	}

	for {
		in.status()
		if err := ctx.Err(); err != nil && !in.State.Terminal() {
			in.fail(fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err))
		}
		exit := in.State.Terminal()

		if s.Time-lastSave >= in.SavePeriod || s.Time == initialTime || exit {
			lastSave = s.Time
			in.save()
		}

		if s.Time-lastProcessMesh > in.ProcessMeshPeriod {
			lastProcessMesh = s.Time
			if s.MutateMesh() {
				in.resetAfterMutation()
			}
		}

		if s.Time-lastUpdateGeodesics > in.UpdateGeodesicsPeriod {
			lastUpdateGeodesics = s.Time
			s.UpdateGeodesics()
			s.UpdateConfigurations()
		}

		if exit {
			break
		}

		if s.Time == lastProcessMesh || s.Time == lastUpdateGeodesics {
			s.Time += eventEpsilon * in.CharacteristicTimeStep
		} else {
			in.march()
		}
	}

	res := in.result()
	if !res.Success && in.Recorder != nil {
		if err := in.Recorder.MarkFailed(); err != nil {
			in.logger.Error("failed to mark run", "err", err)
		}
	}
	in.logger.Info("integration finished",
		"state", res.Status,
		"time", res.Time,
		"steps", res.Steps,
		"energy", res.Final.Total)
	return res
}

// Step runs status and march n times without saving or scheduled events.
// It stops early once the state is Failed.
func (in *Integrator) Step(n int) dynamo.Status {
	for i := 0; i < n; i++ {
		if in.State == dynamo.Failed {
			break
		}
		in.State = dynamo.Running
		in.status()
		if in.State == dynamo.Failed {
			break
		}
		in.march()
	}
	return in.State
}

func (in *Integrator) checkParameters() error {
	switch in.Scheme {
	case Euler:
		return checkEulerParameters(in)
	case VelocityVerlet:
		return checkVelocityVerletParameters(in)
	case ConjugateGradient:
		return checkConjugateGradientParameters(in)
	}
	return nil
}

func (in *Integrator) status() {
	switch in.Scheme {
	case Euler:
		statusEuler(in)
	case VelocityVerlet:
		statusVelocityVerlet(in)
	case ConjugateGradient:
		statusConjugateGradient(in)
	}
	for _, m := range in.metrics {
		m.Observe(in.sample())
	}
}

func (in *Integrator) march() {
	if in.IsAdaptiveStep {
		in.adaptTimeStep()
	}
	switch in.Scheme {
	case Euler:
		marchEuler(in)
	case VelocityVerlet:
		marchVelocityVerlet(in)
	case ConjugateGradient:
		marchConjugateGradient(in)
	}
	in.steps++
}

// computeForcing evaluates the forces a scheme steps with. The minimizers
// leave out the dissipative and stochastic parts.
func (in *Integrator) computeForcing() {
	s := in.System
	if in.Scheme.Dynamic() {
		s.ComputePhysicalForcing(in.TimeStep)
		return
	}
	s.ComputeConservativeForcing()
	s.ComputeChemicalPotentials()
}

// adaptTimeStep keeps dt proportional to the squared minimum edge length.
func (in *Integrator) adaptTimeStep() {
	l := in.System.Geometry.MinEdgeLength()
	in.CharacteristicTimeStep = in.DtSize2Ratio * l * l
	in.TimeStep = in.CharacteristicTimeStep
}

// checkCommon applies the exit rules every scheme shares: non-finite
// state and the energy cap. It expects the energy to be current.
func (in *Integrator) checkCommon() {
	s := in.System
	if math.IsNaN(in.TimeStep) || math.IsInf(in.TimeStep, 0) {
		in.logger.Error("time step is not finite", "dt", in.TimeStep)
		in.fail(fmt.Errorf("%w: time step %g", dynamo.ErrNonFinite, in.TimeStep))
		return
	}
	if !s.CheckFiniteness() {
		in.fail(s.FinitenessErrorBacktrace())
		return
	}
	if in.IsCapEnergy {
		e := s.Energy.Total - s.Energy.InteriorPenalty
		if e > 1.05*in.InitialTotalEnergy {
			in.logger.Error("energy increased beyond cap", "energy", e, "initial", in.InitialTotalEnergy)
			in.fail(fmt.Errorf("%w: E=%g, E0=%g", dynamo.ErrEnergyIncrease, e, in.InitialTotalEnergy))
		}
	}
}

func (in *Integrator) converged() bool {
	s := in.System
	return s.MechErrorNorm < in.Tolerance && s.ChemErrorNorm < in.Tolerance
}

func (in *Integrator) fail(err error) {
	in.State = dynamo.Failed
	if in.err == nil {
		in.err = &dynamo.SimulationError{
			Step:      in.steps,
			Time:      in.System.Time,
			Component: in.Scheme.String(),
			Wrapped:   err,
		}
	}
}

func (in *Integrator) finish(st dynamo.Status, reason string) {
	if in.State == dynamo.Failed {
		return
	}
	in.State = st
	in.logger.Info(reason, "time", in.System.Time, "mech_error", in.System.MechErrorNorm, "chem_error", in.System.ChemErrorNorm)
}

// resetAfterMutation refreshes the forcing and drops per-vertex history
// that no longer matches the connectivity.
func (in *Integrator) resetAfterMutation() {
	in.computeForcing()
	in.pastForce = in.System.Forces.Mechanical.Clone()
	in.cg = cgState{}
}

func (in *Integrator) save() {
	s := in.System
	sample := in.sample()
	for _, o := range in.observers {
		o.OnSample(sample)
	}
	if in.Recorder == nil {
		in.frame++
		return
	}
	if err := in.Recorder.Save(s, in.frame); err != nil {
		in.logger.Error("failed to save frame", "frame", in.frame, "err", err)
		in.fail(fmt.Errorf("save frame %d: %w", in.frame, err))
		return
	}
	in.logger.Debug("saved frame", "frame", in.frame, "time", s.Time, "energy", s.Energy.Total)
	in.frame++
}

func (in *Integrator) sample() dynamo.Sample {
	sample := in.System.Sample()
	sample.Step = in.steps
	return sample
}

// result reports Converged as success, TimedOut as success only for the
// dynamic scheme and Failed as failure.
func (in *Integrator) result() dynamo.Result {
	res := dynamo.Result{
		Status:  in.State,
		Time:    in.System.Time,
		Steps:   in.steps,
		Final:   in.sample(),
		Metrics: make(map[string]float64, len(in.metrics)),
		Err:     in.err,
	}
	switch in.State {
	case dynamo.Converged:
		res.Success = true
	case dynamo.TimedOut:
		res.Success = in.Scheme.Dynamic()
	}
	for _, m := range in.metrics {
		res.Metrics[m.Name()] = m.Value()
	}
	return res
}
