// Package dynamo provides the shared primitives of the membrane simulator.
//
// The package defines the vocabulary every other package speaks:
//
//   - [Field] and [VectorField]: per-vertex scalar and vector data
//   - [Status]: the integrator state machine (running, converged, timed out, failed)
//   - [Sample]: a flattened energy/force snapshot emitted once per save
//   - [Metric] and [Observer]: consumers of samples
//   - sentinel errors and [SimulationError] for classification with errors.Is
//
// # Example
//
//	sys, _ := membrane.NewSystem(geom, params, opts, remesh.DefaultMutator(), 1, nil)
//	integ, _ := integrators.New(sys, integrators.Euler, integrators.DefaultOptions(integrators.Euler))
//	res := integ.Run(ctx)
//	if errors.Is(res.Err, dynamo.ErrNonFinite) { ... }
//
// # Thread Safety
//
// Nothing in a simulation is safe for concurrent use. Independent runs may
// execute in parallel, each owning its own System and random source.
package dynamo
