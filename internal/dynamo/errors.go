package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for membrane simulation operations.
var (
	// ErrConfiguration indicates an inconsistent parameter or option combination.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrTopology indicates a mesh that cannot be simulated or does not match
	// the continuation data.
	ErrTopology = errors.New("dynamo: invalid mesh topology")

	// ErrNonFinite indicates a force, potential or energy became NaN or Inf.
	ErrNonFinite = errors.New("dynamo: non-finite value detected")

	// ErrLineSearch indicates backtracking could not find a decreasing step.
	ErrLineSearch = errors.New("dynamo: line search failed to find a decreasing step")

	// ErrEnergyIncrease indicates the energy cap tripped.
	ErrEnergyIncrease = errors.New("dynamo: system energy increased beyond cap")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step      int
	Time      float64
	Component string
	Wrapped   error
}

func (e *SimulationError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("step %d (t=%.4g): %s: %v", e.Step, e.Time, e.Component, e.Wrapped)
	}
	return fmt.Sprintf("step %d (t=%.4g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

// Configurationf returns an ErrConfiguration carrying a formatted message.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Topologyf returns an ErrTopology carrying a formatted message.
func Topologyf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTopology, fmt.Sprintf(format, args...))
}
