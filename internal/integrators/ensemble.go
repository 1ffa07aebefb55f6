package integrators

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// Factory builds an independent Integrator for one replica seed.
type Factory func(seed uint64) (*Integrator, error)

// Ensemble runs replicas of a thermal simulation that differ only in their
// noise seed.
type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart uint64
	limit     int
}

func NewEnsemble(f Factory, numRuns int, seedStart uint64) *Ensemble {
	return &Ensemble{factory: f, numRuns: numRuns, seedStart: seedStart, limit: runtime.GOMAXPROCS(0)}
}

// SetLimit caps the number of replicas integrated at once.
func (e *Ensemble) SetLimit(n int) {
	if n > 0 {
		e.limit = n
	}
}

// Run integrates every replica and returns the results in seed order.
// Replica failures are reported in their Result. Only a replica that
// cannot be built aborts the ensemble.
func (e *Ensemble) Run(ctx context.Context) ([]dynamo.Result, error) {
	results := make([]dynamo.Result, e.numRuns)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := 0; i < e.numRuns; i++ {
		seed := e.seedStart + uint64(i)
		g.Go(func() error {
			in, err := e.factory(seed)
			if err != nil {
				return fmt.Errorf("replica %d (seed %d): %w", i, seed, err)
			}
			results[i] = in.Run(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
