package optim

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/memdyn/internal/config"
	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/integrators"
)

// EnergyMetric selects the final total energy instead of a named metric.
const EnergyMetric = "energy"

// Axis is one swept config value, addressed by its dotted YAML path.
type Axis struct {
	Path   string
	Values []float64
}

// ParseAxis reads "path=v1,v2,..." or "path=lo:hi:n" (n evenly spaced
// values including both ends).
func ParseAxis(s string) (Axis, error) {
	path, list, ok := strings.Cut(s, "=")
	if !ok || path == "" || list == "" {
		return Axis{}, fmt.Errorf("axis %q: want path=values", s)
	}
	if parts := strings.Split(list, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil || n < 2 {
			return Axis{}, fmt.Errorf("axis %q: bad range %q", s, list)
		}
		return Axis{Path: path, Values: floats.Span(make([]float64, n), lo, hi)}, nil
	}
	var values []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %q: %w", s, err)
		}
		values = append(values, v)
	}
	return Axis{Path: path, Values: values}, nil
}

// Point is one evaluated grid point.
type Point struct {
	Params map[string]float64
	Result dynamo.Result
	Value  float64
	Err    error
}

// Builder turns the config of a grid point into a ready integrator.
type Builder func(cfg *config.Config) (*integrators.Integrator, error)

type GridSearch struct {
	axes   []Axis
	metric string
	limit  int
}

func NewGridSearch(axes []Axis, metric string) *GridSearch {
	if metric == "" {
		metric = EnergyMetric
	}
	return &GridSearch{axes: axes, metric: metric, limit: runtime.GOMAXPROCS(0)}
}

// SetLimit caps the number of grid points integrated at once.
func (g *GridSearch) SetLimit(n int) {
	if n > 0 {
		g.limit = n
	}
}

// Points enumerates the cartesian product of the axes, the last axis
// varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.axes) {
		*out = append(*out, current)
		return
	}
	axis := g.axes[depth]
	for _, v := range axis.Values {
		next := make(map[string]float64, len(current)+1)
		for k, x := range current {
			next[k] = x
		}
		next[axis.Path] = v
		g.enumerate(depth+1, next, out)
	}
}

// Search integrates every grid point and returns them in enumeration
// order together with the index of the point with the lowest metric, or
// -1 when every point failed. A point that runs out of time still counts.
// Per-point failures land in Point.Err. Only a cancelled context aborts the search.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, build Builder) ([]Point, int, error) {
	if build == nil {
		build = func(c *config.Config) (*integrators.Integrator, error) { return c.Build(nil) }
	}
	grid := g.Points()
	points := make([]Point, len(grid))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.limit)
	for i, params := range grid {
		eg.Go(func() error {
			points[i] = g.evaluate(ctx, base, params, build)
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return points, -1, err
	}

	best := -1
	for i, p := range points {
		if p.Err == nil && (best < 0 || p.Value < points[best].Value) {
			best = i
		}
	}
	return points, best, nil
}

func (g *GridSearch) evaluate(ctx context.Context, base *config.Config, params map[string]float64, build Builder) Point {
	p := Point{Params: params, Value: math.NaN()}
	cfg := base
	paths := make([]string, 0, len(params))
	for path := range params {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	for _, path := range paths {
		next, err := cfg.With(path, params[path])
		if err != nil {
			p.Err = err
			return p
		}
		cfg = next
	}
	in, err := build(cfg)
	if err != nil {
		p.Err = err
		return p
	}

	p.Result = in.Run(ctx)
	if p.Result.Status == dynamo.Failed {
		p.Err = p.Result.Err
		if p.Err == nil {
			p.Err = fmt.Errorf("integration failed")
		}
	}
	if g.metric == EnergyMetric {
		p.Value = p.Result.Final.Total
	} else if v, ok := p.Result.Metrics[g.metric]; ok {
		p.Value = v
	} else if p.Err == nil {
		p.Err = fmt.Errorf("metric %q was not recorded", g.metric)
	}
	return p
}
