package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/memdyn/internal/config"
	"github.com/san-kum/memdyn/internal/integrators"
	"github.com/san-kum/memdyn/internal/metrics"
	"github.com/san-kum/memdyn/internal/optim"
)

var (
	sweepAxes   []string
	sweepMetric string
)

func sweepParameters(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(sweepAxes) == 0 {
		return fmt.Errorf("no --param given")
	}
	axes := make([]optim.Axis, len(sweepAxes))
	for i, s := range sweepAxes {
		if axes[i], err = optim.ParseAxis(s); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := optim.NewGridSearch(axes, sweepMetric)
	g.SetLimit(parallel)
	logger.Info("starting sweep", "points", len(g.Points()), "metric", sweepMetric)
	points, best, err := g.Search(ctx, cfg, func(c *config.Config) (*integrators.Integrator, error) {
		in, err := c.Build(logger)
		if err != nil {
			return nil, err
		}
		in.AddMetric(metrics.NewDescent())
		in.AddMetric(metrics.NewForceNorm())
		in.AddMetric(metrics.NewConstraintError(in.System.TargetArea(), in.System.TargetVolume()))
		return in, nil
	})
	if err != nil {
		return err
	}

	paths := make([]string, len(axes))
	for i, a := range axes {
		paths[i] = a.Path
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := slices.Clone(paths)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(append(header, "state", sweepMetric, ""), "\t")))
	for i, p := range points {
		row := make([]string, 0, len(paths)+3)
		for _, path := range paths {
			row = append(row, fmt.Sprintf("%g", p.Params[path]))
		}
		row = append(row, p.Result.Status.String())
		if p.Err != nil {
			row = append(row, "-", p.Err.Error())
		} else if i == best {
			row = append(row, fmt.Sprintf("%.6g", p.Value), "best")
		} else {
			row = append(row, fmt.Sprintf("%.6g", p.Value), "")
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best < 0 {
		return fmt.Errorf("every grid point failed")
	}
	return nil
}
