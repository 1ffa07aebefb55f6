package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/san-kum/memdyn/internal/config"
	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/integrators"
	"github.com/san-kum/memdyn/internal/membrane"
	"github.com/san-kum/memdyn/internal/metrics"
	"github.com/san-kum/memdyn/internal/storage"
	"github.com/san-kum/memdyn/internal/viz"
)

const liveBuffer = 256

func runSimulation(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	dir := cfg.Output.Dir
	if cmd.Flags().Changed("data") || dir == "" {
		dir = dataDir
	}
	st := storage.New(dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if replicas > 1 {
		return runEnsemble(ctx, cfg, st, logger)
	}

	in, run, err := prepare(cfg, st, logger, live)
	if err != nil {
		return err
	}
	logger.Info("starting run", "id", run.ID(), "scheme", cfg.Integrator.Scheme,
		"vertices", in.System.Geometry.Mesh().NumVertices(), "total_time", cfg.Integrator.TotalTime)

	var res dynamo.Result
	if live {
		res, err = watch(ctx, in, run)
		if err != nil {
			return err
		}
	} else {
		res = in.Run(ctx)
	}
	return report(in, run, res)
}

// resolveConfig picks the base config and applies the flag overrides. A
// config file wins over a preset, and a preset over the config stored with
// a continued run.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	case len(args) == 1:
		if cfg = config.GetPreset(args[0]); cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (available: %v)", args[0], config.ListPresets())
		}
	case continueRun != "":
		meta, err := storage.New(dataDir).Load(continueRun)
		if err != nil {
			return nil, err
		}
		if len(meta.Config) == 0 {
			return nil, fmt.Errorf("run %s has no stored config, pass --config", continueRun)
		}
		if cfg, err = config.Parse(meta.Config); err != nil {
			return nil, err
		}
	default:
		cfg = config.DefaultConfig()
	}

	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if schemeName != "" {
		s, err := integrators.ParseScheme(schemeName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", dynamo.ErrConfiguration, err)
		}
		setScheme(cfg, s)
	}
	if cmd.Flags().Changed("dt") {
		cfg.Integrator.TimeStep = dt
	}
	if cmd.Flags().Changed("time") {
		cfg.Integrator.TotalTime = duration
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setScheme switches to the defaults of s but keeps the timing of the run.
func setScheme(cfg *config.Config, s integrators.Scheme) {
	old := cfg.Integrator.Options
	opts := integrators.DefaultOptions(s)
	opts.TimeStep = old.TimeStep
	opts.TotalTime = old.TotalTime
	opts.SavePeriod = old.SavePeriod
	opts.Tolerance = old.Tolerance
	opts.IsAdaptiveStep = old.IsAdaptiveStep
	opts.ProcessMeshPeriod = old.ProcessMeshPeriod
	opts.UpdateGeodesicsPeriod = old.UpdateGeodesicsPeriod
	cfg.Integrator.Scheme = s
	cfg.Integrator.Options = opts
}

// buildSystem constructs the membrane from the config, or from a stored
// frame or ply file when continuing.
func buildSystem(cfg *config.Config, logger *log.Logger) (*membrane.System, error) {
	switch {
	case continueRun != "":
		frame, err := storage.New(dataDir).LoadFrame(continueRun, frameIndex)
		if err != nil {
			return nil, fmt.Errorf("load frame: %w", err)
		}
		g, err := frame.Geometry()
		if err != nil {
			return nil, err
		}
		sys, err := cfg.BuildSystemOn(g, logger)
		if err != nil {
			return nil, err
		}
		return sys, sys.Continue(frame.State(), len(frame.Triangles))
	case continuePLY != "":
		f, err := os.Open(continuePLY)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		ply, err := storage.ReadPLY(f)
		if err != nil {
			return nil, err
		}
		g, err := ply.Geometry()
		if err != nil {
			return nil, err
		}
		sys, err := cfg.BuildSystemOn(g, logger)
		if err != nil {
			return nil, err
		}
		return sys, sys.Continue(ply.State(0), len(ply.Faces))
	}
	return cfg.BuildSystem(logger)
}

// prepare builds the integrator and opens its run directory.
func prepare(cfg *config.Config, st *storage.Store, logger *log.Logger, withSamples bool) (*integrators.Integrator, *storage.Run, error) {
	sys, err := buildSystem(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	in, err := cfg.BuildIntegrator(sys)
	if err != nil {
		return nil, nil, err
	}
	raw, err := cfg.JSON()
	if err != nil {
		return nil, nil, err
	}

	m := sys.Geometry.Mesh()
	opts := cfg.RecorderOptions()
	if withSamples {
		opts.Buffer = liveBuffer
	}
	run, err := st.Create(storage.RunMetadata{
		Name:      cfg.Output.Name,
		Seed:      cfg.Seed,
		Scheme:    cfg.Integrator.Scheme.String(),
		Dt:        cfg.Integrator.TimeStep,
		TotalTime: cfg.Integrator.TotalTime,
		Vertices:  m.NumVertices(),
		Faces:     m.NumFaces(),
		Config:    raw,
	}, opts)
	if err != nil {
		return nil, nil, err
	}
	in.Recorder = run

	in.AddMetric(metrics.NewDescent())
	in.AddMetric(metrics.NewForceNorm())
	in.AddMetric(metrics.NewConstraintError(sys.TargetArea(), sys.TargetVolume()))
	if cfg.Integrator.Scheme.Dynamic() {
		in.AddMetric(metrics.NewEnergyDrift())
		in.AddMetric(metrics.NewMeanKinetic())
	}
	return in, run, nil
}

// watch integrates in the background while the dashboard follows the run.
// Quitting the dashboard early cancels the integration.
func watch(ctx context.Context, in *integrators.Integrator, run *storage.Run) (dynamo.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var res dynamo.Result
	finished := make(chan struct{})
	done := make(chan dynamo.Result, 1)
	go func() {
		res = in.Run(ctx)
		close(finished)
		done <- res
	}()

	if _, err := viz.Watch(run.ID(), in.TotalTime, run.Samples(), done, cancel); err != nil {
		cancel()
		<-finished
		log.Warn("dashboard closed", "err", err)
		return res, nil
	}
	<-finished
	return res, nil
}

// report finalizes the run directory and prints its summary. A run that
// did not succeed becomes a non-nil error.
func report(in *integrators.Integrator, run *storage.Run, res dynamo.Result) error {
	run.SetFaces(in.System.Geometry.Mesh().NumFaces())
	if err := run.Finish(res); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	samples, err := storage.LoadEnergies(run.Dir())
	if err != nil {
		log.Warn("could not read energies", "dir", run.Dir(), "err", err)
	}
	fmt.Println(viz.Summary(run.Metadata(), samples, 80))

	if res.Success {
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("run %s %s: %w", run.ID(), res.Status, res.Err)
	}
	return fmt.Errorf("run %s ended %s without converging", run.ID(), res.Status)
}

// runEnsemble integrates replicas with consecutive seeds, one run
// directory each.
func runEnsemble(ctx context.Context, cfg *config.Config, st *storage.Store, logger *log.Logger) error {
	type replica struct {
		in  *integrators.Integrator
		run *storage.Run
	}
	built := make([]replica, replicas)

	factory := func(s uint64) (*integrators.Integrator, error) {
		c := cfg.Clone()
		c.Seed = s
		c.Output.Name = fmt.Sprintf("%s_seed%d", cfg.Output.Name, s)
		in, run, err := prepare(c, st, logger.With("seed", s), false)
		if err != nil {
			return nil, err
		}
		built[s-cfg.Seed] = replica{in: in, run: run}
		return in, nil
	}

	ens := integrators.NewEnsemble(factory, replicas, cfg.Seed)
	ens.SetLimit(parallel)
	results, err := ens.Run(ctx)
	if err != nil {
		for _, r := range built {
			if r.run != nil {
				r.run.Close()
			}
		}
		return err
	}

	var errs []error
	for i, res := range results {
		if err := report(built[i].in, built[i].run, res); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Info("ensemble finished", "replicas", replicas, "failed", len(errs))
	return errors.Join(errs...)
}
