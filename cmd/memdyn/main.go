package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/san-kum/memdyn/internal/config"
	"github.com/san-kum/memdyn/internal/optim"
	"github.com/san-kum/memdyn/internal/storage"
)

var (
	dataDir  string
	logLevel string
	seed     uint64

	configFile  string
	schemeName  string
	dt          float64
	duration    float64
	live        bool
	continueRun string
	frameIndex  int
	continuePLY string
	replicas    int
	parallel    int

	width int
	yaw   float64
	pitch float64

	outDir   string
	chartSVG bool

	initPreset string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "memdyn",
		Short:         "membrane mechanics and protein dynamics on triangle meshes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run store directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 1, "random seed (overrides the config)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a simulation from a preset or config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&schemeName, "scheme", "", "euler, velocity_verlet or conjugate_gradient")
	runCmd.Flags().Float64Var(&dt, "dt", 0, "time step")
	runCmd.Flags().Float64Var(&duration, "time", 0, "total time")
	runCmd.Flags().BoolVar(&live, "live", false, "follow the run in a terminal dashboard")
	runCmd.Flags().StringVar(&continueRun, "continue", "", "continue from a stored run id")
	runCmd.Flags().IntVar(&frameIndex, "frame", -1, "frame to continue from (-1 is the last)")
	runCmd.Flags().StringVar(&continuePLY, "continue-ply", "", "continue from an ascii ply mesh")
	runCmd.Flags().IntVar(&replicas, "replicas", 1, "independent replicas with consecutive seeds")
	runCmd.Flags().IntVar(&parallel, "parallel", 0, "replicas integrated at once (0 is GOMAXPROCS)")
	runCmd.MarkFlagsMutuallyExclusive("continue", "continue-ply")
	runCmd.MarkFlagsMutuallyExclusive("live", "replicas")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "summarize a run and draw its last frame",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().IntVar(&width, "width", 80, "terminal width")
	showCmd.Flags().Float64Var(&yaw, "yaw", 0.5236, "view yaw in radians")
	showCmd.Flags().Float64Var(&pitch, "pitch", -0.2618, "view pitch in radians")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "write the energy chart, a mesh svg and the run data as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&outDir, "out", "", "output directory (default: the run directory)")
	exportCmd.Flags().BoolVar(&chartSVG, "svg", false, "render the energy chart as svg instead of png")
	exportCmd.Flags().Float64Var(&yaw, "yaw", 0.5236, "view yaw in radians")
	exportCmd.Flags().Float64Var(&pitch, "pitch", -0.2618, "view pitch in radians")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list the built-in presets",
		RunE:  listPresets,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "run a parameter grid and rank it by a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepParameters,
	}
	sweepCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	sweepCmd.Flags().StringArrayVar(&sweepAxes, "param", nil, "swept value as path=v1,v2 or path=lo:hi:n (repeatable)")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", optim.EnergyMetric, "metric to minimize")
	sweepCmd.Flags().IntVar(&parallel, "parallel", 0, "grid points integrated at once (0 is GOMAXPROCS)")

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a config file to start from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if initPreset != "" {
				if cfg = config.GetPreset(initPreset); cfg == nil {
					return fmt.Errorf("unknown preset %q (available: %v)", initPreset, config.ListPresets())
				}
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().StringVar(&initPreset, "preset", "", "start from a preset")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, exportCmd, presetsCmd, sweepCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*log.Logger, error) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "memdyn",
	})
	log.SetDefault(logger)
	return logger, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCHEME\tSTATE\tTIME\tSTEPS\tFRAMES\tMESH\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4g/%g\t%d\t%d\t%dv %df\t%s\n",
			run.ID,
			run.Scheme,
			run.State,
			run.Time, run.TotalTime,
			run.Steps,
			run.Frames,
			run.Vertices, run.Faces,
			run.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEME\tMESH\tDT\tTIME")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\n",
			name,
			cfg.Integrator.Scheme,
			cfg.Mesh.Generator,
			cfg.Integrator.TimeStep,
			cfg.Integrator.TotalTime,
		)
	}
	return w.Flush()
}
