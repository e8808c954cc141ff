package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/san-kum/mdscript/internal/batch"
	"github.com/san-kum/mdscript/internal/config"
	"github.com/san-kum/mdscript/internal/engine"
	"github.com/san-kum/mdscript/internal/report"
	"github.com/san-kum/mdscript/internal/script"
	"github.com/san-kum/mdscript/internal/storage"
	"github.com/san-kum/mdscript/internal/tui"
	"github.com/spf13/cobra"
)

var (
	configFile string
	dataDir    string
	format     string
	units      string
	lenient    bool
	verbose    bool
	// plan flags
	save       bool
	graph      bool
	showEvents bool
	// batch flags
	workers int

	cfg    *config.Config
	logger *slog.Logger
)

// main registers the mdscript commands and exits with status 1 if the
// selected command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "mdscript",
		Short:         "read, check and sequence molecular dynamics input scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "mdscript.yaml", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory for saved plans")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", config.DefaultFormat, "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&units, "units", config.DefaultUnits, "unit style before any units directive")
	rootCmd.PersistentFlags().BoolVar(&lenient, "lenient", false, "keep unknown directives instead of failing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	parseCmd := &cobra.Command{
		Use:   "parse [script]",
		Short: "print the directives of a script in order",
		Args:  cobra.ExactArgs(1),
		RunE:  parseScript,
	}

	checkCmd := &cobra.Command{
		Use:   "check [script]",
		Short: "dry-run a script and stop at the first bad directive",
		Args:  cobra.ExactArgs(1),
		RunE:  checkScript,
	}

	planCmd := &cobra.Command{
		Use:   "plan [script]",
		Short: "dry-run a script and show its phases and output schedule",
		Args:  cobra.ExactArgs(1),
		RunE:  planScript,
	}
	planCmd.Flags().BoolVar(&save, "save", false, "store the plan in the data directory")
	planCmd.Flags().BoolVar(&graph, "graph", false, "plot cumulative output over the run")
	planCmd.Flags().BoolVar(&showEvents, "events", false, "list every thermo row and dump frame")

	execCmd := &cobra.Command{
		Use:   "exec [script]",
		Short: "validate a script and forward it to the configured engine",
		Args:  cobra.ExactArgs(1),
		RunE:  execScript,
	}

	stepCmd := &cobra.Command{
		Use:   "step [script]",
		Short: "apply a script one directive at a time",
		Args:  cobra.ExactArgs(1),
		RunE:  stepScript,
	}

	batchCmd := &cobra.Command{
		Use:   "batch [manifest]",
		Short: "check every script listed in a yaml manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&workers, "workers", config.DefaultWorkers, "scripts checked in parallel")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved plans",
		RunE:  listPlans,
	}

	showCmd := &cobra.Command{
		Use:   "show [plan_id]",
		Short: "show a saved plan",
		Args:  cobra.ExactArgs(1),
		RunE:  showPlan,
	}
	showCmd.Flags().BoolVar(&showEvents, "events", false, "list every thermo row and dump frame")

	directivesCmd := &cobra.Command{
		Use:   "directives",
		Short: "list the directives the checker knows",
		RunE:  listDirectives,
	}

	rootCmd.AddCommand(parseCmd, checkCmd, planCmd, execCmd, stepCmd, batchCmd, listCmd, showCmd, directivesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, report.StatusFail.Render("error:"), err)
		os.Exit(1)
	}
}

// setup loads the config file and lets explicitly set flags override it.
func setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var err error
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadOrDefault(configFile)
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("format") {
		cfg.Format = format
	}
	if flags.Changed("units") {
		cfg.Units = units
	}
	if flags.Changed("lenient") {
		cfg.Strict = !lenient
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Debug("config loaded", "units", cfg.Units, "strict", cfg.Strict, "format", cfg.Format, "data", cfg.DataDir)
	return nil
}

func newRegistry() *engine.Registry {
	reg := engine.NewRegistry()
	for _, name := range cfg.ExtraDirectives {
		reg.Passthrough(name, 0, "site directive from config")
	}
	return reg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// dryRun parses path and applies it to a fresh recorder. The returned
// state reflects every directive applied before a failure.
func dryRun(ctx context.Context, path string) (*script.Script, *engine.Recorder, error) {
	s, err := script.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	rec := engine.NewRecorder(newRegistry(), cfg.Units, cfg.Strict)
	n, err := engine.NewSequencer(rec, logger).Run(ctx, s.Directives)
	logger.Debug("dry run finished", "script", path, "applied", n, "total", s.Len())
	return s, rec, err
}

func parseScript(cmd *cobra.Command, args []string) error {
	s, err := script.ParseFile(args[0])
	if err != nil {
		return err
	}
	if cfg.Format != "table" {
		return report.Encode(os.Stdout, cfg.Format, s)
	}
	return report.Directives(os.Stdout, s.Directives)
}

func checkScript(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, rec, err := dryRun(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: %d directives, %d phases, final step %d\n",
		report.StatusOK.Render("ok"), args[0], s.Len(), len(rec.State().Phases), rec.State().Step)
	return nil
}

type planOutput struct {
	Script string         `json:"script" yaml:"script"`
	State  *engine.State  `json:"state" yaml:"state"`
	Events []engine.Event `json:"events,omitempty" yaml:"events,omitempty"`
	PlanID string         `json:"plan_id,omitempty" yaml:"plan_id,omitempty"`
}

func planScript(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, rec, err := dryRun(ctx, args[0])
	if err != nil {
		return err
	}
	st := rec.State()

	out := planOutput{Script: args[0], State: st}
	if showEvents && cfg.Format != "table" {
		out.Events = st.Events()
	}

	if save {
		store := storage.New(cfg.DataDir)
		if err := store.Init(); err != nil {
			return err
		}
		out.PlanID, err = store.Save(args[0], st)
		if err != nil {
			return fmt.Errorf("save plan: %w", err)
		}
		logger.Info("plan saved", "id", out.PlanID, "dir", cfg.DataDir)
	}

	return printPlan(out)
}

func printPlan(out planOutput) error {
	if cfg.Format != "table" {
		return report.Encode(os.Stdout, cfg.Format, out)
	}

	fmt.Println(report.Title.Render(out.Script))
	fmt.Println()
	if err := report.State(os.Stdout, out.State); err != nil {
		return err
	}
	if graph {
		if plot := report.CadencePlot(out.State, 70, 12); plot != "" {
			fmt.Println()
			fmt.Println(plot)
		}
	}
	switch {
	case len(out.Events) > 0:
		fmt.Println()
		if err := report.Events(os.Stdout, out.Events); err != nil {
			return err
		}
	case showEvents:
		fmt.Println()
		if err := report.Schedule(os.Stdout, out.State); err != nil {
			return err
		}
	}
	if out.PlanID != "" {
		fmt.Println()
		fmt.Println(report.Metric("saved as", out.PlanID))
	}
	return nil
}

func execScript(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := script.ParseFile(args[0])
	if err != nil {
		return err
	}

	// check the whole script first so a late error never leaves the
	// engine half configured
	check := engine.NewRecorder(newRegistry(), cfg.Units, cfg.Strict)
	if _, err := engine.NewSequencer(check, logger).Run(ctx, s.Directives); err != nil {
		return err
	}

	proc, err := engine.StartExec(ctx, cfg.Engine.Binary, cfg.Engine.Args, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	logger.Info("engine started", "binary", cfg.Engine.Binary, "directives", s.Len())

	_, runErr := engine.NewSequencer(proc, logger).Run(ctx, s.Directives)
	closeErr := proc.Close()
	if err := errors.Join(runErr, closeErr); err != nil {
		return fmt.Errorf("engine %s: %w", cfg.Engine.Binary, err)
	}
	return nil
}

func stepScript(cmd *cobra.Command, args []string) error {
	s, err := script.ParseFile(args[0])
	if err != nil {
		return err
	}
	rec := engine.NewRecorder(newRegistry(), cfg.Units, cfg.Strict)
	return tui.RunStepper(args[0], s.Directives, rec)
}

type batchRow struct {
	Path    string `json:"path" yaml:"path"`
	Applied int    `json:"applied" yaml:"applied"`
	Total   int    `json:"total" yaml:"total"`
	Steps   int64  `json:"steps" yaml:"steps"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	m, err := batch.LoadManifest(args[0])
	if err != nil {
		return err
	}

	results := batch.Check(ctx, m, batch.Options{
		Units:    cfg.Units,
		Strict:   cfg.Strict,
		Workers:  cfg.Workers,
		Registry: newRegistry,
	})

	rows := make([]batchRow, len(results))
	for i, r := range results {
		rows[i] = batchRow{Path: r.Path, Applied: r.Applied, Total: r.Total}
		if r.State != nil {
			rows[i].Steps = r.State.TotalSteps()
		}
		if r.Err != nil {
			rows[i].Error = r.Err.Error()
		}
	}

	if cfg.Format != "table" {
		if err := report.Encode(os.Stdout, cfg.Format, rows); err != nil {
			return err
		}
	} else {
		if m.Name != "" {
			fmt.Println(report.Title.Render(m.Name))
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tSCRIPT\tAPPLIED\tSTEPS\tERROR")
		for _, r := range rows {
			status := report.StatusOK.Render("ok")
			if r.Error != "" {
				status = report.StatusFail.Render("fail")
			}
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n", status, r.Path, r.Applied, r.Total, r.Steps, r.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if n := batch.Failed(results); n > 0 {
		return fmt.Errorf("%d of %d scripts failed", n, len(results))
	}
	return nil
}

func listPlans(cmd *cobra.Command, args []string) error {
	st := storage.New(cfg.DataDir)
	plans, err := st.List()
	if err != nil {
		return err
	}

	if cfg.Format != "table" {
		return report.Encode(os.Stdout, cfg.Format, plans)
	}

	if len(plans) == 0 {
		fmt.Println("no plans found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCRIPT\tTIME\tUNITS\tDIRECTIVES\tPHASES\tSTEPS\tTHERMO\tFRAMES")

	for _, p := range plans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			p.ID,
			p.Script,
			p.Timestamp.Format("2006-01-02 15:04:05"),
			p.Units,
			p.Directives,
			p.Phases,
			p.TotalSteps,
			p.ThermoRows,
			p.DumpFrames,
		)
	}

	return w.Flush()
}

func showPlan(cmd *cobra.Command, args []string) error {
	planID := args[0]

	st := storage.New(cfg.DataDir)
	meta, err := st.Load(planID)
	if err != nil {
		return err
	}
	state, err := st.LoadState(planID)
	if err != nil {
		return err
	}

	out := planOutput{Script: meta.Script, State: state, PlanID: meta.ID}
	if showEvents {
		out.Events, err = st.LoadEvents(planID)
		if err != nil {
			return err
		}
	}
	return printPlan(out)
}

func listDirectives(cmd *cobra.Command, args []string) error {
	reg := newRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DIRECTIVE\tARGS\tSUMMARY")
	for _, name := range reg.Names() {
		spec, _ := reg.Lookup(name)
		arity := fmt.Sprintf("%d+", spec.MinArgs)
		if spec.MaxArgs != engine.Unbounded {
			arity = fmt.Sprintf("%d-%d", spec.MinArgs, spec.MaxArgs)
			if spec.MinArgs == spec.MaxArgs {
				arity = fmt.Sprintf("%d", spec.MinArgs)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, arity, spec.Summary)
	}
	return w.Flush()
}
