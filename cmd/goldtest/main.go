package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"goldtest/internal/config"
	"goldtest/internal/gold"
	"goldtest/internal/history"
	"goldtest/internal/logging"
	"goldtest/internal/normalize"
	"goldtest/internal/report"
	"goldtest/internal/review"
	"goldtest/internal/run"
	"goldtest/internal/suite"
	"goldtest/internal/toolexec"
	"goldtest/internal/watch"
)

var (
	// Global flags
	verbose    bool
	debug      bool
	suiteDir   string
	configPath string
	noColor    bool

	// Run flags
	jsonOutput bool
	pending    bool
	workers    int
	toolBinary string

	// History flags
	historyN     int
	historyFlaky bool
	historyCase  string

	// Review flags
	acceptAll bool
	rejectAll bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "goldtest",
	Short: "goldtest - golden-file testing for compiler and CLI diagnostics",
	Long: `goldtest runs a tool against a suite of test programs, captures its
stderr, and compares it byte-for-byte against golden ".stderr" files.

Each test case is a source file with optional //@ directives in its
header (expected exit code, extra args, stdin, per-case normalization).
Absolute paths in captured output are rewritten to $DIR and $TMPDIR so
goldens stay machine-independent.

Typical workflow:
  goldtest init          # write a starter goldtest.yaml
  goldtest run           # check all cases against their goldens
  goldtest bless         # rewrite goldens from current output
  goldtest run --pending # stash mismatches as .pending snapshots
  goldtest review        # interactively accept or reject snapshots`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [pattern...]",
	Short: "Run test cases and compare output against goldens",
	Long: `Runs every discovered case (or only those whose names contain one of
the given patterns) and compares normalized stderr against the golden
file. A missing golden counts as a failure; run "goldtest bless" or
"goldtest review" to create it.

Exits non-zero when any case fails, is new, or hits an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := run.ModeCheck
		if pending {
			mode = run.ModePending
		}
		return runSuite(args, mode)
	},
}

var blessCmd = &cobra.Command{
	Use:   "bless [pattern...]",
	Short: "Rewrite golden files from current tool output",
	Long: `Runs the selected cases and overwrites their golden files with the
normalized output. Cases whose output already matches are left alone.

Review the resulting diff in version control before committing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSuite(args, run.ModeBless)
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactively accept or reject pending snapshots",
	Long: `Opens each .pending snapshot produced by "goldtest run --pending" as
a diff against the current golden. Accepting promotes the snapshot to
the golden file; rejecting discards it.

Use --accept-all or --reject-all to resolve everything without the
interactive screen.`,
	RunE: runReview,
}

var listCmd = &cobra.Command{
	Use:   "list [pattern...]",
	Short: "List discovered test cases",
	RunE:  runList,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun affected cases when sources or goldens change",
	Long: `Watches the suite directories and reruns the cases belonging to any
changed source or golden file. Stop with Ctrl-C.`,
	RunE: runWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded run history",
	Long: `Shows recent runs from the history database. With --case, shows the
outcome history of a single case. With --flaky, lists cases that both
passed and failed within the window.`,
	RunE: runHistory,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter goldtest.yaml",
	RunE:  runInit,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (include passing cases)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging to .goldtest/logs/")
	rootCmd.PersistentFlags().StringVarP(&suiteDir, "dir", "C", ".", "Suite root directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <dir>/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit a JSON report instead of text")
	runCmd.Flags().BoolVar(&pending, "pending", false, "Store mismatched output as .pending snapshots")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (overrides config)")
	runCmd.Flags().StringVar(&toolBinary, "tool", "", "Tool binary (overrides config)")
	blessCmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (overrides config)")
	blessCmd.Flags().StringVar(&toolBinary, "tool", "", "Tool binary (overrides config)")

	reviewCmd.Flags().BoolVar(&acceptAll, "accept-all", false, "Promote every pending snapshot")
	reviewCmd.Flags().BoolVar(&rejectAll, "reject-all", false, "Discard every pending snapshot")

	historyCmd.Flags().IntVarP(&historyN, "runs", "n", 20, "How many runs to consider")
	historyCmd.Flags().BoolVar(&historyFlaky, "flaky", false, "List flaky cases instead of runs")
	historyCmd.Flags().StringVar(&historyCase, "case", "", "Show history for one case")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(blessCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
}

// errRunFailed signals a run with failing cases; the report already
// explains them, so main exits without reprinting.
var errRunFailed = errors.New("run failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// harness bundles everything a command needs to talk to the suite.
type harness struct {
	root   string
	cfg    *config.Config
	suite  *suite.Suite
	runner *run.Runner
}

// setup loads config, initializes logging, and discovers the suite.
func setup() (*harness, error) {
	root, err := filepath.Abs(suiteDir)
	if err != nil {
		return nil, err
	}

	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.DefaultFileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if toolBinary != "" {
		cfg.Tool.Binary = toolBinary
	}
	if workers > 0 {
		cfg.Execution.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize(root, debug || cfg.Logging.Debug, cfg.Logging.Level); err != nil {
		logger.Warn("Debug logging unavailable", zap.Error(err))
	}
	logging.Harness("Suite root: %s, config: %s", root, cfgPath)

	s, err := suite.Discover(root, cfg)
	if err != nil {
		return nil, fmt.Errorf("discovering cases: %w", err)
	}
	logger.Debug("Discovered suite",
		zap.Int("cases", len(s.Cases)),
		zap.Int("orphanGoldens", len(s.OrphanGoldens)))

	executor := toolexec.NewDirectExecutorWithConfig(toolexec.Config{
		DefaultDir:     root,
		DefaultTimeout: cfg.GetDefaultTimeout(),
		MaxOutputBytes: cfg.Execution.MaxOutputBytes,
		AllowedEnv:     cfg.Execution.AllowedEnvVars,
	})
	norm, err := normalize.New(root, os.TempDir(), cfg.Normalize)
	if err != nil {
		return nil, fmt.Errorf("building normalizer: %w", err)
	}

	return &harness{
		root:   root,
		cfg:    cfg,
		suite:  s,
		runner: run.New(cfg, executor, norm),
	}, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

func runSuite(patterns []string, mode run.Mode) error {
	h, err := setup()
	if err != nil {
		return err
	}

	cases := h.suite.Filter(patterns)
	if len(cases) == 0 {
		return fmt.Errorf("no cases match %v", patterns)
	}

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := h.runner.Run(ctx, cases, mode)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := report.WriteJSON(os.Stdout, summary); err != nil {
			return err
		}
	} else {
		r := report.NewRenderer(os.Stdout)
		r.Verbose = verbose
		r.NoColor = noColor
		r.Render(summary)
	}

	recordHistory(h, summary)

	if mode == run.ModeBless {
		return nil
	}
	if !summary.Ok() {
		return errRunFailed
	}
	return nil
}

// recordHistory persists the run if history is enabled. Failures here
// never fail the run.
func recordHistory(h *harness, summary *run.Summary) {
	if !h.cfg.History.Enabled {
		return
	}
	store, err := openHistory(h)
	if err != nil {
		logger.Warn("History unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	if err := store.Record(summary); err != nil {
		logger.Warn("Failed to record run", zap.Error(err))
		return
	}
	if err := store.Prune(h.cfg.History.Keep); err != nil {
		logger.Warn("Failed to prune history", zap.Error(err))
	}
}

func openHistory(h *harness) (*history.Store, error) {
	dbPath := h.cfg.History.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(h.root, dbPath)
	}
	return history.NewStore(dbPath)
}

func runReview(cmd *cobra.Command, args []string) error {
	h, err := setup()
	if err != nil {
		return err
	}

	items, err := review.LoadItems(h.root, h.cfg.Suite.Roots...)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No pending snapshots.")
		return nil
	}

	if acceptAll || rejectAll {
		for _, item := range items {
			if acceptAll {
				err = gold.Promote(item.GoldenPath)
			} else {
				err = gold.Reject(item.GoldenPath)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", item.Name, err)
			}
		}
		verb := "Accepted"
		if rejectAll {
			verb = "Rejected"
		}
		fmt.Printf("%s %d snapshots.\n", verb, len(items))
		return nil
	}

	accepted, rejected, remaining, err := review.Run(items)
	if err != nil {
		return err
	}
	fmt.Printf("Accepted %d, rejected %d, %d still pending.\n", accepted, rejected, remaining)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	h, err := setup()
	if err != nil {
		return err
	}

	cases := h.suite.Filter(args)
	for _, c := range cases {
		status := "golden"
		if !c.HasGolden {
			status = "no golden"
		}
		if gold.HasPending(c.Golden) {
			status += ", pending"
		}
		if c.Directives.Skip != "" {
			status += ", skip: " + c.Directives.Skip
		}
		fmt.Printf("%-50s [%s]\n", c.Name, status)
	}
	fmt.Printf("\n%d cases", len(cases))
	if len(h.suite.OrphanGoldens) > 0 {
		fmt.Printf(", %d orphan goldens:\n", len(h.suite.OrphanGoldens))
		for _, o := range h.suite.OrphanGoldens {
			fmt.Printf("  %s\n", o)
		}
	} else {
		fmt.Println()
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	h, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	rerun := func(ctx context.Context, changed []string) {
		cases := affectedCases(h, changed)
		if len(cases) == 0 {
			return
		}
		summary, err := h.runner.Run(ctx, cases, run.ModeCheck)
		if err != nil {
			logger.Error("Rerun failed", zap.Error(err))
			return
		}
		r := report.NewRenderer(os.Stdout)
		r.Verbose = true
		r.NoColor = noColor
		r.Render(summary)
	}

	w, err := watch.New(h.root, h.cfg, rerun)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("Watching %d cases. Ctrl-C to stop.\n", len(h.suite.Cases))
	<-ctx.Done()
	return nil
}

// affectedCases maps changed file paths back to cases, rediscovering
// the suite so newly created cases are picked up.
func affectedCases(h *harness, changed []string) []suite.Case {
	s, err := suite.Discover(h.root, h.cfg)
	if err != nil {
		logger.Error("Rediscovery failed", zap.Error(err))
		s = h.suite
	} else {
		h.suite = s
	}

	seen := map[string]bool{}
	var cases []suite.Case
	for _, path := range changed {
		c, ok := s.FindCase(path)
		if !ok || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		cases = append(cases, c)
	}
	return cases
}

func runHistory(cmd *cobra.Command, args []string) error {
	h, err := setup()
	if err != nil {
		return err
	}

	store, err := openHistory(h)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case historyCase != "":
		outcomes, err := store.CaseHistory(historyCase, historyN)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			fmt.Printf("No recorded outcomes for %s.\n", historyCase)
			return nil
		}
		for _, o := range outcomes {
			fmt.Printf("%s  %-8s %s\n", o.Started.Format(time.RFC3339), o.Outcome, o.Message)
		}

	case historyFlaky:
		flaky, err := store.FlakyCases(historyN)
		if err != nil {
			return err
		}
		if len(flaky) == 0 {
			fmt.Printf("No flaky cases in the last %d runs.\n", historyN)
			return nil
		}
		for _, f := range flaky {
			fmt.Printf("%-50s %d passes, %d fails\n", f.Name, f.Passes, f.Fails)
		}

	default:
		runs, err := store.RecentRuns(historyN)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No recorded runs.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %-20s %3d pass %3d fail %3d new %3d skip  %s\n",
				r.Started.Format("2006-01-02 15:04:05"), r.Suite,
				r.Passed, r.Failed, r.New, r.Skipped, r.Duration.Round(time.Millisecond))
		}
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(suiteDir)
	if err != nil {
		return err
	}
	path := filepath.Join(root, config.DefaultFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg := config.DefaultConfig()
	cfg.Name = filepath.Base(root)
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s. Set tool.binary and suite.roots, then run \"goldtest run\".\n", path)
	return nil
}
