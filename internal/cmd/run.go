package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Iron-Ham/synapse/internal/config"
	"github.com/Iron-Ham/synapse/internal/coordination"
	"github.com/Iron-Ham/synapse/internal/demo"
	"github.com/Iron-Ham/synapse/internal/derived"
	"github.com/Iron-Ham/synapse/internal/errors"
	"github.com/Iron-Ham/synapse/internal/event"
	"github.com/Iron-Ham/synapse/internal/logging"
	"github.com/Iron-Ham/synapse/internal/metrics"
	"github.com/Iron-Ham/synapse/internal/scenario"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"golang.org/x/term"
)

const tracerName = "github.com/Iron-Ham/synapse"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordination core",
	Long: `Run the coordination core with the demo handlers installed.

With --scenario, the envelopes of a scenario file are replayed into the core
at their offsets, its snapshots feed the proactive monitor and its memory
seeds the learning store. Without a scenario the core idles until
interrupted, which is useful together with --metrics-addr.

Examples:
  # Replay a scenario and print what the core derived
  synapse run --scenario morning.yaml

  # Keep running for a minute after the replay, exposing metrics
  synapse run --scenario morning.yaml --duration 1m --metrics-addr :9464`,
	RunE: runRun,
}

var (
	runScenarioPath string
	runDuration     time.Duration
	runMetricsAddr  string
	runNoMonitor    bool
	runJSON         bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runScenarioPath, "scenario", "s", "", "Scenario file to replay")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "How long to keep running after the replay (default: until the replay settles, or until interrupted without a scenario)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	runCmd.Flags().BoolVar(&runNoMonitor, "no-monitor", false, "Disable the proactive monitor")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run summary as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if runMetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = runMetricsAddr
	}

	var sc *scenario.Scenario
	if runScenarioPath != "" {
		if sc, err = scenario.Load(runScenarioPath); err != nil {
			return err
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runSession(ctx, runOptions{
		cfg:         cfg,
		scenario:    sc,
		duration:    runDuration,
		monitor:     cfg.Monitor.Enabled && !runNoMonitor,
		watchConfig: viper.ConfigFileUsed() != "",
		logger:      logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	_, err = fmt.Fprintln(out, renderSummary(summary, term.IsTerminal(int(os.Stdout.Fd()))))
	return err
}

// runOptions are the resolved inputs of one run.
type runOptions struct {
	cfg      *config.Config
	scenario *scenario.Scenario // nil runs without a replay
	duration time.Duration
	monitor  bool

	// watchConfig reloads the watched subjects when the config file changes
	watchConfig bool

	logger *logging.Logger
}

// runSummary is what a run reports when it ends.
type runSummary struct {
	Scenario        string                      `json:"scenario,omitempty"`
	Elapsed         time.Duration               `json:"elapsed"`
	Emitted         int                         `json:"emitted"`
	Delivered       int64                       `json:"delivered"`
	Immediate       int64                       `json:"immediate"`
	HandlerFailures int64                       `json:"handler_failures"`
	Alerts          []derived.Alert             `json:"alerts"`
	Recommendations []derived.Recommendation    `json:"recommendations"`
	Actions         map[derived.ActionState]int `json:"actions"`
	Executed        int64                       `json:"executed"`
	Remembered      int                         `json:"remembered"`
	Chains          map[string][]string         `json:"chains,omitempty"`
	Pending         int                         `json:"pending"`
}

// runSession builds a core from opts, replays the scenario into it, waits
// for the run to end and returns a summary. The core is shut down before
// runSession returns.
func runSession(ctx context.Context, opts runOptions) (*runSummary, error) {
	logger := opts.logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	log := logger.WithComponent("run")
	cfg := opts.cfg
	start := time.Now()

	m := metrics.New()
	executor := demo.NewExecutor(logger)

	var failures atomic.Int64
	coreCfg := coordination.DefaultConfig()
	coreCfg.TickInterval = cfg.Scheduler.TickInterval()
	coreCfg.MaxChains = cfg.Correlation.MaxChains
	if opts.monitor {
		specs := map[string]scenario.SnapshotSpec{}
		subjects := slices.Clone(cfg.Monitor.Subjects)
		if opts.scenario != nil {
			specs = opts.scenario.Snapshots
			subjects = append(subjects, opts.scenario.Watch...)
		}
		coreCfg.Snapshots = demo.NewSnapshotSource(specs)
		coreCfg.Executor = executor
		coreCfg.MonitorInterval = cfg.Monitor.Interval()
		coreCfg.ActionDelay = cfg.Monitor.ActionDelay()
		coreCfg.RuleCooldown = cfg.Monitor.RuleCooldown()
		coreCfg.Subjects = subjects
	}

	core, err := coordination.New(coreCfg,
		coordination.WithLogger(logger),
		coordination.WithMetrics(m),
		coordination.WithTracer(otel.Tracer(tracerName)),
		coordination.WithRules(demo.Rules()...),
		coordination.WithFailureHook(func(*errors.HandlerError) { failures.Add(1) }),
	)
	if err != nil {
		return nil, err
	}

	stats, err := demo.Install(core)
	if err != nil {
		return nil, err
	}
	if opts.scenario != nil {
		for k, v := range opts.scenario.Memory {
			core.Remember(k, v)
		}
	}

	if err := core.Start(ctx); err != nil {
		return nil, err
	}
	defer core.Shutdown()

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, m)
		wg.Go(func() {
			log.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.Serve(); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			wg.Wait()
		}()
	}

	if opts.watchConfig {
		viper.OnConfigChange(func(e fsnotify.Event) { applyConfigChange(core, logger, e) })
		viper.WatchConfig()
	}

	summary := &runSummary{Chains: make(map[string][]string)}
	var roots []event.Envelope
	if sc := opts.scenario; sc != nil {
		summary.Scenario = sc.Name
		player := scenario.NewPlayer(sc, scenario.WithEmitHook(func(env event.Envelope) {
			log.WithCorrelation(env.CorrelationID).Debug("replayed envelope", "kind", string(env.Kind), "id", env.ID)
		}))
		roots, err = player.Play(ctx, core)
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
		summary.Emitted = len(roots)
	}

	var waitErr error
	if opts.duration == 0 && opts.scenario != nil {
		// Let the replayed envelopes and whatever their handlers emit drain.
		waitErr = waitForDrain(ctx, core.QueueLen, cfg.Scheduler.TickInterval(), maxDrainTicks)
	} else {
		waitErr = sleepContext(ctx, opts.duration)
	}
	if waitErr != nil {
		log.Info("run interrupted", "reason", waitErr.Error())
	}

	summary.Elapsed = time.Since(start).Round(time.Millisecond)
	summary.Delivered = stats.Delivered.Load()
	summary.Immediate = stats.Immediate.Load()
	summary.HandlerFailures = failures.Load()
	summary.Alerts = core.Alerts()
	summary.Recommendations = core.Recommendations()
	summary.Actions = make(map[derived.ActionState]int)
	for _, a := range core.ProactiveActions() {
		summary.Actions[a.State]++
	}
	summary.Executed = executor.Executed()
	summary.Remembered = core.Memory().Len()
	summary.Pending = core.QueueLen()
	for _, root := range roots {
		if _, seen := summary.Chains[root.CorrelationID]; seen {
			continue
		}
		var kinds []string
		for _, link := range core.Chain(root.CorrelationID) {
			kinds = append(kinds, string(link.Kind))
		}
		summary.Chains[root.CorrelationID] = kinds
	}

	log.Info("run finished",
		"emitted", summary.Emitted,
		"delivered", summary.Delivered,
		"alerts", len(summary.Alerts),
		"recommendations", len(summary.Recommendations),
	)
	return summary, nil
}

// applyConfigChange watches any subjects added to the config file while the
// core is running. Other settings take effect on the next run.
func applyConfigChange(core *coordination.Core, logger *logging.Logger, e fsnotify.Event) {
	if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	log := logger.WithComponent("run")

	cfg, err := config.Load()
	if err != nil {
		log.Warn("ignoring invalid config change", "file", e.Name, "error", err)
		return
	}
	for _, s := range cfg.Monitor.Subjects {
		core.Watch(s)
	}
	log.Info("config file changed", "file", e.Name, "subjects", len(cfg.Monitor.Subjects))
}

// maxDrainTicks bounds the wait after a replay when handlers keep emitting.
const maxDrainTicks = 50

// waitForDrain polls queueLen once per interval until it reads zero on two
// consecutive polls, so envelopes emitted by the last drain are seen. It
// gives up after maxTicks polls.
func waitForDrain(ctx context.Context, queueLen func() int, interval time.Duration, maxTicks int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	empty := 0
	for range maxTicks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if queueLen() > 0 {
			empty = 0
			continue
		}
		if empty++; empty == 2 {
			return nil
		}
	}
	return nil
}

// sleepContext waits for d, or until ctx is done when d is zero.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
