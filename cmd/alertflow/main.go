package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dhenken/alertflow/internal/broker"
	"github.com/dhenken/alertflow/internal/config"
	"github.com/dhenken/alertflow/internal/engine"
	"github.com/dhenken/alertflow/internal/executor"
	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/ledger"
	"github.com/dhenken/alertflow/internal/modes"
	"github.com/dhenken/alertflow/internal/observ"
	"github.com/dhenken/alertflow/internal/positions"
	"github.com/dhenken/alertflow/internal/review"
	"github.com/dhenken/alertflow/internal/risk"
	"github.com/dhenken/alertflow/internal/source"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		once       bool
		configPath string
	)

	rootCmd := &cobra.Command{
		Use:   "alertflow",
		Short: "Trade-alert execution pipeline",
		Long: `alertflow polls a trade-alert feed, parses alerts into structured
signals and routes them through risk checks to a paper or live executor.
Every step is journaled to append-only ledgers under the data directory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, once)
		},
	}
	rootCmd.Flags().BoolVar(&once, "once", false, "process pending alerts once and exit")
	rootCmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file")

	rootCmd.AddCommand(newModeCmd(&configPath))
	rootCmd.AddCommand(newReviewCmd(&configPath))
	return rootCmd
}

func newReviewCmd(configPath *string) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "List, approve or reject intents held for operator review",
	}

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show intents awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			pending := a.queue.Pending()
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "review queue is empty")
				return nil
			}
			for _, entry := range pending {
				ti := entry.Intent
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-6s %-18s %s x%d  queued %s\n",
					entry.Fingerprint, ti.Underlying, ti.Strategy, ti.Action, ti.Quantity,
					entry.QueuedAt.Format(time.RFC3339))
			}
			return nil
		},
	})

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "approve FINGERPRINT",
		Short: "Approve a held intent and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.eng.ExecuteApproved(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s\n", args[0])
			return nil
		},
	})

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "reject FINGERPRINT [REASON]",
		Short: "Reject a held intent",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			reason := "rejected by operator"
			if len(args) == 2 {
				reason = args[1]
			}
			if err := a.queue.Reject(args[0], reason, a.dedupe); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rejected %s: %s\n", args[0], reason)
			return nil
		},
	})

	return reviewCmd
}

func newModeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mode [PAPER|LIVE|DUAL|HISTORICAL]",
		Short: "Show or set the requested execution mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				requested, err := modes.LoadRequested(cfg.DataDir, intent.Mode(cfg.RequestedMode))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requested mode: %s\n", requested)
				return nil
			}
			mode := intent.Mode(args[0])
			switch mode {
			case intent.Paper, intent.Live, intent.Dual, intent.Historical:
			default:
				return fmt.Errorf("invalid mode %q", args[0])
			}
			if err := modes.SaveRequested(cfg.DataDir, mode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requested mode set to %s (safety flags still apply at startup)\n", mode)
			return nil
		},
	}
}

// app is the fully wired pipeline. The run loop and the review commands
// build the same one, so an approved intent executes exactly as the
// polling path would have executed it.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	state   modes.State
	eng     *engine.Engine
	queue   *review.Queue
	dedupe  *ledger.DedupeStore
	tracker *positions.Tracker
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := observ.NewLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.tracker, err = positions.OpenTracker(filepath.Join(cfg.DataDir, "positions.jsonl"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.tracker.CloseStore)

	a.dedupe, err = ledger.OpenDedupe(filepath.Join(cfg.DataDir, "dedupe.jsonl"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.dedupe.Close)

	a.queue, err = review.Open(filepath.Join(cfg.DataDir, "review.jsonl"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.queue.Close)

	openLedger := func(name string) (*ledger.Store, error) {
		store, err := ledger.Open(filepath.Join(cfg.DataDir, name))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
	rawLog, err := openLedger("alerts_raw.jsonl")
	if err != nil {
		return nil, err
	}
	parsedLog, err := openLedger("signals.jsonl")
	if err != nil {
		return nil, err
	}
	intentLog, err := openLedger("intents.jsonl")
	if err != nil {
		return nil, err
	}
	resultLog, err := openLedger("executions.jsonl")
	if err != nil {
		return nil, err
	}

	requested, err := modes.LoadRequested(cfg.DataDir, intent.Mode(cfg.RequestedMode))
	if err != nil {
		return nil, err
	}
	riskMode := cfg.EffectiveRiskMode()
	modeMgr := modes.NewManager(modes.SafetyFlags{
		LiveTrading:   cfg.LiveTrading,
		DryRun:        cfg.DryRun,
		AllowDualMode: cfg.AllowDualMode,
	}, requested, riskMode)
	a.state = modeMgr.State()
	if a.state.Reason != "" {
		log.Warn().Str("requested", string(a.state.Requested)).
			Str("effective", string(a.state.Effective)).Str("reason", a.state.Reason).
			Msg("execution mode downgraded")
	}

	liveExec, equity, err := buildLiveSide(cfg, a.state.Effective, log)
	if err != nil {
		return nil, err
	}
	router := executor.NewRouter(executor.NewPaper(), liveExec, executor.NewHistorical())

	a.eng = engine.New(engine.Deps{
		Source:    source.NewFileSource(cfg.AlertsFile),
		Tracker:   a.tracker,
		Dedupe:    a.dedupe,
		Risk:      risk.NewEngine(riskMode, cfg.Caps()),
		Modes:     modeMgr,
		Router:    router,
		Review:    a.queue,
		Equity:    equity,
		RawLog:    rawLog,
		ParsedLog: parsedLog,
		IntentLog: intentLog,
		ResultLog: resultLog,
		Log:       log,
	}, engine.Settings{
		PollInterval:    time.Duration(cfg.PollIntervalSeconds) * time.Second,
		MaxDailyRiskPct: cfg.MaxDailyRiskPct,
		MinDTE:          cfg.MinDTE,
		Allow0DTESPX:    cfg.Allow0DTESPX,
		LiveTrading:     cfg.LiveTrading,
		DryRun:          cfg.DryRun,
		ReviewRequired:  cfg.ReviewRequired,
	})

	ok = true
	return a, nil
}

func run(ctx context.Context, configPath string, once bool) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.Info().Str("mode", string(a.state.Effective)).Str("risk_mode", string(a.state.RiskMode)).
		Int("open_positions", a.tracker.OpenCount()).Bool("once", once).
		Msg("alertflow starting")

	if a.cfg.MetricsAddr != "" {
		srv := observ.ServeMetrics(a.cfg.MetricsAddr)
		defer srv.Close()
	}

	if once {
		return a.eng.RunOnce(ctx)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.eng.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// buildLiveSide wires the broker for live and dual modes. Paper and
// historical runs get a fixed equity figure and no live executor.
func buildLiveSide(cfg *config.Config, effective intent.Mode, log zerolog.Logger) (executor.Executor, engine.EquityProvider, error) {
	if effective != intent.Live && effective != intent.Dual {
		return nil, engine.StaticEquity{Value: cfg.PaperEquityUSD}, nil
	}

	switch cfg.PrimaryLiveBroker {
	case "tradier":
		if cfg.TradierToken == "" || cfg.TradierAccountID == "" {
			return nil, nil, fmt.Errorf("live mode needs TRADIER_TOKEN and TRADIER_ACCOUNT_ID")
		}
		t := broker.NewTradier(broker.TradierConfig{
			Token:     cfg.TradierToken,
			AccountID: cfg.TradierAccountID,
			BaseURL:   cfg.TradierBaseURL,
		}, log)
		return executor.NewLive(t, log), t, nil
	case "alpaca":
		if cfg.AlpacaAPIKey == "" || cfg.AlpacaAPISecret == "" {
			return nil, nil, fmt.Errorf("live mode needs ALPACA_API_KEY and ALPACA_API_SECRET")
		}
		a := broker.NewAlpaca(broker.AlpacaConfig{
			APIKey:    cfg.AlpacaAPIKey,
			APISecret: cfg.AlpacaAPISecret,
			Paper:     cfg.AlpacaPaper,
		}, log)
		return executor.NewLive(a, log), a, nil
	}
	return nil, nil, fmt.Errorf("unknown live broker %q", cfg.PrimaryLiveBroker)
}
