package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dungeonload/internal/cli"
	"dungeonload/internal/config"
	"dungeonload/internal/engine"
	"dungeonload/internal/httpx"
	"dungeonload/internal/metrics"
	"dungeonload/internal/report"
	"dungeonload/internal/schedule"
	"dungeonload/internal/stats"
	"dungeonload/internal/storage"
	"dungeonload/internal/threshold"
	"dungeonload/internal/tui/app"
	"dungeonload/internal/workload"
)

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	profile, thresholds, err := cfg.LoadShape()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		printPlan(out, profile, thresholds, cfg)
		return nil
	}

	log, err := newLogger(cfg, cfg.TUI)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	agg := stats.NewAggregator()
	agg.KeepSamples(cfg.Out != "" || cfg.TUI)
	client := httpx.New(httpx.Options{
		Timeout:  cfg.Timeout,
		Insecure: cfg.Insecure,
		MaxConns: cfg.MaxConns,
	}, agg)

	wopts, err := cfg.Workload()
	if err != nil {
		return err
	}
	wopts.Seed = seed
	wopts.Logger = log.Named("workload")
	script, err := workload.NewDungeonScript(client, agg, wopts)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Profile:         profile,
		Tick:            cfg.Tick,
		MaxStep:         cfg.MaxStep,
		Factory:         script,
		Aggregator:      agg,
		Thresholds:      thresholds,
		IterationsPerVU: cfg.Iterations,
		GracefulStop:    cfg.GracefulStop,
		Updates:         make(engine.UpdateChan, 100),
		Logger:          log.Named("engine"),
	})
	if err != nil {
		return err
	}

	store := openHistory(cfg, log)
	if store != nil {
		defer store.Close()
	}
	save := func(res *engine.Result) error {
		if store == nil {
			return nil
		}
		if err := store.Save(storage.NewRecord(res, cfg.BaseURL, cfg.Variant)); err != nil {
			log.Warn("could not save run history", zap.Error(err))
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()
	if cfg.MetricsAddr != "" {
		reg, err := metrics.NewRegistry(metrics.NewCollector(agg, eng))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return metrics.Serve(serveCtx, cfg.MetricsAddr, reg, log.Named("metrics"))
		})
	}

	var res *engine.Result
	g.Go(func() error {
		defer stopServing()
		var err error
		if cfg.TUI {
			res, err = runDashboard(gctx, eng, store, save, cfg.Out)
			if err == nil {
				report.WriteText(out, res)
			}
			return err
		}
		header := cli.Header{
			BaseURL:    cfg.BaseURL,
			Variant:    cfg.Variant,
			Profile:    profile,
			Seed:       seed,
			Thresholds: len(thresholds),
		}
		res, err = cli.Start(gctx, out, eng, header, cfg.Out)
		if err != nil {
			return err
		}
		return save(res)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if store != nil {
		fmt.Fprintf(out, "\n🗂  Run %s saved to %s\n", res.RunID, store.Path())
	}
	if !res.Thresholds.Passed {
		return errThresholds
	}
	return nil
}

func runDashboard(ctx context.Context, eng *engine.Engine, store *storage.Store, save func(*engine.Result) error, prefix string) (*engine.Result, error) {
	m := app.NewModel(app.Options{
		Runner:       eng,
		Store:        store,
		OnFinish:     save,
		ExportPrefix: prefix,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		m.Stop()
		if res, werr := m.Wait(); werr == nil {
			return res, fmt.Errorf("dashboard: %w", err)
		}
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	// quitting early stops the run; wait for the drain and the summary
	m.Stop()
	return m.Wait()
}

func openHistory(cfg *config.Config, log *zap.Logger) *storage.Store {
	if cfg.NoHistory {
		return nil
	}
	path := cfg.HistoryDB
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			log.Warn("run history disabled", zap.Error(err))
			return nil
		}
	}
	store, err := storage.Open(path)
	if err != nil {
		log.Warn("run history disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	return store
}

func printPlan(w io.Writer, p schedule.Profile, set threshold.Set, cfg *config.Config) {
	fmt.Fprintf(w, "Target   : %s (%s)\n", cfg.BaseURL, cfg.Variant)
	fmt.Fprintf(w, "Duration : %s, max %d VUs\n\n", p.TotalDuration(), p.MaxTarget())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tVUS")
	for _, s := range schedule.Plan(p, cfg.Tick, cfg.MaxStep) {
		fmt.Fprintf(tw, "%s\t%d\n", s.Offset, s.Target)
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nTHRESHOLDS")
	if len(set) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, e := range set {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
