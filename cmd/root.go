package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dungeonload/internal/banner"
	"dungeonload/internal/config"
	"dungeonload/internal/logging"
	"dungeonload/internal/schedule"
	"dungeonload/internal/workload"

	"go.uber.org/zap"
)

// ExitThresholds is the exit code of a run whose thresholds failed.
const ExitThresholds = 99

var errThresholds = errors.New("some thresholds have failed")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dungeonload",
	Short: "dungeonload - load generator for the dungeon game API",
	Long: `
dungeonload ramps virtual users up and down through a stage profile. Each user
creates a player and a board, plays a game, reads every resource back and lists
the games, while checks and thresholds decide whether the run passed.

It runs headless by default (CI friendly) or with a live dashboard (--tui).`,
	Example: `  dungeonload --base-url http://localhost:8080
  dungeonload --stage 30s:20 --stage 1m:20 --stage 10s:0 --out report
  dungeonload --vus 10 --duration 1m --tui
  dungeonload target --port 8080 --latency 20ms`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runLoad,
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		_ = cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errThresholds) {
			os.Exit(ExitThresholds)
		}
		os.Exit(1)
	}
}

// flagKeys maps run flags to their configuration keys.
var flagKeys = map[string]string{
	"base-url":       "base_url",
	"timeout":        "timeout",
	"insecure":       "insecure",
	"variant":        "variant",
	"seed":           "seed",
	"think-time-max": "think_time_max",
	"start-delay":    "start_delay",
	"end-pause":      "end_pause",
	"stage":          "stages",
	"vus":            "vus",
	"duration":       "duration",
	"profile":        "profile",
	"threshold":      "thresholds",
	"tick":           "tick",
	"max-step":       "max_step",
	"graceful-stop":  "graceful_stop",
	"iterations":     "iterations",
	"out":            "out",
	"history-db":     "history_db",
	"no-history":     "no_history",
	"metrics-addr":   "metrics_addr",
	"tui":            "tui",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-file":       "log.file",
}

func init() {
	rootCmd.AddCommand(targetCmd, historyCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dungeonload.yaml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log encoding (console or json)")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.String("history-db", "", "Run history database (default is ~/.dungeonload/history.db)")

	f := rootCmd.Flags()
	f.StringP("base-url", "u", "http://localhost:8080", "Base URL of the dungeon API")
	f.Duration("timeout", 30*time.Second, "Request timeout")
	f.Bool("insecure", false, "Skip TLS certificate verification")
	f.String("variant", string(workload.VariantFull), "Workflow variant (full or basic)")
	f.Uint64("seed", 0, "Random seed for generated data (0 picks one)")
	f.Duration("think-time-max", time.Second, "Upper bound of the random pause before each step")
	f.Duration("start-delay", 10*time.Second, "Pause at the start of each iteration")
	f.Duration("end-pause", time.Second, "Pause at the end of each iteration")
	f.StringArrayP("stage", "s", nil, "Stage as duration:target, repeatable (e.g. 30s:50)")
	f.Int("vus", 0, "Flat number of virtual users (with --duration)")
	f.DurationP("duration", "d", 0, "Flat run duration (with --vus)")
	f.StringP("profile", "p", "", "YAML profile file with stages and thresholds")
	f.StringArray("threshold", nil, `Threshold as "metric expression", repeatable (e.g. "http_req_duration p(95)<200")`)
	f.Duration("tick", schedule.DefaultTick, "How often the user count is adjusted")
	f.Int("max-step", 0, "Most users added or retired per tick (0 means no limit)")
	f.Duration("graceful-stop", 30*time.Second, "Time users get to finish after the last stage")
	f.Int64("iterations", 0, "Iterations per virtual user (0 means until the profile ends)")
	f.StringP("out", "o", "", "Output filename prefix for CSV/JSON reports")
	f.Bool("no-history", false, "Don't record the run in the history database")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	f.Bool("tui", false, "Show the live dashboard")
	f.Bool("dry-run", false, "Print the resolved schedule and thresholds without sending requests")
}

// loadConfig layers flags over environment, config file and defaults.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	v, err := config.New(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if fl := fs.Lookup(name); fl != nil {
			if err := v.BindPFlag(key, fl); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	return nil
}

func newLogger(cfg *config.Config, quiet bool) (*zap.Logger, error) {
	if quiet && cfg.Log.File == "" {
		return zap.NewNop(), nil
	}
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.File,
	})
}
