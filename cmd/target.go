package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dungeonload/internal/target"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Run a local stub of the dungeon game API",
	Long: `Serves the players, boards and games endpoints from memory so a profile can
be tried without the real service. Latency, jitter and a share of 500s can be
injected to exercise checks and thresholds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		log, err := newLogger(cfg, false)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		f := cmd.Flags()
		port, _ := f.GetInt("port")
		latency, _ := f.GetDuration("latency")
		jitter, _ := f.GetDuration("jitter")
		errRate, _ := f.GetFloat64("error-rate")
		seed, _ := f.GetUint64("seed")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return target.New(target.ServerConfig{
			Port:      port,
			Latency:   latency,
			Jitter:    jitter,
			ErrorRate: errRate,
			Seed:      seed,
			Logger:    log.Named("target"),
		}).Start(ctx)
	},
}

func init() {
	f := targetCmd.Flags()
	f.IntP("port", "p", 8080, "Port to listen on")
	f.Duration("latency", 0, "Delay added to every response")
	f.Duration("jitter", 0, "Random extra delay, up to this much")
	f.Float64("error-rate", 0, "Share of requests answered with a 500 (0..1)")
	f.Uint64("seed", 1, "Seed for jitter and error injection")
}
