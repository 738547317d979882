// Package config resolves run settings from flags, DUNGEONLOAD_* environment
// variables, an optional config file and YAML profile files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dungeonload/internal/engine"
	"dungeonload/internal/schedule"
	"dungeonload/internal/threshold"
	"dungeonload/internal/workload"
)

const EnvPrefix = "DUNGEONLOAD"

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File receives the log instead of stderr; the dashboard sets it so log
	// lines don't tear the screen.
	File string `mapstructure:"file"`
}

type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Insecure bool          `mapstructure:"insecure"`
	MaxConns int           `mapstructure:"max_conns"`

	Variant      string                 `mapstructure:"variant"`
	Seed         uint64                 `mapstructure:"seed"`
	ThinkTimeMax time.Duration          `mapstructure:"think_time_max"`
	StartDelay   time.Duration          `mapstructure:"start_delay"`
	EndPause     time.Duration          `mapstructure:"end_pause"`
	Board        workload.BoardBounds   `mapstructure:"board"`
	Names        workload.NameTemplates `mapstructure:"names"`

	// Load shape, in order of precedence: Stages, VUs with Duration,
	// Profile file, built-in default.
	Stages   []string      `mapstructure:"stages"`
	VUs      int           `mapstructure:"vus"`
	Duration time.Duration `mapstructure:"duration"`
	Profile  string        `mapstructure:"profile"`
	// Thresholds are "metric expression" pairs, e.g. "http_req_duration p(95)<200".
	// They replace profile thresholds declared for the same metric.
	Thresholds []string `mapstructure:"thresholds"`

	Tick         time.Duration `mapstructure:"tick"`
	MaxStep      int           `mapstructure:"max_step"`
	GracefulStop time.Duration `mapstructure:"graceful_stop"`
	Iterations   int64         `mapstructure:"iterations"`

	Out         string    `mapstructure:"out"`
	HistoryDB   string    `mapstructure:"history_db"`
	NoHistory   bool      `mapstructure:"no_history"`
	MetricsAddr string    `mapstructure:"metrics_addr"`
	TUI         bool      `mapstructure:"tui"`
	Log         LogConfig `mapstructure:"log"`
}

// SetDefaults registers every key, which also lets AutomaticEnv see them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("timeout", "30s")
	v.SetDefault("insecure", false)
	v.SetDefault("max_conns", 2000)

	v.SetDefault("variant", string(workload.VariantFull))
	v.SetDefault("seed", 0)
	v.SetDefault("think_time_max", "1s")
	v.SetDefault("start_delay", "10s")
	v.SetDefault("end_pause", "1s")
	v.SetDefault("board.min_size", workload.DefaultBoardBounds.MinSize)
	v.SetDefault("board.max_size", workload.DefaultBoardBounds.MaxSize)
	v.SetDefault("board.min_val", workload.DefaultBoardBounds.MinVal)
	v.SetDefault("board.max_val", workload.DefaultBoardBounds.MaxVal)
	v.SetDefault("names.player", workload.DefaultNameTemplates.Player)
	v.SetDefault("names.email", workload.DefaultNameTemplates.Email)
	v.SetDefault("names.board", workload.DefaultNameTemplates.Board)

	v.SetDefault("stages", []string{})
	v.SetDefault("vus", 0)
	v.SetDefault("duration", "0s")
	v.SetDefault("profile", "")
	v.SetDefault("thresholds", []string{})

	v.SetDefault("tick", schedule.DefaultTick.String())
	v.SetDefault("max_step", 0)
	v.SetDefault("graceful_stop", engine.DefaultGracefulStop.String())
	v.SetDefault("iterations", 0)

	v.SetDefault("out", "")
	v.SetDefault("history_db", "")
	v.SetDefault("no_history", false)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("tui", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

// New returns a viper instance with defaults and environment binding. A
// non-empty configFile is read; otherwise $HOME/.dungeonload.yaml is tried.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".dungeonload")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if _, err := workload.ParseVariant(c.Variant); err != nil {
		errs = append(errs, err)
	}
	if err := c.Board.Validate(); err != nil {
		errs = append(errs, err)
	}
	for name, d := range map[string]time.Duration{
		"timeout":        c.Timeout,
		"think_time_max": c.ThinkTimeMax,
		"start_delay":    c.StartDelay,
		"end_pause":      c.EndPause,
		"tick":           c.Tick,
		"graceful_stop":  c.GracefulStop,
		"duration":       c.Duration,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s can't be negative", name))
		}
	}
	if c.VUs < 0 {
		errs = append(errs, fmt.Errorf("vus can't be negative"))
	}
	if c.MaxStep < 0 {
		errs = append(errs, fmt.Errorf("max_step can't be negative"))
	}
	if c.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations can't be negative"))
	}
	if (c.VUs > 0) != (c.Duration > 0) && len(c.Stages) == 0 {
		errs = append(errs, fmt.Errorf("vus and duration must be set together"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LoadShape resolves the load profile and the thresholds of the run.
func (c *Config) LoadShape() (schedule.Profile, threshold.Set, error) {
	file, err := c.profileFile()
	if err != nil {
		return schedule.Profile{}, nil, err
	}

	p := file.Profile()
	switch {
	case len(c.Stages) > 0:
		p = schedule.Profile{}
		for _, s := range c.Stages {
			st, err := schedule.ParseStage(s)
			if err != nil {
				return schedule.Profile{}, nil, err
			}
			p.Stages = append(p.Stages, st)
		}
	case c.VUs > 0:
		p = schedule.Flat(c.VUs, c.Duration)
	}
	if err := p.Validate(); err != nil {
		return schedule.Profile{}, nil, fmt.Errorf("invalid profile: %w", err)
	}

	exprs := make(map[string][]string, len(file.Thresholds))
	for k, v := range file.Thresholds {
		exprs[k] = v
	}
	overrides := make(map[string][]string)
	for _, t := range c.Thresholds {
		metric, expr, err := SplitThreshold(t)
		if err != nil {
			return schedule.Profile{}, nil, err
		}
		overrides[metric] = append(overrides[metric], expr)
	}
	for k, v := range overrides {
		exprs[k] = v
	}
	set, err := threshold.ParseMap(exprs)
	if err != nil {
		return schedule.Profile{}, nil, err
	}
	return p, set, nil
}

func (c *Config) profileFile() (ProfileFile, error) {
	if c.Profile == "" {
		return DefaultProfile(), nil
	}
	return LoadProfile(c.Profile)
}

// SplitThreshold splits "metric expression". A metric with a selector ends
// at its closing brace, so selectors may contain spaces.
func SplitThreshold(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	var metric, expr string
	if i := strings.Index(s, "}"); i >= 0 && strings.Contains(s[:i], "{") {
		metric, expr = s[:i+1], s[i+1:]
	} else {
		var ok bool
		metric, expr, ok = strings.Cut(s, " ")
		if !ok {
			return "", "", fmt.Errorf("%w %q: want \"metric expression\"", threshold.ErrSyntax, s)
		}
	}
	expr = strings.TrimSpace(expr)
	if metric == "" || expr == "" {
		return "", "", fmt.Errorf("%w %q: want \"metric expression\"", threshold.ErrSyntax, s)
	}
	return metric, expr, nil
}

// Workload builds the script options.
func (c *Config) Workload() (workload.Options, error) {
	variant, err := workload.ParseVariant(c.Variant)
	if err != nil {
		return workload.Options{}, err
	}
	return workload.Options{
		BaseURL:      strings.TrimRight(c.BaseURL, "/"),
		Variant:      variant,
		ThinkTimeMax: c.ThinkTimeMax,
		StartDelay:   c.StartDelay,
		EndPause:     c.EndPause,
		Board:        c.Board,
		Names:        c.Names,
		Seed:         c.Seed,
	}, nil
}
