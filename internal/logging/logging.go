package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the level, encoder and destination of the logger.
type Options struct {
	Level  string
	Format string
	// Output is a path or "stderr"/"stdout"; empty means stderr, which keeps
	// stdout free for the progress line and the summary.
	Output string
}

// New builds the process logger.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(opts.Level); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if opts.Output != "" && opts.Output != "stderr" && opts.Output != "stdout" {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = level > zapcore.DebugLevel

	out := opts.Output
	if out == "" {
		out = "stderr"
	}
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
