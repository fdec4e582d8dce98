// Package logging configures the zerolog logger shared by the CLI and the
// reconciler. The logger travels in the context.
package logging

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Profile selects the logging defaults
type Profile string

const (
	// ProfileRuntime logs info and above to stderr with timestamps
	ProfileRuntime Profile = "runtime"
	// ProfileTest logs everything without timestamps or colors
	ProfileTest Profile = "test"
)

// Environment overrides
const (
	EnvLevel     = "CONVERGE_LOG_LEVEL"
	EnvTimestamp = "CONVERGE_LOG_TIMESTAMP"
	EnvNoColor   = "CONVERGE_LOG_NOCOLOR"
)

// Options are the resolved logger settings
type Options struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Out       io.Writer
}

// DefaultOptions returns the settings of a profile before env overrides
func DefaultOptions(profile Profile) Options {
	switch profile {
	case ProfileTest:
		return Options{Level: zerolog.DebugLevel, NoColor: true, Out: os.Stderr}
	default:
		return Options{Level: zerolog.InfoLevel, Timestamp: true, Out: os.Stderr}
	}
}

// Configure builds the logger for a profile, applies env overrides and
// installs it as the global logger
func Configure(profile Profile, out io.Writer) zerolog.Logger {
	opts := DefaultOptions(profile)
	if out != nil {
		opts.Out = out
	}
	opts = applyEnv(opts)

	logger := New(opts)
	log.Logger = logger
	return logger
}

// New builds a console logger from options
func New(opts Options) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        opts.Out,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	ctx := zerolog.New(output).Level(opts.Level).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func applyEnv(opts Options) Options {
	if v := os.Getenv(EnvLevel); v != "" {
		if level, err := zerolog.ParseLevel(v); err == nil {
			opts.Level = level
		}
	}
	if v := os.Getenv(EnvTimestamp); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.Timestamp = b
		}
	}
	if v := os.Getenv(EnvNoColor); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.NoColor = b
		}
	}
	return opts
}

// WithLogger returns a context carrying logger
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger carried by ctx, or a disabled logger
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
