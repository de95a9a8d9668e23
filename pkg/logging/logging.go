// Package logging configures zerolog for the CLI and hands out component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	mu        sync.Mutex
	logWriter io.Writer
)

// init keeps the CLI quiet until flags or config raise the level.
func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	logWriter = consoleWriter(os.Stderr)
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// Options selects level, encoding and destination for the global logger.
type Options struct {
	Level  string
	Format string
	// File, when set, receives log output instead of stderr.
	File string
}

// Configure applies opts to the global logger. The returned closer releases
// the log file, if any.
func Configure(opts Options) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		out, closer = f, f
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		if opts.File == "" {
			out = consoleWriter(out)
		}
	case FormatJSON:
	default:
		_ = closer.Close()
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	SetLogWriter(out)
	ConfigureGlobal(ParseLevel(opts.Level))
	return closer, nil
}

// ConfigureGlobal sets the global level and rebuilds log.Logger on the
// current writer. Debug and below include the caller.
func ConfigureGlobal(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(getLogWriter()).With().Timestamp()
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger
}

// ParseLevel converts a level name, defaulting to error on empty or bad input.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.ErrorLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		log.Error().Err(err).Str("level", s).Msg("invalid log level, using error")
		return zerolog.ErrorLevel
	}
	return level
}

// Verbosity maps repeated -v flags onto a level; zero keeps base.
func Verbosity(count int, base zerolog.Level) zerolog.Level {
	switch {
	case count <= 0:
		return base
	case count == 1:
		return minLevel(base, zerolog.InfoLevel)
	case count == 2:
		return minLevel(base, zerolog.DebugLevel)
	default:
		return zerolog.TraceLevel
	}
}

func minLevel(a, b zerolog.Level) zerolog.Level {
	if a < b {
		return a
	}
	return b
}

func getLogWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return logWriter
}

// SetLogWriter replaces the writer used by ConfigureGlobal.
func SetLogWriter(w io.Writer) {
	mu.Lock()
	logWriter = w
	mu.Unlock()
}

// NewLogger returns a component logger writing to the global writer.
func NewLogger(component string, level zerolog.Level) zerolog.Logger {
	return NewLoggerWithWriter(component, level, getLogWriter())
}

// NewLoggerWithWriter returns a JSON component logger on w.
func NewLoggerWithWriter(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

// PrintfLogger adapts a zerolog logger to Printf-style logger options such
// as ants.WithLogger. Messages are logged at debug level.
type PrintfLogger struct {
	logger zerolog.Logger
}

// NewPrintfLogger wraps logger.
func NewPrintfLogger(logger zerolog.Logger) *PrintfLogger {
	return &PrintfLogger{logger: logger}
}

func (p *PrintfLogger) Printf(format string, args ...interface{}) {
	p.logger.Debug().Msg(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
