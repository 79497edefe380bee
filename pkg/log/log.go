package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Config holds logging configuration
type Config struct {
	// Verbose is the operator-facing verbosity level:
	// 0=warn, 1=info, 2=debug, 3 and above=trace.
	Verbose    int
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(levelFor(cfg.Verbose))

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// SetVerbose adjusts the global level at runtime (the control
// interface's "verbose N" command).
func SetVerbose(v int) {
	zerolog.SetGlobalLevel(levelFor(v))
}

func levelFor(v int) zerolog.Level {
	switch {
	case v <= 0:
		return zerolog.WarnLevel
	case v == 1:
		return zerolog.InfoLevel
	case v == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// WithComponent creates a child logger with component field. The
// pointer return keeps call sites free to chain level methods.
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithJobID creates a child logger with job_id field
func WithJobID(jobID string) *zerolog.Logger {
	l := Logger.With().Str("job_id", jobID).Logger()
	return &l
}

// WithAgentPID creates a child logger with agent_pid field
func WithAgentPID(pid int) *zerolog.Logger {
	l := Logger.With().Int("agent_pid", pid).Logger()
	return &l
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}

func init() {
	// Sane default until main calls Init.
	Init(Config{Verbose: 1})
}
