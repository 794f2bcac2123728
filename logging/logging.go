// Package logging defines the log-sink interface named by spec.md §1/§9
// ("logging front-ends ... we specify only the log sink interface") and
// ships one concrete implementation on top of github.com/rs/zerolog, the
// structured logger the retrieval pack's own networking services use.
//
// The global sink is process-wide, initialized at first use and
// replaceable atomically (spec.md §9 "Global state"); it is never
// written to on any data-plane hot path — only lifecycle events
// (service create/open/destroy, node marker writes, reaper runs) log.
package logging

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Level mirrors the Trace..Fatal scale spec.md §6 assigns to the
// IPC_LOG_LEVEL environment variable.
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
	Fatal
)

// Sink is the interface every package in this module logs through.
// Implementations must be safe for concurrent use.
type Sink interface {
	// WithFields returns a derived Sink carrying the given key/value
	// pairs on every subsequent call (e.g. service id, node id).
	WithFields(kv map[string]any) Sink
	Trace(msg string)
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string, err error)
}

type zerologSink struct {
	logger zerolog.Logger
}

// NewZerolog builds a Sink writing to w at the given level. Lifecycle
// call sites format short, field-bearing messages (no printf-style
// interpolation) matching zerolog's structured-event style.
func NewZerolog(w io.Writer, level Level) Sink {
	zerolog.SetGlobalLevel(toZerologLevel(level))
	return &zerologSink{logger: zerolog.New(w).With().Timestamp().Logger()}
}

func toZerologLevel(l Level) zerolog.Level {
	switch l {
	case Trace:
		return zerolog.TraceLevel
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	case Fatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (s *zerologSink) WithFields(kv map[string]any) Sink {
	ctx := s.logger.With()
	for k, v := range kv {
		ctx = ctx.Interface(k, v)
	}
	return &zerologSink{logger: ctx.Logger()}
}

func (s *zerologSink) Trace(msg string)          { s.logger.Trace().Msg(msg) }
func (s *zerologSink) Debug(msg string)          { s.logger.Debug().Msg(msg) }
func (s *zerologSink) Info(msg string)           { s.logger.Info().Msg(msg) }
func (s *zerologSink) Warn(msg string)           { s.logger.Warn().Msg(msg) }
func (s *zerologSink) Error(msg string, err error) { s.logger.Error().Err(err).Msg(msg) }

var global atomic.Pointer[Sink]

func init() {
	var s Sink = NewZerolog(os.Stderr, levelFromEnv())
	global.Store(&s)
}

// Global returns the process-wide sink.
func Global() Sink {
	return *global.Load()
}

// SetGlobal atomically replaces the process-wide sink.
func SetGlobal(s Sink) {
	global.Store(&s)
}

func levelFromEnv() Level {
	switch os.Getenv("IPC_LOG_LEVEL") {
	case "Trace", "trace":
		return Trace
	case "Debug", "debug":
		return Debug
	case "Warn", "warn":
		return Warn
	case "Error", "error":
		return Error
	case "Fatal", "fatal":
		return Fatal
	default:
		return Info
	}
}
