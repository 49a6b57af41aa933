package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

type Format uint8

const (
	ConsoleFormat Format = iota
	JSONFormat
)

var root atomic.Pointer[zerolog.Logger]

func init() {
	Configure(ParseLevel(os.Getenv("LOG_LEVEL")), ParseFormat(os.Getenv("LOG_FORMAT")), os.Stdout)
}

// ParseLevel falls back to InfoLevel on anything it does not recognise.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel
	case "WARN":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return JSONFormat
	}
	return ConsoleFormat
}

func (l Level) toZerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Configure replaces the root logger. Component loggers taken with With
// before the call keep the previous settings.
func Configure(level Level, format Format, out io.Writer) {
	var w io.Writer = out
	if format == ConsoleFormat {
		w = newConsoleWriter(out)
	}
	l := zerolog.New(w).Level(level.toZerolog()).With().Timestamp().Logger()
	root.Store(&l)
}

// With returns a sub-logger tagged with the component name.
func With(component string) zerolog.Logger {
	return root.Load().With().Str("component", component).Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}
	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("[%s]", i))
	}
	return cw
}

func Debug(format string, args ...interface{}) {
	root.Load().Debug().Msgf(format, args...)
}

func Info(format string, args ...interface{}) {
	root.Load().Info().Msgf(format, args...)
}

func Warn(format string, args ...interface{}) {
	root.Load().Warn().Msgf(format, args...)
}

func Error(format string, args ...interface{}) {
	root.Load().Error().Msgf(format, args...)
}
