package webrec

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RecorderLogger wraps zerolog for structured logging
type RecorderLogger struct {
	logger zerolog.Logger
}

// LogLevel represents the logging level
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// ParseLogLevel accepts the config spellings (DEBUG, INFO, WARNING, ERROR).
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "TRACE":
		return TraceLevel
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	}
	return InfoLevel
}

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level     LogLevel
	Pretty    bool
	Output    io.Writer
	AddSource bool
	Fields    map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  InfoLevel,
		Pretty: true,
		Output: os.Stderr,
		Fields: make(map[string]interface{}),
	}
}

// NewRecorderLogger creates a new structured logger
func NewRecorderLogger(config *LogConfig) *RecorderLogger {
	if config == nil {
		config = DefaultLogConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(out)
	}

	switch config.Level {
	case TraceLevel:
		logger = logger.Level(zerolog.TraceLevel)
	case DebugLevel:
		logger = logger.Level(zerolog.DebugLevel)
	case InfoLevel:
		logger = logger.Level(zerolog.InfoLevel)
	case WarnLevel:
		logger = logger.Level(zerolog.WarnLevel)
	case ErrorLevel:
		logger = logger.Level(zerolog.ErrorLevel)
	case FatalLevel:
		logger = logger.Level(zerolog.FatalLevel)
	}

	logger = logger.With().Timestamp().Logger()

	if config.AddSource {
		logger = logger.With().Caller().Logger()
	}
	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &RecorderLogger{logger: logger}
}

// NopLogger discards everything.
func NopLogger() *RecorderLogger {
	return &RecorderLogger{logger: zerolog.Nop()}
}

// WithComponent adds a component field to the logger
func (l *RecorderLogger) WithComponent(component string) *RecorderLogger {
	return &RecorderLogger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *RecorderLogger) WithField(key string, value interface{}) *RecorderLogger {
	return &RecorderLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger
func (l *RecorderLogger) WithFields(fields map[string]interface{}) *RecorderLogger {
	return &RecorderLogger{logger: l.logger.With().Fields(fields).Logger()}
}

// WithError adds an error field to the logger
func (l *RecorderLogger) WithError(err error) *RecorderLogger {
	return &RecorderLogger{logger: l.logger.With().Err(err).Logger()}
}

func (l *RecorderLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *RecorderLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *RecorderLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *RecorderLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *RecorderLogger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *RecorderLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

// Fatal logs a fatal level message and exits
func (l *RecorderLogger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// LogSessionEvent logs a session lifecycle transition
func (l *RecorderLogger) LogSessionEvent(event string, status SessionStatus, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "session").
		Str("event", event).
		Str("status", string(status)).
		Fields(fields).
		Msg("Session event")
}

// LogAudioEvent logs audio-related events with structured fields
func (l *RecorderLogger) LogAudioEvent(event string, fields map[string]interface{}) {
	l.logger.Debug().
		Str("event_type", "audio").
		Str("event", event).
		Fields(fields).
		Msg("Audio event")
}

// LogError logs a RecorderError with structured fields
func (l *RecorderLogger) LogError(err *RecorderError) {
	l.logger.Error().
		Str("error_code", err.Code).
		Time("error_time", err.Timestamp).
		Fields(err.Details).
		Msg(err.Message)
}

// Global logger instance
var globalLogger = NewRecorderLogger(DefaultLogConfig())

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *RecorderLogger {
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *RecorderLogger) {
	globalLogger = logger
}
