package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// Logger is a wrapper around zerolog.Logger
type Logger struct {
	logger zerolog.Logger
}

// Config holds logging configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, file path
}

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg Config) (*Logger, error) {
	var output io.Writer

	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		output = file
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	// Set global logger
	log.Logger = logger

	return &Logger{logger: logger}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() (*Logger, error) {
	return NewLogger(Config{Level: "info", Format: "json", Output: "stdout"})
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

// WithUserID adds a user ID to the logger
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{logger: l.logger.With().Str("user_id", userID).Logger()}
}

// WithSessionID adds an ad-session ID to the logger
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithProvider adds an ad provider ID to the logger
func (l *Logger) WithProvider(id models.ProviderID) *Logger {
	return &Logger{logger: l.logger.With().Str("provider", string(id)).Logger()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

// ErrorWithErr logs an error message with an error
func (l *Logger) ErrorWithErr(msg string, err error) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// LogAdServed logs one issued ad offer
func (l *Logger) LogAdServed(userID, sessionID string, provider models.ProviderID, points int64) {
	l.logger.Info().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Str("provider", string(provider)).
		Int64("reward_points", points).
		Msg("Ad offer issued")
}

// LogDenial logs a denied ad request
func (l *Logger) LogDenial(userID, reason string, retryAfter time.Duration) {
	l.logger.Info().
		Str("user_id", userID).
		Str("reason", reason).
		Dur("retry_after", retryAfter).
		Msg("Ad request denied")
}

// LogCredit logs a ledger credit outcome
func (l *Logger) LogCredit(userID, sessionID string, points int64, duplicate bool) {
	evt := l.logger.Info()
	if duplicate {
		evt = l.logger.Debug().Bool("duplicate", true)
	}
	evt.
		Str("user_id", userID).
		Str("session_id", sessionID).
		Int64("points", points).
		Msg("Reward credit")
}

// LogSuspiciousCompletion logs a completion report that referenced an
// unknown or foreign session, kept for anti-abuse analysis.
func (l *Logger) LogSuspiciousCompletion(userID, sessionID, detail string) {
	l.logger.Warn().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Str("detail", detail).
		Msg("Invalid completion report")
}
