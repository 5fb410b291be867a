package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelSilent disables all log output.
const LevelSilent = "silent"

// Logger is an interface to make swapping out loggers simple
type Logger interface {
	Fatal(v ...any)
	Fatalf(format string, v ...any)
	Error(v ...any)
	Errorf(format string, v ...any)
	Warnf(format string, v ...any)
	Info(v ...any)
	Infof(format string, v ...any)
	Debugf(format string, v ...any)
}

// New returns a ZeroLogger reference that satisfies the Logger interface.
func New() *ZeroLogger {
	return NewWithLevel("info")
}

// NewWithLevel returns a ZeroLogger writing to stderr at the given level.
// Unknown levels fall back to info.
func NewWithLevel(level string) *ZeroLogger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter returns a ZeroLogger writing to w. When w is a terminal the
// output is rendered with zerolog's console writer, otherwise it is JSON.
func NewWithWriter(w io.Writer, level string) *ZeroLogger {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	logger := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
	return &ZeroLogger{logger: logger}
}

// FileConfig controls the rotation of a log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFile returns a ZeroLogger that writes JSON logs to a rotating file. The
// returned io.Closer releases the file.
func NewFile(cfg FileConfig, level string) (*ZeroLogger, io.Closer) {
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 28
	}
	f := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return NewWithWriter(f, level), f
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == LevelSilent {
		return zerolog.Disabled
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

// ZeroLogger is the default implementation using zerolog structured logs
type ZeroLogger struct {
	logger zerolog.Logger
}

// Info starts a new message at the info level in the logger
func (z *ZeroLogger) Info(v ...any) {
	z.logger.Info().Msg(fmt.Sprint(v...))
}

// Infof logs a formatted message at the info level
func (z *ZeroLogger) Infof(format string, v ...any) {
	z.logger.Info().Msgf(format, v...)
}

// Debugf logs a formatted message at the debug level
func (z *ZeroLogger) Debugf(format string, v ...any) {
	z.logger.Debug().Msgf(format, v...)
}

// Warnf logs a formatted message at the warn level
func (z *ZeroLogger) Warnf(format string, v ...any) {
	z.logger.Warn().Msgf(format, v...)
}

// Error logs a message at the error level
func (z *ZeroLogger) Error(v ...any) {
	z.logger.Error().Msg(fmt.Sprint(v...))
}

// Errorf logs a formatted message at the error level
func (z *ZeroLogger) Errorf(format string, v ...any) {
	z.logger.Error().Msgf(format, v...)
}

// Fatal starts a new message at the fatal level in the logger, exits with status code 1
func (z *ZeroLogger) Fatal(v ...any) {
	z.logger.Fatal().Msg(fmt.Sprint(v...))
}

// Fatalf logs a formatted message at the fatal level and exits with status code 1
func (z *ZeroLogger) Fatalf(format string, v ...any) {
	z.logger.Fatal().Msgf(format, v...)
}

// NoOp discards everything except Fatal, which still exits the process.
type NoOp struct{}

// NewNoOp returns a logger that drops all messages.
func NewNoOp() *NoOp { return &NoOp{} }

func (NoOp) Info(v ...any) {}
func (NoOp) Infof(format string, v ...any) {}
func (NoOp) Debugf(format string, v ...any) {}
func (NoOp) Warnf(format string, v ...any) {}
func (NoOp) Error(v ...any) {}
func (NoOp) Errorf(format string, v ...any) {}
func (NoOp) Fatal(v ...any) { os.Exit(1) }
func (NoOp) Fatalf(format string, v ...any) { os.Exit(1) }
