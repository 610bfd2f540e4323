// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no level between info and debug, so verbose maps onto
// zap's debug and our debug sits one step below it.
const (
	zapVerbose = zapcore.DebugLevel
	zapDebug   = zapcore.DebugLevel - 1
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch {
	case l <= LogQuiet:
		return zapcore.ErrorLevel
	case l == LogNormal:
		return zapcore.InfoLevel
	case l == LogVerbose:
		return zapVerbose
	default:
		return zapDebug
	}
}

// Logger writes levelled messages through zap.  The console format
// prints "[LVL] message", optionally prefixed with a timestamp; the
// JSON format emits one object per line.
type Logger struct {
	level LogLevel
	name  string

	mu         sync.RWMutex
	output     io.Writer
	timestamps bool // if true, prepend timestamps in console format
	json       bool
	tees       []zapcore.Core
	base       *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	l := NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	l.timestamps = on
	l.mu.Unlock()
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.output = w
	l.mu.Unlock()
	l.rebuild()
}

// SetJSON switches between the console and JSON encodings.
func (l *Logger) SetJSON(on bool) {
	l.mu.Lock()
	l.json = on
	l.mu.Unlock()
	l.rebuild()
}

// Tee additionally sends every entry to core, regardless of verbosity.
// The core applies its own level filter.
func (l *Logger) Tee(core zapcore.Core) {
	l.mu.Lock()
	l.tees = append(l.tees, core)
	l.mu.Unlock()
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

// Named returns a logger for a subsystem.  It shares output settings
// captured at call time.
func (l *Logger) Named(name string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	child := &Logger{
		level:      l.level,
		name:       name,
		output:     l.output,
		timestamps: l.timestamps,
		json:       l.json,
		tees:       append([]zapcore.Core(nil), l.tees...),
	}
	if l.name != "" {
		child.name = l.name + "." + name
	}
	child.rebuild()
	return child
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(zapcore.InfoLevel, format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(zapcore.WarnLevel, format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.write(zapVerbose, format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(zapDebug, format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, format, args...)
}

func (l *Logger) write(lvl zapcore.Level, format string, args ...interface{}) {
	l.mu.RLock()
	base := l.base
	l.mu.RUnlock()

	if !base.Core().Enabled(lvl) {
		return
	}
	if ce := base.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// ── zap plumbing ─────────────────────────────────────────────────────

func (l *Logger) rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		NameKey:          "logger",
		EncodeLevel:      bracketLevel(isTerminal(l.output)),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	var enc zapcore.Encoder
	if l.json {
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = jsonLevel
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		if l.timestamps {
			cfg.TimeKey = "ts"
			cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		}
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	cores := make([]zapcore.Core, 0, len(l.tees)+1)
	cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(l.output), l.level.zapLevel()))
	cores = append(cores, l.tees...)

	base := zap.New(zapcore.NewTee(cores...))
	if l.name != "" {
		base = base.Named(l.name)
	}
	l.base = base
}

func levelTag(lvl zapcore.Level) string {
	switch {
	case lvl >= zapcore.ErrorLevel:
		return "ERR"
	case lvl == zapcore.WarnLevel:
		return "WRN"
	case lvl == zapcore.InfoLevel:
		return "INF"
	case lvl == zapVerbose:
		return "VRB"
	default:
		return "DBG"
	}
}

var levelColor = map[string]string{
	"ERR": "\x1b[31m",
	"WRN": "\x1b[33m",
	"INF": "\x1b[36m",
	"VRB": "\x1b[37m",
	"DBG": "\x1b[90m",
}

func bracketLevel(color bool) zapcore.LevelEncoder {
	return func(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		tag := levelTag(lvl)
		if color {
			enc.AppendString(levelColor[tag] + "[" + tag + "]\x1b[0m")
			return
		}
		enc.AppendString("[" + tag + "]")
	}
}

func jsonLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch levelTag(lvl) {
	case "VRB":
		enc.AppendString("verbose")
	case "DBG":
		enc.AppendString("debug")
	default:
		enc.AppendString(lvl.String())
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
