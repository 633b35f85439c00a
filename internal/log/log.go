// Package log implements a small leveled, terminal-aware console logger:
// colorized when attached to a tty, plain otherwise, with a call-site
// annotation on error-and-above records.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log verbosity level, ordered least to most severe.
type Level int

const (
	LvlTrace Level = iota
	LvlDebug
	LvlInfo
	LvlWarn
	LvlError
	LvlCrit
)

func (l Level) String() string {
	switch l {
	case LvlTrace:
		return "TRACE"
	case LvlDebug:
		return "DEBUG"
	case LvlInfo:
		return "INFO"
	case LvlWarn:
		return "WARN"
	case LvlError:
		return "ERROR"
	case LvlCrit:
		return "CRIT"
	default:
		return "?????"
	}
}

func (l Level) color() *color.Color {
	switch l {
	case LvlTrace, LvlDebug:
		return color.New(color.FgHiBlack)
	case LvlInfo:
		return color.New(color.FgGreen)
	case LvlWarn:
		return color.New(color.FgYellow)
	case LvlError:
		return color.New(color.FgRed)
	case LvlCrit:
		return color.New(color.FgHiRed, color.Bold)
	default:
		return color.New()
	}
}

// Logger writes leveled records with a fixed set of key/value context
// fields, so a component can carry its own scoped sub-logger
// (log.New("module", "prober")).
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	colored bool
	level   Level
	ctx     []interface{}
}

var root = New()

// New creates a standalone logger writing to stderr.
func New(ctx ...interface{}) *Logger {
	isTerm := isatty.IsTerminal(os.Stderr.Fd())
	return &Logger{
		out:     colorable.NewColorableStderr(),
		colored: isTerm,
		level:   LvlInfo,
		ctx:     ctx,
	}
}

// With returns a derived logger carrying additional context fields.
func (lg *Logger) With(ctx ...interface{}) *Logger {
	return &Logger{out: lg.out, colored: lg.colored, level: lg.level, ctx: append(append([]interface{}{}, lg.ctx...), ctx...)}
}

// SetLevel adjusts the minimum level that is emitted.
func (lg *Logger) SetLevel(l Level) { lg.level = l }

func (lg *Logger) write(lvl Level, msg string, ctx []interface{}) {
	if lvl < lg.level {
		return
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000")
	tag := lvl.String()
	if lg.colored {
		tag = lvl.color().Sprint(tag)
	}

	fmt.Fprintf(lg.out, "%s [%s] %s", ts, tag, msg)

	all := append(append([]interface{}{}, lg.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(lg.out, " %v=%v", all[i], all[i+1])
	}
	if lvl >= LvlError {
		// capture the immediate caller, skipping write/log-level wrappers
		call := stack.Caller(2)
		fmt.Fprintf(lg.out, " caller=%+v", call)
	}
	fmt.Fprintln(lg.out)
}

func (lg *Logger) Trace(msg string, ctx ...interface{}) { lg.write(LvlTrace, msg, ctx) }
func (lg *Logger) Debug(msg string, ctx ...interface{}) { lg.write(LvlDebug, msg, ctx) }
func (lg *Logger) Info(msg string, ctx ...interface{})  { lg.write(LvlInfo, msg, ctx) }
func (lg *Logger) Warn(msg string, ctx ...interface{})  { lg.write(LvlWarn, msg, ctx) }
func (lg *Logger) Error(msg string, ctx ...interface{}) { lg.write(LvlError, msg, ctx) }
func (lg *Logger) Crit(msg string, ctx ...interface{})  { lg.write(LvlCrit, msg, ctx); os.Exit(1) }

// Package-level helpers delegate to a process-wide root logger.
func Trace(msg string, ctx ...interface{}) { root.write(LvlTrace, msg, ctx) }
func Debug(msg string, ctx ...interface{}) { root.write(LvlDebug, msg, ctx) }
func Info(msg string, ctx ...interface{})  { root.write(LvlInfo, msg, ctx) }
func Warn(msg string, ctx ...interface{})  { root.write(LvlWarn, msg, ctx) }
func Error(msg string, ctx ...interface{}) { root.write(LvlError, msg, ctx) }
func Crit(msg string, ctx ...interface{})  { root.write(LvlCrit, msg, ctx) }

// SetLevel adjusts the root logger's minimum emitted level.
func SetLevel(l Level) { root.SetLevel(l) }
