// Package log provides the leveled, key-value structured logger used
// throughout mintpool. The call convention (Info/Debug/Warn/Error/Crit with
// alternating key-value pairs, Logger.New for sub-loggers carrying fixed
// context) matches the logger the original go-probeum tree imported as
// "github.com/probeum/go-probeum/log" — that package wasn't vendored into
// this tree, so it is rebuilt here on top of the same support libraries
// go-probeum already depended on for it (go-stack/stack for caller frames,
// mattn/go-colorable and mattn/go-isatty for terminal color detection,
// fatih/color for the actual ANSI coloring).
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a log severity level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger is a context-carrying structured logger. New derives a child
// Logger with additional fixed key-value context, the way
// log.New("peer", id) is used throughout the teacher's handler code.
type Logger interface {
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
}

var (
	root = &logger{}

	mu       sync.Mutex
	minLevel = LvlInfo
	out      io.Writer = colorable.NewColorableStdout()
	useColor           = isatty.IsTerminal(os.Stdout.Fd())
)

// SetLevel sets the minimum level that will be written. Intended to be
// called once at process startup from the configuration loader.
func SetLevel(l Lvl) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// Root returns the base logger with no fixed context.
func Root() Logger { return root }

func New(ctx ...interface{}) Logger { return root.New(ctx...) }

func (l *logger) New(ctx ...interface{}) Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &logger{ctx: merged}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl > minLevel {
		return
	}
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	levelStr := lvl.String()
	if useColor {
		if c, ok := levelColor[lvl]; ok {
			levelStr = c.Sprint(lvl.String())
		}
	}
	fmt.Fprintf(&b, "%s [%s] %s", ts, levelStr, msg)

	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if lvl <= LvlError {
		if frame := callerFrame(4); frame != "" {
			fmt.Fprintf(&b, " caller=%s", frame)
		}
	}
	fmt.Fprintln(out, b.String())
	if lvl == LvlCrit {
		os.Exit(1)
	}
}

func callerFrame(skip int) string {
	trace := stack.Trace().TrimRuntime()
	if len(trace) <= skip {
		return ""
	}
	return fmt.Sprintf("%+v", trace[skip])
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// package-level convenience functions mirroring the root logger, used
// the way the teacher's tree called log.Info(...) directly without
// constructing a Logger first.
func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
