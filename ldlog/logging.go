// Package ldlog provides the SDK's logging abstraction, a simple leveled
// facade over any logger that has Printf/Println methods. Everything the SDK
// logs goes through a Loggers instance supplied in the client configuration;
// there is no process-wide logger.
package ldlog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel describes one of the possible message levels.
type LogLevel int

const (
	// Debug is the level for very detailed diagnostic messages, disabled by default.
	Debug LogLevel = iota + 1
	// Info is the level for informational messages, enabled by default.
	Info
	// Warn is the level for warning messages.
	Warn
	// Error is the level for error messages.
	Error
	// None can be used with SetMinLevel to disable all logging.
	None
)

// Name returns the level name in uppercase, such as "WARN".
func (level LogLevel) Name() string {
	switch level {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return ""
	}
}

// BaseLogger is the interface that the Loggers facade writes to. The standard
// library's log.Logger implements this interface.
type BaseLogger interface {
	Println(values ...interface{})
	Printf(format string, values ...interface{})
}

// Loggers is a configurable logging facade with a separate output destination
// per level. Its zero value is ready to use and writes Info level and above
// to standard error.
type Loggers struct {
	minLevel    LogLevel
	loggers     [4]BaseLogger
	initialized bool
	overrideSet [4]bool
}

// NewDefaultLoggers returns a Loggers instance with default properties.
func NewDefaultLoggers() Loggers {
	ret := Loggers{}
	ret.Init()
	return ret
}

// NewDisabledLoggers returns a Loggers instance that produces no output.
func NewDisabledLoggers() Loggers {
	ret := Loggers{}
	ret.SetMinLevel(None)
	ret.Init()
	return ret
}

// Init ensures that the Loggers instance is ready to use, applying defaults
// for any properties that were not set. It is harmless to call it again.
func (l *Loggers) Init() {
	if l.initialized {
		return
	}
	if l.minLevel == 0 {
		l.minLevel = Info
	}
	for i := range l.loggers {
		if l.loggers[i] == nil {
			l.loggers[i] = log.New(os.Stderr, "", log.LstdFlags)
		}
	}
	l.initialized = true
}

// SetBaseLogger specifies the destination for all log levels that have not
// been given their own destination with SetBaseLoggerForLevel.
func (l *Loggers) SetBaseLogger(logger BaseLogger) {
	if logger == nil {
		return
	}
	for i := range l.loggers {
		if !l.overrideSet[i] {
			l.loggers[i] = logger
		}
	}
	l.initialized = false
	l.Init()
}

// SetBaseLoggerForLevel specifies the destination for one log level.
func (l *Loggers) SetBaseLoggerForLevel(level LogLevel, logger BaseLogger) {
	if logger == nil || level < Debug || level > Error {
		return
	}
	l.loggers[level-Debug] = logger
	l.overrideSet[level-Debug] = true
	l.initialized = false
	l.Init()
}

// SetMinLevel specifies the lowest level that will produce any output.
func (l *Loggers) SetMinLevel(level LogLevel) {
	l.minLevel = level
}

// GetMinLevel returns the lowest enabled level.
func (l *Loggers) GetMinLevel() LogLevel {
	if l.minLevel == 0 {
		return Info
	}
	return l.minLevel
}

// IsDebugEnabled returns true if Debug messages are enabled.
func (l *Loggers) IsDebugEnabled() bool {
	return l.GetMinLevel() <= Debug
}

func (l *Loggers) logForLevel(level LogLevel) BaseLogger {
	if level < l.GetMinLevel() {
		return nil
	}
	l.Init()
	return l.loggers[level-Debug]
}

func (l *Loggers) println(level LogLevel, values ...interface{}) {
	if logger := l.logForLevel(level); logger != nil {
		message := strings.TrimSuffix(fmt.Sprintln(values...), "\n")
		logger.Println(level.Name() + ": " + message)
	}
}

func (l *Loggers) printf(level LogLevel, format string, values ...interface{}) {
	if logger := l.logForLevel(level); logger != nil {
		logger.Printf(level.Name()+": "+format, values...)
	}
}

// Debug logs a message at Debug level.
func (l *Loggers) Debug(values ...interface{}) { l.println(Debug, values...) }

// Debugf logs a formatted message at Debug level.
func (l *Loggers) Debugf(format string, values ...interface{}) { l.printf(Debug, format, values...) }

// Info logs a message at Info level.
func (l *Loggers) Info(values ...interface{}) { l.println(Info, values...) }

// Infof logs a formatted message at Info level.
func (l *Loggers) Infof(format string, values ...interface{}) { l.printf(Info, format, values...) }

// Warn logs a message at Warn level.
func (l *Loggers) Warn(values ...interface{}) { l.println(Warn, values...) }

// Warnf logs a formatted message at Warn level.
func (l *Loggers) Warnf(format string, values ...interface{}) { l.printf(Warn, format, values...) }

// Error logs a message at Error level.
func (l *Loggers) Error(values ...interface{}) { l.println(Error, values...) }

// Errorf logs a formatted message at Error level.
func (l *Loggers) Errorf(format string, values ...interface{}) { l.printf(Error, format, values...) }

// ForLevel returns a BaseLogger that writes to this Loggers instance at the
// given level. This is for passing to components that require a plain logger.
func (l *Loggers) ForLevel(level LogLevel) BaseLogger {
	return levelWriter{loggers: l, level: level}
}

type levelWriter struct {
	loggers *Loggers
	level   LogLevel
}

func (w levelWriter) Println(values ...interface{}) {
	w.loggers.println(w.level, values...)
}

func (w levelWriter) Printf(format string, values ...interface{}) {
	w.loggers.printf(w.level, format, values...)
}
