package ldlog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type capturingLogger struct {
	output []string
}

func (l *capturingLogger) Println(values ...interface{}) {
	l.output = append(l.output, strings.TrimSpace(fmt.Sprintln(values...)))
}

func (l *capturingLogger) Printf(format string, values ...interface{}) {
	l.output = append(l.output, fmt.Sprintf(format, values...))
}

func TestZeroValueLoggersCanBeUsed(t *testing.T) {
	l := Loggers{}
	l.Warn("this should not panic")
}

func TestDefaultMinLevelIsInfo(t *testing.T) {
	sink := capturingLogger{}
	l := Loggers{}
	l.SetBaseLogger(&sink)
	l.Debug("a")
	l.Debugf("%s!", "b")
	l.Info("c")
	l.Infof("%s!", "d")
	l.Warn("e")
	l.Warnf("%s!", "f")
	l.Error("g")
	l.Errorf("%s!", "h")
	assert.Equal(t, []string{"INFO: c", "INFO: d!", "WARN: e", "WARN: f!", "ERROR: g", "ERROR: h!"},
		sink.output)
}

func TestSetMinLevel(t *testing.T) {
	sink := capturingLogger{}
	l := Loggers{}
	l.SetBaseLogger(&sink)
	l.SetMinLevel(Error)
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
	assert.Equal(t, []string{"ERROR: d"}, sink.output)
}

func TestDebugCanBeEnabled(t *testing.T) {
	sink := capturingLogger{}
	l := Loggers{}
	l.SetBaseLogger(&sink)
	l.SetMinLevel(Debug)
	assert.True(t, l.IsDebugEnabled())
	l.Debug("a")
	assert.Equal(t, []string{"DEBUG: a"}, sink.output)
}

func TestSetBaseLoggerForLevel(t *testing.T) {
	mainSink := capturingLogger{}
	warnSink := capturingLogger{}
	l := Loggers{}
	l.SetBaseLoggerForLevel(Warn, &warnSink)
	l.SetBaseLogger(&mainSink)
	l.Info("a")
	l.Warn("b")
	assert.Equal(t, []string{"INFO: a"}, mainSink.output)
	assert.Equal(t, []string{"WARN: b"}, warnSink.output)
}

func TestNewDisabledLoggers(t *testing.T) {
	sink := capturingLogger{}
	l := NewDisabledLoggers()
	l.SetBaseLogger(&sink)
	l.Error("a")
	assert.Len(t, sink.output, 0)
}

func TestForLevel(t *testing.T) {
	sink := capturingLogger{}
	l := Loggers{}
	l.SetBaseLogger(&sink)
	w := l.ForLevel(Warn)
	w.Println("a")
	w.Printf("%s!", "b")
	assert.Equal(t, []string{"WARN: a", "WARN: b!"}, sink.output)
}
