package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"garbage", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, &buf, "")

	l.Debug("should not appear")
	l.Info("should not appear")
	l.Warn("warning line")
	l.Error("error line")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "[WARN] warning line")
	assert.Contains(t, out, "[ERROR] error line")
}

func TestLoggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, &buf, "session")
	child := l.WithPrefix("42")

	child.Info("hello")
	assert.Contains(t, buf.String(), "[session:42] hello")
}

func TestNilWriterDiscards(t *testing.T) {
	l := New(LevelDebug, nil, "")
	assert.Equal(t, LevelNone, l.GetLevel())
	l.Info("no panic expected")
}
