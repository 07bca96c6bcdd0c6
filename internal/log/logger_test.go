// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevLevel := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prevLevel)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below WARN were written:\n%s", out)
	}
	if !strings.Contains(out, "[WARN]  warn 3") || !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("missing WARN/ERROR lines:\n%s", out)
	}
}

func TestNamedLoggerPrefixesComponent(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelDebug)

	l := Named("sonar")
	if l.Component() != "sonar" {
		t.Fatalf("Component = %q", l.Component())
	}
	l.Debugf("tick overrun %d", 3)

	if !strings.Contains(buf.String(), "[DEBUG] sonar: tick overrun 3") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFatalExits(t *testing.T) {
	buf := captureOutput(t)

	code := -1
	prev := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = prev })

	SetLevel(LevelFatal + 1)
	Named("main").Fatalf("boom")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "[FATAL] main: boom") {
		t.Errorf("fatal message not written: %q", buf.String())
	}
}

func TestLevelString(t *testing.T) {
	if LevelError.String() != "ERROR" || LogLevel(42).String() != "UNKNOWN" {
		t.Errorf("unexpected level names %q %q", LevelError, LogLevel(42))
	}
}
