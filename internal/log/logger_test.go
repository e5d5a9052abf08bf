// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"Info", LevelInfo, true},
		{"WARN", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"loud", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" || LogLevel(42).String() != "UNKNOWN" {
		t.Errorf("String() = %q, %q", LevelWarn, LogLevel(42))
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	Debugf("tick %d", 1)
	Infof("session %s", "started")
	Warnf("watchdog: no buffers for %dms", 500)
	Errorf("recorder: %v", "disk full")

	out := buf.String()
	for _, hidden := range []string{"tick", "session"} {
		if strings.Contains(out, hidden) {
			t.Errorf("message below level written: %q", out)
		}
	}
	for _, want := range []string{"[WARN ] watchdog: no buffers for 500ms", "[ERROR] recorder: disk full"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if Enabled(LevelInfo) || !Enabled(LevelError) {
		t.Error("Enabled disagrees with SetLevel")
	}
}
