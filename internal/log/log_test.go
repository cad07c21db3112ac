package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", "k", 1)
	Error("shown error", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("lines below WARN were written:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] shown warn k=1") {
		t.Errorf("missing warn line:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] shown error err=boom") {
		t.Errorf("missing error line:\n%s", out)
	}
}

func TestFormatKVsOddArgs(t *testing.T) {
	got := formatKVs("a", 1, "b", "two", "dangling")
	if got != " a=1 b=two" {
		t.Errorf("formatKVs = %q", got)
	}
	if got := formatKVs(42, "x"); got != "" {
		t.Errorf("non-string key should be skipped, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" INFO ", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
