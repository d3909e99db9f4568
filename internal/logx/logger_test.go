package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}

	l.Warn("heads up", "core", "core0")
	if !strings.Contains(buf.String(), "[WARN] heads up core=core0") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelError, Output: &buf})
	l.Info("silent")
	if buf.Len() != 0 {
		t.Fatalf("expected silence at LevelError, got %q", buf.String())
	}
	l.SetLevel(LevelInfo)
	l.Info("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("expected message after SetLevel, got %q", buf.String())
	}
}

func TestDefaultLoggerSwap(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	defer SetDefault(prev)

	SetDefault(New(&Config{Level: LevelDebug, Output: &buf}))
	Info("via package-level helper")
	if !strings.Contains(buf.String(), "via package-level helper") {
		t.Fatalf("expected package-level Info to reach the swapped default logger, got %q", buf.String())
	}
}

func TestFormatArgsDropsTrailingUnpairedKey(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelDebug, Output: &buf})
	l.Info("msg", "only-key")
	if strings.Contains(buf.String(), "only-key") {
		t.Fatalf("expected unpaired trailing key to be dropped, got %q", buf.String())
	}
}
