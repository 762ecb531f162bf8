package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"exam_id", 7, "api_key", "qb_abc", "JWT_Token", "x.y.z", "dangling"})
	if len(out) != 7 {
		t.Fatalf("expected 7 items, got %d", len(out))
	}
	if out[1] != 7 {
		t.Fatalf("exam_id should pass through, got %v", out[1])
	}
	if out[3] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("expected redaction, got %v", out)
	}
	if out[6] != "dangling" {
		t.Fatalf("odd trailing key should be preserved")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewNopDoesNotPanic(t *testing.T) {
	l := NewNop()
	l.With("exam_id", 1).Info("ok", "k", "v")
	l.Sync()
}
