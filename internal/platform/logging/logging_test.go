package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", "info")
	logger.Info().Str("clinic_id", "c1").Msg("hello")

	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"clinic_id":"c1"`) {
		t.Errorf("expected JSON line, got %s", out)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "TEXT", "info")
	logger.Info().Msg("hello")

	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "hello") {
		t.Errorf("expected console line, got %s", out)
	}
}

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level   string
		debugOK bool
	}{
		{"debug", true},
		{"warn", false},
		{"", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := New(&buf, "json", tt.level)
		logger.Debug().Msg("dbg")
		if got := buf.Len() > 0; got != tt.debugOK {
			t.Errorf("level %q: debug logged = %v, want %v", tt.level, got, tt.debugOK)
		}
	}
}
