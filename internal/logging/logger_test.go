package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := WithComponent(NewWithWriter(Config{Level: "debug", Format: "json", Service: "svc"}, &buf), "auth")
	l.Info().Str(FieldUserID, "42").Msg("login succeeded")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for k, want := range map[string]string{
		"level":        "info",
		"message":      "login succeeded",
		FieldService:   "svc",
		FieldComponent: "auth",
		FieldUserID:    "42",
	} {
		if got[k] != want {
			t.Errorf("field %q = %v, want %q", k, got[k], want)
		}
	}
	if _, ok := got["time"]; !ok {
		t.Error("missing time field")
	}
}

func TestNewWithWriter_Level(t *testing.T) {
	testCases := []struct {
		level string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithWriter(Config{Level: tc.level}, &buf)
			if l.GetLevel() != tc.want {
				t.Errorf("level = %v, want %v", l.GetLevel(), tc.want)
			}
		})
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Format: "console"}, &buf)
	l.Info().Msg("hello")
	if json.Valid(buf.Bytes()) {
		t.Errorf("console output should not be JSON: %q", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Errorf("console output missing message: %q", buf.String())
	}
}
