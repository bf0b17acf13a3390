package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(config.LoggingConfig{Level: "debug", Format: "JSON"}, &buf)

	log.WithField("point_id", "p1").Debug("Assembled preliminary watershed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["point_id"] != "p1" || entry["level"] != "debug" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewTextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"":         logrus.InfoLevel,
		"DEBUG":    logrus.DebugLevel,
		" warning": logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"trace":    logrus.TraceLevel,
		"verbose":  logrus.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
