package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"todaride/internal/config"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := newWithOutput(config.LogConfig{Level: "debug", Format: "json"}, &buf)

	log.WithField("ride_id", "r-1").Info("matched")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["ride_id"] != "r-1" {
		t.Errorf("expected ride_id field, got %v", entry["ride_id"])
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %v", log.GetLevel())
	}
}

func TestNew_TextFormatAndLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := newWithOutput(config.LogConfig{Level: "loud", Format: "text"}, &buf)

	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info fallback, got %v", log.GetLevel())
	}

	log.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}
