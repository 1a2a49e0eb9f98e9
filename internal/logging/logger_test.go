package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.Info("registry started", "agents", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "registry started" {
		t.Errorf("expected msg 'registry started', got %v", entry["msg"])
	}
	if entry["agents"] != float64(3) {
		t.Errorf("expected agents=3, got %v", entry["agents"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("debug/info should be filtered at WARN level: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn should pass at WARN level: %s", out)
	}
}

func TestWithAgent_AttachesAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug).WithAgent("infra-1").WithComponent("delegate")

	logger.Debug("task dispatched")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["agent_id"] != "infra-1" {
		t.Errorf("expected agent_id 'infra-1', got %v", entry["agent_id"])
	}
	if entry["component"] != "delegate" {
		t.Errorf("expected component 'delegate', got %v", entry["component"])
	}
}

func TestNilLogger_IsSafe(t *testing.T) {
	var logger *Logger

	// None of these should panic.
	logger.Debug("a")
	logger.Info("b")
	logger.Warn("c")
	logger.Error("d")
	_ = logger.With("k", "v")
	_ = logger.WithAgent("x")
}

func TestNop_DiscardsAndChains(t *testing.T) {
	logger := Nop()

	// Safe at every level, including through child loggers.
	logger.Debug("a")
	logger.WithAgent("x").WithComponent("bus").Error("b", "k", "v")
}

func TestParseLevel_Unknown(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "verbose")

	logger.Debug("dropped")
	logger.Info("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("unknown level should default to INFO")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("info should pass at default level")
	}
}
