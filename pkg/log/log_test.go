package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Info("server started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}

	if entry["message"] != "server started" {
		t.Errorf("expected message 'server started', got %v", entry["message"])
	}

	if entry["level"] != "info" {
		t.Errorf("expected level 'info', got %v", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	Debug("noise")
	Info("also noise")
	Warn("kept")

	lines := strings.TrimSpace(buf.String())
	if strings.Contains(lines, "noise") {
		t.Errorf("below-threshold lines should be dropped: %s", lines)
	}

	if !strings.Contains(lines, "kept") {
		t.Errorf("warn line missing from output: %s", lines)
	}
}

func TestChildLoggerChaining(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	// Chaining a level method directly on the helper return must work.
	WithComponent("queue").Info().Str("worker", "w1").Msg("worker started")
	WithTaskID("5f1c").Debug().Msg("task picked up")
	WithHost("db01.example.com").Warn().Msg("slow host")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to decode line: %v", err)
	}
	if first["component"] != "queue" {
		t.Errorf("expected component 'queue', got %v", first["component"])
	}
	if first["worker"] != "w1" {
		t.Errorf("expected worker 'w1', got %v", first["worker"])
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("failed to decode line: %v", err)
	}
	if second["task_id"] != "5f1c" {
		t.Errorf("expected task_id '5f1c', got %v", second["task_id"])
	}

	var third map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &third); err != nil {
		t.Fatalf("failed to decode line: %v", err)
	}
	if third["host"] != "db01.example.com" {
		t.Errorf("expected host field, got %v", third["host"])
	}
}
