package mylogger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_RenamesMessageAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(LevelInfo, &buf)

	log.Action("offer_received").Info("offer received", "order_id", "o-1")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got["message"] != "offer received" {
		t.Errorf("message = %v", got["message"])
	}
	if _, ok := got["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
	if got["action"] != "offer_received" {
		t.Errorf("action = %v", got["action"])
	}
	if got["order_id"] != "o-1" {
		t.Errorf("order_id = %v", got["order_id"])
	}
	if got["instance_id"] == "" || got["instance_id"] == nil {
		t.Error("instance_id should be set")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(LevelWarn, &buf)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %d", len(lines))
	}
}

func TestLogger_ErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(LevelDebug, &buf)

	log.Error("send failed", errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	errGroup, ok := lines[0]["error"].(map[string]any)
	if !ok {
		t.Fatalf("error group missing: %v", lines[0])
	}
	if errGroup["msg"] != "boom" {
		t.Errorf("error.msg = %v", errGroup["msg"])
	}
	if _, ok := errGroup["stack"].([]any); !ok {
		t.Errorf("error.stack should be a list, got %T", errGroup["stack"])
	}
}
