package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEmitStampsCommonKeys(t *testing.T) {
	logger := Logger()
	orig := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(orig)

	Emit("info", "audit_event", map[string]any{
		"action": "patient.view",
		"ts":     "2026-01-02T03:04:05Z",
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "info" || entry["msg"] != "audit_event" {
		t.Fatalf("missing stamped keys: %v", entry)
	}
	if entry["action"] != "patient.view" {
		t.Fatalf("field dropped: %v", entry)
	}
	if entry["ts"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("event timestamp not preserved: %v", entry["ts"])
	}
}
