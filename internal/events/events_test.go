package events

import (
	"encoding/json"
	"testing"
	"time"
)

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = Nop{}
)

func TestSessionEventJSON(t *testing.T) {
	ev := SessionEvent{
		SessionKey:  "Anthropic_R_abc",
		SubjectID:   "R_abc",
		Provider:    "anthropic",
		Model:       "claude-3-5-sonnet-20241022",
		Termination: "normal-completion",
		Persisted:   "final",
		Uploaded:    true,
		At:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if raw["session_key"] != "Anthropic_R_abc" {
		t.Errorf("expected session_key, got %v", raw["session_key"])
	}
	if raw["termination"] != "normal-completion" {
		t.Errorf("expected termination, got %v", raw["termination"])
	}
	if raw["notified"] != false {
		t.Errorf("expected notified false, got %v", raw["notified"])
	}
}

func TestSessionEventOmitsEmpty(t *testing.T) {
	data, _ := json.Marshal(SessionEvent{SessionKey: "Interview_NoUID_x"})
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)

	for _, key := range []string{"subject_id", "termination", "persisted"} {
		if _, ok := raw[key]; ok {
			t.Errorf("expected %s omitted for a started event, got %v", key, raw[key])
		}
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(SubjectSessionStarted, SessionEvent{}); err != nil {
		t.Errorf("nop publish returned %v", err)
	}
}
