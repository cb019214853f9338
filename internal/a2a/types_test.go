package a2a

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageCoercesNumericID(t *testing.T) {
	raw := `{"messageId": 12345, "role": "user", "parts": [{"kind": "text", "text": "hi"}]}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.MessageID != "12345" {
		t.Errorf("messageId = %q, want \"12345\"", msg.MessageID)
	}
	if msg.Role != RoleUser {
		t.Errorf("role = %q, want user", msg.Role)
	}
	if len(msg.Parts) != 1 || msg.Parts[0].Text != "hi" {
		t.Errorf("unexpected parts: %+v", msg.Parts)
	}
}

func TestMessageKeepsStringID(t *testing.T) {
	raw := `{"messageId": "msg-7", "role": "agent", "parts": []}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.MessageID != "msg-7" {
		t.Errorf("messageId = %q, want msg-7", msg.MessageID)
	}
}

func TestCoerceString(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`3.5`, "3.5"},
		{``, ""},
		{`null`, ""},
		{`{"x":1}`, ""},
	}
	for _, tc := range cases {
		if got := CoerceString(json.RawMessage(tc.raw)); got != tc.want {
			t.Errorf("CoerceString(%s) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestTaskStateIsTerminal(t *testing.T) {
	terminal := []TaskState{TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestPartKinds(t *testing.T) {
	parts := []Part{
		TextPart("created media buy mb_1"),
		DataPart(map[string]any{"media_buy_id": "mb_1"}),
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		t.Fatalf("marshal parts: %v", err)
	}
	if !strings.Contains(string(raw), `"kind":"text"`) || !strings.Contains(string(raw), `"kind":"data"`) {
		t.Errorf("parts missing kind tags: %s", raw)
	}

	var back []Part
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal parts: %v", err)
	}
	if back[1].Data["media_buy_id"] != "mb_1" {
		t.Errorf("data part lost payload: %+v", back[1])
	}
}

func TestAsMap(t *testing.T) {
	type payload struct {
		MediaBuyID string  `json:"media_buy_id"`
		Spend      float64 `json:"spend"`
	}
	m, err := AsMap(payload{MediaBuyID: "mb_9", Spend: 125.5})
	if err != nil {
		t.Fatalf("AsMap: %v", err)
	}
	if m["media_buy_id"] != "mb_9" {
		t.Errorf("media_buy_id = %v", m["media_buy_id"])
	}
	if m["spend"] != 125.5 {
		t.Errorf("spend = %v", m["spend"])
	}
}

func TestResponseEchoesRawID(t *testing.T) {
	resp := NewResponse(json.RawMessage(`17`), map[string]string{"ok": "yes"})
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	if !strings.Contains(string(raw), `"id":17`) {
		t.Errorf("numeric id not echoed: %s", raw)
	}

	errResp := NewErrorResponse(json.RawMessage(`"abc"`), -32601, "no such method")
	raw, err = json.Marshal(errResp)
	if err != nil {
		t.Fatalf("marshal error response: %v", err)
	}
	if !strings.Contains(string(raw), `"id":"abc"`) {
		t.Errorf("string id not echoed: %s", raw)
	}
	if !strings.Contains(string(raw), `-32601`) {
		t.Errorf("error code missing: %s", raw)
	}
}
