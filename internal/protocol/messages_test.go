package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/courier/direct-chat/internal/chat"
	"github.com/courier/direct-chat/internal/user"
)

func TestParseClientMessage_Auth(t *testing.T) {
	input := []byte(`{"type":"auth","username":"alice"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeAuth {
		t.Fatalf("expected type %q, got %q", TypeAuth, msgType)
	}

	am, ok := msg.(AuthMsg)
	if !ok {
		t.Fatalf("expected AuthMsg, got %T", msg)
	}
	if am.Username != "alice" {
		t.Errorf("expected username %q, got %q", "alice", am.Username)
	}
}

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","recipient":"bob","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.Recipient != "bob" {
		t.Errorf("expected recipient %q, got %q", "bob", sm.Recipient)
	}
	if sm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", sm.Text)
	}
}

func TestParseClientMessage_GetPage(t *testing.T) {
	input := []byte(`{"type":"get_page","partner":"bob","offset":40,"limit":20}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeGetPage {
		t.Fatalf("expected type %q, got %q", TypeGetPage, msgType)
	}

	pm, ok := msg.(GetPageMsg)
	if !ok {
		t.Fatalf("expected GetPageMsg, got %T", msg)
	}
	if pm.Partner != "bob" || pm.Offset != 40 || pm.Limit != 20 {
		t.Errorf("unexpected payload: %+v", pm)
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"recipient":"bob"}`},
		{"empty type", `{"type":""}`},
		{"unknown type", `{"type":"does_not_exist"}`},
		{"server-only type", `{"type":"authed"}`},
	}

	for _, tc := range cases {
		if _, _, err := ParseClientMessage([]byte(tc.input)); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data, err := NewServerMessage(TypeMessage, DeliveredMsg{
		Message: chat.ChatMessage{
			ID:        42,
			Sender:    user.User{ID: 1, Name: "alice"},
			Recipient: user.User{ID: 2, Name: "bob"},
			Text:      "hi",
			SentAt:    seen,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeMessage {
		t.Errorf("expected type %q, got %v", TypeMessage, decoded["type"])
	}

	inner, ok := decoded["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected embedded message object, got %T", decoded["message"])
	}
	if inner["id"] != float64(42) {
		t.Errorf("expected message id 42, got %v", inner["id"])
	}
	if _, present := inner["seen_at"]; present {
		t.Error("expected seen_at omitted for unseen message")
	}
}

func TestNewServerMessage_RoundTripUnread(t *testing.T) {
	data, err := NewServerMessage(TypeUnread, UnreadMsg{
		Counts: map[int64]int64{1: 3, 7: 1},
		Total:  4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Type   string           `json:"type"`
		Counts map[string]int64 `json:"counts"`
		Total  int64            `json:"total"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeUnread {
		t.Errorf("expected type %q, got %q", TypeUnread, decoded.Type)
	}
	if decoded.Counts["1"] != 3 || decoded.Counts["7"] != 1 || decoded.Total != 4 {
		t.Errorf("unexpected payload: %+v", decoded)
	}
}
