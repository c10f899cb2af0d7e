package llm

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		msg  Message
		role Role
		text string
	}{
		{SystemMessage("sys"), RoleSystem, "sys"},
		{UserMessage("hi"), RoleUser, "hi"},
		{AssistantMessage("yo"), RoleAssistant, "yo"},
	}
	for _, tt := range tests {
		if tt.msg.Role != tt.role {
			t.Errorf("expected role %q, got %q", tt.role, tt.msg.Role)
		}
		if tt.msg.TextContent() != tt.text {
			t.Errorf("expected text %q, got %q", tt.text, tt.msg.TextContent())
		}
	}
}

func TestMessageTextContentSkipsToolCalls(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentPart{
		TextPart("a"),
		ToolCallPart("c1", "terminate", json.RawMessage(`{}`)),
		TextPart("b"),
	}}
	if msg.TextContent() != "ab" {
		t.Errorf("expected %q, got %q", "ab", msg.TextContent())
	}
}

func TestResponseToolCalls(t *testing.T) {
	resp := Response{Message: Message{Role: RoleAssistant, Content: []ContentPart{
		ToolCallPart("c1", "first", json.RawMessage(`{"a":1}`)),
		ToolCallPart("c2", "second", json.RawMessage(`{}`)),
	}}}
	calls := resp.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "first" || calls[1].ID != "c2" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestUsageAdd(t *testing.T) {
	got := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}.Add(Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	if got != (Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}) {
		t.Errorf("unexpected sum %+v", got)
	}
}
