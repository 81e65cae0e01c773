package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
	if len(mock.Requests()) != 1 {
		t.Errorf("expected 1 recorded request, got %d", len(mock.Requests()))
	}
	if ProviderName(mock) != "mock" {
		t.Errorf("unexpected provider name %q", ProviderName(mock))
	}
	if ProviderName(&FailingMockProvider{}) != "unknown" {
		t.Errorf("expected unknown name for unnamed provider")
	}
}

func TestScriptedMockProvider(t *testing.T) {
	p := NewScriptedMockProvider(
		ToolCallResponse("call_1", "read_file", `{"path":"go.mod"}`),
		TextResponse("done"),
	)
	ctx := context.Background()

	first, err := p.Chat(ctx, ChatRequest{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Function.Name != "read_file" {
		t.Fatalf("unexpected tool calls %+v", first.ToolCalls)
	}
	msg := first.Message()
	if msg.Role != RoleAssistant || len(msg.ToolCalls) != 1 {
		t.Errorf("unexpected assistant message %+v", msg)
	}

	second, err := p.Chat(ctx, ChatRequest{})
	if err != nil || second.Content != "done" {
		t.Fatalf("unexpected second response %+v, %v", second, err)
	}
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected error when script is exhausted")
	}
	if p.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", p.CallCount())
	}
}

func TestOllamaProviderChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"model": "llama3.1",
			"message": {"role": "assistant", "content": "", "tool_calls": [
				{"function": {"name": "enable_capability", "arguments": {"name": "file_system"}}}
			]},
			"done": true,
			"prompt_eval_count": 7,
			"eval_count": 3
		}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:       "llama3.1",
		Temperature: 0.2,
		Messages: []Message{
			SystemMessage("be brief"),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Function: FunctionCall{Name: "read_file", Arguments: `{"path":"a"}`}}}},
			ToolResultMessage("call_0", "contents"),
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got.Stream {
		t.Error("expected non-streaming request")
	}
	if got.Options["temperature"] != 0.2 {
		t.Errorf("expected temperature option, got %v", got.Options)
	}
	if got.Messages[2].ToolName != "read_file" {
		t.Errorf("expected tool name on tool message, got %q", got.Messages[2].ToolName)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Function.Arguments != `{"name": "file_system"}` {
		t.Errorf("unexpected arguments %q", resp.ToolCalls[0].Function.Arguments)
	}
	if resp.Usage.TotalTokens != 10 || resp.Model != "llama3.1" {
		t.Errorf("unexpected usage/model %+v %q", resp.Usage, resp.Model)
	}
}

func TestOllamaProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "missing"}); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
