// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Finndersen/adept-ai/pkg/llm"
)

func TestNewProvider(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, p.model)
	}
	if p.Name() != "openai" {
		t.Errorf("unexpected name %q", p.Name())
	}
}

func TestWithModel(t *testing.T) {
	p := New(WithModel("gpt-4-turbo"))
	if p.model != "gpt-4-turbo" {
		t.Errorf("expected model gpt-4-turbo, got %s", p.model)
	}
}

func TestOptionsAccumulate(t *testing.T) {
	p := New(WithAPIKey("test-key"), WithBaseURL("http://localhost:1234/v1/"))
	if len(p.clientOpts) != 2 {
		t.Errorf("expected both client options to be kept, got %d", len(p.clientOpts))
	}
}

func TestConvertToolRejectsNonObject(t *testing.T) {
	_, err := convertTool(llm.Tool{
		Type:     llm.ToolTypeFunction,
		Function: llm.FunctionDef{Name: "bad", Parameters: []string{"not", "an", "object"}},
	})
	if err == nil {
		t.Fatal("expected error for array parameters")
	}
}

func TestChatRoundTrip(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "enable_capability", "arguments": "{\"name\":\"file_system\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	p := New(WithAPIKey("test-key"), WithBaseURL(srv.URL+"/"))
	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			llm.SystemMessage("You are a helpful assistant"),
			llm.UserMessage("list files"),
		},
		Tools: []llm.Tool{{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        "enable_capability",
				Description: "Enable a capability",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"name": map[string]any{"type": "string"}},
					"required":   []string{"name"},
				},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if body["model"] != DefaultModel {
		t.Errorf("expected default model in request, got %v", body["model"])
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("expected 2 messages, got %v", body["messages"])
	}
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Errorf("expected 1 tool, got %v", body["tools"])
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "enable_capability" || call.Function.Arguments != `{"name":"file_system"}` {
		t.Errorf("unexpected tool call %+v", call)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("expected 17 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestConvertMessages(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful"},
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Hi there"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_1", Function: llm.FunctionCall{Name: "read_file", Arguments: "{}"}}}},
		{Role: llm.RoleTool, Content: "result", ToolCallID: "call_123"},
	}
	for _, msg := range msgs {
		converted := convertMessage(msg)
		if msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0 {
			if converted.OfAssistant == nil || len(converted.OfAssistant.ToolCalls) != 1 {
				t.Errorf("expected assistant tool call message, got %+v", converted)
			}
		}
		if msg.Role == llm.RoleTool && converted.OfTool == nil {
			t.Errorf("expected tool message for tool role")
		}
	}
}
