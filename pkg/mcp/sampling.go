package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Finndersen/adept-ai/pkg/llm"
)

// ProviderSampler answers server sampling requests with an llm.Provider.
// Only text content is forwarded.
type ProviderSampler struct {
	Provider llm.Provider
	// Model overrides the provider default when set.
	Model string
}

func (s *ProviderSampler) CreateMessage(ctx context.Context, req mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
	if s.Provider == nil {
		return nil, fmt.Errorf("sampling: no provider configured")
	}

	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		role := llm.RoleUser
		if m.Role == mcp.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: samplingText(m.Content)})
	}

	resp, err := s.Provider.Chat(ctx, llm.ChatRequest{
		Model:       s.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}

	model := resp.Model
	if model == "" {
		model = s.Model
	}
	if model == "" {
		model = llm.ProviderName(s.Provider)
	}
	return &mcp.CreateMessageResult{
		SamplingMessage: mcp.SamplingMessage{
			Role:    mcp.RoleAssistant,
			Content: mcp.NewTextContent(resp.Content),
		},
		Model:      model,
		StopReason: "endTurn",
	}, nil
}

func samplingText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			return text
		}
	}
	return ""
}
