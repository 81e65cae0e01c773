package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

// ToolErrorPrefix starts the result of a tool call the server marked as failed.
const ToolErrorPrefix = "Error calling tool: "

// ToolCaller abstracts MCP tool execution.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// InputSchema converts an MCP tool schema, preferring the raw schema when
// the server sent one.
func InputSchema(t mcp.Tool) (tool.InputSchema, error) {
	raw := t.RawInputSchema
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(t.InputSchema); err != nil {
			return tool.InputSchema{}, err
		}
	}
	var schema tool.InputSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return tool.InputSchema{}, fmt.Errorf("tool %s: invalid input schema: %w", t.Name, err)
	}
	return schema, nil
}

// NewTool adapts an MCP tool so calls go through caller.
func NewTool(t mcp.Tool, caller ToolCaller) (tool.Tool, error) {
	schema, err := InputSchema(t)
	if err != nil {
		return tool.Tool{}, err
	}
	name := t.Name
	return tool.New(name, t.Description, schema, func(ctx context.Context, args map[string]any) (string, error) {
		res, err := caller.CallTool(ctx, name, args)
		if err != nil {
			return "", err
		}
		return ToolResultText(res), nil
	}), nil
}

// ToolResultText joins the text contents of a result with newlines.
func ToolResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, item := range res.Content {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" && res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			text = string(raw)
		}
	}
	if res.IsError {
		return ToolErrorPrefix + text
	}
	return text
}

func resourceText(contents []mcp.ResourceContents) []string {
	out := make([]string, 0, len(contents))
	for _, item := range contents {
		switch c := item.(type) {
		case mcp.TextResourceContents:
			out = append(out, c.Text)
		case *mcp.TextResourceContents:
			out = append(out, c.Text)
		case mcp.BlobResourceContents:
			out = append(out, c.Blob)
		case *mcp.BlobResourceContents:
			out = append(out, c.Blob)
		}
	}
	return out
}
