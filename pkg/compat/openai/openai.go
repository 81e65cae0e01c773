// Package openai presents adept tools in the shapes used by the OpenAI
// Responses and Chat Completions APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

// FunctionCallOutputType is the input item type answering a function call.
const FunctionCallOutputType = "function_call_output"

// FunctionTool is a Responses API function tool definition.
type FunctionTool struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Description string           `json:"description,omitempty"`
	Parameters  tool.InputSchema `json:"parameters"`
}

// ChatTool is a Chat Completions tool definition.
type ChatTool struct {
	Type     string           `json:"type"`
	Function ChatFunctionTool `json:"function"`
}

// ChatFunctionTool is the function part of a ChatTool.
type ChatFunctionTool struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  tool.InputSchema `json:"parameters"`
	Strict      bool             `json:"strict,omitempty"`
}

// FunctionCall is a function_call output item from the Responses API.
type FunctionCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallOutput answers a FunctionCall.
type FunctionCallOutput struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
	Type   string `json:"type"`
}

// Tools wraps a tool set.
type Tools struct {
	tools []tool.Tool
}

// New wraps tools.
func New(tools []tool.Tool) *Tools {
	return &Tools{tools: append([]tool.Tool(nil), tools...)}
}

// ResponsesTools returns the definitions in strict mode: every property is
// required and no others are allowed.
func (t *Tools) ResponsesTools() []FunctionTool {
	out := make([]FunctionTool, 0, len(t.tools))
	for _, tl := range t.tools {
		out = append(out, FunctionTool{
			Name:        tl.Name,
			Type:        "function",
			Description: tl.Description,
			Parameters:  tl.InputSchema.Strict(),
		})
	}
	return out
}

// ChatTools returns the Chat Completions form of the definitions.
func (t *Tools) ChatTools() []ChatTool {
	out := make([]ChatTool, 0, len(t.tools))
	for _, tl := range t.tools {
		out = append(out, ChatTool{
			Type: "function",
			Function: ChatFunctionTool{
				Name:        tl.Name,
				Description: tl.Description,
				Parameters:  tl.InputSchema.Strict(),
				Strict:      true,
			},
		})
	}
	return out
}

// CallTool calls the named tool. An unknown name comes back as
// "Error: ..." output, like any other tool error.
func (t *Tools) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	tl, ok := tool.Find(t.tools, name)
	if !ok {
		return fmt.Sprintf("Error: Tool %s not found", name), nil
	}
	return tl.Call(ctx, args)
}

// HandleFunctionCall runs call and wraps the result for the next request.
// Arguments that cannot be decoded are reported in the output.
func (t *Tools) HandleFunctionCall(ctx context.Context, call FunctionCall) (FunctionCallOutput, error) {
	result := FunctionCallOutput{CallID: call.CallID, Type: FunctionCallOutputType}
	args, err := tool.ParseArguments(call.Arguments)
	if err != nil {
		result.Output = "Error: invalid arguments: " + err.Error()
		return result, nil
	}
	if result.Output, err = t.CallTool(ctx, call.Name, args); err != nil {
		return FunctionCallOutput{}, err
	}
	return result, nil
}

// MarshalJSON encodes the Responses definitions, so Tools can be passed
// straight into a request body.
func (t *Tools) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ResponsesTools())
}
