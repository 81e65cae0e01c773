package builder

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Finndersen/adept-ai/pkg/capability"
	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
	"github.com/Finndersen/adept-ai/pkg/governance"
	"github.com/Finndersen/adept-ai/pkg/mcp"
	"github.com/Finndersen/adept-ai/pkg/prompt"
	"github.com/Finndersen/adept-ai/pkg/session"
	"github.com/Finndersen/adept-ai/pkg/tool"
)

type noteArgs struct {
	Text string `json:"text"`
}

func staticCaps() []capability.Capability {
	notes := capability.New("notes", "Take notes",
		capability.WithTools(
			tool.MustFromFunc("add_note", "Add a note", func(_ context.Context, in noteArgs) (string, error) {
				return "noted: " + in.Text, nil
			}),
			tool.MustFromFunc("clear_notes", "Clear notes", func(context.Context, struct{}) (string, error) {
				return "", errors.New("storage offline")
			}),
		),
		capability.WithInstructions("Keep notes short"),
		capability.WithContextData("3 notes saved"),
		capability.WithEnabled(true),
	)
	weather := capability.New("Weather", "Look up the weather",
		capability.WithTools(tool.MustFromFunc("forecast", "Forecast", func(context.Context, struct{}) (string, error) {
			return "sunny", nil
		})),
		capability.WithContextFunc(func(context.Context) (string, error) {
			return "Location: Sydney", nil
		}),
	)
	return []capability.Capability{notes, weather}
}

func newBuilder(t *testing.T, caps []capability.Capability, opts ...Option) *Builder {
	t.Helper()
	b, err := New("role", caps, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func toolNames(t *testing.T, b *Builder) []string {
	t.Helper()
	tools, err := b.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	return tool.Names(tools)
}

type recordingCap struct {
	capability.Base
	log      *[]string
	setupErr error
}

func newRecordingCap(name string, log *[]string) *recordingCap {
	return &recordingCap{Base: capability.NewBase(name, name+" capability"), log: log}
}

func (r *recordingCap) Setup(context.Context) error {
	*r.log = append(*r.log, "setup "+r.Name())
	return r.setupErr
}

func (r *recordingCap) Teardown(context.Context) error {
	*r.log = append(*r.log, "teardown "+r.Name())
	return nil
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New("role", []capability.Capability{
		capability.New("Git", "a"),
		capability.New("git", "b"),
	})
	if !adepterrors.HasCode(err, adepterrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEnabledAndDisabledViews(t *testing.T) {
	b, err := New("You are helpful", staticCaps())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := capability.Names(b.EnabledCapabilities()); !reflect.DeepEqual(got, []string{"notes"}) {
		t.Fatalf("enabled = %v", got)
	}
	if got := capability.Names(b.DisabledCapabilities()); !reflect.DeepEqual(got, []string{"Weather"}) {
		t.Fatalf("disabled = %v", got)
	}
	if b.Role() != "You are helpful" || b.SessionID() != "" {
		t.Fatalf("role %q session %q", b.Role(), b.SessionID())
	}
}

func TestToolsIncludesEnableToolWhileAnyDisabled(t *testing.T) {
	ctx := context.Background()
	b := newBuilder(t, staticCaps())

	tools, err := b.Tools(ctx)
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if got := tool.Names(tools); !reflect.DeepEqual(got, []string{"enable_capability", "add_note", "clear_notes"}) {
		t.Fatalf("tools = %v", got)
	}

	enable := tools[0]
	if !enable.UpdatesSystemPrompt || enable.Description != "Enable a capability" {
		t.Fatalf("unexpected enable tool %+v", enable)
	}
	if !reflect.DeepEqual(enable.InputSchema.Required, []string{"name"}) {
		t.Fatalf("required = %v", enable.InputSchema.Required)
	}
	spec := enable.InputSchema.Properties["name"].(tool.ParameterSpec)
	if !reflect.DeepEqual(spec.Enum, []string{"Weather"}) {
		t.Fatalf("enum = %v", spec.Enum)
	}

	if _, err := b.EnableCapability(ctx, "weather"); err != nil {
		t.Fatalf("EnableCapability failed: %v", err)
	}
	if got := toolNames(t, b); !reflect.DeepEqual(got, []string{"add_note", "clear_notes", "forecast"}) {
		t.Fatalf("tools after enable = %v", got)
	}
}

func TestEnableCapability(t *testing.T) {
	ctx := context.Background()
	b := newBuilder(t, staticCaps())

	out, err := b.EnableCapability(ctx, "WEATHER")
	if err != nil {
		t.Fatalf("EnableCapability failed: %v", err)
	}
	if out != "Capability WEATHER enabled" {
		t.Fatalf("EnableCapability = %q", out)
	}
	if n := len(b.DisabledCapabilities()); n != 0 {
		t.Fatalf("expected nothing disabled, got %d", n)
	}

	_, err = b.EnableCapability(ctx, "calendar")
	var toolErr *tool.Error
	if !errors.As(err, &toolErr) || toolErr.Message != "Capability calendar not found" {
		t.Fatalf("expected not found tool error, got %v", err)
	}

	out, err = b.DisableCapability(ctx, "notes")
	if err != nil {
		t.Fatalf("DisableCapability failed: %v", err)
	}
	if out != "Capability notes disabled" {
		t.Fatalf("DisableCapability = %q", out)
	}
	if got := capability.Names(b.DisabledCapabilities()); !reflect.DeepEqual(got, []string{"notes"}) {
		t.Fatalf("disabled = %v", got)
	}
}

func TestEnableCapabilityTool(t *testing.T) {
	ctx := context.Background()
	b := newBuilder(t, staticCaps())

	res, err := b.CallTool(ctx, EnableCapabilityToolName, map[string]any{"name": "weather"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.Output != "Capability weather enabled" || !res.RefreshPrompt {
		t.Fatalf("unexpected result %+v", res)
	}

	// Once nothing is disabled the tool is no longer offered.
	res, err = b.CallTool(ctx, EnableCapabilityToolName, map[string]any{"name": "weather"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.Output != "Error: Tool enable_capability not found" {
		t.Fatalf("unexpected result %+v", res)
	}

	tests := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{"name": "nope"}, "Error: Capability nope not found"},
		{nil, "Error: Capability name is required"},
	}
	for _, tc := range tests {
		out, err := b.EnableCapabilityTool().Call(ctx, tc.args)
		if err != nil {
			t.Fatalf("Call(%v) failed: %v", tc.args, err)
		}
		if out != tc.want {
			t.Fatalf("Call(%v) = %q, want %q", tc.args, out, tc.want)
		}
	}
}

func TestCallTool(t *testing.T) {
	ctx := context.Background()
	b := newBuilder(t, staticCaps())

	res, err := b.CallTool(ctx, "add_note", map[string]any{"text": "buy milk"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res != (CallResult{Output: "noted: buy milk"}) {
		t.Fatalf("unexpected result %+v", res)
	}

	// Tools of disabled capabilities are not callable.
	res, err = b.CallTool(ctx, "forecast", nil)
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.Output != "Error: Tool forecast not found" {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := b.CallTool(ctx, "clear_notes", nil); !adepterrors.HasCode(err, adepterrors.CodeToolFailure) {
		t.Fatalf("expected tool failure, got %v", err)
	}
}

func TestToolFilterSparesEnableTool(t *testing.T) {
	tests := []struct {
		name string
		deny []string
		want []string
	}{
		{"explicit", []string{"clear_*", "enable_capability"}, []string{"enable_capability", "add_note"}},
		{"prefix", []string{"enable_*"}, []string{"enable_capability", "add_note", "clear_notes"}},
		{"everything", []string{"*"}, []string{"enable_capability"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			filter := governance.NewToolFilter(governance.WithDenylist(tc.deny))
			b := newBuilder(t, staticCaps(), WithToolFilter(filter))
			if got := toolNames(t, b); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("tools = %v, want %v", got, tc.want)
			}

			res, err := b.CallTool(context.Background(), EnableCapabilityToolName, map[string]any{"name": "Weather"})
			if err != nil {
				t.Fatalf("CallTool failed: %v", err)
			}
			if res.Output != "Capability Weather enabled" {
				t.Fatalf("enable_capability = %q", res.Output)
			}
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	ctx := context.Background()
	b, err := New("You are a note taker", staticCaps())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := b.SystemPrompt(ctx)
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	for _, want := range []string{"You are a note taker", "## notes", "Keep notes short", "3 notes saved", "- Weather: Look up the weather"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Location: Sydney") {
		t.Fatal("context of a disabled capability was resolved")
	}

	if _, err := b.EnableCapability(ctx, "Weather"); err != nil {
		t.Fatalf("EnableCapability failed: %v", err)
	}
	out, err = b.SystemPrompt(ctx)
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if !strings.Contains(out, "Location: Sydney") || strings.Contains(out, "enable_capability") {
		t.Fatalf("unexpected prompt after enable:\n%s", out)
	}
}

func TestCustomTemplate(t *testing.T) {
	tmpl := prompt.MustParse("short", `{{.Role}}|{{range .EnabledCapabilities}}{{.Name}};{{end}}|{{range .DisabledCapabilities}}{{.Name}};{{end}}`)
	b, err := New("R", staticCaps(), WithTemplate(tmpl))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := b.SystemPrompt(context.Background())
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if out != "R|notes;|Weather;" {
		t.Fatalf("SystemPrompt = %q", out)
	}
}

func TestLLMTools(t *testing.T) {
	b := newBuilder(t, staticCaps())

	defs, err := b.LLMTools(context.Background())
	if err != nil {
		t.Fatalf("LLMTools failed: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	if defs[0].Function.Name != "enable_capability" || defs[1].Function.Description != "Add a note" {
		t.Fatalf("unexpected definitions %+v", defs)
	}
	params, ok := defs[1].Function.Parameters.(tool.InputSchema)
	if !ok {
		t.Fatalf("parameters are %T", defs[1].Function.Parameters)
	}
	if got := params.PropertyNames(); !reflect.DeepEqual(got, []string{"text"}) {
		t.Fatalf("properties = %v", got)
	}
}

func TestSetupAndCloseOrder(t *testing.T) {
	var log []string
	a := newRecordingCap("a", &log)
	c := newRecordingCap("c", &log)
	b := newBuilder(t, []capability.Capability{a, c})

	ctx := context.Background()
	if err := b.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if want := []string{"setup a", "setup c", "teardown a", "teardown c"}; !reflect.DeepEqual(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
}

func TestSetupFailureTearsDown(t *testing.T) {
	var log []string
	a := newRecordingCap("a", &log)
	c := newRecordingCap("c", &log)
	c.setupErr = errors.New("boom")
	b := newBuilder(t, []capability.Capability{a, c})

	err := b.Setup(context.Background())
	if err == nil || !strings.Contains(err.Error(), "setup capability c") {
		t.Fatalf("expected setup error for c, got %v", err)
	}
	if want := []string{"setup a", "setup c", "teardown a"}; !reflect.DeepEqual(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
}

func TestSessionPersistence(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	b := newBuilder(t, staticCaps(), WithSessionStore(store, "s1"))
	if err := b.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if _, err := b.EnableCapability(ctx, "weather"); err != nil {
		t.Fatalf("EnableCapability failed: %v", err)
	}
	if _, err := b.DisableCapability(ctx, "notes"); err != nil {
		t.Fatalf("DisableCapability failed: %v", err)
	}

	names, ok, err := store.EnabledCapabilities(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("EnabledCapabilities = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(names, []string{"Weather"}) {
		t.Fatalf("stored names = %v", names)
	}

	resumed := newBuilder(t, staticCaps(), WithSessionStore(store, "s1"))
	if err := resumed.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if got := capability.Names(resumed.EnabledCapabilities()); !reflect.DeepEqual(got, []string{"Weather"}) {
		t.Fatalf("resumed enabled = %v", got)
	}
	if got := capability.Names(resumed.DisabledCapabilities()); !reflect.DeepEqual(got, []string{"notes"}) {
		t.Fatalf("resumed disabled = %v", got)
	}
}

func TestSessionIDGenerated(t *testing.T) {
	b := newBuilder(t, nil, WithSessionStore(session.NewMemoryStore(), ""))
	if b.SessionID() == "" {
		t.Fatal("expected a generated session id")
	}
}

func newMCPServer() *server.MCPServer {
	srv := server.NewMCPServer("calc", "1.0.0", server.WithToolCapabilities(true))
	srv.AddTool(mcpgo.NewTool("add",
		mcpgo.WithDescription("Add two numbers"),
		mcpgo.WithNumber("a", mcpgo.Required()),
		mcpgo.WithNumber("b", mcpgo.Required()),
	), func(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args := req.GetArguments()
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return mcpgo.NewToolResultText(fmt.Sprintf("%g", a+b)), nil
	})
	return srv
}

func TestAllToolsGatesDisabledCapabilities(t *testing.T) {
	ctx := context.Background()
	calc := mcp.NewInProcessCapability("calc", "Calculator", newMCPServer())
	b := newBuilder(t, append(staticCaps(), calc))
	if err := b.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(ctx) })

	gated, err := b.AllTools(ctx)
	if err != nil {
		t.Fatalf("AllTools failed: %v", err)
	}

	names := make([]string, len(gated))
	state := map[string]bool{}
	for i, g := range gated {
		names[i] = g.Tool.Name
		state[g.Tool.Name] = g.Enabled()
	}
	if want := []string{"enable_capability", "add_note", "clear_notes", "forecast", "add"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	if !state["enable_capability"] || !state["add_note"] || state["forecast"] || state["add"] {
		t.Fatalf("unexpected gating %v", state)
	}

	if _, err := b.EnableCapability(ctx, "calc"); err != nil {
		t.Fatalf("EnableCapability failed: %v", err)
	}
	for _, g := range gated {
		if g.Tool.Name != "add" {
			continue
		}
		if !g.Enabled() {
			t.Fatal("add still gated after enabling calc")
		}
		out, err := g.Tool.Call(ctx, map[string]any{"a": 1, "b": 2})
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if out != "3" {
			t.Fatalf("add = %q", out)
		}
	}
}

func TestMCPCapabilityThroughBuilder(t *testing.T) {
	ctx := context.Background()
	calc := mcp.NewInProcessCapability("calc", "Calculator", newMCPServer())
	b := newBuilder(t, []capability.Capability{calc})
	if err := b.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(ctx) })

	res, err := b.CallTool(ctx, EnableCapabilityToolName, map[string]any{"name": "calc"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !res.RefreshPrompt {
		t.Fatal("enable_capability should refresh the prompt")
	}

	res, err = b.CallTool(ctx, "add", map[string]any{"a": 5, "b": 3})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.Output != "8" {
		t.Fatalf("add = %q", res.Output)
	}

	out, err := b.SystemPrompt(ctx)
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if !strings.Contains(out, "## calc") {
		t.Fatalf("calc section missing:\n%s", out)
	}
}
