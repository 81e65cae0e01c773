package mcp

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

type toolSourceFunc func(ctx context.Context) ([]tool.Tool, error)

func (f toolSourceFunc) Tools(ctx context.Context) ([]tool.Tool, error) { return f(ctx) }

type echoArgs struct {
	Text string `json:"text" jsonschema:"description=Text to echo"`
}

func TestServerExposesTools(t *testing.T) {
	var unlocked atomic.Bool
	echo := tool.MustFromFunc("echo", "Echo text back", func(_ context.Context, in echoArgs) (string, error) {
		return in.Text, nil
	})
	unlock := tool.MustFromFunc("unlock", "Expose the secret tool", func(context.Context, struct{}) (string, error) {
		unlocked.Store(true)
		return "unlocked", nil
	}, tool.WithUpdatesSystemPrompt())
	secret := tool.MustFromFunc("secret", "Hidden until unlocked", func(context.Context, struct{}) (string, error) {
		return "", tool.Errorf("not today")
	})

	source := toolSourceFunc(func(context.Context) ([]tool.Tool, error) {
		if unlocked.Load() {
			return []tool.Tool{echo, unlock, secret}, nil
		}
		return []tool.Tool{echo, unlock}, nil
	})

	s := NewServer("adept", "test", source, nil)
	ctx := context.Background()
	must(t, s.Sync(ctx))

	c, err := Dial(ctx, InProcess{Server: s.MCPServer()}, WithCacheTTL(-1))
	must(t, err)
	t.Cleanup(func() { _ = c.Close() })

	listed, err := c.ListTools(ctx)
	must(t, err)
	if len(listed) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(listed))
	}

	schema, err := InputSchema(listed[0])
	must(t, err)
	if !slices.Contains(schema.PropertyNames(), "text") {
		t.Fatalf("properties = %v", schema.PropertyNames())
	}

	calls := []struct {
		name string
		args map[string]any
		want string
	}{
		{"echo", map[string]any{"text": "hello"}, "hello"},
		{"unlock", nil, "unlocked"},
	}
	for _, tc := range calls {
		res, err := c.CallTool(ctx, tc.name, tc.args)
		must(t, err)
		if got := ToolResultText(res); got != tc.want {
			t.Fatalf("%s = %q, want %q", tc.name, got, tc.want)
		}
	}

	listed, err = c.ListTools(ctx)
	must(t, err)
	if len(listed) != 3 {
		t.Fatalf("expected 3 tools after unlock, got %d", len(listed))
	}

	res, err := c.CallTool(ctx, "secret", nil)
	must(t, err)
	if got := ToolResultText(res); got != "Error: not today" {
		t.Fatalf("secret = %q", got)
	}
}

func TestServerServeStdio(t *testing.T) {
	echo := tool.MustFromFunc("echo", "Echo text back", func(_ context.Context, in echoArgs) (string, error) {
		return in.Text, nil
	})
	s := NewServer("adept", "test", toolSourceFunc(func(context.Context) ([]tool.Tool, error) {
		return []tool.Tool{echo}, nil
	}), nil)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.ServeStdio(ctx, inR, outW) }()

	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"t","version":"0"},"capabilities":{}}}`+"\n")
	must(t, err)

	buf := make([]byte, 4096)
	n, err := outR.Read(buf)
	must(t, err)
	if got := string(buf[:n]); !strings.Contains(got, `"serverInfo":{"name":"adept","version":"test"}`) {
		t.Fatalf("unexpected initialize response %s", got)
	}

	cancel()
	_ = inW.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stdio server did not stop")
	}
}
