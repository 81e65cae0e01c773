package mcp

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
)

// ClientName is reported to servers during initialisation.
const ClientName = "adept"

// ClientVersion is reported to servers during initialisation.
var ClientVersion = "0.1.0"

// Connector starts a transport and returns a started, uninitialised client.
type Connector interface {
	Connect(ctx context.Context, sampling client.SamplingHandler) (*client.Client, error)
	String() string
}

// Stdio launches a server as a subprocess.
type Stdio struct {
	Command string
	Args    []string
	// Env is added to the current process environment.
	Env map[string]string
	// Dir is the working directory. It defaults to the current one.
	Dir string
}

func (s Stdio) String() string { return "stdio:" + s.Command }

func (s Stdio) Connect(ctx context.Context, sampling client.SamplingHandler) (*client.Client, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	env := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	t := transport.NewStdioWithOptions(s.Command, env, s.Args,
		transport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			cmd := exec.CommandContext(ctx, command, args...)
			cmd.Env = append(os.Environ(), env...)
			cmd.Dir = dir
			return cmd, nil
		}))

	c := client.NewClient(t, clientOptions(sampling)...)
	// The subprocess lives as long as the session, not the connecting call.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("start %s: %w", s, err)
	}
	go drainStderr(s.Command, t)
	return c, nil
}

func drainStderr(command string, t *transport.Stdio) {
	stderr := t.Stderr()
	if stderr == nil {
		return
	}
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		slog.Debug("mcp server stderr", "command", command, "line", scanner.Text())
	}
}

// HTTP connects to a streamable HTTP server and keeps a listening stream
// open so server notifications arrive.
type HTTP struct {
	URL     string
	Headers map[string]string
}

func (h HTTP) String() string { return "http:" + h.URL }

func (h HTTP) Connect(ctx context.Context, sampling client.SamplingHandler) (*client.Client, error) {
	opts := []transport.StreamableHTTPCOption{transport.WithContinuousListening()}
	if len(h.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(h.Headers))
	}
	t, err := transport.NewStreamableHTTP(h.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", h, err)
	}
	c := client.NewClient(t, clientOptions(sampling)...)
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("start %s: %w", h, err)
	}
	return c, nil
}

// InProcess talks to a server in the same process.
type InProcess struct {
	Server *server.MCPServer
}

func (InProcess) String() string { return "inprocess" }

func (p InProcess) Connect(ctx context.Context, sampling client.SamplingHandler) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	if sampling != nil {
		c, err = client.NewInProcessClientWithSamplingHandler(p.Server, sampling)
	} else {
		c, err = client.NewInProcessClient(p.Server)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	return c, nil
}

func clientOptions(sampling client.SamplingHandler) []client.ClientOption {
	if sampling == nil {
		return nil
	}
	return []client.ClientOption{client.WithSamplingHandler(sampling)}
}

// Dial connects through conn and initialises the session.
func Dial(ctx context.Context, conn Connector, opts ...ClientOption) (*Client, error) {
	c := newClient(opts...)
	if c.name == "" {
		c.name = conn.String()
	}

	mc, err := conn.Connect(ctx, c.sampling)
	if err != nil {
		return nil, adepterrors.New(adepterrors.CodeMCP, "connect to mcp server", err).WithContext("server", c.name)
	}
	c.attach(mc)

	initCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	res, err := mc.Initialize(initCtx, req)
	if err != nil {
		_ = mc.Close()
		return nil, adepterrors.New(adepterrors.CodeMCP, "initialise mcp session", err).WithContext("server", c.name)
	}
	c.logger.DebugContext(ctx, "mcp session initialised",
		"server", c.name, "server_name", res.ServerInfo.Name, "protocol", res.ProtocolVersion)
	return c, nil
}
