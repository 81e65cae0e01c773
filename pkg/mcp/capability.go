// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/Finndersen/adept-ai/pkg/capability"
	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
	"github.com/Finndersen/adept-ai/pkg/governance"
	"github.com/Finndersen/adept-ai/pkg/tool"
)

// SessionNotInitialisedMessage is returned when the session is used
// outside the Setup/Teardown lifecycle.
const SessionNotInitialisedMessage = "Must initialise MCP session before retrieving tools or resources. Use the AgentBuilder Setup/Close lifecycle"

// ResourceFilter selects which resources are included as context.
type ResourceFilter func(uri string) bool

// AllResources includes every resource.
func AllResources(string) bool { return true }

// NoResources includes none.
func NoResources(string) bool { return false }

// ResourcePrefixes includes resources whose URI starts with any prefix.
func ResourcePrefixes(prefixes ...string) ResourceFilter {
	return func(uri string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(uri, p) {
				return true
			}
		}
		return false
	}
}

// Capability exposes an MCP server's tools and resources.
type Capability struct {
	capability.Base
	connector    Connector
	toolFilter   *governance.ToolFilter
	resources    ResourceFilter
	instructions []string
	clientOpts   []ClientOption
	logger       *slog.Logger

	mu      sync.Mutex
	active  bool
	session *Client
}

// Option configures a Capability.
type Option func(*Capability)

// WithTools restricts the exposed tools. Nil means all tools and an empty
// list means none. Entries may be glob patterns.
func WithTools(names []string) Option {
	return func(c *Capability) {
		if names == nil {
			c.toolFilter = nil
			return
		}
		c.toolFilter = governance.NewToolFilter(governance.WithAllowlist(names))
	}
}

// WithToolFilter sets the tool filter directly.
func WithToolFilter(f *governance.ToolFilter) Option {
	return func(c *Capability) { c.toolFilter = f }
}

// WithResources selects the resources included as context.
func WithResources(f ResourceFilter) Option {
	return func(c *Capability) {
		if f == nil {
			f = NoResources
		}
		c.resources = f
	}
}

// WithInstructions sets prompt instructions.
func WithInstructions(instructions ...string) Option {
	return func(c *Capability) { c.instructions = append(c.instructions, instructions...) }
}

// WithSamplingHandler lets the server request completions.
func WithSamplingHandler(h client.SamplingHandler) Option {
	return func(c *Capability) { c.clientOpts = append(c.clientOpts, WithSampling(h)) }
}

// WithServerLogHandler receives server log notifications.
func WithServerLogHandler(h LogHandler) Option {
	return func(c *Capability) { c.clientOpts = append(c.clientOpts, WithLogHandler(h)) }
}

// WithEnabled sets the initial state.
func WithEnabled(enabled bool) Option {
	return func(c *Capability) { c.SetEnabled(enabled) }
}

// WithClientOptions passes options through to the session Client.
func WithClientOptions(opts ...ClientOption) Option {
	return func(c *Capability) { c.clientOpts = append(c.clientOpts, opts...) }
}

// WithCapabilityLogger sets the logger.
func WithCapabilityLogger(logger *slog.Logger) Option {
	return func(c *Capability) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a disabled capability for the server reached through conn.
func New(name, description string, conn Connector, opts ...Option) *Capability {
	c := &Capability{
		Base:      capability.NewBase(name, description),
		connector: conn,
		resources: NoResources,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StdioOption configures the subprocess of a stdio capability.
type StdioOption func(*Stdio)

// WithEnv adds environment variables for the server process.
func WithEnv(env map[string]string) StdioOption {
	return func(s *Stdio) {
		if s.Env == nil {
			s.Env = map[string]string{}
		}
		for k, v := range env {
			s.Env[k] = v
		}
	}
}

// WithDir sets the server process working directory.
func WithDir(dir string) StdioOption {
	return func(s *Stdio) { s.Dir = dir }
}

// NewStdioCapability runs command as a stdio MCP server.
func NewStdioCapability(name, description, command string, args []string, stdioOpts []StdioOption, opts ...Option) *Capability {
	conn := Stdio{Command: command, Args: args}
	for _, opt := range stdioOpts {
		opt(&conn)
	}
	return New(name, description, conn, opts...)
}

// NewHTTPCapability connects to a streamable HTTP MCP server.
func NewHTTPCapability(name, description, url string, headers map[string]string, opts ...Option) *Capability {
	return New(name, description, HTTP{URL: url, Headers: headers}, opts...)
}

// NewInProcessCapability serves tools from an in-process server.
func NewInProcessCapability(name, description string, srv *server.MCPServer, opts ...Option) *Capability {
	return New(name, description, InProcess{Server: srv}, opts...)
}

// Setup marks the lifecycle active and connects if enabled.
func (c *Capability) Setup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	if c.Enabled() {
		return c.connectLocked(ctx)
	}
	return nil
}

// Teardown closes the session and ends the lifecycle.
func (c *Capability) Teardown(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	return c.closeLocked()
}

// Enable connects when the lifecycle is active.
func (c *Capability) Enable(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
	}
	c.SetEnabled(true)
	return nil
}

// Disable keeps the session open until Teardown so re-enabling is cheap.
func (c *Capability) Disable(context.Context) error {
	c.SetEnabled(false)
	return nil
}

func (c *Capability) connectLocked(ctx context.Context) error {
	if c.session != nil {
		return nil
	}
	opts := append([]ClientOption{WithServerName(c.Name()), WithLogger(c.logger)}, c.clientOpts...)
	session, err := Dial(ctx, c.connector, opts...)
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "mcp capability connected", "capability", c.Name(), "server", c.connector.String())
	c.session = session
	return nil
}

func (c *Capability) closeLocked() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// Session returns the live session or the SESSION_NOT_INITIALISED error.
func (c *Capability) Session() (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, adepterrors.New(adepterrors.CodeSessionNotInitialised, SessionNotInitialisedMessage, nil).
			WithContext("capability", c.Name())
	}
	return c.session, nil
}

// WithTemporarySession runs fn with a session, opening a short-lived one
// when the capability is not connected.
func (c *Capability) WithTemporarySession(ctx context.Context, fn func(*Client) error) error {
	if session, err := c.Session(); err == nil {
		return fn(session)
	}
	session, err := Dial(ctx, c.connector, append([]ClientOption{WithServerName(c.Name())}, c.clientOpts...)...)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

func (c *Capability) Instructions() []string { return c.instructions }

// Tools lists the allowed server tools.
func (c *Capability) Tools(ctx context.Context) ([]tool.Tool, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	return c.tools(ctx, session)
}

// ListTools lists tools through a temporary session if needed.
func (c *Capability) ListTools(ctx context.Context) ([]tool.Tool, error) {
	var out []tool.Tool
	err := c.WithTemporarySession(ctx, func(s *Client) error {
		var err error
		out, err = c.tools(ctx, s)
		return err
	})
	return out, err
}

func (c *Capability) tools(ctx context.Context, session *Client) ([]tool.Tool, error) {
	listed, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tool.Tool, 0, len(listed))
	for _, t := range listed {
		if c.toolFilter != nil && !c.toolFilter.IsAllowed(t.Name).Allowed {
			continue
		}
		adapted, err := NewTool(t, c)
		if err != nil {
			return nil, err
		}
		out = append(out, adapted)
	}
	return out, nil
}

// CallTool runs a tool on the current session.
func (c *Capability) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	return session.CallTool(ctx, name, args)
}

// ListAllResources lists every resource on the server, ignoring the filter.
func (c *Capability) ListAllResources(ctx context.Context) ([]mcp.Resource, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	return session.ListResources(ctx)
}

// ReadResource reads a resource on the current session.
func (c *Capability) ReadResource(ctx context.Context, uri string) ([]string, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	return session.ReadResource(ctx, uri)
}

// ContextData renders the selected resources.
func (c *Capability) ContextData(ctx context.Context) (string, error) {
	session, err := c.Session()
	if err != nil {
		return "", err
	}
	all, err := session.ListResources(ctx)
	if err != nil {
		return "", err
	}
	var selected []mcp.Resource
	for _, r := range all {
		if c.resources(r.URI) {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return "", nil
	}

	entries := make([]string, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range selected {
		g.Go(func() error {
			contents, err := session.ReadResource(gctx, r.URI)
			if err != nil {
				return fmt.Errorf("read resource %s: %w", r.URI, err)
			}
			entries[i] = fmt.Sprintf("URI: %s\nName: %sContent: %s\n", r.URI, r.Name, strings.Join(contents, "\n"))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return "Resources:\n" + strings.Join(entries, "---\n") + "\n\n", nil
}

// IsSessionNotInitialised reports whether err came from using a capability
// outside its lifecycle.
func IsSessionNotInitialised(err error) bool {
	var ae *adepterrors.AdeptError
	return errors.As(err, &ae) && ae.Code == adepterrors.CodeSessionNotInitialised
}

var _ capability.Capability = (*Capability)(nil)
