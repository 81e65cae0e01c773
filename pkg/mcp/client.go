// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp connects to Model Context Protocol servers and exposes them
// as capabilities.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
	"github.com/Finndersen/adept-ai/pkg/telemetry"
)

const (
	defaultTimeout           = 10 * time.Second
	defaultRetries           = 2
	defaultBackoff           = 200 * time.Millisecond
	defaultResourceCacheSize = 128
)

// LogHandler receives notifications/message log records from a server.
type LogHandler func(ctx context.Context, level mcp.LoggingLevel, logger string, data any)

// ClientOption customizes the Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and base backoff. Backoff doubles per attempt.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithCacheTTL sets how long tool and resource listings are cached. Zero
// keeps them until the server reports a change; negative disables caching.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.cacheTTL = ttl }
}

// WithResourceCacheSize bounds the cache of read resource contents.
// Zero or less disables it.
func WithResourceCacheSize(size int) ClientOption {
	return func(c *Client) { c.resourceCacheSize = size }
}

// WithLogHandler receives server log notifications instead of slog.
func WithLogHandler(h LogHandler) ClientOption {
	return func(c *Client) { c.logHandler = h }
}

// WithSampling answers sampling/createMessage requests from the server.
// It only takes effect through Dial.
func WithSampling(h client.SamplingHandler) ClientOption {
	return func(c *Client) { c.sampling = h }
}

// WithServerName labels logs and spans with the server name.
func WithServerName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps an mcp-go client with timeouts, retries and caching.
type Client struct {
	mcpClient         client.MCPClient
	name              string
	timeout           time.Duration
	maxRetries        int
	backoff           time.Duration
	cacheTTL          time.Duration
	resourceCacheSize int
	logHandler        LogHandler
	sampling          client.SamplingHandler
	logger            *slog.Logger

	mu              sync.Mutex
	tools           []mcp.Tool
	toolsExpiry     time.Time
	toolsCached     bool
	resources       []mcp.Resource
	resourcesExpiry time.Time
	resourcesCached bool
	contents        *lru.Cache[string, []string]
}

func newClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:           defaultTimeout,
		maxRetries:        defaultRetries,
		backoff:           defaultBackoff,
		resourceCacheSize: defaultResourceCacheSize,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resourceCacheSize > 0 {
		c.contents, _ = lru.New[string, []string](c.resourceCacheSize)
	}
	return c
}

// NewClient wraps an already started and initialised MCP client.
func NewClient(mc client.MCPClient, opts ...ClientOption) *Client {
	c := newClient(opts...)
	c.attach(mc)
	return c
}

func (c *Client) attach(mc client.MCPClient) {
	c.mcpClient = mc
	mc.OnNotification(func(n mcp.JSONRPCNotification) {
		c.HandleNotification(context.Background(), n)
	})
}

// Name returns the server name the client was labelled with.
func (c *Client) Name() string { return c.name }

// HandleNotification applies a server notification to the caches or
// forwards it to the log handler.
func (c *Client) HandleNotification(ctx context.Context, n mcp.JSONRPCNotification) {
	switch n.Method {
	case mcp.MethodNotificationToolsListChanged:
		c.logger.DebugContext(ctx, "mcp tool list changed", "server", c.name)
		c.InvalidateTools()
	case mcp.MethodNotificationResourcesListChanged:
		c.logger.DebugContext(ctx, "mcp resource list changed", "server", c.name)
		c.InvalidateResources()
	case mcp.MethodNotificationResourceUpdated:
		uri, _ := n.Params.AdditionalFields["uri"].(string)
		c.logger.DebugContext(ctx, "mcp resource updated", "server", c.name, "uri", uri)
		if uri != "" && c.contents != nil {
			c.contents.Remove(uri)
		}
	case "notifications/message":
		fields := n.Params.AdditionalFields
		level, _ := fields["level"].(string)
		logger, _ := fields["logger"].(string)
		if c.logHandler != nil {
			c.logHandler(ctx, mcp.LoggingLevel(level), logger, fields["data"])
			return
		}
		c.logger.Log(ctx, slogLevel(mcp.LoggingLevel(level)), "mcp server log",
			"server", c.name, "logger", logger, "data", fields["data"])
	}
}

func slogLevel(level mcp.LoggingLevel) slog.Level {
	switch level {
	case mcp.LoggingLevelDebug:
		return slog.LevelDebug
	case mcp.LoggingLevelInfo, mcp.LoggingLevelNotice:
		return slog.LevelInfo
	case mcp.LoggingLevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// InvalidateTools drops the cached tool list.
func (c *Client) InvalidateTools() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools, c.toolsCached = nil, false
}

// InvalidateResources drops the cached resource list and contents.
func (c *Client) InvalidateResources() {
	c.mu.Lock()
	c.resources, c.resourcesCached = nil, false
	c.mu.Unlock()
	if c.contents != nil {
		c.contents.Purge()
	}
}

// ListTools returns every tool on the server, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if tools, ok := c.cachedTools(); ok {
		return tools, nil
	}
	res, err := withRetry(ctx, c, "tools/list", "", func(ctx context.Context) (*mcp.ListToolsResult, error) {
		return c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(res.Tools)
	return res.Tools, nil
}

// ListResources returns every resource on the server, following pagination.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	if resources, ok := c.cachedResources(); ok {
		return resources, nil
	}
	res, err := withRetry(ctx, c, "resources/list", "", func(ctx context.Context) (*mcp.ListResourcesResult, error) {
		return c.mcpClient.ListResources(ctx, mcp.ListResourcesRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.storeResources(res.Resources)
	return res.Resources, nil
}

// ReadResource returns the contents of a resource. Text stays text and
// binary contents are returned as their base64 encoding.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]string, error) {
	if c.contents != nil {
		if cached, ok := c.contents.Get(uri); ok {
			return cached, nil
		}
	}
	res, err := withRetry(ctx, c, "resources/read", uri, func(ctx context.Context) (*mcp.ReadResourceResult, error) {
		req := mcp.ReadResourceRequest{}
		req.Params.URI = uri
		return c.mcpClient.ReadResource(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	out := resourceText(res.Contents)
	if c.contents != nil {
		c.contents.Add(uri, out)
	}
	return out, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return withRetry(ctx, c, "tools/call", "", func(ctx context.Context) (*mcp.CallToolResult, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		return c.mcpClient.CallTool(ctx, req)
	})
}

// Close closes the session and its transport.
func (c *Client) Close() error {
	if c.mcpClient == nil {
		return nil
	}
	return c.mcpClient.Close()
}

func (c *Client) cachedTools() ([]mcp.Tool, bool) {
	if c.cacheTTL < 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.toolsCached || c.expired(c.toolsExpiry) {
		return nil, false
	}
	return append([]mcp.Tool(nil), c.tools...), true
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append([]mcp.Tool(nil), tools...)
	c.toolsCached = true
	c.toolsExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) cachedResources() ([]mcp.Resource, bool) {
	if c.cacheTTL < 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resourcesCached || c.expired(c.resourcesExpiry) {
		return nil, false
	}
	return append([]mcp.Resource(nil), c.resources...), true
}

func (c *Client) storeResources(resources []mcp.Resource) {
	if c.cacheTTL < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = append([]mcp.Resource(nil), resources...)
	c.resourcesCached = true
	c.resourcesExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) expired(expiry time.Time) bool {
	return c.cacheTTL > 0 && time.Now().After(expiry)
}

// withRetry runs fn with the per-request timeout, retrying failures other
// than context cancellation with exponential backoff.
func withRetry[T any](ctx context.Context, c *Client, method, uri string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.mcpClient == nil {
		return zero, adepterrors.New(adepterrors.CodeSessionNotInitialised, "mcp client is not connected", nil)
	}

	ctx, span := telemetry.Tracer("mcp").Start(ctx, "mcp."+method,
		trace.WithAttributes(telemetry.MCPAttributes(c.name, method, uri)...))
	defer span.End()

	var lastErr error
	attempts := c.maxRetries + 1
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := c.withTimeout(ctx)
		res, err := fn(reqCtx)
		cancel()
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lastErr = err
			break
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		c.logger.DebugContext(ctx, "retrying mcp request", "server", c.name, "method", method, "attempt", i+1, "error", err)
		if err := c.sleepBackoff(ctx, i); err != nil {
			lastErr = err
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	code := adepterrors.CodeMCP
	if errors.Is(lastErr, context.DeadlineExceeded) {
		code = adepterrors.CodeTimeout
	}
	return zero, adepterrors.New(code, method+" failed", lastErr).
		WithContext("server", c.name).
		WithRecoverable(code == adepterrors.CodeTimeout)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	wait := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
