// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Finndersen/adept-ai/pkg/agent"
	"github.com/Finndersen/adept-ai/pkg/builder"
	"github.com/Finndersen/adept-ai/pkg/capability"
	"github.com/Finndersen/adept-ai/pkg/capability/filesystem"
	"github.com/Finndersen/adept-ai/pkg/capability/project"
	"github.com/Finndersen/adept-ai/pkg/config"
	"github.com/Finndersen/adept-ai/pkg/governance"
	"github.com/Finndersen/adept-ai/pkg/llm"
	"github.com/Finndersen/adept-ai/pkg/llm/anthropic"
	"github.com/Finndersen/adept-ai/pkg/llm/openai"
	"github.com/Finndersen/adept-ai/pkg/mcp"
	"github.com/Finndersen/adept-ai/pkg/prompt"
	"github.com/Finndersen/adept-ai/pkg/session"
	"github.com/Finndersen/adept-ai/pkg/skills"
	"github.com/Finndersen/adept-ai/pkg/telemetry"
)

// app is the set of components built from a Config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider llm.Provider
	store    session.Store
	builder  *builder.Builder
	agent    *agent.Agent
	shutdown telemetry.ShutdownFunc
}

// newApp wires every component described by cfg. The builder is not set
// up; callers decide whether capabilities need to connect.
func newApp(cfg *config.Config, sessionID string, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: telemetry.LoggerOr(logger)}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.shutdown, err = telemetry.InitWithConfig("adept", version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}

	if a.provider, err = newProvider(cfg.LLM); err != nil {
		return nil, err
	}
	if cfg.LLM.MaxRetries > 0 {
		a.provider = llm.WithRetry(a.provider, llm.DefaultRetryConfig().WithMaxAttempts(cfg.LLM.MaxRetries+1))
	}
	if a.store, err = newStore(cfg.Session); err != nil {
		return nil, err
	}

	caps, err := a.capabilities()
	if err != nil {
		return nil, err
	}

	opts := []builder.Option{builder.WithLogger(a.logger)}
	if len(cfg.Tools.Allow) > 0 || len(cfg.Tools.Deny) > 0 {
		opts = append(opts, builder.WithToolFilter(governance.NewToolFilter(
			governance.WithAllowlist(cfg.Tools.Allow),
			governance.WithDenylist(cfg.Tools.Deny),
		)))
	}
	if a.store != nil {
		opts = append(opts, builder.WithSessionStore(a.store, sessionID))
	}
	if metrics, err := telemetry.NewToolMetrics(); err == nil {
		opts = append(opts, builder.WithMetrics(metrics))
	} else {
		a.logger.Warn("tool metrics disabled", "error", err)
	}
	if cfg.Agent.Template != "" {
		if cfg.Agent.WatchTemplate {
			w, err := prompt.NewWatcher(cfg.Agent.Template, prompt.WithWatchLogger(a.logger))
			if err != nil {
				return nil, err
			}
			opts = append(opts, builder.WithTemplateWatcher(w))
		} else {
			t, err := prompt.Load(cfg.Agent.Template)
			if err != nil {
				return nil, err
			}
			opts = append(opts, builder.WithTemplate(t))
		}
	}

	if a.builder, err = builder.New(cfg.Agent.Role, caps, opts...); err != nil {
		return nil, err
	}

	agentOpts := []agent.Option{
		agent.WithModel(cfg.LLM.Model),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithLogger(a.logger),
	}
	if a.store != nil {
		agentOpts = append(agentOpts, agent.WithSession(a.store, a.builder.SessionID()))
	}
	switch {
	case cfg.Session.MaxTokens > 0:
		agentOpts = append(agentOpts, agent.WithTruncation(session.TokenBudget(cfg.Session.MaxTokens)))
	case cfg.Session.MaxMessages > 0:
		agentOpts = append(agentOpts, agent.WithTruncation(session.Window(cfg.Session.MaxMessages)))
	}
	if a.agent, err = agent.New(a.builder, a.provider, agentOpts...); err != nil {
		return nil, err
	}
	return a, nil
}

// capabilities builds the configured capabilities in prompt order: file
// system, project instructions, skills, then MCP servers.
func (a *app) capabilities() ([]capability.Capability, error) {
	cfg := a.cfg
	var caps []capability.Capability

	if cfg.Filesystem.Enabled {
		fs, err := filesystem.New(context.Background(),
			filesystem.WithRoot(cfg.Filesystem.Root),
			filesystem.WithDepth(cfg.Filesystem.Depth),
			filesystem.WithGitignore(cfg.Filesystem.Gitignore),
			filesystem.WithLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		caps = append(caps, fs)
	}

	if cfg.Project.Enabled {
		root := cfg.Filesystem.Root
		if root == "" {
			root = "."
		}
		p, err := project.New(root, project.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		if p != nil {
			caps = append(caps, p)
		}
	}

	if cfg.Skills.Dir != "" {
		loaded, err := skills.LoadDir(cfg.Skills.Dir)
		if err != nil {
			return nil, err
		}
		for _, s := range loaded {
			caps = append(caps, skills.NewCapability(s))
		}
	}

	sampler := &mcp.ProviderSampler{Provider: a.provider, Model: cfg.LLM.Model}
	for _, s := range cfg.MCPServers {
		caps = append(caps, newMCPCapability(s, sampler, a.logger))
	}
	return caps, nil
}

func newMCPCapability(s config.MCPServerConfig, sampler *mcp.ProviderSampler, logger *slog.Logger) *mcp.Capability {
	description := s.Description
	if description == "" {
		description = "Tools from the " + s.Name + " MCP server"
	}
	opts := []mcp.Option{
		mcp.WithEnabled(s.Enabled),
		mcp.WithSamplingHandler(sampler),
		mcp.WithCapabilityLogger(logger),
		mcp.WithClientOptions(mcp.WithTimeout(30*time.Second), mcp.WithRetry(2, 500*time.Millisecond)),
	}
	if s.Tools != nil {
		opts = append(opts, mcp.WithTools(s.Tools))
	}
	switch {
	case len(s.ResourcePrefixes) > 0:
		opts = append(opts, mcp.WithResources(mcp.ResourcePrefixes(s.ResourcePrefixes...)))
	case s.Resources:
		opts = append(opts, mcp.WithResources(mcp.AllResources))
	}
	if len(s.Instructions) > 0 {
		opts = append(opts, mcp.WithInstructions(s.Instructions...))
	}

	if s.Transport == "http" {
		return mcp.NewHTTPCapability(s.Name, description, s.URL, s.Headers, opts...)
	}
	var stdioOpts []mcp.StdioOption
	if len(s.Env) > 0 {
		stdioOpts = append(stdioOpts, mcp.WithEnv(s.Env))
	}
	if s.Cwd != "" {
		stdioOpts = append(stdioOpts, mcp.WithDir(s.Cwd))
	}
	return mcp.NewStdioCapability(s.Name, description, s.Command, s.Args, stdioOpts, opts...)
}

func newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...), nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...), nil
	case "mock":
		return &llm.MockProvider{Response: "This is a mock response."}, nil
	default:
		return nil, NewProviderError(cfg.Provider)
	}
}

func newStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return session.NewMemoryStore(), nil
	case "sqlite":
		s, err := session.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := session.DialRedis(context.Background(), cfg.RedisAddr, session.DefaultRedisPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// Close releases the builder, the store and telemetry, in that order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.builder != nil {
		errs = append(errs, a.builder.Close(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	return stderrors.Join(errs...)
}

// loggerFor configures the process logger. Log output goes to stderr so
// the serve command keeps stdout for the protocol.
func loggerFor(cfg *config.Config, level string) *slog.Logger {
	if level == "" {
		level = cfg.Log.Level
	}
	return telemetry.ConfigureSlog(os.Stderr, level, cfg.Log.Format)
}
