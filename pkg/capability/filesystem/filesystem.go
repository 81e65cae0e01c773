// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package filesystem provides a capability for viewing a directory tree and
// reading and creating files beneath it.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Finndersen/adept-ai/pkg/capability"
	"github.com/Finndersen/adept-ai/pkg/tool"
)

const (
	Name        = "file_system"
	Description = "View the directory structure and read & write content of files from the file system. Does not support editing existing files."

	DefaultDepth = 3
)

// Capability exposes a directory to the model.
type Capability struct {
	capability.Base
	root   string
	tree   *DirectoryTree
	tools  []tool.Tool
	logger *slog.Logger
}

type options struct {
	root      string
	depth     int
	gitignore bool
	enabled   bool
	logger    *slog.Logger
}

// Option configures the Capability.
type Option func(*options)

// WithRoot sets the root directory. It defaults to the working directory.
func WithRoot(dir string) Option {
	return func(o *options) { o.root = dir }
}

// WithDepth sets how many directory levels are expanded initially.
func WithDepth(depth int) Option {
	return func(o *options) { o.depth = depth }
}

// WithGitignore controls whether gitignored entries are hidden.
func WithGitignore(respect bool) Option {
	return func(o *options) { o.gitignore = respect }
}

// WithEnabled sets the initial state.
func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

// WithLogger sets the logger used for file operations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds the capability and scans the directory tree.
func New(ctx context.Context, opts ...Option) (*Capability, error) {
	o := options{depth: DefaultDepth, gitignore: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		o.root = wd
	}

	tree, err := NewDirectoryTree(ctx, o.root, o.depth, o.gitignore)
	if err != nil {
		return nil, fmt.Errorf("file system capability: %w", err)
	}

	c := &Capability{
		Base:   capability.NewBase(Name, Description),
		root:   tree.Root(),
		tree:   tree,
		logger: o.logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.SetEnabled(o.enabled)
	c.tools = []tool.Tool{
		tool.MustFromFunc("create_file",
			"Create a file at the given path with the given content. DO NOT use to overwrite or edit existing files.",
			c.createFile),
		tool.MustFromFunc("read_file",
			"Read the content of the file at the given path.",
			c.readFile),
		tool.MustFromFunc("expand_directory",
			"Expand the directory tree to show the requested path.",
			c.expandDirectory),
	}
	return c, nil
}

// Root returns the resolved root directory.
func (c *Capability) Root() string { return c.root }

// Tree returns the directory tree shown in the prompt.
func (c *Capability) Tree() *DirectoryTree { return c.tree }

func (c *Capability) Tools(context.Context) ([]tool.Tool, error) {
	return c.tools, nil
}

func (c *Capability) ContextData(context.Context) (string, error) {
	return fmt.Sprintf("Current working directory: %s\nDirectory structure:\n%s", c.root, c.tree.FormatPaths()), nil
}

type createFileArgs struct {
	Path    string `json:"path" jsonschema:"description=The path to create the file at (relative to the working directory)"`
	Content string `json:"content" jsonschema:"description=The content to write to the file"`
}

func (c *Capability) createFile(ctx context.Context, in createFileArgs) (string, error) {
	abs, err := c.absPath(in.Path)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(abs); err == nil {
		return "", tool.Errorf("File already exists at %s", in.Path)
	}

	c.logger.InfoContext(ctx, "creating file", "path", abs)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", tool.Errorf("Error creating file: %v", err)
	}
	// O_EXCL guards against a file appearing since the check above.
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", tool.Errorf("File already exists at %s", in.Path)
		}
		return "", tool.Errorf("Error creating file: %v", err)
	}
	_, werr := f.WriteString(in.Content)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", tool.Errorf("Error creating file: %v", werr)
	}
	return fmt.Sprintf("File created at %s", in.Path), nil
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"description=The path to read the file from (relative to the working directory)"`
}

func (c *Capability) readFile(ctx context.Context, in readFileArgs) (string, error) {
	abs, err := c.absPath(in.Path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return "", tool.Errorf("Error reading file: %v", err)
	}
	c.logger.DebugContext(ctx, "read file", "path", abs, "bytes", len(content))
	return string(content), nil
}

type expandDirectoryArgs struct {
	Path string `json:"path" jsonschema:"description=The directory path to expand (relative to the working directory)"`
}

func (c *Capability) expandDirectory(ctx context.Context, in expandDirectoryArgs) (string, error) {
	abs, err := c.absPath(in.Path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", tool.Errorf("Directory does not exist: %s", in.Path)
	}
	if !info.IsDir() {
		return "", tool.Errorf("Path is not a directory: %s", in.Path)
	}

	c.logger.InfoContext(ctx, "expanding directory", "path", abs)
	if c.tree.Expand(ctx, abs) {
		return fmt.Sprintf("Expanded directory: %s", in.Path), nil
	}
	return fmt.Sprintf("Directory not found or could not be expanded: %s", in.Path), nil
}

// absPath resolves a model-supplied relative path against the root.
func (c *Capability) absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", tool.Errorf("Path must be relative, not absolute: %s", path)
	}
	abs := filepath.Join(c.root, path)
	if !isWithin(c.root, abs) {
		return "", tool.Errorf("Path must be inside the working directory: %s", path)
	}
	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", tool.Errorf("Error resolving path: %v", err)
	}
	if !isWithin(c.root, resolved) {
		return "", tool.Errorf("Path must be inside the working directory: %s", path)
	}
	return resolved, nil
}

// resolveExisting evaluates symlinks in the longest existing prefix of path
// and appends the part that does not exist yet.
func resolveExisting(path string) (string, error) {
	dir, rest := path, ""
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

var _ capability.Capability = (*Capability)(nil)
