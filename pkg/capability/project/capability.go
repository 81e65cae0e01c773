package project

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/Finndersen/adept-ai/pkg/capability"
)

const (
	DefaultName        = "project_instructions"
	DefaultDescription = "Project-specific conventions and instructions from the repository's AGENTS.md file."
)

// Capability serves the contents of an AGENTS.md file as prompt context.
// The file is re-read on every render so edits show up without a restart.
type Capability struct {
	capability.Base
	path   string
	logger *slog.Logger
}

// Option configures the Capability.
type Option func(*options)

type options struct {
	name        string
	description string
	enabled     bool
	logger      *slog.Logger
}

// WithName overrides the capability name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDescription overrides the capability description.
func WithDescription(description string) Option {
	return func(o *options) { o.description = description }
}

// WithEnabled sets the initial state. Project instructions start enabled.
func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

// WithLogger sets the logger used for read failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New returns a capability for the AGENTS.md nearest to startDir.
// It returns nil with no error when no AGENTS.md exists.
func New(startDir string, opts ...Option) (*Capability, error) {
	path, err := FindAGENTS(startDir)
	if err != nil || path == "" {
		return nil, err
	}
	return NewFromFile(path, opts...), nil
}

// NewFromFile returns a capability for a specific instruction file.
func NewFromFile(path string, opts ...Option) *Capability {
	o := options{
		name:        DefaultName,
		description: DefaultDescription,
		enabled:     true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Capability{
		Base:   capability.NewBase(o.name, o.description),
		path:   path,
		logger: o.logger,
	}
	c.SetEnabled(o.enabled)
	return c
}

// Path returns the instruction file location.
func (c *Capability) Path() string { return c.path }

// ContextData returns the file's current contents. A file deleted since
// construction yields no context rather than an error.
func (c *Capability) ContextData(context.Context) (string, error) {
	doc, err := readInstructions(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.log().Warn("project instructions file disappeared", "path", c.path)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return doc.Raw, nil
}

func (c *Capability) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

var _ capability.Capability = (*Capability)(nil)
