package capability

import (
	"context"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

// Static is a capability whose tools and prompt content are provided up front.
type Static struct {
	Base
	tools        []tool.Tool
	instructions []string
	examples     []string
	contextFunc  func(ctx context.Context) (string, error)
}

// Option configures a Static capability.
type Option func(*Static)

// WithTools sets the tools offered while enabled.
func WithTools(tools ...tool.Tool) Option {
	return func(s *Static) { s.tools = append(s.tools, tools...) }
}

// WithInstructions sets the prompt instructions.
func WithInstructions(instructions ...string) Option {
	return func(s *Static) { s.instructions = append(s.instructions, instructions...) }
}

// WithUsageExamples sets the prompt usage examples.
func WithUsageExamples(examples ...string) Option {
	return func(s *Static) { s.examples = append(s.examples, examples...) }
}

// WithContextData sets fixed context data.
func WithContextData(data string) Option {
	return func(s *Static) {
		s.contextFunc = func(context.Context) (string, error) { return data, nil }
	}
}

// WithContextFunc sets a function producing context data at render time.
func WithContextFunc(fn func(ctx context.Context) (string, error)) Option {
	return func(s *Static) { s.contextFunc = fn }
}

// WithEnabled sets the initial state.
func WithEnabled(enabled bool) Option {
	return func(s *Static) { s.SetEnabled(enabled) }
}

// New builds a Static capability. It starts disabled unless WithEnabled(true) is given.
func New(name, description string, opts ...Option) *Static {
	s := &Static{Base: NewBase(name, description)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Static) Tools(context.Context) ([]tool.Tool, error) {
	out := make([]tool.Tool, len(s.tools))
	copy(out, s.tools)
	return out, nil
}

func (s *Static) Instructions() []string  { return s.instructions }
func (s *Static) UsageExamples() []string { return s.examples }

func (s *Static) ContextData(ctx context.Context) (string, error) {
	if s.contextFunc == nil {
		return "", nil
	}
	return s.contextFunc(ctx)
}

var _ Capability = (*Static)(nil)
