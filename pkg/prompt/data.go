package prompt

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Finndersen/adept-ai/pkg/capability"
	"github.com/Finndersen/adept-ai/pkg/telemetry"
)

// Data is what a template is rendered with.
type Data struct {
	Role                 string
	EnabledCapabilities  []CapabilityView
	DisabledCapabilities []CapabilityView
}

// CapabilityView is a capability as seen by a template. Disabled
// capabilities carry only Name and Description.
type CapabilityView struct {
	Name          string
	Description   string
	Instructions  []string
	UsageExamples []string
	ContextData   string
}

// Build collects template data for caps. Context data of enabled
// capabilities is resolved concurrently; order follows caps.
func Build(ctx context.Context, role string, caps []capability.Capability) (Data, error) {
	enabled := capability.Enabled(caps)
	disabled := capability.Disabled(caps)

	ctx, span := telemetry.Tracer("prompt").Start(ctx, "prompt.build",
		trace.WithAttributes(telemetry.CapabilitySetAttributes(len(caps), len(enabled))...))
	defer span.End()

	data := Data{
		Role:                 role,
		EnabledCapabilities:  make([]CapabilityView, len(enabled)),
		DisabledCapabilities: make([]CapabilityView, len(disabled)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range enabled {
		g.Go(func() error {
			contextData, err := c.ContextData(gctx)
			if err != nil {
				return fmt.Errorf("context data for capability %s: %w", c.Name(), err)
			}
			data.EnabledCapabilities[i] = CapabilityView{
				Name:          c.Name(),
				Description:   c.Description(),
				Instructions:  c.Instructions(),
				UsageExamples: c.UsageExamples(),
				ContextData:   contextData,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Data{}, err
	}

	for i, c := range disabled {
		data.DisabledCapabilities[i] = CapabilityView{Name: c.Name(), Description: c.Description()}
	}
	return data, nil
}

// Render builds data for caps and renders t with it.
func Render(ctx context.Context, t *Template, role string, caps []capability.Capability) (string, error) {
	data, err := Build(ctx, role, caps)
	if err != nil {
		return "", err
	}
	return t.RenderString(data)
}
