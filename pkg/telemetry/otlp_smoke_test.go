package telemetry

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

// TestOTLPSmoke exports one run span, one tool span and the tool metrics to
// a live collector.
func TestOTLPSmoke(t *testing.T) {
	if os.Getenv("ADEPT_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set ADEPT_OTLP_SMOKE_TEST=1 to run")
	}
	endpoint := os.Getenv("ADEPT_TELEMETRY_OTLP_ENDPOINT")
	if endpoint == "" {
		t.Skip("set ADEPT_TELEMETRY_OTLP_ENDPOINT for OTLP smoke test")
	}

	cfg := Config{
		Exporter:     "otlp",
		OTLPEndpoint: endpoint,
		OTLPInsecure: os.Getenv("ADEPT_TELEMETRY_OTLP_INSECURE") == "true",
	}
	if n, err := strconv.Atoi(os.Getenv("ADEPT_TELEMETRY_OTLP_TIMEOUT_SECONDS")); err == nil && n > 0 {
		cfg.OTLPTimeoutSeconds = n
	}

	shutdown, err := InitWithConfig("adept-smoke", "v0.0.0", cfg)
	if err != nil {
		t.Fatalf("failed to init telemetry: %v", err)
	}

	ctx, run := Tracer("agent").Start(context.Background(), "agent.run")
	run.SetAttributes(RunAttributes("smoke-run", "mock", "smoke-session", 1, 10)...)

	_, call := Tracer("tool").Start(ctx, "tool.call")
	call.SetAttributes(ToolCallAttributes("read_file", "call-1", 1.5, true)...)
	call.End()
	run.End()

	metrics, err := NewToolMetrics()
	if err != nil {
		t.Fatalf("NewToolMetrics failed: %v", err)
	}
	metrics.RecordCall(ctx, "read_file", 1.5, nil)
	metrics.RecordEnable(ctx, "file_system")

	time.Sleep(2 * time.Second)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(flushCtx); err != nil {
		t.Fatalf("telemetry shutdown failed: %v", err)
	}
}
