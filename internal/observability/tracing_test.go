package observability

import (
	"context"
	"errors"
	"testing"
)

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracing(context.Background(), &TracingConfig{ServiceName: "quilt-test"})
	if err != nil {
		t.Fatal(err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected a usable no-op tracer")
	}
	// Shutdown of the no-op provider must be safe.
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestInitTracingNilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected a tracer")
	}
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	if cfg.ServiceName != "quilt" {
		t.Errorf("service name = %q", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("sample rate = %v", cfg.SampleRate)
	}
	if cfg.OTLPEndpoint != "" {
		t.Errorf("endpoint should default to disabled, got %q", cfg.OTLPEndpoint)
	}
}

func TestSpansAreUsableWithoutProvider(t *testing.T) {
	ctx, span := StartIngestSpan(context.Background(), "entry-1", "docs")
	if ctx == nil {
		t.Fatal("expected a context")
	}
	RecordIngestMetrics(span, 5, 1000)
	RecordError(span, errors.New("boom"))
	span.End()

	_, search := StartSearchSpan(context.Background(), "docs", true)
	search.End()
}
