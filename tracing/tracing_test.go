package tracing

import (
	"context"
	"testing"
)

func TestInitTracerRequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	tp, err := InitTracer(context.Background(), "productmeta-test", "")
	if err == nil {
		t.Fatal("Expected error when no endpoint is configured")
	}
	if tp != nil {
		t.Error("Expected nil provider on error")
	}
}

func TestInitTracerWithEndpoint(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed here
	tp, err := InitTracer(context.Background(), "productmeta-test", "http://localhost:4317")
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Logf("shutdown reported: %v", err)
	}
}
