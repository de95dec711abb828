package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestInitTracingDisabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("cultbot", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should be disabled without endpoint")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "op", CommunityAttr("c"), UserAttr("u"), PlatformAttr("YouTube"))
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	SetSpanHTTPStatus(span, 503)
	SetSpanSuccess(span)
	span.End()
}
