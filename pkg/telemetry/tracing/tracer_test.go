package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/sluice/pkg/config"
	"mercator-hq/sluice/pkg/control"
	"mercator-hq/sluice/pkg/transaction"
)

func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return NewWithProvider(tp), sr
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestTracer_SpanPerPolicyApplication(t *testing.T) {
	tracer, sr := newRecordingTracer()
	env := &control.Env{Observer: tracer}

	root := control.NewSerial("root",
		control.NewRemapModel(map[string]string{"a": "b"}),
		control.NewReject("closed"),
	)
	tx := transaction.New(&transaction.Request{Payload: map[string]any{"model": "a"}})
	if _, err := control.Apply(context.Background(), root, tx, env); err == nil {
		t.Fatal("expected Reject to fail the pipeline")
	}

	spans := sr.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(spans))
	}
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}

	rootSpan, ok := byName["policy root"]
	if !ok {
		t.Fatalf("no root span among %v", byName)
	}
	for _, child := range []string{"policy RemapModel", "policy Reject"} {
		s, ok := byName[child]
		if !ok {
			t.Fatalf("missing span %q", child)
		}
		if s.Parent().SpanID() != rootSpan.SpanContext().SpanID() {
			t.Errorf("%s is not a child of the root span", child)
		}
		if id, _ := attrValue(s, AttrTransactionID); id != tx.ID {
			t.Errorf("%s transaction id = %q", child, id)
		}
	}

	if byName["policy RemapModel"].Status().Code != codes.Ok {
		t.Error("RemapModel span not OK")
	}
	reject := byName["policy Reject"]
	if reject.Status().Code != codes.Error {
		t.Error("Reject span not marked as error")
	}
	if kind, _ := attrValue(reject, AttrErrorKind); kind != "content_policy" {
		t.Errorf("error kind = %q", kind)
	}
	if kind, _ := attrValue(rootSpan, AttrPolicyKind); kind != "SerialPolicy" {
		t.Errorf("root kind = %q", kind)
	}
}

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(context.Background(), &config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tracer.Enabled() {
		t.Error("disabled tracer reports enabled")
	}
	ctx, span := tracer.Start(context.Background(), "noop")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("noop tracer produced a trace id")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), nil, "test"); err == nil {
		t.Error("New(nil) succeeded")
	}
	cfg := &config.TracingConfig{Enabled: true, Sampler: "sometimes", Endpoint: "localhost:4317"}
	if _, err := New(context.Background(), cfg, "test"); err == nil {
		t.Error("New() accepted unknown sampler")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.5, false},
		{"", 1.0, false},
		{SamplerRatio, 1.5, true},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			s, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s == nil {
				t.Error("nil sampler")
			}
		})
	}
}

func TestHTTPMiddleware_ContinuesIncomingTrace(t *testing.T) {
	tracer, sr := newRecordingTracer()
	prop := propagation.TraceContext{}

	var seen string
	h := tracer.HTTPMiddleware("chat_completions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")

	// The global propagator is a no-op until New installs one.
	ctx := prop.Extract(context.Background(), propagation.HeaderCarrier(req.Header))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))

	if seen != traceID {
		t.Errorf("handler trace id = %q, want %q", seen, traceID)
	}
	if rec.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("X-Trace-ID = %q", rec.Header().Get("X-Trace-ID"))
	}
	if len(sr.Ended()) != 1 || sr.Ended()[0].Name() != "chat_completions" {
		t.Errorf("unexpected spans: %v", sr.Ended())
	}
}

func TestInject(t *testing.T) {
	tracer, _ := newRecordingTracer()
	ctx, span := tracer.Start(context.Background(), "dispatch")
	defer span.End()

	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	h := http.Header{}
	Inject(ctx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("no traceparent injected")
	}
	if TraceID(ctx) == "" {
		t.Error("TraceID() empty for a recording span")
	}
}
