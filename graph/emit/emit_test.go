package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, false)

	emitter.Emit(Event{
		ThreadID: "conv-7",
		Step:     3,
		NodeID:   "inventory",
		Msg:      MsgNodeCompleted,
	})

	got := buf.String()
	want := "[node_completed] thread=conv-7 step=3 node=inventory\n"
	if got != want {
		t.Errorf("text output = %q, want %q", got, want)
	}
}

func TestLogEmitterTextWithMeta(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, false)

	emitter.Emit(Event{
		ThreadID: "conv-7",
		Step:     4,
		NodeID:   "procurement",
		Msg:      MsgNodeError,
		Meta:     map[string]interface{}{"error": "vendor timeout"},
	})

	got := buf.String()
	if !strings.Contains(got, "[node_error]") || !strings.Contains(got, "vendor timeout") {
		t.Errorf("text output = %q", got)
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{
		ThreadID: "conv-7",
		Step:     5,
		NodeID:   "technician",
		Msg:      MsgSuspended,
		Meta:     map[string]interface{}{"pending_node": "technician"},
	})

	var decoded struct {
		ThreadID string                 `json:"thread"`
		Step     int                    `json:"step"`
		NodeID   string                 `json:"node"`
		Msg      string                 `json:"msg"`
		Meta     map[string]interface{} `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.ThreadID != "conv-7" || decoded.Step != 5 || decoded.Msg != MsgSuspended {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Meta["pending_node"] != "technician" {
		t.Errorf("meta = %v", decoded.Meta)
	}
}

func TestBufferedEmitter(t *testing.T) {
	emitter := NewBufferedEmitter()

	emitter.Emit(Event{ThreadID: "t1", Step: 1, NodeID: "a", Msg: MsgNodeCompleted})
	emitter.Emit(Event{ThreadID: "t1", Step: 2, NodeID: "b", Msg: MsgNodeCompleted})
	emitter.Emit(Event{ThreadID: "t2", Step: 1, NodeID: "x", Msg: MsgNodeCompleted})

	if got := len(emitter.History("t1")); got != 2 {
		t.Errorf("History(t1) has %d events, want 2", got)
	}
	if got := emitter.NodeSequence("t1"); strings.Join(got, ",") != "a,b" {
		t.Errorf("NodeSequence(t1) = %v", got)
	}
	if got := len(emitter.History("unknown")); got != 0 {
		t.Errorf("History(unknown) has %d events, want 0", got)
	}

	// History must return a copy, not the live slice.
	h := emitter.History("t1")
	h[0].NodeID = "mutated"
	if emitter.History("t1")[0].NodeID != "a" {
		t.Error("History exposed internal state")
	}

	emitter.Clear("t1")
	if got := len(emitter.History("t1")); got != 0 {
		t.Errorf("History(t1) after Clear has %d events", got)
	}
	if got := len(emitter.History("t2")); got != 1 {
		t.Errorf("Clear(t1) affected t2: %d events", got)
	}
}

func TestNullEmitter(t *testing.T) {
	emitter := NewNullEmitter()
	// Must not panic.
	emitter.Emit(Event{ThreadID: "t1", Msg: MsgTerminal})
}

func TestOTelEmitter(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	emitter := NewOTelEmitter(tp.Tracer("test"))

	emitter.Emit(Event{
		ThreadID: "conv-9",
		Step:     2,
		NodeID:   "planner",
		Msg:      MsgNodeCompleted,
		Meta:     map[string]interface{}{"intent": "repair_request"},
	})
	emitter.Emit(Event{
		ThreadID: "conv-9",
		Step:     3,
		NodeID:   "planner",
		Msg:      MsgNodeError,
		Meta:     map[string]interface{}{"error": "model unavailable"},
	})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	completed := spans[0]
	if completed.Name() != MsgNodeCompleted {
		t.Errorf("span name = %q, want %q", completed.Name(), MsgNodeCompleted)
	}
	attrs := make(map[string]interface{})
	for _, kv := range completed.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["maintgraph.thread_id"] != "conv-9" {
		t.Errorf("thread_id attr = %v", attrs["maintgraph.thread_id"])
	}
	if attrs["maintgraph.intent"] != "repair_request" {
		t.Errorf("meta attr = %v", attrs["maintgraph.intent"])
	}

	failed := spans[1]
	if failed.Status().Description != "model unavailable" {
		t.Errorf("error span status = %+v", failed.Status())
	}
}
