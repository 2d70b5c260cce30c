package tracing

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/syscalls"
)

// retainingExporter keeps its spans across Shutdown so tests can inspect
// what the tracer flushed while shutting down.
type retainingExporter struct {
	*tracetest.InMemoryExporter
}

func (retainingExporter) Shutdown(context.Context) error { return nil }

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := New(Config{ServiceName: "teachos", ServiceVersion: "test", BootID: "boot-1", Exporter: retainingExporter{exp}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr, exp
}

func findSpan(spans tracetest.SpanStubs, name string) *tracetest.SpanStub {
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	return nil
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSyscallSpanUnderProcess(t *testing.T) {
	tr, exp := newTestTracer(t)
	cb := tr.Callbacks()

	cb.OnAdd(0, "hello")
	start := time.Unix(100, 0)
	tr.ObserveSyscall(syscalls.Event{
		PID:    0,
		Name:   "hello",
		ID:     abi.SysWrite,
		Args:   [3]uint64{1, 0x1000, 5},
		Result: 5,
		Start:  start,
		End:    start.Add(3 * time.Microsecond),
	})
	cb.OnExit(0, "hello", 0, 42)

	spans := exp.GetSpans()
	sys := findSpan(spans, "syscall write")
	if sys == nil {
		t.Fatalf("no syscall span in %d spans", len(spans))
	}
	proc := findSpan(spans, "process hello")
	if proc == nil {
		t.Fatal("no process span")
	}

	if sys.Parent.SpanID() != proc.SpanContext.SpanID() {
		t.Error("syscall span is not a child of its process span")
	}
	if !sys.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", sys.StartTime, start)
	}
	if got := sys.EndTime.Sub(sys.StartTime); got != 3*time.Microsecond {
		t.Errorf("span duration = %v, want 3µs", got)
	}
	if v, ok := attrValue(sys.Attributes, "syscall.result"); !ok || v.AsInt64() != 5 {
		t.Errorf("syscall.result = %v, want 5", v.AsInt64())
	}
	if v, ok := attrValue(sys.Attributes, "syscall.args"); !ok || v.AsString() != "0x1 0x1000 0x5" {
		t.Errorf("syscall.args = %q", v.AsString())
	}
	if sys.Status.Code != codes.Unset {
		t.Errorf("status = %v, want Unset", sys.Status.Code)
	}
	if proc.Status.Code != codes.Ok {
		t.Errorf("process status = %v, want Ok", proc.Status.Code)
	}
}

func TestFailedSyscallMarksError(t *testing.T) {
	tr, exp := newTestTracer(t)
	tr.Callbacks().OnAdd(1, "bad")

	now := time.Now()
	tr.ObserveSyscall(syscalls.Event{PID: 1, Name: "bad", ID: abi.SysMmap, Result: -1, Start: now, End: now})

	sys := findSpan(exp.GetSpans(), "syscall mmap")
	if sys == nil {
		t.Fatal("no mmap span")
	}
	if sys.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", sys.Status.Code)
	}
}

func TestUnknownSyscallName(t *testing.T) {
	tr, exp := newTestTracer(t)
	now := time.Now()
	tr.ObserveSyscall(syscalls.Event{PID: 3, ID: 999, Result: -1, Start: now, End: now})

	if findSpan(exp.GetSpans(), "syscall {syscall 999}") == nil {
		t.Error("unknown syscall span missing")
	}
}

func TestProcessExitStatus(t *testing.T) {
	tr, exp := newTestTracer(t)
	cb := tr.Callbacks()
	cb.OnAdd(2, "fault")
	cb.OnExit(2, "fault", -2, 10)

	proc := findSpan(exp.GetSpans(), "process fault")
	if proc == nil {
		t.Fatal("no process span")
	}
	if proc.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", proc.Status.Code)
	}
	if v, _ := attrValue(proc.Attributes, "exit_code"); v.AsInt64() != -2 {
		t.Errorf("exit_code = %d, want -2", v.AsInt64())
	}
}

func TestShutdownEndsOpenSpans(t *testing.T) {
	tr, exp := newTestTracer(t)
	tr.Callbacks().OnAdd(0, "spin")

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	// Second call is a no-op.
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}

	spans := exp.GetSpans()
	if findSpan(spans, "process spin") == nil {
		t.Error("open process span not ended at shutdown")
	}
	if findSpan(spans, "kernel.run") == nil {
		t.Error("run span not ended at shutdown")
	}

	// Events after shutdown are dropped.
	now := time.Now()
	tr.ObserveSyscall(syscalls.Event{PID: 0, ID: abi.SysYield, Start: now, End: now})
	tr.Callbacks().OnAdd(5, "late")
}

func TestStdoutExporterWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{ServiceName: "teachos", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Now()
	tr.ObserveSyscall(syscalls.Event{PID: 0, ID: abi.SysGetTime, Start: now, End: now})
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"syscall get_time"`) {
		t.Errorf("output missing syscall span: %s", out)
	}
	if !strings.Contains(out, `"kernel.run"`) {
		t.Errorf("output missing run span")
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	tr, err := Open(path, Config{ServiceName: "teachos"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("kernel.run")) {
		t.Errorf("trace file missing run span")
	}
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "trace.json"), Config{})
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
