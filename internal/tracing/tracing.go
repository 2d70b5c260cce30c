// Package tracing exports kernel activity as OpenTelemetry spans: one span
// for the run, one per process, and one per syscall under its process.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/randomizedcoder/go-teachos/internal/syscalls"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

// InstrumentationName names the tracer.
const InstrumentationName = "github.com/randomizedcoder/go-teachos/internal/tracing"

// Config holds configuration for creating a Tracer.
type Config struct {
	ServiceName    string
	ServiceVersion string
	BootID         string

	// Exporter receives finished spans. When nil, New uses the stdout
	// exporter on Writer.
	Exporter sdktrace.SpanExporter
	Writer   io.Writer
}

// Tracer turns syscall events and scheduler callbacks into spans.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	closer   io.Closer

	mu      sync.Mutex
	runCtx  context.Context
	runSpan trace.Span
	procs   map[int]procSpan

	shutdownOnce sync.Once
	shutdownErr  error
}

type procSpan struct {
	ctx  context.Context
	span trace.Span
}

// Open creates a Tracer writing JSON spans to path. "-" means stdout.
func Open(path string, cfg Config) (*Tracer, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create trace file: %w", err)
		}
		w, closer = f, f
	}
	cfg.Writer = w

	t, err := New(cfg)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	t.closer = closer
	return t, nil
}

// New creates a Tracer and starts the run span.
func New(cfg Config) (*Tracer, error) {
	exporter := cfg.Exporter
	if exporter == nil {
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("teachos.boot_id", cfg.BootID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)

	t := &Tracer{
		provider: tp,
		tracer:   tp.Tracer(InstrumentationName),
		procs:    make(map[int]procSpan),
	}
	t.runCtx, t.runSpan = t.tracer.Start(context.Background(), "kernel.run",
		trace.WithAttributes(attribute.String("boot_id", cfg.BootID)),
	)
	return t, nil
}

// Callbacks returns scheduler callbacks that open and close process spans.
func (t *Tracer) Callbacks() task.Callbacks {
	return task.Callbacks{
		OnAdd: t.processStarted,
		OnExit: func(pid int, _ string, code int32, _ uint64) {
			t.processExited(pid, code)
		},
	}
}

func (t *Tracer) processStarted(pid int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runSpan == nil {
		return
	}
	ctx, span := t.tracer.Start(t.runCtx, "process "+name,
		trace.WithAttributes(
			attribute.Int("pid", pid),
			attribute.String("process.name", name),
		),
	)
	t.procs[pid] = procSpan{ctx: ctx, span: span}
}

func (t *Tracer) processExited(pid int, code int32) {
	t.mu.Lock()
	ps, ok := t.procs[pid]
	delete(t.procs, pid)
	t.mu.Unlock()
	if !ok {
		return
	}

	ps.span.SetAttributes(attribute.Int("exit_code", int(code)))
	if code != 0 {
		ps.span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", code))
	} else {
		ps.span.SetStatus(codes.Ok, "")
	}
	ps.span.End()
}

// ObserveSyscall records ev as a span under its process, using the
// event's own start and end times.
func (t *Tracer) ObserveSyscall(ev syscalls.Event) {
	t.mu.Lock()
	parent := t.runCtx
	if ps, ok := t.procs[ev.PID]; ok {
		parent = ps.ctx
	}
	closed := t.runSpan == nil
	t.mu.Unlock()
	if closed {
		return
	}

	_, span := t.tracer.Start(parent, "syscall "+ev.ID.String(),
		trace.WithTimestamp(ev.Start),
		trace.WithAttributes(
			attribute.Int("pid", ev.PID),
			attribute.String("process.name", ev.Name),
			attribute.Int64("syscall.id", int64(ev.ID)),
			attribute.String("syscall.args", fmt.Sprintf("%#x %#x %#x", ev.Args[0], ev.Args[1], ev.Args[2])),
			attribute.Int64("syscall.result", ev.Result),
		),
	)
	if ev.Result < 0 {
		span.SetStatus(codes.Error, "returned -1")
	}
	span.End(trace.WithTimestamp(ev.End))
}

// Shutdown ends every open span, flushes the exporter and closes the
// trace file. Safe to call more than once.
func (t *Tracer) Shutdown(ctx context.Context) error {
	t.shutdownOnce.Do(func() {
		t.mu.Lock()
		now := time.Now()
		for pid, ps := range t.procs {
			ps.span.SetStatus(codes.Unset, "still running at shutdown")
			ps.span.End(trace.WithTimestamp(now))
			delete(t.procs, pid)
		}
		if t.runSpan != nil {
			t.runSpan.End(trace.WithTimestamp(now))
			t.runSpan = nil
		}
		t.mu.Unlock()

		t.shutdownErr = t.provider.Shutdown(ctx)
		if t.closer != nil {
			if err := t.closer.Close(); err != nil && t.shutdownErr == nil {
				t.shutdownErr = err
			}
		}
	})
	return t.shutdownErr
}
