package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "task.move", "/api/tasks/:id/move")
	metrics.start = metrics.start.Add(-20 * time.Millisecond)
	metrics.SetProject("p1")
	metrics.SetTask("t1")

	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := waitForLogEntry(t, hook, time.Second)
	if entry.Message != observabilityEvent {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("expected info level, got %v", entry.Level)
	}
	if got := entry.Data["event.name"]; got != "task.move" {
		t.Fatalf("unexpected event name: %v", got)
	}
	if got := entry.Data["event.domain"]; got != requestEventDomain {
		t.Fatalf("unexpected event domain: %v", got)
	}
	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrs["http.route"] != "/api/tasks/:id/move" {
		t.Fatalf("unexpected route attribute: %#v", attrs["http.route"])
	}
	if attrs["board.project_id"] != "p1" || attrs["board.task_id"] != "t1" {
		t.Fatalf("unexpected ids: %#v", attrs)
	}
	if ms, _ := attrs["board.total_ms"].(float64); ms < 20 {
		t.Fatalf("expected total duration of at least 20ms, got %#v", attrs["board.total_ms"])
	}
	if _, ok := entry.Data["trace_id"]; !ok {
		t.Fatalf("expected trace id on log entry")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "task.move" {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected ok status, got %v", span.Status.Code)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if spanAttrs["board.project_id"] != "p1" {
		t.Fatalf("unexpected span attributes: %#v", spanAttrs)
	}
	if len(span.Events) != 1 || span.Events[0].Name != observabilityEvent {
		t.Fatalf("expected observability event on span, got %#v", span.Events)
	}
}

func TestRequestMetricsLogWithErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "board.read", "/api/projects/:id/board")
	metrics.SetErrorStage("store")
	metrics.SetError(errors.New("database is locked"))
	metrics.Log(http.StatusInternalServerError, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := waitForLogEntry(t, hook, time.Second)
	if entry.Level != log.ErrorLevel {
		t.Fatalf("expected error level, got %v", entry.Level)
	}
	attrs := entry.Data["attributes"].(map[string]any)
	if attrs["board.error_stage"] != "store" {
		t.Fatalf("unexpected error stage: %#v", attrs["board.error_stage"])
	}
	if attrs["error.message"] != "database is locked" {
		t.Fatalf("unexpected error message: %#v", attrs["error.message"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "database is locked" {
		t.Fatalf("unexpected span status: %#v", spans[0].Status)
	}
}

func TestObserveMiddlewareRecordsRoute(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, exporter, restore := setupTestTracer(t)
	defer restore()

	e := echo.New()
	e.GET("/api/projects/:id/board", func(c echo.Context) error {
		observe(c).SetProject(c.Param("id"))
		return c.NoContent(http.StatusNotFound)
	}, Observe(logger, "board.read"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects/p9/board", nil))

	entry := waitForLogEntry(t, hook, time.Second)
	if entry.Level != log.WarnLevel {
		t.Fatalf("expected warn level for 404, got %v", entry.Level)
	}
	attrs := entry.Data["attributes"].(map[string]any)
	if attrs["http.route"] != "/api/projects/:id/board" {
		t.Fatalf("unexpected route: %#v", attrs["http.route"])
	}
	if attrs["http.status_code"] != http.StatusNotFound {
		t.Fatalf("unexpected status: %#v", attrs["http.status_code"])
	}
	if attrs["board.project_id"] != "p9" {
		t.Fatalf("unexpected project: %#v", attrs["board.project_id"])
	}
	if len(exporter.GetSpans()) != 1 {
		t.Fatalf("expected span to be ended")
	}
}

func TestObserveIsNilSafeOutsideMiddleware(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	m := observe(c)
	m.SetProject("p")
	m.SetTask("t")
	m.SetErrorStage("store")
	m.SetError(errors.New("boom"))
	m.Log(http.StatusOK, nil)
}

func TestSeverityForStatus(t *testing.T) {
	cases := []struct {
		status int
		err    error
		text   string
		number int
	}{
		{http.StatusOK, nil, "INFO", 9},
		{http.StatusCreated, nil, "INFO", 9},
		{http.StatusBadRequest, nil, "WARN", 13},
		{http.StatusNotFound, nil, "WARN", 13},
		{http.StatusInternalServerError, nil, "ERROR", 17},
		{http.StatusOK, errors.New("error"), "ERROR", 17},
	}
	for _, tc := range cases {
		text, number := severityForStatus(tc.status, tc.err)
		if text != tc.text || number != tc.number {
			t.Fatalf("status %d: expected %s/%d, got %s/%d", tc.status, tc.text, tc.number, text, number)
		}
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func waitForLogEntry(t *testing.T, hook *test.Hook, timeout time.Duration) *log.Entry {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if entry := hook.LastEntry(); entry != nil {
			return entry
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected log entry within %v", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
