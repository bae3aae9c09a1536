package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "taskboard/api"
	requestEventDomain = "taskboard.api"
	observabilityEvent = "observability.event"
	metricsContextKey  = "request.metrics"
)

// requestMetrics records one board read or task mutation as a span plus a
// structured observability.event log entry.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	name       string
	route      string
	start      time.Time
	projectID  string
	taskID     string
	errorStage string
	err        error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, name, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		name:   name,
		route:  route,
		start:  time.Now(),
	}, spanCtx
}

func (m *requestMetrics) SetProject(id string) {
	if m == nil || id == "" {
		return
	}
	m.projectID = id
}

func (m *requestMetrics) SetTask(id string) {
	if m == nil || id == "" {
		return
	}
	m.taskID = id
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) SetError(err error) {
	if m == nil || err == nil {
		return
	}
	m.err = err
}

// Log ends the span and emits the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":       m.route,
		"http.status_code": status,
		"board.total_ms":   durationToMillis(time.Since(m.start)),
	}
	if m.projectID != "" {
		attrs["board.project_id"] = m.projectID
	}
	if m.taskID != "" {
		attrs["board.task_id"] = m.taskID
	}
	if m.errorStage != "" {
		attrs["board.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	kvs := toAttributes(attrs)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", m.name),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, kvs...)

	if m.span != nil {
		m.span.SetAttributes(kvs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      m.name,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(severityNumber), observabilityEvent)
}

// Observe wraps a route with request metrics. The handler reaches the
// recorder through observe(c).
func Observe(logger *log.Logger, name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m, ctx := newRequestMetrics(c.Request().Context(), logger, name, c.Path())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.Log(status, err)
			return err
		}
	}
}

func observe(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func levelForSeverity(number int) log.Level {
	switch {
	case number >= 17:
		return log.ErrorLevel
	case number >= 13:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func toAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		}
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
