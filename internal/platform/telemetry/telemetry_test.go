package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestProvider() *Provider {
	return NewProvider(Config{ServiceName: "carebook-test", ServiceVersion: "1.0.0"})
}

func serveWith(tp *Provider, mw echo.MiddlewareFunc, method, path string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(mw)
	e.Add(method, path, handler)
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestResourceAttributes(t *testing.T) {
	tp := newTestProvider()
	res := tp.Resource()
	if res["service.name"] != "carebook-test" {
		t.Errorf("service.name = %q", res["service.name"])
	}
	if res["service.version"] != "1.0.0" {
		t.Errorf("service.version = %q", res["service.version"])
	}
}

func TestConfigDefaults(t *testing.T) {
	tp := NewProvider(Config{})
	res := tp.Resource()
	if res["service.name"] != "carebook-server" {
		t.Errorf("default service name = %q", res["service.name"])
	}
	if res["deployment.environment"] != "development" {
		t.Errorf("default environment = %q", res["deployment.environment"])
	}
}

func TestTracingMiddlewareRecordsSpan(t *testing.T) {
	tp := newTestProvider()
	serveWith(tp, tp.TracingMiddleware(), http.MethodGet, "/appointments/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	spans := tp.GetRecordedSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "HTTP GET /appointments/:id" {
		t.Errorf("span name = %q", s.Name)
	}
	if s.StatusCode != SpanStatusOK {
		t.Errorf("status = %v", s.StatusCode)
	}
	if s.Attributes["http.method"] != "GET" {
		t.Errorf("attrs = %v", s.Attributes)
	}
	if len(s.TraceID) != 32 || len(s.SpanID) != 16 {
		t.Errorf("id lengths: trace=%d span=%d", len(s.TraceID), len(s.SpanID))
	}
}

func TestTracingMarksServerErrors(t *testing.T) {
	tp := newTestProvider()
	serveWith(tp, tp.TracingMiddleware(), http.MethodGet, "/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	spans := tp.GetRecordedSpans()
	if len(spans) != 1 || spans[0].StatusCode != SpanStatusError {
		t.Errorf("spans = %+v", spans)
	}
}

func TestTracingDisabled(t *testing.T) {
	tp := NewProvider(Config{TracingEnabled: BoolPtr(false)})
	serveWith(tp, tp.TracingMiddleware(), http.MethodGet, "/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if n := len(tp.GetRecordedSpans()); n != 0 {
		t.Errorf("spans recorded while disabled: %d", n)
	}
}

func TestMetricsMiddlewareRecordsDuration(t *testing.T) {
	tp := newTestProvider()
	serveWith(tp, tp.MetricsMiddleware(), http.MethodGet, "/slots", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	h := tp.GetHistogram("http.server.request.duration")
	if h == nil || h.Count() != 1 {
		t.Fatalf("duration histogram not recorded: %+v", h)
	}

	key := LabelsKey("GET", "/slots", "200")
	labeled := tp.GetLabeledHistogram("http.server.request.duration", key)
	if labeled == nil || labeled.Count() != 1 {
		t.Errorf("labeled histogram missing for %s", key)
	}

	if g := tp.GetGauge("http.server.active_requests"); g != 0 {
		t.Errorf("active requests gauge = %d after completion", g)
	}
}

func TestMetricsMiddlewareLabelsHandlerErrors(t *testing.T) {
	tp := newTestProvider()
	serveWith(tp, tp.MetricsMiddleware(), http.MethodGet, "/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	key := LabelsKey("GET", "/boom", "500")
	labeled := tp.GetLabeledHistogram("http.server.request.duration", key)
	if labeled == nil || labeled.Count() != 1 {
		t.Errorf("labeled histogram missing for %s", key)
	}
}

func TestBookingOperationCounter(t *testing.T) {
	tp := newTestProvider()
	tp.BookingOperationCounter("appointment", "create")
	tp.BookingOperationCounter("appointment", "create")
	tp.BookingOperationCounter("slot", "block")

	if got := tp.GetCounter("booking.operation.count", "appointment", "create"); got != 2 {
		t.Errorf("appointment/create = %d, want 2", got)
	}
	if got := tp.GetCounter("booking.operation.count", "slot", "block"); got != 1 {
		t.Errorf("slot/block = %d, want 1", got)
	}
	if got := tp.GetCounter("booking.operation.count", "slot", "release"); got != 0 {
		t.Errorf("unknown counter = %d, want 0", got)
	}
}

func TestHealthMetrics(t *testing.T) {
	tp := newTestProvider()
	rec := tp.HealthMetrics()
	rec.SetDBPoolActive(3)
	rec.SetDBPoolIdle(7)
	rec.SetAppointmentsTotal(42)

	if tp.GetGauge("db.pool.active_connections") != 3 {
		t.Error("active connections gauge")
	}
	if tp.GetGauge("appointments.total") != 42 {
		t.Error("appointments total gauge")
	}
}

func TestPrometheusExposition(t *testing.T) {
	tp := newTestProvider()
	tp.BookingOperationCounter("appointment", "create")
	tp.HealthMetrics().SetAppointmentsTotal(5)

	serveWith(tp, tp.MetricsMiddleware(), http.MethodGet, "/appointments", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)
	if err := tp.PrometheusHandler()(c); err != nil {
		t.Fatal(err)
	}

	body := w.Body.String()
	for _, want := range []string{
		"# TYPE http_server_request_duration_seconds histogram",
		`booking_operation_count{entity="appointment",operation="create"} 1`,
		"appointments_total 5",
		`le="+Inf"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := newHistogram([]float64{1, 5, 10})
	for _, v := range []float64{0.5, 3, 7, 100} {
		h.Observe(v)
	}

	if h.Count() != 4 {
		t.Errorf("count = %d", h.Count())
	}
	if h.Sum() != 110.5 {
		t.Errorf("sum = %g", h.Sum())
	}
	cum := h.cumulativeBuckets()
	want := []int64{1, 2, 3}
	for i := range want {
		if cum[i] != want[i] {
			t.Errorf("bucket %d = %d, want %d", i, cum[i], want[i])
		}
	}
}

func TestShutdownIdempotent(t *testing.T) {
	tp := newTestProvider()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
