package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lmdhub/api/internal/platform/httpx"
	"github.com/lmdhub/api/internal/platform/requestctx"
)

const (
	meterName            = "github.com/lmdhub/api/internal/platform/observability"
	defaultSlowThreshold = 2 * time.Second
)

// ContextLogger makes base the request logger for everything downstream.
func ContextLogger(base *zap.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), base)))
		})
	}
}

// AccessLogOption tunes AccessLog.
type AccessLogOption func(*accessLog)

// WithSlowThreshold flags requests that take longer than d. Zero disables the flag.
func WithSlowThreshold(d time.Duration) AccessLogOption {
	return func(a *accessLog) {
		a.slow = d
	}
}

// WithAccessMeter records request durations on m instead of the global meter provider.
func WithAccessMeter(m metric.Meter) AccessLogOption {
	return func(a *accessLog) {
		if m != nil {
			a.meter = m
		}
	}
}

// WithAccessClock replaces time.Now when measuring latency.
func WithAccessClock(now func() time.Time) AccessLogOption {
	return func(a *accessLog) {
		if now != nil {
			a.now = now
		}
	}
}

type accessLog struct {
	slow     time.Duration
	meter    metric.Meter
	now      func() time.Time
	duration metric.Float64Histogram
}

// AccessLog writes a single "request completed" entry per request at a level chosen from the
// status code and records the request duration histogram. Downstream handlers log through a
// child logger that already carries request_id, method, path and the Cloud Logging trace.
func AccessLog(opts ...AccessLogOption) func(http.Handler) http.Handler {
	a := &accessLog{
		slow:  defaultSlowThreshold,
		meter: otel.GetMeterProvider().Meter(meterName),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	duration, err := a.meter.Float64Histogram("http.server.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of inbound HTTP requests"),
	)
	if err != nil {
		duration, _ = noop.NewMeterProvider().Meter(meterName).Float64Histogram("http.server.request.duration")
	}
	a.duration = duration

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.serve(next, w, r)
		})
	}
}

func (a *accessLog) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, _ := requestctx.Trace(ctx)
	fields := []zap.Field{
		zap.String("request_id", requestctx.RequestID(ctx)),
		zap.String("method", clean(r.Method, 10)),
		zap.String("path", clean(r.URL.Path, 180)),
	}
	if info.TraceID != "" {
		fields = append(fields, zap.String("trace_id", info.TraceID))
	}
	if resource := traceResource(info); resource != "" {
		fields = append(fields, zap.String("logging.googleapis.com/trace", resource))
	}
	if ip := clientIP(r.RemoteAddr); ip != "" {
		fields = append(fields, zap.String("remote_ip", ip))
	}
	logger := requestctx.Logger(ctx).With(fields...)
	r = r.WithContext(requestctx.WithLogger(ctx, logger))

	sw := &statusWriter{ResponseWriter: w}
	started := a.now()
	completed := false
	defer func() {
		status := sw.code()
		if !completed && status < http.StatusInternalServerError {
			// A panic is unwinding; the recoverer answers with 500.
			status = http.StatusInternalServerError
		}
		elapsed := a.now().Sub(started)
		route := matchedRoute(r)

		span := trace.SpanFromContext(r.Context())
		span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		a.duration.Record(r.Context(), elapsed.Seconds(), metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.request.method", r.Method),
			attribute.Int("http.response.status_code", status),
		))

		entry := []zap.Field{
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.Int64("bytes", sw.written),
		}
		if a.slow > 0 && elapsed >= a.slow {
			entry = append(entry, zap.Bool("slow", true))
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request completed", entry...)
		case status >= http.StatusBadRequest:
			logger.Warn("request completed", entry...)
		default:
			logger.Info("request completed", entry...)
		}
	}()

	next.ServeHTTP(sw, r)
	completed = true
}

// Recoverer turns a panic into the 500 error envelope and logs the stack. fallback is used
// when no request logger has been installed yet.
func Recoverer(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("panic recovered",
					zap.String("panic", fmt.Sprint(rec)),
					zap.ByteString("stack", debug.Stack()),
				)
				trace.SpanFromContext(ctx).RecordError(fmt.Errorf("panic: %v", rec))
				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// matchedRoute prefers the chi pattern so path parameters do not explode log cardinality.
func matchedRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return clean(pattern, 180)
		}
	}
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return clean(r.URL.Path, 180)
}

func clientIP(remoteAddr string) string {
	addr := strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return clean(addr, 64)
}

func traceResource(info requestctx.TraceInfo) string {
	if info.ProjectID == "" || info.TraceID == "" {
		return ""
	}
	return "projects/" + info.ProjectID + "/traces/" + info.TraceID
}

// clean drops control characters and truncates to limit runes so request data cannot forge
// log lines.
func clean(value string, limit int) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(out); len(runes) > limit {
		out = string(runes[:limit])
	}
	return out
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
