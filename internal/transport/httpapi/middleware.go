package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/shop/internal/tracing"
)

const unmatchedRoute = "unmatched"

// responseRecorder запоминает код ответа и, если нужно, его тело.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        *bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter, captureBody bool) *responseRecorder {
	rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
	if captureBody {
		rec.body = &bytes.Buffer{}
	}
	return rec
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if r.body != nil {
		r.body.Write(p)
	}
	return r.ResponseWriter.Write(p)
}

// instrument оборачивает mux: trace context из заголовков, span на запрос,
// метрики по шаблону маршрута и перехват паники.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracing.Tracer().Start(ctx, "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		rec := newResponseRecorder(w, false)
		r = r.WithContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				err := fmt.Errorf("panic: %v", p)
				h.logger.WithError(err).WithField("path", r.URL.Path).Error("handler panicked")
				tracing.RecordError(span, err)
				if !rec.wroteHeader {
					writeJSON(rec, http.StatusInternalServerError, errorResponse{Error: CodeInternal, Message: "internal error"})
				}
			}

			route := routeOf(r)
			span.SetName(route)
			span.SetAttributes(attribute.Int("http.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			if h.metrics != nil {
				h.metrics.Observe(r.Method, route, rec.status, time.Since(start))
			}
		}()

		next.ServeHTTP(rec, r)
	})
}

// routeOf возвращает шаблон маршрута без метода: "POST /orders" -> "/orders".
func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
