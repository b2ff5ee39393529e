package tracing

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName — имя tracer'а, под которым сервисы создают span'ы.
const InstrumentationName = "github.com/vladislavdragonenkov/shop"

// Tracer возвращает tracer из глобального провайдера. Пока провайдер не
// инициализирован, span'ы не записываются (noop).
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// ShutdownFunc сбрасывает буфер span'ов и останавливает провайдер.
type ShutdownFunc func(ctx context.Context) error

// InitTracerProvider настраивает Jaeger exporter и регистрирует глобальный TracerProvider.
// Пустой endpoint выключает экспорт: возвращается noop shutdown.
func InitTracerProvider(serviceName, jaegerEndpoint string, logger *log.Entry) (ShutdownFunc, error) {
	if logger == nil {
		logger = log.New().WithField("component", "tracing")
	}
	if jaegerEndpoint == "" {
		logger.Info("tracing export disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("create jaeger exporter: %w", err)
	}

	return registerProvider(serviceName, sdktrace.WithBatcher(exporter), logger.WithField("endpoint", jaegerEndpoint)), nil
}

func registerProvider(serviceName string, processor sdktrace.TracerProviderOption, logger *log.Entry) ShutdownFunc {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		processor,
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.WithField("service", serviceName).Info("tracing initialized")
	return tp.Shutdown
}

// RecordError помечает span ошибкой, если она есть.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
