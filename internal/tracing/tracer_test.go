package tracing

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderDisabled(t *testing.T) {
	shutdown, err := InitTracerProvider("shop", "", log.New().WithField("component", "test"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestRegisterProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	shutdown := registerProvider("shop-test", sdktrace.WithSpanProcessor(recorder), log.New().WithField("component", "test"))
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, span := Tracer().Start(context.Background(), "unit")
	RecordError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "unit", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestRecordErrorNil(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "noop")
	RecordError(span, nil)
	span.End()
}
