package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_RecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := New("assistant-test", WithSpanProcessor(recorder))
	defer obs.Shutdown()

	_, span := obs.StartSpan(context.Background(), "assistant.classify", attribute.String("intent", "search"))
	EndSpan(span, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "assistant.classify", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestNilObservability_IsSafe(t *testing.T) {
	var obs *Observability
	ctx, span := obs.StartSpan(context.Background(), "noop")
	EndSpan(span, nil)

	obs.RecordMessageProcessed(ctx, "greeting", "success")
	obs.RecordMessageDuration(ctx, 0, "success")
	obs.Shutdown()
}
