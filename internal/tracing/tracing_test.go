package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init("anyspeech-test", "run-1", &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "validate")
	span.SetAttributes(attribute.Float64("cost", 1.5))
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "validate")
	assert.Contains(t, buf.String(), "anyspeech-test")
}
