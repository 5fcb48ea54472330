package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTracer_DisabledWithoutEndpoint(t *testing.T) {
	shutdown := InitTracer(context.Background(), "", false)
	assert.NotPanics(t, shutdown)
}

func TestRecordError_WithoutSpan(t *testing.T) {
	ctx, span := Tracer().Start(context.Background(), "cohort.compute")
	defer span.End()

	assert.NotPanics(t, func() { RecordError(ctx, errors.New("band failed")) })
	assert.NotPanics(t, func() { RecordError(context.Background(), errors.New("no span")) })
}
