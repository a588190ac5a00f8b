package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindClassification(t *testing.T) {
	err := Errorf("GeometricalPreprocessing", KindMesh, 0, "node %d out of range", 12)
	wrapped := fmt.Errorf("zone 0: %w", err)

	assert.True(t, IsKind(wrapped, KindMesh))
	assert.False(t, IsKind(wrapped, KindConfig))
	assert.True(t, errors.Is(wrapped, ErrMeshTopology))
	assert.Contains(t, err.Error(), "zone=0")
	assert.Contains(t, err.Error(), "node 12 out of range")
}

func TestErrorKindNested(t *testing.T) {
	inner := NewError("Update", KindDegenerate, 1, ErrDegenerateElement)
	outer := NewError("Run", KindStage, -1, inner)

	assert.True(t, IsKind(outer, KindStage))
	assert.True(t, IsKind(outer, KindDegenerate))
	assert.NotContains(t, outer.Error(), "zone=-1")
	assert.False(t, IsKind(errors.New("plain"), KindStage))
	assert.False(t, IsKind(nil, KindStage))
}

func TestLoggerFallback(t *testing.T) {
	assert.NotNil(t, Logger(context.Background()))

	l := NewLogger(&discard{}, true)
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, Logger(ctx))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
