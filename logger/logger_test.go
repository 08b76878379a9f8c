package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "WARN", "error"} {
		l, err := New(lvl)
		require.NoError(t, err, lvl)
		assert.NotNil(t, l.Logger)
		assert.NotNil(t, l.SugaredLogger)
	}

	_, err := New("loud")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	scoped := WithRunID(zap.New(core), "run-1")
	fallback := zap.NewNop()

	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.NotNil(t, FromContext(context.Background(), nil))

	ctx := WithContext(context.Background(), scoped)
	FromContext(ctx, fallback).Info("hello")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "run-1", entry.ContextMap()["optimization_id"])
}
