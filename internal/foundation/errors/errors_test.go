package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "config.yaml").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "invalid configuration", err.Message())
		file, ok := err.Context().GetString("file")
		require.True(t, ok)
		assert.Equal(t, "config.yaml", file)
		assert.Equal(t, "[config:fatal] invalid configuration", err.Error())
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		assert.True(t, IsClassified(err))
		assert.True(t, HasCategory(err, CategoryConfig))
		assert.True(t, HasSeverity(err, SeverityFatal))
		assert.False(t, err.CanRetry())
		assert.True(t, err.IsFatal())
	})

	t.Run("Wrapped in fmt chain", func(t *testing.T) {
		inner := SubjectError("marker rate unknown").WithContext("subject_id", 5).Build()
		wrapped := fmt.Errorf("evaluate: %w", inner)

		classified, ok := AsClassified(wrapped)
		require.True(t, ok)
		id, ok := classified.Context().GetInt("subject_id")
		require.True(t, ok)
		assert.Equal(t, 5, id)
		assert.Equal(t, CategorySubject, GetCategory(wrapped))
	})

	t.Run("Unclassified defaults", func(t *testing.T) {
		plain := errors.New("plain")
		assert.False(t, IsClassified(plain))
		assert.Equal(t, CategoryInternal, GetCategory(plain))
	})
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("connection refused")
	err := WrapError(originalErr, CategoryNotify, "publish failed").
		Warning().
		Retryable().
		WithContext("subject", "detecttune.trials").
		WithContext("attempt", 2).
		Build()

	assert.Equal(t, SeverityWarning, err.Severity())
	assert.Equal(t, RetryBackoff, err.RetryStrategy())
	assert.True(t, err.CanRetry())
	assert.ErrorIs(t, err, originalErr)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSentinelMatching(t *testing.T) {
	sentinel := StoreError("trial ids are not contiguous").UserAction().Build()
	enriched := sentinel.WithContext("expected", 3)

	assert.ErrorIs(t, enriched, sentinel)
	assert.NotErrorIs(t, StoreError("other").Build(), sentinel)
	_, hasExpected := sentinel.Context().Get("expected")
	assert.False(t, hasExpected, "WithContext must not mutate the sentinel")
}

func TestErrorContextMerge(t *testing.T) {
	var empty ErrorContext
	other := ErrorContext{"a": 1}
	assert.Equal(t, other, empty.Merge(other))

	base := ErrorContext{"a": 1, "b": 2}
	merged := base.Merge(ErrorContext{"b": 3})
	assert.Equal(t, 3, merged["b"])
	assert.Equal(t, 2, base["b"])
}
