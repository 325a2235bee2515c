package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Format(t *testing.T) {
	cause := errors.New("permission denied")

	err := IOError("Failed to write report", cause)
	assert.Equal(t, "[io] Failed to write report: permission denied", err.Error())
	assert.Equal(t, "Failed to write report: permission denied", err.Description())
	assert.ErrorIs(t, err, cause)

	bare := ConfigError("unknown prompt style", nil)
	assert.Equal(t, "[config] unknown prompt style", bare.Error())
}

func TestErrorTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("page 2: %w", LoadError("unsupported format", nil))

	assert.Equal(t, ErrorTypeLoad, ErrorTypeOf(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeLoad))
	assert.False(t, IsType(wrapped, ErrorTypeAPI))
	assert.Equal(t, ErrorType(""), ErrorTypeOf(errors.New("plain")))
}

func TestNewFailureResult(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	task := ImageTask{SourcePath: "/in/a.png", Name: "a.png", PageNumber: 3}

	t.Run("domain error keeps its kind", func(t *testing.T) {
		r := NewFailureResult(task, LoadError("cannot decode image", errors.New("bad header")), at)
		assert.False(t, r.Success)
		assert.Equal(t, ErrorTypeLoad, r.ErrorKind)
		assert.Equal(t, "cannot decode image: bad header", r.ErrorMessage)
		assert.Equal(t, 3, r.PageNumber)
		assert.Equal(t, at, r.ProcessedAt)
	})

	t.Run("plain error is reported as api", func(t *testing.T) {
		r := NewFailureResult(task, errors.New("connection reset"), at)
		assert.Equal(t, ErrorTypeAPI, r.ErrorKind)
		assert.Equal(t, "connection reset", r.ErrorMessage)
	})
}

func TestRunSummary_Record(t *testing.T) {
	var s RunSummary
	task := ImageTask{Name: "x.png", PageNumber: 1}
	now := time.Now()

	s.Record(NewSuccessResult(task, "hello", now))
	s.Record(NewFailureResult(task, APIError("rate limited", nil), now))
	s.Record(NewSuccessResult(task, "world", now))

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Successes)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, s.Total, s.Successes+s.Errors)
}

func TestBatchResult_Failed(t *testing.T) {
	now := time.Now()
	b := BatchResult{Results: []ExtractionResult{
		NewSuccessResult(ImageTask{Name: "a.png", PageNumber: 1}, "A", now),
		NewFailureResult(ImageTask{Name: "b.png", PageNumber: 2}, LoadError("bad", nil), now),
		NewFailureResult(ImageTask{Name: "c.png", PageNumber: 3}, APIError("bad", nil), now),
	}}

	failed := b.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "b.png", failed[0].FileName)
	assert.Equal(t, "c.png", failed[1].FileName)
}
