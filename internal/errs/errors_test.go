package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "DownloadError", KindDownload.String())
	assert.Equal(t, "ExtractionError", KindExtraction.String())
	assert.Equal(t, "EmbeddingError", KindEmbedding.String())
	assert.Equal(t, "RetrievalError", KindRetrieval.String())
	assert.Equal(t, "SynthesisError", KindSynthesis.String())
	assert.Equal(t, "UnknownError", KindUnknown.String())
}

func TestErrorMessage(t *testing.T) {
	e := NewDownloadError("文件超过大小限制", nil)
	assert.Equal(t, "DownloadError: 文件超过大小限制", e.Error())

	wrapped := NewEmbeddingError("重试 3 次后仍然失败", errors.New("connection refused"))
	assert.Contains(t, wrapped.Error(), "EmbeddingError")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := NewRetrievalError("文档尚未就绪", nil)
	wrapped := fmt.Errorf("ask failed: %w", base)

	assert.Equal(t, KindRetrieval, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindRetrieval))
	assert.False(t, IsKind(wrapped, KindSynthesis))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.False(t, IsKind(errors.New("boom"), KindDownload))
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("tika returned 422")
	e := NewExtractionError("无法解析文档", inner)

	require.ErrorIs(t, e, inner)
	assert.Equal(t, inner, errors.Unwrap(e))
}

func TestReason(t *testing.T) {
	e := NewSynthesisError("provider timeout", errors.New("context deadline exceeded"))
	assert.Equal(t, "provider timeout", Reason(fmt.Errorf("outer: %w", e)))
	assert.Equal(t, "plain failure", Reason(errors.New("plain failure")))
	assert.Equal(t, "", Reason(nil))
}
