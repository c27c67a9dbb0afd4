package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	appErr := NewEmbeddingUnavailableError(cause)

	assert.Contains(t, appErr.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(appErr))
}

func TestIsCode(t *testing.T) {
	err := NewConversationNotFoundError("conv-1")
	assert.True(t, IsCode(err, ErrCodeConversationNotFound))
	assert.False(t, IsCode(err, ErrCodeDocumentNotFound))

	// 包装后依然可以识别错误码
	wrapped := fmt.Errorf("请求失败: %w", err)
	assert.True(t, IsCode(wrapped, ErrCodeConversationNotFound))

	assert.False(t, IsCode(errors.New("plain"), ErrCodeConversationNotFound))
	assert.False(t, IsCode(nil, ErrCodeConversationNotFound))
}

func TestNotFoundErrorsMapTo404(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NewDocumentNotFoundError("d").HTTPCode)
	assert.Equal(t, http.StatusNotFound, NewConversationNotFoundError("c").HTTPCode)
}

func TestEmptyContentErrorIsBadRequest(t *testing.T) {
	err := NewEmptyContentError("")
	assert.Equal(t, ErrCodeEmptyContent, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.HTTPCode)
}

func TestGetAppError_WrapsUnknown(t *testing.T) {
	plain := errors.New("boom")
	appErr := GetAppError(plain)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrCodeInternalServer, appErr.Code)

	// 已是AppError时原样返回
	original := NewValidationError("bad input")
	assert.Equal(t, original, GetAppError(original))
	assert.Equal(t, original, GetAppError(fmt.Errorf("wrapped: %w", original)))
}
