package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer  ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// 检索与生成错误
	ErrCodeEmptyContent          ErrorCode = "EMPTY_CONTENT"
	ErrCodeEmbeddingUnavailable  ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrCodeIndexUnavailable      ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeWebSearchUnavailable  ErrorCode = "WEB_SEARCH_UNAVAILABLE"
	ErrCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"

	// 资源错误
	ErrCodeDocumentNotFound     ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	ErrCodeSnapshotNotFound     ErrorCode = "SNAPSHOT_NOT_FOUND"

	// 数据库错误
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewBusinessError 创建业务错误
func NewBusinessError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeBusiness,
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewExternalError 创建外部服务错误
func NewExternalError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
	}
}

// NewEmptyContentError 文档无可分块内容
func NewEmptyContentError(documentID string) *AppError {
	return &AppError{
		Code:     ErrCodeEmptyContent,
		Message:  "document has no chunkable content",
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
		Details:  map[string]string{"document_id": documentID},
	}
}

// NewEmbeddingUnavailableError 向量化服务不可用
func NewEmbeddingUnavailableError(cause error) *AppError {
	return (&AppError{
		Code:     ErrCodeEmbeddingUnavailable,
		Message:  "embedding backend unavailable",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
	}).WithCause(cause)
}

// NewIndexUnavailableError 向量索引不可用
func NewIndexUnavailableError(cause error) *AppError {
	return (&AppError{
		Code:     ErrCodeIndexUnavailable,
		Message:  "vector index unavailable",
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusServiceUnavailable,
	}).WithCause(cause)
}

// NewWebSearchUnavailableError 网络搜索不可用（调用方必须降级，不得失败整个请求）
func NewWebSearchUnavailableError(cause error) *AppError {
	return (&AppError{
		Code:     ErrCodeWebSearchUnavailable,
		Message:  "web search unavailable",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
	}).WithCause(cause)
}

// NewGenerationUnavailableError 生成服务不可用
func NewGenerationUnavailableError(cause error) *AppError {
	return (&AppError{
		Code:     ErrCodeGenerationUnavailable,
		Message:  "answer generation failed",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
	}).WithCause(cause)
}

// NewDocumentNotFoundError 文档不存在
func NewDocumentNotFoundError(documentID string) *AppError {
	return &AppError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("document %s not found", documentID),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewConversationNotFoundError 对话不存在或已过期
func NewConversationNotFoundError(conversationID string) *AppError {
	return &AppError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("conversation %s not found or expired", conversationID),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// getHTTPCodeForError 根据错误码获取HTTP状态码
func getHTTPCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeDocumentNotFound, ErrCodeConversationNotFound, ErrCodeSnapshotNotFound:
		return http.StatusNotFound
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeEmptyContent, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsCode 检查错误链中是否包含指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "internal server error").WithCause(err)
}
