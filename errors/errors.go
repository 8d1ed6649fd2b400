// Package errors 提供带错误码的应用错误
//
// 错误分三类对外呈现：
//   - 校验错误（VALIDATION_ERROR），提交前在客户端产生，按字段携带消息；
//   - 请求错误（NETWORK_ERROR 以及由 HTTP 状态码映射出的错误码），以通知形式呈现；
//   - 取消（CANCELED），由视图切换或组件销毁触发，从不作为错误状态呈现。
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeNetwork            ErrorCode = "NETWORK_ERROR"
	ErrCodeCanceled           ErrorCode = "CANCELED"
	ErrCodeStale              ErrorCode = "STALE"
	ErrCodeCache              ErrorCode = "CACHE_ERROR"
	ErrCodeQueue              ErrorCode = "QUEUE_ERROR"
	ErrCodeDatabase           ErrorCode = "DATABASE_ERROR"
)

// IError 错误接口
type IError interface {
	error

	// Code 获取错误代码
	Code() ErrorCode

	// Message 获取错误消息
	Message() string

	// Cause 获取原始错误
	Cause() error

	// Details 获取错误详情
	Details() map[string]any

	// WithDetails 返回合并了详情的新错误
	WithDetails(details map[string]any) IError

	// WithContext 返回附加单个上下文键值的新错误
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// NewErrorWithCause 创建带原因的错误
func NewErrorWithCause(code ErrorCode, message string, cause error) IError {
	return &AppError{
		code:    code,
		message: message,
		cause:   cause,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return NewErrorWithCause(code, message, err)
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }

func (e *AppError) Message() string { return e.message }

func (e *AppError) Cause() error { return e.cause }

// Stack 获取创建时的调用栈
func (e *AppError) Stack() string { return e.stack }

func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Is 同错误码的 AppError 视为相等，否则沿 cause 链比较
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithDetails(details map[string]any) IError {
	merged := copyMap(e.details)
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: merged, stack: e.stack}
}

func (e *AppError) WithContext(key string, value any) IError {
	merged := copyMap(e.details)
	merged[key] = value
	return &AppError{code: e.code, message: e.message, cause: e.cause, details: merged, stack: e.stack}
}

// 预定义错误变量（用于 errors.Is 按错误码比较）
var (
	ErrInternal     = NewError(ErrCodeInternal, "internal error")
	ErrInvalidInput = NewError(ErrCodeInvalidInput, "invalid input")
	ErrNotFound     = NewError(ErrCodeNotFound, "resource not found")
	ErrConflict     = NewError(ErrCodeConflict, "resource conflict")
	ErrValidation   = NewError(ErrCodeValidation, "validation failed")
	ErrNetwork      = NewError(ErrCodeNetwork, "network error")
	ErrCanceled     = NewError(ErrCodeCanceled, "request canceled")
)

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// IsErrorCode 检查是否为指定错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// GetErrorCode 获取错误代码，非 AppError 返回 INTERNAL_ERROR
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

// FieldErrors 返回校验错误携带的字段消息（无则返回 nil）
func FieldErrors(err error) map[string]string {
	var appErr *AppError
	if !stdErrors.As(err, &appErr) {
		return nil
	}
	fields, _ := appErr.Details()["fields"].(map[string]string)
	return fields
}

func captureStack() string {
	const depth = 16
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return builder.String()
}

func copyMap(original map[string]any) map[string]any {
	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
