package errors

import (
	"context"
	"fmt"
	"net/http"
	"runtime"

	"invdash/logging"
)

// Wrap 包装错误，添加错误码；在 Debug 级别记录包装位置
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	logging.GetLogger().Debug(ctx, "wrap error",
		logging.String("msg", msg),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)))

	return WrapError(err, code, msg)
}

// WrapWithLog 包装错误并记录警告日志
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)
	logging.GetLogger().Warn(ctx, msg, allFields...)

	return WrapError(err, code, msg)
}

// NewValidationError 创建带字段消息的校验错误
func NewValidationError(msg string, fields map[string]string) error {
	err := NewError(ErrCodeValidation, msg)
	if len(fields) > 0 {
		return err.WithContext("fields", fields)
	}
	return err
}

// CodeForStatus 将 HTTP 状态码映射为错误码
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusConflict:
		return ErrCodeConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrCodeInvalidInput
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServiceUnavailable
	default:
		return ErrCodeInternal
	}
}

// StatusForCode 将错误码映射为 HTTP 状态码（开发服务器使用）
func StatusForCode(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeInvalidInput, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus 根据响应状态码与服务端 detail 构造错误
func FromStatus(status int, detail string) error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	return NewError(CodeForStatus(status), detail).WithContext("status", status)
}
