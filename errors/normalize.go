package errors

import (
	"context"
	stdErrors "errors"
	"net"
	"net/url"
)

// Normalize 将底层错误规范化为 AppError
//
// 注意：
//   - 已经是 IError 的错误原样返回；
//   - context.Canceled 归为 CANCELED，调用方据此丢弃而不是展示错误；
//   - 传输层错误（*url.Error、net.Error）归为 NETWORK_ERROR；
//   - 其它错误归为 INTERNAL_ERROR。
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(IError); ok {
		return err
	}
	if stdErrors.Is(err, context.Canceled) {
		return WrapError(err, ErrCodeCanceled, "request canceled")
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrCodeTimeout, "request timed out")
	}

	var urlErr *url.Error
	if stdErrors.As(err, &urlErr) {
		return WrapError(err, ErrCodeNetwork, "request failed")
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) {
		return WrapError(err, ErrCodeNetwork, "request failed")
	}
	return WrapError(err, ErrCodeInternal, "unexpected error")
}

// IsCanceled 判断错误是否源于取消
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return stdErrors.Is(err, context.Canceled) || IsErrorCode(err, ErrCodeCanceled)
}
