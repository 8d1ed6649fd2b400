package basic

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"invdash/errors"
	httpx "invdash/http"
	"invdash/logging"
)

// RequestIDHeader 请求标识头，缺失时生成
const RequestIDHeader = "X-Request-ID"

// RequestID 读取或生成请求标识并写回响应头
func RequestID() httpx.Middleware {
	return func(ctx httpx.IHttpContext, next func() error) error {
		id := ctx.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.SetHeader(RequestIDHeader, id)
		return next()
	}
}

// AccessLog 记录方法、路径、状态码与耗时
func AccessLog(logger logging.Logger) httpx.Middleware {
	return func(ctx httpx.IHttpContext, next func() error) error {
		start := time.Now()
		err := next()

		status := ctx.Status()
		if err != nil {
			status = StatusOf(err)
		}
		id, _ := ctx.Get("request_id")
		fields := []logging.Field{
			logging.String("method", ctx.GetMethod()),
			logging.String("path", ctx.GetPath()),
			logging.Int("status", status),
			logging.Duration("elapsed", time.Since(start)),
			logging.Any("request_id", id),
		}
		if status >= 500 {
			logger.Error(ctx.Context(), "request failed", append(fields, logging.Error(err))...)
		} else {
			logger.Info(ctx.Context(), "request", fields...)
		}
		return err
	}
}

// Recover 把 panic 转换为 500
func Recover(logger logging.Logger) httpx.Middleware {
	return func(ctx httpx.IHttpContext, next func() error) (err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error(ctx.Context(), "handler panic", logging.Any("panic", p))
				err = errors.NewError(errors.ErrCodeInternal, fmt.Sprint(p))
			}
		}()
		return next()
	}
}
