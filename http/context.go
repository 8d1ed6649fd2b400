package http

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// IRequestReader 请求读取
type IRequestReader interface {
	GetMethod() string
	GetPath() string
	GetParam(key string) string
	GetQuery(key string) string
	GetQueryParams() url.Values
	GetHeader(key string) string
	FormFile(name string) (multipart.File, *multipart.FileHeader, error)
	GetRequest() *http.Request
}

// IResponseWriter 响应写入
type IResponseWriter interface {
	SetHeader(key, value string)
	JSON(code int, obj any) error
	Data(code int, contentType string, data []byte) error
	// Stream 先写状态码再由 fn 逐步写入响应体
	Stream(code int, contentType string, fn func(w io.Writer) error) error
	Status() int
	Written() bool
}

// IHttpContext 组合接口
type IHttpContext interface {
	IRequestReader
	IResponseWriter

	BindJSON(obj any) error

	// Context 请求级 context，客户端断开时取消
	Context() context.Context
	SetContext(ctx context.Context)

	Set(key string, value any)
	Get(key string) (any, bool)
}
