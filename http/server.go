// Package http 定义 HTTP 服务端的最小抽象
//
// 处理器返回 error，由服务器统一转换为 {"detail": "..."} 响应。
package http

import (
	"context"
	"net/http"
)

// IHttpServer HTTP 服务器接口
type IHttpServer interface {
	GET(path string, handler HttpHandler) IHttpServer
	POST(path string, handler HttpHandler) IHttpServer
	PUT(path string, handler HttpHandler) IHttpServer
	DELETE(path string, handler HttpHandler) IHttpServer
	PATCH(path string, handler HttpHandler) IHttpServer

	Use(middleware ...Middleware) IHttpServer

	// Handler 返回已注册全部路由的 http.Handler（测试可直接挂到 httptest）
	Handler() http.Handler

	Start(addr string) error
	Stop(ctx context.Context) error
}

// Middleware 定义 HTTP 中间件签名
type Middleware func(ctx IHttpContext, next func() error) error

// HttpHandler 处理器函数类型
type HttpHandler func(ctx IHttpContext) error
