package basic

import (
	"context"
	stdErrors "errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"invdash/errors"
	httpx "invdash/http"
	"invdash/logging"
)

// WebConfig 监听配置
type WebConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultWebConfig 默认超时
func DefaultWebConfig() WebConfig {
	return WebConfig{
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// HttpServer 基于标准库 net/http 的 IHttpServer 实现
type HttpServer struct {
	config      WebConfig
	logger      logging.Logger
	routes      []*route
	middlewares []httpx.Middleware

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	handler  http.Handler
}

type route struct {
	method  string
	pattern string
	handler httpx.HttpHandler
}

// NewHTTPServer 创建基于 net/http 的服务器
func NewHTTPServer(config WebConfig, logger logging.Logger) *HttpServer {
	if logger == nil {
		logger = logging.ComponentLogger("http")
	}
	return &HttpServer{config: config, logger: logger}
}

// 路由注册实现
func (s *HttpServer) GET(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodGet, path, handler)
}
func (s *HttpServer) POST(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodPost, path, handler)
}
func (s *HttpServer) PUT(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodPut, path, handler)
}
func (s *HttpServer) DELETE(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodDelete, path, handler)
}
func (s *HttpServer) PATCH(path string, handler httpx.HttpHandler) httpx.IHttpServer {
	return s.addRoute(http.MethodPatch, path, handler)
}

func (s *HttpServer) addRoute(method, path string, handler httpx.HttpHandler) httpx.IHttpServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, &route{method: method, pattern: path, handler: handler})
	s.handler = nil
	return s
}

// Use 全局中间件，按注册顺序由外到内执行
func (s *HttpServer) Use(middleware ...httpx.Middleware) httpx.IHttpServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware...)
	s.handler = nil
	return s
}

// Handler 构建（并缓存）路由树
func (s *HttpServer) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return s.handler
	}
	mux := http.NewServeMux()
	for _, r := range s.routes {
		mux.HandleFunc(r.method+" "+convertPathPattern(r.pattern), s.createHandler(r.handler))
	}
	s.handler = mux
	return mux
}

// Start 阻塞直到 Stop 被调用；正常关闭返回 nil
func (s *HttpServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "listen "+addr)
	}
	return s.Serve(ln)
}

// Serve 在给定 listener 上服务
func (s *HttpServer) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info(context.Background(), "http server listening", logging.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr 实际监听地址，未启动时为空
func (s *HttpServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *HttpServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// 将 :id 转为 {id}（Go 1.22+ PathValue 支持）
func convertPathPattern(pattern string) string {
	parts := strings.Split(pattern, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

func (s *HttpServer) createHandler(h httpx.HttpHandler) http.HandlerFunc {
	middlewares := append([]httpx.Middleware{}, s.middlewares...)
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := NewBaseHttpContext(w, req)
		if err := executeMiddlewareChain(ctx, middlewares, h); err != nil {
			WriteError(ctx, err)
		}
	}
}

func executeMiddlewareChain(ctx httpx.IHttpContext, middlewares []httpx.Middleware, handler httpx.HttpHandler) error {
	if len(middlewares) == 0 {
		return handler(ctx)
	}
	return middlewares[0](ctx, func() error { return executeMiddlewareChain(ctx, middlewares[1:], handler) })
}

// WriteError 以 {"detail": ...} 写出错误
//
// 带字段消息的校验错误写成 422 与 [{loc, msg, type}] 列表，字段名中的点号拆为 loc 的各段；
// 其它错误 detail 为消息文本。已经开始写响应时只能放弃。
func WriteError(ctx httpx.IHttpContext, err error) {
	if ctx.Written() {
		return
	}
	if fields := errors.FieldErrors(err); len(fields) > 0 {
		_ = ctx.JSON(http.StatusUnprocessableEntity, map[string]any{"detail": fieldDetails(fields)})
		return
	}
	detail := err.Error()
	var appErr errors.IError
	if stdErrors.As(errors.Normalize(err), &appErr) {
		detail = appErr.Message()
	}
	_ = ctx.JSON(StatusOf(err), map[string]string{"detail": detail})
}

type fieldDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func fieldDetails(fields map[string]string) []fieldDetail {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]fieldDetail, 0, len(names))
	for _, name := range names {
		out = append(out, fieldDetail{Loc: strings.Split(name, "."), Msg: fields[name], Type: "value_error"})
	}
	return out
}

// StatusOf 错误对应的 HTTP 状态码；FromStatus 构造的错误保留原状态码
func StatusOf(err error) int {
	if len(errors.FieldErrors(err)) > 0 {
		return http.StatusUnprocessableEntity
	}
	err = errors.Normalize(err)
	var appErr errors.IError
	if stdErrors.As(err, &appErr) {
		if s, ok := appErr.Details()["status"].(int); ok && s >= 400 {
			return s
		}
	}
	return errors.StatusForCode(errors.GetErrorCode(err))
}
