// Package devserver 本地开发与端到端测试用的库存 API 服务
//
// 数据保存在 SQLite（默认内存库）中，进程退出即丢失。
package devserver

import (
	"context"
	"net"
	"net/http"
	"sync"

	_ "modernc.org/sqlite"

	"invdash/config"
	"invdash/errors"
	"invdash/http/basic"
	"invdash/logging"
	core "invdash/storage/database"
	dbbasic "invdash/storage/database/basic"
	"invdash/validation"
)

// Server 实现 server.IServer
type Server struct {
	cfg    config.DevServer
	logger logging.Logger

	mu    sync.Mutex
	db    *dbbasic.DB
	store *Store
	http  *basic.HttpServer
	addr  string
	ready chan struct{}
}

func New(cfg config.DevServer, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.ComponentLogger("devserver")
	}
	return &Server{cfg: cfg, logger: logger, ready: make(chan struct{})}
}

func (s *Server) Name() string { return "invdash-devserver" }

func (s *Server) LoadConfig() error {
	fields := map[string]string{}
	for _, err := range []error{
		validation.ValidateRequired(s.cfg.Addr, config.KeyDevServerAddr),
		validation.ValidateRequired(s.cfg.DSN, config.KeyDevServerDSN),
		validation.ValidateNonNegative(s.cfg.SeedSales, config.KeyDevServerSalesSeed),
	} {
		for k, v := range errors.FieldErrors(err) {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return errors.NewValidationError("invalid devserver config", fields)
	}
	return nil
}

// SetupDependencies 打开数据库、建表、写入种子数据并注册路由
func (s *Server) SetupDependencies(ctx context.Context) error {
	// 内存库只在连接存活期间存在，固定为单连接
	db, err := dbbasic.New(ctx, core.DBConfig{Driver: "sqlite", DSN: s.cfg.DSN, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		return err
	}
	if err := db.ExecScript(ctx, schema...); err != nil {
		_ = db.Close()
		return err
	}

	store := NewStore(db)
	if s.cfg.Seed {
		if err := store.Seed(ctx, s.cfg.SeedSales); err != nil {
			_ = db.Close()
			return err
		}
	}

	srv := basic.NewHTTPServer(basic.DefaultWebConfig(), s.logger)
	srv.Use(basic.RequestID(), basic.AccessLog(s.logger), basic.Recover(s.logger))
	(&handlers{store: store}).register(srv)

	s.mu.Lock()
	s.db, s.store, s.http = db, store, srv
	s.mu.Unlock()
	return nil
}

func (s *Server) StartBackgroundTasks(ctx context.Context) error {
	store := s.Store()
	if store == nil {
		return nil
	}
	cats, products, sales, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "database ready",
		logging.Int("categories", cats), logging.Int("products", products), logging.Int("sales", sales))
	return nil
}

// Run 监听 cfg.Addr 直到 Shutdown
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "listen "+s.cfg.Addr)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	close(s.ready)
	return s.http.Serve(ln)
}

// Ready 监听开始后关闭
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr 实际监听地址（cfg.Addr 端口为 0 时有用）
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, db := s.http, s.db
	s.mu.Unlock()

	var firstErr error
	if srv != nil {
		firstErr = srv.Stop(ctx)
	}
	if db != nil {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = errors.WrapError(err, errors.ErrCodeDatabase, "close database")
		}
	}
	return firstErr
}

// Handler 路由，SetupDependencies 之后可用
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.http.Handler()
}

func (s *Server) Store() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}
