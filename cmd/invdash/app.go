package main

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"invdash/cache/redisstore"
	"invdash/config"
	"invdash/errors"
	"invdash/inventory"
	"invdash/logging"
	"invdash/messaging"
	"invdash/messaging/transport/local"
	"invdash/messaging/transport/natsbus"
	"invdash/messaging/transport/redisstreams"
	"invdash/notify"
	"invdash/query"
)

// app 命令共享的运行时
type app struct {
	in          io.Reader
	out, errOut io.Writer

	vp       *viper.Viper
	cfgFile  string
	cfg      *config.Config
	logger   logging.Logger
	notifier notify.Notifier

	api         *inventory.Client
	qc          *query.Client
	mutations   *inventory.Mutations
	transport   messaging.Transport
	broadcaster *query.Broadcaster
	closers     []func() error
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{in: in, out: &lockedWriter{w: out}, errOut: errOut, vp: config.New()}
}

// lockedWriter 视图重绘与通知可能来自不同 goroutine
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// loadConfig 默认值 < 配置文件 < 环境变量 < 命令行参数
func (a *app) loadConfig(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.vp.SetConfigFile(a.cfgFile)
		if err := a.vp.ReadInConfig(); err != nil {
			return errors.WrapError(err, errors.ErrCodeInvalidInput, "read config "+a.cfgFile)
		}
	}
	flags := cmd.Root().PersistentFlags()
	if err := a.vp.BindPFlag(config.KeyAPIBaseURL, flags.Lookup("api")); err != nil {
		return err
	}
	if err := a.vp.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level")); err != nil {
		return err
	}
	cfg, err := config.FromViper(a.vp)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	zl := logging.NewZapLogger(level, cfg.Log.Format)
	logging.SetLogger(zl)
	a.logger = zl.WithFields(logging.String("component", "cli"))
	a.closers = append(a.closers, func() error {
		_ = zl.Sync()
		return nil
	})
	a.notifier = notify.Multi{notify.NewWriter(a.out), notify.NewLog(a.logger)}
	return nil
}

// connect 装配 API 客户端、查询缓存与可选的 Redis、NATS
func (a *app) connect(ctx context.Context) error {
	if a.api != nil {
		return nil
	}
	api, err := inventory.NewClient(inventory.ClientOptions{
		BaseURL: a.cfg.API.BaseURL,
		Timeout: a.cfg.API.Timeout,
	})
	if err != nil {
		return err
	}

	opts := query.Options{StaleTime: a.cfg.Cache.StaleTime, MaxEntries: a.cfg.Cache.MaxEntries}
	if r := a.cfg.Redis; r.Enabled() {
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr: r.Addr, Username: r.Username, Password: r.Password, DB: r.DB,
			Prefix: r.Prefix, TTL: r.TTL,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		opts.Store = store
	}
	qc := query.NewClient(opts)

	transport, err := a.newTransport()
	if err != nil {
		return err
	}
	b, err := query.NewBroadcaster(qc, transport)
	if err != nil {
		return err
	}
	if err := transport.Start(ctx); err != nil {
		_ = b.Close()
		return errors.WrapError(err, errors.ErrCodeQueue, "start invalidation transport")
	}
	a.closers = append(a.closers, b.Close, transport.Close)

	a.api, a.qc, a.transport, a.broadcaster = api, qc, transport, b
	a.mutations = inventory.NewMutations(qc, api, a.notifier)
	return nil
}

// newTransport 按 bus.transport 选择失效广播通道
func (a *app) newTransport() (messaging.Transport, error) {
	switch a.cfg.Bus.Resolve(a.cfg.NATS) {
	case config.BusNATS:
		n := a.cfg.NATS
		return natsbus.NewTransport(natsbus.Config{URL: n.URL, SubjectPrefix: n.SubjectPrefix}), nil
	case config.BusRedis:
		r := a.cfg.Redis
		t, err := redisstreams.NewTransport(redisstreams.Config{
			Addr: r.Addr, Username: r.Username, Password: r.Password, DB: r.DB,
			StreamPrefix: strings.TrimSuffix(r.Prefix, "query:") + "bus:",
		})
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeQueue, "create redis streams transport")
		}
		return t, nil
	default:
		return local.NewTransport(local.Config{}), nil
	}
}

// close 逆序释放
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn(context.Background(), "close failed", logging.Error(err))
		}
	}
	a.closers = nil
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := newApp(in, out, errOut)
	root := &cobra.Command{
		Use:           "invdash",
		Short:         "Inventory dashboard client for categories, products and sales",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.SetIn(in)
	root.SetOut(a.out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, toml, ini or json)")
	flags.String("api", config.DefaultAPIBaseURL, "inventory API base URL")
	flags.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")

	root.AddCommand(
		newCategoriesCmd(a),
		newProductsCmd(a),
		newDashboardCmd(a),
		newExportCmd(a),
		newShellCmd(a),
		newDevServerCmd(a),
	)
	return root
}

// run 包装需要 API 的命令：连接、执行、输出错误
func (a *app) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		defer a.close()
		if err := a.connect(ctx); err != nil {
			return a.fail(err)
		}
		if err := fn(ctx, cmd, args); err != nil {
			return a.fail(err)
		}
		return nil
	}
}

// fail 打印错误；校验错误逐字段列出
func (a *app) fail(err error) error {
	if fields := errors.FieldErrors(err); len(fields) > 0 {
		lines := make([]string, 0, len(fields))
		for k, v := range fields {
			lines = append(lines, "  "+k+": "+v)
		}
		slices.Sort(lines)
		_, _ = io.WriteString(a.errOut, "invalid input:\n"+strings.Join(lines, "\n")+"\n")
		return err
	}
	msg := err.Error()
	if appErr, ok := err.(errors.IError); ok {
		msg = appErr.Message()
	}
	_, _ = io.WriteString(a.errOut, "error: "+msg+"\n")
	return err
}
