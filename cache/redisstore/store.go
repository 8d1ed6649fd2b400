// Package redisstore 基于 Redis 的共享查询缓存
//
// 多个进程共用同一份列表页缓存。键为 prefix + 查询键文本，值为 JSON，
// 按命名空间失效时用 SCAN 遍历匹配的键再批量删除，避免在生产环境使用 KEYS。
package redisstore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"invdash/errors"
	"invdash/logging"
	"invdash/patterns/retry"
)

const (
	DefaultPrefix = "invdash:query:"
	DefaultTTL    = 5 * time.Minute
	scanCount     = 100
)

// client 只包含用到的 go-redis 命令，便于测试替换
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Config Redis 缓存配置
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Retry    retry.Config
	Logger   logging.Logger
	// Client 外部注入的客户端，设置后忽略连接参数
	Client redis.UniversalClient
}

// Store 实现查询层的 SharedStore
type Store struct {
	client    client
	ownClient bool
	prefix    string
	ttl       time.Duration
	logger    logging.Logger
}

// New 创建并检查连接（带重试）
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	var (
		c   client
		own bool
	)
	if cfg.Client != nil {
		c = cfg.Client
	} else {
		c = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		own = true
	}
	return open(ctx, c, cfg, own)
}

func open(ctx context.Context, c client, cfg Config, own bool) (*Store, error) {
	s := newStore(c, cfg)
	s.ownClient = own

	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := c.Ping(ctx).Err(); err != nil {
			s.logger.Warn(ctx, "redis ping failed",
				logging.String("addr", cfg.Addr), logging.Int("attempt", attempt), logging.Error(err))
			return err
		}
		return nil
	}, cfg.Retry)
	if err != nil {
		if own {
			_ = c.Close()
		}
		return nil, errors.WrapError(err, errors.ErrCodeCache, "connect redis")
	}
	return s, nil
}

func newStore(c client, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("cache.redis")
	}
	return &Store{client: c, prefix: cfg.Prefix, ttl: cfg.TTL, logger: cfg.Logger}
}

// Get 读取缓存，不存在时第二个返回值为 false
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set 写入缓存，带 TTL
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

// DeleteNamespace 删除命名空间下的全部键，返回删除数量
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) (int, error) {
	pattern := s.prefix + escapeGlob(namespace) + `\?*`
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.logger.Debug(ctx, "redis namespace cleared",
		logging.String("namespace", namespace), logging.Int("deleted", deleted))
	return deleted, nil
}

// Close 关闭自己创建的客户端
func (s *Store) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globReplacer.Replace(s) }
