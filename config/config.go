// Package config 分层配置：默认值、配置文件、INVDASH_ 前缀的环境变量
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "invdash/errors"
	"invdash/validation"
)

// EnvPrefix 环境变量前缀，如 INVDASH_API_BASE_URL
const EnvPrefix = "INVDASH"

// 配置键
const (
	KeyAPIBaseURL         = "api.base_url"
	KeyAPITimeout         = "api.timeout"
	KeyTablePageSize      = "table.page_size"
	KeyTableDebounce      = "table.search_debounce"
	KeyCacheMaxEntries    = "cache.max_entries"
	KeyCacheStaleTime     = "cache.stale_time"
	KeyRedisAddr          = "redis.addr"
	KeyRedisUsername      = "redis.username"
	KeyRedisPassword      = "redis.password"
	KeyRedisDB            = "redis.db"
	KeyRedisPrefix        = "redis.prefix"
	KeyRedisTTL           = "redis.ttl"
	KeyNATSURL            = "nats.url"
	KeyNATSSubjectPrefix  = "nats.subject_prefix"
	KeyBusTransport       = "bus.transport"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeyDevServerAddr      = "devserver.addr"
	KeyDevServerDSN       = "devserver.dsn"
	KeyDevServerSeed      = "devserver.seed"
	KeyDevServerSalesSeed = "devserver.seed_sales"
)

// 默认值
const (
	DefaultAPIBaseURL = "http://localhost:8000"
	DefaultLogLevel   = "info"
)

// 可选的页大小，与查询层一致
var pageSizes = []int{10, 20, 50, 100}

type API struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Table struct {
	PageSize       int           `mapstructure:"page_size"`
	SearchDebounce time.Duration `mapstructure:"search_debounce"`
}

type Cache struct {
	MaxEntries int           `mapstructure:"max_entries"`
	StaleTime  time.Duration `mapstructure:"stale_time"`
}

// Redis 地址为空时不启用共享缓存
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Enabled 是否配置了 Redis
func (r Redis) Enabled() bool { return r.Addr != "" }

// NATS 地址为空时使用进程内广播
type NATS struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func (n NATS) Enabled() bool { return n.URL != "" }

// 失效广播的传输方式
const (
	BusAuto  = "auto"
	BusLocal = "local"
	BusNATS  = "nats"
	BusRedis = "redis"
)

// Bus auto 表示配置了 NATS 时用 NATS，否则只在进程内广播
type Bus struct {
	Transport string `mapstructure:"transport"`
}

// Resolve 展开 auto
func (b Bus) Resolve(n NATS) string {
	if b.Transport != BusAuto && b.Transport != "" {
		return b.Transport
	}
	if n.Enabled() {
		return BusNATS
	}
	return BusLocal
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DevServer struct {
	Addr      string `mapstructure:"addr"`
	DSN       string `mapstructure:"dsn"`
	Seed      bool   `mapstructure:"seed"`
	SeedSales int    `mapstructure:"seed_sales"`
}

// Config 完整配置
type Config struct {
	API       API       `mapstructure:"api"`
	Table     Table     `mapstructure:"table"`
	Cache     Cache     `mapstructure:"cache"`
	Redis     Redis     `mapstructure:"redis"`
	NATS      NATS      `mapstructure:"nats"`
	Bus       Bus       `mapstructure:"bus"`
	Log       Log       `mapstructure:"log"`
	DevServer DevServer `mapstructure:"devserver"`
}

// SetDefaults 写入默认值
func SetDefaults(vp *viper.Viper) {
	vp.SetDefault(KeyAPIBaseURL, DefaultAPIBaseURL)
	vp.SetDefault(KeyAPITimeout, 15*time.Second)
	vp.SetDefault(KeyTablePageSize, 10)
	vp.SetDefault(KeyTableDebounce, 500*time.Millisecond)
	vp.SetDefault(KeyCacheMaxEntries, 512)
	vp.SetDefault(KeyCacheStaleTime, 30*time.Second)
	vp.SetDefault(KeyRedisAddr, "")
	vp.SetDefault(KeyRedisUsername, "")
	vp.SetDefault(KeyRedisPassword, "")
	vp.SetDefault(KeyRedisDB, 0)
	vp.SetDefault(KeyRedisPrefix, "invdash:query:")
	vp.SetDefault(KeyRedisTTL, 5*time.Minute)
	vp.SetDefault(KeyNATSURL, "")
	vp.SetDefault(KeyNATSSubjectPrefix, "invdash.")
	vp.SetDefault(KeyBusTransport, BusAuto)
	vp.SetDefault(KeyLogLevel, DefaultLogLevel)
	vp.SetDefault(KeyLogFormat, "console")
	vp.SetDefault(KeyDevServerAddr, ":8000")
	vp.SetDefault(KeyDevServerDSN, "file:invdash?mode=memory&cache=shared")
	vp.SetDefault(KeyDevServerSeed, true)
	vp.SetDefault(KeyDevServerSalesSeed, 200)
}

// New 创建带默认值与环境变量绑定的 viper 实例
func New() *viper.Viper {
	vp := viper.New()
	SetDefaults(vp)
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	return vp
}

// Load 读取配置
//
// path 为空时不读文件；文件格式由扩展名决定（yaml、toml、ini、json）。
// 环境变量优先于文件，文件优先于默认值。
func Load(path string) (*Config, error) {
	vp := New()
	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, apperrors.WrapError(err, apperrors.ErrCodeNotFound, "config file not found: "+path)
			}
			return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "read config "+path)
		}
	}
	return FromViper(vp)
}

// FromViper 从已准备好的 viper 实例解析并校验
func FromViper(vp *viper.Viper) (*Config, error) {
	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	checks := []error{
		validation.ValidateRequired(c.API.BaseURL, KeyAPIBaseURL),
		validation.ValidateIntEnum(c.Table.PageSize, KeyTablePageSize, pageSizes),
		validation.ValidateNonNegative(c.API.Timeout, KeyAPITimeout),
		validation.ValidateNonNegative(c.Table.SearchDebounce, KeyTableDebounce),
		validation.ValidateNonNegative(c.Cache.StaleTime, KeyCacheStaleTime),
		validation.ValidateNonNegative(c.Cache.MaxEntries, KeyCacheMaxEntries),
		validation.ValidateNonNegative(c.Redis.TTL, KeyRedisTTL),
		validation.ValidateNonNegative(c.DevServer.SeedSales, KeyDevServerSalesSeed),
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		checks = append(checks, apperrors.NewValidationError(
			fmt.Sprintf("%s must be console or json", KeyLogFormat),
			map[string]string{KeyLogFormat: "must be console or json"}))
	}
	switch c.Bus.Resolve(c.NATS) {
	case BusLocal:
	case BusNATS:
		checks = append(checks, validation.ValidateRequired(c.NATS.URL, KeyNATSURL))
	case BusRedis:
		checks = append(checks, validation.ValidateRequired(c.Redis.Addr, KeyRedisAddr))
	default:
		checks = append(checks, apperrors.NewValidationError(
			fmt.Sprintf("%s must be auto, local, nats or redis", KeyBusTransport),
			map[string]string{KeyBusTransport: "must be auto, local, nats or redis"}))
	}

	fields := map[string]string{}
	var msgs []string
	for _, err := range checks {
		for k, v := range apperrors.FieldErrors(err) {
			fields[k] = v
			msgs = append(msgs, k+" "+v)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return apperrors.NewValidationError("invalid config: "+strings.Join(msgs, "; "), fields)
}
