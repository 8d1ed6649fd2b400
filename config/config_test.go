package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invdash/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 10, cfg.Table.PageSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Table.SearchDebounce)
	assert.Equal(t, 30*time.Second, cfg.Cache.StaleTime)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.NATS.Enabled())
	assert.Equal(t, "invdash:query:", cfg.Redis.Prefix)
	assert.True(t, cfg.DevServer.Seed)
	assert.Equal(t, BusLocal, cfg.Bus.Resolve(cfg.NATS))
}

func TestBus_Resolve(t *testing.T) {
	nats := NATS{URL: "nats://localhost:4222"}
	assert.Equal(t, BusNATS, Bus{Transport: BusAuto}.Resolve(nats))
	assert.Equal(t, BusLocal, Bus{}.Resolve(NATS{}))
	assert.Equal(t, BusRedis, Bus{Transport: BusRedis}.Resolve(nats))
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invdash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://file:8000
  timeout: 3s
table:
  page_size: 50
redis:
  addr: localhost:6379
`), 0o644))

	t.Setenv("INVDASH_API_BASE_URL", "http://env:9000")
	t.Setenv("INVDASH_NATS_URL", "nats://localhost:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:9000", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 50, cfg.Table.PageSize)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"页大小不在枚举内", func(c *Config) { c.Table.PageSize = 15 }, KeyTablePageSize},
		{"负的超时", func(c *Config) { c.API.Timeout = -time.Second }, KeyAPITimeout},
		{"负的缓存时长", func(c *Config) { c.Cache.StaleTime = -1 }, KeyCacheStaleTime},
		{"未知日志格式", func(c *Config) { c.Log.Format = "xml" }, KeyLogFormat},
		{"缺少地址", func(c *Config) { c.API.BaseURL = "" }, KeyAPIBaseURL},
		{"未知广播方式", func(c *Config) { c.Bus.Transport = "kafka" }, KeyBusTransport},
		{"Redis 广播缺少地址", func(c *Config) { c.Bus.Transport = BusRedis }, KeyRedisAddr},
		{"NATS 广播缺少地址", func(c *Config) { c.Bus.Transport = BusNATS }, KeyNATSURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.edit(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Contains(t, errors.FieldErrors(err), tt.field)
		})
	}
}

func TestFromViper_Invalid(t *testing.T) {
	vp := New()
	vp.Set(KeyTablePageSize, 7)
	_, err := FromViper(vp)
	assert.True(t, errors.IsValidation(err))
}
