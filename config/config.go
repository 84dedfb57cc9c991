// Package config 汇总运行配置：默认值 → 环境变量 → 命令行参数。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ByLCY/sampletag/blob"
	"github.com/ByLCY/sampletag/cache"
)

// EnvPrefix 是环境变量前缀。
const EnvPrefix = "SAMPLETAG"

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig 数据库配置
type StoreConfig struct {
	Driver string
	DSN    string
}

// Config 是进程级配置。Redis.Addr 为空时不启用缓存。
type Config struct {
	Log        LogConfig
	Store      StoreConfig
	Blob       blob.Config
	Redis      cache.RedisOptions
	CacheTTL   time.Duration
	Background string
}

// Default 返回默认配置：本地 SQLite、本地文件归档、不启用缓存。
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "json"},
		Store:    StoreConfig{Driver: "sqlite", DSN: "sampletag.db"},
		Blob:     blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./blobdata"},
		CacheTTL: cache.DefaultTTL,
	}
}

// LoadFromEnv 从环境变量覆盖配置，变量名为 prefix + "_" + 名称。
func (c *Config) LoadFromEnv(prefix string) error {
	get := func(name string) string { return os.Getenv(prefix + "_" + name) }
	setString := func(dst *string, name string) {
		if v := get(name); v != "" {
			*dst = v
		}
	}

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.DSN, "STORE_DSN")
	if v := get("BLOB_DRIVER"); v != "" {
		c.Blob.Driver = blob.Driver(v)
	}
	setString(&c.Blob.FSRoot, "BLOB_FS_ROOT")
	setString(&c.Blob.S3.Bucket, "BLOB_S3_BUCKET")
	setString(&c.Blob.S3.Region, "BLOB_S3_REGION")
	setString(&c.Blob.S3.Endpoint, "BLOB_S3_ENDPOINT")
	setString(&c.Blob.S3.AccessKeyID, "BLOB_S3_ACCESS_KEY_ID")
	setString(&c.Blob.S3.SecretAccessKey, "BLOB_S3_SECRET_ACCESS_KEY")
	if v := get("BLOB_S3_PATH_STYLE"); v != "" {
		c.Blob.S3.PathStyle = strings.EqualFold(v, "true") || v == "1"
	}
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	if v := get("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s_REDIS_DB: %w", prefix, err)
		}
		c.Redis.DB = db
	}
	if v := get("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s_CACHE_TTL: %w", prefix, err)
		}
		c.CacheTTL = ttl
	}
	setString(&c.Background, "RENDER_BACKGROUND")
	return nil
}

// Load 返回默认配置叠加 SAMPLETAG_* 环境变量后的结果。
func Load() (Config, error) {
	cfg := Default()
	if err := cfg.LoadFromEnv(EnvPrefix); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
