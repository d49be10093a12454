package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Bot        BotConfig        `mapstructure:"bot"`
	Platform   PlatformConfig   `mapstructure:"platform"`
	Generation GenerationConfig `mapstructure:"generation"`
	Recall     RecallConfig     `mapstructure:"recall"`
	Components ComponentsConfig `mapstructure:"components"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// BotConfig 机器人自身账号，用于识别自己发出的消息
type BotConfig struct {
	AccountID string `mapstructure:"account_id"`
}

// PlatformConfig OneBot 风格的平台 HTTP 接口
type PlatformConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type GenerationConfig struct {
	DefaultModel  string        `mapstructure:"default_model"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
	DownloadCache time.Duration `mapstructure:"download_cache"`
}

type RecallConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Window      time.Duration `mapstructure:"window"`
	Limit       int           `mapstructure:"limit"`
	Commands    []string      `mapstructure:"commands"`
}

type ComponentsConfig struct {
	EnableVerboseDebug bool `mapstructure:"enable_verbose_debug"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type StorageConfig struct {
	Type           string        `mapstructure:"type"`
	DataDir        string        `mapstructure:"data_dir"`
	CacheSize      int           `mapstructure:"cache_size"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	Redis          RedisConfig   `mapstructure:"redis"`
}

// RedisConfig 仅在 storage.type 为 redis 时使用
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

var (
	cfg *Config
	v   = viper.New()
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 11*time.Minute)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("platform.timeout", 30*time.Second)
	v.SetDefault("generation.default_model", "model1")
	v.SetDefault("generation.max_concurrent", 4)
	v.SetDefault("generation.download_cache", 5*time.Minute)
	v.SetDefault("recall.grace_period", 4*time.Second)
	v.SetDefault("recall.window", 10*time.Second)
	v.SetDefault("recall.limit", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.cache_size", 100)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key_prefix", "artjournal:")
	v.SetDefault("storage.redis.ttl", 24*time.Hour)
	v.SetDefault("proxy.timeout", 600)
}

func Load(configPath string) (*Config, error) {
	nv := viper.New()
	nv.SetConfigFile(configPath)
	nv.SetConfigType("yaml")

	nv.SetEnvPrefix("ARTJOURNAL")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()
	setDefaults(nv)

	if err := nv.ReadInConfig(); err != nil {
		return nil, err
	}

	loaded := &Config{}
	if err := nv.Unmarshal(loaded); err != nil {
		return nil, err
	}

	// 配置文件未设置时回退到环境变量
	if loaded.Bot.AccountID == "" {
		if id := os.Getenv("BOT_ACCOUNT_ID"); id != "" {
			loaded.Bot.AccountID = id
		}
	}

	cfg = loaded
	v = nv
	return cfg, nil
}

func Get() *Config {
	return cfg
}

// Settings 返回原始的 key-path 配置读取器，供 models.* 等动态键查询
func Settings() *viper.Viper {
	return v
}
