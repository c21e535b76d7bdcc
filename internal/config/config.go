package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Etsy     EtsyConfig     `mapstructure:"etsy"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Sync     SyncConfig     `mapstructure:"sync"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EtsyConfig Etsy 开放平台相关配置
type EtsyConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	TokenURL      string        `mapstructure:"token_url"`
	RedirectURI   string        `mapstructure:"redirect_uri"`
	Scopes        string        `mapstructure:"scopes"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	DailyLimit    int64         `mapstructure:"daily_limit"`
	WarnThreshold int64         `mapstructure:"warn_threshold"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// EncryptionKey 用于加密店铺 Token，至少 32 字符，缺失时拒绝启动
	EncryptionKey string `mapstructure:"encryption_key"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

// SyncConfig 定时同步配置 (cron 表达式)
type SyncConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	OrderSpec     string `mapstructure:"order_spec"`
	ProductSpec   string `mapstructure:"product_spec"`
	TokenSpec     string `mapstructure:"token_spec"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// Load 加载配置文件并合并环境变量 (前缀 ETSY_ERP)
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ETSY_ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("etsy.base_url", "https://openapi.etsy.com/v3/application")
	v.SetDefault("etsy.token_url", "https://api.etsy.com/v3/public/oauth/token")
	v.SetDefault("etsy.scopes", "transactions_r transactions_w listings_r shops_r email_r")
	v.SetDefault("etsy.daily_limit", 10000)
	v.SetDefault("etsy.warn_threshold", 9000)
	v.SetDefault("etsy.timeout", "30s")
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.order_spec", "0 */15 * * * *")
	v.SetDefault("sync.product_spec", "0 */30 * * * *")
	v.SetDefault("sync.token_spec", "0 */45 * * * *")
	v.SetDefault("sync.max_concurrent", 3)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate 启动前的硬校验
func (c Config) validate() error {
	if c.Etsy.APIKey == "" {
		return fmt.Errorf("缺少 etsy.api_key 配置")
	}
	if len(c.Etsy.EncryptionKey) < 32 {
		return fmt.Errorf("etsy.encryption_key 必须至少 32 字符")
	}
	return nil
}
