package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 整個服務的配置
//
// 載入順序：DefaultConfig → YAML 檔案 → 環境變數。
// 後者覆蓋前者，部署時通常只需要設定 REALTIME_JWT_SECRET 與 DATABASE_URL。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Invite   InviteConfig   `yaml:"invite"`
	Session  SessionConfig  `yaml:"session"`
	Postgres PostgresConfig `yaml:"postgres"`
	Bus      BusConfig      `yaml:"bus"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP / WebSocket 服務配置
type ServerConfig struct {
	Port            int           `yaml:"port" env:"REALTIME_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"REALTIME_ALLOWED_ORIGINS" envSeparator:","`
	SendBuffer      int           `yaml:"send_buffer"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	RateBurst       int           `yaml:"rate_burst"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
}

// AuthConfig 身分 token 驗證配置
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"REALTIME_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"REALTIME_JWT_ISSUER"`
}

// InviteConfig 邀請配置
type InviteConfig struct {
	TTL time.Duration `yaml:"ttl" env:"REALTIME_INVITE_TTL"`
}

// SessionConfig 對局配置
type SessionConfig struct {
	ForfeitOnDisconnect bool          `yaml:"forfeit_on_disconnect" env:"REALTIME_FORFEIT_ON_DISCONNECT"`
	ForfeitGrace        time.Duration `yaml:"forfeit_grace" env:"REALTIME_FORFEIT_GRACE"`
	StoreTimeout        time.Duration `yaml:"store_timeout"`
	Mode                string        `yaml:"mode"`
}

// PostgresConfig 持久化閘道配置
//
// Enabled 為 false 時使用記憶體實作（僅供本機開發）。
type PostgresConfig struct {
	Enabled     bool   `yaml:"enabled" env:"REALTIME_POSTGRES_ENABLED"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password" env:"REALTIME_POSTGRES_PASSWORD"`
	DBName      string `yaml:"dbname"`
	MaxConns    int32  `yaml:"max_conns"`
	MinConns    int32  `yaml:"min_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// BusConfig 聊天通知匯流排配置
type BusConfig struct {
	Driver  string `yaml:"driver" env:"REALTIME_BUS_DRIVER"` // redis / nats / none
	Channel string `yaml:"channel" env:"REALTIME_BUS_CHANNEL"`
}

// RedisConfig Redis 連接配置
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NATSConfig NATS 連接配置
type NATSConfig struct {
	URL string `yaml:"url" env:"NATS_URL"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level" env:"REALTIME_LOG_LEVEL"`
	Format string `yaml:"format" env:"REALTIME_LOG_FORMAT"`
	Output string `yaml:"output"`
}

// 支援的匯流排驅動
const (
	BusDriverRedis = "redis"
	BusDriverNATS  = "nats"
	BusDriverNone  = "none"
)

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3002,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			SendBuffer:      256,
			MaxMessageSize:  4096,
			RateBurst:       120,
			RatePerSecond:   90,
		},
		Invite: InviteConfig{
			TTL: 60 * time.Second,
		},
		Session: SessionConfig{
			ForfeitOnDisconnect: true,
			ForfeitGrace:        5 * time.Second,
			StoreTimeout:        5 * time.Second,
			Mode:                "online",
		},
		Postgres: PostgresConfig{
			Enabled:     true,
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			DBName:      "transcendence",
			MaxConns:    10,
			MinConns:    2,
			AutoMigrate: true,
		},
		Bus: BusConfig{
			Driver:  BusDriverRedis,
			Channel: "chat:new_message",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadConfig 依序套用預設值、YAML 檔案與環境變數
//
// path 為空字串時跳過檔案。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 - path 來自命令列參數，非遠端輸入
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 檢查配置是否可用
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Invite.TTL <= 0 {
		errs = append(errs, fmt.Errorf("invite.ttl must be positive, got %s", c.Invite.TTL))
	}
	if c.Session.ForfeitGrace < 0 {
		errs = append(errs, fmt.Errorf("session.forfeit_grace must not be negative, got %s", c.Session.ForfeitGrace))
	}
	if c.Server.SendBuffer <= 0 {
		errs = append(errs, errors.New("server.send_buffer must be positive"))
	}
	if c.Server.RateBurst < 0 || c.Server.RatePerSecond < 0 {
		errs = append(errs, errors.New("server.rate_burst and server.rate_per_second must not be negative"))
	}

	switch c.Bus.Driver {
	case BusDriverRedis, BusDriverNATS, BusDriverNone:
	default:
		errs = append(errs, fmt.Errorf("unknown bus.driver %q", c.Bus.Driver))
	}

	return errors.Join(errs...)
}

// PostgresURL 生成 PostgreSQL 連線字串
//
// 使用 URL 形式，pgxpool 與 golang-migrate 都能解析。
func (c *Config) PostgresURL() string {
	if c.Postgres.DatabaseURL != "" {
		return c.Postgres.DatabaseURL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     fmt.Sprintf("%s:%d", c.Postgres.Host, c.Postgres.Port),
		Path:     "/" + c.Postgres.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
