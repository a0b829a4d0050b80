package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	// CORS origins for the REST routes; empty allows any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // report-chat
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
}

type Redis struct {
	// empty address disables the subscription cache
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type Chat struct {
	MaxBodyLength  int           `yaml:"maxBodyLength"`
	PersistTimeout time.Duration `yaml:"persistTimeout"`
	TypingExpiry   time.Duration `yaml:"typingExpiry"`
	DedupeSize     int           `yaml:"dedupeSize"`
	// push notification texts
	PushTitle   string `yaml:"pushTitle"`
	PushPreview int    `yaml:"pushPreview"`

	// fmt pattern receiving the report id, e.g. "/reports/%s"
	ClickURLFormat string `yaml:"clickUrlFormat"`
}

type WebPush struct {
	Subscriber      string        `yaml:"subscriber"`
	VAPIDPublicKey  string        `yaml:"vapidPublicKey"`
	VAPIDPrivateKey string        `yaml:"vapidPrivateKey"`
	TTL             time.Duration `yaml:"ttl"`
}

type Kafka struct {
	Brokers    string `yaml:"brokers"`
	Topic      string `yaml:"topic"`
	Partitions int    `yaml:"partitions"`
}

type Asynq struct {
	RedisURL string `yaml:"redisUrl"` // redis://[:password@]host:port/db
	Queue    string `yaml:"queue"`
	MaxRetry int    `yaml:"maxRetry"`
}

type Push struct {
	Driver          string        `yaml:"driver"` // webpush|kafka|asynq|noop
	Icon            string        `yaml:"icon"`
	DispatchTimeout time.Duration `yaml:"dispatchTimeout"`
	WebPush         WebPush       `yaml:"webpush"`
	Kafka           Kafka         `yaml:"kafka"`
	Asynq           Asynq         `yaml:"asynq"`
}

type WebSocket struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	WriteWait      time.Duration `yaml:"writeWait"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	SendBuffer     int           `yaml:"sendBuffer"`
	// inbound frames per second per connection, and burst
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Auth      Auth      `yaml:"auth"`
	Chat      Chat      `yaml:"chat"`
	Push      Push      `yaml:"push"`
	WebSocket WebSocket `yaml:"websocket"`
}

// LoadConfig reads CONFIG_PATH (default ./config/config.yaml). A .env file in
// the working directory is loaded first when present; ${VAR} references in
// the YAML are expanded from the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.PublicKeyPath == "" {
		return errors.New("auth.publicKeyPath is required")
	}
	if c.Auth.ClockSkew < 0 || c.Auth.ClockSkew > time.Minute {
		return errors.New("auth.clockSkew must be in [0..1m]")
	}

	switch c.Push.Driver {
	case "":
		c.Push.Driver = "noop"
	case "noop":
	case "webpush":
		if c.Push.WebPush.VAPIDPublicKey == "" || c.Push.WebPush.VAPIDPrivateKey == "" {
			return errors.New("push.webpush vapid keys are required")
		}
	case "kafka":
		if c.Push.Kafka.Brokers == "" {
			return errors.New("push.kafka.brokers is required")
		}
	case "asynq":
		if c.Push.Asynq.RedisURL == "" {
			return errors.New("push.asynq.redisUrl is required")
		}
	default:
		return fmt.Errorf("push.driver %q is not supported", c.Push.Driver)
	}

	// defaults
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "report-chat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "chat:push"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 10 * time.Minute
	}
	if c.Chat.MaxBodyLength <= 0 {
		c.Chat.MaxBodyLength = 4000
	}
	c.Chat.PersistTimeout = durationOr(c.Chat.PersistTimeout, 5*time.Second)
	c.Chat.TypingExpiry = durationOr(c.Chat.TypingExpiry, 3*time.Second)
	if c.Chat.DedupeSize <= 0 {
		c.Chat.DedupeSize = 4096
	}
	if c.Chat.PushTitle == "" {
		c.Chat.PushTitle = "New message on your report"
	}
	if c.Chat.PushPreview <= 0 {
		c.Chat.PushPreview = 120
	}
	if c.Chat.ClickURLFormat == "" {
		c.Chat.ClickURLFormat = "/reports/%s"
	}
	c.Push.DispatchTimeout = durationOr(c.Push.DispatchTimeout, 10*time.Second)
	c.Push.WebPush.TTL = durationOr(c.Push.WebPush.TTL, 24*time.Hour)
	if c.Push.Kafka.Topic == "" {
		c.Push.Kafka.Topic = "push-notifications"
	}
	if c.Push.Asynq.Queue == "" {
		c.Push.Asynq.Queue = "push"
	}
	if c.Push.Asynq.MaxRetry <= 0 {
		c.Push.Asynq.MaxRetry = 5
	}
	if c.Push.Kafka.Partitions <= 0 {
		c.Push.Kafka.Partitions = 4
	}
	c.WebSocket.PingInterval = durationOr(c.WebSocket.PingInterval, 15*time.Second)
	c.WebSocket.WriteWait = durationOr(c.WebSocket.WriteWait, 5*time.Second)
	if c.WebSocket.MaxMessageSize <= 0 {
		c.WebSocket.MaxMessageSize = 1 << 16
	}
	if c.WebSocket.SendBuffer <= 0 {
		c.WebSocket.SendBuffer = 256
	}
	if c.WebSocket.RateLimit <= 0 {
		c.WebSocket.RateLimit = 20
	}
	if c.WebSocket.RateBurst <= 0 {
		c.WebSocket.RateBurst = 40
	}
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
