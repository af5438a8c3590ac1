package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	// SlowQuery 慢查询阈值，超过则记录 warn 日志与指标
	SlowQuery time.Duration `yaml:"slow_query"`
}

// MQConfig 消息队列配置，URL 为空时不连接 RabbitMQ
type MQConfig struct {
	URL string `yaml:"url"`
	// DropEvents 为 true 时丢弃所有领域事件（批量导入、压测）
	DropEvents bool `yaml:"drop_events"`
	// HealthPort worker 健康检查端口
	HealthPort string `yaml:"health_port"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           string   `yaml:"port"`
	BasePath       string   `yaml:"base_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TrustProxy     bool     `yaml:"trust_proxy"`
}

// StorageConfig 选择持久化后端: memory | redis | postgres
type StorageConfig struct {
	Mode string `yaml:"mode"`
	Seed bool   `yaml:"seed"`
}

// AIConfig 图片生成配置，APIKey 为空时只返回占位图
type AIConfig struct {
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	PlaceholderBase string        `yaml:"placeholder_base"`
	CacheSize       int           `yaml:"cache_size"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// BlobConfig 对象存储 (MinIO / S3) 配置，Endpoint 为空时使用内存存储
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
	PublicURL string `yaml:"public_url"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Burst     int           `yaml:"burst"`
	CacheSize int           `yaml:"cache_size"`
	TTL       time.Duration `yaml:"ttl"`
}

// OtelConfig OpenTelemetry 配置
type OtelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// OutboxConfig postgres 模式下 outbox 投递参数
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// MarketConfig 交易相关参数
type MarketConfig struct {
	// CommissionPercent 平台抽成百分比
	CommissionPercent int64 `yaml:"commission_percent"`
	// MaxInlineImageBytes data: URL 图片的最大字节数
	MaxInlineImageBytes int `yaml:"max_inline_image_bytes"`
	// PlatformAccountID 抽成入账的账户
	PlatformAccountID string `yaml:"platform_account_id"`
	// Currency 所有金额的币种
	Currency string `yaml:"currency"`
	// MaxUploadBytes DAM 单个文件上限
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// ClientConfig marketctl 使用的 API 客户端配置
type ClientConfig struct {
	Mode    string        `yaml:"mode"`
	BaseURL string        `yaml:"base_url"`
	Latency time.Duration `yaml:"latency"`
}

// Config 整体配置
type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	MQ        MQConfig        `yaml:"mq"`
	JWT       JWTConfig       `yaml:"jwt"`
	AI        AIConfig        `yaml:"ai"`
	Blob      BlobConfig      `yaml:"blob"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Otel      OtelConfig      `yaml:"otel"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Market    MarketConfig    `yaml:"market"`
	Client    ClientConfig    `yaml:"client"`
}

// Default 返回可直接运行的本地配置（内存存储、无外部依赖）
func Default() *Config {
	return &Config{
		Env: "local",
		Server: ServerConfig{
			Port:           ":3001",
			BasePath:       "/api",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{Mode: "memory", Seed: true},
		DB: DBConfig{
			Host:      "localhost",
			Port:      5432,
			User:      "xhs",
			Name:      "xhsmarket",
			SlowQuery: 100 * time.Millisecond,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		MQ:    MQConfig{HealthPort: ":3002"},
		JWT:   JWTConfig{Secret: "dev-secret-change-me", TTL: 24 * time.Hour},
		AI: AIConfig{
			Model:           "imagen-3.0-generate-002",
			Timeout:         30 * time.Second,
			PlaceholderBase: "https://picsum.photos/seed",
			CacheSize:       256,
			CacheTTL:        time.Hour,
		},
		Blob: BlobConfig{Bucket: "xhs-assets"},
		RateLimit: RateLimitConfig{
			Interval:  6 * time.Second,
			Burst:     10,
			CacheSize: 1024,
			TTL:       10 * time.Minute,
		},
		Otel:   OtelConfig{Endpoint: "otel-collector:4317"},
		Outbox: OutboxConfig{Interval: time.Second, BatchSize: 100, MaxRetries: 5},
		Market: MarketConfig{
			CommissionPercent:   10,
			MaxInlineImageBytes: 512 * 1024,
			PlatformAccountID:   "platform",
			Currency:            "CNY",
			MaxUploadBytes:      50 << 20,
		},
		Client: ClientConfig{Mode: "mock", BaseURL: "http://localhost:3001/api"},
	}
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
	if drop := os.Getenv("MQ_DROP_EVENTS"); drop != "" {
		if b, err := strconv.ParseBool(drop); err == nil {
			cfg.DropEvents = b
		}
	}
	if port := os.Getenv("WORKER_HEALTH_PORT"); port != "" {
		cfg.HealthPort = port
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideStorageFromEnv 从环境变量覆盖存储模式
func OverrideStorageFromEnv(cfg *StorageConfig) {
	if mode := os.Getenv("STORAGE_MODE"); mode != "" {
		cfg.Mode = mode
	}
}

// OverrideAIFromEnv 支持 GEMINI_API_KEY 与前端沿用的 API_KEY
func OverrideAIFromEnv(cfg *AIConfig) {
	if key := os.Getenv("API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
}

// OverrideBlobFromEnv 从环境变量覆盖对象存储配置
func OverrideBlobFromEnv(cfg *BlobConfig) {
	if endpoint := os.Getenv("BLOB_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if key := os.Getenv("BLOB_ACCESS_KEY"); key != "" {
		cfg.AccessKey = key
	}
	if secret := os.Getenv("BLOB_SECRET_KEY"); secret != "" {
		cfg.SecretKey = secret
	}
	if bucket := os.Getenv("BLOB_BUCKET"); bucket != "" {
		cfg.Bucket = bucket
	}
}

// OverrideAllFromEnv 依次应用所有环境变量覆盖
func OverrideAllFromEnv(cfg *Config) {
	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideJWTFromEnv(&cfg.JWT)
	OverrideServerFromEnv(&cfg.Server)
	OverrideStorageFromEnv(&cfg.Storage)
	OverrideAIFromEnv(&cfg.AI)
	OverrideBlobFromEnv(&cfg.Blob)
}
