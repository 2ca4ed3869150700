// Package config 提供了日志服务的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，填充默认值，并支持通过 GENLOG_ 前缀的环境变量覆盖任意配置项。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/oriys/genlog/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 是所有环境变量覆盖项的前缀，如 GENLOG_SERVER_HTTP_PORT。
const EnvPrefix = "GENLOG_"

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	// Storage 日志文件与媒体目录配置
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	// CORS 跨域配置
	CORS CORSConfig `yaml:"cors" envPrefix:"CORS_"`
	// Events 事件发布配置
	Events EventsConfig `yaml:"events" envPrefix:"EVENTS_"`
	// Logging 日志级别和格式
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`
	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	// Telemetry 分布式追踪配置
	Telemetry telemetry.Config `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig HTTP 服务配置结构体。
type ServerConfig struct {
	// Name 根路径返回的服务名称
	// 默认值：Figma Plugin Logger Server
	Name string `yaml:"name" env:"NAME"`
	// HTTPPort HTTP 监听端口
	// 默认值：8000
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// ReadTimeout 读取整个请求（含请求体）的超时时间
	// 默认值：30s
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout 写响应的超时时间
	// 默认值：60s
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// ShutdownTimeout 优雅关闭的最长等待时间
	// 默认值：10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// MaxBodyBytes 请求体大小上限，超过时返回 413
	// 默认值：64 MiB（截图以 base64 内联在请求体中）
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// ServeMedia 是否通过 /media/ 提供已保存的截图
	// 默认值：true
	ServeMedia bool `yaml:"serve_media" env:"SERVE_MEDIA"`
}

// StorageConfig 存储配置结构体。
type StorageConfig struct {
	// DataDir 数据目录，日志文件与 media 子目录位于其下
	// 默认值：./logger_data
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	// Format 日志文件格式："array"（单个 JSON 数组）或 "jsonl"（每行一条）
	// 默认值：array
	Format string `yaml:"format" env:"FORMAT"`
}

// CORSConfig 跨域配置结构体。
// 默认完全放开，插件运行在设计工具的沙箱 iframe 中，来源不固定。
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowedMethods   []string `yaml:"allowed_methods" env:"ALLOWED_METHODS" envSeparator:","`
	AllowedHeaders   []string `yaml:"allowed_headers" env:"ALLOWED_HEADERS" envSeparator:","`
	AllowCredentials bool     `yaml:"allow_credentials" env:"ALLOW_CREDENTIALS"`
}

// EventsConfig 事件发布配置结构体。
type EventsConfig struct {
	// NATSURL NATS 服务地址，为空时不发布事件
	NATSURL string `yaml:"nats_url" env:"NATS_URL"`
}

// LoggingConfig 日志配置结构体。
type LoggingConfig struct {
	// Level 日志级别：debug、info、warn、error
	// 默认值：info
	Level string `yaml:"level" env:"LEVEL"`
	// Format 日志格式：json 或 text
	// 默认值：json
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig Prometheus 指标配置结构体。
type MetricsConfig struct {
	// Enabled 是否暴露 /metrics
	// 默认值：true
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Namespace 指标名前缀
	// 默认值：genlog
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Port 独立的指标端口，为 0 时指标挂载在主 HTTP 端口上
	Port int `yaml:"port" env:"PORT"`
}

// Default 返回填充了全部默认值的配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "Figma Plugin Logger Server",
			HTTPPort:        8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 << 20,
			ServeMedia:      true,
		},
		Storage: StorageConfig{
			DataDir: "./logger_data",
			Format:  "array",
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"*"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "genlog",
		},
		Telemetry: telemetry.Config{
			ServiceName: "genlog-server",
			SampleRate:  1.0,
		},
	}
}

// Load 加载配置。
//
// 处理顺序：默认值 → YAML 文件（path 非空时）→ GENLOG_ 环境变量 → 校验。
// 文件中未出现的配置项保留默认值。
//
// 参数：
//   - path: 配置文件的路径，可为空
//
// 返回值：
//   - *Config: 加载并处理后的配置对象
//   - error: 读取、解析或校验失败时返回错误
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 校验并规范化配置。
func (c *Config) validate() error {
	c.Storage.Format = strings.ToLower(strings.TrimSpace(c.Storage.Format))
	switch c.Storage.Format {
	case "array", "jsonl":
	default:
		return fmt.Errorf("storage.format must be array or jsonl, got %q", c.Storage.Format)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}
	// 0 表示不采样
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0, 1], got %v", c.Telemetry.SampleRate)
	}
	return nil
}
