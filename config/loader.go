// =============================================================================
// 📦 csescout 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("csescout.yaml").
//	    WithValidator((*config.Config).Validate).
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀，例如 CSESCOUT_LLM_API_KEY
const DefaultEnvPrefix = "CSESCOUT"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 csescout 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis 缓存配置（符号解析与行情快照）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 运行记录存储
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// LLM 推理服务配置（Groq）
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Search 新闻检索配置（Tavily）
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// Market CSE 行情接口配置
	Market MarketConfig `yaml:"market" env:"MARKET"`

	// Orchestrator 监督者/调度器/Worker 配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Guardrail 输出护栏与输入校验
	Guardrail GuardrailConfig `yaml:"guardrail" env:"GUARDRAIL"`

	// Auth API 鉴权
	Auth AuthConfig `yaml:"auth" env:"AUTH"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数，0 表示不限流
	RateLimitRPS   float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CORSOrigins    []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
	// 同时设置证书与私钥时 API 端口使用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RedisConfig Redis 配置，Enabled 为 false 时不使用缓存
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	TLS       bool   `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Enabled 为 false 时不记录运行结果
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LLMConfig 推理服务配置
type LLMConfig struct {
	// Provider 目前只支持 groq
	Provider    string        `yaml:"provider" env:"PROVIDER"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// SearchConfig 新闻检索配置，APIKey 为空时不注册新闻工具
type SearchConfig struct {
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	MaxResults        int           `yaml:"max_results" env:"MAX_RESULTS"`
	SearchDepth       string        `yaml:"search_depth" env:"SEARCH_DEPTH"`
	QuerySuffix       string        `yaml:"query_suffix" env:"QUERY_SUFFIX"`
}

// MarketConfig CSE 行情配置
type MarketConfig struct {
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	QuoteTTL          time.Duration `yaml:"quote_ttl" env:"QUOTE_TTL"`
	HistoryDays       int           `yaml:"history_days" env:"HISTORY_DAYS"`
	SymbolCacheTTL    time.Duration `yaml:"symbol_cache_ttl" env:"SYMBOL_CACHE_TTL"`
	AllowUnlisted     bool          `yaml:"allow_unlisted" env:"ALLOW_UNLISTED"`
	// Aliases 扩展内置的公司名 → 代码表，仅支持 YAML
	Aliases map[string]string `yaml:"aliases" env:"-"`
}

// OrchestratorConfig 调度相关配置
type OrchestratorConfig struct {
	// MaxSteps supervisor→worker 往返上限
	MaxSteps          int           `yaml:"max_steps" env:"MAX_STEPS"`
	RunTimeout        time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
	WorkerTimeout     time.Duration `yaml:"worker_timeout" env:"WORKER_TIMEOUT"`
	SupervisorTimeout time.Duration `yaml:"supervisor_timeout" env:"SUPERVISOR_TIMEOUT"`
	MaxFanOut         int           `yaml:"max_fan_out" env:"MAX_FAN_OUT"`

	// Worker 内部的推理轮数上限
	WorkerMaxSteps     int `yaml:"worker_max_steps" env:"WORKER_MAX_STEPS"`
	MaxSummaryTokens   int `yaml:"max_summary_tokens" env:"MAX_SUMMARY_TOKENS"`
	MaxConcurrentTools int `yaml:"max_concurrent_tools" env:"MAX_CONCURRENT_TOOLS"`
}

// GuardrailConfig 护栏配置
type GuardrailConfig struct {
	// RiskTerms 为空时使用内置词表
	RiskTerms       []string `yaml:"risk_terms" env:"RISK_TERMS"`
	MaxQueryLength  int      `yaml:"max_query_length" env:"MAX_QUERY_LENGTH"`
	DetectInjection bool     `yaml:"detect_injection" env:"DETECT_INJECTION"`
}

// AuthConfig JWT 鉴权配置
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvLookup replaces os.LookupEnv, mainly for tests.
func (l *Loader) WithEnvLookup(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载并校验配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().WithValidator((*Config).Validate).Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must not be negative")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if c.LLM.Provider != "groq" {
		errs = append(errs, fmt.Sprintf("unsupported llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}

	if c.Orchestrator.MaxSteps <= 0 {
		errs = append(errs, "orchestrator.max_steps must be positive")
	}
	if c.Orchestrator.MaxFanOut <= 0 {
		errs = append(errs, "orchestrator.max_fan_out must be positive")
	}
	if c.Orchestrator.WorkerMaxSteps <= 0 {
		errs = append(errs, "orchestrator.worker_max_steps must be positive")
	}

	if c.Market.RequestsPerSecond <= 0 {
		errs = append(errs, "market.requests_per_second must be positive")
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	}

	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "auth.jwt_secret must be at least 32 bytes when auth is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

const redacted = "******"

// Sanitized returns a copy with secrets replaced, suitable for logs and
// the config subcommand.
func (c *Config) Sanitized() *Config {
	out := *c
	for _, s := range []*string{
		&out.Redis.Password,
		&out.Database.Password,
		&out.LLM.APIKey,
		&out.Search.APIKey,
		&out.Auth.JWTSecret,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	return &out
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
