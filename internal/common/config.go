package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// InitMode controls which jobs the lifecycle may run before the first
// scheduled tick.
type InitMode string

const (
	InitModeSkip      InitMode = "skip"
	InitModeTasksOnly InitMode = "tasks_only"
	InitModeFullInit  InitMode = "full_init"
	InitModeETFOnly   InitMode = "etf_only"
)

// ParseInitMode maps a STOCK_INIT_MODE value (including legacy aliases) to an
// InitMode. Unknown values fall back to tasks_only.
func ParseInitMode(s string) InitMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "none":
		return InitModeSkip
	case "tasks_only", "only_tasks":
		return InitModeTasksOnly
	case "full_init", "clear_all":
		return InitModeFullInit
	case "etf_only":
		return InitModeETFOnly
	default:
		return InitModeTasksOnly
	}
}

// Config holds all configuration for StockPulse
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Redis       RedisConfig     `toml:"redis"`
	Providers   ProvidersConfig `toml:"providers"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	AI          AIConfig        `toml:"ai"`
	Auth        AuthConfig      `toml:"auth"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// RedisConfig holds Redis connection configuration. URL, when set, takes
// precedence over the discrete host/port/db fields.
type RedisConfig struct {
	URL            string `toml:"url"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	DB             int    `toml:"db"`
	Password       string `toml:"password"`
	MaxConnections int    `toml:"max_connections"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
}

// GetConnectTimeout parses and returns the connect timeout duration
func (c *RedisConfig) GetConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetReadTimeout parses and returns the socket read timeout duration
func (c *RedisConfig) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Addr returns the host:port address for the discrete connection fields.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProvidersConfig holds upstream market data provider configuration
type ProvidersConfig struct {
	Tushare   TushareConfig  `toml:"tushare"`
	Eastmoney SpotFeedConfig `toml:"eastmoney"`
	Sina      SpotFeedConfig `toml:"sina"`

	// Realtime selects the snapshot provider: tushare, eastmoney, sina or auto.
	Realtime   string `toml:"realtime"`
	AutoSwitch bool   `toml:"auto_switch"`

	// MinRequestInterval is the minimum spacing between calls to one provider.
	MinRequestInterval string `toml:"min_request_interval"`
	RetryTimes         int    `toml:"retry_times"`
}

// GetMinRequestInterval parses and returns the inter-call spacing
func (c *ProvidersConfig) GetMinRequestInterval() time.Duration {
	d, err := time.ParseDuration(c.MinRequestInterval)
	if err != nil {
		return 1 * time.Second
	}
	return d
}

// GetRetryTimes returns the retry count with a floor of 1
func (c *ProvidersConfig) GetRetryTimes() int {
	if c.RetryTimes <= 0 {
		return 3
	}
	return c.RetryTimes
}

// TushareConfig holds Tushare pro_api configuration
type TushareConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *TushareConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SpotFeedConfig holds configuration for a spot snapshot feed
type SpotFeedConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *SpotFeedConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// SchedulerConfig holds job scheduling configuration
type SchedulerConfig struct {
	InitMode                string `toml:"init_mode"`
	RealtimeUpdateInterval  int    `toml:"realtime_update_interval"` // minutes
	MaxWorkers              int    `toml:"max_workers"`
	UseMultithreading       bool   `toml:"use_multithreading"`
	ResetTables             bool   `toml:"reset_tables"`
	WebSocketTestMode       bool   `toml:"websocket_test_mode"`
	MergeQueueSize          int    `toml:"merge_queue_size"`
}

// GetInitMode returns the parsed startup mode
func (c *SchedulerConfig) GetInitMode() InitMode {
	return ParseInitMode(c.InitMode)
}

// GetRealtimeUpdateInterval returns the snapshot cadence with a 15 min default
func (c *SchedulerConfig) GetRealtimeUpdateInterval() time.Duration {
	if c.RealtimeUpdateInterval <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.RealtimeUpdateInterval) * time.Minute
}

// GetMaxWorkers returns the fan-out pool size with a floor of 1
func (c *SchedulerConfig) GetMaxWorkers() int {
	if !c.UseMultithreading {
		return 1
	}
	if c.MaxWorkers <= 0 {
		return 10
	}
	return c.MaxWorkers
}

// GetMergeQueueSize returns the bounded realtime merge queue size
func (c *SchedulerConfig) GetMergeQueueSize() int {
	if c.MergeQueueSize <= 0 {
		return 2000
	}
	return c.MergeQueueSize
}

// AIConfig holds the news analysis LLM configuration
type AIConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

// AuthConfig holds the shared API token configuration
type AuthConfig struct {
	APIToken        string `toml:"api_token"`
	APITokenEnabled bool   `toml:"api_token_enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Redis: RedisConfig{
			Host:           "localhost",
			Port:           6379,
			DB:             0,
			MaxConnections: 50,
			ConnectTimeout: "5s",
			ReadTimeout:    "5s",
		},
		Providers: ProvidersConfig{
			Tushare: TushareConfig{
				BaseURL: "http://api.tushare.pro",
				Timeout: "30s",
			},
			Eastmoney: SpotFeedConfig{
				BaseURL: "https://push2.eastmoney.com",
				Timeout: "15s",
			},
			Sina: SpotFeedConfig{
				BaseURL: "https://hq.sinajs.cn",
				Timeout: "15s",
			},
			Realtime:           "auto",
			AutoSwitch:         true,
			MinRequestInterval: "1s",
			RetryTimes:         3,
		},
		Scheduler: SchedulerConfig{
			InitMode:               "tasks_only",
			RealtimeUpdateInterval: 15,
			MaxWorkers:             10,
			UseMultithreading:      true,
			MergeQueueSize:         2000,
		},
		AI: AIConfig{
			Model: "gemini-2.0-flash",
		},
		Auth: AuthConfig{
			APITokenEnabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Redis.URL = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		config.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			config.Redis.DB = db
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("REDIS_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Redis.MaxConnections = n
		}
	}
	if v := os.Getenv("REDIS_SOCKET_CONNECT_TIMEOUT"); v != "" {
		config.Redis.ConnectTimeout = normalizeSeconds(v)
	}
	if v := os.Getenv("REDIS_SOCKET_READ_TIMEOUT"); v != "" {
		config.Redis.ReadTimeout = normalizeSeconds(v)
	}

	if v := os.Getenv("TUSHARE_TOKEN"); v != "" {
		config.Providers.Tushare.Token = v
	}
	if v := os.Getenv("REALTIME_DATA_PROVIDER"); v != "" {
		config.Providers.Realtime = strings.ToLower(v)
	}
	if v := os.Getenv("REALTIME_AUTO_SWITCH"); v != "" {
		config.Providers.AutoSwitch = parseBool(v)
	}
	if v := os.Getenv("REALTIME_UPDATE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scheduler.RealtimeUpdateInterval = n
		}
	}

	if v := os.Getenv("STOCK_INIT_MODE"); v != "" {
		config.Scheduler.InitMode = v
	}
	if v := os.Getenv("USE_MULTITHREADING"); v != "" {
		config.Scheduler.UseMultithreading = parseBool(v)
	}
	if v := os.Getenv("MAX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scheduler.MaxWorkers = n
		}
	}
	if v := os.Getenv("RESET_TABLES"); v != "" {
		config.Scheduler.ResetTables = parseBool(v)
	}

	if v := os.Getenv("AI_ENABLED"); v != "" {
		config.AI.Enabled = parseBool(v)
	}
	if v := os.Getenv("DEFAULT_AI_ENDPOINT"); v != "" {
		config.AI.Endpoint = v
	}
	if v := os.Getenv("DEFAULT_AI_API_KEY"); v != "" {
		config.AI.APIKey = v
	}
	if v := os.Getenv("DEFAULT_AI_MODEL"); v != "" {
		config.AI.Model = v
	}

	if v := os.Getenv("API_TOKEN"); v != "" {
		config.Auth.APIToken = v
	}
	if v := os.Getenv("API_TOKEN_ENABLED"); v != "" {
		config.Auth.APITokenEnabled = parseBool(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}
}

// normalizeSeconds accepts either a bare number of seconds ("5") or a Go
// duration string ("5s") and returns a duration string.
func normalizeSeconds(v string) string {
	if _, err := strconv.Atoi(v); err == nil {
		return v + "s"
	}
	return v
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
