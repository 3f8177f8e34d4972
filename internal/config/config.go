package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML file loaded before env overrides.
const ConfigFileEnv = "TIPJAR_CONFIG_FILE"

type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Sync    SyncConfig    `yaml:"sync"`
	RPC     RPCConfig     `yaml:"rpc"`
	Redis   RedisConfig   `yaml:"redis"`
	Server  ServerConfig  `yaml:"server"`
	Tracing TracingConfig `yaml:"tracing"`
	Alert   AlertConfig   `yaml:"alert"`
	Log     LogConfig     `yaml:"log"`
}

type ChainConfig struct {
	RPCURL  string `yaml:"rpc_url"`
	Network string `yaml:"network"`
	ChainID int64  `yaml:"chain_id"`
	// JarAddress is empty until the user deployed (or picked) a jar.
	JarAddress     string `yaml:"jar_address"`
	FactoryAddress string `yaml:"factory_address"`
}

type SyncConfig struct {
	PollIntervalMs        int `yaml:"poll_interval_ms"`
	ReceiptPollIntervalMs int `yaml:"receipt_poll_interval_ms"`
	OwnerCacheTTLSec      int `yaml:"owner_cache_ttl_sec"`
}

type RPCConfig struct {
	RateLimitRPS            float64 `yaml:"rate_limit_rps"`
	RateLimitBurst          int     `yaml:"rate_limit_burst"`
	BreakerFailureThreshold int     `yaml:"breaker_failure_threshold"`
	BreakerOpenTimeoutSec   int     `yaml:"breaker_open_timeout_sec"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AlertConfig enables tip and failure notifications when either URL is set.
type AlertConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	WebhookURL      string `yaml:"webhook_url"`
	CooldownSec     int    `yaml:"cooldown_sec"`
	HealthCheckSec  int    `yaml:"health_check_sec"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() *Config {
	return &Config{
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			Network: string(model.NetworkSepolia),
		},
		Sync: SyncConfig{
			PollIntervalMs:        5000,
			ReceiptPollIntervalMs: 2000,
			OwnerCacheTTLSec:      300,
		},
		RPC: RPCConfig{
			RateLimitRPS:            10,
			RateLimitBurst:          20,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeoutSec:   30,
		},
		Redis: RedisConfig{
			KeyPrefix: "tipjar",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Tracing: TracingConfig{
			Insecure:    true,
			SampleRatio: 1,
		},
		Alert: AlertConfig{
			CooldownSec:    1800,
			HealthCheckSec: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// TIPJAR_CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Chain.RPCURL = getEnv("TIPJAR_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.Network = getEnv("TIPJAR_NETWORK", cfg.Chain.Network)
	cfg.Chain.ChainID = getEnvInt64("TIPJAR_CHAIN_ID", cfg.Chain.ChainID)
	cfg.Chain.JarAddress = getEnv("TIPJAR_JAR_ADDRESS", cfg.Chain.JarAddress)
	cfg.Chain.FactoryAddress = getEnv("TIPJAR_FACTORY_ADDRESS", cfg.Chain.FactoryAddress)

	cfg.Sync.PollIntervalMs = getEnvInt("TIPJAR_POLL_INTERVAL_MS", cfg.Sync.PollIntervalMs)
	cfg.Sync.ReceiptPollIntervalMs = getEnvInt("TIPJAR_RECEIPT_POLL_INTERVAL_MS", cfg.Sync.ReceiptPollIntervalMs)
	cfg.Sync.OwnerCacheTTLSec = getEnvInt("TIPJAR_OWNER_CACHE_TTL_SEC", cfg.Sync.OwnerCacheTTLSec)

	cfg.RPC.RateLimitRPS = getEnvFloat("RPC_RATE_LIMIT_RPS", cfg.RPC.RateLimitRPS)
	cfg.RPC.RateLimitBurst = getEnvInt("RPC_RATE_LIMIT_BURST", cfg.RPC.RateLimitBurst)
	cfg.RPC.BreakerFailureThreshold = getEnvInt("RPC_BREAKER_FAILURE_THRESHOLD", cfg.RPC.BreakerFailureThreshold)
	cfg.RPC.BreakerOpenTimeoutSec = getEnvInt("RPC_BREAKER_OPEN_TIMEOUT_SEC", cfg.RPC.BreakerOpenTimeoutSec)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", cfg.Redis.KeyPrefix)

	cfg.Server.Port = getEnvInt("HTTP_PORT", cfg.Server.Port)

	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	cfg.Tracing.SampleRatio = getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", cfg.Tracing.SampleRatio)

	cfg.Alert.SlackWebhookURL = getEnv("ALERT_SLACK_WEBHOOK_URL", cfg.Alert.SlackWebhookURL)
	cfg.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", cfg.Alert.WebhookURL)
	cfg.Alert.CooldownSec = getEnvInt("ALERT_COOLDOWN_SEC", cfg.Alert.CooldownSec)
	cfg.Alert.HealthCheckSec = getEnvInt("ALERT_HEALTH_CHECK_SEC", cfg.Alert.HealthCheckSec)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = cfg.NetworkName().DefaultChainID()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("TIPJAR_RPC_URL is required")
	}
	if c.Chain.Network == "" {
		return fmt.Errorf("TIPJAR_NETWORK is required")
	}
	if c.Chain.JarAddress != "" && !common.IsHexAddress(c.Chain.JarAddress) {
		return fmt.Errorf("TIPJAR_JAR_ADDRESS is not a valid address: %q", c.Chain.JarAddress)
	}
	if c.Chain.FactoryAddress != "" && !common.IsHexAddress(c.Chain.FactoryAddress) {
		return fmt.Errorf("TIPJAR_FACTORY_ADDRESS is not a valid address: %q", c.Chain.FactoryAddress)
	}
	if c.Chain.JarAddress == "" && c.Chain.FactoryAddress == "" {
		return fmt.Errorf("one of TIPJAR_JAR_ADDRESS or TIPJAR_FACTORY_ADDRESS is required")
	}
	if c.Sync.PollIntervalMs <= 0 {
		return fmt.Errorf("TIPJAR_POLL_INTERVAL_MS must be positive, got %d", c.Sync.PollIntervalMs)
	}
	if c.Sync.ReceiptPollIntervalMs <= 0 {
		return fmt.Errorf("TIPJAR_RECEIPT_POLL_INTERVAL_MS must be positive, got %d", c.Sync.ReceiptPollIntervalMs)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.Server.Port)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	if c.AlertsEnabled() {
		if c.Alert.CooldownSec < 0 {
			return fmt.Errorf("ALERT_COOLDOWN_SEC must not be negative, got %d", c.Alert.CooldownSec)
		}
		if c.Alert.HealthCheckSec <= 0 {
			return fmt.Errorf("ALERT_HEALTH_CHECK_SEC must be positive, got %d", c.Alert.HealthCheckSec)
		}
	}
	return nil
}

// NetworkName returns the configured network.
func (c *Config) NetworkName() model.Network {
	return model.Network(strings.ToLower(strings.TrimSpace(c.Chain.Network)))
}

// Jar returns the configured jar; ok is false when the deploy flow must run first.
func (c *Config) Jar() (common.Address, bool) {
	if c.Chain.JarAddress == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.Chain.JarAddress), true
}

func (c *Config) Factory() common.Address {
	if c.Chain.FactoryAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Chain.FactoryAddress)
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMs) * time.Millisecond
}

func (c *Config) ReceiptPollInterval() time.Duration {
	return time.Duration(c.Sync.ReceiptPollIntervalMs) * time.Millisecond
}

func (c *Config) OwnerCacheTTL() time.Duration {
	return time.Duration(c.Sync.OwnerCacheTTLSec) * time.Second
}

func (c *Config) AlertsEnabled() bool {
	return c.Alert.SlackWebhookURL != "" || c.Alert.WebhookURL != ""
}

func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alert.CooldownSec) * time.Second
}

func (c *Config) AlertHealthInterval() time.Duration {
	return time.Duration(c.Alert.HealthCheckSec) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
