// Package config loads the control plane's configuration from a YAML file
// with environment variable overrides, following the same load-once
// singleton shape used throughout this codebase's predecessor services.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	ForwardProxy ForwardProxyConfig `yaml:"forward_proxy"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Redis        RedisConfig        `yaml:"redis"`
	CloudTasks   CloudTasksConfig   `yaml:"cloud_tasks"`
	PubSub       PubSubConfig       `yaml:"pubsub"`
	Providers    ProvidersConfig    `yaml:"providers"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type ForwardProxyConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	AdvertisedAddr string `yaml:"advertised_addr"`
}

type GatewayConfig struct {
	ListenAddr        string `yaml:"listen_addr"`
	JWTSecret         string `yaml:"jwt_secret"`
	SessionMaxTTLSec  int    `yaml:"session_max_ttl_sec"`
	GatewayPort       int    `yaml:"gateway_port"`
	RequireActiveSess bool   `yaml:"require_active_session"`
}

// sessionMaxTTLHardCapSec is the absolute ceiling on gateway.session_max_ttl_sec
// regardless of what config or environment requests (SPEC_FULL.md §4.2).
const sessionMaxTTLHardCapSec = 86400

type MonitorConfig struct {
	IntervalSec       int `yaml:"interval_sec"`
	CollectTimeoutSec int `yaml:"collect_timeout_sec"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

type CloudTasksConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
	TargetURL  string `yaml:"target_url"`
}

type PubSubConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

// ProvidersConfig carries the provider-selection tag and per-provider
// credentials (spec.md §6). Keys are provider tags ("machine", "classicalvm").
type ProvidersConfig struct {
	Machine     MachineProviderConfig     `yaml:"machine"`
	ClassicalVM ClassicalVMProviderConfig `yaml:"classicalvm"`
}

type MachineProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIBase string `yaml:"api_base"`
	APIKey  string `yaml:"api_key"`
}

type ClassicalVMProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIBase string `yaml:"api_base"`
	APIKey  string `yaml:"api_key"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide configuration singleton, loading it on
// first use from CONFIG_PATH (default config.yaml) plus environment
// overrides.
func Get() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyDefaults()
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ForwardProxy.ListenAddr == "" {
		c.ForwardProxy.ListenAddr = ":8443"
	}
	if c.Gateway.ListenAddr == "" {
		c.Gateway.ListenAddr = ":8080"
	}
	if c.Gateway.SessionMaxTTLSec == 0 {
		c.Gateway.SessionMaxTTLSec = 3600
	}
	if c.Gateway.GatewayPort == 0 {
		c.Gateway.GatewayPort = 7777
	}
	if c.Monitor.IntervalSec == 0 {
		c.Monitor.IntervalSec = 60
	}
	if c.Monitor.CollectTimeoutSec == 0 {
		c.Monitor.CollectTimeoutSec = 10
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

func (c *Config) applyEnvOverrides() {
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)

	c.ForwardProxy.ListenAddr = getEnv("FORWARD_PROXY_LISTEN_ADDR", c.ForwardProxy.ListenAddr)
	c.ForwardProxy.AdvertisedAddr = getEnv("FORWARD_PROXY_ADVERTISED_ADDR", c.ForwardProxy.AdvertisedAddr)

	c.Gateway.ListenAddr = getEnv("GATEWAY_LISTEN_ADDR", c.Gateway.ListenAddr)
	c.Gateway.JWTSecret = getEnv("JWT_SECRET", c.Gateway.JWTSecret)
	c.Gateway.SessionMaxTTLSec = getEnvInt("GATEWAY_SESSION_MAX_TTL_SEC", c.Gateway.SessionMaxTTLSec)
	c.Gateway.GatewayPort = getEnvInt("GATEWAY_BACKEND_PORT", c.Gateway.GatewayPort)
	c.Gateway.RequireActiveSess = getEnvBool("GATEWAY_REQUIRE_ACTIVE_SESSION", c.Gateway.RequireActiveSess)

	c.Monitor.IntervalSec = getEnvInt("MONITOR_INTERVAL_SEC", c.Monitor.IntervalSec)
	c.Monitor.CollectTimeoutSec = getEnvInt("MONITOR_COLLECT_TIMEOUT_SEC", c.Monitor.CollectTimeoutSec)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.CloudTasks.Enabled = getEnvBool("CLOUDTASKS_ENABLED", c.CloudTasks.Enabled)
	c.CloudTasks.ProjectID = getEnv("CLOUDTASKS_PROJECT_ID", c.CloudTasks.ProjectID)
	c.CloudTasks.LocationID = getEnv("CLOUDTASKS_LOCATION_ID", c.CloudTasks.LocationID)
	c.CloudTasks.QueueID = getEnv("CLOUDTASKS_QUEUE_ID", c.CloudTasks.QueueID)
	c.CloudTasks.TargetURL = getEnv("CLOUDTASKS_TARGET_URL", c.CloudTasks.TargetURL)

	c.PubSub.Enabled = getEnvBool("PUBSUB_ENABLED", c.PubSub.Enabled)
	c.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", c.PubSub.ProjectID)
	c.PubSub.TopicID = getEnv("PUBSUB_TOPIC_ID", c.PubSub.TopicID)

	c.Providers.Machine.Enabled = getEnvBool("PROVIDER_MACHINE_ENABLED", c.Providers.Machine.Enabled)
	c.Providers.Machine.APIBase = getEnv("PROVIDER_MACHINE_API_BASE", c.Providers.Machine.APIBase)
	c.Providers.Machine.APIKey = getEnv("PROVIDER_MACHINE_API_KEY", c.Providers.Machine.APIKey)

	c.Providers.ClassicalVM.Enabled = getEnvBool("PROVIDER_CLASSICALVM_ENABLED", c.Providers.ClassicalVM.Enabled)
	c.Providers.ClassicalVM.APIBase = getEnv("PROVIDER_CLASSICALVM_API_BASE", c.Providers.ClassicalVM.APIBase)
	c.Providers.ClassicalVM.APIKey = getEnv("PROVIDER_CLASSICALVM_API_KEY", c.Providers.ClassicalVM.APIKey)

	if c.Gateway.SessionMaxTTLSec > sessionMaxTTLHardCapSec {
		c.Gateway.SessionMaxTTLSec = sessionMaxTTLHardCapSec
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
