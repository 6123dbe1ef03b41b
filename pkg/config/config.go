package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"AltPull/internal/repository"
	"AltPull/internal/service/breaker"
	"AltPull/internal/service/ratelimit"
	"AltPull/internal/service/retry"
	"AltPull/internal/usecase"
	"AltPull/pkg/cache"
	pkgch "AltPull/pkg/clickhouse"
	pkgkafka "AltPull/pkg/kafka"
	applogger "AltPull/pkg/logger"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging applogger.Config `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Storage   repository.StorageConfig `yaml:"storage"`
	Providers []ProviderConfig         `yaml:"providers" validate:"required,min=1,dive"`
	// Sources maps a logical source (news, onchain) to provider names in fallback order.
	Sources    map[string][]string    `yaml:"sources" validate:"required,min=1"`
	ETL        usecase.ETLConfig      `yaml:"etl"`
	Align      AlignConfig            `yaml:"align"`
	Schedule   usecase.ScheduleConfig `yaml:"schedule"`
	Kafka      pkgkafka.Config        `yaml:"kafka"`
	Redis      cache.Config           `yaml:"redis"`
	ClickHouse pkgch.Config           `yaml:"clickhouse"`
}

// ProviderConfig describes one upstream REST provider.
type ProviderConfig struct {
	Name         string            `yaml:"name" validate:"required"`
	Kind         string            `yaml:"kind" validate:"required,oneof=news onchain"`
	BaseURL      string            `yaml:"base_url" validate:"required,url"`
	Endpoint     string            `yaml:"endpoint"`
	APIKey       string            `yaml:"api_key"`
	AuthHeader   string            `yaml:"auth_header"`
	Interval     string            `yaml:"interval" default:"1d"`
	Language     string            `yaml:"language"`
	PageSize     int               `yaml:"page_size" default:"100"`
	Timeout      time.Duration     `yaml:"timeout" default:"10s"`
	Headers      map[string]string `yaml:"headers"`
	ExtraFilters map[string]string `yaml:"extra_filters"`
	RateLimit    ratelimit.Config  `yaml:"rate_limit"`
	Retry        retry.Config      `yaml:"retry"`
	Breaker      breaker.Config    `yaml:"breaker"`
}

// AlignConfig tunes the aligned-features endpoint and CLI.
type AlignConfig struct {
	Concurrency  int           `yaml:"concurrency" default:"4" validate:"gte=1"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"15s"`
	CacheEntries int           `yaml:"cache_entries" default:"256" validate:"gte=1"`
}

var validate = validator.New()

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// list entries only exist after decoding
	for i := range c.Providers {
		if err := defaults.Set(&c.Providers[i]); err != nil {
			return nil, fmt.Errorf("config defaults: providers[%d]: %w", i, err)
		}
	}
	for i := range c.Schedule.Jobs {
		if err := defaults.Set(&c.Schedule.Jobs[i]); err != nil {
			return nil, fmt.Errorf("config defaults: schedule.jobs[%d]: %w", i, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("ALTPULL_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("NEWS_API_KEY"); v != "" {
		c.setAPIKey("news", v)
	}
	if v := getenv("ONCHAIN_API_KEY"); v != "" {
		c.setAPIKey("onchain", v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR port: %w", err)
		}
		c.Redis.Host, c.Redis.Port, c.Redis.Enabled = host, p, true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("STORAGE_BASE_PATH"); v != "" {
		c.Storage.BasePath = v
	}
	return nil
}

// setAPIKey fills the key of every provider of kind that has none configured.
func (c *Config) setAPIKey(kind, key string) {
	for i := range c.Providers {
		if c.Providers[i].Kind == kind && c.Providers[i].APIKey == "" {
			c.Providers[i].APIKey = key
		}
	}
}

// Validate checks struct tags and cross references between sources, providers and jobs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	byName := make(map[string]ProviderConfig, len(c.Providers))
	for _, p := range c.Providers {
		if _, dup := byName[p.Name]; dup {
			return fmt.Errorf("providers: duplicate name %q", p.Name)
		}
		byName[p.Name] = p
	}
	for source, chain := range c.Sources {
		if len(chain) == 0 {
			return fmt.Errorf("sources.%s: no providers", source)
		}
		var kind string
		for _, name := range chain {
			p, ok := byName[name]
			if !ok {
				return fmt.Errorf("sources.%s: unknown provider %q", source, name)
			}
			if kind != "" && p.Kind != kind {
				return fmt.Errorf("sources.%s: providers mix kinds %s and %s", source, kind, p.Kind)
			}
			kind = p.Kind
		}
	}
	if c.Schedule.Enabled {
		for i, job := range c.Schedule.Jobs {
			if _, ok := c.Sources[strings.ToLower(job.Source)]; !ok {
				return fmt.Errorf("schedule.jobs[%d]: unknown source %q", i, job.Source)
			}
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// Provider returns the named provider config.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
