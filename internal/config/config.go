package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultEvaluatorInterval = 30 * time.Second
	defaultSampleWindow      = 100
	defaultPollInterval      = 5 * time.Second
	defaultBatchSize         = 20
	defaultMaxRetries        = 3
	defaultPublishTimeout    = 10 * time.Second
	defaultChannelTimeout    = 10 * time.Second
	defaultMQTTTopicPrefix   = "hivewatch/alerts"
	defaultRedisChannel      = "hivewatch:alerts"
	defaultServiceName       = "hivewatch"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
)

// Config is the process configuration.
type Config struct {
	ServiceName string           `yaml:"service_name"`
	DatabaseURL string           `yaml:"database_url"`
	HTTPAddr    string           `yaml:"http_addr"`
	Log         LogConfig        `yaml:"log"`
	Evaluator   EvaluatorConfig  `yaml:"evaluator"`
	Dispatcher  DispatcherConfig `yaml:"dispatcher"`
	Channels    []ChannelConfig  `yaml:"channels"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EvaluatorConfig configures the alert evaluation job.
type EvaluatorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	SampleWindow int           `yaml:"sample_window"`
	RunOnStart   bool          `yaml:"run_on_start"`
}

// DispatcherConfig configures the outbox dispatcher loop.
type DispatcherConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	BatchSize      int           `yaml:"batch_size"`
	MaxRetries     int           `yaml:"max_retries"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// ChannelConfig describes one publisher channel. Only the fields of its Kind are read.
type ChannelConfig struct {
	Kind    string        `yaml:"kind"`
	Timeout time.Duration `yaml:"timeout"`

	// webhook
	URL     string            `yaml:"url"`
	Format  string            `yaml:"format"`
	Headers map[string]string `yaml:"headers"`

	// mqtt
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retained    bool   `yaml:"retained"`

	// kafka
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// redis
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
	DB      int    `yaml:"db"`

	// shared by mqtt and redis
	Password string `yaml:"password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServiceName: defaultServiceName,
		HTTPAddr:    defaultHTTPAddr,
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Evaluator: EvaluatorConfig{
			Interval:     defaultEvaluatorInterval,
			SampleWindow: defaultSampleWindow,
		},
		Dispatcher: DispatcherConfig{
			PollInterval:   defaultPollInterval,
			BatchSize:      defaultBatchSize,
			MaxRetries:     defaultMaxRetries,
			PublishTimeout: defaultPublishTimeout,
		},
	}
}

// Load reads config from the yaml file at path (or HIVEWATCH_CONFIG when path is empty),
// applies environment overrides, fills defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("HIVEWATCH_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HIVEWATCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.Log.Level = getenvDefault("HIVEWATCH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("HIVEWATCH_LOG_FORMAT", cfg.Log.Format)
	cfg.Evaluator.Interval = getenvDuration("HIVEWATCH_EVALUATOR_INTERVAL", cfg.Evaluator.Interval)
	cfg.Evaluator.SampleWindow = getenvInt("HIVEWATCH_EVALUATOR_SAMPLE_WINDOW", cfg.Evaluator.SampleWindow)
	cfg.Evaluator.RunOnStart = getenvBool("HIVEWATCH_EVALUATOR_RUN_ON_START", cfg.Evaluator.RunOnStart)
	cfg.Dispatcher.PollInterval = getenvDuration("HIVEWATCH_DISPATCH_INTERVAL", cfg.Dispatcher.PollInterval)
	cfg.Dispatcher.BatchSize = getenvInt("HIVEWATCH_DISPATCH_BATCH_SIZE", cfg.Dispatcher.BatchSize)
	cfg.Dispatcher.MaxRetries = getenvInt("HIVEWATCH_DISPATCH_MAX_RETRIES", cfg.Dispatcher.MaxRetries)
	cfg.Dispatcher.PublishTimeout = getenvDuration("HIVEWATCH_DISPATCH_PUBLISH_TIMEOUT", cfg.Dispatcher.PublishTimeout)

	if url := os.Getenv("HIVEWATCH_WEBHOOK_URL"); url != "" && len(cfg.Channels) == 0 {
		cfg.Channels = append(cfg.Channels, ChannelConfig{Kind: "webhook", URL: url, Format: "raw"})
	}
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.Dispatcher.PublishTimeout == 0 {
		c.Dispatcher.PublishTimeout = defaultPublishTimeout
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		ch.Kind = strings.ToLower(strings.TrimSpace(ch.Kind))
		if ch.Timeout == 0 {
			ch.Timeout = defaultChannelTimeout
		}
		switch ch.Kind {
		case "webhook":
			if ch.Format == "" {
				ch.Format = "raw"
			}
		case "mqtt":
			if ch.TopicPrefix == "" {
				ch.TopicPrefix = defaultMQTTTopicPrefix
			}
			if ch.ClientID == "" {
				ch.ClientID = c.ServiceName + "-dispatcher"
			}
		case "redis":
			if ch.Channel == "" {
				ch.Channel = defaultRedisChannel
			}
		}
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Evaluator.Interval <= 0 {
		return errors.New("config: evaluator interval must be positive")
	}
	if c.Evaluator.SampleWindow <= 0 {
		return errors.New("config: evaluator sample window must be positive")
	}
	if c.Dispatcher.PollInterval <= 0 {
		return errors.New("config: dispatcher poll interval must be positive")
	}
	if c.Dispatcher.BatchSize <= 0 {
		return errors.New("config: dispatcher batch size must be positive")
	}
	if c.Dispatcher.MaxRetries <= 0 {
		return errors.New("config: dispatcher max retries must be positive")
	}
	if c.Dispatcher.PublishTimeout < 0 {
		return errors.New("config: dispatcher publish timeout must not be negative")
	}
	for i, ch := range c.Channels {
		if ch.Kind == "" {
			return fmt.Errorf("config: channel %d: kind required", i)
		}
		if ch.QoS > 2 {
			return fmt.Errorf("config: channel %d: qos must be 0, 1 or 2", i)
		}
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
