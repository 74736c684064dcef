package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Log         LogConfig
	BrowserPool BrowserPoolConfig
	Queue       QueueConfig
	FileMode    FileModeConfig

	// Warnings are non-fatal configuration findings collected during
	// validation, logged once at startup.
	Warnings []string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Mode string // queue or file
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// BrowserPoolConfig holds the headless browser pool settings
type BrowserPoolConfig struct {
	MinSize               int
	MaxSize               int
	AcquireTimeout        time.Duration
	IdleTimeout           time.Duration
	MaxRendersPerInstance int
}

// QueueConfig holds the broker transport settings for queue mode
type QueueConfig struct {
	BootstrapServers     []string
	ConsumerGroupID      string
	RequestTopic         string
	ResultTopic          string
	DeadLetterTopic      string
	MaxRetries           int
	RetryDelay           time.Duration
	PollTimeout          time.Duration
	MaxConcurrentRenders int
	PdfOutputPath        string
	SecurityProtocol     string
	SaslMechanism        string
	SaslUsername         string
	SaslPassword         string
}

// FileModeConfig holds the filesystem batch settings for file mode
type FileModeConfig struct {
	TemplatesPath string
	OutputPath    string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with RENDERD_ prefix (e.g., RENDERD_QUEUE_SASL_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("RENDERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Mode: v.GetString("app.mode"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		BrowserPool: BrowserPoolConfig{
			MinSize:               v.GetInt("browser_pool.min_size"),
			MaxSize:               v.GetInt("browser_pool.max_size"),
			AcquireTimeout:        v.GetDuration("browser_pool.acquire_timeout"),
			IdleTimeout:           v.GetDuration("browser_pool.idle_timeout"),
			MaxRendersPerInstance: v.GetInt("browser_pool.max_renders_per_instance"),
		},
		Queue: QueueConfig{
			BootstrapServers:     v.GetStringSlice("queue.bootstrap_servers"),
			ConsumerGroupID:      v.GetString("queue.consumer_group_id"),
			RequestTopic:         v.GetString("queue.request_topic"),
			ResultTopic:          v.GetString("queue.result_topic"),
			DeadLetterTopic:      v.GetString("queue.dead_letter_topic"),
			MaxRetries:           v.GetInt("queue.max_retries"),
			RetryDelay:           v.GetDuration("queue.retry_delay"),
			PollTimeout:          v.GetDuration("queue.poll_timeout"),
			MaxConcurrentRenders: v.GetInt("queue.max_concurrent_renders"),
			PdfOutputPath:        v.GetString("queue.pdf_output_path"),
			SecurityProtocol:     v.GetString("queue.security_protocol"),
			SaslMechanism:        v.GetString("queue.sasl_mechanism"),
			SaslUsername:         v.GetString("queue.sasl_username"),
			SaslPassword:         v.GetString("queue.sasl_password"),
		},
		FileMode: FileModeConfig{
			TemplatesPath: v.GetString("file_mode.templates_path"),
			OutputPath:    v.GetString("file_mode.output_path"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "renderd"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Mode == "" {
		cfg.App.Mode = "queue"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.BrowserPool.MinSize == 0 {
		cfg.BrowserPool.MinSize = 1
	}
	if cfg.BrowserPool.MaxSize == 0 {
		cfg.BrowserPool.MaxSize = 4
	}
	if cfg.BrowserPool.AcquireTimeout == 0 {
		cfg.BrowserPool.AcquireTimeout = 30 * time.Second
	}
	if cfg.BrowserPool.IdleTimeout == 0 {
		cfg.BrowserPool.IdleTimeout = 5 * time.Minute
	}
	if cfg.BrowserPool.MaxRendersPerInstance == 0 {
		cfg.BrowserPool.MaxRendersPerInstance = 100
	}
	if len(cfg.Queue.BootstrapServers) == 0 {
		cfg.Queue.BootstrapServers = []string{"localhost:9092"}
	}
	if cfg.Queue.ConsumerGroupID == "" {
		cfg.Queue.ConsumerGroupID = "renderd"
	}
	if cfg.Queue.RequestTopic == "" {
		cfg.Queue.RequestTopic = "document.render.requests"
	}
	if cfg.Queue.ResultTopic == "" {
		cfg.Queue.ResultTopic = "document.render.results"
	}
	if cfg.Queue.DeadLetterTopic == "" {
		cfg.Queue.DeadLetterTopic = "document.render.dead-letter"
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Queue.RetryDelay == 0 {
		cfg.Queue.RetryDelay = 2 * time.Second
	}
	if cfg.Queue.PollTimeout == 0 {
		cfg.Queue.PollTimeout = 10 * time.Second
	}
	if cfg.Queue.MaxConcurrentRenders == 0 {
		cfg.Queue.MaxConcurrentRenders = cfg.BrowserPool.MaxSize
	}
	if cfg.Queue.PdfOutputPath == "" {
		cfg.Queue.PdfOutputPath = "./output"
	}
	if cfg.Queue.SecurityProtocol == "" {
		cfg.Queue.SecurityProtocol = "PLAINTEXT"
	}
	if cfg.FileMode.TemplatesPath == "" {
		cfg.FileMode.TemplatesPath = "./templates"
	}
	if cfg.FileMode.OutputPath == "" {
		cfg.FileMode.OutputPath = "./output"
	}
}

// validate performs validation on the configuration. Fatal problems return
// an error; tolerable misconfigurations are collected as warnings.
func (c *Config) validate() error {
	switch c.App.Mode {
	case "queue", "file":
	default:
		return fmt.Errorf("app.mode must be \"queue\" or \"file\", got %q", c.App.Mode)
	}

	if c.BrowserPool.MinSize < 0 {
		return fmt.Errorf("browser_pool.min_size cannot be negative")
	}
	if c.BrowserPool.MaxSize <= 0 {
		return fmt.Errorf("browser_pool.max_size must be positive")
	}
	if c.BrowserPool.MinSize > c.BrowserPool.MaxSize {
		return fmt.Errorf("browser_pool.min_size (%d) cannot exceed browser_pool.max_size (%d)",
			c.BrowserPool.MinSize, c.BrowserPool.MaxSize)
	}
	if c.BrowserPool.AcquireTimeout <= 0 {
		return fmt.Errorf("browser_pool.acquire_timeout must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries cannot be negative")
	}
	if c.Queue.MaxConcurrentRenders <= 0 {
		return fmt.Errorf("queue.max_concurrent_renders must be positive")
	}

	// Over-subscription is allowed but will starve on the pool's semaphore
	// under load, so it is surfaced rather than silently corrected.
	if c.Queue.MaxConcurrentRenders > c.BrowserPool.MaxSize {
		c.Warnings = append(c.Warnings, fmt.Sprintf(
			"queue.max_concurrent_renders (%d) exceeds browser_pool.max_size (%d); renders will queue on the pool",
			c.Queue.MaxConcurrentRenders, c.BrowserPool.MaxSize))
	}

	if c.App.Env == "production" {
		switch strings.ToUpper(c.Queue.SecurityProtocol) {
		case "SASL_PLAINTEXT", "SASL_SSL":
			if c.Queue.SaslUsername == "" || c.Queue.SaslPassword == "" {
				return fmt.Errorf("queue.sasl_username and queue.sasl_password are required with %s",
					c.Queue.SecurityProtocol)
			}
		}
	}

	return nil
}
