// File: internal/config/config.go
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Stealth() StealthConfig
	Delivery() DeliveryConfig

	// Stealth Setters
	SetTypingWPMRange(min, max int)
	SetTypoProbability(p float64)
	SetFatigueSimulation(bool)

	// Delivery Setters
	SetDeliveryMode(mode string)
	SetDeliveryTimingMultiplier(m float64)
	SetDeliveryEnableTypos(bool)

	Validate() error
	WriteYAML(w io.Writer) error
}

// Config holds the entire application configuration.
// Sections are reached through the Interface getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	StealthCfg  StealthConfig  `mapstructure:"stealth" yaml:"stealth"`
	DeliveryCfg DeliveryConfig `mapstructure:"delivery" yaml:"delivery"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig { return c.LoggerCfg }
func (c *Config) Stealth() StealthConfig { return c.StealthCfg }
func (c *Config) Delivery() DeliveryConfig { return c.DeliveryCfg }

// --- Interface Method Implementations (Setters) ---

// Stealth Setters
func (c *Config) SetTypingWPMRange(min, max int) {
	c.StealthCfg.Typing.WPMRange = IntRange{Min: min, Max: max}
}
func (c *Config) SetTypoProbability(p float64) { c.StealthCfg.Errors.TypoProbability = p }
func (c *Config) SetFatigueSimulation(b bool) { c.StealthCfg.Behavioral.FatigueSimulation = b }

// Delivery Setters
func (c *Config) SetDeliveryMode(mode string) { c.DeliveryCfg.DefaultMode = mode }
func (c *Config) SetDeliveryTimingMultiplier(m float64) { c.DeliveryCfg.TimingMultiplier = m }
func (c *Config) SetDeliveryEnableTypos(b bool) { c.DeliveryCfg.EnableTypos = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NOTE: StealthConfig and its sections live in internal/config/stealth_config.go

// DeliveryConfig holds the delivery manager policy and the default options
// applied to deliveries that do not carry their own.
type DeliveryConfig struct {
	AutoRetry       bool          `mapstructure:"auto_retry" yaml:"auto_retry"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	FallbackChannel string        `mapstructure:"fallback_channel" yaml:"fallback_channel"`

	// RateLimit caps deliveries per second across the manager. 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`

	// Default delivery options.
	DefaultMode        string  `mapstructure:"default_mode" yaml:"default_mode"`
	TimingMultiplier   float64 `mapstructure:"timing_multiplier" yaml:"timing_multiplier"`
	EnableTypos        bool    `mapstructure:"enable_typos" yaml:"enable_typos"`
	SkipPreTypingDelay bool    `mapstructure:"skip_pre_typing_delay" yaml:"skip_pre_typing_delay"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cadence")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Stealth --
	// Initialize all stealth defaults using the centralized function in stealth_config.go.
	setStealthDefaults(v)

	// -- Delivery --
	v.SetDefault("delivery.auto_retry", true)
	v.SetDefault("delivery.max_retries", 3)
	v.SetDefault("delivery.retry_delay", "1s")
	v.SetDefault("delivery.fallback_channel", "")
	v.SetDefault("delivery.rate_limit", 0.0)
	v.SetDefault("delivery.rate_burst", 1)
	v.SetDefault("delivery.default_mode", "paced")
	v.SetDefault("delivery.timing_multiplier", 1.0)
	v.SetDefault("delivery.enable_typos", true)
	v.SetDefault("delivery.skip_pre_typing_delay", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// WriteYAML encodes the configuration in the layout of the config file, so
// the output can be loaded back with --config.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	return enc.Close()
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.StealthCfg.Validate(); err != nil {
		return fmt.Errorf("stealth configuration invalid: %w", err)
	}
	if err := c.DeliveryCfg.Validate(); err != nil {
		return fmt.Errorf("delivery configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the DeliveryConfig settings.
func (d *DeliveryConfig) Validate() error {
	if d.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if d.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if d.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if d.RateLimit > 0 && d.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be at least 1 when rate_limit is set")
	}
	if d.TimingMultiplier <= 0 {
		return fmt.Errorf("timing_multiplier must be greater than 0")
	}
	switch d.DefaultMode {
	case "instant", "paced":
	default:
		return fmt.Errorf("default_mode must be one of instant, paced; got %q", d.DefaultMode)
	}
	return nil
}
