// Package config provides YAML-based configuration loading for the acomms
// node.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tsaubergine/goby3/pkg/queue"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the node/application
	AppName string `mapstructure:"app_name"`

	// ModemID is this node's link-layer address (1..30); 0 is broadcast
	ModemID int `mapstructure:"modem_id"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// SourceEncoding selects the codec used to render a queued message's
	// structured source through the ack and expire callbacks: json, cbor,
	// or proto
	SourceEncoding string `mapstructure:"source_encoding"`

	// Modem configures the physical link driver
	Modem ModemConfig `mapstructure:"modem"`

	// Queues declares the message queues registered at startup
	Queues []QueueSpec `mapstructure:"queues"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ModemConfig selects and configures the link driver.
type ModemConfig struct {
	// Driver: udp_multicast or mem
	Driver string `mapstructure:"driver"`
	// Listen address for inbound datagrams, e.g. ":50001"
	Listen string `mapstructure:"listen"`
	// Group is the multicast group datagrams are sent to, e.g. "239.142.0.10:50001"
	Group string `mapstructure:"group"`
	// MaxFrameBytes caps one physical frame
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
	// PollIntervalMS is the driver DoWork tick
	PollIntervalMS int `mapstructure:"poll_interval_ms"`
	// TransmitIntervalMS is how often a transmission opportunity opens
	TransmitIntervalMS int `mapstructure:"transmit_interval_ms"`
}

// QueueSpec declares one message queue.
type QueueSpec struct {
	ID              int     `mapstructure:"id"`
	Class           string  `mapstructure:"class"` // dccl or ccl
	Name            string  `mapstructure:"name"`
	TTLSeconds      int     `mapstructure:"ttl_seconds"`
	BlackoutSeconds int     `mapstructure:"blackout_seconds"`
	Weight          float64 `mapstructure:"weight"`
	Ack             bool    `mapstructure:"ack"`
	OnDemand        bool    `mapstructure:"on_demand"`
	MaxQueue        int     `mapstructure:"max_queue"`
}

// QueueConfig converts the declaration to the queue layer's configuration.
func (s QueueSpec) QueueConfig() (queue.Config, error) {
	cfg := queue.Config{
		ID:       s.ID,
		Name:     s.Name,
		TTL:      time.Duration(s.TTLSeconds) * time.Second,
		Blackout: time.Duration(s.BlackoutSeconds) * time.Second,
		Weight:   s.Weight,
		Ack:      s.Ack,
		OnDemand: s.OnDemand,
		MaxQueue: s.MaxQueue,
	}
	switch strings.ToLower(strings.TrimSpace(s.Class)) {
	case "", "dccl":
		cfg.Class = queue.ClassDCCL
	case "ccl":
		cfg.Class = queue.ClassCCL
	default:
		return queue.Config{}, fmt.Errorf("invalid queue class: %q", s.Class)
	}
	return cfg, nil
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName:        "goby-queue",
		ModemID:        1,
		SourceEncoding: "json",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/goby.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Modem: ModemConfig{
			Driver:             "udp_multicast",
			Listen:             ":50001",
			Group:              "239.142.0.10:50001",
			MaxFrameBytes:      64,
			PollIntervalMS:     100,
			TransmitIntervalMS: 10000,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix GOBY and `.`/`-` are replaced with `_`.
// Example: GOBY_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GOBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("modem_id", cfg.ModemID)
	v.SetDefault("source_encoding", cfg.SourceEncoding)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("modem.driver", cfg.Modem.Driver)
	v.SetDefault("modem.listen", cfg.Modem.Listen)
	v.SetDefault("modem.group", cfg.Modem.Group)
	v.SetDefault("modem.max_frame_bytes", cfg.Modem.MaxFrameBytes)
	v.SetDefault("modem.poll_interval_ms", cfg.Modem.PollIntervalMS)
	v.SetDefault("modem.transmit_interval_ms", cfg.Modem.TransmitIntervalMS)
	v.SetDefault("queues", cfg.Queues)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("GOBY_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `goby`
		v.SetConfigName("goby")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".goby"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.ModemID <= 0 {
		return fmt.Errorf("invalid modem_id: %d", c.ModemID)
	}
	switch strings.ToLower(strings.TrimSpace(c.SourceEncoding)) {
	case "", "json", "cbor", "proto", "protobuf":
		// ok
	default:
		return fmt.Errorf("invalid source_encoding: %q", c.SourceEncoding)
	}
	switch strings.ToLower(strings.TrimSpace(c.Modem.Driver)) {
	case "udp_multicast", "mem":
		// ok
	default:
		return fmt.Errorf("invalid modem.driver: %q", c.Modem.Driver)
	}
	if c.Modem.MaxFrameBytes <= 0 {
		c.Modem.MaxFrameBytes = 64
	}
	for i := range c.Queues {
		if _, err := c.Queues[i].QueueConfig(); err != nil {
			return fmt.Errorf("queues[%d]: %w", i, err)
		}
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
