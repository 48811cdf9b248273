package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	ProviderGCE    = "gce"
	ProviderEC2    = "ec2"
	ProviderMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Provider string `mapstructure:"provider" toml:"provider"`

	GCE     GCEConfig     `mapstructure:"gce" toml:"gce"`
	EC2     EC2Config     `mapstructure:"ec2" toml:"ec2"`
	Memory  MemoryConfig  `mapstructure:"memory" toml:"memory,omitempty"`
	NATS    NATSConfig    `mapstructure:"nats" toml:"nats"`
	Push    PushConfig    `mapstructure:"push" toml:"push"`
	Handler HandlerConfig `mapstructure:"handler" toml:"handler"`
	Log     LogConfig     `mapstructure:"log" toml:"log"`
}

type GCEConfig struct {
	Project         string `mapstructure:"project" toml:"project"`
	CredentialsFile string `mapstructure:"credentials_file" toml:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint" toml:"endpoint"`
}

// EC2Config also covers EC2-compatible endpoints such as a hive AWS gateway.
type EC2Config struct {
	Region          string `mapstructure:"region" toml:"region"`
	Endpoint        string `mapstructure:"endpoint" toml:"endpoint"`
	AccessKey       string `mapstructure:"access_key" toml:"access_key"`
	SecretKey       string `mapstructure:"secret_key" toml:"secret_key"`
	CredentialsFile string `mapstructure:"credentials_file" toml:"credentials_file"`
	Profile         string `mapstructure:"profile" toml:"profile"`
}

// MemoryConfig seeds the in-process directory used for dry runs.
type MemoryConfig struct {
	Instances []MemoryInstance `mapstructure:"instances" toml:"instances"`
}

type MemoryInstance struct {
	Name   string            `mapstructure:"name" toml:"name"`
	Zone   string            `mapstructure:"zone" toml:"zone"`
	Labels map[string]string `mapstructure:"labels" toml:"labels"`
	Status string            `mapstructure:"status" toml:"status"`
}

// NATSConfig holds the NATS configuration
type NATSConfig struct {
	Host     string       `mapstructure:"host" toml:"host"`
	ACL      NATSACL      `mapstructure:"acl" toml:"acl"`
	Sub      NATSSub      `mapstructure:"sub" toml:"sub"`
	Embedded NATSEmbedded `mapstructure:"embedded" toml:"embedded"`
}

// NATSEmbedded runs an in-process NATS server; Host above is then ignored.
type NATSEmbedded struct {
	Enabled    bool   `mapstructure:"enabled" toml:"enabled"`
	Host       string `mapstructure:"host" toml:"host"`
	Port       int    `mapstructure:"port" toml:"port"`
	ConfigFile string `mapstructure:"config_file" toml:"config_file"`
}

// NATSACL holds the NATS ACL configuration
type NATSACL struct {
	Token string `mapstructure:"token" toml:"token"`
}

// NATSSub holds the subjects and queue group the daemon subscribes with
type NATSSub struct {
	Start string `mapstructure:"start" toml:"start"`
	Stop  string `mapstructure:"stop" toml:"stop"`
	Queue string `mapstructure:"queue" toml:"queue"`
}

// PushConfig holds the HTTP push endpoint configuration
type PushConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Host    string `mapstructure:"host" toml:"host"`
	Token   string `mapstructure:"token" toml:"token"`
}

type HandlerConfig struct {
	// Await joins per-instance actions before an invocation returns. When
	// false, actions are dispatched and drained only at shutdown.
	Await         bool          `mapstructure:"await" toml:"await"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" toml:"action_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Provider: ProviderGCE,
		NATS: NATSConfig{
			Host: "nats://127.0.0.1:4222",
			Sub: NATSSub{
				Start: "vmsched.start",
				Stop:  "vmsched.stop",
				Queue: "vmsched-workers",
			},
			Embedded: NATSEmbedded{
				Host: "127.0.0.1",
				Port: 4222,
			},
		},
		Push: PushConfig{
			Host: "0.0.0.0:8080",
		},
		Handler: HandlerConfig{
			Await: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var envKeys = []string{
	"provider",
	"gce.project", "gce.credentials_file", "gce.endpoint",
	"ec2.region", "ec2.endpoint", "ec2.access_key", "ec2.secret_key", "ec2.credentials_file", "ec2.profile",
	"nats.host", "nats.acl.token", "nats.sub.start", "nats.sub.stop", "nats.sub.queue",
	"nats.embedded.enabled", "nats.embedded.host", "nats.embedded.port", "nats.embedded.config_file",
	"push.enabled", "push.host", "push.token",
	"handler.await", "handler.action_timeout",
	"log.level", "log.format",
}

// LoadConfig loads the configuration from file and environment variables.
// Nested keys map to VMSCHED_<SECTION>_<KEY>, e.g. VMSCHED_NATS_ACL_TOKEN.
func LoadConfig(configPath string) (*Config, error) {
	def := Default()
	viper.SetDefault("provider", def.Provider)
	viper.SetDefault("nats.host", def.NATS.Host)
	viper.SetDefault("nats.sub.start", def.NATS.Sub.Start)
	viper.SetDefault("nats.sub.stop", def.NATS.Sub.Stop)
	viper.SetDefault("nats.sub.queue", def.NATS.Sub.Queue)
	viper.SetDefault("nats.embedded.host", def.NATS.Embedded.Host)
	viper.SetDefault("nats.embedded.port", def.NATS.Embedded.Port)
	viper.SetDefault("push.host", def.Push.Host)
	viper.SetDefault("handler.await", def.Handler.Await)
	viper.SetDefault("handler.action_timeout", "0s")
	viper.SetDefault("log.level", def.Log.Level)
	viper.SetDefault("log.format", def.Log.Format)

	// Set environment variable prefix
	viper.SetEnvPrefix("VMSCHED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			viper.SetConfigFile(configPath)
			viper.SetConfigType("toml")

			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Config file not found: %s, using environment variables and defaults\n", configPath)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the provider selection and its required settings.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderGCE:
		if c.GCE.Project == "" {
			errs = append(errs, errors.New("gce.project is required"))
		}
	case ProviderEC2:
		if c.EC2.Region == "" {
			errs = append(errs, errors.New("ec2.region is required"))
		}
		if (c.EC2.AccessKey == "") != (c.EC2.SecretKey == "") {
			errs = append(errs, errors.New("ec2.access_key and ec2.secret_key must be set together"))
		}
	case ProviderMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q (want %s, %s or %s)", c.Provider, ProviderGCE, ProviderEC2, ProviderMemory))
	}

	if c.Handler.ActionTimeout < 0 {
		errs = append(errs, errors.New("handler.action_timeout must not be negative"))
	}
	if c.Push.Enabled && c.Push.Host == "" {
		errs = append(errs, errors.New("push.host is required when push is enabled"))
	}

	return errors.Join(errs...)
}

// WriteDefault writes cfg as TOML to path, creating parent directories. An
// existing file is left untouched unless overwrite is set.
func WriteDefault(path string, cfg Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
