// Package config loads the settings of the wizard and backend commands using
// Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Transports understood by the commands.
const (
	TransportNATS = "nats"
	TransportHTTP = "http"
)

// ProjectFile is the project-local configuration file.
const ProjectFile = "schoolwizard.yml"

// EnvPrefix prefixes environment overrides, e.g. SCHOOLWIZARD_TRANSPORT.
const EnvPrefix = "SCHOOLWIZARD"

// Config holds all configuration values.
type Config struct {
	Transport     string        `mapstructure:"transport" yaml:"transport"`
	NATSURL       string        `mapstructure:"nats_url" yaml:"nats_url"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	SubjectPrefix string        `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	LogLevel      string        `mapstructure:"log_level" yaml:"log_level"`
	LogHuman      bool          `mapstructure:"log_human" yaml:"log_human"`
	School        string        `mapstructure:"school" yaml:"school"`
	Database      string        `mapstructure:"database" yaml:"database"`
	Seed          string        `mapstructure:"seed" yaml:"seed"`
	Listen        string        `mapstructure:"listen" yaml:"listen"`
	HTTPAddr      string        `mapstructure:"http_addr" yaml:"http_addr"`
}

var keys = []string{
	"transport", "nats_url", "endpoint", "subject_prefix", "timeout",
	"log_level", "log_human", "school", "database", "seed", "listen", "http_addr",
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Transport:     TransportNATS,
		NATSURL:       "nats://127.0.0.1:4222",
		SubjectPrefix: "schoolwizard",
		Timeout:       5 * time.Second,
		LogLevel:      "info",
		Database:      ":memory:",
		Listen:        "127.0.0.1:4222",
	}
}

// Load loads configuration with full precedence:
// flags > ENV vars > config file > defaults.
// An empty path reads ProjectFile when it exists. Flags are matched by key
// with underscores written as dashes and only count when changed.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := Defaults()
	v.SetDefault("transport", defaults.Transport)
	v.SetDefault("nats_url", defaults.NATSURL)
	v.SetDefault("endpoint", defaults.Endpoint)
	v.SetDefault("subject_prefix", defaults.SubjectPrefix)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_human", defaults.LogHuman)
	v.SetDefault("school", defaults.School)
	v.SetDefault("database", defaults.Database)
	v.SetDefault("seed", defaults.Seed)
	v.SetDefault("listen", defaults.Listen)
	v.SetDefault("http_addr", defaults.HTTPAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: binding %s env: %w", key, err)
		}
	}

	if path == "" && fileExists(ProjectFile) {
		path = ProjectFile
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if flags != nil {
		for _, key := range keys {
			flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("config: binding %s flag: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks transport settings.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportNATS:
		if c.NATSURL == "" {
			return errors.New("config: nats transport needs nats_url")
		}
	case TransportHTTP:
		if c.Endpoint == "" {
			return errors.New("config: http transport needs endpoint")
		}
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	return nil
}

// Write stores cfg as YAML at path.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
