package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Version is the only supported config file version.
const Version = 1

type Config struct {
	Version int           `yaml:"version"`
	Server  ServerConfig  `yaml:"server"`
	Dossier DossierConfig `yaml:"dossier"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
	Engine  EngineConfig  `yaml:"engine"`
	Journal JournalConfig `yaml:"journal"`
}

type ServerConfig struct {
	SocketPath     string        `yaml:"socket_path" env:"HAECCSTABLE_SOCKET"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"HAECCSTABLE_IDLE_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"HAECCSTABLE_WRITE_TIMEOUT"`
	MaxConnections int           `yaml:"max_connections" env:"HAECCSTABLE_MAX_CONNECTIONS"`
}

type DossierConfig struct {
	Path        string `yaml:"path" env:"HAECCSTABLE_DOSSIER"`
	Description string `yaml:"description" env:"HAECCSTABLE_DESCRIPTION"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"HAECCSTABLE_LOG_LEVEL"`
	Format string `yaml:"format" env:"HAECCSTABLE_LOG_FORMAT"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled" env:"HAECCSTABLE_MONITOR"`
	Addr    string `yaml:"addr" env:"HAECCSTABLE_MONITOR_ADDR"`
}

type EngineConfig struct {
	Enabled            bool    `yaml:"enabled" env:"HAECCSTABLE_ENGINE"`
	BrokerURL          string  `yaml:"broker_url" env:"MQTT_URL"`
	ClientID           string  `yaml:"client_id" env:"HAECCSTABLE_ENGINE_CLIENT_ID"`
	TopicPrefix        string  `yaml:"topic_prefix" env:"HAECCSTABLE_TOPIC_PREFIX"`
	HeartbeatTolerance float64 `yaml:"heartbeat_tolerance"`
}

type JournalConfig struct {
	Enabled   bool   `yaml:"enabled" env:"HAECCSTABLE_JOURNAL"`
	Host      string `yaml:"host" env:"PGHOST"`
	Port      int    `yaml:"port" env:"PGPORT"`
	User      string `yaml:"user" env:"PGUSER"`
	Database  string `yaml:"database" env:"PGDATABASE"`
	Password  string `yaml:"password" env:"PGPASSWORD"`
	SessionID string `yaml:"session_id" env:"HAECCSTABLE_SESSION_ID"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version: Version,
		Server: ServerConfig{
			SocketPath: filepath.Join(os.TempDir(), "haeccstable.sock"),
		},
		Dossier: DossierConfig{
			Path:        "dossier.json",
			Description: "Haeccstable Session",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Monitor: MonitorConfig{
			Addr: "127.0.0.1:7878",
		},
		Engine: EngineConfig{
			BrokerURL:          "tcp://localhost:1883",
			ClientID:           "haeccstable-core",
			TopicPrefix:        "haeccstable",
			HeartbeatTolerance: 3,
		},
		Journal: JournalConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "haeccstable",
			Database: "haeccstable",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is only an error when required.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := parseFile(b, cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	password, err := ResolveSecret("PGPASSWORD")
	if err != nil {
		return nil, err
	}
	if password != "" {
		cfg.Journal.Password = password
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFile(b []byte, cfg *Config) error {
	cfg.Version = 0
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return err
	}
	if cfg.Version != Version {
		return fmt.Errorf("unsupported config version: %d", cfg.Version)
	}
	return nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.SocketPath == "" {
		errs = append(errs, errors.New("server.socket_path is required"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must not be negative, got %d", c.Server.MaxConnections))
	}
	if c.Server.IdleTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if c.Dossier.Path == "" {
		errs = append(errs, errors.New("dossier.path is required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		errs = append(errs, errors.New("monitor.addr is required when the monitor is enabled"))
	}
	if c.Engine.Enabled {
		if c.Engine.BrokerURL == "" {
			errs = append(errs, errors.New("engine.broker_url is required when the engine bridge is enabled"))
		}
		if strings.Trim(c.Engine.TopicPrefix, "/") == "" {
			errs = append(errs, errors.New("engine.topic_prefix is required when the engine bridge is enabled"))
		}
	}
	if c.Engine.HeartbeatTolerance < 1 {
		errs = append(errs, fmt.Errorf("engine.heartbeat_tolerance must be at least 1, got %g", c.Engine.HeartbeatTolerance))
	}
	return errors.Join(errs...)
}

// ConfigPath picks the config file: the flag value, then HAECCSTABLE_CONFIG,
// then haeccstable.yaml in the working directory. The second result reports
// whether the file was asked for explicitly.
func ConfigPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if p := os.Getenv("HAECCSTABLE_CONFIG"); p != "" {
		return p, true
	}
	return "haeccstable.yaml", false
}
