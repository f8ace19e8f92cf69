package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Save store backends.
const (
	BackendSQLite   = "sqlite"
	BackendFiles    = "files"
	BackendPostgres = "postgres"
)

// Config is the runtime configuration read from storyplayer.yaml. Every
// field can be overridden from the environment.
type Config struct {
	Version  int            `yaml:"version"`
	Story    StoryConfig    `yaml:"story"`
	Engine   EngineConfig   `yaml:"engine"`
	Saves    SavesConfig    `yaml:"saves"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type StoryConfig struct {
	Path string `yaml:"path" env:"STORY_PATH"`
}

type EngineConfig struct {
	StepLimit int `yaml:"step_limit" env:"STORY_STEP_LIMIT"`
}

type SavesConfig struct {
	Backend  string `yaml:"backend" env:"STORY_SAVES_BACKEND"`
	Dir      string `yaml:"dir" env:"STORY_SAVES_DIR"`
	DB       string `yaml:"db" env:"STORY_SAVES_DB"`
	MaxSlots int    `yaml:"max_slots" env:"STORY_SAVES_MAX_SLOTS"`
	AutoSave bool   `yaml:"autosave" env:"STORY_AUTOSAVE"`
}

// APIConfig serves over TLS when both TLSCert and TLSKey are set.
type APIConfig struct {
	Port    int    `yaml:"port" env:"STORY_API_PORT"`
	TLSCert string `yaml:"tls_cert" env:"STORY_TLS_CERT"`
	TLSKey  string `yaml:"tls_key" env:"STORY_TLS_KEY"`

	// AlertWebhook receives JSON alerts when set.
	AlertWebhook string `yaml:"alert_webhook" env:"STORY_ALERT_WEBHOOK_URL"`
}

// MQTTConfig enables the presentation bridge when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"STORY_MQTT_BROKER"`
	ClientID string `yaml:"client_id" env:"STORY_MQTT_CLIENT_ID"`
	Prefix   string `yaml:"prefix" env:"STORY_MQTT_PREFIX"`
}

// PostgresConfig enables event persistence when Enabled is set, and backs
// saves when Saves.Backend is postgres. The password is never read from the
// file; see PostgresPassword.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled" env:"STORY_PG_ENABLED"`
	Host     string `yaml:"host" env:"STORY_PG_HOST"`
	Port     string `yaml:"port" env:"STORY_PG_PORT"`
	User     string `yaml:"user" env:"STORY_PG_USER"`
	Database string `yaml:"database" env:"STORY_PG_DATABASE"`
	SSLMode  string `yaml:"sslmode" env:"STORY_PG_SSLMODE"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Version: 1}
}

// Load reads the config file at path, then applies .env and STORY_*
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = &Config{}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if cfg.Version != 1 {
			return nil, fmt.Errorf("unsupported storyplayer.yaml version: %d", cfg.Version)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv applies environment overrides onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values that no default can repair.
func (c *Config) Validate() error {
	switch c.SavesBackend() {
	case BackendSQLite, BackendFiles, BackendPostgres:
	default:
		return fmt.Errorf("unknown saves backend %q", c.Saves.Backend)
	}
	if c.Saves.MaxSlots < 0 {
		return fmt.Errorf("saves.max_slots must not be negative: %d", c.Saves.MaxSlots)
	}
	if c.Engine.StepLimit < 0 {
		return fmt.Errorf("engine.step_limit must not be negative: %d", c.Engine.StepLimit)
	}
	return nil
}

// SavesBackend returns the configured backend, defaulting to sqlite.
func (c *Config) SavesBackend() string {
	if c.Saves.Backend == "" {
		return BackendSQLite
	}
	return c.Saves.Backend
}

// SavesDir returns the save directory, defaulting to "saves".
func (c *Config) SavesDir() string {
	if c.Saves.Dir == "" {
		return "saves"
	}
	return c.Saves.Dir
}

// SavesDB returns the sqlite database path, defaulting to saves.db inside
// SavesDir.
func (c *Config) SavesDB() string {
	if c.Saves.DB == "" {
		return filepath.Join(c.SavesDir(), "saves.db")
	}
	return c.Saves.DB
}

// APIPort returns the configured API port, defaulting to 8080 if not set.
func (c *Config) APIPort() int {
	if c.API.Port == 0 {
		return 8080
	}
	return c.API.Port
}

// MQTTPrefix returns the topic prefix, defaulting to "story".
func (c *Config) MQTTPrefix() string {
	if c.MQTT.Prefix == "" {
		return "story"
	}
	return c.MQTT.Prefix
}

// MQTTClientID returns the client id, defaulting to "storyplayer".
func (c *Config) MQTTClientID() string {
	if c.MQTT.ClientID == "" {
		return "storyplayer"
	}
	return c.MQTT.ClientID
}

// PostgresPassword resolves STORY_PG_PASSWORD, falling back to PGPASSWORD.
// Both honor the *_FILE convention.
func (c *Config) PostgresPassword() (string, error) {
	return ResolveSecret("STORY_PG_PASSWORD", "PGPASSWORD")
}
