package config

import (
	"fmt"
	"os"

	"github.com/drone/envsubst"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DB       DBconfig       `yaml:"database"`
	RabbitMq RabbitMqconfig `yaml:"rabbitmq"`
	Dispatch Dispatchconfig `yaml:"dispatch"`
	Routes   Routesconfig   `yaml:"routes"`
	Geo      Geoconfig      `yaml:"geolocation"`
	Log      Loggerconfig   `yaml:"log"`
	Secret   string         `yaml:"-"`
}

type DBconfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMqconfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Dispatchconfig points at the central dispatch WebSocket endpoint.
type Dispatchconfig struct {
	BaseURL string `yaml:"base_url"`
}

type Routesconfig struct {
	BaseURL string `yaml:"base_url"`
}

type Geoconfig struct {
	MaxSampleAgeSeconds int `yaml:"max_sample_age_seconds"`
	TimeoutSeconds      int `yaml:"timeout_seconds"`
}

type Loggerconfig struct {
	Level string `yaml:"level"`
}

// New loads config.yml, substituting ${VAR:-default} style references
// from the environment. A .env file next to the binary is honored.
func New(path string) (*Config, error) {
	// Missing .env is fine; environment may already be populated.
	_ = gotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	replaced, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("substitute env: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(replaced), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Secret = os.Getenv("JWT_SECRET")

	return cfg, nil
}
