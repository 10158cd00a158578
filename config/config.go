package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Go-routine-4595/sensorhub/adapters/broker"
	"github.com/Go-routine-4595/sensorhub/adapters/controller"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/event-hub"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/mqtt"
	"github.com/Go-routine-4595/sensorhub/adapters/gateway/rabbitmq"
	"github.com/Go-routine-4595/sensorhub/auth"
	"github.com/Go-routine-4595/sensorhub/client"
	"github.com/Go-routine-4595/sensorhub/simulator"
)

// SecretEnv overrides AuthConfig.Secret so the secret can stay out of the file.
const SecretEnv = "SENSORHUB_JWT_SECRET"

type Config struct {
	LogLevel                    int `yaml:"LogLevel"`
	mqtt.MqttConf               `yaml:"MqttConf"`
	broker.BrokerConfig         `yaml:"BrokerConfig"`
	controller.ControllerConfig `yaml:"ControllerConfig"`
	StoreConfig                 `yaml:"StoreConfig"`
	AuthConfig                  `yaml:"AuthConfig"`
	rabbitmq.RabbitMQConfig     `yaml:"RabbitConfig"`
	event_hub.EventHubConfig    `yaml:"EventHubConfig"`
	simulator.SimulatorConfig   `yaml:"SimulatorConfig"`
	client.AgentConfig          `yaml:"AgentConfig"`
}

type StoreConfig struct {
	// Type is memory, sqlite or postgres.
	Type       string `yaml:"Type"`
	Path       string `yaml:"Path"`
	ConnString string `yaml:"ConnString"`
	Table      string `yaml:"Table"`
}

type AuthConfig struct {
	Secret string        `yaml:"Secret"`
	TTL    time.Duration `yaml:"TTL"`
	// Users maps an email to its bcrypt hash, see `sensorhub hash-password`.
	Users      map[string]string `yaml:"Users"`
	Revocation bool              `yaml:"Revocation"`
}

// Validate checks what serving the API needs; other commands never look at it.
func (a AuthConfig) Validate() error {
	if a.Secret == "" {
		return fmt.Errorf("AuthConfig.Secret (or %s) is required", SecretEnv)
	}
	if len(a.Users) == 0 {
		return fmt.Errorf("AuthConfig.Users needs at least one user")
	}
	return nil
}

// Load reads path, fills defaults and validates. A missing file yields the
// defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MqttConf.Connection == "" {
		c.MqttConf.Connection = "tcp://localhost:1883"
	}
	if c.BrokerConfig.Address == "" {
		c.BrokerConfig.Address = ":1883"
	}
	if c.ControllerConfig.Addr == "" {
		c.ControllerConfig.Addr = ":3001"
	}
	if c.StoreConfig.Type == "" {
		c.StoreConfig.Type = "memory"
	}
	if c.StoreConfig.Path == "" {
		c.StoreConfig.Path = "sensorhub.db"
	}
	if c.StoreConfig.Table == "" {
		c.StoreConfig.Table = "sensors_data"
	}
	if secret := os.Getenv(SecretEnv); secret != "" {
		c.AuthConfig.Secret = secret
	}
	if c.AuthConfig.TTL <= 0 {
		c.AuthConfig.TTL = auth.DefaultTTL
	}

	c.SimulatorConfig.ApplyDefaults()
	c.AgentConfig.ApplyDefaults()
}

func (c *Config) validate() error {
	switch c.StoreConfig.Type {
	case "memory", "sqlite":
	case "postgres":
		if c.StoreConfig.ConnString == "" {
			return fmt.Errorf("StoreConfig.ConnString is required for postgres")
		}
	default:
		return fmt.Errorf("StoreConfig.Type %q is not one of memory, sqlite, postgres", c.StoreConfig.Type)
	}
	if c.MqttConf.QoS > 2 {
		return fmt.Errorf("MqttConf.QoS must be 0, 1 or 2")
	}
	if err := c.SimulatorConfig.Validate(); err != nil {
		return fmt.Errorf("simulator config: %w", err)
	}
	return nil
}
