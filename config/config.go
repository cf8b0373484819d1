// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when Load is given no path. Its absence is not an error.
const DefaultPath = "config.yml"

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Routing  RoutingConfig  `yaml:"routing"`
	Presence PresenceConfig `yaml:"presence"`
	Broker   BrokerConfig   `yaml:"broker"`
}

type ServerConfig struct {
	Port      int    `yaml:"port" validate:"gt=0,lte=65535"`
	CertFile  string `yaml:"certFile" validate:"required_with=KeyFile"`
	KeyFile   string `yaml:"keyFile" validate:"required_with=CertFile"`
	StaticDir string `yaml:"staticDir"`
}

type StoreConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=memory mongo"`
	MongoURI  string `yaml:"mongoURI" validate:"required_if=Backend mongo"`
	Database  string `yaml:"database" validate:"required_if=Backend mongo"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gt=0"`
}

type RoutingConfig struct {
	Provider      string `yaml:"provider" validate:"oneof=mapbox osrm"`
	BaseURL       string `yaml:"baseURL" validate:"omitempty,url"`
	AccessToken   string `yaml:"accessToken" validate:"required_if=Provider mapbox"`
	Profile       string `yaml:"profile" validate:"oneof=driving walking cycling driving-traffic"`
	TimeoutMS     int    `yaml:"timeoutMS" validate:"gt=0"`
	MaxConcurrent int    `yaml:"maxConcurrent" validate:"gt=0"`
}

type PresenceConfig struct {
	MinReportIntervalMS int `yaml:"minReportIntervalMS" validate:"gte=0"`
	LocationTimeoutMS   int `yaml:"locationTimeoutMS" validate:"gte=0"`
	RecentTeamsLimit    int `yaml:"recentTeamsLimit" validate:"gt=0"`
}

// BrokerConfig enables publishing of team views when URL is set.
type BrokerConfig struct {
	URL      string `yaml:"url" validate:"omitempty,url"`
	Exchange string `yaml:"exchange" validate:"required_with=URL"`
}

func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{Port: 3000, StaticDir: "./public"},
		Store: StoreConfig{
			Backend:   "memory",
			Database:  "friendsnav",
			TimeoutMS: 10000,
		},
		Routing: RoutingConfig{
			Provider:      "osrm",
			Profile:       "driving",
			TimeoutMS:     10000,
			MaxConcurrent: 8,
		},
		Presence: PresenceConfig{
			MinReportIntervalMS: 1000,
			LocationTimeoutMS:   10000,
			RecentTeamsLimit:    20,
		},
		Broker: BrokerConfig{Exchange: "friendsnav.views"},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the environment,
// in increasing order of precedence, and validates the result.
func Load(path string) (AppConfig, error) {
	_ = godotenv.Load()

	cfg := Default()
	optional := path == ""
	if optional {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return AppConfig{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.CertFile = getEnv("TLS_CERT_FILE", cfg.Server.CertFile)
	cfg.Server.KeyFile = getEnv("TLS_KEY_FILE", cfg.Server.KeyFile)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.MongoURI = getEnv("MONGO_URI", cfg.Store.MongoURI)
	cfg.Store.Database = getEnv("MONGO_DATABASE", cfg.Store.Database)
	cfg.Routing.Provider = getEnv("ROUTING_PROVIDER", cfg.Routing.Provider)
	cfg.Routing.BaseURL = getEnv("ROUTING_BASE_URL", cfg.Routing.BaseURL)
	cfg.Routing.AccessToken = getEnv("MAPBOX_ACCESS_TOKEN", cfg.Routing.AccessToken)
	cfg.Broker.URL = getEnv("RABBITMQ_URL", cfg.Broker.URL)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (c StoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c RoutingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c PresenceConfig) MinReportInterval() time.Duration {
	return time.Duration(c.MinReportIntervalMS) * time.Millisecond
}

func (c PresenceConfig) LocationTimeout() time.Duration {
	return time.Duration(c.LocationTimeoutMS) * time.Millisecond
}
