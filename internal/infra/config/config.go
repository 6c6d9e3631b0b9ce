package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	// TaskTTL is the store-level expiry for task records; zero keeps them
	// forever (records are never deleted by the service itself).
	TaskTTL          time.Duration `yaml:"task_ttl"`
	MaxUploadBytesMb int64         `yaml:"max_upload_mb"`

	Provider Provider `yaml:"provider"`
	Redis    Redis    `yaml:"redis"`
	MinIO    MinIO    `yaml:"minio"`
	NATS     NATS     `yaml:"nats"`
}

type Provider struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	CallbackURL string        `yaml:"callback_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MinIO struct {
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UseSSL          bool          `yaml:"use_ssl"`
	Bucket          string        `yaml:"bucket"`
	URLExpiry       time.Duration `yaml:"url_expiry"`
}

type NATS struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Subject       string `yaml:"subject"`
	Stream        string `yaml:"stream"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if key := os.Getenv("PROVIDER_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}

	if cfg.Addr == "" {
		log.Fatalf("config: addr is empty")
	}
	if cfg.Provider.BaseURL == "" {
		log.Fatalf("config: provider.base_url is empty")
	}
	if cfg.Provider.APIKey == "" {
		log.Fatalf("config: provider.api_key is empty")
	}
	if cfg.Provider.Model == "" {
		log.Fatalf("config: provider.model is empty")
	}
	if cfg.NATS.Subject == "" {
		log.Fatalf("config: nats.subject is empty")
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytesMb <= 0 {
		cfg.MaxUploadBytesMb = 20
	}
	if cfg.TaskTTL < 0 {
		cfg.TaskTTL = 0
	}
	if cfg.MinIO.URLExpiry <= 0 {
		cfg.MinIO.URLExpiry = 24 * time.Hour
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "GENERATION_EVENTS"
	}

	return &cfg
}
