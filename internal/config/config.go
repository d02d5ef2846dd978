// Package config содержит логику чтения конфигурации сервиса геодроп.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса геодроп.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	CatalogPath      string `env:"CATALOG_PATH"`
	AuthSecret       string `env:"AUTH_SECRET"`
	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`

	MediaEndpoint   string `env:"MEDIA_ENDPOINT"`
	MediaBucket     string `env:"MEDIA_BUCKET"`
	MediaAccessKey  string `env:"MEDIA_ACCESS_KEY"`
	MediaSecretKey  string `env:"MEDIA_SECRET_KEY"`
	MediaCDNBaseURL string `env:"MEDIA_CDN_BASE_URL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCatalogPath := cfg.CatalogPath
	envNotifyURL := cfg.NotifyWebhookURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CatalogPath, "c", "config/catalog.yaml", "path to content catalog file")
	flag.StringVar(&cfg.NotifyWebhookURL, "n", "", "progress events webhook URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCatalogPath != "" {
		cfg.CatalogPath = envCatalogPath
	}
	if envNotifyURL != "" {
		cfg.NotifyWebhookURL = envNotifyURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "geodrop-secret"
	}

	return cfg, nil
}
