package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	BaseURL                   string
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int
	Hostname                  string
	ProgressChannel           string
	QueueName                 string
	RedisAddr                 string
	RedisDB                   int
	RedisPassword             string
	ResultKeyPrefix           string
	ServerHost                string
	ServerPort                int
	StorageRoot               string
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        3,
		Hostname:                  hostname,
		ProgressChannel:           "ocr:progress",
		QueueName:                 "ocr:processing",
		RedisAddr:                 "localhost:6379",
		ResultKeyPrefix:           "ocr:result:",
		ServerPort:                3000,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3000"
	}

	return cfg, nil
}

// NewForTest returns a config suitable for unit tests without consulting the
// environment.
func NewForTest() *Config {
	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 1,
		DatabaseConnectRetryDelay: time.Millisecond,
		DatabaseFilePath:          ":memory:",
		DatabaseMaxRetries:        3,
		ProgressChannel:           "ocr:progress",
		QueueName:                 "ocr:processing",
		RedisAddr:                 "localhost:6379",
		ResultKeyPrefix:           "ocr:result:",
		ServerHost:                "127.0.0.1",
	}
	loadTestConfig(cfg)
	return cfg
}
