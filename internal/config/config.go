package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetLoginPath() string
}

type StorageConfig interface {
	GetStorageBackend() StorageBackend
	GetStorageFile() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPrefix() string
}

type mainConfig struct {
	EnvVars
	API
	Storage
}

// New loads the configuration from the environment. A .env file in the working
// directory is read first when present; real environment variables win.
func New() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("[config.New] load .env file: %w", err)
		}
	}

	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config.New] parse environment: %w", err)
	}
	c.API.sanitize()
	return c, nil
}
