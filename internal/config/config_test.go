package config_test

import (
	"testing"
	"time"

	"github.com/comptamaroc/webclient/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env file

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "Compta Maroc", c.GetAppName())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "info", c.GetLogLevel())
	require.Equal(t, "http://localhost:8080/api", c.GetAPIBaseURL())
	require.Equal(t, 10*time.Second, c.GetRequestTimeout())
	require.Equal(t, "/login", c.GetLoginPath())
	require.Equal(t, config.StorageFile, c.GetStorageBackend())
	require.Equal(t, "./data/session.json", c.GetStorageFile())
	require.Equal(t, "comptamaroc:", c.GetRedisPrefix())
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_BASE_URL", " https://erp.example.com/api/ ")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("ENV", "prod")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "https://erp.example.com/api", c.GetAPIBaseURL())
	require.Equal(t, 3*time.Second, c.GetRequestTimeout())
	require.Equal(t, config.StorageSQLite, c.GetStorageBackend())
	require.Equal(t, "PROD", c.GetEnv())
}

func TestNew_InvalidBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_BACKEND", "localstorage")

	_, err := config.New()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid StorageBackend")
}

func TestNew_NonPositiveTimeoutFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_TIMEOUT", "0s")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, c.GetRequestTimeout())
}
