package config

import (
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// API holds the remote API settings. BaseURL is the common prefix of every
// endpoint, e.g. "http://localhost:8080/api".
type API struct {
	BaseURL   string        `env:"API_BASE_URL" envDefault:"http://localhost:8080/api"`
	Timeout   time.Duration `env:"API_TIMEOUT"  envDefault:"10s"`
	LoginPath string        `env:"LOGIN_PATH"   envDefault:"/login"`
}

var _ APIConfig = API{}

func (a *API) sanitize() {
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.Timeout <= 0 {
		a.Timeout = defaultRequestTimeout
	}
	if a.LoginPath == "" {
		a.LoginPath = "/login"
	}
}

func (a API) GetAPIBaseURL() string {
	return a.BaseURL
}

func (a API) GetRequestTimeout() time.Duration {
	return a.Timeout
}

func (a API) GetLoginPath() string {
	return a.LoginPath
}
