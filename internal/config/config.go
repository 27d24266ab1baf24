package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lu0b0/2925-mail-2api/internal/platform/mail2925"
)

const (
	DefaultPort       = 8000
	DefaultCookieFile = "cookie.txt"
)

type Config struct {
	Port            int
	CookieFile      string        // file holding the provider session cookie
	ProviderBaseURL string        // scheme://host of the mail provider
	ProviderProfile string        // optional TOML file overriding request headers
	ProviderTimeout time.Duration // 0 leaves the transport default in place
	LogLevel        string
	LogFormat       string
	LogVerbose      bool
	OTELEnabled     bool
	OTELEndpoint    string
	OTELServiceName string
	OTELEnvironment string
	OTELInsecure    bool
}

func Load() (*Config, error) {
	port := DefaultPort
	if p := os.Getenv("PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("PORT must be a number: %w", err)
		}
	}

	cookieFile := strings.TrimSpace(os.Getenv("COOKIE_FILE"))
	if cookieFile == "" {
		cookieFile = DefaultCookieFile
	}

	baseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL")), "/")
	if baseURL == "" {
		baseURL = mail2925.DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("PROVIDER_BASE_URL must start with http:// or https://, got %q", baseURL)
	}

	var timeout time.Duration
	if t := os.Getenv("PROVIDER_TIMEOUT"); t != "" {
		var err error
		timeout, err = time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("PROVIDER_TIMEOUT must be a duration: %w", err)
		}
		if timeout < 0 {
			return nil, fmt.Errorf("PROVIDER_TIMEOUT must not be negative")
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	otelServiceName := os.Getenv("OTEL_SERVICE_NAME")
	if otelServiceName == "" {
		otelServiceName = "mail2api"
	}
	otelEnvironment := os.Getenv("OTEL_ENVIRONMENT")
	if otelEnvironment == "" {
		otelEnvironment = "dev"
	}

	return &Config{
		Port:            port,
		CookieFile:      cookieFile,
		ProviderBaseURL: baseURL,
		ProviderProfile: strings.TrimSpace(os.Getenv("PROVIDER_PROFILE")),
		ProviderTimeout: timeout,
		LogLevel:        logLevel,
		LogFormat:       os.Getenv("LOG_FORMAT"),
		LogVerbose:      envBool("LOG_VERBOSE"),
		OTELEnabled:     envBool("OTEL_ENABLED"),
		OTELEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELServiceName: otelServiceName,
		OTELEnvironment: otelEnvironment,
		OTELInsecure:    envBool("OTEL_INSECURE"),
	}, nil
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true"
}
