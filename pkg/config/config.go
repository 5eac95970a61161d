package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/zen-systems/finroute/pkg/credentials"
)

// ConfigurationError reports an invalid rule table, threshold, or provider
// setup. It is fatal at startup.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Env is the process environment, bound with envconfig.
type Env struct {
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"console"`
	RoutingFile string   `envconfig:"FINROUTE_ROUTING_FILE"`
	Threshold   *float64 `envconfig:"FINROUTE_THRESHOLD"`
	ServerPort  int      `envconfig:"SERVER_PORT" default:"8080"`

	// RateLimitRPM caps route requests per client per minute. 0 disables it.
	RateLimitRPM int `envconfig:"FINROUTE_RATE_LIMIT_RPM" default:"0"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	GoogleAPIKey    string `envconfig:"GOOGLE_API_KEY"`
	DeepSeekAPIKey  string `envconfig:"DEEPSEEK_API_KEY"`
	OllamaURL       string `envconfig:"OLLAMA_URL"`
}

// Config holds the application configuration.
type Config struct {
	Env           Env
	RoutingConfig *RoutingConfig
	ConfigDir     string
}

// Load reads .env (when present), the environment, and the routing file.
// routingPath overrides FINROUTE_ROUTING_FILE, which overrides
// ~/.finroute/routing.yaml. Without any file the built-in table is used.
// API keys come from the environment or the OS keyring, never from files.
func Load(routingPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, &ConfigurationError{Field: "environment", Err: err}
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	cfg := &Config{Env: env, ConfigDir: configDir}

	if routingPath == "" {
		routingPath = env.RoutingFile
	}
	if routingPath == "" {
		defaultPath := filepath.Join(configDir, "routing.yaml")
		if _, err := os.Stat(defaultPath); err == nil {
			routingPath = defaultPath
		}
	}

	if routingPath != "" {
		routing, err := LoadRoutingConfig(routingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load routing config from %s: %w", routingPath, err)
		}
		cfg.RoutingConfig = routing
	} else {
		cfg.RoutingConfig = DefaultRoutingConfig()
	}

	if env.Threshold != nil {
		cfg.RoutingConfig.Threshold = *env.Threshold
		if err := cfg.RoutingConfig.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// APIKey returns the key for provider from the environment, falling back to
// the OS keyring.
func (c *Config) APIKey(provider string) string {
	var envValue string
	switch provider {
	case "anthropic":
		envValue = c.Env.AnthropicAPIKey
	case "openai":
		envValue = c.Env.OpenAIAPIKey
	case "google":
		envValue = c.Env.GoogleAPIKey
	case "deepseek":
		envValue = c.Env.DeepSeekAPIKey
	}
	key, ok := credentials.KeyForProvider(provider)
	if !ok {
		return envValue
	}
	return credentials.GetOrEnv(key, envValue)
}

// BaseURL returns the endpoint override for provider. The provider entry
// wins over OLLAMA_URL.
func (c *Config) BaseURL(p ProviderConfig) string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	if p.Name == "ollama" {
		return c.Env.OllamaURL
	}
	return ""
}

// HasAdapter returns true if the credentials for the given adapter are
// available. Local providers need none.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "ollama", "mock":
		return true
	case "anthropic", "openai", "google", "deepseek":
		return c.APIKey(name) != ""
	default:
		return false
	}
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".finroute")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
