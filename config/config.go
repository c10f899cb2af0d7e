// Package config loads autodoc settings from the environment and goal
// definitions from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the runtime settings of the agent.
type Config struct {
	// Model settings.
	Provider  string `env:"AUTODOC_PROVIDER" envDefault:"openai" validate:"required,oneof=openai anthropic openrouter ollama groq mistral"`
	Model     string `env:"AUTODOC_MODEL" envDefault:"gpt-4o" validate:"required"`
	APIKey    string `env:"AUTODOC_API_KEY"`
	MaxTokens int    `env:"AUTODOC_MAX_TOKENS" envDefault:"1024" validate:"gt=0"`

	// Loop settings.
	MaxIterations int    `env:"AUTODOC_MAX_ITERATIONS" envDefault:"20" validate:"gt=0"`
	MaxMessages   int    `env:"AUTODOC_MAX_MESSAGES" envDefault:"20" validate:"gt=0"`
	DryRun        bool   `env:"AUTODOC_DRY_RUN"`
	WorkDir       string `env:"AUTODOC_WORKDIR"`

	// Transport resilience.
	RateLimit       float64 `env:"AUTODOC_RATE_LIMIT" validate:"gte=0"` // requests per second, 0 disables
	BreakerFailures uint32  `env:"AUTODOC_BREAKER_FAILURES" envDefault:"5"`
	MaxRetries      int     `env:"AUTODOC_MAX_RETRIES" envDefault:"2" validate:"gte=0"`

	// Observability.
	LogLevel      string `env:"AUTODOC_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat     string `env:"AUTODOC_LOG_FORMAT" envDefault:"console" validate:"oneof=console json"`
	TraceExporter string `env:"AUTODOC_TRACE_EXPORTER" envDefault:"none" validate:"oneof=none stdout"`
}

// apiKeyFallbacks are consulted in order when AUTODOC_API_KEY is unset.
var apiKeyFallbacks = []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"}

// Load reads an optional .env file, then parses and validates the process
// environment. Variables already set win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnvironment(environ())
}

// FromEnvironment parses and validates cfg from an explicit variable map.
func FromEnvironment(vars map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: vars})
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.APIKey == "" {
		for _, name := range apiKeyFallbacks {
			if v := vars[name]; v != "" {
				cfg.APIKey = v
				break
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
