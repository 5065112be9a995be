// Package config provides configuration loading and validation for the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/dshills/oceancheck/internal/exa"
	"github.com/dshills/oceancheck/internal/store"
)

// Environment variables read by FromEnv.
const (
	EnvProvider   = "OCEANCHECK_PROVIDER"
	EnvModel      = "OCEANCHECK_MODEL"
	EnvOutDir     = "OCEANCHECK_OUT_DIR"
	EnvExaAPIKey  = "EXA_API_KEY"
	EnvExaBaseURL = "EXA_BASE_URL"
)

// Config is the merged CLI configuration. Values come from Default, then the
// environment, then command-line flags.
type Config struct {
	Provider    string        `validate:"required,oneof=anthropic openai google xai"`
	Model       string        // empty selects the provider default
	OutDir      string        `validate:"required"`
	ExaAPIKey   string        // required only by commands that fetch
	ExaBaseURL  string        `validate:"required,url"`
	MaxTokens   int           `validate:"gte=1,lte=32768"`
	Temperature float64       `validate:"gte=0,lte=2"`
	MaxPosts    int           `validate:"gte=1,lte=1000"`
	Concurrency int           `validate:"gte=1,lte=16"`
	CacheTTL    time.Duration `validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:    "anthropic",
		OutDir:      store.DefaultDir,
		ExaBaseURL:  exa.DefaultBaseURL,
		MaxTokens:   2048,
		Temperature: 0.2,
		MaxPosts:    100,
		Concurrency: 2,
		CacheTTL:    15 * time.Minute,
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are
// named) into the process environment. Variables already set win. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv overlays the non-empty environment variables onto base.
func FromEnv(base Config) Config {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&base.Provider, EnvProvider)
	set(&base.Model, EnvModel)
	set(&base.OutDir, EnvOutDir)
	set(&base.ExaAPIKey, EnvExaAPIKey)
	set(&base.ExaBaseURL, EnvExaBaseURL)
	base.Provider = strings.ToLower(base.Provider)
	return base
}

var validate = validator.New()

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// RequireExa reports an error when no Exa API key is configured.
func (c Config) RequireExa() error {
	if c.ExaAPIKey == "" {
		return fmt.Errorf("config: %s is not set", EnvExaAPIKey)
	}
	return nil
}
