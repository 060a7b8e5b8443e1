/*
Package config reads process configuration from the environment (optionally
seeded from a .env file) and an optional YAML prompts file.
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"Healthbite/internal/conversation"
	"Healthbite/internal/geminiservice"
	"Healthbite/internal/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultPort = 8080
)

// Config is the resolved process configuration.
type Config struct {
	Port          int
	AppEnv        string
	SessionSecret string
	LLM           geminiservice.Config
	Conversation  conversation.Config
	Sessions      session.Config
	PromptsFile   string
}

// IsProduction reports whether secure cookies should be used.
func (c Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// ValidateServe checks the settings the HTTP server cannot run without.
func (c Config) ValidateServe() error {
	var missing []string
	if c.LLM.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s must be set", strings.Join(missing, " and "))
	}
	return nil
}

// ValidateChat checks the settings the terminal client needs.
func (c Config) ValidateChat() error {
	if c.LLM.APIKey == "" {
		return errors.New("GEMINI_API_KEY must be set")
	}
	return nil
}

// Load reads .env (if present), then the environment, then the prompts file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, reading from environment")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	var errs []error
	p := parser{getenv: getenv, errs: &errs}

	appEnv := getenv("APP_ENV")
	if appEnv == "" {
		appEnv = EnvDevelopment
	}

	cfg := Config{
		Port:          p.intVar("PORT", DefaultPort),
		AppEnv:        appEnv,
		SessionSecret: getenv("SESSION_SECRET"),
		LLM: geminiservice.Config{
			Provider: strings.ToLower(getenv("LLM_PROVIDER")),
			APIKey:   getenv("GEMINI_API_KEY"),
			Model:    getenv("GEMINI_MODEL"),
			BaseURL:  getenv("GEMINI_BASE_URL"),
		},
		Conversation: conversation.DefaultConfig(),
		Sessions: session.Config{
			MaxSessions: p.intVar("MAX_SESSIONS", session.DefaultMaxSessions),
			TTL:         p.durationVar("SESSION_TTL", session.DefaultTTL),
			RateLimit:   rate.Limit(p.floatVar("CHAT_RATE_LIMIT", float64(session.DefaultRateLimit))),
			Burst:       session.DefaultBurst,
		},
		PromptsFile: getenv("PROMPTS_FILE"),
	}
	cfg.Conversation.Timeout = p.durationVar("LLM_TIMEOUT", conversation.DefaultTimeout)

	if cfg.PromptsFile != "" {
		if err := LoadPrompts(cfg.PromptsFile, &cfg.Conversation); err != nil {
			errs = append(errs, err)
		}
	}

	// Environment caps win over the prompts file.
	if getenv("ONBOARDING_MAX_TURNS") != "" {
		cfg.Conversation.Onboarding.MaxTurns = p.intVar("ONBOARDING_MAX_TURNS", conversation.DefaultMaxTurns)
	}
	if getenv("ENGAGEMENT_MAX_TURNS") != "" {
		cfg.Conversation.Engagement.MaxTurns = p.intVar("ENGAGEMENT_MAX_TURNS", conversation.DefaultMaxTurns)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Prompts is the YAML prompts file layout.
type Prompts struct {
	Onboarding *conversation.RoleConfig `yaml:"onboarding"`
	Engagement *conversation.RoleConfig `yaml:"engagement"`
}

// LoadPrompts overlays the roles present in a YAML file onto cfg. Empty
// fields keep their current value.
func LoadPrompts(path string, cfg *conversation.Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open prompts file: %w", err)
	}
	defer f.Close()

	var p Prompts
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}

	overlay(&cfg.Onboarding, p.Onboarding)
	overlay(&cfg.Engagement, p.Engagement)
	return nil
}

func overlay(dst *conversation.RoleConfig, src *conversation.RoleConfig) {
	if src == nil {
		return
	}
	if strings.TrimSpace(src.SystemInstruction) != "" {
		dst.SystemInstruction = src.SystemInstruction
	}
	if src.MaxTurns > 0 {
		dst.MaxTurns = src.MaxTurns
	}
}

// NewLogger returns the process logger: human readable in development,
// JSON otherwise. It also replaces the global logger.
func NewLogger(appEnv string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if appEnv == EnvDevelopment {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

type parser struct {
	getenv func(string) string
	errs   *[]error
}

func (p parser) intVar(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
		return def
	}
	return n
}

func (p parser) floatVar(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be a positive number, got %q", key, v))
		return def
	}
	return f
}

func (p parser) durationVar(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be a positive duration, got %q", key, v))
		return def
	}
	return d
}
