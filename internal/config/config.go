// Package config reads MoodTunes settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/justestif/go-moodtunes/internal/mood"
)

// ErrMissingClientID is returned when SPOTIFY_ID is not set.
var ErrMissingClientID = errors.New("missing SPOTIFY_ID environment variable")

// Config holds service configuration.
type Config struct {
	ClientID    string
	Addr        string
	RedirectURI string

	BackendURL   string
	BackendToken string

	DatabaseURL string
	SessionDir  string

	InferenceSocket string
	PigoCascade     string

	Strategy     mood.Strategy
	Threshold    float64
	ScanInterval time.Duration
	ScanWindow   time.Duration
	MoodTable    string

	RequestTimeout time.Duration

	ManualOverride bool
	ErrorOverlay   bool
	UploadCaptures bool

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel string
}

// Load reads configuration from environment variables. It returns
// ErrMissingClientID if SPOTIFY_ID is not set, and an error naming every
// variable that fails to parse.
func Load() (*Config, error) {
	clientID := os.Getenv("SPOTIFY_ID")
	if clientID == "" {
		return nil, ErrMissingClientID
	}

	p := &parser{}
	cfg := &Config{
		ClientID:    clientID,
		Addr:        env("MOODTUNES_ADDR", "127.0.0.1:8080"),
		RedirectURI: env("MOODTUNES_REDIRECT_URI", "http://127.0.0.1:8080/callback"),

		BackendURL:   env("BACKEND_URL", "http://127.0.0.1:8000/api"),
		BackendToken: env("BACKEND_TOKEN", ""),

		DatabaseURL: env("DATABASE_URL", ""),
		SessionDir:  env("SESSION_DIR", ""),

		InferenceSocket: env("INFERENCE_SOCKET", "/tmp/moodtunes-infer.sock"),
		PigoCascade:     env("PIGO_CASCADE", ""),

		Threshold:    p.float("MOOD_THRESHOLD", mood.DefaultThreshold),
		ScanInterval: p.duration("SCAN_INTERVAL", mood.DefaultInterval),
		ScanWindow:   p.duration("SCAN_WINDOW", mood.DefaultWindow),
		MoodTable:    env("MOOD_TABLE", ""),

		RequestTimeout: p.duration("REQUEST_TIMEOUT", 10*time.Second),

		ManualOverride: p.bool("MANUAL_OVERRIDE", true),
		ErrorOverlay:   p.bool("ERROR_OVERLAY", true),
		UploadCaptures: p.bool("UPLOAD_CAPTURES", true),

		RateLimitRPS:   p.float("RATE_LIMIT_RPS", 5),
		RateLimitBurst: p.int("RATE_LIMIT_BURST", 10),

		LogLevel: env("LOG_LEVEL", "info"),
	}

	strategy, err := mood.ParseStrategy(env("MOOD_STRATEGY", string(mood.StrategyMajority)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("MOOD_STRATEGY: %w", err))
	}
	cfg.Strategy = strategy

	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		p.errs = append(p.errs, fmt.Errorf("MOOD_THRESHOLD: %v is outside [0, 1]", cfg.Threshold))
	}
	if cfg.ScanWindow < cfg.ScanInterval {
		p.errs = append(p.errs, fmt.Errorf("SCAN_WINDOW %s is shorter than SCAN_INTERVAL %s", cfg.ScanWindow, cfg.ScanInterval))
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Profiles returns the mood table: the MOOD_TABLE file when set, otherwise
// the built-in table.
func (c *Config) Profiles() (mood.Profiles, error) {
	if c.MoodTable == "" {
		return mood.DefaultProfiles(), nil
	}
	p, err := mood.LoadProfiles(c.MoodTable)
	if err != nil {
		return nil, fmt.Errorf("MOOD_TABLE: %w", err)
	}
	return p, nil
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// parser collects parse failures so Load can report all of them.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	if d <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: must be positive, got %s", key, d))
		return fallback
	}
	return d
}
