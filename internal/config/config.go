// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	DBPath         string
	CORSOrigins    []string
	SecureCookies  bool
	KnowledgeDir   string
	HistoryWindow  int
	SessionTTL     time.Duration
	AuditRetention time.Duration
	Gateway        GatewayConfig
	LLM            LLMConfig
	ChatRateLimit  RateLimitConfig
}

// GatewayConfig controls the retrieval gateway. When URL is set the router
// talks to a remote gateway instead of the in-process one.
type GatewayConfig struct {
	URL                  string
	AllowedDomains       []string
	MaxFetchBytes        int64
	MaxConcurrentFetches int64
	SearchEndpoint       string
	SearchAPIKey         string
	SearchQPS            float64
	FetchTimeout         time.Duration
	SearchTimeout        time.Duration
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// RateLimitConfig is a per-client sliding window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "./data/carenav.db"),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
		SecureCookies:  getEnvBool("COOKIE_SECURE", false),
		KnowledgeDir:   getEnv("KNOWLEDGE_DIR", "./knowledge"),
		HistoryWindow:  getEnvInt("HISTORY_WINDOW", 6),
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		AuditRetention: getEnvDuration("AUDIT_RETENTION", 30*24*time.Hour),
		Gateway: GatewayConfig{
			URL:                  getEnv("GATEWAY_URL", ""),
			AllowedDomains:       getEnvList("ALLOWED_DOMAINS", nil),
			MaxFetchBytes:        int64(getEnvInt("MAX_FETCH_BYTES", 2<<20)),
			MaxConcurrentFetches: int64(getEnvInt("MAX_CONCURRENT_FETCHES", 2)),
			SearchEndpoint:       getEnv("SEARCH_ENDPOINT", "https://api.bing.microsoft.com/v7.0/search"),
			SearchAPIKey:         getEnv("SEARCH_API_KEY", ""),
			SearchQPS:            getEnvFloat("SEARCH_QPS", 3),
			FetchTimeout:         getEnvDuration("FETCH_TIMEOUT", 12*time.Second),
			SearchTimeout:        getEnvDuration("SEARCH_TIMEOUT", 12*time.Second),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
			Model:   getEnv("LLM_MODEL", "llama3.2"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Timeout: getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		ChatRateLimit: RateLimitConfig{
			Requests: getEnvInt("CHAT_RATE_LIMIT", 30),
			Window:   getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.Gateway.MaxFetchBytes <= 0 {
		return fmt.Errorf("MAX_FETCH_BYTES must be > 0")
	}
	if c.Gateway.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_FETCHES must be > 0")
	}
	if c.Gateway.FetchTimeout <= 0 || c.Gateway.SearchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT and SEARCH_TIMEOUT must be > 0")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL cannot be empty")
	}
	if c.ChatRateLimit.Requests <= 0 || c.ChatRateLimit.Window <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT and CHAT_RATE_WINDOW must be > 0")
	}
	return nil
}

// AllowAllOrigins reports whether CORS is open to any origin.
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
