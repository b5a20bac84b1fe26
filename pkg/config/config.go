// Package config holds the typed configuration surface for the sentinel
// engine. All settings have working defaults and can be overridden via
// environment variables or an optional YAML file; absent configuration
// never prevents operation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds global settings for the sentinel engine and gateway.
type Config struct {
	// === Input Validation ===
	MaxInputLength int    `yaml:"max_input_length"` // Text at or beyond this length is rejected (default: 10000)
	MinLength      int    `yaml:"min_length"`       // Non-empty text shorter than this is rejected (default: 1)
	AllowedChars   string `yaml:"allowed_chars"`    // Optional allowed character set; empty disables the check

	// === Rate Limiting ===
	RequestsPerMinute int    `yaml:"requests_per_minute"` // Sliding-window budget per identifier (default: 100)
	WindowSeconds     int    `yaml:"window_seconds"`      // Window length in seconds (default: 60)
	RedisAddr         string `yaml:"redis_addr"`          // If set, the rate limiter window lives in Redis

	// === Risk Thresholds (0.0 - 1.0) ===
	MaxRiskScore      float64 `yaml:"max_risk_score"`      // Overall score at or above this = unsafe (default: 0.7)
	CriticalRiskScore float64 `yaml:"critical_risk_score"` // Score at or above this = critical recommendation (default: 0.9)

	// === Semantic Analysis ===
	MinConfidence float64 `yaml:"min_confidence"` // Category confidence at or above this = threat (default: 0.7)
	MaxPatterns   int     `yaml:"max_patterns"`   // Cap on matched substrings returned per analysis (default: 10)

	// === Pipeline ===
	MaxConcurrent int    `yaml:"max_concurrent"` // Fan-out limit for batch analysis (default: 100)
	AuditLogPath  string `yaml:"audit_log_path"` // JSONL audit sink path; empty = log-only events
}

// NewDefaultConfig creates a Config with the engine's stock defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		MaxInputLength: GetEnvInt("SENTINEL_MAX_INPUT_LENGTH", 10000),
		MinLength:      GetEnvInt("SENTINEL_MIN_LENGTH", 1),
		AllowedChars:   GetEnv("SENTINEL_ALLOWED_CHARS", ""),

		RequestsPerMinute: GetEnvInt("SENTINEL_REQUESTS_PER_MINUTE", 100),
		WindowSeconds:     GetEnvInt("SENTINEL_WINDOW_SECONDS", 60),
		RedisAddr:         GetEnv("SENTINEL_REDIS_ADDR", ""),

		MaxRiskScore:      GetEnvFloat("SENTINEL_MAX_RISK_SCORE", 0.7),
		CriticalRiskScore: GetEnvFloat("SENTINEL_CRITICAL_RISK_SCORE", 0.9),

		MinConfidence: GetEnvFloat("SENTINEL_MIN_CONFIDENCE", 0.7),
		MaxPatterns:   GetEnvInt("SENTINEL_MAX_PATTERNS", 10),

		MaxConcurrent: clampInt(GetEnvInt("SENTINEL_MAX_CONCURRENT", 100), 1, 10000),
		AuditLogPath:  GetEnv("SENTINEL_AUDIT_LOG_PATH", ""),
	}
}

// NewHighSecurityConfig creates a Config for maximum security
// (may have more false positives).
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.MaxRiskScore = 0.5
	cfg.MinConfidence = 0.5
	cfg.MaxInputLength = 5000
	cfg.RequestsPerMinute = 30
	return cfg
}

// NewHighUsabilityConfig creates a Config that minimizes false positives.
func NewHighUsabilityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.MaxRiskScore = 0.8
	cfg.MinConfidence = 0.8
	return cfg
}

// LoadFile overlays settings from a YAML file onto the receiver.
// Missing file is an error; missing keys keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that thresholds and limits are internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if c.MaxInputLength <= 0 || c.MaxInputLength > 1_000_000 {
		problems = append(problems, "max_input_length must be 1-1000000")
	}
	if c.MinLength < 0 {
		problems = append(problems, "min_length must not be negative")
	}
	if c.MaxRiskScore < 0 || c.MaxRiskScore > 1 {
		problems = append(problems, "max_risk_score must be 0-1")
	}
	if c.CriticalRiskScore < 0 || c.CriticalRiskScore > 1 {
		problems = append(problems, "critical_risk_score must be 0-1")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		problems = append(problems, "min_confidence must be 0-1")
	}
	if c.RequestsPerMinute <= 0 {
		problems = append(problems, "requests_per_minute must be positive")
	}
	if c.WindowSeconds <= 0 {
		problems = append(problems, "window_seconds must be positive")
	}
	if c.MaxPatterns <= 0 {
		problems = append(problems, "max_patterns must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
