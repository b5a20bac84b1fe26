// Package validator implements the first-pass structural gate that runs
// before any semantic analysis: rate limiting, length bounds, Unicode
// normalization, dangerous character classes, and literal SQL/XSS checks.
package validator

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/memoria-ai/sentinel/pkg/config"
)

// ValidationResult is the outcome of one validation call. Created fresh
// per call and owned by the caller.
type ValidationResult struct {
	IsValid   bool           `json:"is_valid"`
	Reason    string         `json:"reason"`
	RiskScore float64        `json:"risk_score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// dangerousClass pairs a character-class regex with the label reported
// when it matches. All three classes score 0.9: invisible or control
// characters in user text are an obfuscation vector, not an accident.
type dangerousClass struct {
	re    *regexp.Regexp
	label string
}

// Pre-compiled patterns (compiled once, used on every request).
var (
	dangerousClasses = []dangerousClass{
		{regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`), "control characters"},
		{regexp.MustCompile("[\u200b-\u200d\ufeff]"), "zero-width characters"},
		{regexp.MustCompile("[\u202a-\u202e]"), "bidirectional override characters"},
	}

	// Literal SQL fragments that have no business in conversational text.
	sqlLiteralPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\b.*\bselect\b`),
		regexp.MustCompile(`(?i)\bdrop\s+(table|database|index|schema)\b`),
		regexp.MustCompile(`(?i)\binsert\s+into\b.*\bvalues\b`),
		regexp.MustCompile(`(?i)\bdelete\s+from\s+\w+`),
		regexp.MustCompile(`(?i)'\s*(or|and)\s+\d+\s*=\s*\d+`),
		regexp.MustCompile(`(?i);\s*(drop|delete|update|insert|create|alter|exec|execute)\s+`),
		regexp.MustCompile(`(?i)\bxp_cmdshell\b`),
	}

	// Literal XSS fragments.
	xssLiteralPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script[^>]*>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)<[^>]*\s+on\w+\s*=`),
		regexp.MustCompile(`(?i)<iframe[^>]*>`),
		regexp.MustCompile(`(?i)<object[^>]*>`),
		regexp.MustCompile(`(?i)<embed[^>]*>`),
	}

	// JSON-context hazards: prototype pollution keys.
	protoPollutionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)["']?__proto__["']?\s*:`),
		regexp.MustCompile(`(?i)["']?constructor["']?\s*:\s*[{"']`),
	}

	unicodeEscapeRe = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)
)

// Validator performs structural input validation. Safe for concurrent use;
// the only mutable state is the rate limiter's window map.
type Validator struct {
	maxLength    int
	minLength    int
	allowedChars *regexp.Regexp
	limiter      RateLimiter
}

// New creates a Validator from config. When cfg.RedisAddr is set the rate
// limiter window is shared via Redis, otherwise it lives in memory.
func New(cfg *config.Config) (*Validator, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	var allowed *regexp.Regexp
	if cfg.AllowedChars != "" {
		re, err := regexp.Compile("^[" + cfg.AllowedChars + "]+$")
		if err != nil {
			return nil, fmt.Errorf("compile allowed character set: %w", err)
		}
		allowed = re
	}

	window := time.Duration(cfg.WindowSeconds) * time.Second
	var limiter RateLimiter
	if cfg.RedisAddr != "" {
		limiter = NewRedisLimiter(cfg.RedisAddr, cfg.RequestsPerMinute, window)
	} else {
		limiter = NewMemoryLimiter(cfg.RequestsPerMinute, window)
	}

	return &Validator{
		maxLength:    cfg.MaxInputLength,
		minLength:    cfg.MinLength,
		allowedChars: allowed,
		limiter:      limiter,
	}, nil
}

// WithLimiter replaces the rate limiter, mainly for tests and for callers
// that share one limiter across validators.
func (v *Validator) WithLimiter(l RateLimiter) *Validator {
	v.limiter = l
	return v
}

// Validate runs the structural checks against text on behalf of the
// caller named by identifier. Checks run in severity order and the first
// failure wins; an empty identifier is bucketed as "default".
func (v *Validator) Validate(text, identifier string) ValidationResult {
	if identifier == "" {
		identifier = "default"
	}

	if !v.limiter.Allow(identifier) {
		return ValidationResult{
			IsValid:   false,
			Reason:    "Rate limit exceeded",
			RiskScore: 1.0,
		}
	}

	// Absence of content is not a threat.
	if text == "" {
		return ValidationResult{
			IsValid:   true,
			Reason:    "Input validation passed",
			RiskScore: 0.0,
		}
	}

	length := utf8.RuneCountInString(text)
	if length < v.minLength {
		return ValidationResult{
			IsValid:   false,
			Reason:    fmt.Sprintf("Text too short (min %d)", v.minLength),
			RiskScore: 0.3,
		}
	}
	if length >= v.maxLength {
		return ValidationResult{
			IsValid:   false,
			Reason:    fmt.Sprintf("Text too long (max %d)", v.maxLength),
			RiskScore: 0.7,
		}
	}

	if normalized := norm.NFKC.String(text); normalized != text {
		return ValidationResult{
			IsValid:   false,
			Reason:    "Unicode normalization required",
			RiskScore: 0.4,
			Metadata:  map[string]any{"normalized": normalized},
		}
	}

	for _, class := range dangerousClasses {
		if class.re.MatchString(text) {
			return ValidationResult{
				IsValid:   false,
				Reason:    "Dangerous characters detected: " + class.label,
				RiskScore: 0.9,
			}
		}
	}

	if v.allowedChars != nil && !v.allowedChars.MatchString(text) {
		return ValidationResult{
			IsValid:   false,
			Reason:    "Invalid character set",
			RiskScore: 0.5,
		}
	}

	for _, re := range sqlLiteralPatterns {
		if re.MatchString(text) {
			return ValidationResult{
				IsValid:   false,
				Reason:    "SQL injection pattern detected",
				RiskScore: 0.9,
			}
		}
	}

	for _, re := range xssLiteralPatterns {
		if re.MatchString(text) {
			return ValidationResult{
				IsValid:   false,
				Reason:    "XSS pattern detected",
				RiskScore: 0.9,
			}
		}
	}

	return ValidationResult{
		IsValid:   true,
		Reason:    "Input validation passed",
		RiskScore: 0.0,
	}
}

// ValidateJSONSafety runs the additional checks for text destined to be
// embedded inside a JSON document: prototype-pollution keys and an
// implausible density of unicode escape sequences.
func (v *Validator) ValidateJSONSafety(text string) ValidationResult {
	for _, re := range protoPollutionPatterns {
		if re.MatchString(text) {
			return ValidationResult{
				IsValid:   false,
				Reason:    "Prototype pollution key detected",
				RiskScore: 0.8,
			}
		}
	}

	// Each escape is 6 chars; above a quarter of the text the content is
	// being hidden, not encoded.
	if escapes := unicodeEscapeRe.FindAllStringIndex(text, -1); len(escapes) > 0 {
		if float64(len(escapes)*6) > float64(len(text))*0.25 {
			return ValidationResult{
				IsValid:   false,
				Reason:    "Suspicious unicode escape density",
				RiskScore: 0.7,
			}
		}
	}

	return ValidationResult{
		IsValid:   true,
		Reason:    "JSON safety validation passed",
		RiskScore: 0.0,
	}
}
