package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/memoria-ai/sentinel/pkg/config"
)

func newTestValidator(t *testing.T, cfg *config.Config) *Validator {
	t.Helper()
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	v, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestValidate_Basic(t *testing.T) {
	v := newTestValidator(t, nil)

	testCases := []struct {
		name      string
		text      string
		wantValid bool
		wantRisk  float64
	}{
		{"normal text", "Hello, how are you today?", true, 0.0},
		{"empty text is not a threat", "", true, 0.0},
		{"single character", "a", true, 0.0},
		{"multiline text", "First line.\nSecond line.", true, 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.text, "user-basic")
			if result.IsValid != tc.wantValid {
				t.Errorf("IsValid = %v, want %v (reason: %s)", result.IsValid, tc.wantValid, result.Reason)
			}
			if result.RiskScore != tc.wantRisk {
				t.Errorf("RiskScore = %.2f, want %.2f", result.RiskScore, tc.wantRisk)
			}
		})
	}
}

func TestValidate_LengthBounds(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.MinLength = 5
	v := newTestValidator(t, cfg)

	testCases := []struct {
		name      string
		text      string
		wantValid bool
		wantRisk  float64
	}{
		{"below minimum", "hi", false, 0.3},
		{"at minimum", "hello", true, 0.0},
		{"one under maximum", strings.Repeat("a", cfg.MaxInputLength-1), true, 0.0},
		{"at maximum", strings.Repeat("a", cfg.MaxInputLength), false, 0.7},
		{"over maximum", strings.Repeat("a", cfg.MaxInputLength+100), false, 0.7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.text, "user-length")
			if result.IsValid != tc.wantValid {
				t.Errorf("IsValid = %v, want %v (reason: %s)", result.IsValid, tc.wantValid, result.Reason)
			}
			if result.RiskScore != tc.wantRisk {
				t.Errorf("RiskScore = %.2f, want %.2f", result.RiskScore, tc.wantRisk)
			}
		})
	}
}

func TestValidate_LengthCountsRunes(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.MaxInputLength = 10
	v := newTestValidator(t, cfg)

	// Nine CJK characters are 27 bytes but only 9 runes.
	text := strings.Repeat("安", 9)
	result := v.Validate(text, "user-runes")
	if !result.IsValid {
		t.Errorf("expected 9-rune text under a 10-rune limit to pass, got: %s", result.Reason)
	}
}

func TestValidate_UnicodeNormalization(t *testing.T) {
	v := newTestValidator(t, nil)

	// U+FB01 LATIN SMALL LIGATURE FI decomposes to "fi" under NFKC.
	result := v.Validate("the ﬁle is ready", "user-nfkc")
	if result.IsValid {
		t.Fatal("expected non-normalized text to be rejected")
	}
	if result.RiskScore != 0.4 {
		t.Errorf("RiskScore = %.2f, want 0.4", result.RiskScore)
	}
	normalized, ok := result.Metadata["normalized"].(string)
	if !ok {
		t.Fatal("expected normalized form in metadata")
	}
	if normalized != "the file is ready" {
		t.Errorf("normalized = %q, want %q", normalized, "the file is ready")
	}
}

func TestValidate_DangerousCharacters(t *testing.T) {
	v := newTestValidator(t, nil)

	testCases := []struct {
		name string
		text string
	}{
		{"null byte", "hello\x00world"},
		{"control character", "hello\x07world"},
		{"zero width space", "hello\u200bworld"},
		{"zero width joiner", "invisible\u200dtext"},
		{"zero width no-break space", "hello\ufeffworld"},
		{"rtl override", "benign\u202etxet"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.text, "user-chars")
			if result.IsValid {
				t.Fatal("expected dangerous characters to be rejected")
			}
			if result.RiskScore != 0.9 {
				t.Errorf("RiskScore = %.2f, want 0.9", result.RiskScore)
			}
		})
	}
}

func TestValidate_AllowedCharset(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.AllowedChars = `a-zA-Z0-9\s.,!?`
	v := newTestValidator(t, cfg)

	if result := v.Validate("Plain sentence, nothing odd!", "user-charset"); !result.IsValid {
		t.Errorf("expected allowed characters to pass, got: %s", result.Reason)
	}

	result := v.Validate("curly {braces} here", "user-charset")
	if result.IsValid {
		t.Fatal("expected disallowed characters to be rejected")
	}
	if result.RiskScore != 0.5 {
		t.Errorf("RiskScore = %.2f, want 0.5", result.RiskScore)
	}
}

func TestValidate_SQLInjection(t *testing.T) {
	v := newTestValidator(t, nil)

	testCases := []struct {
		name     string
		text     string
		wantSafe bool
	}{
		{"drop table", "'; DROP TABLE users; --", false},
		{"union select", "1 UNION SELECT password FROM accounts", false},
		{"tautology", "admin' OR 1=1", false},
		{"stacked delete", "x; delete from sessions", false},
		{"cmdshell", "exec xp_cmdshell 'dir'", false},
		{"talking about sql", "I dropped my table tennis paddle", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.text, "user-sql")
			if result.IsValid != tc.wantSafe {
				t.Errorf("IsValid = %v, want %v (reason: %s)", result.IsValid, tc.wantSafe, result.Reason)
			}
			if !tc.wantSafe && result.RiskScore != 0.9 {
				t.Errorf("RiskScore = %.2f, want 0.9", result.RiskScore)
			}
		})
	}
}

func TestValidate_XSS(t *testing.T) {
	v := newTestValidator(t, nil)

	testCases := []struct {
		name     string
		text     string
		wantSafe bool
	}{
		{"script tag", "<script>alert('XSS')</script>", false},
		{"javascript uri", "click javascript:alert(1)", false},
		{"event handler", `<img src=x onerror=alert(1)>`, false},
		{"iframe", `<iframe src="evil.html">`, false},
		{"angle brackets in math", "for all x < y and y > z", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Validate(tc.text, "user-xss")
			if result.IsValid != tc.wantSafe {
				t.Errorf("IsValid = %v, want %v (reason: %s)", result.IsValid, tc.wantSafe, result.Reason)
			}
		})
	}
}

func TestValidate_RateLimit(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.RequestsPerMinute = 3
	v := newTestValidator(t, cfg)

	for i := 0; i < 3; i++ {
		if result := v.Validate("hello", "burst-user"); !result.IsValid {
			t.Fatalf("request %d unexpectedly rejected: %s", i+1, result.Reason)
		}
	}

	result := v.Validate("hello", "burst-user")
	if result.IsValid {
		t.Fatal("expected fourth request to be rate limited")
	}
	if result.RiskScore != 1.0 {
		t.Errorf("RiskScore = %.2f, want 1.0", result.RiskScore)
	}

	// Other identifiers keep their own window.
	if result := v.Validate("hello", "other-user"); !result.IsValid {
		t.Errorf("unrelated identifier was rejected: %s", result.Reason)
	}
}

func TestValidate_RateLimitWindowSlides(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	current := time.Now()
	limiter.now = func() time.Time { return current }

	v := newTestValidator(t, nil).WithLimiter(limiter)

	if r := v.Validate("a", "slider"); !r.IsValid {
		t.Fatal("first request rejected")
	}
	if r := v.Validate("a", "slider"); !r.IsValid {
		t.Fatal("second request rejected")
	}
	if r := v.Validate("a", "slider"); r.IsValid {
		t.Fatal("third request should exceed the window budget")
	}

	current = current.Add(61 * time.Second)
	if r := v.Validate("a", "slider"); !r.IsValid {
		t.Fatal("request after window expiry should be allowed")
	}
}

func TestValidateJSONSafety(t *testing.T) {
	v := newTestValidator(t, nil)

	testCases := []struct {
		name      string
		text      string
		wantValid bool
		wantRisk  float64
	}{
		{"plain text", "just a normal value", true, 0.0},
		{"proto pollution", `{"__proto__": {"isAdmin": true}}`, false, 0.8},
		{"constructor pollution", `{"constructor": {"prototype": {}}}`, false, 0.8},
		{"dense escapes", `\u0041\u0042\u0043`, false, 0.7},
		{"sparse escapes", `a long sentence with one \u00e9 escape in the middle of it all`, true, 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.ValidateJSONSafety(tc.text)
			if result.IsValid != tc.wantValid {
				t.Errorf("IsValid = %v, want %v (reason: %s)", result.IsValid, tc.wantValid, result.Reason)
			}
			if result.RiskScore != tc.wantRisk {
				t.Errorf("RiskScore = %.2f, want %.2f", result.RiskScore, tc.wantRisk)
			}
		})
	}
}
