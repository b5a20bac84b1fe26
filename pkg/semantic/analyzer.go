package semantic

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/memoria-ai/sentinel/pkg/config"
)

// Result is the outcome of one semantic analysis call.
type Result struct {
	IsSafe        bool           `json:"is_safe"`
	ThreatType    string         `json:"threat_type,omitempty"`
	Confidence    float64        `json:"confidence"`
	PatternsFound []string       `json:"patterns_found"`
	Context       map[string]any `json:"context"`
}

// Analyzer scores text against the fixed threat pattern groups plus
// character-level anomaly heuristics. Stateless and safe for concurrent
// use.
type Analyzer struct {
	minConfidence float64
	maxPatterns   int
}

// NewAnalyzer creates an Analyzer with thresholds taken from config.
func NewAnalyzer(cfg *config.Config) *Analyzer {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	return &Analyzer{
		minConfidence: cfg.MinConfidence,
		maxPatterns:   cfg.MaxPatterns,
	}
}

// Analyze scores text against every pattern group and returns the
// highest-confidence category. The context map tunes the secondary
// heuristics: "avg_text_length" and "min_length" are recognized.
//
// Scoring: each matching pattern adds min(0.3 + 0.1*matches, 0.9) to its
// group's running confidence; the literal "ignore instructions" phrase
// adds min(0.8, 0.9 - current) instead. These weights are empirically
// tuned, kept behind this method as a replaceable policy.
func (a *Analyzer) Analyze(text string, context map[string]any) Result {
	var (
		patternsFound []string
		maxConfidence float64
		primaryThreat Category
	)

	for _, cat := range Categories {
		var (
			groupConfidence float64
			groupPatterns   []string
		)
		for _, re := range threatPatterns[cat] {
			matches := re.FindAllString(text, -1)
			if len(matches) == 0 {
				continue
			}
			groupPatterns = append(groupPatterns, matches...)
			if re.String() == ignoreInstructionsPattern.String() {
				groupConfidence += min(0.8, 0.9-groupConfidence)
			} else {
				groupConfidence += min(0.3+float64(len(matches))*0.1, 0.9)
			}
		}
		if len(groupPatterns) > 0 && groupConfidence > maxConfidence {
			maxConfidence = groupConfidence
			primaryThreat = cat
			patternsFound = groupPatterns
		}
	}

	// Secondary heuristics fire only when no group is conclusive.
	if maxConfidence < a.minConfidence {
		if suspicious := suspiciousCharacters(text); len(suspicious) > 0 {
			patternsFound = append(patternsFound, suspicious...)
			maxConfidence = max(maxConfidence, 0.6)
		}
		if anomaly := lengthAnomaly(text, context); anomaly != "" {
			patternsFound = append(patternsFound, anomaly)
			maxConfidence = max(maxConfidence, 0.5)
		}
	}

	maxConfidence = min(maxConfidence, 1.0)
	isSafe := maxConfidence < a.minConfidence

	if len(patternsFound) > a.maxPatterns {
		patternsFound = patternsFound[:a.maxPatterns]
	}

	result := Result{
		IsSafe:        isSafe,
		Confidence:    maxConfidence,
		PatternsFound: patternsFound,
		Context: map[string]any{
			"text_length":               utf8.RuneCountInString(text),
			"threat_categories_checked": len(Categories),
		},
	}
	if !isSafe {
		result.ThreatType = string(primaryThreat)
	}
	return result
}

// Summary renders a human-readable threat summary for logging and
// recommendations.
func (a *Analyzer) Summary(r Result) string {
	if r.IsSafe {
		return "No threats detected"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Threat detected: %s (confidence: %.2f)", r.ThreatType, r.Confidence)
	if len(r.PatternsFound) > 0 {
		previews := make([]string, 0, 3)
		for _, p := range r.PatternsFound {
			if len(previews) == 3 {
				break
			}
			if len(p) > 50 {
				p = p[:50] + "..."
			}
			previews = append(previews, p)
		}
		fmt.Fprintf(&b, "\nPatterns: %s", strings.Join(previews, ", "))
	}
	return b.String()
}

// zeroWidthRunes are invisible characters used to hide content from
// display while surviving copy/paste.
var zeroWidthRunes = []rune{'\u200b', '\u200c', '\u200d', '\ufeff'}

// knownScripts is the fixed set of writing systems counted by the
// mixed-script heuristic.
var knownScripts = []string{
	"Latin", "Cyrillic", "Greek", "Han", "Arabic", "Hebrew",
	"Hangul", "Hiragana", "Katakana", "Thai", "Devanagari",
}

// suspiciousCharacters flags zero-width characters, text mixing more than
// three writing systems, and whitespace above 30% of the text.
func suspiciousCharacters(text string) []string {
	var suspicious []string

	for _, zw := range zeroWidthRunes {
		if strings.ContainsRune(text, zw) {
			suspicious = append(suspicious, fmt.Sprintf("zero_width_char:U+%04X", zw))
		}
	}

	scripts := make(map[string]bool)
	for _, r := range text {
		for _, name := range knownScripts {
			if unicode.Is(unicode.Scripts[name], r) {
				scripts[name] = true
				break
			}
		}
	}
	if len(scripts) > 3 {
		suspicious = append(suspicious, fmt.Sprintf("mixed_scripts:%d", len(scripts)))
	}

	if length := utf8.RuneCountInString(text); length > 0 {
		if float64(strings.Count(text, " ")) > float64(length)*0.3 {
			suspicious = append(suspicious, "excessive_whitespace")
		}
	}

	return suspicious
}

// lengthAnomaly compares the text's length against the caller-supplied
// average and minimum. Returns an empty string when unremarkable.
func lengthAnomaly(text string, context map[string]any) string {
	avgLength := contextInt(context, "avg_text_length", 100)
	minLength := contextInt(context, "min_length", 5)
	length := utf8.RuneCountInString(text)

	if length > avgLength*3 && length > 500 {
		return fmt.Sprintf("excessive_length:%d", length)
	}
	if length < 3 && minLength > 3 {
		return fmt.Sprintf("minimal_length:%d", length)
	}
	return ""
}

// contextInt reads an integer-valued context key, tolerating the numeric
// types JSON decoding produces.
func contextInt(context map[string]any, key string, fallback int) int {
	if context == nil {
		return fallback
	}
	switch v := context[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
