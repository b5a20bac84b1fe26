// Package sanitize provides per-call-site adapters that screen text
// fragments through the security pipeline before they are embedded into
// downstream LLM prompt templates. Unsafe fragments are replaced with
// fixed redaction placeholders so the template keeps its shape and the
// surrounding request still succeeds.
package sanitize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/memoria-ai/sentinel/pkg/pipeline"
)

// Redaction placeholders substituted for fragments that fail analysis.
const (
	RedactedFragment = "[REDACTED - SECURITY VIOLATION]"
	RedactedMessage  = "[MESSAGE REDACTED - SECURITY VIOLATION]"
	RedactedMemory   = "[MEMORY REDACTED - SECURITY VIOLATION]"
	RedactedID       = "[REDACTED]"
)

// Token budget bounds enforced regardless of validator outcome.
const (
	minTokenBudget     = 50
	maxTokenBudget     = 1000
	defaultTokenBudget = 200
)

var (
	messageMarkers = []marker{
		{regexp.MustCompile(`(?i)system\s*:`), "[SYSTEM]"},
		{regexp.MustCompile(`(?i)assistant\s*:`), "[ASSISTANT]"},
	}

	memoryMarkers = []marker{
		{regexp.MustCompile(`(?i)system\s*:`), "[SYSTEM]"},
		{regexp.MustCompile(`(?i)instruction\s*:`), "[INSTRUCTION]"},
		{regexp.MustCompile(`(?i)prompt\s*:`), "[PROMPT]"},
	}

	// Injection phrasings stripped from extraction input even when the
	// pipeline verdict is safe. Belt on top of the analyzer's suspenders.
	injectionMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)system\s*:`),
		regexp.MustCompile(`(?i)assistant\s*:`),
		regexp.MustCompile(`(?i)user\s*:`),
		regexp.MustCompile(`(?i)ignore\s+previous`),
		regexp.MustCompile(`(?i)forget\s+everything`),
		regexp.MustCompile(`(?i)you\s+are\s+now`),
		regexp.MustCompile(`(?i)new\s+instructions`),
		regexp.MustCompile(`(?i)prompt\s*:`),
		regexp.MustCompile(`(?i)instruction\s*:`),
	}

	citationRe = regexp.MustCompile(`\[\[.*?\]\]`)
	memoryIDRe = regexp.MustCompile(`[^\w\-]`)
)

type marker struct {
	re          *regexp.Regexp
	replacement string
}

// Adapter sanitizes one template type's variables and renders the
// template with the cleaned values.
type Adapter interface {
	Sanitize(template string, vars map[string]any) string
}

// Manager routes templates to the adapter registered for their type.
type Manager struct {
	adapters map[string]Adapter
}

// NewManager builds the standard adapter set backed by p.
func NewManager(p *pipeline.Pipeline) *Manager {
	return &Manager{
		adapters: map[string]Adapter{
			"extraction":     &ExtractionSanitizer{pipeline: p},
			"summarization":  &SummarizationSanitizer{pipeline: p},
			"pattern_mining": &PatternMiningSanitizer{pipeline: p},
		},
	}
}

// Sanitize dispatches to the adapter for templateType.
func (m *Manager) Sanitize(templateType, template string, vars map[string]any) (string, error) {
	adapter, ok := m.adapters[templateType]
	if !ok {
		return "", fmt.Errorf("unknown template type: %s", templateType)
	}
	return adapter.Sanitize(template, vars), nil
}

// Adapter returns the adapter registered for templateType.
func (m *Manager) Adapter(templateType string) (Adapter, error) {
	adapter, ok := m.adapters[templateType]
	if !ok {
		return nil, fmt.Errorf("unknown template type: %s", templateType)
	}
	return adapter, nil
}

// ExtractionSanitizer screens the raw user message before it is embedded
// into the memory-extraction prompt. An unsafe message collapses the
// whole render to "[]" so the extraction step yields no memories.
type ExtractionSanitizer struct {
	pipeline *pipeline.Pipeline
}

func (s *ExtractionSanitizer) Sanitize(template string, vars map[string]any) string {
	raw, ok := vars["msg"]
	if !ok {
		return template
	}
	text := toString(raw)

	result := s.pipeline.Analyze(text, pipeline.Context{"template_type": "extraction"})
	if !result.IsSafe {
		s.pipeline.LogSecurityEvent("prompt_injection_blocked", "extraction", "", "", map[string]any{
			"threat_types": result.ThreatTypes,
			"risk_score":   result.OverallRiskScore,
		})
		return "[]"
	}

	clean := escapeJSONContent(text)
	for _, re := range injectionMarkers {
		clean = re.ReplaceAllString(clean, RedactedID)
	}
	return strings.ReplaceAll(template, "{msg}", clean)
}

// Message is one conversation turn fed to the summarization prompt.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// SummarizationSanitizer screens the running summary and each message
// independently: a single poisoned message is redacted without dropping
// its siblings from the prompt.
type SummarizationSanitizer struct {
	pipeline *pipeline.Pipeline
}

func (s *SummarizationSanitizer) Sanitize(template string, vars map[string]any) string {
	out := template

	if raw, ok := vars["existing"]; ok {
		existing := toString(raw)
		if !s.pipeline.Analyze(existing, pipeline.Context{"template_type": "summarization"}).IsSafe {
			existing = RedactedFragment
		}
		out = strings.ReplaceAll(out, "{existing}", existing)
	}

	if raw, ok := vars["messages"]; ok {
		out = strings.ReplaceAll(out, "{messages}", s.renderMessages(raw))
	}

	if raw, ok := vars["max_tokens"]; ok {
		out = strings.ReplaceAll(out, "{max_tokens}", strconv.Itoa(ClampTokens(raw)))
	}

	return out
}

func (s *SummarizationSanitizer) renderMessages(raw any) string {
	messages := asMessages(raw)
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		if s.pipeline.Analyze(msg.Text, pipeline.Context{"template_type": "summarization"}).IsSafe {
			role := strings.ReplaceAll(msg.Role, ":", "")
			if role == "" {
				role = "user"
			}
			lines = append(lines, role+": "+scrubMessageText(msg.Text))
		} else {
			lines = append(lines, "user: "+RedactedMessage)
		}
	}
	return strings.Join(lines, "\n")
}

// Memory is one stored memory fed to the pattern-mining prompt.
type Memory struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PatternMiningSanitizer screens stored memories before they reach the
// insight-generation prompt. Memory ids are stripped to word characters
// and hyphens so an id can never smuggle markup into the prompt.
type PatternMiningSanitizer struct {
	pipeline *pipeline.Pipeline
}

func (s *PatternMiningSanitizer) Sanitize(template string, vars map[string]any) string {
	raw, ok := vars["mems"]
	if !ok {
		return template
	}

	memories := asMemories(raw)
	lines := make([]string, 0, len(memories))
	for _, mem := range memories {
		if s.pipeline.Analyze(mem.Text, pipeline.Context{"template_type": "pattern_mining"}).IsSafe {
			id := memoryIDRe.ReplaceAllString(mem.ID, "")
			lines = append(lines, "- ["+id+"] "+scrubMemoryText(mem.Text))
		} else {
			lines = append(lines, "- ["+RedactedID+"] "+RedactedMemory)
		}
	}
	return strings.ReplaceAll(template, "{mems}", strings.Join(lines, "\n"))
}

// ClampTokens coerces a token budget into [50, 1000], defaulting to 200
// when the value is missing or not numeric.
func ClampTokens(raw any) int {
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultTokenBudget
		}
		n = parsed
	default:
		return defaultTokenBudget
	}

	if n < minTokenBudget {
		return minTokenBudget
	}
	if n > maxTokenBudget {
		return maxTokenBudget
	}
	return n
}

// escapeJSONContent escapes the characters that would break out of a
// JSON string literal in the rendered prompt.
func escapeJSONContent(text string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(text)
}

func scrubMessageText(text string) string {
	text = citationRe.ReplaceAllString(text, "[CITATION]")
	for _, p := range messageMarkers {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

func scrubMemoryText(text string) string {
	for _, p := range memoryMarkers {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	if runes := []rune(text); len(runes) > 1000 {
		text = string(runes[:997]) + "..."
	}
	return text
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asMessages(raw any) []Message {
	switch v := raw.(type) {
	case []Message:
		return v
	case []map[string]any:
		out := make([]Message, 0, len(v))
		for _, m := range v {
			role, _ := m["role"].(string)
			text, _ := m["text"].(string)
			out = append(out, Message{Role: role, Text: text})
		}
		return out
	case []any:
		out := make([]Message, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				role, _ := m["role"].(string)
				text, _ := m["text"].(string)
				out = append(out, Message{Role: role, Text: text})
			}
		}
		return out
	}
	return nil
}

func asMemories(raw any) []Memory {
	switch v := raw.(type) {
	case []Memory:
		return v
	case []map[string]any:
		out := make([]Memory, 0, len(v))
		for _, m := range v {
			id, _ := m["id"].(string)
			text, _ := m["text"].(string)
			out = append(out, Memory{ID: id, Text: text})
		}
		return out
	case []any:
		out := make([]Memory, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				id, _ := m["id"].(string)
				text, _ := m["text"].(string)
				out = append(out, Memory{ID: id, Text: text})
			}
		}
		return out
	}
	return nil
}
