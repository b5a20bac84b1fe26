// Package pipeline sequences the security stages (input validation,
// optional JSON-safety check, semantic analysis, signature matching)
// and aggregates their checks into one auditable verdict.
package pipeline

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memoria-ai/sentinel/pkg/config"
	"github.com/memoria-ai/sentinel/pkg/semantic"
	"github.com/memoria-ai/sentinel/pkg/signatures"
	"github.com/memoria-ai/sentinel/pkg/validator"
)

// Context carries per-request hints for the pipeline. Recognized keys:
// "user_id" (rate-limit identifier), "is_json_context" (bool),
// "template_type" (adapter routing tag), "avg_text_length" and
// "min_length" (semantic heuristic tuning). Unknown keys are ignored.
type Context map[string]any

// UserID returns the rate-limit identifier, or "default".
func (c Context) UserID() string {
	if c != nil {
		if v, ok := c["user_id"].(string); ok && v != "" {
			return v
		}
	}
	return "default"
}

// IsJSONContext reports whether the text is destined for JSON embedding.
func (c Context) IsJSONContext() bool {
	if c == nil {
		return false
	}
	v, _ := c["is_json_context"].(bool)
	return v
}

// Check is one named sub-check's outcome. Immutable once produced.
type Check struct {
	CheckName string         `json:"check_name"`
	Passed    bool           `json:"passed"`
	RiskScore float64        `json:"risk_score"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// Result is the pipeline's final verdict for one text.
type Result struct {
	IsSafe           bool      `json:"is_safe"`
	OverallRiskScore float64   `json:"overall_risk_score"`
	Checks           []Check   `json:"checks"`
	ThreatTypes      []string  `json:"threat_types"`
	Recommendations  []string  `json:"recommendations"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// Pipeline orchestrates all security checks. Safe for concurrent use:
// the signature store is read-mostly and the rate limiter serializes its
// own state.
type Pipeline struct {
	cfg       *config.Config
	store     *signatures.Store
	validator *validator.Validator
	analyzer  *semantic.Analyzer
	sink      EventSink
	metrics   *Metrics

	// compiled caches signature regexes across calls; invalid patterns
	// are re-reported, never cached.
	compiledMu sync.RWMutex
	compiled   map[string]*regexp.Regexp
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithEventSink routes audit events to sink instead of the process log.
func WithEventSink(sink EventSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline owning the given signature store. A nil store
// gets the built-in default set; a nil config gets defaults.
func New(cfg *config.Config, store *signatures.Store, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if store == nil {
		store = signatures.NewStore()
	}

	v, err := validator.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		validator: v,
		analyzer:  semantic.NewAnalyzer(cfg),
		sink:      LogSink{},
		compiled:  make(map[string]*regexp.Regexp),
	}
	if cfg.AuditLogPath != "" {
		p.sink = NewFileSink(cfg.AuditLogPath)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Store returns the signature store owned by the pipeline.
func (p *Pipeline) Store() *signatures.Store { return p.store }

// Validator returns the input validator, for callers that need the
// structural checks without the full pipeline.
func (p *Pipeline) Validator() *validator.Validator { return p.validator }

// Analyze runs the complete security analysis for one text. It always
// returns a Result: any internal panic is converted into the fail-closed
// verdict (unsafe, risk 1.0, threat type "system_error").
func (p *Pipeline) Analyze(text string, ctx Context) (result Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] security analysis failed: %v", r)
			p.metrics.observeSystemError()
			result = Result{
				IsSafe:           false,
				OverallRiskScore: 1.0,
				Checks:           []Check{},
				ThreatTypes:      []string{"system_error"},
				Recommendations:  []string{fmt.Sprintf("Security analysis failed: %v", r)},
				ProcessingTimeMs: 0,
				Timestamp:        start.UTC(),
			}
		}
	}()

	var (
		checks          []Check
		threatTypes     []string
		recommendations []string
	)

	// 1. Input validation
	vres := p.validator.Validate(text, ctx.UserID())
	checks = append(checks, Check{
		CheckName: "input_validation",
		Passed:    vres.IsValid,
		RiskScore: vres.RiskScore,
		Details: map[string]any{
			"reason":   vres.Reason,
			"metadata": vres.Metadata,
		},
		Timestamp: time.Now().UTC(),
	})
	if !vres.IsValid {
		p.metrics.observeValidationFailure()
		threatTypes = append(threatTypes, "input_validation_failure")
		recommendations = append(recommendations, "Input validation failed: "+vres.Reason)
	}

	// 2. JSON safety (only when the caller will embed the text in JSON)
	if ctx.IsJSONContext() {
		jres := p.validator.ValidateJSONSafety(text)
		checks = append(checks, Check{
			CheckName: "json_safety",
			Passed:    jres.IsValid,
			RiskScore: jres.RiskScore,
			Details:   map[string]any{"reason": jres.Reason},
			Timestamp: time.Now().UTC(),
		})
		if !jres.IsValid {
			threatTypes = append(threatTypes, "json_injection")
			recommendations = append(recommendations, "Potential JSON injection detected")
		}
	}

	// 3. Semantic analysis
	sres := p.analyzer.Analyze(text, ctx)
	checks = append(checks, Check{
		CheckName: "semantic_analysis",
		Passed:    sres.IsSafe,
		RiskScore: sres.Confidence,
		Details: map[string]any{
			"threat_type":    sres.ThreatType,
			"patterns_found": sres.PatternsFound,
			"context":        sres.Context,
		},
		Timestamp: time.Now().UTC(),
	})
	if !sres.IsSafe {
		if sres.ThreatType != "" {
			threatTypes = append(threatTypes, sres.ThreatType)
		} else {
			threatTypes = append(threatTypes, "semantic_threat")
		}
		recommendations = append(recommendations, p.analyzer.Summary(sres))
	}

	// 4. Threat signature matching
	for _, check := range p.matchSignatures(text) {
		checks = append(checks, check)
		if !check.Passed {
			if tt, ok := check.Details["threat_type"].(string); ok && tt != "" {
				threatTypes = append(threatTypes, tt)
			} else {
				threatTypes = append(threatTypes, "unknown")
			}
			name, _ := check.Details["signature_name"].(string)
			recommendations = append(recommendations, "Threat signature matched: "+name)
		}
	}

	// Aggregate: one severe signal dominates, so max rather than mean.
	overallRisk := 0.0
	allPassed := true
	for _, check := range checks {
		if check.RiskScore > overallRisk {
			overallRisk = check.RiskScore
		}
		if !check.Passed {
			allPassed = false
		}
	}
	isSafe := allPassed && overallRisk < p.cfg.MaxRiskScore

	if overallRisk >= p.cfg.CriticalRiskScore {
		recommendations = append([]string{"CRITICAL: Immediate action required"}, recommendations...)
	} else if overallRisk >= p.cfg.MaxRiskScore {
		recommendations = append([]string{"HIGH: Review required before proceeding"}, recommendations...)
	}

	elapsed := time.Since(start)
	p.metrics.observeProcessed(elapsed.Seconds())
	if !isSafe {
		p.metrics.observeBlocked()
	}

	return Result{
		IsSafe:           isSafe,
		OverallRiskScore: overallRisk,
		Checks:           checks,
		ThreatTypes:      dedupe(threatTypes),
		Recommendations:  recommendations,
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		Timestamp:        start.UTC(),
	}
}

// matchSignatures runs every enabled store signature against text,
// producing one check per signature. Invalid patterns are logged and
// skipped; they never abort the pipeline. Signatures run in id order so
// repeated calls produce identical check sequences.
func (p *Pipeline) matchSignatures(text string) []Check {
	enabled := p.store.Enabled()
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })

	checks := make([]Check, 0, len(enabled))
	for _, sig := range enabled {
		re, err := p.compile(sig.Pattern)
		if err != nil {
			log.Printf("[WARN] invalid regex pattern for signature %s: %v", sig.ID, err)
			continue
		}

		matches := re.FindAllString(text, -1)
		if len(matches) > 0 {
			checks = append(checks, Check{
				CheckName: "signature_" + sig.ID,
				Passed:    false,
				RiskScore: sig.Confidence,
				Details: map[string]any{
					"signature_id":   sig.ID,
					"signature_name": sig.Name,
					"threat_type":    sig.ThreatType,
					"severity":       sig.Severity,
					"matches":        matches,
					"description":    sig.Description,
					"mitigation":     sig.Mitigation,
				},
				Timestamp: time.Now().UTC(),
			})
		} else {
			checks = append(checks, Check{
				CheckName: "signature_" + sig.ID,
				Passed:    true,
				RiskScore: 0.0,
				Details: map[string]any{
					"signature_id":   sig.ID,
					"signature_name": sig.Name,
				},
				Timestamp: time.Now().UTC(),
			})
		}
	}
	return checks
}

// compile returns a cached compiled regex for pattern.
func (p *Pipeline) compile(pattern string) (*regexp.Regexp, error) {
	p.compiledMu.RLock()
	re, ok := p.compiled[pattern]
	p.compiledMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}

	p.compiledMu.Lock()
	p.compiled[pattern] = re
	p.compiledMu.Unlock()
	return re, nil
}

// BatchAnalyze analyzes texts concurrently, bounded by MaxConcurrent,
// and returns results in input order regardless of completion order.
func (p *Pipeline) BatchAnalyze(texts []string, ctx Context) []Result {
	results := make([]Result, len(texts))

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrent)
	for i, text := range texts {
		g.Go(func() error {
			results[i] = p.Analyze(text, ctx)
			return nil
		})
	}
	// Analyze never returns an error, so neither does the group.
	_ = g.Wait()
	return results
}

// LogSecurityEvent forwards a structured audit record to the event sink.
// It never fails: sink problems are downgraded to a local log line by
// the sink itself.
func (p *Pipeline) LogSecurityEvent(eventType, context, userID, conversationID string, details map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] audit sink panicked: %v", r)
		}
	}()
	p.sink.Record(newEvent(eventType, context, userID, conversationID, details))
}

// Report renders a human-readable summary of a Result.
func (p *Pipeline) Report(r Result) string {
	var b strings.Builder

	b.WriteString("Security Analysis Report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", r.Timestamp.Format(time.RFC3339))
	status := "SAFE"
	if !r.IsSafe {
		status = "UNSAFE"
	}
	fmt.Fprintf(&b, "Overall Status: %s\n", status)
	fmt.Fprintf(&b, "Risk Score: %.2f/1.0\n", r.OverallRiskScore)
	fmt.Fprintf(&b, "Processing Time: %.2fms\n", r.ProcessingTimeMs)

	if len(r.ThreatTypes) > 0 {
		b.WriteString("\nThreat Types Detected:\n")
		for _, threat := range r.ThreatTypes {
			fmt.Fprintf(&b, "  - %s\n", threat)
		}
	}

	fmt.Fprintf(&b, "\nSecurity Checks (%d total):\n", len(r.Checks))
	for _, check := range r.Checks {
		status := "PASS"
		if !check.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s: %.2f\n", status, check.CheckName, check.RiskScore)
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	return b.String()
}

// Configuration returns the current thresholds and signature counts.
func (p *Pipeline) Configuration() map[string]any {
	stats := p.store.Statistics()
	return map[string]any{
		"max_risk_score":      p.cfg.MaxRiskScore,
		"critical_risk_score": p.cfg.CriticalRiskScore,
		"max_input_length":    p.cfg.MaxInputLength,
		"min_confidence":      p.cfg.MinConfidence,
		"max_patterns":        p.cfg.MaxPatterns,
		"requests_per_minute": p.cfg.RequestsPerMinute,
		"window_seconds":      p.cfg.WindowSeconds,
		"threat_signatures":   stats.Total,
		"enabled_signatures":  stats.Enabled,
	}
}

// dedupe removes duplicate threat types, preserving first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
