package signatures

import "time"

// defaultSignatures is the built-in signature set loaded at store creation.
// IDs are stable: operators disable or replace entries by id, and exported
// packs reference them.
func defaultSignatures() []Signature {
	now := time.Now().UTC()

	sig := func(id, name, pattern, threatType, severity, description, mitigation string, confidence float64, tags ...string) Signature {
		return Signature{
			ID:          id,
			Name:        name,
			Pattern:     pattern,
			ThreatType:  threatType,
			Severity:    severity,
			Description: description,
			Mitigation:  mitigation,
			Confidence:  confidence,
			Enabled:     true,
			Tags:        tags,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	return []Signature{
		// Prompt Injection
		sig("prompt_injection_001", "Direct Prompt Override",
			`(?i)(ignore|disregard|override).*(instructions?|prompts?)\b`,
			"prompt_injection", SeverityCritical,
			"Attempt to override system instructions",
			"Block input and log attempt",
			0.95, "prompt_injection", "critical", "override"),

		sig("prompt_injection_002", "System Prompt Extraction",
			`(?i)\b(reveal|show|display|print)\s+(system|your|hidden)\s+(prompt|instructions?)\b`,
			"prompt_injection", SeverityHigh,
			"Attempt to extract system prompts",
			"Sanitize response and log attempt",
			0.9, "prompt_injection", "extraction", "high"),

		// Jailbreak Attempts
		sig("jailbreak_001", "Role Manipulation",
			`(?i)(you\s+are).*(different\s+ai|hacker|attacker|malicious|evil)`,
			"jailbreak", SeverityHigh,
			"Attempt to change assistant behavior through role manipulation",
			"Maintain system role and log attempt",
			0.85, "jailbreak", "role_manipulation", "high"),

		sig("jailbreak_002", "Restriction Bypass",
			`(?i)\b(do\s+anything|anything\s+goes|no\s+restrictions?)\b`,
			"jailbreak", SeverityMedium,
			"Attempt to bypass system restrictions",
			"Enforce restrictions and log attempt",
			0.8, "jailbreak", "restriction_bypass", "medium"),

		sig("jailbreak_003", "Role Impersonation",
			`(?i)\b(act\s+as|pretend\s+to\s+be)\s+(a\s+)?(hacker|attacker|admin|administrator|evil)`,
			"jailbreak", SeverityHigh,
			"Attempt to impersonate privileged roles",
			"Maintain system role and log attempt",
			0.9, "jailbreak", "role_impersonation", "high"),

		// Code Injection
		sig("code_injection_001", "Script Code Injection",
			`(?i)\b(eval|exec|import|__import__|subprocess|os\.system)\s*\(`,
			"code_injection", SeverityCritical,
			"Attempt to smuggle executable code into the prompt",
			"Block input and alert security team",
			0.95, "code_injection", "critical"),

		// Data Exfiltration
		sig("data_exfil_001", "Data Exfiltration Attempt",
			`(?i)(send|transmit|upload|leak).*(data|information|files?)`,
			"data_exfiltration", SeverityHigh,
			"Attempt to exfiltrate data",
			"Block operation and audit access",
			0.85, "data_exfiltration", "high", "security"),

		// Social Engineering
		sig("social_eng_001", "Authority Impersonation",
			`(?i)\b(i\s+am|this\s+is)\s+(admin|administrator|root|system)\b`,
			"social_engineering", SeverityMedium,
			"Attempt to impersonate system authority",
			"Verify identity through proper channels",
			0.75, "social_engineering", "impersonation", "medium"),

		// Encoding Attacks
		sig("encoding_001", "Base64 Encoding",
			`(?:[A-Za-z0-9+/]{4})*(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)`,
			"encoding_attack", SeverityLow,
			"Base64 encoded content detected",
			"Decode and re-analyze content",
			0.6, "encoding", "base64", "low"),

		sig("encoding_002", "Unicode Obfuscation",
			`\\u[0-9a-fA-F]{4}`,
			"encoding_attack", SeverityMedium,
			"Unicode escape sequences detected",
			"Normalize and re-analyze",
			0.7, "encoding", "unicode", "obfuscation", "medium"),

		// Context Manipulation
		sig("context_001", "Context Switching",
			`(?i)\b(new|different|other)\s+(context|conversation|topic)\b`,
			"context_manipulation", SeverityLow,
			"Attempt to change conversation context",
			"Maintain context boundaries",
			0.6, "context_manipulation", "low"),

		sig("context_002", "Memory Manipulation",
			`(?i)\b(erase|delete|remove|clear)\s+(memory|history|conversation)\b`,
			"context_manipulation", SeverityMedium,
			"Attempt to manipulate memory or history",
			"Preserve memory integrity",
			0.75, "context_manipulation", "memory", "medium"),

		// SQL Injection
		sig("sql_injection_001", "SQL Injection Attempt",
			`(?i)('\s*(or|union|select|insert|update|delete|drop|create|alter|exec|execute)\s+)|(--\s*$)|(;.*?(drop|delete|update|insert|create|alter|exec|execute)\s+)`,
			"sql_injection", SeverityCritical,
			"SQL injection attempt detected",
			"Block input and sanitize for SQL contexts",
			0.95, "sql_injection", "database", "critical"),

		// XSS
		sig("xss_001", "Cross-Site Scripting",
			`(?i)(<script[^>]*>.*?</script\s*>|<[^>]*\s+on\w+\s*=|javascript:\s*|<iframe[^>]*>|<object[^>]*>|<embed[^>]*>)`,
			"xss", SeverityHigh,
			"Cross-site scripting attempt detected",
			"Sanitize HTML and escape output",
			0.9, "xss", "javascript", "html", "high"),
	}
}
