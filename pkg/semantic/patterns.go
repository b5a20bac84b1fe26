// Package semantic provides heuristic, pattern-driven threat
// categorization independent of the signature store. All regex patterns
// are compiled once at package init and shared across all analyzers.
package semantic

import "regexp"

// Category represents a threat pattern group.
type Category string

const (
	CategoryPromptInjection     Category = "prompt_injection"
	CategoryJailbreak           Category = "jailbreak"
	CategorySocialEngineering   Category = "social_engineering"
	CategoryEncodingAttack      Category = "encoding_attacks"
	CategoryContextManipulation Category = "context_manipulation"
	CategorySQLInjection        Category = "sql_injection"
	CategoryXSS                 Category = "xss"
)

// Categories lists every fixed pattern group, in the order they are
// scanned.
var Categories = []Category{
	CategoryPromptInjection,
	CategoryJailbreak,
	CategorySocialEngineering,
	CategoryEncodingAttack,
	CategoryContextManipulation,
	CategorySQLInjection,
	CategoryXSS,
}

// ignoreInstructionsPattern is the one high-precision pattern with its own
// scoring rule: a direct "ignore instructions" phrase is a near-certain
// injection signal regardless of match count.
var ignoreInstructionsPattern = regexp.MustCompile(`(?i)\b(ignore)\s+(instructions)\b`)

// threatPatterns holds the fixed pattern groups, populated at init.
var threatPatterns = map[Category][]*regexp.Regexp{}

func register(cat Category, patterns ...string) {
	for _, p := range patterns {
		threatPatterns[cat] = append(threatPatterns[cat], regexp.MustCompile(p))
	}
}

func init() {
	registerPromptInjectionPatterns()
	registerJailbreakPatterns()
	registerSocialEngineeringPatterns()
	registerEncodingAttackPatterns()
	registerContextManipulationPatterns()
	registerSQLInjectionPatterns()
	registerXSSPatterns()
}

func registerPromptInjectionPatterns() {
	register(CategoryPromptInjection,
		// Direct prompt override attempts
		`(?i)\b(ignore|disregard|override|bypass|forget)\s+(all\s+)?(previous|above|prior|earlier)\s*(instructions?|prompts?|commands?|context)\b`,
		`(?i)\b(ignore|disregard|override|bypass)\s+(previous|above|all)\s+(instructions?|prompts?|commands?)\b`,
		`(?i)\b(ignore|disregard|override|bypass)\s+all\s+(previous|above)\s+(instructions?|prompts?|commands?)\b`,
		`(?i)\b(ignore|disregard|override|bypass)\s+(instructions?|prompts?|commands?)\b`,
		ignoreInstructionsPattern.String(),
		`(?i)\bforget\s+(everything|all)\s+(before|above)\b`,
		`(?i)\bstart\s+(over|fresh|new)\s+(with|from)\b`,

		// System prompt extraction
		`(?i)\b(reveal|show|display|print)\s+(system|your|hidden)\s+(prompt|instructions?)\b`,
		`(?i)\bwhat\s+(are|is)\s+(your|the)\s+(instructions?|prompt)\b`,

		// Code injection
		`(?i)\b(eval|exec|import|__import__|subprocess|os\.system)\s*\(`,

		// Data exfiltration
		`(?i)\b(send|transmit|upload|leak)\s+(data|information|files?)\s+(to|from)\b`,
		`(?i)\b(access|read|download)\s+(files?|database|memory)\b`,

		// Instruction replacement framing
		`(?i)\bfrom\s+now\s+on\b`,
		`(?i)\byou\s+will\b`,
		`(?i)\bnew\s+instructions?\b`,
		`(?i)\bprevious\s+instructions?\s+(are|is)\s+(void|invalid)\b`,
	)
}

func registerJailbreakPatterns() {
	register(CategoryJailbreak,
		// Role manipulation
		`(?i)\b(you\s+are|pretend\s+to\s+be|act\s+as)\s+(a\s+)?(hacker|attacker|malicious|evil)\b`,
		`(?i)\bchange\s+your\s+(role|personality|behavior)\s+to\b`,

		// Restriction bypass
		`(?i)\b(do\s+anything|anything\s+goes|no\s+restrictions?)\b`,
		`(?i)\b(break|ignore|override)\s+(rules?|restrictions?|limitations?)\b`,
	)
}

func registerSocialEngineeringPatterns() {
	register(CategorySocialEngineering,
		// Authority impersonation
		`(?i)\b(i\s+am|this\s+is)\s+(admin|administrator|root|system)\b`,
		`(?i)\b(admin|administrator|system)\s+(access|privileges?|rights?)\b`,

		// Urgency tactics
		`(?i)\b(emergency|urgent|critical|immediate)\s+(action|response|help)\b`,
		`(?i)\btime\s+(sensitive|critical|running\s+out)\b`,

		// Trust exploitation
		`(?i)\btrust\s+me|believe\s+me|i\s+promise\b`,
		`(?i)\b(confidential|secret|private)\s+(information|data)\b`,
	)
}

func registerEncodingAttackPatterns() {
	register(CategoryEncodingAttack,
		// Base64 payloads
		`(?:[A-Za-z0-9+/]{4})*(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)`,
		// Hex escapes
		`(?:\\x[0-9a-fA-F]{2})+`,
		// Unicode escapes
		`\\u[0-9a-fA-F]{4}`,
		// URL encoding
		`%[0-9a-fA-F]{2}`,
	)
}

func registerContextManipulationPatterns() {
	register(CategoryContextManipulation,
		// Context switching
		`(?i)\b(new|different|other)\s+(context|conversation|topic)\b`,
		`(?i)\b(let's|let\s+us)\s+(talk|discuss)\s+about\s+something\s+else\b`,

		// Memory manipulation
		`(?i)\b(erase|delete|remove|clear)\s+(memory|history|conversation)\b`,
		`(?i)\bforget\s+(what|everything)\s+(i|we)\s+(said|discussed)\b`,
	)
}

func registerSQLInjectionPatterns() {
	register(CategorySQLInjection,
		`(?i)'\s*(or|and)\s+\d+\s*=\s*\d+`,
		`(?i)'\s*(or|and)\s*'[^']*'\s*=\s*'[^']*'`,
		`(?i)--\s*$`,
		`(?i)/\*\s*\*/`,
		`(?i);\s*(drop|delete|update|insert|create|alter|exec|execute)\s+`,
		`(?i)\bunion\b.*\bselect\b`,
		`(?i)select\s+\*\s+from\s+\w+\s+where\s+.*=.*`,
		`(?i)insert\s+into\s+\w+\s+values`,
		`(?i)update\s+\w+\s+set\s+.*=.*`,
		`(?i)delete\s+from\s+\w+\s+where`,
		`(?i)drop\s+(table|database|index|schema)\s+\w+`,
		`(?i)exec\s*\(`,
		`(?i)1\s*=\s*1`,
		`(?i)sleep\s*\(\s*\d+\s*\)`,
		`(?i)benchmark\s*\(\s*\d+\s*,`,
		`(?i)load_file\s*\(`,
		`(?i)into\s+outfile`,
		`(?i)information_schema`,
		`(?i)xp_cmdshell`,
		`(?i)sp_executesql`,
		`(?i)\bwaitfor\b.*\bdelay\b`,
		`(?i)\bchar\s*\(\s*\d+\s*\)`,
		`(?i)\bcast\s*\(`,
		`(?i)\bconvert\s*\(`,
		`(?i)pg_tables`,
		`(?i)pg_class`,
		`(?i)sqlite_master`,
		`(?i)mysql\.user`,
		`(?i)grant\s+.*\s+to\s+.*`,
		`(?i)revoke\s+.*\s+from\s+.*`,
		`(?i)(create|alter|drop)\s+user\s+.*`,
	)
}

func registerXSSPatterns() {
	register(CategoryXSS,
		`(?i)<script[^>]*>.*?</script\s*>`,
		`(?i)<[^>]*\s+on\w+\s*=`,
		`(?i)javascript:\s*`,
		`(?i)<iframe[^>]*>`,
		`(?i)<object[^>]*>`,
		`(?i)<embed[^>]*>`,
		`(?i)<img[^>]*\s+src\s*=\s*['"]?javascript:`,
		`(?i)<svg[^>]*>.*?</svg\s*>`,
		`(?i)<form[^>]*>`,
		`(?i)(alert|confirm|prompt)\s*\(`,
		`(?i)document\.(cookie|write|location)`,
		`(?i)(eval|setTimeout|setInterval)\s*\(`,
		`(?i)<[^>]*\s+href\s*=\s*['"]?javascript:`,
		`(?i)<(link|meta|base|style|input|button|textarea|select|option)[^>]*>`,
		`(?i)expression\s*\(`,
		`(?i)vbscript\s*:`,
		`(?i)data\s*:\s*text/html`,
		`(?i)(top|parent|self|window)\.location`,
	)
}

// PatternCount returns the number of patterns in a category. Zero for
// unknown categories.
func PatternCount(cat Category) int {
	return len(threatPatterns[cat])
}
