// Package signatures provides the versioned, in-memory store of named
// threat signatures consulted by the security pipeline. The store owns
// every signature: callers read, the store mutates.
//
// Design principles:
// - UPSERT SEMANTICS: Add inserts or replaces by id, no constraint errors
// - READ-MOSTLY: lookups take a read lock, shared safely across goroutines
// - PORTABLE: the full set round-trips through a JSON document
package signatures

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Severity levels for threat signatures.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Signature is a named threat signature: a regex pattern plus metadata.
// Immutable after creation except for Enabled toggling via the store.
type Signature struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Pattern     string    `json:"pattern" yaml:"pattern"`
	ThreatType  string    `json:"threat_type" yaml:"threat_type"`
	Severity    string    `json:"severity" yaml:"severity"`
	Description string    `json:"description" yaml:"description"`
	Mitigation  string    `json:"mitigation" yaml:"mitigation"`
	Confidence  float64   `json:"confidence" yaml:"confidence"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	Tags        []string  `json:"tags" yaml:"tags"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Fingerprint returns a short stable hash of the signature's identity
// (name, pattern, threat type). Useful for deduplicating imported packs.
func (s Signature) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.Name + s.Pattern + s.ThreatType))
	return hex.EncodeToString(sum[:])[:16]
}

// Statistics summarizes the store's contents.
type Statistics struct {
	Total       int            `json:"total_signatures"`
	Enabled     int            `json:"enabled_signatures"`
	ByType      map[string]int `json:"threat_types"`
	BySeverity  map[string]int `json:"severity_counts"`
	Version     string         `json:"version"`
	LastUpdated time.Time      `json:"last_updated"`
}

// exportDocument is the persisted form of the store.
type exportDocument struct {
	Version     string      `json:"version" yaml:"version"`
	LastUpdated time.Time   `json:"last_updated" yaml:"last_updated"`
	Signatures  []Signature `json:"signatures" yaml:"signatures"`
}

// Store holds the canonical signature set. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	signatures  map[string]Signature
	version     string
	lastUpdated time.Time
}

// NewStore creates a store preloaded with the built-in default signatures.
func NewStore() *Store {
	s := &Store{
		signatures:  make(map[string]Signature, 32),
		version:     "1.0.0",
		lastUpdated: time.Now().UTC(),
	}
	for _, sig := range defaultSignatures() {
		s.Add(sig)
	}
	return s
}

// NewEmptyStore creates a store with no signatures, for callers that load
// their own pack.
func NewEmptyStore() *Store {
	return &Store{
		signatures:  make(map[string]Signature),
		version:     "1.0.0",
		lastUpdated: time.Now().UTC(),
	}
}

// Add inserts or replaces a signature by id and bumps the store timestamp.
func (s *Store) Add(sig Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[sig.ID] = sig
	s.lastUpdated = time.Now().UTC()
}

// Remove deletes a signature by id. Returns false if it was absent.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signatures[id]; !ok {
		return false
	}
	delete(s.signatures, id)
	s.lastUpdated = time.Now().UTC()
	return true
}

// Get returns the signature with the given id, if present.
func (s *Store) Get(id string) (Signature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signatures[id]
	return sig, ok
}

// SetEnabled toggles a signature's enabled flag and bumps its UpdatedAt.
// Returns false if the signature is absent.
func (s *Store) SetEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signatures[id]
	if !ok {
		return false
	}
	sig.Enabled = enabled
	sig.UpdatedAt = time.Now().UTC()
	s.signatures[id] = sig
	s.lastUpdated = sig.UpdatedAt
	return true
}

// ByType returns all enabled signatures for a threat type.
func (s *Store) ByType(threatType string) []Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Signature
	for _, sig := range s.signatures {
		if sig.Enabled && sig.ThreatType == threatType {
			out = append(out, sig)
		}
	}
	return out
}

// BySeverity returns all enabled signatures at a severity level.
func (s *Store) BySeverity(severity string) []Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Signature
	for _, sig := range s.signatures {
		if sig.Enabled && sig.Severity == severity {
			out = append(out, sig)
		}
	}
	return out
}

// Search matches a query case-insensitively against signature names,
// descriptions, and tags.
func (s *Store) Search(query string) []Signature {
	query = strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Signature
	for _, sig := range s.signatures {
		if strings.Contains(strings.ToLower(sig.Name), query) ||
			strings.Contains(strings.ToLower(sig.Description), query) {
			out = append(out, sig)
			continue
		}
		for _, tag := range sig.Tags {
			if strings.Contains(strings.ToLower(tag), query) {
				out = append(out, sig)
				break
			}
		}
	}
	return out
}

// All returns a snapshot of every signature, enabled or not.
func (s *Store) All() []Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Signature, 0, len(s.signatures))
	for _, sig := range s.signatures {
		out = append(out, sig)
	}
	return out
}

// Enabled returns a snapshot of the enabled signatures only. This is the
// set the pipeline's signature matcher runs on every analysis.
func (s *Store) Enabled() []Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Signature, 0, len(s.signatures))
	for _, sig := range s.signatures {
		if sig.Enabled {
			out = append(out, sig)
		}
	}
	return out
}

// Len returns the total signature count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signatures)
}

// Statistics returns counts by type and severity plus store metadata.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{
		Total:       len(s.signatures),
		ByType:      make(map[string]int),
		BySeverity:  make(map[string]int),
		Version:     s.version,
		LastUpdated: s.lastUpdated,
	}
	for _, sig := range s.signatures {
		if sig.Enabled {
			stats.Enabled++
		}
		stats.ByType[sig.ThreatType]++
		stats.BySeverity[sig.Severity]++
	}
	return stats
}

// Export serializes the full signature set to a JSON document at path.
func (s *Store) Export(path string) error {
	s.mu.RLock()
	doc := exportDocument{
		Version:     s.version,
		LastUpdated: s.lastUpdated,
		Signatures:  make([]Signature, 0, len(s.signatures)),
	}
	for _, sig := range s.signatures {
		doc.Signatures = append(doc.Signatures, sig)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal signatures: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export signatures: %w", err)
	}
	return nil
}

// Import upserts each signature from a JSON document at path. Signatures
// already in the store but absent from the file are preserved.
func (s *Store) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import signatures: %w", err)
	}
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse signature file %s: %w", path, err)
	}

	s.mu.Lock()
	if doc.Version != "" {
		s.version = doc.Version
	}
	for _, sig := range doc.Signatures {
		s.signatures[sig.ID] = sig
	}
	s.lastUpdated = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

// LoadPack upserts signatures from a YAML pack file. Packs use the same
// document shape as the JSON export and the same upsert semantics.
func (s *Store) LoadPack(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load signature pack: %w", err)
	}
	var doc exportDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse signature pack %s: %w", path, err)
	}

	s.mu.Lock()
	for _, sig := range doc.Signatures {
		s.signatures[sig.ID] = sig
	}
	s.lastUpdated = time.Now().UTC()
	s.mu.Unlock()
	return nil
}
