package prompt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jobsift/jobsift/pkg/seclog"
)

// Source identifies who changed a prompt. User-origin changes are accepted;
// agent- and system-origin changes to a registered prompt are treated as
// tampering and auto-restored from the canonical source.
type Source string

// Change sources.
const (
	SourceUser   Source = "user"
	SourceAgent  Source = "agent"
	SourceSystem Source = "system"
)

// Entry is one registered template hash.
type Entry struct {
	Hash          string    `json:"hash"`
	RegisteredAt  time.Time `json:"registered_at"`
	LastUpdated   time.Time `json:"last_updated"`
	LastUpdatedBy string    `json:"last_updated_by"`
	SourceFile    string    `json:"source_file,omitempty"`
}

// registryDocument is the persisted shape of storage/prompt_hashes.json.
type registryDocument struct {
	Templates map[string]Entry `json:"templates"`
}

// Registry maps template names to the hash of their canonical normalized
// form. Read on every prompt use, written rarely.
type Registry struct {
	path string
	sink seclog.Sink

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry loads the registry from path. A load failure yields an empty
// registry; the first use of each template re-registers it.
func NewRegistry(path string, sink seclog.Sink) *Registry {
	if sink == nil {
		sink = seclog.NopSink{}
	}
	r := &Registry{
		path:    path,
		sink:    sink,
		entries: make(map[string]Entry),
	}
	r.load()
	return r
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to load prompt hash registry, starting empty",
				"path", r.path, "error", err)
		}
		return
	}
	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("Corrupt prompt hash registry, starting empty",
			"path", r.path, "error", err)
		return
	}
	if doc.Templates != nil {
		r.entries = doc.Templates
	}
	slog.Info("Prompt hash registry loaded", "path", r.path, "templates", len(r.entries))
}

// save persists the registry. Callers hold the write lock.
func (r *Registry) save() {
	doc := registryDocument{Templates: r.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal prompt hash registry", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		slog.Error("Failed to create registry directory", "path", r.path, "error", err)
		return
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("Failed to write prompt hash registry", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		slog.Error("Failed to replace prompt hash registry", "path", r.path, "error", err)
	}
}

// Hash returns the stored hash for name, if registered.
func (r *Registry) Hash(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry.Hash, ok
}

// Register computes the canonical hash of templateText and stores it under
// name, overwriting any existing entry. Returns the hash.
func (r *Registry) Register(name, templateText string, source Source) string {
	hash := Hash(templateText)
	now := time.Now().UTC()

	r.mu.Lock()
	entry, existed := r.entries[name]
	if existed && entry.Hash == hash {
		r.mu.Unlock()
		return hash
	}
	registeredAt := now
	if existed {
		registeredAt = entry.RegisteredAt
	}
	r.entries[name] = Entry{
		Hash:          hash,
		RegisteredAt:  registeredAt,
		LastUpdated:   now,
		LastUpdatedBy: string(source),
		SourceFile:    entry.SourceFile,
	}
	r.save()
	r.mu.Unlock()

	change := "registered_hash"
	if existed {
		change = "updated_hash"
	}
	r.logChange(change, name, hash, source, seclog.SeverityLow)
	return hash
}

// ValidateAndHandle checks currentText against the registered hash for name
// and decides which text downstream code should use.
//
//   - Unknown name: register currentText as canonical, use it.
//   - Hash match: use currentText.
//   - Mismatch, user source: a legitimate edit. Update the stored hash,
//     use currentText.
//   - Mismatch, agent/system source: tampering suspected. Fetch the
//     canonical text. If its hash matches the stored one, restore it
//     (replaced=true). If it differs too, the canonical source itself was
//     legitimately updated: re-register from canonical and use it.
//
// A canonical-retrieval failure logs an incident and keeps currentText
// (availability over strictness).
func (r *Registry) ValidateAndHandle(name, currentText string, source Source, canonical func() (string, error)) (string, bool) {
	currentHash := Hash(currentText)

	r.mu.RLock()
	entry, known := r.entries[name]
	r.mu.RUnlock()

	if !known {
		r.Register(name, currentText, source)
		return currentText, false
	}
	if currentHash == entry.Hash {
		return currentText, false
	}

	if source == SourceUser {
		r.Register(name, currentText, source)
		return currentText, false
	}

	canonicalText, err := canonical()
	if err != nil {
		slog.Error("Canonical prompt retrieval failed, using current text",
			"template", name, "error", err)
		r.sink.Record(seclog.Event{
			Category: seclog.CategoryIncident,
			Type:     "canonical_retrieval_failed",
			Severity: seclog.SeverityHigh,
			Sample:   truncateSample(currentText),
			Metadata: map[string]any{
				"template":      name,
				"change_source": string(source),
				"error":         err.Error(),
			},
			ActionTaken: "kept_current_text",
		})
		return currentText, false
	}

	canonicalHash := Hash(canonicalText)
	if canonicalHash == entry.Hash {
		slog.Warn("Unauthorized prompt modification detected, restoring canonical",
			"template", name, "change_source", source)
		r.logChange("replaced_prompt", name, canonicalHash, source, seclog.SeverityHigh)
		r.sink.Record(seclog.Event{
			Category: seclog.CategoryIncident,
			Type:     "prompt_tampering",
			Severity: seclog.SeverityHigh,
			Sample:   truncateSample(currentText),
			Metadata: map[string]any{
				"template":       name,
				"change_source":  string(source),
				"expected_hash":  entry.Hash,
				"detected_hash":  currentHash,
				"canonical_hash": canonicalHash,
			},
			ActionTaken: "replaced_prompt",
		})
		return canonicalText, true
	}

	// Canonical changed underneath us: a code update shipped a new template.
	r.Register(name, canonicalText, source)
	return canonicalText, true
}

func (r *Registry) logChange(change, name, hash string, source Source, severity seclog.Severity) {
	r.sink.Record(seclog.Event{
		Category:    seclog.CategoryPromptChange,
		Type:        change,
		Severity:    severity,
		ActionTaken: change,
		Metadata: map[string]any{
			"template":      name,
			"hash":          hash,
			"change_source": string(source),
		},
	})
}

func truncateSample(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// RegisterBuiltins registers every embedded canonical template that is not
// yet in the registry. Called once at startup.
func (r *Registry) RegisterBuiltins() error {
	for _, name := range []string{Tier1TemplateName, Tier2TemplateName, Tier3TemplateName} {
		if _, ok := r.Hash(name); ok {
			continue
		}
		text, err := CanonicalTemplate(name)
		if err != nil {
			return fmt.Errorf("register builtin template %s: %w", name, err)
		}
		r.Register(name, text, SourceSystem)
	}
	return nil
}
