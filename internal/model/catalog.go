package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/raihan/sela/internal/config"
)

// Key identifies a catalog entry as a (provider, model) pair
type Key struct {
	Provider string
	Model    string
}

// String renders the key as provider/model
func (k Key) String() string {
	return k.Provider + "/" + k.Model
}

// ParseRef splits a reference into provider and model. A bare model name
// yields an empty provider.
func ParseRef(ref string) (provider, model string) {
	if i := strings.Index(ref, "/"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

// CatalogEntry describes one known model
type CatalogEntry struct {
	Provider  string
	ID        string
	Name      string
	Reasoning bool
}

// Key returns the entry's catalog key
func (e CatalogEntry) Key() Key {
	return Key{Provider: e.Provider, Model: e.ID}
}

// Catalog is the model catalog collaborator
type Catalog interface {
	Entries() []CatalogEntry
	Lookup(key Key) (CatalogEntry, bool)
}

// StaticCatalog merges the built-in entries with user-configured custom
// providers. Custom entries with the same key replace built-ins.
type StaticCatalog struct {
	entries []CatalogEntry
	index   map[Key]CatalogEntry
}

func builtinEntries() []CatalogEntry {
	return []CatalogEntry{
		{Provider: "anthropic", ID: "claude-opus-4", Name: "Claude Opus 4", Reasoning: true},
		{Provider: "anthropic", ID: "claude-sonnet-4", Name: "Claude Sonnet 4", Reasoning: true},
		{Provider: "anthropic", ID: "claude-3-5-haiku", Name: "Claude 3.5 Haiku"},
		{Provider: "openai", ID: "gpt-4.1", Name: "GPT-4.1"},
		{Provider: "openai", ID: "gpt-4.1-mini", Name: "GPT-4.1 mini"},
		{Provider: "openai", ID: "gpt-4o", Name: "GPT-4o"},
		{Provider: "openai", ID: "o3", Name: "o3", Reasoning: true},
		{Provider: "google", ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Reasoning: true},
		{Provider: "google", ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash"},
	}
}

// NewCatalog builds a catalog from the built-in set plus custom entries
func NewCatalog(custom []config.CustomModel) *StaticCatalog {
	c := &StaticCatalog{
		index: make(map[Key]CatalogEntry),
	}

	for _, e := range builtinEntries() {
		c.add(e)
	}
	for _, m := range custom {
		c.add(CatalogEntry{
			Provider:  m.Provider,
			ID:        m.ID,
			Name:      m.Name,
			Reasoning: m.Reasoning,
		})
	}

	return c
}

func (c *StaticCatalog) add(e CatalogEntry) {
	key := e.Key()
	if _, exists := c.index[key]; exists {
		for i := range c.entries {
			if c.entries[i].Key() == key {
				c.entries[i] = e
				break
			}
		}
	} else {
		c.entries = append(c.entries, e)
	}
	c.index[key] = e
}

// Entries returns all catalog entries
func (c *StaticCatalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup finds the entry for key, normalizing vendor shorthands first
func (c *StaticCatalog) Lookup(key Key) (CatalogEntry, bool) {
	if e, ok := c.index[key]; ok {
		return e, true
	}
	normalized := Key{Provider: key.Provider, Model: NormalizeModelID(key.Provider, key.Model)}
	e, ok := c.index[normalized]
	return e, ok
}

var dottedVersion = regexp.MustCompile(`(\d)\.(\d)`)

// NormalizeModelID maps known provider shorthands to the canonical model ID.
// Anthropic model IDs hyphenate version numbers, so "claude-3.5-haiku"
// becomes "claude-3-5-haiku". Other providers keep dotted versions.
func NormalizeModelID(provider, model string) string {
	if provider == "anthropic" {
		return dottedVersion.ReplaceAllString(model, "$1-$2")
	}
	return model
}

// DefaultKey parses the configured default provider/model pair
func DefaultKey(ref string) (Key, error) {
	provider, model := ParseRef(ref)
	if provider == "" || model == "" {
		return Key{}, fmt.Errorf("default model must be a provider/model pair, got %q", ref)
	}
	return Key{Provider: provider, Model: model}, nil
}
