package model

import (
	"fmt"
	"sort"
	"strings"
)

// AuthSeparator splits a model reference from a trailing auth profile name
const AuthSeparator = "@"

// maxAmbiguousCandidates bounds the candidates listed in an ambiguous error
const maxAmbiguousCandidates = 5

// Resolution is a successful model reference resolution
type Resolution struct {
	Key         Key
	Entry       CatalogEntry
	AuthProfile string
}

// UnrecognizedError reports a reference matching nothing
type UnrecognizedError struct {
	Ref string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("unrecognized model reference %q", e.Ref)
}

// AmbiguousError reports a fuzzy reference matching several models
type AmbiguousError struct {
	Ref        string
	Candidates []Key
	Total      int
}

func (e *AmbiguousError) Error() string {
	shown := make([]string, 0, len(e.Candidates))
	for _, k := range e.Candidates {
		shown = append(shown, k.String())
	}
	msg := fmt.Sprintf("ambiguous model reference %q: matches %s", e.Ref, strings.Join(shown, ", "))
	if e.Total > len(e.Candidates) {
		msg += fmt.Sprintf(" (+%d more)", e.Total-len(e.Candidates))
	}
	return msg
}

// NotAllowedError reports a resolved key outside the session's allowlist
type NotAllowedError struct {
	Key Key
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("model %s is not allowed", e.Key)
}

// AuthProfileError reports an invalid auth profile suffix
type AuthProfileError struct {
	Profile  string
	Provider string
	Missing  bool
}

func (e *AuthProfileError) Error() string {
	if e.Missing {
		return fmt.Sprintf("auth profile %q not found", e.Profile)
	}
	return fmt.Sprintf("auth profile %q does not serve provider %q", e.Profile, e.Provider)
}

// Resolver resolves model references against a catalog, an alias index and a
// per-agent allowlist. The default key is always allowlisted.
type Resolver struct {
	catalog   Catalog
	auth      *AuthStore
	def       Key
	aliases   map[string]string
	allowlist map[Key]bool
}

// NewResolver builds a resolver. allowlist holds permitted provider/model
// references; when empty, every catalog entry is permitted.
func NewResolver(catalog Catalog, auth *AuthStore, defaultRef string, aliases map[string]string, allowlist []string) (*Resolver, error) {
	def, err := DefaultKey(defaultRef)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		catalog:   catalog,
		auth:      auth,
		def:       def,
		aliases:   make(map[string]string, len(aliases)),
		allowlist: make(map[Key]bool),
	}
	for name, ref := range aliases {
		r.aliases[strings.TrimSpace(name)] = strings.TrimSpace(ref)
	}

	if len(allowlist) == 0 {
		for _, e := range catalog.Entries() {
			r.allowlist[e.Key()] = true
		}
	} else {
		for _, ref := range allowlist {
			provider, modelID := ParseRef(ref)
			if provider == "" {
				provider = def.Provider
			}
			r.allowlist[Key{Provider: provider, Model: NormalizeModelID(provider, modelID)}] = true
		}
	}

	// The configured default is always permitted
	r.allowlist[def] = true

	return r, nil
}

// Default returns the configured default key
func (r *Resolver) Default() Key {
	return r.def
}

// Lookup returns the catalog entry for key
func (r *Resolver) Lookup(key Key) (CatalogEntry, bool) {
	return r.catalog.Lookup(key)
}

// Allowed reports whether key is on the allowlist
func (r *Resolver) Allowed(key Key) bool {
	return r.allowlist[key]
}

// AllowedEntries lists allowlisted catalog entries in catalog order
func (r *Resolver) AllowedEntries() []CatalogEntry {
	var out []CatalogEntry
	for _, e := range r.catalog.Entries() {
		if r.allowlist[e.Key()] {
			out = append(out, e)
		}
	}
	return out
}

// HasAuth reports whether any configured profile serves the provider
func (r *Resolver) HasAuth(provider string) bool {
	if r.auth == nil {
		return false
	}
	r.auth.mu.RLock()
	defer r.auth.mu.RUnlock()
	for _, p := range r.auth.profiles {
		if p.Provider == provider {
			return true
		}
	}
	return false
}

// Resolve resolves ref in exact, alias, then fuzzy order. A trailing
// "@profile" suffix selects a credential profile after the model resolves.
func (r *Resolver) Resolve(ref string) (Resolution, error) {
	ref = strings.TrimSpace(ref)

	var profile string
	if i := strings.LastIndex(ref, AuthSeparator); i > 0 {
		profile = strings.TrimSpace(ref[i+len(AuthSeparator):])
		ref = strings.TrimSpace(ref[:i])
	}

	res, err := r.resolveRef(ref)
	if err != nil {
		return Resolution{}, err
	}

	if profile != "" {
		if r.auth == nil {
			return Resolution{}, &AuthProfileError{Profile: profile, Missing: true}
		}
		p, ok := r.auth.Profile(profile)
		if !ok {
			return Resolution{}, &AuthProfileError{Profile: profile, Missing: true}
		}
		if p.Provider != res.Key.Provider {
			return Resolution{}, &AuthProfileError{Profile: profile, Provider: res.Key.Provider}
		}
		res.AuthProfile = profile
	}

	return res, nil
}

func (r *Resolver) resolveRef(ref string) (Resolution, error) {
	if ref == "" {
		return Resolution{}, &UnrecognizedError{Ref: ref}
	}

	// 1. Exact provider/model or bare model against the catalog
	if res, ok := r.resolveExact(ref); ok {
		if !r.allowlist[res.Key] {
			return Resolution{}, &NotAllowedError{Key: res.Key}
		}
		return res, nil
	}

	// 2. Exact alias match
	if target, ok := r.aliases[ref]; ok {
		if res, ok := r.resolveExact(target); ok {
			if !r.allowlist[res.Key] {
				return Resolution{}, &NotAllowedError{Key: res.Key}
			}
			return res, nil
		}
	}

	// 3. Fuzzy match over the allowlist
	return r.resolveFuzzy(ref)
}

func (r *Resolver) resolveExact(ref string) (Resolution, bool) {
	provider, modelID := ParseRef(ref)
	if provider == "" {
		provider = r.def.Provider
	}

	key := Key{Provider: provider, Model: NormalizeModelID(provider, modelID)}
	entry, ok := r.catalog.Lookup(key)
	if !ok {
		return Resolution{}, false
	}

	return Resolution{Key: entry.Key(), Entry: entry}, true
}

func (r *Resolver) resolveFuzzy(ref string) (Resolution, error) {
	scopeProvider, needle := ParseRef(ref)
	needle = strings.ToLower(needle)

	seen := make(map[Key]bool)
	var candidates []Key

	add := func(key Key) {
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, key)
	}

	for _, e := range r.catalog.Entries() {
		key := e.Key()
		if !r.allowlist[key] {
			continue
		}
		if scopeProvider != "" {
			if !strings.EqualFold(e.Provider, scopeProvider) {
				continue
			}
			if strings.Contains(strings.ToLower(e.ID), needle) {
				add(key)
			}
			continue
		}
		full := strings.ToLower(key.String())
		if strings.Contains(full, needle) || strings.Contains(strings.ToLower(e.ID), needle) {
			add(key)
		}
	}

	// Alias fragments are candidates too
	aliasNames := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		aliasNames = append(aliasNames, name)
	}
	sort.Strings(aliasNames)
	for _, name := range aliasNames {
		if !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		res, ok := r.resolveExact(r.aliases[name])
		if !ok || !r.allowlist[res.Key] {
			continue
		}
		if scopeProvider != "" && !strings.EqualFold(res.Key.Provider, scopeProvider) {
			continue
		}
		add(res.Key)
	}

	switch len(candidates) {
	case 0:
		return Resolution{}, &UnrecognizedError{Ref: ref}
	case 1:
		entry, _ := r.catalog.Lookup(candidates[0])
		return Resolution{Key: candidates[0], Entry: entry}, nil
	}

	shown := candidates
	if len(shown) > maxAmbiguousCandidates {
		shown = shown[:maxAmbiguousCandidates]
	}
	return Resolution{}, &AmbiguousError{Ref: ref, Candidates: shown, Total: len(candidates)}
}
