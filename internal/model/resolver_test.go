package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raihan/sela/internal/config"
)

func testAliases() map[string]string {
	return map[string]string{
		"opus":   "anthropic/claude-opus-4",
		"sonnet": "anthropic/claude-sonnet-4",
		"mini":   "openai/gpt-4.1-mini",
	}
}

func newTestResolver(t *testing.T, allowlist []string) *Resolver {
	catalog := NewCatalog(nil)
	auth := NewAuthStore([]config.AuthProfile{
		{Name: "work", Provider: "openai", APIKey: "sk-test"},
	})
	r, err := NewResolver(catalog, auth, "anthropic/claude-sonnet-4", testAliases(), allowlist)
	require.NoError(t, err)
	return r
}

func TestResolver_ExactMatch(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve("openai/gpt-4.1-mini")
	require.NoError(t, err)
	assert.Equal(t, Key{Provider: "openai", Model: "gpt-4.1-mini"}, res.Key)
	assert.Empty(t, res.AuthProfile)
}

func TestResolver_AliasEqualsCanonical(t *testing.T) {
	r := newTestResolver(t, nil)

	byAlias, err := r.Resolve("opus")
	require.NoError(t, err)
	byRef, err := r.Resolve("anthropic/claude-opus-4")
	require.NoError(t, err)

	assert.Equal(t, byRef.Key, byAlias.Key)
}

func TestResolver_ResolutionIsIdempotent(t *testing.T) {
	r := newTestResolver(t, nil)

	first, err := r.Resolve("sonnet")
	require.NoError(t, err)

	second, err := r.Resolve(first.Key.String())
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
}

func TestResolver_NormalizesDottedAnthropicVersions(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve("anthropic/claude-3.5-haiku")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku", res.Key.Model)
}

func TestResolver_FuzzyUniqueFragment(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve("haiku")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku", res.Key.Model)
}

func TestResolver_FuzzyProviderScoped(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve("google/flash")
	require.NoError(t, err)
	assert.Equal(t, Key{Provider: "google", Model: "gemini-2.5-flash"}, res.Key)
}

func TestResolver_AmbiguousListsCandidates(t *testing.T) {
	r := newTestResolver(t, nil)

	_, err := r.Resolve("gpt")
	require.Error(t, err)

	var ambiguous *AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	assert.NotEmpty(t, ambiguous.Candidates)
	assert.LessOrEqual(t, len(ambiguous.Candidates), 5)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestResolver_AmbiguousCapsListAtFive(t *testing.T) {
	custom := make([]config.CustomModel, 0, 7)
	for _, id := range []string{"zz-1", "zz-2", "zz-3", "zz-4", "zz-5", "zz-6", "zz-7"} {
		custom = append(custom, config.CustomModel{Provider: "acme", ID: id, Name: id})
	}
	catalog := NewCatalog(custom)
	r, err := NewResolver(catalog, NewAuthStore(nil), "anthropic/claude-sonnet-4", nil, nil)
	require.NoError(t, err)

	_, err = r.Resolve("zz-")
	require.Error(t, err)

	var ambiguous *AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Candidates, 5)
	assert.Equal(t, 7, ambiguous.Total)
	assert.Contains(t, err.Error(), "(+2 more)")
}

func TestResolver_Unrecognized(t *testing.T) {
	r := newTestResolver(t, nil)

	_, err := r.Resolve("no-such-model")
	require.Error(t, err)

	var unrecognized *UnrecognizedError
	assert.ErrorAs(t, err, &unrecognized)
}

func TestResolver_ExactOutsideAllowlistIsNotAllowed(t *testing.T) {
	r := newTestResolver(t, []string{"anthropic/claude-sonnet-4"})

	// Exact references bypass the allowlist filter but still fail the final check
	_, err := r.Resolve("openai/gpt-4o")
	require.Error(t, err)

	var notAllowed *NotAllowedError
	require.ErrorAs(t, err, &notAllowed)
	assert.Equal(t, Key{Provider: "openai", Model: "gpt-4o"}, notAllowed.Key)
}

func TestResolver_FuzzyOnlySearchesAllowlist(t *testing.T) {
	r := newTestResolver(t, []string{"anthropic/claude-sonnet-4", "anthropic/claude-opus-4"})

	// "gpt" matches nothing on this allowlist, so it is unrecognized rather
	// than ambiguous
	_, err := r.Resolve("gpt")
	require.Error(t, err)

	var unrecognized *UnrecognizedError
	assert.ErrorAs(t, err, &unrecognized)
}

func TestResolver_DefaultAlwaysAllowed(t *testing.T) {
	r := newTestResolver(t, []string{"openai/gpt-4o"})

	res, err := r.Resolve("anthropic/claude-sonnet-4")
	require.NoError(t, err)
	assert.Equal(t, r.Default(), res.Key)
}

func TestResolver_AuthProfileSuffix(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve("openai/gpt-4.1-mini@work")
	require.NoError(t, err)
	assert.Equal(t, "work", res.AuthProfile)
}

func TestResolver_AuthProfileMissing(t *testing.T) {
	r := newTestResolver(t, nil)

	_, err := r.Resolve("mini@personal")
	require.Error(t, err)

	var authErr *AuthProfileError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Missing)
}

func TestResolver_AuthProfileWrongProvider(t *testing.T) {
	r := newTestResolver(t, nil)

	// "work" serves openai, not anthropic
	_, err := r.Resolve("sonnet@work")
	require.Error(t, err)

	var authErr *AuthProfileError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.Missing)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestResolver_AuthSuffixWithoutAuthStore(t *testing.T) {
	r, err := NewResolver(NewCatalog(nil), nil, "anthropic/claude-sonnet-4", testAliases(), nil)
	require.NoError(t, err)

	_, err = r.Resolve("mini@work")
	require.Error(t, err)

	var authErr *AuthProfileError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Missing)

	// The bare reference still resolves
	res, err := r.Resolve("mini")
	require.NoError(t, err)
	assert.Equal(t, Key{Provider: "openai", Model: "gpt-4.1-mini"}, res.Key)
}

func TestResolver_AllowedEntriesRespectsAllowlist(t *testing.T) {
	r := newTestResolver(t, []string{"openai/gpt-4o"})

	entries := r.AllowedEntries()
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key().String())
	}
	assert.Contains(t, keys, "openai/gpt-4o")
	// The default rides along even when not listed
	assert.Contains(t, keys, "anthropic/claude-sonnet-4")
	for _, k := range keys {
		if strings.HasPrefix(k, "google/") {
			t.Fatalf("google models should not be allowlisted, got %s", k)
		}
	}
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref      string
		provider string
		model    string
	}{
		{"anthropic/claude-sonnet-4", "anthropic", "claude-sonnet-4"},
		{"gpt-4o", "", "gpt-4o"},
		{"openai/gpt-4.1", "openai", "gpt-4.1"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			provider, model := ParseRef(tt.ref)
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.model, model)
		})
	}
}
