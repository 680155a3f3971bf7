package directive

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/model"
	"github.com/raihan/sela/internal/run"
	"github.com/raihan/sela/internal/session"
)

type fakeGate struct {
	err   error
	calls int
}

func (g *fakeGate) CheckElevated(agentID, transport, sender string) error {
	g.calls++
	return g.err
}

type fixture struct {
	store  *session.Manager
	gate   *fakeGate
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	fs, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	store := session.NewManager(fs)
	t.Cleanup(func() { store.Close() })

	catalog := model.NewCatalog(nil)
	auth := model.NewAuthStore([]config.AuthProfile{
		{Name: "work", Provider: "openai", APIKey: "sk-test"},
	})
	resolver, err := model.NewResolver(catalog, auth, "anthropic/claude-sonnet-4",
		map[string]string{"sonnet": "anthropic/claude-sonnet-4", "mini": "openai/gpt-4.1-mini"}, nil)
	require.NoError(t, err)

	agents := map[string]*Agent{
		"coder": {
			Config:   config.AgentConfig{ID: "coder", ElevatedEnabled: true},
			Resolver: resolver,
		},
	}

	gate := &fakeGate{}
	engine := New(store, agents, gate, config.QueueConfig{}, zerolog.Nop())
	return &fixture{store: store, gate: gate, engine: engine}
}

func (f *fixture) process(t *testing.T, text string) Result {
	t.Helper()
	res, err := f.engine.Process(context.Background(), Request{
		SessionKey: "tg:1",
		AgentID:    "coder",
		Transport:  "tg",
		Sender:     "alice",
		Text:       text,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) entry(t *testing.T) session.Entry {
	t.Helper()
	entry, err := f.store.Get(context.Background(), "tg:1")
	require.NoError(t, err)
	return entry
}

func TestEngine_QueueDirectiveStoresAllSettings(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/queue collect debounce:2s cap:5 drop:old")

	require.Len(t, res.Acks, 4)
	assert.Contains(t, res.Acks[0], "collect")
	assert.Contains(t, res.Acks[1], "2000ms")
	assert.Contains(t, res.Acks[2], "5")
	assert.Contains(t, res.Acks[3], "old")
	assert.Empty(t, res.Residual)

	entry := f.entry(t)
	assert.Equal(t, "collect", entry.QueueMode)
	require.NotNil(t, entry.QueueDebounceMs)
	assert.Equal(t, 2000, *entry.QueueDebounceMs)
	require.NotNil(t, entry.QueueCap)
	assert.Equal(t, 5, *entry.QueueCap)
	assert.Equal(t, "old", entry.QueueDrop)
}

func TestEngine_QueueDirectiveAccumulatesErrors(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/queue collect debounce:soon cap:-2 drop:mid")

	require.Len(t, res.Acks, 3)
	assert.Contains(t, res.Acks[0], "debounce")
	assert.Contains(t, res.Acks[1], "cap")
	assert.Contains(t, res.Acks[2], "drop")

	// Nothing was stored
	entry := f.entry(t)
	assert.Empty(t, entry.QueueMode)
	assert.Nil(t, entry.QueueDebounceMs)
	assert.Nil(t, entry.QueueCap)
	assert.Empty(t, entry.QueueDrop)
}

func TestEngine_QueueResetClearsAllFieldsAtomically(t *testing.T) {
	f := newFixture(t)

	f.process(t, "/queue collect debounce:2s cap:5 drop:summarize")
	res := f.process(t, "/queue reset")

	require.Len(t, res.Acks, 1)
	assert.Contains(t, res.Acks[0], "reset")

	entry := f.entry(t)
	assert.Empty(t, entry.QueueMode)
	assert.Nil(t, entry.QueueDebounceMs)
	assert.Nil(t, entry.QueueCap)
	assert.Empty(t, entry.QueueDrop)
}

func TestEngine_ModelDirectiveSetsOverride(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/model openai/gpt-4.1-mini")

	require.Len(t, res.Acks, 1)
	assert.Contains(t, res.Acks[0], "openai/gpt-4.1-mini")

	entry := f.entry(t)
	assert.Equal(t, "openai", entry.ProviderOverride)
	assert.Equal(t, "gpt-4.1-mini", entry.ModelOverride)

	// The switch is announced to the agent on its next turn
	notes := f.engine.TakeNotes("tg:1")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "openai/gpt-4.1-mini")
	assert.Empty(t, f.engine.TakeNotes("tg:1"))
}

func TestEngine_ModelDirectiveRejectsAmbiguousWithoutMutation(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/model gpt")

	require.Len(t, res.Acks, 1)
	assert.Contains(t, res.Acks[0], "ambiguous")

	entry := f.entry(t)
	assert.Empty(t, entry.ModelOverride)
}

func TestEngine_ModelDirectiveWithAuthProfile(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/model mini@work")
	require.Len(t, res.Acks, 1)
	assert.Contains(t, res.Acks[0], "work")

	entry := f.entry(t)
	assert.Equal(t, "gpt-4.1-mini", entry.ModelOverride)
	assert.Equal(t, "work", entry.AuthProfileOverride)
}

func TestEngine_ModelList(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/model list")
	require.NotEmpty(t, res.Acks)
	assert.Equal(t, "Available models:", res.Acks[0])
	assert.Contains(t, res.Acks[1:], "- anthropic/claude-sonnet-4 (Claude Sonnet 4)")
}

func TestEngine_ModelStatusMarksMissingAuth(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/model status")
	require.NotEmpty(t, res.Acks)

	var sawNoAuth, sawActive bool
	for _, line := range res.Acks {
		if line == "Active model: anthropic/claude-sonnet-4" {
			sawActive = true
		}
		// Only openai has a configured profile
		if line == "- anthropic/claude-sonnet-4 (Claude Sonnet 4) [no auth]" {
			sawNoAuth = true
		}
	}
	assert.True(t, sawActive)
	assert.True(t, sawNoAuth)
}

func TestEngine_DirectivesExecuteInTextualOrder(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "please refactor\n/think high\n/verbose on\nthen run the tests")

	require.Len(t, res.Acks, 2)
	assert.Equal(t, "Thinking level set to high", res.Acks[0])
	assert.Equal(t, "Verbose output enabled", res.Acks[1])
	assert.Equal(t, "please refactor\nthen run the tests", res.Residual)

	entry := f.entry(t)
	assert.Equal(t, session.ThinkHigh, entry.Thinking)
	assert.Equal(t, session.ToggleOn, entry.Verbose)
}

func TestEngine_ElevatedOffThenStatus(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/elevated off\n/status")

	require.Len(t, res.Acks, 2)
	assert.Equal(t, "Elevated mode disabled", res.Acks[0])
	assert.Contains(t, res.Acks[1], "session=tg:1")
	assert.Contains(t, res.Acks[1], "model=anthropic/claude-sonnet-4")
	assert.Contains(t, res.Acks[1], "elevated=off")
}

func TestEngine_ElevatedOnRefusedByGate(t *testing.T) {
	f := newFixture(t)
	f.gate.err = &run.ElevatedError{
		Requirement: "agent-allowlist",
		AgentID:     "coder",
		Transport:   "tg",
		Sender:      "alice",
	}

	res := f.process(t, "/elevated on")

	require.Len(t, res.Acks, 1)
	assert.Contains(t, res.Acks[0], `agent "coder"`)
	assert.Contains(t, res.Acks[0], "elevated allowlist")
	assert.Equal(t, 1, f.gate.calls)

	// The refused toggle must not stick
	assert.Equal(t, session.ToggleUnset, f.entry(t).Elevated)
}

func TestEngine_ElevatedOffSkipsGate(t *testing.T) {
	f := newFixture(t)
	f.gate.err = &run.ElevatedError{Requirement: "capability"}

	res := f.process(t, "/elevated off")
	require.Len(t, res.Acks, 1)
	assert.Equal(t, "Elevated mode disabled", res.Acks[0])
	assert.Zero(t, f.gate.calls)
	assert.Equal(t, session.ToggleOff, f.entry(t).Elevated)
}

func TestEngine_InvalidThinkingLevelRejected(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/think extreme")
	require.Len(t, res.Acks, 1)
	assert.Contains(t, res.Acks[0], "invalid thinking level")
	assert.Empty(t, f.entry(t).Thinking)
}

func TestEngine_ThinkReportShowsCapabilityDefault(t *testing.T) {
	f := newFixture(t)

	// Sonnet is reasoning-capable, so the unset default is low
	res := f.process(t, "/think")
	require.Len(t, res.Acks, 1)
	assert.Equal(t, "Thinking level: low (default)", res.Acks[0])
}

func TestEngine_ReasoningDirective(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/reasoning stream")
	require.Len(t, res.Acks, 1)
	assert.Equal(t, "Reasoning visibility set to stream", res.Acks[0])
	assert.Equal(t, session.ReasoningStream, f.entry(t).Reasoning)

	res = f.process(t, "/reasoning sometimes")
	assert.Contains(t, res.Acks[0], "invalid reasoning value")
}

func TestEngine_StatusOmitsUnsetModes(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/status")
	require.Len(t, res.Acks, 1)
	assert.Equal(t, "session=tg:1 model=anthropic/claude-sonnet-4", res.Acks[0])
}

func TestEngine_LeadingWhitespaceIsNotADirective(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "  /model openai/gpt-4o")
	assert.Empty(t, res.Acks)
	assert.Equal(t, "/model openai/gpt-4o", res.Residual)
	assert.Empty(t, f.entry(t).ModelOverride)
}

func TestEngine_UnknownSlashLineStaysText(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/etc/passwd has odd permissions")
	assert.Empty(t, res.Acks)
	assert.Equal(t, "/etc/passwd has odd permissions", res.Residual)
}

func TestEngine_CommandAlias(t *testing.T) {
	f := newFixture(t)

	res := f.process(t, "/m sonnet")
	require.Len(t, res.Acks, 1)
	assert.Contains(t, res.Acks[0], "anthropic/claude-sonnet-4")
	assert.Equal(t, "claude-sonnet-4", f.entry(t).ModelOverride)
}

func TestEngine_UnknownAgentRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Process(context.Background(), Request{
		SessionKey: "tg:1",
		AgentID:    "ghost",
		Text:       "/status",
	})
	assert.Error(t, err)
}
