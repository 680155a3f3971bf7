package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/directive"
	"github.com/raihan/sela/internal/model"
	"github.com/raihan/sela/internal/run"
	"github.com/raihan/sela/internal/session"
	"github.com/raihan/sela/pkg/agent"
)

type echoInvoker struct {
	mu      sync.Mutex
	prompts []string
}

func (e *echoInvoker) Invoke(ctx context.Context, req agent.InvokeRequest) (agent.InvokeResult, error) {
	e.mu.Lock()
	e.prompts = append(e.prompts, req.Prompt)
	e.mu.Unlock()
	return agent.InvokeResult{
		Payloads: []agent.Payload{{Text: "echo: " + req.Prompt}},
		Meta:     agent.InvokeMeta{SessionID: "s-1"},
	}, nil
}

type replyCollector struct {
	mu      sync.Mutex
	replies []Reply
}

func (c *replyCollector) sink(ctx context.Context, reply Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, reply)
}

func (c *replyCollector) snapshot() []Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Reply, len(c.replies))
	copy(out, c.replies)
	return out
}

func (c *replyCollector) waitFor(t *testing.T, want int) []Reply {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.snapshot()) >= want
	}, 2*time.Second, 5*time.Millisecond)
	return c.snapshot()
}

type daemonFixture struct {
	daemon  *Daemon
	invoker *echoInvoker
	replies *replyCollector
}

func newDaemonFixture(t *testing.T) *daemonFixture {
	fs, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	store := session.NewManager(fs)
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	// Followup mode dispatches immediately, keeping the tests fast
	cfg.Queue = config.QueueConfig{Mode: "followup"}
	cfg.Agents = []config.AgentConfig{{ID: "coder", Model: "anthropic/claude-sonnet-4", Kind: "json"}}

	catalog := model.NewCatalog(nil)
	auth := model.NewAuthStore(nil)
	resolver, err := model.NewResolver(catalog, auth, cfg.Models.Default, cfg.Models.Aliases, nil)
	require.NoError(t, err)

	invoker := &echoInvoker{}
	handles := map[string]*run.AgentHandle{
		"coder": {Config: cfg.Agents[0], Resolver: resolver, Invoker: invoker},
	}

	coordinator, err := run.NewCoordinator(run.Config{
		Store:  store,
		Auth:   auth,
		Agents: handles,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	directives := directive.New(store, map[string]*directive.Agent{
		"coder": {Config: cfg.Agents[0], Resolver: resolver},
	}, coordinator, cfg.Queue, zerolog.Nop())

	replies := &replyCollector{}
	d, err := New(Options{
		Config:      cfg,
		Store:       store,
		Coordinator: coordinator,
		Directives:  directives,
		Sink:        replies.sink,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	return &daemonFixture{daemon: d, invoker: invoker, replies: replies}
}

func event(id, text string) InboundEvent {
	return InboundEvent{
		Transport:  "tg",
		Sender:     "alice",
		SessionKey: "tg:1",
		EventID:    id,
		AgentID:    "coder",
		Text:       text,
	}
}

func TestDaemon_MessageReachesAgentAndReplies(t *testing.T) {
	f := newDaemonFixture(t)

	require.NoError(t, f.daemon.HandleInbound(context.Background(), event("1", "hello there")))

	replies := f.replies.waitFor(t, 1)
	assert.Equal(t, []string{"echo: hello there"}, replies[0].Lines)
	assert.Equal(t, "tg:1", replies[0].SessionKey)
	assert.Equal(t, "tg", replies[0].Transport)
}

func TestDaemon_DirectiveAcksPrecedeAgentOutput(t *testing.T) {
	f := newDaemonFixture(t)

	require.NoError(t, f.daemon.HandleInbound(context.Background(),
		event("1", "/verbose on\nrun the linter")))

	replies := f.replies.waitFor(t, 2)
	assert.Equal(t, []string{"Verbose output enabled"}, replies[0].Lines)
	assert.Equal(t, []string{"echo: run the linter"}, replies[1].Lines)
}

func TestDaemon_DirectiveOnlyMessageSkipsAgent(t *testing.T) {
	f := newDaemonFixture(t)

	require.NoError(t, f.daemon.HandleInbound(context.Background(), event("1", "/status")))

	replies := f.replies.waitFor(t, 1)
	assert.Contains(t, replies[0].Lines[0], "session=tg:1")

	time.Sleep(50 * time.Millisecond)
	f.invoker.mu.Lock()
	defer f.invoker.mu.Unlock()
	assert.Empty(t, f.invoker.prompts)
}

func TestDaemon_DuplicateEventsDropped(t *testing.T) {
	f := newDaemonFixture(t)

	require.NoError(t, f.daemon.HandleInbound(context.Background(), event("42", "once")))
	require.NoError(t, f.daemon.HandleInbound(context.Background(), event("42", "once")))

	f.replies.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)

	f.invoker.mu.Lock()
	defer f.invoker.mu.Unlock()
	assert.Equal(t, []string{"once"}, f.invoker.prompts)
}

func TestDaemon_ModelSwitchNoteRidesNextTurn(t *testing.T) {
	f := newDaemonFixture(t)

	require.NoError(t, f.daemon.HandleInbound(context.Background(),
		event("1", "/model openai/gpt-4.1-mini")))
	require.NoError(t, f.daemon.HandleInbound(context.Background(), event("2", "continue")))

	f.replies.waitFor(t, 2)

	f.invoker.mu.Lock()
	defer f.invoker.mu.Unlock()
	require.Len(t, f.invoker.prompts, 1)
	assert.Contains(t, f.invoker.prompts[0], "Model switched to openai/gpt-4.1-mini")
	assert.Contains(t, f.invoker.prompts[0], "continue")
}

func TestDaemon_RejectsInvalidSessionKey(t *testing.T) {
	f := newDaemonFixture(t)

	ev := event("1", "hi")
	ev.SessionKey = "../escape"
	assert.Error(t, f.daemon.HandleInbound(context.Background(), ev))
}

func TestDaemon_RoutePrunedAfterIdleTurn(t *testing.T) {
	f := newDaemonFixture(t)

	require.NoError(t, f.daemon.HandleInbound(context.Background(), event("1", "hello")))
	f.replies.waitFor(t, 1)

	// Nothing is queued or running, so the route entry goes away
	require.Eventually(t, func() bool {
		_, ok := f.daemon.route("tg:1")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	// The next event re-registers the route and still reaches the agent
	require.NoError(t, f.daemon.HandleInbound(context.Background(), event("2", "again")))
	replies := f.replies.waitFor(t, 2)
	assert.Equal(t, []string{"echo: again"}, replies[1].Lines)
}

func TestDedupeCache_SeenWithinTTL(t *testing.T) {
	c := newEventDedupeCache(time.Minute)
	defer c.Stop()

	assert.False(t, c.Seen("tg:1"))
	assert.True(t, c.Seen("tg:1"))
	assert.False(t, c.Seen("tg:2"))
}

func TestDedupeCache_ExpiresAfterTTL(t *testing.T) {
	c := newEventDedupeCache(20 * time.Millisecond)
	defer c.Stop()

	assert.False(t, c.Seen("tg:1"))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.Seen("tg:1"))
}
