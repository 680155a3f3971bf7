package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/directive"
	"github.com/raihan/sela/internal/queue"
	"github.com/raihan/sela/internal/reconnect"
	"github.com/raihan/sela/internal/run"
	"github.com/raihan/sela/internal/session"
	"github.com/raihan/sela/internal/tracing"
)

// InboundEvent is one message delivered by a transport adapter
type InboundEvent struct {
	// Transport names the delivering adapter, e.g. "telegram" or "slack"
	Transport string
	// Sender is the transport-scoped sender identity
	Sender string
	// SessionKey identifies the logical conversation
	SessionKey string
	// EventID is the transport's message ID, used for redelivery dedupe
	EventID string
	// AgentID addresses the agent this conversation targets
	AgentID string
	Text    string
}

// Reply is an outbound payload batch for one session
type Reply struct {
	SessionKey string
	Transport  string
	Lines      []string
}

// ReplySink delivers replies back through the originating transport
type ReplySink func(ctx context.Context, reply Reply)

// route remembers where a session's traffic comes from so queued turns can be
// dispatched after the inbound event is long gone.
type route struct {
	AgentID   string
	Transport string
	Sender    string
	// seenAt records the last inbound event; idle routes are pruned only
	// when no event refreshed them during the run
	seenAt time.Time
}

// Options holds daemon dependencies
type Options struct {
	Config      *config.Config
	Store       session.Store
	Coordinator *run.Coordinator
	Directives  *directive.Engine
	Sink        ReplySink
	Logger      zerolog.Logger
	DedupeTTL   time.Duration
}

// Daemon runs the inbound pipeline: dedupe, directives, queueing, dispatch
type Daemon struct {
	cfg         *config.Config
	store       session.Store
	coordinator *run.Coordinator
	directives  *directive.Engine
	queue       *queue.Engine
	dedupe      *eventDedupeCache
	reconnect   reconnect.Policy
	sink        ReplySink
	logger      zerolog.Logger

	mu     sync.Mutex
	routes map[string]route
}

// New wires a daemon over an assembled coordinator and directive engine
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("run coordinator is required")
	}
	if opts.Directives == nil {
		return nil, fmt.Errorf("directive engine is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("reply sink is required")
	}

	d := &Daemon{
		cfg:         opts.Config,
		store:       opts.Store,
		coordinator: opts.Coordinator,
		directives:  opts.Directives,
		dedupe:      newEventDedupeCache(opts.DedupeTTL),
		reconnect:   reconnect.NewPolicy(opts.Config.Reconnect),
		sink:        opts.Sink,
		logger:      opts.Logger.With().Str("component", "daemon").Logger(),
		routes:      make(map[string]route),
	}

	d.queue = queue.New(d.dispatch, d.queueSettings, queue.Hooks{
		Steer:    d.steer,
		CanSteer: d.canSteer,
		Abort:    opts.Coordinator.Abort,
	}, opts.Logger)

	d.dedupe.Start()
	return d, nil
}

// Reconnect returns the backoff policy transport adapters should follow
func (d *Daemon) Reconnect() reconnect.Policy {
	return d.reconnect
}

// Queue exposes the queue engine, for status reporting
func (d *Daemon) Queue() *queue.Engine {
	return d.queue
}

// HandleInbound processes one transport event. Directive acknowledgements go
// straight to the sink; residual text enters the session's queue.
func (d *Daemon) HandleInbound(ctx context.Context, ev InboundEvent) error {
	ctx = tracing.NewRequestContext(ctx)
	ctx = tracing.WithSessionKey(ctx, ev.SessionKey)
	ctx = tracing.WithTransport(ctx, ev.Transport)
	logger := tracing.LoggerFromContext(ctx, d.logger)

	if err := session.ValidateKey(ev.SessionKey); err != nil {
		return err
	}

	if ev.EventID != "" && d.dedupe.Seen(ev.Transport+":"+ev.EventID) {
		logger.Debug().
			Str("event_id", ev.EventID).
			Str("transport", ev.Transport).
			Msg("duplicate event dropped")
		return nil
	}

	d.mu.Lock()
	d.routes[ev.SessionKey] = route{AgentID: ev.AgentID, Transport: ev.Transport, Sender: ev.Sender, seenAt: time.Now()}
	d.mu.Unlock()

	res, err := d.directives.Process(ctx, directive.Request{
		SessionKey: ev.SessionKey,
		AgentID:    ev.AgentID,
		Transport:  ev.Transport,
		Sender:     ev.Sender,
		Text:       ev.Text,
	})
	if err != nil {
		return err
	}

	if len(res.Acks) > 0 {
		d.sink(ctx, Reply{SessionKey: ev.SessionKey, Transport: ev.Transport, Lines: res.Acks})
	}

	if res.Residual == "" {
		d.pruneRoute(ev.SessionKey, time.Now())
		return nil
	}

	d.queue.Enqueue(ctx, ev.SessionKey, res.Residual)
	return nil
}

// Close stops background work and drains pending queue turns
func (d *Daemon) Close() error {
	d.dedupe.Stop()
	return d.queue.Close()
}

func (d *Daemon) queueSettings(ctx context.Context, sessionKey string) queue.Settings {
	entry, err := d.store.Get(ctx, sessionKey)
	if err != nil {
		entry = session.DefaultEntry()
	}
	return queue.EffectiveSettings(entry, d.cfg.Queue)
}

func (d *Daemon) steer(sessionKey, text string) bool {
	r, ok := d.route(sessionKey)
	if !ok {
		return false
	}
	return d.coordinator.Steer(sessionKey, r.AgentID, text)
}

func (d *Daemon) canSteer(sessionKey string) bool {
	r, ok := d.route(sessionKey)
	if !ok {
		return false
	}
	return d.coordinator.SupportsSteering(r.AgentID)
}

func (d *Daemon) route(sessionKey string) (route, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.routes[sessionKey]
	return r, ok
}

// pruneRoute drops a session's route once nothing is buffered or running for
// it and no inbound event refreshed it after since.
func (d *Daemon) pruneRoute(sessionKey string, since time.Time) {
	if d.queue.Pending(sessionKey) > 0 || d.coordinator.IsActive(sessionKey) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.routes[sessionKey]; ok && !r.seenAt.After(since) {
		delete(d.routes, sessionKey)
	}
}

// dispatch runs one queued turn to completion and delivers the results
func (d *Daemon) dispatch(ctx context.Context, sessionKey, prompt string) {
	started := time.Now()
	defer d.pruneRoute(sessionKey, started)

	r, ok := d.route(sessionKey)
	if !ok {
		d.logger.Warn().Str("session_key", sessionKey).Msg("no route for queued turn")
		return
	}

	// Model-switch notes and similar directive notifications ride ahead of
	// the user's text on the next turn
	if notes := d.directives.TakeNotes(sessionKey); len(notes) > 0 {
		prompt = strings.Join(append(notes, prompt), "\n\n")
	}

	logger := tracing.LoggerFromContext(ctx, d.logger)

	result, err := d.coordinator.Run(ctx, run.Params{
		SessionKey: sessionKey,
		AgentID:    r.AgentID,
		Transport:  r.Transport,
		Sender:     r.Sender,
		Prompt:     prompt,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug().Str("session_key", sessionKey).Msg("turn aborted")
			return
		}
		logger.Error().Err(err).Str("session_key", sessionKey).Msg("agent turn failed")
		d.sink(ctx, Reply{SessionKey: sessionKey, Transport: r.Transport, Lines: []string{err.Error()}})
		return
	}

	lines := make([]string, 0, len(result.Payloads))
	for _, p := range result.Payloads {
		if p.Text != "" {
			lines = append(lines, p.Text)
		}
	}
	if len(lines) == 0 {
		return
	}
	d.sink(ctx, Reply{SessionKey: sessionKey, Transport: r.Transport, Lines: lines})
}
