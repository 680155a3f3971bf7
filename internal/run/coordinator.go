package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/model"
	"github.com/raihan/sela/internal/observability"
	"github.com/raihan/sela/internal/session"
	"github.com/raihan/sela/internal/tracing"
	"github.com/raihan/sela/pkg/agent"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrLaneBusy is returned when a run is requested while the session's lane is
// still marked active.
var ErrLaneBusy = fmt.Errorf("a run is already active for this session")

// AgentHandle bundles one configured agent with its resolver and invoker
type AgentHandle struct {
	Config   config.AgentConfig
	Resolver *model.Resolver
	Invoker  agent.Invoker
}

// Params describes one requested agent turn
type Params struct {
	SessionKey string
	AgentID    string
	Transport  string
	Sender     string
	Prompt     string
}

// Result is a completed agent turn
type Result struct {
	Payloads  []agent.Payload
	SessionID string
}

type lane struct {
	runID     string
	cancel    context.CancelFunc
	streaming bool
}

// Coordinator starts, steers and aborts agent invocations, one lane per
// session key.
type Coordinator struct {
	store          session.Store
	auth           *model.AuthStore
	agents         map[string]*AgentHandle
	globalElevated map[string][]string
	logger         zerolog.Logger

	mu    sync.Mutex
	lanes map[string]*lane
}

// Config holds coordinator dependencies
type Config struct {
	Store          session.Store
	Auth           *model.AuthStore
	Agents         map[string]*AgentHandle
	GlobalElevated map[string][]string
	Logger         zerolog.Logger
}

// NewCoordinator wires a coordinator
func NewCoordinator(cfg Config) (*Coordinator, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("at least one agent handle is required")
	}

	return &Coordinator{
		store:          cfg.Store,
		auth:           cfg.Auth,
		agents:         cfg.Agents,
		globalElevated: cfg.GlobalElevated,
		logger:         cfg.Logger,
		lanes:          make(map[string]*lane),
	}, nil
}

// IsActive reports whether a run currently holds the session's lane
func (c *Coordinator) IsActive(sessionKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lanes[sessionKey]
	return ok
}

// IsStreaming reports whether the session's active run is producing output
func (c *Coordinator) IsStreaming(sessionKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lanes[sessionKey]
	return ok && l.streaming
}

// Abort cancels the session's active run and releases the lane immediately.
// Reports whether a run was aborted. The aborted process exits in the
// background; a new run may start without waiting for it.
func (c *Coordinator) Abort(sessionKey string) bool {
	c.mu.Lock()
	l, ok := c.lanes[sessionKey]
	if ok {
		delete(c.lanes, sessionKey)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	l.cancel()
	observability.RecordAgentAbort()
	c.logger.Info().
		Str("session_key", sessionKey).
		Str("run_id", l.runID).
		Msg("Run aborted")
	return true
}

// Steer delivers text into the session's active run when the invoker accepts
// live input. Returns false when no run is active or steering is unsupported.
func (c *Coordinator) Steer(sessionKey, agentID, text string) bool {
	handle, ok := c.agents[agentID]
	if !ok {
		return false
	}
	steerable, ok := handle.Invoker.(agent.Steerable)
	if !ok {
		return false
	}
	if !c.IsActive(sessionKey) {
		return false
	}
	return steerable.Steer(sessionKey, text)
}

// SupportsSteering reports whether the agent's invoker accepts live input
func (c *Coordinator) SupportsSteering(agentID string) bool {
	handle, ok := c.agents[agentID]
	if !ok {
		return false
	}
	_, ok = handle.Invoker.(agent.Steerable)
	return ok
}

// LiveProbe returns the live state probe for a session
func (c *Coordinator) LiveProbe(sessionKey string) *Probe {
	return NewProbe(c.store, sessionKey, false, false)
}

// Run executes one agent turn for the session. Session state is re-read here,
// so directives processed while the turn waited in a queue still apply.
func (c *Coordinator) Run(ctx context.Context, params Params) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, params.SessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"sela.run",
		"run.start",
		attribute.String("session_key", params.SessionKey),
		attribute.String("agent_id", params.AgentID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger).With().Str("session_key", params.SessionKey).Logger()

	handle, ok := c.agents[params.AgentID]
	if !ok {
		return Result{}, fmt.Errorf("unknown agent: %s", params.AgentID)
	}

	// Drop an auth override that no longer names a usable profile
	if err := model.ReconcileAuthOverride(ctx, c.store, c.auth, params.SessionKey, c.effectiveProvider(ctx, params.SessionKey, handle)); err != nil {
		logger.Warn().Err(err).Msg("Auth override reconciliation failed")
	}

	entry, err := c.store.Get(ctx, params.SessionKey)
	if err != nil {
		logger.Warn().Err(err).Msg("Session read failed, using defaults")
		entry = session.DefaultEntry()
	}

	key, catalogEntry := c.effectiveModel(entry, handle)
	thinking := c.effectiveThinking(entry, handle, catalogEntry)

	elevated := entry.Elevated == session.ToggleOn
	if elevated {
		if err := c.CheckElevated(params.AgentID, params.Transport, params.Sender); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, err
		}
	}

	runID, err := gonanoid.New()
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate run id: %w", err)
	}
	ctx = tracing.WithTurnID(ctx, runID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if _, busy := c.lanes[params.SessionKey]; busy {
		c.mu.Unlock()
		return Result{}, ErrLaneBusy
	}
	c.lanes[params.SessionKey] = &lane{runID: runID, cancel: cancel, streaming: true}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if l, ok := c.lanes[params.SessionKey]; ok && l.runID == runID {
			delete(c.lanes, params.SessionKey)
		}
		c.mu.Unlock()
	}()

	req := agent.InvokeRequest{
		SessionKey:      params.SessionKey,
		Provider:        key.Provider,
		Model:           key.Model,
		AuthProfile:     entry.AuthProfileOverride,
		ThinkingLevel:   thinking,
		Elevated:        elevated,
		Prompt:          params.Prompt,
		ResumeSessionID: entry.SessionID,
	}

	logger.Info().
		Str("run_id", runID).
		Str("model", key.String()).
		Str("thinking", thinking).
		Bool("elevated", elevated).
		Msg("Starting agent turn")

	start := time.Now()
	invokeResult, err := handle.Invoker.Invoke(runCtx, req)
	duration := time.Since(start)
	observability.RecordLaneTask(params.AgentID, duration)

	if err != nil {
		observability.RecordAgentRun(key.Provider, duration, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("run_id", runID).Msg("Agent turn failed")
		// Session state, including any prior session ID, stays untouched
		return Result{}, err
	}

	observability.RecordAgentRun(key.Provider, duration, true)

	if invokeResult.Meta.SessionID != "" && invokeResult.Meta.SessionID != entry.SessionID {
		if _, err := c.store.Update(ctx, params.SessionKey, func(e *session.Entry) {
			e.SessionID = invokeResult.Meta.SessionID
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to persist agent session ID")
		}
	}

	payloads := c.filterPayloads(ctx, params.SessionKey, invokeResult.Payloads)

	logger.Info().
		Str("run_id", runID).
		Dur("duration", duration).
		Int("payloads", len(payloads)).
		Msg("Agent turn completed")

	return Result{
		Payloads:  payloads,
		SessionID: invokeResult.Meta.SessionID,
	}, nil
}

// filterPayloads drops intermediate payloads unless verbose is on. The probe
// is consulted per payload, so a verbose toggle mid-run takes effect at the
// next decision point of the same run.
func (c *Coordinator) filterPayloads(ctx context.Context, sessionKey string, payloads []agent.Payload) []agent.Payload {
	if len(payloads) <= 1 {
		return payloads
	}

	probe := c.LiveProbe(sessionKey)
	var out []agent.Payload
	for i, p := range payloads {
		final := i == len(payloads)-1
		if final || probe.Verbose(ctx) {
			out = append(out, p)
		}
	}
	return out
}

func (c *Coordinator) effectiveModel(entry session.Entry, handle *AgentHandle) (model.Key, model.CatalogEntry) {
	var key model.Key
	if entry.HasModelOverride() {
		key = model.Key{Provider: entry.ProviderOverride, Model: entry.ModelOverride}
		if key.Provider == "" {
			key.Provider = handle.Resolver.Default().Provider
		}
	} else {
		key = handle.Resolver.Default()
	}

	if res, err := handle.Resolver.Resolve(key.String()); err == nil {
		return res.Key, res.Entry
	}
	return key, model.CatalogEntry{Provider: key.Provider, ID: key.Model}
}

// effectiveThinking applies override, then configured default, then the
// capability-derived default: low for reasoning-capable models, off otherwise.
func (c *Coordinator) effectiveThinking(entry session.Entry, handle *AgentHandle, catalogEntry model.CatalogEntry) string {
	if entry.Thinking != "" {
		return entry.Thinking
	}
	if handle.Config.ThinkingDefault != "" {
		return handle.Config.ThinkingDefault
	}
	if catalogEntry.Reasoning {
		return session.ThinkLow
	}
	return session.ThinkOff
}

func (c *Coordinator) effectiveProvider(ctx context.Context, sessionKey string, handle *AgentHandle) string {
	entry, err := c.store.Get(ctx, sessionKey)
	if err == nil && entry.ProviderOverride != "" {
		return entry.ProviderOverride
	}
	return handle.Resolver.Default().Provider
}
