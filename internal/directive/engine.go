package directive

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/model"
	"github.com/raihan/sela/internal/observability"
	"github.com/raihan/sela/internal/run"
	"github.com/raihan/sela/internal/session"
	"github.com/raihan/sela/internal/tracing"
)

// Marker introduces a directive line. Only lines whose first byte is the
// marker are directives; leading whitespace keeps a line as plain text.
const Marker = "/"

// commandAliases maps short names to canonical command names
var commandAliases = map[string]string{
	"m": "model",
	"q": "queue",
	"s": "status",
}

// Agent is the per-agent context a directive executes against
type Agent struct {
	Config   config.AgentConfig
	Resolver *model.Resolver
}

// Request is one inbound message to scan for directives
type Request struct {
	SessionKey string
	AgentID    string
	Transport  string
	Sender     string
	Text       string
}

// Result carries the acknowledgement lines for executed directives and the
// residual text left for the agent after directive lines are stripped.
type Result struct {
	Acks     []string
	Residual string
}

// Engine scans message text for directive lines and executes them in order
type Engine struct {
	store    session.Store
	agents   map[string]*Agent
	gate     run.ElevatedGate
	defaults config.QueueConfig
	notes    *noteBox
	logger   zerolog.Logger
}

// New builds a directive engine over the session store and the configured
// agents. gate decides elevated eligibility; defaults back queue reporting.
func New(store session.Store, agents map[string]*Agent, gate run.ElevatedGate, defaults config.QueueConfig, logger zerolog.Logger) *Engine {
	observability.EnsureRegistered()
	return &Engine{
		store:    store,
		agents:   agents,
		gate:     gate,
		defaults: defaults,
		notes:    newNoteBox(),
		logger:   logger.With().Str("component", "directive").Logger(),
	}
}

// TakeNotes drains the system notifications queued for the session's next
// agent turn
func (e *Engine) TakeNotes(sessionKey string) []string {
	return e.notes.take(sessionKey)
}

// Process executes every directive line in the request text in textual order.
// Acknowledgements accumulate in the same order; non-directive lines survive
// unchanged in the residual.
func (e *Engine) Process(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"sela.directive",
		"directive.process",
		attribute.String("session_key", req.SessionKey),
		attribute.String("agent_id", req.AgentID),
	)
	defer span.End()

	agent, ok := e.agents[req.AgentID]
	if !ok {
		return Result{}, fmt.Errorf("unknown agent: %s", req.AgentID)
	}

	var res Result
	var kept []string

	for _, line := range strings.Split(req.Text, "\n") {
		cmd, args, ok := splitDirective(line)
		if !ok {
			kept = append(kept, line)
			continue
		}

		acks, success := e.execute(ctx, req, agent, cmd, args)
		res.Acks = append(res.Acks, acks...)
		observability.RecordDirective(cmd, success)

		logger := tracing.LoggerFromContext(ctx, e.logger)
		logger.Debug().
			Str("command", cmd).
			Bool("success", success).
			Msg("directive executed")
	}

	res.Residual = strings.TrimSpace(strings.Join(kept, "\n"))
	return res, nil
}

// splitDirective recognizes a directive line and returns its canonical
// command name and argument tokens. Lines not starting with the marker, and
// marker lines whose first token is not a known command, stay plain text.
func splitDirective(line string) (string, []string, bool) {
	if !strings.HasPrefix(line, Marker) {
		return "", nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(line, Marker))
	if len(fields) == 0 {
		return "", nil, false
	}

	cmd := strings.ToLower(fields[0])
	if canonical, ok := commandAliases[cmd]; ok {
		cmd = canonical
	}

	switch cmd {
	case "model", "think", "verbose", "elevated", "reasoning", "queue", "status":
		return cmd, fields[1:], true
	}
	return "", nil, false
}

func (e *Engine) execute(ctx context.Context, req Request, agent *Agent, cmd string, args []string) ([]string, bool) {
	switch cmd {
	case "model":
		return e.handleModel(ctx, req, agent, args)
	case "think":
		return e.handleThink(ctx, req, agent, args)
	case "verbose":
		return e.handleVerbose(ctx, req, args)
	case "elevated":
		return e.handleElevated(ctx, req, agent, args)
	case "reasoning":
		return e.handleReasoning(ctx, req, args)
	case "queue":
		return e.handleQueue(ctx, req, args)
	case "status":
		return e.handleStatus(ctx, req, agent)
	}
	return nil, false
}

// effectiveKey returns the session's active model key, falling back to the
// agent's resolver default when no override is stored.
func effectiveKey(entry session.Entry, agent *Agent) model.Key {
	if entry.HasModelOverride() {
		return model.Key{Provider: entry.ProviderOverride, Model: entry.ModelOverride}
	}
	return agent.Resolver.Default()
}
