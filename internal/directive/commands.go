package directive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raihan/sela/internal/queue"
	"github.com/raihan/sela/internal/session"
)

func (e *Engine) handleModel(ctx context.Context, req Request, agent *Agent, args []string) ([]string, bool) {
	if len(args) == 0 || args[0] == "list" {
		return e.modelList(agent, false), true
	}
	if args[0] == "status" {
		entry, err := e.store.Get(ctx, req.SessionKey)
		if err != nil {
			return []string{fmt.Sprintf("failed to read session: %v", err)}, false
		}
		acks := e.modelList(agent, true)
		acks = append(acks, fmt.Sprintf("Active model: %s", effectiveKey(entry, agent)))
		return acks, true
	}

	ref := strings.Join(args, " ")
	res, err := agent.Resolver.Resolve(ref)
	if err != nil {
		return []string{err.Error()}, false
	}

	_, err = e.store.Update(ctx, req.SessionKey, func(entry *session.Entry) {
		entry.ProviderOverride = res.Key.Provider
		entry.ModelOverride = res.Key.Model
		if res.AuthProfile != "" {
			entry.AuthProfileOverride = res.AuthProfile
		}
	})
	if err != nil {
		return []string{fmt.Sprintf("failed to save session: %v", err)}, false
	}

	e.notes.add(req.SessionKey, fmt.Sprintf("Model switched to %s.", res.Key))

	ack := fmt.Sprintf("Model set to %s", res.Key)
	if res.Entry.Name != "" {
		ack = fmt.Sprintf("Model set to %s (%s)", res.Key, res.Entry.Name)
	}
	if res.AuthProfile != "" {
		ack += fmt.Sprintf(" using auth profile %q", res.AuthProfile)
	}
	return []string{ack}, true
}

func (e *Engine) modelList(agent *Agent, withAuth bool) []string {
	acks := []string{"Available models:"}
	for _, entry := range agent.Resolver.AllowedEntries() {
		line := fmt.Sprintf("- %s (%s)", entry.Key(), entry.Name)
		if withAuth && !agent.Resolver.HasAuth(entry.Provider) {
			line += " [no auth]"
		}
		acks = append(acks, line)
	}
	return acks
}

func (e *Engine) handleThink(ctx context.Context, req Request, agent *Agent, args []string) ([]string, bool) {
	if len(args) == 0 {
		entry, err := e.store.Get(ctx, req.SessionKey)
		if err != nil {
			return []string{fmt.Sprintf("failed to read session: %v", err)}, false
		}
		level, source := e.effectiveThinking(entry, agent)
		return []string{fmt.Sprintf("Thinking level: %s (%s)", level, source)}, true
	}

	level := strings.ToLower(args[0])
	if !session.ValidThinkingLevel(level) {
		return []string{fmt.Sprintf("invalid thinking level %q (expected off, minimal, low, medium, or high)", args[0])}, false
	}

	_, err := e.store.Update(ctx, req.SessionKey, func(entry *session.Entry) {
		entry.Thinking = level
	})
	if err != nil {
		return []string{fmt.Sprintf("failed to save session: %v", err)}, false
	}
	return []string{fmt.Sprintf("Thinking level set to %s", level)}, true
}

// effectiveThinking resolves the thinking level for reporting: the session
// override, then the agent default, then the active model's capability.
func (e *Engine) effectiveThinking(entry session.Entry, agent *Agent) (string, string) {
	if entry.Thinking != "" {
		return entry.Thinking, "session"
	}
	if agent.Config.ThinkingDefault != "" {
		return agent.Config.ThinkingDefault, "agent default"
	}
	if ce, ok := agent.Resolver.Lookup(effectiveKey(entry, agent)); ok && ce.Reasoning {
		return session.ThinkLow, "default"
	}
	return session.ThinkOff, "default"
}

func (e *Engine) handleVerbose(ctx context.Context, req Request, args []string) ([]string, bool) {
	if len(args) == 0 {
		entry, err := e.store.Get(ctx, req.SessionKey)
		if err != nil {
			return []string{fmt.Sprintf("failed to read session: %v", err)}, false
		}
		if entry.Verbose == session.ToggleUnset {
			return []string{"Verbose: default (off)"}, true
		}
		return []string{fmt.Sprintf("Verbose: %s", entry.Verbose)}, true
	}

	toggle, ok := session.ParseToggle(strings.ToLower(args[0]))
	if !ok {
		return []string{fmt.Sprintf("invalid verbose value %q (expected on or off)", args[0])}, false
	}

	_, err := e.store.Update(ctx, req.SessionKey, func(entry *session.Entry) {
		entry.Verbose = toggle
	})
	if err != nil {
		return []string{fmt.Sprintf("failed to save session: %v", err)}, false
	}
	if toggle == session.ToggleOn {
		return []string{"Verbose output enabled"}, true
	}
	return []string{"Verbose output disabled"}, true
}

func (e *Engine) handleElevated(ctx context.Context, req Request, agent *Agent, args []string) ([]string, bool) {
	if len(args) == 0 {
		entry, err := e.store.Get(ctx, req.SessionKey)
		if err != nil {
			return []string{fmt.Sprintf("failed to read session: %v", err)}, false
		}
		if entry.Elevated == session.ToggleUnset {
			return []string{"Elevated: default (off)"}, true
		}
		return []string{fmt.Sprintf("Elevated: %s", entry.Elevated)}, true
	}

	toggle, ok := session.ParseToggle(strings.ToLower(args[0]))
	if !ok {
		return []string{fmt.Sprintf("invalid elevated value %q (expected on or off)", args[0])}, false
	}

	if toggle == session.ToggleOn {
		if err := e.gate.CheckElevated(req.AgentID, req.Transport, req.Sender); err != nil {
			return []string{err.Error()}, false
		}
	}

	_, err := e.store.Update(ctx, req.SessionKey, func(entry *session.Entry) {
		entry.Elevated = toggle
	})
	if err != nil {
		return []string{fmt.Sprintf("failed to save session: %v", err)}, false
	}
	if toggle == session.ToggleOn {
		return []string{"Elevated mode enabled"}, true
	}
	return []string{"Elevated mode disabled"}, true
}

func (e *Engine) handleReasoning(ctx context.Context, req Request, args []string) ([]string, bool) {
	if len(args) == 0 {
		entry, err := e.store.Get(ctx, req.SessionKey)
		if err != nil {
			return []string{fmt.Sprintf("failed to read session: %v", err)}, false
		}
		if entry.Reasoning == "" {
			return []string{"Reasoning visibility: default (off)"}, true
		}
		return []string{fmt.Sprintf("Reasoning visibility: %s", entry.Reasoning)}, true
	}

	level := strings.ToLower(args[0])
	if !session.ValidReasoningLevel(level) {
		return []string{fmt.Sprintf("invalid reasoning value %q (expected off, on, or stream)", args[0])}, false
	}

	_, err := e.store.Update(ctx, req.SessionKey, func(entry *session.Entry) {
		entry.Reasoning = level
	})
	if err != nil {
		return []string{fmt.Sprintf("failed to save session: %v", err)}, false
	}
	return []string{fmt.Sprintf("Reasoning visibility set to %s", level)}, true
}

func (e *Engine) handleQueue(ctx context.Context, req Request, args []string) ([]string, bool) {
	if len(args) == 0 {
		entry, err := e.store.Get(ctx, req.SessionKey)
		if err != nil {
			return []string{fmt.Sprintf("failed to read session: %v", err)}, false
		}
		s := queue.EffectiveSettings(entry, e.defaults)
		return []string{fmt.Sprintf("Queue: mode=%s debounce=%dms cap=%d drop=%s",
			s.Mode, s.Debounce/time.Millisecond, s.Cap, s.Drop)}, true
	}

	if args[0] == "reset" {
		_, err := e.store.Update(ctx, req.SessionKey, func(entry *session.Entry) {
			entry.ResetQueue()
		})
		if err != nil {
			return []string{fmt.Sprintf("failed to save session: %v", err)}, false
		}
		return []string{"Queue settings reset to defaults"}, true
	}

	// Validate everything before touching the stored entry. Every bad token
	// produces its own error line.
	mode := strings.ToLower(args[0])
	var errs []string
	if !queue.ValidMode(mode) {
		errs = append(errs, fmt.Sprintf("invalid queue mode %q (expected interrupt, steer, followup, collect, or steer+backlog)", args[0]))
	}

	var debounce *time.Duration
	var capValue *int
	var drop string

	for _, tok := range args[1:] {
		key, value, found := strings.Cut(tok, ":")
		if !found {
			errs = append(errs, fmt.Sprintf("invalid queue option %q (expected key:value)", tok))
			continue
		}
		switch strings.ToLower(key) {
		case "debounce":
			d, err := queue.ParseDebounce(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid debounce %q: %v", value, err))
				continue
			}
			debounce = &d
		case "cap":
			n, err := queue.ParseCap(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid cap %q: %v", value, err))
				continue
			}
			capValue = &n
		case "drop":
			p, err := queue.ParseDrop(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("invalid drop policy %q: %v", value, err))
				continue
			}
			drop = p
		default:
			errs = append(errs, fmt.Sprintf("unknown queue option %q", key))
		}
	}

	if len(errs) > 0 {
		return errs, false
	}

	_, err := e.store.Update(ctx, req.SessionKey, func(entry *session.Entry) {
		entry.QueueMode = mode
		if debounce != nil {
			ms := int(*debounce / time.Millisecond)
			entry.QueueDebounceMs = &ms
		}
		if capValue != nil {
			entry.QueueCap = capValue
		}
		if drop != "" {
			entry.QueueDrop = drop
		}
	})
	if err != nil {
		return []string{fmt.Sprintf("failed to save session: %v", err)}, false
	}

	acks := []string{fmt.Sprintf("Queue mode set to %s", mode)}
	if debounce != nil {
		acks = append(acks, fmt.Sprintf("Debounce set to %dms", *debounce/time.Millisecond))
	}
	if capValue != nil {
		acks = append(acks, fmt.Sprintf("Cap set to %d", *capValue))
	}
	if drop != "" {
		acks = append(acks, fmt.Sprintf("Drop policy set to %s", drop))
	}
	return acks, true
}

func (e *Engine) handleStatus(ctx context.Context, req Request, agent *Agent) ([]string, bool) {
	entry, err := e.store.Get(ctx, req.SessionKey)
	if err != nil {
		return []string{fmt.Sprintf("failed to read session: %v", err)}, false
	}

	parts := []string{
		"session=" + req.SessionKey,
		"model=" + effectiveKey(entry, agent).String(),
	}
	if entry.AuthProfileOverride != "" {
		parts = append(parts, "auth="+entry.AuthProfileOverride)
	}
	if entry.Thinking != "" {
		parts = append(parts, "thinking="+entry.Thinking)
	}
	if entry.Verbose != session.ToggleUnset {
		parts = append(parts, "verbose="+entry.Verbose.String())
	}
	// Elevated is omitted entirely for agents without the capability
	if agent.Config.ElevatedEnabled && entry.Elevated != session.ToggleUnset {
		parts = append(parts, "elevated="+entry.Elevated.String())
	}
	if entry.Reasoning != "" {
		parts = append(parts, "reasoning="+entry.Reasoning)
	}
	if entry.QueueMode != "" {
		parts = append(parts, "queue="+entry.QueueMode)
	}
	if entry.QueueDebounceMs != nil {
		parts = append(parts, fmt.Sprintf("debounce=%dms", *entry.QueueDebounceMs))
	}

	return []string{strings.Join(parts, " ")}, true
}
