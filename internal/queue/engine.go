package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/raihan/sela/internal/observability"
	"github.com/raihan/sela/internal/tracing"
	"github.com/rs/zerolog"
)

// condensedLimit bounds the entry produced by the summarize drop policy
const condensedLimit = 240

// Dispatcher runs one agent turn to completion for a session
type Dispatcher func(ctx context.Context, sessionKey, prompt string)

// SettingsFunc resolves the session's current queue settings; called on every
// arrival so a queue directive applies to the very next message.
type SettingsFunc func(ctx context.Context, sessionKey string) Settings

// Hooks are the run-coordinator operations the engine needs
type Hooks struct {
	// Steer delivers text into an active run; false when not delivered
	Steer func(sessionKey, text string) bool
	// CanSteer reports whether the session's agent supports live input
	CanSteer func(sessionKey string) bool
	// Abort cancels an active run; reports whether one was aborted
	Abort func(sessionKey string) bool
}

type pendingState struct {
	mode    string
	batch   []string
	timer   *time.Timer
	running bool
	backlog *string

	// gen invalidates completions of runs superseded by an interrupt
	gen int
}

// Engine buffers and batches inbound messages per session and dispatches
// agent turns according to the session's queue mode.
type Engine struct {
	dispatch Dispatcher
	settings SettingsFunc
	hooks    Hooks
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*pendingState
}

// New creates a queue engine
func New(dispatch Dispatcher, settings SettingsFunc, hooks Hooks, logger zerolog.Logger) *Engine {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		dispatch: dispatch,
		settings: settings,
		hooks:    hooks,
		logger:   logger.With().Str("module", "queue").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*pendingState),
	}
}

// Enqueue feeds one inbound message into the session's state machine
func (e *Engine) Enqueue(ctx context.Context, sessionKey, text string) {
	s := e.settings(ctx, sessionKey)

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.state(sessionKey)
	p.mode = s.Mode

	switch s.Mode {
	case ModeInterrupt:
		if p.running && e.hooks.Abort != nil {
			e.hooks.Abort(sessionKey)
		}
		// Only the new message survives an interrupt
		e.stopTimer(p)
		p.batch = nil
		p.backlog = nil
		p.running = false
		e.startTurnLocked(sessionKey, p, text)

	case ModeSteer:
		if p.running {
			if e.hooks.Steer != nil && e.hooks.Steer(sessionKey, text) {
				e.logger.Debug().Str("session_key", sessionKey).Msg("Message steered into active run")
				return
			}
			// The run finished while we were deciding: deliver as the
			// next turn to preserve arrival order
			p.backlog = &text
			return
		}
		e.startTurnLocked(sessionKey, p, text)

	case ModeFollowup:
		if p.running {
			p.backlog = &text
			e.logger.Debug().Str("session_key", sessionKey).Msg("Followup backlog replaced")
			return
		}
		e.startTurnLocked(sessionKey, p, text)

	case ModeSteerBacklog:
		if p.running {
			if e.hooks.CanSteer != nil && e.hooks.CanSteer(sessionKey) &&
				e.hooks.Steer != nil && e.hooks.Steer(sessionKey, text) {
				e.logger.Debug().Str("session_key", sessionKey).Msg("Message steered into active run")
				return
			}
			p.backlog = &text
			return
		}
		e.startTurnLocked(sessionKey, p, text)

	default: // ModeCollect
		e.appendLocked(sessionKey, p, s, text)
	}
}

// Pending returns the number of buffered messages for a session
func (e *Engine) Pending(sessionKey string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.sessions[sessionKey]
	if !ok {
		return 0
	}
	n := len(p.batch)
	if p.backlog != nil {
		n++
	}
	return n
}

// Close stops timers and waits for in-flight dispatches
func (e *Engine) Close() error {
	e.cancel()

	e.mu.Lock()
	for _, p := range e.sessions {
		e.stopTimer(p)
	}
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// state returns (or creates) the session's pending state. Caller holds e.mu.
func (e *Engine) state(sessionKey string) *pendingState {
	p, ok := e.sessions[sessionKey]
	if !ok {
		p = &pendingState{}
		e.sessions[sessionKey] = p
	}
	return p
}

func (e *Engine) stopTimer(p *pendingState) {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// appendLocked applies collect-mode buffering. Caller holds e.mu.
func (e *Engine) appendLocked(sessionKey string, p *pendingState, s Settings, text string) {
	if len(p.batch) >= s.Cap {
		switch s.Drop {
		case DropNew:
			observability.RecordQueueDrop(DropNew)
			e.logger.Debug().Str("session_key", sessionKey).Msg("Incoming message dropped at cap")
			return
		case DropSummarize:
			observability.RecordQueueDrop(DropSummarize)
			p.batch = []string{condense(p.batch)}
		default: // DropOld
			observability.RecordQueueDrop(DropOld)
			keep := s.Cap - 1
			if keep < 0 {
				keep = 0
			}
			p.batch = append([]string{}, p.batch[len(p.batch)-keep:]...)
		}
	}

	p.batch = append(p.batch, text)
	observability.SetQueueDepth(s.Mode, len(p.batch))

	if len(p.batch) >= s.Cap {
		e.flushLocked(sessionKey, p, "cap")
		return
	}

	// Each arrival restarts the debounce window
	e.stopTimer(p)
	p.timer = time.AfterFunc(s.Debounce, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		p.timer = nil
		if len(p.batch) > 0 {
			e.flushLocked(sessionKey, p, "debounce")
		}
	})
}

// flushLocked combines the batch into one turn. While a run is in flight the
// combined turn waits in the backlog slot. Caller holds e.mu.
func (e *Engine) flushLocked(sessionKey string, p *pendingState, trigger string) {
	e.stopTimer(p)

	combined := strings.Join(p.batch, "\n")
	p.batch = nil
	observability.SetQueueDepth(p.mode, 0)
	observability.RecordQueueFlush(p.mode, trigger)

	e.logger.Debug().
		Str("session_key", sessionKey).
		Str("trigger", trigger).
		Msg("Batch flushed")

	if p.running {
		// A batch flushed earlier in this run is still waiting; the new
		// batch joins it rather than replacing it
		if p.backlog != nil {
			combined = *p.backlog + "\n" + combined
		}
		p.backlog = &combined
		return
	}
	e.startTurnLocked(sessionKey, p, combined)
}

// startTurnLocked marks the session running and dispatches asynchronously.
// Caller holds e.mu.
func (e *Engine) startTurnLocked(sessionKey string, p *pendingState, prompt string) {
	p.running = true
	p.gen++
	gen := p.gen

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx := tracing.WithSessionKey(e.ctx, sessionKey)
		e.dispatch(ctx, sessionKey, prompt)

		e.mu.Lock()
		defer e.mu.Unlock()

		// An interrupt superseded this run while it was executing
		if p.gen != gen {
			return
		}

		p.running = false
		if p.backlog != nil {
			next := *p.backlog
			p.backlog = nil
			e.startTurnLocked(sessionKey, p, next)
			return
		}
		// Nothing buffered and nothing running; drop the state so idle
		// sessions do not accumulate
		if len(p.batch) == 0 && p.timer == nil {
			delete(e.sessions, sessionKey)
		}
	}()
}

// condense collapses a batch into one entry for the summarize drop policy
func condense(batch []string) string {
	joined := strings.Join(batch, " / ")
	runes := []rune(joined)
	if len(runes) > condensedLimit {
		joined = string(runes[:condensedLimit]) + "…"
	}
	return joined
}
