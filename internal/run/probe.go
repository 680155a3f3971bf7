package run

import (
	"context"

	"github.com/raihan/sela/internal/session"
)

// Probe reflects the current stored session state at each decision point of
// an in-flight run. It holds the store and the key, never a snapshot: every
// call re-reads, so a directive processed mid-run changes the answer.
type Probe struct {
	store           session.Store
	key             string
	verboseDefault  bool
	elevatedDefault bool
}

// NewProbe builds a live probe for a session key
func NewProbe(store session.Store, key string, verboseDefault, elevatedDefault bool) *Probe {
	return &Probe{
		store:           store,
		key:             key,
		verboseDefault:  verboseDefault,
		elevatedDefault: elevatedDefault,
	}
}

// Verbose reports the current effective tool-result verbosity
func (p *Probe) Verbose(ctx context.Context) bool {
	entry, err := p.store.Get(ctx, p.key)
	if err != nil {
		return p.verboseDefault
	}
	switch entry.Verbose {
	case session.ToggleOn:
		return true
	case session.ToggleOff:
		return false
	default:
		return p.verboseDefault
	}
}

// Elevated reports the current effective elevated level
func (p *Probe) Elevated(ctx context.Context) bool {
	entry, err := p.store.Get(ctx, p.key)
	if err != nil {
		return p.elevatedDefault
	}
	switch entry.Elevated {
	case session.ToggleOn:
		return true
	case session.ToggleOff:
		return false
	default:
		return p.elevatedDefault
	}
}
