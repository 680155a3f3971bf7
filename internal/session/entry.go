package session

import (
	"time"
)

// Toggle is a three-state switch: unset (inherit the configured default),
// explicitly off, or explicitly on.
type Toggle int

const (
	ToggleUnset Toggle = iota
	ToggleOff
	ToggleOn
)

// String returns the human-readable toggle value
func (t Toggle) String() string {
	switch t {
	case ToggleOff:
		return "off"
	case ToggleOn:
		return "on"
	default:
		return "unset"
	}
}

// ParseToggle parses "on" or "off"
func ParseToggle(s string) (Toggle, bool) {
	switch s {
	case "on":
		return ToggleOn, true
	case "off":
		return ToggleOff, true
	default:
		return ToggleUnset, false
	}
}

// Thinking-effort levels recognized by the think directive. The empty string
// means unset.
const (
	ThinkOff     = "off"
	ThinkMinimal = "minimal"
	ThinkLow     = "low"
	ThinkMedium  = "medium"
	ThinkHigh    = "high"
)

// ValidThinkingLevel reports whether s is a recognized thinking level
func ValidThinkingLevel(s string) bool {
	switch s {
	case ThinkOff, ThinkMinimal, ThinkLow, ThinkMedium, ThinkHigh:
		return true
	}
	return false
}

// Reasoning-trace visibility levels. The empty string means unset.
const (
	ReasoningOff    = "off"
	ReasoningOn     = "on"
	ReasoningStream = "stream"
)

// ValidReasoningLevel reports whether s is a recognized reasoning level
func ValidReasoningLevel(s string) bool {
	switch s {
	case ReasoningOff, ReasoningOn, ReasoningStream:
		return true
	}
	return false
}

// Entry is the stored state for one logical conversation. Optional fields use
// the zero value ("" / nil / ToggleUnset) to mean "use the configured default".
type Entry struct {
	// SessionID is the opaque resume handle assigned by the agent process
	SessionID string    `json:"session_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	ModelOverride       string `json:"model_override,omitempty"`
	ProviderOverride    string `json:"provider_override,omitempty"`
	AuthProfileOverride string `json:"auth_profile_override,omitempty"`

	Verbose   Toggle `json:"verbose,omitempty"`
	Elevated  Toggle `json:"elevated,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	QueueMode       string `json:"queue_mode,omitempty"`
	QueueDebounceMs *int   `json:"queue_debounce_ms,omitempty"`
	QueueCap        *int   `json:"queue_cap,omitempty"`
	QueueDrop       string `json:"queue_drop,omitempty"`
}

// HasModelOverride reports whether an explicit model override is stored
func (e *Entry) HasModelOverride() bool {
	return e.ModelOverride != ""
}

// ResetQueue clears all queue fields back to unset
func (e *Entry) ResetQueue() {
	e.QueueMode = ""
	e.QueueDebounceMs = nil
	e.QueueCap = nil
	e.QueueDrop = ""
}

// DefaultEntry returns the entry used for a session key with no stored state
func DefaultEntry() Entry {
	return Entry{}
}
