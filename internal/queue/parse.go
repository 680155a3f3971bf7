package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/session"
)

// Queue modes
const (
	ModeInterrupt    = "interrupt"
	ModeSteer        = "steer"
	ModeFollowup     = "followup"
	ModeCollect      = "collect"
	ModeSteerBacklog = "steer+backlog"
)

// Drop policies for collect-mode cap overflow
const (
	DropOld       = "old"
	DropNew       = "new"
	DropSummarize = "summarize"
)

// ValidMode reports whether s names a queue mode
func ValidMode(s string) bool {
	switch s {
	case ModeInterrupt, ModeSteer, ModeFollowup, ModeCollect, ModeSteerBacklog:
		return true
	}
	return false
}

// ParseDebounce parses a debounce duration: a bare integer is milliseconds,
// "s" and "m" suffixes give seconds and minutes.
func ParseDebounce(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty debounce value")
	}

	unit := time.Millisecond
	digits := s
	switch {
	case strings.HasSuffix(s, "ms"):
		digits = strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "s"):
		unit = time.Second
		digits = strings.TrimSuffix(s, "s")
	case strings.HasSuffix(s, "m"):
		unit = time.Minute
		digits = strings.TrimSuffix(s, "m")
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid debounce %q", s)
	}

	return time.Duration(n) * unit, nil
}

// ParseCap parses a positive batch cap
func ParseCap(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid cap %q (must be a positive integer)", s)
	}
	return n, nil
}

// ParseDrop parses a drop policy
func ParseDrop(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch s {
	case DropOld, DropNew, DropSummarize:
		return s, nil
	}
	return "", fmt.Errorf("invalid drop policy %q (must be old, new or summarize)", s)
}

// Settings is the effective queue behavior for a session
type Settings struct {
	Mode     string
	Debounce time.Duration
	Cap      int
	Drop     string
}

// EffectiveSettings resolves the session's queue fields against the
// configured defaults, falling back to built-ins where both are unset.
func EffectiveSettings(entry session.Entry, defaults config.QueueConfig) Settings {
	s := Settings{
		Mode:     defaults.Mode,
		Debounce: time.Duration(defaults.DebounceMs) * time.Millisecond,
		Cap:      defaults.Cap,
		Drop:     defaults.Drop,
	}

	if s.Mode == "" {
		s.Mode = ModeCollect
	}
	if s.Debounce <= 0 {
		s.Debounce = 1500 * time.Millisecond
	}
	if s.Cap <= 0 {
		s.Cap = 20
	}
	if s.Drop == "" {
		s.Drop = DropOld
	}

	if entry.QueueMode != "" {
		s.Mode = entry.QueueMode
	}
	if entry.QueueDebounceMs != nil {
		s.Debounce = time.Duration(*entry.QueueDebounceMs) * time.Millisecond
	}
	if entry.QueueCap != nil {
		s.Cap = *entry.QueueCap
	}
	if entry.QueueDrop != "" {
		s.Drop = entry.QueueDrop
	}

	return s
}
