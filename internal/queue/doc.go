// Package queue decides how bursts of inbound messages for one session become
// agent turns.
//
// Invariants:
// - Messages for one session are processed in arrival order except where
//   collect merges or steer redirects them.
// - At most one dispatched turn is in flight per session; anything arriving
//   meanwhile is steered, backlogged or buffered per the session's mode.
// - The followup backlog holds a single entry; a newer followup replaces an
//   older one.
// - Invalid debounce, cap or drop input never mutates stored configuration.
package queue
