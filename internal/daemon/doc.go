// Package daemon wires the inbound event pipeline: dedupe, directive
// execution, queueing and agent dispatch, with replies delivered through a
// transport-provided sink.
//
// Invariants:
// - An inbound event is processed at most once per dedupe TTL window.
// - Directive acknowledgements are delivered before any agent output for the
//   same message.
// - Close drains pending queue work before returning.
package daemon
