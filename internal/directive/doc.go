// Package directive parses and executes in-band commands embedded in inbound
// message text.
//
// Invariants:
// - Directives in one message execute in textual order; their acknowledgements
//   concatenate in the same order.
// - Arguments are validated before any session mutation; an invalid directive
//   never corrupts a stored entry.
// - Directive lines are stripped from the residual text forwarded to agents;
//   non-directive lines are preserved.
package directive
