// Package run owns the at-most-one-active-invocation-per-session invariant.
//
// Invariants:
// - Each session key has a single lane; a second run cannot start while the
//   lane is marked active.
// - Effective model, thinking, verbose and elevated settings are re-read from
//   the session store when the run starts, never captured at enqueue time.
// - A live probe re-reads the store on every call so directives issued while
//   a run is executing change that run's behavior without a restart.
// - A failed invocation never clears a previously assigned agent session ID.
package run
