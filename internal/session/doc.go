// Package session holds the durable per-conversation state consulted by every
// other component.
//
// Invariants:
// - An entry is never partially written: Update applies read-modify-persist as
//   one unit under a per-key lock.
// - Updates to the same key serialize; updates to different keys do not block
//   each other.
// - A persistence failure is reported to the caller while the in-memory entry
//   stays authoritative until the next successful read.
package session
