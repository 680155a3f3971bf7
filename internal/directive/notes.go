package directive

import (
	"sync"
)

// noteBox holds system notifications queued for a session's next agent turn,
// such as "model switched" notes emitted by the model directive.
type noteBox struct {
	mu    sync.Mutex
	notes map[string][]string
}

func newNoteBox() *noteBox {
	return &noteBox{notes: make(map[string][]string)}
}

func (b *noteBox) add(sessionKey, note string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes[sessionKey] = append(b.notes[sessionKey], note)
}

func (b *noteBox) take(sessionKey string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notes[sessionKey]
	delete(b.notes, sessionKey)
	return out
}
