package session

import (
	stderrors "errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wippyai/js-bridge/engine"
)

var ErrClosed = stderrors.New("session table closed")

// Table holds live engines under small integer handles that a native
// caller can keep. Freed handles are reused.
type Table struct {
	entries   []*engine.Engine
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]*engine.Engine, 0, 4),
		freeList: make([]Handle, 0, 4),
	}
}

// Insert stores e and returns its handle.
func (t *Table) Insert(e *engine.Engine) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventOpened, Handle: h, ID: e.ID()})
	return h, nil
}

// Get returns the engine stored under h.
func (t *Table) Get(h Handle) (*engine.Engine, bool) {
	if h == 0 {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(h) > len(t.entries) || t.entries[h-1] == nil {
		return nil, false
	}
	return t.entries[h-1], true
}

// Lookup finds the handle of the engine with session id.
func (t *Table) Lookup(id uuid.UUID) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, e := range t.entries {
		if e != nil && e.ID() == id {
			return Handle(i + 1), true
		}
	}
	return 0, false
}

// Remove disposes the engine under h and frees the handle.
func (t *Table) Remove(h Handle) bool {
	t.mu.Lock()
	if h == 0 || int(h) > len(t.entries) || t.entries[h-1] == nil {
		t.mu.Unlock()
		return false
	}
	e := t.entries[h-1]
	t.entries[h-1] = nil
	t.freeList = append(t.freeList, h)
	t.mu.Unlock()

	_ = e.Dispose()
	t.notify(Event{Type: EventClosed, Handle: h, ID: e.ID()})
	return true
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Handles returns live handles in ascending order.
func (t *Table) Handles() []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Handle
	for i, e := range t.entries {
		if e != nil {
			out = append(out, Handle(i+1))
		}
	}
	return out
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Clear disposes every session but keeps the table open.
func (t *Table) Clear() {
	for _, h := range t.Handles() {
		t.Remove(h)
	}
}

// Close disposes every session and rejects further inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Clear()
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnSessionEvent(e)
	}
}
