// Package history implements the undo/redo manager. Entries pair the
// snapshot before and after a committed transaction; consecutive
// entries of the same mergeable kind arriving within the idle window
// coalesce into a single step, so a burst of typing undoes as one.
package history

import (
	"sync"
	"time"
)

// Kind classifies a committed edit for coalescing.
type Kind int

const (
	// Structural edits (node insertion, replacement, splits) never
	// merge.
	Structural Kind = iota

	// TextInsert is character insertion at the caret.
	TextInsert

	// TextDelete is character removal at the caret.
	TextDelete

	// TriggerQuery is query editing inside an autocomplete episode.
	// Merging within the kind folds a whole episode of query
	// keystrokes into one step without mixing into plain typing.
	TriggerQuery
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case TextInsert:
		return "text-insert"
	case TextDelete:
		return "text-delete"
	case TriggerQuery:
		return "trigger-query"
	default:
		return "structural"
	}
}

func (k Kind) mergeable() bool {
	return k == TextInsert || k == TextDelete || k == TriggerQuery
}

// Default tuning.
const (
	DefaultWindow     = 1000 * time.Millisecond
	DefaultMaxEntries = 1000
)

type entry[S any] struct {
	before S
	after  S
	kind   Kind
	at     time.Time
}

// Manager holds the undo and redo stacks for one editor instance.
// The snapshot type is opaque to the manager; it only stores and
// returns values.
type Manager[S any] struct {
	mu     sync.Mutex
	undo   []entry[S]
	redo   []entry[S]
	window time.Duration
	max    int
	now    func() time.Time
}

// Option configures a Manager.
type Option[S any] func(*Manager[S])

// WithWindow sets the coalescing idle window.
func WithWindow[S any](d time.Duration) Option[S] {
	return func(m *Manager[S]) { m.window = d }
}

// WithMaxEntries caps the undo stack; the oldest entry is evicted
// when the cap is exceeded.
func WithMaxEntries[S any](n int) Option[S] {
	return func(m *Manager[S]) { m.max = n }
}

// WithClock substitutes the time source.
func WithClock[S any](now func() time.Time) Option[S] {
	return func(m *Manager[S]) { m.now = now }
}

// NewManager returns a Manager with default tuning.
func NewManager[S any](opts ...Option[S]) *Manager[S] {
	m := &Manager[S]{
		window: DefaultWindow,
		max:    DefaultMaxEntries,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record registers a committed transaction. Any redo entries are
// discarded: a new write after undo forks history and the redone
// future is gone. The entry merges into the previous one when both
// are the same mergeable kind and this edit arrived within the idle
// window of the last.
func (m *Manager[S]) Record(before, after S, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.redo = m.redo[:0]
	now := m.now()

	if n := len(m.undo); n > 0 && kind.mergeable() {
		top := &m.undo[n-1]
		if top.kind == kind && now.Sub(top.at) < m.window {
			top.after = after
			top.at = now
			return
		}
	}

	m.undo = append(m.undo, entry[S]{before: before, after: after, kind: kind, at: now})
	if m.max > 0 && len(m.undo) > m.max {
		m.undo = append(m.undo[:0], m.undo[1:]...)
	}
}

// Undo pops the newest step and returns the snapshot to restore.
// The popped step becomes redoable.
func (m *Manager[S]) Undo() (S, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero S
	n := len(m.undo)
	if n == 0 {
		return zero, false
	}
	e := m.undo[n-1]
	m.undo = m.undo[:n-1]
	m.redo = append(m.redo, e)
	return e.before, true
}

// Redo reapplies the most recently undone step and returns the
// snapshot to restore.
func (m *Manager[S]) Redo() (S, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero S
	n := len(m.redo)
	if n == 0 {
		return zero, false
	}
	e := m.redo[n-1]
	m.redo = m.redo[:n-1]
	m.undo = append(m.undo, e)
	return e.after, true
}

// CanUndo reports a non-empty undo stack.
func (m *Manager[S]) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports a non-empty redo stack.
func (m *Manager[S]) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// UndoDepth returns the number of undoable steps.
func (m *Manager[S]) UndoDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo)
}

// RedoDepth returns the number of redoable steps.
func (m *Manager[S]) RedoDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo)
}

// Clear empties both stacks.
func (m *Manager[S]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = m.undo[:0]
	m.redo = m.redo[:0]
}
