// Package command implements the priority-ordered command bus every
// edit funnels through. Editor defaults, the autocomplete machine, and
// plugins all register handlers against command types; dispatching
// walks handlers from highest priority tier down and stops at the
// first one that reports the command handled.
package command

import "github.com/dshills/inkwell/internal/engine/selection"

// Type names a command on the bus.
type Type string

// Built-in command types. Embedders and plugins may dispatch and
// register additional types; the bus does not require declaration.
const (
	// InsertText inserts TextPayload.Text at the caret.
	InsertText Type = "text.insert"

	// DeleteCharacter deletes one character at the caret, backward
	// unless DeletePayload.Forward is set.
	DeleteCharacter Type = "text.delete"

	// InsertParagraph splits the current block at the caret.
	InsertParagraph Type = "paragraph.insert"

	// SetSelection moves the selection to SelectionPayload.Selection.
	SetSelection Type = "selection.set"

	// InsertReference replaces the active placeholder, or inserts at
	// the caret, an atomic reference node built from ReferencePayload.
	InsertReference Type = "reference.insert"

	// Undo and Redo step the history manager.
	Undo Type = "history.undo"
	Redo Type = "history.redo"

	// Key commands carry no payload; they exist so interceptors such
	// as the autocomplete dropdown can claim navigation keys before
	// any default behavior runs.
	KeyEscape    Type = "key.escape"
	KeyEnter     Type = "key.enter"
	KeyArrowUp   Type = "key.up"
	KeyArrowDown Type = "key.down"
)

// TextPayload carries typed text for InsertText.
type TextPayload struct {
	Text string
}

// DeletePayload selects deletion direction for DeleteCharacter.
type DeletePayload struct {
	Forward bool
}

// SelectionPayload carries the target selection for SetSelection.
type SelectionPayload struct {
	Selection selection.Selection
}

// ReferencePayload carries the reference target for InsertReference.
// ID is the linked document's stable id, Title its display text.
type ReferencePayload struct {
	ID    string
	Title string
}

// Priority orders handler tiers. Higher tiers run first: interceptor
// logic registered by the editor core outranks plugins, and plugins
// outrank the fallback tier where default behaviors live. Critical sits
// above the editor core for embedders that must see a command before
// anything else does.
type Priority int

const (
	PriorityFallback Priority = iota
	PriorityPlugin
	PriorityEditor
	PriorityCritical
)

// String returns the tier name.
func (p Priority) String() string {
	switch p {
	case PriorityFallback:
		return "fallback"
	case PriorityPlugin:
		return "plugin"
	case PriorityEditor:
		return "editor"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Handler processes one dispatched command. Returning true claims the
// command and stops propagation to lower tiers.
type Handler func(payload any) bool
