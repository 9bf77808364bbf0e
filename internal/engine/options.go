package engine

import (
	"time"

	"github.com/dshills/inkwell/internal/diag"
	"github.com/dshills/inkwell/internal/engine/node"
)

// Default configuration values.
const (
	DefaultHistoryWindow  = 1000 * time.Millisecond
	DefaultMaxUndoEntries = 1000
)

// Option configures an Editor during creation.
type Option func(*Editor)

// WithDocumentID sets the identifier stamped on change envelopes.
func WithDocumentID(id string) Option {
	return func(e *Editor) {
		if id != "" {
			e.docID = id
		}
	}
}

// WithRegistry supplies a node registry carrying custom kinds. Without
// it the editor uses a registry holding only the built-in kinds.
func WithRegistry(reg *node.Registry) Option {
	return func(e *Editor) {
		if reg != nil {
			e.reg = reg
		}
	}
}

// WithDiagnostics routes editor diagnostics to the given sink.
func WithDiagnostics(d *diag.Diagnostics) Option {
	return func(e *Editor) {
		if d != nil {
			e.diag = d
		}
	}
}

// WithHistoryWindow sets the idle window within which consecutive
// edits of the same kind coalesce into one undo step.
func WithHistoryWindow(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.histWindow = d
		}
	}
}

// WithMaxUndoEntries sets the maximum number of undo history entries.
func WithMaxUndoEntries(max int) Option {
	return func(e *Editor) {
		if max > 0 {
			e.maxUndo = max
		}
	}
}

// WithClock substitutes the time source used for history coalescing.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) {
		if now != nil {
			e.now = now
		}
	}
}
