package engine

import "errors"

// Errors returned by editor operations.
var (
	// ErrDisposed indicates the editor has been disposed and accepts
	// no further work.
	ErrDisposed = errors.New("editor is disposed")

	// ErrRollback wraps the cause when an update is discarded instead
	// of committed.
	ErrRollback = errors.New("update rolled back")

	// ErrTxDone indicates a transaction handle was used after its
	// update function returned.
	ErrTxDone = errors.New("transaction is finished")

	// ErrInvalidSelection indicates a selection referencing a missing
	// node or an out-of-range offset.
	ErrInvalidSelection = errors.New("invalid selection")
)
