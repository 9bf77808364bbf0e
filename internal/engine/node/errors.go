package node

import "errors"

var (
	// ErrNotFound indicates a key with no entry in the tree table.
	ErrNotFound = errors.New("node not found")

	// ErrSealed indicates a mutation attempted on a sealed tree.
	// Trees are sealed once a transaction commits; only forks made
	// inside an active write transaction accept mutations.
	ErrSealed = errors.New("tree is sealed")

	// ErrNotElement indicates a child operation on a leaf node.
	ErrNotElement = errors.New("node cannot have children")

	// ErrNotText indicates a text operation on a non-text node.
	ErrNotText = errors.New("node is not a text node")

	// ErrNotPlaceholder indicates a query operation on a node that is
	// not a trigger placeholder.
	ErrNotPlaceholder = errors.New("node is not a placeholder")

	// ErrRootFixed indicates an attempt to move, remove, or replace
	// the root node.
	ErrRootFixed = errors.New("root node cannot be moved or removed")

	// ErrIndexOutOfRange indicates a child index outside [0, len].
	ErrIndexOutOfRange = errors.New("child index out of range")

	// ErrAttached indicates an insert of a node that already has a
	// parent. Detach first.
	ErrAttached = errors.New("node is already attached")

	// ErrKindUnknown indicates a discriminant with no registry entry.
	ErrKindUnknown = errors.New("unknown node kind")

	// ErrKindRegistered indicates a duplicate kind registration.
	ErrKindRegistered = errors.New("node kind already registered")

	// ErrInvariant indicates a structural invariant violation found
	// during validation. Always wrapped with detail.
	ErrInvariant = errors.New("tree invariant violated")
)
