package node

import (
	"fmt"
	"sort"
	"sync"
)

// Behavior describes how the engine handles one node kind. Hooks are
// optional; a zero hook falls back to the default for that concern.
type Behavior struct {
	// Leaf marks kinds that never own children.
	Leaf bool

	// Transient marks kinds that must not appear in serialized
	// output. At serialization time a transient node is written as
	// plain text produced by Fallback.
	Transient bool

	// CloneAttrs copies custom payload attributes during
	// copy-on-write. Nil uses a plain map copy.
	CloneAttrs func(attrs map[string]string) map[string]string

	// Validate checks kind-specific payload invariants. Nil accepts
	// every payload.
	Validate func(n *Node) error

	// RenderHint names the presentation treatment a render layer
	// should give this node. Nil derives a hint from the kind name.
	RenderHint func(n *Node) string

	// Fallback produces the literal-text stand-in for a transient
	// node at serialization time.
	Fallback func(n *Node) string
}

// Registry maps kind discriminants to behaviors. A Registry is shared
// by every snapshot of one editor instance and is safe for concurrent
// readers.
type Registry struct {
	mu    sync.RWMutex
	kinds map[Kind]Behavior
}

// NewRegistry returns a registry preloaded with the five built-in
// kinds.
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[Kind]Behavior, 8)}
	r.kinds[KindRoot] = Behavior{}
	r.kinds[KindParagraph] = Behavior{}
	r.kinds[KindText] = Behavior{Leaf: true}
	r.kinds[KindReference] = Behavior{
		Leaf: true,
		Validate: func(n *Node) error {
			if n.Target() == "" {
				return fmt.Errorf("reference %d has empty target", n.Key())
			}
			return nil
		},
		RenderHint: func(*Node) string { return "link" },
	}
	r.kinds[KindPlaceholder] = Behavior{
		Leaf:      true,
		Transient: true,
		RenderHint: func(*Node) string { return "placeholder" },
		Fallback: func(n *Node) string {
			return TriggerSequence + n.Query()
		},
	}
	return r
}

// TriggerSequence is the marker pair that opens an autocomplete
// episode, and the prefix restored when a placeholder falls back to
// literal text.
const TriggerSequence = "[["

// Register adds a custom kind. Registering an existing kind fails with
// ErrKindRegistered; built-in kinds cannot be replaced.
func (r *Registry) Register(k Kind, b Behavior) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[k]; ok {
		return fmt.Errorf("%w: %s", ErrKindRegistered, k)
	}
	r.kinds[k] = b
	return nil
}

// Lookup returns the behavior for a kind.
func (r *Registry) Lookup(k Kind) (Behavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.kinds[k]
	return b, ok
}

// Known reports whether a discriminant is registered.
func (r *Registry) Known(k Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[k]
	return ok
}

// Kinds returns all registered discriminants in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HintFor returns the render hint for a node, deriving one from the
// kind name when the behavior has no hook.
func (r *Registry) HintFor(n *Node) string {
	if b, ok := r.Lookup(n.Kind()); ok && b.RenderHint != nil {
		return b.RenderHint(n)
	}
	return string(n.Kind())
}

// ValidateNode runs the kind's payload validation hook, if any.
func (r *Registry) ValidateNode(n *Node) error {
	b, ok := r.Lookup(n.Kind())
	if !ok {
		return fmt.Errorf("%w: %s", ErrKindUnknown, n.Kind())
	}
	if b.Validate != nil {
		return b.Validate(n)
	}
	return nil
}
