package node

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// keySource mints document-lifetime-unique keys. One source is shared
// by every fork in a lineage so keys never collide across snapshots.
type keySource struct {
	n atomic.Uint64
}

func (s *keySource) next() Key { return Key(s.n.Add(1)) }

// Tree is one snapshot of the document. A sealed tree is immutable and
// safe to share; an unsealed tree is a private fork under construction
// inside a write transaction.
type Tree struct {
	reg    *Registry
	keys   *keySource
	nodes  map[Key]*Node
	root   Key
	sealed bool

	// owned holds keys cloned into or created in this fork; these
	// are the mutated set for dirty reporting.
	owned   map[Key]struct{}
	removed map[Key]struct{}
}

// NewTree returns an unsealed tree containing only a root node. The
// caller builds initial content and then seals it.
func NewTree(reg *Registry) *Tree {
	t := &Tree{
		reg:     reg,
		keys:    &keySource{},
		nodes:   make(map[Key]*Node, 16),
		owned:   make(map[Key]struct{}),
		removed: make(map[Key]struct{}),
	}
	root := &Node{key: t.keys.next(), kind: KindRoot}
	t.nodes[root.key] = root
	t.root = root.key
	t.owned[root.key] = struct{}{}
	return t
}

// Fork returns an unsealed copy-on-write descendant. Node values are
// shared with the receiver until individually mutated.
func (t *Tree) Fork() *Tree {
	nodes := make(map[Key]*Node, len(t.nodes))
	for k, v := range t.nodes {
		nodes[k] = v
	}
	return &Tree{
		reg:     t.reg,
		keys:    t.keys,
		nodes:   nodes,
		root:    t.root,
		owned:   make(map[Key]struct{}),
		removed: make(map[Key]struct{}),
	}
}

// Seal freezes the tree. Every later mutation fails with ErrSealed.
func (t *Tree) Seal() { t.sealed = true }

// Sealed reports whether the tree accepts mutations.
func (t *Tree) Sealed() bool { return t.sealed }

// Registry returns the kind registry this tree validates against.
func (t *Tree) Registry() *Registry { return t.reg }

// Root returns the root key.
func (t *Tree) Root() Key { return t.root }

// Get looks a node up by key. The result is read-only.
func (t *Tree) Get(key Key) (*Node, bool) {
	n, ok := t.nodes[key]
	return n, ok
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Dirty returns the keys created, mutated, or removed in this fork,
// sorted ascending.
func (t *Tree) Dirty() []Key {
	out := make([]Key, 0, len(t.owned)+len(t.removed))
	for k := range t.owned {
		out = append(out, k)
	}
	for k := range t.removed {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// writable returns the fork-local copy of a node, cloning it from the
// shared base on first touch.
func (t *Tree) writable(key Key) (*Node, error) {
	if t.sealed {
		return nil, ErrSealed
	}
	n, ok := t.nodes[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	if _, own := t.owned[key]; own {
		return n, nil
	}
	var cloneAttrs func(map[string]string) map[string]string
	if b, ok := t.reg.Lookup(n.kind); ok {
		cloneAttrs = b.CloneAttrs
	}
	c := n.clone(cloneAttrs)
	t.nodes[key] = c
	t.owned[key] = struct{}{}
	return c, nil
}

func (t *Tree) create(n *Node) (Key, error) {
	if t.sealed {
		return NoKey, ErrSealed
	}
	n.key = t.keys.next()
	t.nodes[n.key] = n
	t.owned[n.key] = struct{}{}
	return n.key, nil
}

// CreateParagraph mints an unattached paragraph node.
func (t *Tree) CreateParagraph() (Key, error) {
	return t.create(&Node{kind: KindParagraph})
}

// CreateText mints an unattached text node.
func (t *Tree) CreateText(text string) (Key, error) {
	return t.create(&Node{kind: KindText, text: text})
}

// CreateReference mints an unattached reference node pointing at
// target with the given display label.
func (t *Tree) CreateReference(target, label string) (Key, error) {
	return t.create(&Node{kind: KindReference, target: target, label: label})
}

// CreatePlaceholder mints an unattached trigger placeholder. start is
// the text offset where the trigger sequence began.
func (t *Tree) CreatePlaceholder(start int, query string) (Key, error) {
	return t.create(&Node{kind: KindPlaceholder, start: start, query: query})
}

// CreateCustom mints a node of a registered non-built-in kind.
func (t *Tree) CreateCustom(kind Kind, attrs map[string]string) (Key, error) {
	switch kind {
	case KindRoot, KindParagraph, KindText, KindReference, KindPlaceholder:
		return NoKey, fmt.Errorf("%w: %s has a dedicated constructor", ErrKindRegistered, kind)
	}
	if !t.reg.Known(kind) {
		return NoKey, fmt.Errorf("%w: %s", ErrKindUnknown, kind)
	}
	cp := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return t.create(&Node{kind: kind, attrs: cp})
}

// InsertChild places an unattached node at index in parent's child
// list. Index may equal the current child count to append.
func (t *Tree) InsertChild(parent Key, index int, child Key) error {
	if t.sealed {
		return ErrSealed
	}
	if child == t.root {
		return ErrRootFixed
	}
	c, ok := t.nodes[child]
	if !ok {
		return fmt.Errorf("%w: child %d", ErrNotFound, child)
	}
	if c.parent != NoKey {
		return fmt.Errorf("%w: %d", ErrAttached, child)
	}
	pn, ok := t.nodes[parent]
	if !ok {
		return fmt.Errorf("%w: parent %d", ErrNotFound, parent)
	}
	if pn.isLeaf(t.reg) {
		return fmt.Errorf("%w: %s", ErrNotElement, pn.kind)
	}
	if index < 0 || index > len(pn.children) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(pn.children))
	}
	p, err := t.writable(parent)
	if err != nil {
		return err
	}
	cw, err := t.writable(child)
	if err != nil {
		return err
	}
	p.children = append(p.children, NoKey)
	copy(p.children[index+1:], p.children[index:])
	p.children[index] = child
	cw.parent = parent
	return nil
}

// AppendChild places an unattached node after parent's last child.
func (t *Tree) AppendChild(parent, child Key) error {
	pn, ok := t.nodes[parent]
	if !ok {
		return fmt.Errorf("%w: parent %d", ErrNotFound, parent)
	}
	return t.InsertChild(parent, len(pn.children), child)
}

// Detach unlinks a node from its parent without destroying it. The
// node must be re-attached or removed before the transaction commits.
func (t *Tree) Detach(key Key) error {
	if t.sealed {
		return ErrSealed
	}
	if key == t.root {
		return ErrRootFixed
	}
	n, ok := t.nodes[key]
	if !ok {
		return fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	if n.parent == NoKey {
		return nil
	}
	p, err := t.writable(n.parent)
	if err != nil {
		return err
	}
	removeChildKey(p, key)
	nw, err := t.writable(key)
	if err != nil {
		return err
	}
	nw.parent = NoKey
	return nil
}

// RemoveNode detaches a node and destroys its whole subtree.
func (t *Tree) RemoveNode(key Key) error {
	if err := t.Detach(key); err != nil {
		return err
	}
	t.deleteSubtree(key)
	return nil
}

// ReplaceNode substitutes an unattached replacement at the position of
// an existing node and destroys the replaced subtree.
func (t *Tree) ReplaceNode(key, replacement Key) error {
	if t.sealed {
		return ErrSealed
	}
	if key == t.root {
		return ErrRootFixed
	}
	old, ok := t.nodes[key]
	if !ok {
		return fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	if old.parent == NoKey {
		return fmt.Errorf("%w: %d has no parent", ErrNotFound, key)
	}
	parent := old.parent
	pn := t.nodes[parent]
	index := childIndex(pn, key)
	if err := t.RemoveNode(key); err != nil {
		return err
	}
	return t.InsertChild(parent, index, replacement)
}

func (t *Tree) deleteSubtree(key Key) {
	stack := []Key{key}
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := t.nodes[k]
		if !ok {
			continue
		}
		stack = append(stack, n.children...)
		delete(t.nodes, k)
		delete(t.owned, k)
		t.removed[k] = struct{}{}
	}
}

// SetText replaces the content of a text node.
func (t *Tree) SetText(key Key, text string) error {
	n, err := t.writable(key)
	if err != nil {
		return err
	}
	if n.kind != KindText {
		return fmt.Errorf("%w: %s", ErrNotText, n.kind)
	}
	n.text = text
	return nil
}

// SpliceText removes del runes at rune offset at and inserts insert in
// their place.
func (t *Tree) SpliceText(key Key, at, del int, insert string) error {
	n, ok := t.nodes[key]
	if !ok {
		return fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	if n.kind != KindText {
		return fmt.Errorf("%w: %s", ErrNotText, n.kind)
	}
	runes := []rune(n.text)
	if at < 0 || at > len(runes) {
		return fmt.Errorf("%w: offset %d of %d", ErrIndexOutOfRange, at, len(runes))
	}
	if del < 0 || at+del > len(runes) {
		return fmt.Errorf("%w: delete %d at %d of %d", ErrIndexOutOfRange, del, at, len(runes))
	}
	var b strings.Builder
	b.WriteString(string(runes[:at]))
	b.WriteString(insert)
	b.WriteString(string(runes[at+del:]))
	return t.SetText(key, b.String())
}

// SetFormat replaces the style flags of a text node.
func (t *Tree) SetFormat(key Key, f Format) error {
	n, err := t.writable(key)
	if err != nil {
		return err
	}
	if n.kind != KindText {
		return fmt.Errorf("%w: %s", ErrNotText, n.kind)
	}
	n.format = f
	return nil
}

// SetQuery replaces the in-progress query of a placeholder node.
func (t *Tree) SetQuery(key Key, query string) error {
	n, err := t.writable(key)
	if err != nil {
		return err
	}
	if n.kind != KindPlaceholder {
		return fmt.Errorf("%w: %s", ErrNotPlaceholder, n.kind)
	}
	n.query = query
	return nil
}

// Duplicate deep-copies a subtree under fresh keys. The copy is
// unattached.
func (t *Tree) Duplicate(key Key) (Key, error) {
	if t.sealed {
		return NoKey, ErrSealed
	}
	src, ok := t.nodes[key]
	if !ok {
		return NoKey, fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	var cloneAttrs func(map[string]string) map[string]string
	if b, ok := t.reg.Lookup(src.kind); ok {
		cloneAttrs = b.CloneAttrs
	}
	dup := src.clone(cloneAttrs)
	dup.parent = NoKey
	children := dup.children
	dup.children = nil
	k, err := t.create(dup)
	if err != nil {
		return NoKey, err
	}
	for _, c := range children {
		ck, err := t.Duplicate(c)
		if err != nil {
			return NoKey, err
		}
		if err := t.AppendChild(k, ck); err != nil {
			return NoKey, err
		}
	}
	return k, nil
}

// PruneEmptyText removes every zero-length text node and returns the
// removed keys. Reconciliation runs this before validation.
func (t *Tree) PruneEmptyText() ([]Key, error) {
	var empty []Key
	t.Walk(func(n *Node) bool {
		if n.kind == KindText && n.text == "" {
			empty = append(empty, n.key)
		}
		return true
	})
	for _, k := range empty {
		if err := t.RemoveNode(k); err != nil {
			return nil, err
		}
	}
	return empty, nil
}

// Walk visits the tree depth-first in document order, root first.
// Returning false from fn stops the walk.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(Key) bool
	visit = func(k Key) bool {
		n, ok := t.nodes[k]
		if !ok {
			return true
		}
		if !fn(n) {
			return false
		}
		for _, c := range n.children {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	visit(t.root)
}

// TextContent returns the visible text of a subtree. References
// contribute their label, placeholders their trigger sequence plus
// query, and top-level blocks are joined with newlines.
func (t *Tree) TextContent(key Key) (string, error) {
	n, ok := t.nodes[key]
	if !ok {
		return "", fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	var b strings.Builder
	t.appendText(&b, n)
	return b.String(), nil
}

func (t *Tree) appendText(b *strings.Builder, n *Node) {
	switch n.kind {
	case KindText:
		b.WriteString(n.text)
	case KindReference:
		b.WriteString(n.label)
	case KindPlaceholder:
		b.WriteString(TriggerSequence)
		b.WriteString(n.query)
	default:
		for i, c := range n.children {
			cn, ok := t.nodes[c]
			if !ok {
				continue
			}
			if n.kind == KindRoot && i > 0 {
				b.WriteByte('\n')
			}
			t.appendText(b, cn)
		}
	}
}

func childIndex(p *Node, key Key) int {
	for i, c := range p.children {
		if c == key {
			return i
		}
	}
	return -1
}

func removeChildKey(p *Node, key Key) {
	i := childIndex(p, key)
	if i < 0 {
		return
	}
	p.children = append(p.children[:i], p.children[i+1:]...)
}
