package engine

import (
	"fmt"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine/history"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
)

// WriteTx is the handle an update function mutates the document
// through. It wraps a copy-on-write fork of the committed tree; the
// fork becomes the next generation when the function returns cleanly
// and is discarded otherwise. The handle is revoked once the function
// returns, and any later use fails with ErrTxDone.
//
// The first error any mutation returns poisons the transaction: the
// update rolls back even when the function itself returns nil.
type WriteTx struct {
	ed      *Editor
	tree    *node.Tree
	sel     selection.Selection
	kind    history.Kind
	kindSet bool
	err     error
	done    bool
}

func (tx *WriteTx) guard() error {
	if tx.done {
		return ErrTxDone
	}
	return nil
}

// check records the first mutation error so a swallowed failure still
// rolls the update back.
func (tx *WriteTx) check(err error) error {
	if err != nil && tx.err == nil {
		tx.err = err
	}
	return err
}

// Err returns the first error recorded by any operation on this
// transaction.
func (tx *WriteTx) Err() error { return tx.err }

// Abort poisons the transaction with err, forcing a rollback. Command
// handlers have no error return; this is their escape hatch.
func (tx *WriteTx) Abort(err error) {
	if tx.done || err == nil {
		return
	}
	tx.check(err)
}

// SetEditKind classifies this update for history coalescing. Updates
// that never call it record as structural, which does not coalesce.
func (tx *WriteTx) SetEditKind(k history.Kind) {
	if tx.done {
		return
	}
	tx.kind = k
	tx.kindSet = true
}

// Root returns the root key.
func (tx *WriteTx) Root() node.Key { return tx.tree.Root() }

// Get returns a node by key. The returned value is a snapshot; it does
// not observe later mutations in this transaction.
func (tx *WriteTx) Get(key node.Key) (*node.Node, bool) {
	if tx.done {
		return nil, false
	}
	return tx.tree.Get(key)
}

// Registry returns the kind registry behind the document.
func (tx *WriteTx) Registry() *node.Registry { return tx.tree.Registry() }

// Selection returns the selection as of the last SetSelection in this
// transaction, or the committed selection if none.
func (tx *WriteTx) Selection() selection.Selection { return tx.sel }

// SetSelection moves the selection. Both points must reference nodes
// present in the transaction's tree with in-range offsets; a zero
// selection clears it.
func (tx *WriteTx) SetSelection(sel selection.Selection) error {
	if err := tx.guard(); err != nil {
		return err
	}
	if !sel.IsZero() {
		if err := validPoint(tx.tree, sel.Anchor); err != nil {
			return tx.check(err)
		}
		if err := validPoint(tx.tree, sel.Focus); err != nil {
			return tx.check(err)
		}
	}
	tx.sel = sel
	return nil
}

// SelectEnd places a collapsed selection at the document's trailing
// edge: the end of the last block's content, or the root itself when
// the document is empty. Typing at a root caret mints the first
// paragraph.
func (tx *WriteTx) SelectEnd() error {
	if err := tx.guard(); err != nil {
		return err
	}
	rn, ok := tx.Get(tx.Root())
	if !ok || rn.ChildCount() == 0 {
		return tx.SetSelection(selection.Caret(tx.Root(), 0))
	}
	children := rn.Children()
	last, ok := tx.Get(children[len(children)-1])
	if !ok {
		return tx.SetSelection(selection.Caret(tx.Root(), len(children)))
	}
	pt := endPoint(tx, last)
	return tx.SetSelection(selection.Caret(pt.Node, pt.Offset))
}

// TextContent returns the concatenated text beneath a node.
func (tx *WriteTx) TextContent(key node.Key) (string, error) {
	if err := tx.guard(); err != nil {
		return "", err
	}
	return tx.tree.TextContent(key)
}

// Walk visits every node in document order until fn returns false.
func (tx *WriteTx) Walk(fn func(n *node.Node) bool) {
	if tx.done {
		return
	}
	tx.tree.Walk(fn)
}

// CreateParagraph creates a detached paragraph node.
func (tx *WriteTx) CreateParagraph() (node.Key, error) {
	if err := tx.guard(); err != nil {
		return node.NoKey, err
	}
	k, err := tx.tree.CreateParagraph()
	tx.check(err)
	return k, err
}

// CreateText creates a detached text node.
func (tx *WriteTx) CreateText(text string) (node.Key, error) {
	if err := tx.guard(); err != nil {
		return node.NoKey, err
	}
	k, err := tx.tree.CreateText(text)
	tx.check(err)
	return k, err
}

// CreateReference creates a detached reference node pointing at a
// document by id.
func (tx *WriteTx) CreateReference(target, label string) (node.Key, error) {
	if err := tx.guard(); err != nil {
		return node.NoKey, err
	}
	k, err := tx.tree.CreateReference(target, label)
	tx.check(err)
	return k, err
}

// CreatePlaceholder creates a detached placeholder node for an
// autocomplete episode anchored at rune offset start.
func (tx *WriteTx) CreatePlaceholder(start int, query string) (node.Key, error) {
	if err := tx.guard(); err != nil {
		return node.NoKey, err
	}
	k, err := tx.tree.CreatePlaceholder(start, query)
	tx.check(err)
	return k, err
}

// CreateCustom creates a detached node of a registered custom kind.
func (tx *WriteTx) CreateCustom(kind node.Kind, attrs map[string]string) (node.Key, error) {
	if err := tx.guard(); err != nil {
		return node.NoKey, err
	}
	k, err := tx.tree.CreateCustom(kind, attrs)
	tx.check(err)
	return k, err
}

// InsertChild places a detached node at index among parent's children.
func (tx *WriteTx) InsertChild(parent node.Key, index int, child node.Key) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.InsertChild(parent, index, child))
}

// AppendChild places a detached node after parent's last child.
func (tx *WriteTx) AppendChild(parent, child node.Key) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.AppendChild(parent, child))
}

// Detach unlinks a node from its parent without destroying it.
func (tx *WriteTx) Detach(key node.Key) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.Detach(key))
}

// Remove detaches a node and destroys its subtree.
func (tx *WriteTx) Remove(key node.Key) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.RemoveNode(key))
}

// Replace substitutes a detached replacement at an existing node's
// position and destroys the replaced subtree.
func (tx *WriteTx) Replace(key, replacement node.Key) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.ReplaceNode(key, replacement))
}

// Duplicate deep-copies a subtree under fresh keys and returns the
// detached copy's root.
func (tx *WriteTx) Duplicate(key node.Key) (node.Key, error) {
	if err := tx.guard(); err != nil {
		return node.NoKey, err
	}
	k, err := tx.tree.Duplicate(key)
	tx.check(err)
	return k, err
}

// SetText replaces the content of a text node.
func (tx *WriteTx) SetText(key node.Key, text string) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.SetText(key, text))
}

// SpliceText removes del runes at rune offset at and inserts insert in
// their place.
func (tx *WriteTx) SpliceText(key node.Key, at, del int, insert string) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.SpliceText(key, at, del, insert))
}

// SetFormat replaces the style flags of a text node.
func (tx *WriteTx) SetFormat(key node.Key, f node.Format) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.SetFormat(key, f))
}

// SetQuery updates the captured query of a placeholder node.
func (tx *WriteTx) SetQuery(key node.Key, query string) error {
	if err := tx.guard(); err != nil {
		return err
	}
	return tx.check(tx.tree.SetQuery(key, query))
}

// InsertTextAt types text at a caret position, merging into an
// adjacent text node when one exists, and returns the caret after the
// insertion. Under the root the text is wrapped in a fresh paragraph.
func (tx *WriteTx) InsertTextAt(caret selection.Point, text string) (selection.Point, error) {
	if err := tx.guard(); err != nil {
		return caret, err
	}
	return insertTextAt(tx, caret, text)
}

// Dispatch routes a command through the bus from inside this update.
// Handlers run synchronously against this same transaction.
func (tx *WriteTx) Dispatch(t command.Type, payload any) bool {
	if tx.done {
		return false
	}
	return tx.ed.dispatchNow(t, payload)
}

// ReadTx is a read-only view over one committed generation. The
// underlying state is immutable, so the view stays coherent for as
// long as the handle is held.
type ReadTx struct {
	st *State
}

// Root returns the root key.
func (r *ReadTx) Root() node.Key { return r.st.tree.Root() }

// Get returns a node by key.
func (r *ReadTx) Get(key node.Key) (*node.Node, bool) { return r.st.tree.Get(key) }

// Selection returns the committed selection.
func (r *ReadTx) Selection() selection.Selection { return r.st.sel }

// Version returns the generation counter.
func (r *ReadTx) Version() uint64 { return r.st.version }

// Len returns the number of live nodes.
func (r *ReadTx) Len() int { return r.st.tree.Len() }

// TextContent returns the concatenated document text.
func (r *ReadTx) TextContent() string { return r.st.TextContent() }

// Walk visits every node in document order until fn returns false.
func (r *ReadTx) Walk(fn func(n *node.Node) bool) { r.st.tree.Walk(fn) }

// Tree returns the sealed tree, for serialization.
func (r *ReadTx) Tree() *node.Tree { return r.st.tree }

// validPoint checks that a selection point lands on a live node with
// an in-range offset.
func validPoint(t *node.Tree, p selection.Point) error {
	if p.IsZero() {
		return fmt.Errorf("%w: zero point in non-zero selection", ErrInvalidSelection)
	}
	n, ok := t.Get(p.Node)
	if !ok {
		return fmt.Errorf("%w: node %d not in document", ErrInvalidSelection, p.Node)
	}
	max := pointMax(t, n)
	if p.Offset < 0 || p.Offset > max {
		return fmt.Errorf("%w: offset %d of %d on %s node", ErrInvalidSelection, p.Offset, max, n.Kind())
	}
	return nil
}

// pointMax returns the largest valid offset within a node: rune count
// for text, the before/after boundary for other leaves, child count
// for elements.
func pointMax(t *node.Tree, n *node.Node) int {
	if n.Kind() == node.KindText {
		return len([]rune(n.Text()))
	}
	if b, ok := t.Registry().Lookup(n.Kind()); ok && b.Leaf {
		return 1
	}
	return n.ChildCount()
}

// normalizeSelection repairs a selection after mutation: points on
// vanished nodes reset the whole selection, out-of-range offsets clamp.
func normalizeSelection(t *node.Tree, sel selection.Selection) selection.Selection {
	if sel.IsZero() {
		return selection.Selection{}
	}
	anchor, ok := clampPoint(t, sel.Anchor)
	if !ok {
		return selection.Selection{}
	}
	focus, ok := clampPoint(t, sel.Focus)
	if !ok {
		return selection.Selection{}
	}
	return selection.Selection{Anchor: anchor, Focus: focus}
}

func clampPoint(t *node.Tree, p selection.Point) (selection.Point, bool) {
	if p.IsZero() {
		return selection.Point{}, false
	}
	n, ok := t.Get(p.Node)
	if !ok {
		return selection.Point{}, false
	}
	if max := pointMax(t, n); p.Offset > max {
		p.Offset = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p, true
}
