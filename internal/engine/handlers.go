package engine

import (
	"fmt"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine/history"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
	"github.com/dshills/inkwell/internal/textmetric"
)

// registerDefaults installs the fallback-tier behaviors every editor
// ships with. They run only when no interceptor above them claims the
// command.
func registerDefaults(e *Editor) {
	e.bus.Register(command.InsertText, e.handleInsertText, command.PriorityFallback)
	e.bus.Register(command.DeleteCharacter, e.handleDeleteCharacter, command.PriorityFallback)
	e.bus.Register(command.InsertParagraph, e.handleInsertParagraph, command.PriorityFallback)
	e.bus.Register(command.SetSelection, e.handleSetSelection, command.PriorityFallback)
	e.bus.Register(command.InsertReference, e.handleInsertReference, command.PriorityFallback)
	e.bus.Register(command.Undo, func(any) bool { return e.Undo() }, command.PriorityFallback)
	e.bus.Register(command.Redo, func(any) bool { return e.Redo() }, command.PriorityFallback)
}

func (e *Editor) handleInsertText(payload any) bool {
	p, ok := payload.(command.TextPayload)
	if !ok || p.Text == "" {
		return false
	}
	tx := e.currentTx()
	if tx == nil {
		return false
	}
	caret, ok := collapseSelection(tx)
	if !ok {
		return false
	}
	pt, err := insertTextAt(tx, caret, p.Text)
	if err != nil {
		return false
	}
	tx.SetEditKind(history.TextInsert)
	return tx.SetSelection(selection.Caret(pt.Node, pt.Offset)) == nil
}

func (e *Editor) handleDeleteCharacter(payload any) bool {
	p, _ := payload.(command.DeletePayload)
	tx := e.currentTx()
	if tx == nil {
		return false
	}
	sel := tx.Selection()
	if sel.IsZero() {
		return false
	}
	if !sel.Collapsed() {
		caret, ok := collapseSelection(tx)
		if !ok {
			return false
		}
		tx.SetEditKind(history.TextDelete)
		return tx.SetSelection(selection.Caret(caret.Node, caret.Offset)) == nil
	}

	var caret selection.Point
	var structural, ok bool
	if p.Forward {
		caret, structural, ok = deleteForwardAt(tx, sel.Focus)
	} else {
		caret, structural, ok = deleteBackwardAt(tx, sel.Focus)
	}
	if !ok {
		return false
	}
	if structural {
		tx.SetEditKind(history.Structural)
	} else {
		tx.SetEditKind(history.TextDelete)
	}
	return tx.SetSelection(selection.Caret(caret.Node, caret.Offset)) == nil
}

func (e *Editor) handleInsertParagraph(payload any) bool {
	tx := e.currentTx()
	if tx == nil {
		return false
	}
	caret, ok := collapseSelection(tx)
	if !ok {
		return false
	}
	pt, err := splitBlockAt(tx, caret)
	if err != nil {
		return false
	}
	return tx.SetSelection(selection.Caret(pt.Node, pt.Offset)) == nil
}

func (e *Editor) handleSetSelection(payload any) bool {
	p, ok := payload.(command.SelectionPayload)
	if !ok {
		return false
	}
	tx := e.currentTx()
	if tx == nil {
		return false
	}
	return tx.SetSelection(p.Selection) == nil
}

func (e *Editor) handleInsertReference(payload any) bool {
	p, ok := payload.(command.ReferencePayload)
	if !ok || p.ID == "" {
		return false
	}
	tx := e.currentTx()
	if tx == nil {
		return false
	}
	ref, err := insertReferenceAt(tx, p.ID, p.Title)
	if err != nil {
		return false
	}
	return tx.SetSelection(selection.Caret(ref, 1)) == nil
}

// collapseSelection reduces the transaction's selection to a single
// caret, deleting the covered text when the range lies within one text
// node. Ranges spanning nodes collapse to the focus point without
// deleting.
func collapseSelection(tx *WriteTx) (selection.Point, bool) {
	sel := tx.Selection()
	if sel.IsZero() {
		return selection.Point{}, false
	}
	if sel.Collapsed() {
		return sel.Focus, true
	}
	if sel.Anchor.Node == sel.Focus.Node {
		if n, ok := tx.Get(sel.Anchor.Node); ok && n.Kind() == node.KindText {
			lo, hi := sel.Anchor.Offset, sel.Focus.Offset
			if lo > hi {
				lo, hi = hi, lo
			}
			if max := runeLen(n.Text()); hi > max {
				hi = max
			}
			if err := tx.SpliceText(n.Key(), lo, hi-lo, ""); err != nil {
				return selection.Point{}, false
			}
			pt := selection.Point{Node: n.Key(), Offset: lo}
			if fresh, ok := tx.Get(n.Key()); ok && fresh.Text() == "" {
				pt = parentPoint(tx, n.Key())
			}
			return pt, true
		}
	}
	return sel.Focus, true
}

// insertTextAt types text at a caret and returns the caret after it.
// Text lands in an existing text node whenever one is adjacent, so a
// stream of keystrokes grows one node instead of minting one per
// character.
func insertTextAt(tx *WriteTx, caret selection.Point, text string) (selection.Point, error) {
	n, ok := tx.Get(caret.Node)
	if !ok {
		return caret, errNodeGone(tx, caret.Node)
	}

	switch {
	case n.Kind() == node.KindText:
		if err := tx.SpliceText(n.Key(), caret.Offset, 0, text); err != nil {
			return caret, err
		}
		return selection.Point{Node: n.Key(), Offset: caret.Offset + runeLen(text)}, nil

	case isLeafNode(tx, n):
		parent, i := placeOf(tx, n.Key())
		return insertTextAmong(tx, parent, i+caret.Offset, text)

	default:
		return insertTextAmong(tx, n.Key(), caret.Offset, text)
	}
}

// insertTextAmong inserts text at a child position of an element,
// merging into a neighboring text node when one exists. Text cannot
// live directly under the root, so there it is wrapped in a paragraph.
func insertTextAmong(tx *WriteTx, parent node.Key, index int, text string) (selection.Point, error) {
	pn, ok := tx.Get(parent)
	if !ok {
		return selection.Point{}, errNodeGone(tx, parent)
	}
	children := pn.Children()
	if index < 0 {
		index = 0
	}
	if index > len(children) {
		index = len(children)
	}

	if index > 0 {
		if prev, ok := tx.Get(children[index-1]); ok && prev.Kind() == node.KindText {
			end := runeLen(prev.Text())
			if err := tx.SpliceText(prev.Key(), end, 0, text); err != nil {
				return selection.Point{}, err
			}
			return selection.Point{Node: prev.Key(), Offset: end + runeLen(text)}, nil
		}
	}
	if index < len(children) {
		if next, ok := tx.Get(children[index]); ok && next.Kind() == node.KindText {
			if err := tx.SpliceText(next.Key(), 0, 0, text); err != nil {
				return selection.Point{}, err
			}
			return selection.Point{Node: next.Key(), Offset: runeLen(text)}, nil
		}
	}

	t, err := tx.CreateText(text)
	if err != nil {
		return selection.Point{}, err
	}
	if pn.Kind() == node.KindRoot {
		para, err := tx.CreateParagraph()
		if err != nil {
			return selection.Point{}, err
		}
		if err := tx.AppendChild(para, t); err != nil {
			return selection.Point{}, err
		}
		if err := tx.InsertChild(parent, index, para); err != nil {
			return selection.Point{}, err
		}
	} else if err := tx.InsertChild(parent, index, t); err != nil {
		return selection.Point{}, err
	}
	return selection.Point{Node: t, Offset: runeLen(text)}, nil
}

// deleteBackwardAt removes one grapheme, or one whole leaf node,
// behind the caret. At a block start it joins the block with its
// predecessor. Reports the caret after the edit and whether the edit
// was structural rather than plain character removal.
func deleteBackwardAt(tx *WriteTx, caret selection.Point) (selection.Point, bool, bool) {
	n, ok := tx.Get(caret.Node)
	if !ok {
		return caret, false, false
	}

	switch {
	case n.Kind() == node.KindText && caret.Offset > 0:
		pt, err := deleteGraphemeBefore(tx, n, caret.Offset)
		if err != nil {
			return caret, false, false
		}
		return pt, false, true

	case n.Kind() == node.KindText:
		// Caret at the node's start: act on what precedes it.
		return deleteBeforeChild(tx, caret.Node)

	case isLeafNode(tx, n):
		if caret.Offset >= 1 {
			pt, err := removeInline(tx, n.Key())
			if err != nil {
				return caret, false, false
			}
			return pt, true, true
		}
		return deleteBeforeChild(tx, caret.Node)

	default:
		// Element position: delete into the child left of the caret.
		if caret.Offset == 0 {
			if n.Kind() == node.KindParagraph {
				return joinWithPrevious(tx, n.Key())
			}
			return caret, false, true
		}
		children := n.Children()
		if caret.Offset > len(children) {
			return caret, false, false
		}
		child, ok := tx.Get(children[caret.Offset-1])
		if !ok {
			return caret, false, false
		}
		if child.Kind() == node.KindText {
			pt, err := deleteGraphemeBefore(tx, child, runeLen(child.Text()))
			if err != nil {
				return caret, false, false
			}
			return pt, false, true
		}
		pt, err := removeInline(tx, child.Key())
		if err != nil {
			return caret, false, false
		}
		return pt, true, true
	}
}

// deleteForwardAt mirrors deleteBackwardAt in the other direction: it
// removes the grapheme or leaf node after the caret, joining with the
// following block at a block end.
func deleteForwardAt(tx *WriteTx, caret selection.Point) (selection.Point, bool, bool) {
	n, ok := tx.Get(caret.Node)
	if !ok {
		return caret, false, false
	}

	switch {
	case n.Kind() == node.KindText && caret.Offset < runeLen(n.Text()):
		end := textmetric.NextGrapheme(n.Text(), caret.Offset)
		if err := tx.SpliceText(n.Key(), caret.Offset, end-caret.Offset, ""); err != nil {
			return caret, false, false
		}
		pt := selection.Point{Node: n.Key(), Offset: caret.Offset}
		if fresh, ok := tx.Get(n.Key()); ok && fresh.Text() == "" {
			pt = parentPoint(tx, n.Key())
		}
		return pt, false, true

	case n.Kind() == node.KindText:
		return deleteAfterChild(tx, caret.Node)

	case isLeafNode(tx, n):
		if caret.Offset == 0 {
			pt, err := removeInline(tx, n.Key())
			if err != nil {
				return caret, false, false
			}
			return pt, true, true
		}
		return deleteAfterChild(tx, caret.Node)

	default:
		children := n.Children()
		if caret.Offset >= len(children) {
			if n.Kind() == node.KindParagraph {
				return joinWithNext(tx, n.Key())
			}
			return caret, false, true
		}
		child, ok := tx.Get(children[caret.Offset])
		if !ok {
			return caret, false, false
		}
		if child.Kind() == node.KindText {
			return deleteForwardAt(tx, selection.Point{Node: child.Key(), Offset: 0})
		}
		pt, err := removeInline(tx, child.Key())
		if err != nil {
			return caret, false, false
		}
		return pt, true, true
	}
}

// deleteBeforeChild handles a caret sitting at the leading edge of a
// child node: the target is the previous sibling, or the block join
// when there is none.
func deleteBeforeChild(tx *WriteTx, key node.Key) (selection.Point, bool, bool) {
	parent, i := placeOf(tx, key)
	if parent == node.NoKey {
		return selection.Point{Node: key}, false, false
	}
	if i == 0 {
		pn, ok := tx.Get(parent)
		if !ok {
			return selection.Point{Node: key}, false, false
		}
		if pn.Kind() == node.KindParagraph {
			pt, structural, ok := joinWithPrevious(tx, parent)
			if ok && !structural {
				// Nothing to join with; the caret stays put.
				pt = selection.Point{Node: key}
			}
			return pt, structural, ok
		}
		return selection.Point{Node: key}, false, true
	}
	pn, _ := tx.Get(parent)
	prev, ok := tx.Get(pn.Children()[i-1])
	if !ok {
		return selection.Point{Node: key}, false, false
	}
	if prev.Kind() == node.KindText {
		pt, err := deleteGraphemeBefore(tx, prev, runeLen(prev.Text()))
		if err != nil {
			return selection.Point{Node: key}, false, false
		}
		return pt, false, true
	}
	pt, err := removeInline(tx, prev.Key())
	if err != nil {
		return selection.Point{Node: key}, false, false
	}
	return pt, true, true
}

// deleteAfterChild is the forward twin of deleteBeforeChild.
func deleteAfterChild(tx *WriteTx, key node.Key) (selection.Point, bool, bool) {
	parent, i := placeOf(tx, key)
	if parent == node.NoKey {
		return selection.Point{Node: key}, false, false
	}
	pn, ok := tx.Get(parent)
	if !ok {
		return selection.Point{Node: key}, false, false
	}
	children := pn.Children()
	if i == len(children)-1 {
		if pn.Kind() == node.KindParagraph {
			pt, structural, ok := joinWithNext(tx, parent)
			if ok && !structural {
				pt = selection.Point{Node: key, Offset: endOffset(tx, key)}
			}
			return pt, structural, ok
		}
		return selection.Point{Node: key}, false, true
	}
	next, ok := tx.Get(children[i+1])
	if !ok {
		return selection.Point{Node: key}, false, false
	}
	if next.Kind() == node.KindText {
		return deleteForwardAt(tx, selection.Point{Node: next.Key(), Offset: 0})
	}
	pt, err := removeInline(tx, next.Key())
	if err != nil {
		return selection.Point{Node: key}, false, false
	}
	return pt, true, true
}

// deleteGraphemeBefore removes the grapheme cluster ending at offset
// within a text node and returns the caret after the removal, stepping
// out of the node if it became empty and will be pruned.
func deleteGraphemeBefore(tx *WriteTx, n *node.Node, offset int) (selection.Point, error) {
	start := textmetric.PrevGrapheme(n.Text(), offset)
	if err := tx.SpliceText(n.Key(), start, offset-start, ""); err != nil {
		return selection.Point{}, err
	}
	if fresh, ok := tx.Get(n.Key()); ok && fresh.Text() == "" {
		return parentPoint(tx, n.Key()), nil
	}
	return selection.Point{Node: n.Key(), Offset: start}, nil
}

// removeInline removes a whole inline node, caret landing at the end
// of the previous text sibling when there is one, otherwise at the
// node's old slot in its parent.
func removeInline(tx *WriteTx, key node.Key) (selection.Point, error) {
	parent, i := placeOf(tx, key)
	if parent == node.NoKey {
		return selection.Point{}, errNodeGone(tx, key)
	}
	pt := selection.Point{Node: parent, Offset: i}
	if i > 0 {
		pn, _ := tx.Get(parent)
		if prev, ok := tx.Get(pn.Children()[i-1]); ok && prev.Kind() == node.KindText {
			pt = selection.Point{Node: prev.Key(), Offset: runeLen(prev.Text())}
		}
	}
	if err := tx.Remove(key); err != nil {
		return selection.Point{}, err
	}
	return pt, nil
}

// joinWithPrevious merges a paragraph into the one before it. At the
// document start there is nothing to join and the edit is a handled
// no-op.
func joinWithPrevious(tx *WriteTx, para node.Key) (selection.Point, bool, bool) {
	root, j := placeOf(tx, para)
	if root == node.NoKey {
		return selection.Point{Node: para}, false, false
	}
	if j == 0 {
		return selection.Point{Node: para}, false, true
	}
	rn, _ := tx.Get(root)
	prev := rn.Children()[j-1]
	pt, err := joinBlocks(tx, prev, para)
	if err != nil {
		return selection.Point{Node: para}, false, false
	}
	return pt, true, true
}

// joinWithNext merges the following paragraph into this one.
func joinWithNext(tx *WriteTx, para node.Key) (selection.Point, bool, bool) {
	root, j := placeOf(tx, para)
	if root == node.NoKey {
		return selection.Point{Node: para}, false, false
	}
	rn, _ := tx.Get(root)
	children := rn.Children()
	if j >= len(children)-1 {
		return selection.Point{Node: para}, false, true
	}
	pt, err := joinBlocks(tx, para, children[j+1])
	if err != nil {
		return selection.Point{Node: para}, false, false
	}
	return pt, true, true
}

// joinBlocks moves every child of right into left and removes right.
// The caret lands at the junction.
func joinBlocks(tx *WriteTx, left, right node.Key) (selection.Point, error) {
	ln, ok := tx.Get(left)
	if !ok {
		return selection.Point{}, errNodeGone(tx, left)
	}
	rn, ok := tx.Get(right)
	if !ok {
		return selection.Point{}, errNodeGone(tx, right)
	}
	pt := endPoint(tx, ln)
	for _, c := range rn.Children() {
		if err := tx.Detach(c); err != nil {
			return selection.Point{}, err
		}
		if err := tx.AppendChild(left, c); err != nil {
			return selection.Point{}, err
		}
	}
	if err := tx.Remove(right); err != nil {
		return selection.Point{}, err
	}
	return pt, nil
}

// splitBlockAt splits the paragraph containing the caret, moving
// everything after the caret into a fresh paragraph inserted just
// below. The returned caret sits at the new paragraph's start.
func splitBlockAt(tx *WriteTx, caret selection.Point) (selection.Point, error) {
	n, ok := tx.Get(caret.Node)
	if !ok {
		return caret, errNodeGone(tx, caret.Node)
	}

	switch {
	case n.Kind() == node.KindText:
		para, i := placeOf(tx, n.Key())
		if para == node.NoKey {
			return caret, errNodeGone(tx, n.Key())
		}
		total := runeLen(n.Text())
		switch {
		case caret.Offset <= 0:
			// Split before the node: it moves down whole.
			_, pt, err := splitChildren(tx, para, i)
			return pt, err
		case caret.Offset >= total:
			_, pt, err := splitChildren(tx, para, i+1)
			return pt, err
		default:
			runes := []rune(n.Text())
			rightText := string(runes[caret.Offset:])
			if err := tx.SpliceText(n.Key(), caret.Offset, total-caret.Offset, ""); err != nil {
				return caret, err
			}
			rt, err := tx.CreateText(rightText)
			if err != nil {
				return caret, err
			}
			if err := tx.SetFormat(rt, n.Format()); err != nil {
				return caret, err
			}
			newPara, _, err := splitChildren(tx, para, i+1)
			if err != nil {
				return caret, err
			}
			if err := tx.InsertChild(newPara, 0, rt); err != nil {
				return caret, err
			}
			return selection.Point{Node: rt, Offset: 0}, nil
		}

	case isLeafNode(tx, n):
		para, i := placeOf(tx, n.Key())
		if para == node.NoKey {
			return caret, errNodeGone(tx, n.Key())
		}
		_, pt, err := splitChildren(tx, para, i+caret.Offset)
		return pt, err

	case n.Kind() == node.KindRoot:
		para, err := tx.CreateParagraph()
		if err != nil {
			return caret, err
		}
		if err := tx.InsertChild(n.Key(), caret.Offset, para); err != nil {
			return caret, err
		}
		return selection.Point{Node: para, Offset: 0}, nil

	default:
		_, pt, err := splitChildren(tx, n.Key(), caret.Offset)
		return pt, err
	}
}

// splitChildren moves the children of para from index onward into a
// new paragraph placed immediately after it. It returns the new
// paragraph and the caret, which lands on the first moved child or in
// the empty new paragraph.
func splitChildren(tx *WriteTx, para node.Key, index int) (node.Key, selection.Point, error) {
	root, j := placeOf(tx, para)
	if root == node.NoKey {
		return node.NoKey, selection.Point{}, errNodeGone(tx, para)
	}
	pn, _ := tx.Get(para)
	children := pn.Children()
	if index < 0 {
		index = 0
	}
	if index > len(children) {
		index = len(children)
	}

	newPara, err := tx.CreateParagraph()
	if err != nil {
		return node.NoKey, selection.Point{}, err
	}
	for _, c := range children[index:] {
		if err := tx.Detach(c); err != nil {
			return node.NoKey, selection.Point{}, err
		}
		if err := tx.AppendChild(newPara, c); err != nil {
			return node.NoKey, selection.Point{}, err
		}
	}
	if err := tx.InsertChild(root, j+1, newPara); err != nil {
		return node.NoKey, selection.Point{}, err
	}
	if moved := children[index:]; len(moved) > 0 {
		return newPara, selection.Point{Node: moved[0], Offset: 0}, nil
	}
	return newPara, selection.Point{Node: newPara, Offset: 0}, nil
}

// insertReferenceAt places an atomic reference node at the caret,
// splitting a text node when the caret is inside one. With no
// selection the reference is appended to the document's last block.
func insertReferenceAt(tx *WriteTx, id, title string) (node.Key, error) {
	caret, ok := collapseSelection(tx)
	if !ok {
		return appendReference(tx, id, title)
	}

	n, found := tx.Get(caret.Node)
	if !found {
		return node.NoKey, errNodeGone(tx, caret.Node)
	}

	ref, err := tx.CreateReference(id, title)
	if err != nil {
		return node.NoKey, err
	}

	switch {
	case n.Kind() == node.KindText:
		parent, i := placeOf(tx, n.Key())
		if parent == node.NoKey {
			return node.NoKey, errNodeGone(tx, n.Key())
		}
		total := runeLen(n.Text())
		off := caret.Offset
		if off > total {
			off = total
		}
		if off < total {
			runes := []rune(n.Text())
			rightText := string(runes[off:])
			if err := tx.SpliceText(n.Key(), off, total-off, ""); err != nil {
				return node.NoKey, err
			}
			rt, err := tx.CreateText(rightText)
			if err != nil {
				return node.NoKey, err
			}
			if err := tx.SetFormat(rt, n.Format()); err != nil {
				return node.NoKey, err
			}
			if err := tx.InsertChild(parent, i+1, rt); err != nil {
				return node.NoKey, err
			}
		}
		if err := tx.InsertChild(parent, i+1, ref); err != nil {
			return node.NoKey, err
		}

	case isLeafNode(tx, n):
		parent, i := placeOf(tx, n.Key())
		if parent == node.NoKey {
			return node.NoKey, errNodeGone(tx, n.Key())
		}
		if err := tx.InsertChild(parent, i+caret.Offset, ref); err != nil {
			return node.NoKey, err
		}

	case n.Kind() == node.KindRoot:
		para, err := tx.CreateParagraph()
		if err != nil {
			return node.NoKey, err
		}
		if err := tx.AppendChild(para, ref); err != nil {
			return node.NoKey, err
		}
		if err := tx.InsertChild(n.Key(), caret.Offset, para); err != nil {
			return node.NoKey, err
		}

	default:
		if err := tx.InsertChild(n.Key(), caret.Offset, ref); err != nil {
			return node.NoKey, err
		}
	}
	return ref, nil
}

// appendReference adds a reference at the very end of the document,
// minting a paragraph when the document is empty or ends with a
// non-block child.
func appendReference(tx *WriteTx, id, title string) (node.Key, error) {
	ref, err := tx.CreateReference(id, title)
	if err != nil {
		return node.NoKey, err
	}
	rn, ok := tx.Get(tx.Root())
	if !ok {
		return node.NoKey, errNodeGone(tx, tx.Root())
	}
	children := rn.Children()
	if len(children) > 0 {
		if last, ok := tx.Get(children[len(children)-1]); ok && last.Kind() == node.KindParagraph {
			if err := tx.AppendChild(last.Key(), ref); err != nil {
				return node.NoKey, err
			}
			return ref, nil
		}
	}
	para, err := tx.CreateParagraph()
	if err != nil {
		return node.NoKey, err
	}
	if err := tx.AppendChild(para, ref); err != nil {
		return node.NoKey, err
	}
	if err := tx.AppendChild(tx.Root(), para); err != nil {
		return node.NoKey, err
	}
	return ref, nil
}

// endPoint returns the caret position at the end of an element's
// content.
func endPoint(tx *WriteTx, el *node.Node) selection.Point {
	children := el.Children()
	if len(children) == 0 {
		return selection.Point{Node: el.Key(), Offset: 0}
	}
	last, ok := tx.Get(children[len(children)-1])
	if !ok {
		return selection.Point{Node: el.Key(), Offset: len(children)}
	}
	if last.Kind() == node.KindText {
		return selection.Point{Node: last.Key(), Offset: runeLen(last.Text())}
	}
	if isLeafNode(tx, last) {
		return selection.Point{Node: last.Key(), Offset: 1}
	}
	return selection.Point{Node: el.Key(), Offset: len(children)}
}

// endOffset returns the caret offset at the trailing edge of a node.
func endOffset(tx *WriteTx, key node.Key) int {
	n, ok := tx.Get(key)
	if !ok {
		return 0
	}
	if n.Kind() == node.KindText {
		return runeLen(n.Text())
	}
	if isLeafNode(tx, n) {
		return 1
	}
	return n.ChildCount()
}

// parentPoint returns the element position where a child currently
// sits, used as the caret fallback when the child is about to vanish.
func parentPoint(tx *WriteTx, key node.Key) selection.Point {
	parent, i := placeOf(tx, key)
	if parent == node.NoKey {
		return selection.Point{Node: tx.Root(), Offset: 0}
	}
	return selection.Point{Node: parent, Offset: i}
}

// placeOf returns a node's parent and its index among the parent's
// children, or NoKey when detached.
func placeOf(tx *WriteTx, key node.Key) (node.Key, int) {
	n, ok := tx.Get(key)
	if !ok || n.Parent() == node.NoKey {
		return node.NoKey, 0
	}
	pn, ok := tx.Get(n.Parent())
	if !ok {
		return node.NoKey, 0
	}
	for i, c := range pn.Children() {
		if c == key {
			return n.Parent(), i
		}
	}
	return node.NoKey, 0
}

func isLeafNode(tx *WriteTx, n *node.Node) bool {
	if n.Kind() == node.KindText {
		return false
	}
	b, ok := tx.Registry().Lookup(n.Kind())
	return ok && b.Leaf
}

func runeLen(s string) int { return len([]rune(s)) }

func errNodeGone(tx *WriteTx, key node.Key) error {
	err := fmt.Errorf("%w: key %d", node.ErrNotFound, key)
	tx.check(err)
	return err
}
