// Package selection models the caret and range selection carried by
// every snapshot. Points address a node by key plus a rune offset, so
// a selection stays meaningful across copy-on-write forks.
package selection

import "github.com/dshills/inkwell/internal/engine/node"

// Point is one end of a selection: a node key and a rune offset
// within that node's text. For non-text nodes the offset is the child
// index boundary.
type Point struct {
	Node   node.Key
	Offset int
}

// IsZero reports an unset point.
func (p Point) IsZero() bool { return p.Node == node.NoKey }

// Selection spans Anchor to Focus. Anchor is where the selection
// began; Focus moves with the caret.
type Selection struct {
	Anchor Point
	Focus  Point
}

// Caret returns a collapsed selection at the given position.
func Caret(k node.Key, offset int) Selection {
	p := Point{Node: k, Offset: offset}
	return Selection{Anchor: p, Focus: p}
}

// IsZero reports that no selection is set.
func (s Selection) IsZero() bool { return s.Anchor.IsZero() && s.Focus.IsZero() }

// Collapsed reports a caret with no extent.
func (s Selection) Collapsed() bool { return s.Anchor == s.Focus }

// Within reports whether both ends sit inside the given node.
func (s Selection) Within(k node.Key) bool {
	return s.Anchor.Node == k && s.Focus.Node == k
}

// Touches reports whether either end sits inside the given node.
func (s Selection) Touches(k node.Key) bool {
	return s.Anchor.Node == k || s.Focus.Node == k
}

// TransformSplice maps the selection across a text splice in node k:
// del runes removed at offset at, ins runes inserted. Points before
// the splice are unchanged; points inside the removed span clamp to
// the splice start; points after it shift by the length delta.
func (s Selection) TransformSplice(k node.Key, at, del, ins int) Selection {
	s.Anchor = transformPoint(s.Anchor, k, at, del, ins)
	s.Focus = transformPoint(s.Focus, k, at, del, ins)
	return s
}

func transformPoint(p Point, k node.Key, at, del, ins int) Point {
	if p.Node != k || p.Offset < at {
		return p
	}
	if p.Offset <= at+del {
		p.Offset = at + ins
		return p
	}
	p.Offset += ins - del
	return p
}
