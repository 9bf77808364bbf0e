package engine

import (
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
)

// State is one immutable generation of a document: a sealed node tree,
// the selection that accompanied it, and the version counter at the
// time it was committed. States are shared freely between readers,
// listeners, and the history manager; none of them may observe a
// change.
type State struct {
	tree    *node.Tree
	sel     selection.Selection
	version uint64
}

// Tree returns the sealed node tree.
func (s *State) Tree() *node.Tree { return s.tree }

// Selection returns the selection recorded with this generation.
func (s *State) Selection() selection.Selection { return s.sel }

// Version returns the generation counter. Versions increase by one per
// committed update and never regress, including across undo.
func (s *State) Version() uint64 { return s.version }

// TextContent returns the concatenated document text, blocks joined
// with newlines.
func (s *State) TextContent() string {
	text, err := s.tree.TextContent(s.tree.Root())
	if err != nil {
		return ""
	}
	return text
}
