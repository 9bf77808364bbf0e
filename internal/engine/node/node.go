package node

// Key uniquely identifies a node within one document lineage. Keys are
// stable across in-place mutation: forking a tree and rewriting a node
// preserves the key. A fresh key is minted only when a node is created
// or duplicated. The zero Key is never assigned.
type Key uint64

// NoKey is the absent key.
const NoKey Key = 0

// Kind is a node type discriminant. The five built-in kinds cover the
// core document model; embedders may register further kinds through a
// Registry.
type Kind string

const (
	KindRoot        Kind = "root"
	KindParagraph   Kind = "paragraph"
	KindText        Kind = "text"
	KindReference   Kind = "reference"
	KindPlaceholder Kind = "placeholder"
)

// Format is a bitmask of inline text styles carried by text nodes.
// The engine stores and round-trips these flags; it does not implement
// toggling commands.
type Format uint8

const (
	FormatBold Format = 1 << iota
	FormatItalic
	FormatStrikethrough
	FormatUnderline
	FormatCode
)

// Has reports whether all bits in mask are set.
func (f Format) Has(mask Format) bool { return f&mask == mask }

// Node is a tagged variant: kind selects which payload fields are
// meaningful. Fields are unexported so a Node obtained from a tree is
// read-only outside this package; all mutation goes through Tree
// methods, which enforce the seal.
type Node struct {
	key      Key
	kind     Kind
	parent   Key
	children []Key

	// KindText
	text   string
	format Format

	// KindReference
	target string
	label  string

	// KindPlaceholder
	start int
	query string

	// custom registered kinds
	attrs map[string]string
}

// Key returns the node's stable key.
func (n *Node) Key() Key { return n.key }

// Kind returns the type discriminant.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the parent key, or NoKey for the root and for nodes
// not yet attached.
func (n *Node) Parent() Key { return n.parent }

// Children returns a copy of the ordered child keys.
func (n *Node) Children() []Key {
	if len(n.children) == 0 {
		return nil
	}
	out := make([]Key, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of children without copying.
func (n *Node) ChildCount() int { return len(n.children) }

// Text returns the content of a text node, or "" for other kinds.
func (n *Node) Text() string { return n.text }

// Format returns the style flags of a text node.
func (n *Node) Format() Format { return n.format }

// Target returns the referenced document id of a reference node.
func (n *Node) Target() string { return n.target }

// Label returns the display text of a reference node.
func (n *Node) Label() string { return n.label }

// Start returns the text offset at which a placeholder's trigger
// sequence began, relative to the surrounding text flow.
func (n *Node) Start() int { return n.start }

// Query returns the in-progress search query of a placeholder node.
func (n *Node) Query() string { return n.query }

// Attr returns a payload attribute of a custom-kind node.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// Attrs returns a copy of a custom-kind node's attributes.
func (n *Node) Attrs() map[string]string {
	if len(n.attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// clone copies the node for copy-on-write. The key is preserved; the
// clone is the same logical node in a younger tree.
func (n *Node) clone(cloneAttrs func(map[string]string) map[string]string) *Node {
	c := *n
	if len(n.children) > 0 {
		c.children = make([]Key, len(n.children))
		copy(c.children, n.children)
	}
	if n.attrs != nil {
		if cloneAttrs != nil {
			c.attrs = cloneAttrs(n.attrs)
		} else {
			c.attrs = make(map[string]string, len(n.attrs))
			for k, v := range n.attrs {
				c.attrs[k] = v
			}
		}
	}
	return &c
}

// isLeaf reports built-in leaf-ness. Custom kinds consult the registry.
func (n *Node) isLeaf(reg *Registry) bool {
	switch n.kind {
	case KindRoot, KindParagraph:
		return false
	case KindText, KindReference, KindPlaceholder:
		return true
	default:
		if b, ok := reg.Lookup(n.kind); ok {
			return b.Leaf
		}
		return true
	}
}
