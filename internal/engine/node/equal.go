package node

import "sort"

// Diff returns the keys whose nodes differ between two trees in the
// same lineage, sorted ascending. Structural sharing makes pointer
// identity the comparison: a key maps to dirty when its *Node value
// changed or when it exists in only one tree.
func Diff(a, b *Tree) []Key {
	set := make(map[Key]struct{})
	for k, n := range a.nodes {
		if bn, ok := b.nodes[k]; !ok || bn != n {
			set[k] = struct{}{}
		}
	}
	for k := range b.nodes {
		if _, ok := a.nodes[k]; !ok {
			set[k] = struct{}{}
		}
	}
	out := make([]Key, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports structural equality of two trees: same shape, kinds,
// and payloads position for position. Keys are ignored, so a
// serialization round trip compares equal even though the rebuilt tree
// mints fresh keys.
func Equal(a, b *Tree) bool {
	an, aok := a.Get(a.Root())
	bn, bok := b.Get(b.Root())
	if !aok || !bok {
		return aok == bok
	}
	return equalNodes(a, an, b, bn)
}

func equalNodes(at *Tree, a *Node, bt *Tree, b *Node) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindText:
		if a.text != b.text || a.format != b.format {
			return false
		}
	case KindReference:
		if a.target != b.target || a.label != b.label {
			return false
		}
	case KindPlaceholder:
		if a.start != b.start || a.query != b.query {
			return false
		}
	default:
		if len(a.attrs) != len(b.attrs) {
			return false
		}
		for k, v := range a.attrs {
			if b.attrs[k] != v {
				return false
			}
		}
	}
	if len(a.children) != len(b.children) {
		return false
	}
	for i := range a.children {
		ac, aok := at.Get(a.children[i])
		bc, bok := bt.Get(b.children[i])
		if !aok || !bok {
			return false
		}
		if !equalNodes(at, ac, bt, bc) {
			return false
		}
	}
	return true
}
