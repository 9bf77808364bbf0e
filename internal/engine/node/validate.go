package node

import "fmt"

// Validate checks the structural invariants a tree must satisfy before
// a transaction may commit: exactly one root, all nodes reachable from
// it, parent and child links in agreement, leaves childless, and every
// payload accepted by its kind's validation hook. The first violation
// found is returned wrapped in ErrInvariant.
func (t *Tree) Validate() error {
	root, ok := t.nodes[t.root]
	if !ok {
		return fmt.Errorf("%w: root key %d missing", ErrInvariant, t.root)
	}
	if root.kind != KindRoot {
		return fmt.Errorf("%w: root key %d has kind %s", ErrInvariant, t.root, root.kind)
	}
	if root.parent != NoKey {
		return fmt.Errorf("%w: root has parent %d", ErrInvariant, root.parent)
	}

	seen := make(map[Key]struct{}, len(t.nodes))
	var visit func(n *Node) error
	visit = func(n *Node) error {
		if _, dup := seen[n.key]; dup {
			return fmt.Errorf("%w: cycle through key %d", ErrInvariant, n.key)
		}
		seen[n.key] = struct{}{}
		if n.key != t.root && n.kind == KindRoot {
			return fmt.Errorf("%w: second root at key %d", ErrInvariant, n.key)
		}
		if len(n.children) > 0 && n.isLeaf(t.reg) {
			return fmt.Errorf("%w: leaf %s key %d has children", ErrInvariant, n.kind, n.key)
		}
		if err := t.reg.ValidateNode(n); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		for _, ck := range n.children {
			c, ok := t.nodes[ck]
			if !ok {
				return fmt.Errorf("%w: key %d lists missing child %d", ErrInvariant, n.key, ck)
			}
			if c.parent != n.key {
				return fmt.Errorf("%w: child %d names parent %d, owned by %d", ErrInvariant, ck, c.parent, n.key)
			}
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return err
	}

	if len(seen) != len(t.nodes) {
		for k := range t.nodes {
			if _, ok := seen[k]; !ok {
				return fmt.Errorf("%w: key %d unreachable from root", ErrInvariant, k)
			}
		}
	}
	return nil
}
