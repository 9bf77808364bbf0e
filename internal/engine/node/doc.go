// Package node implements the document model: a tree of typed nodes
// addressed by stable keys.
//
// A document is a Tree holding a key-to-node table and a single root.
// Element nodes (root, paragraph) own an ordered list of child keys;
// leaf nodes (text, reference, placeholder) carry payload and never
// have children. Parent back-references exist for lookup only and are
// never followed to establish ownership.
//
// Trees are copy-on-write. A sealed Tree is immutable; Fork produces a
// mutable descendant that shares every untouched node with its base.
// Mutating a node inside a fork first clones that one node into the
// fork, so earlier snapshots are never disturbed. Keys survive the
// clone: a node keeps its key for its whole life in the document, and
// fresh keys are minted only by Create* and Duplicate.
//
// The Registry maps type discriminants to per-kind behavior (leaf-ness,
// payload validation, render hints, serialization fallback) and may be
// extended with custom kinds without touching the engine.
package node
