// Package serial converts document trees to and from their JSON wire
// form. The format nests nodes under a single "root" object; every
// node carries its type discriminant, a schema version, and its
// payload fields. Node keys are runtime identity and never serialize.
//
// Serialization is total: transient placeholders are written as the
// literal text a reader would have typed, with a recorded warning.
// Deserialization is tolerant: nodes with unknown discriminants or
// unusable payloads are dropped with recorded warnings while their
// siblings survive.
package serial

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dshills/inkwell/internal/engine/node"
)

// SchemaVersion is stamped on every serialized node.
const SchemaVersion = 1

// Warning records a non-fatal irregularity encountered while
// converting.
type Warning struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (w Warning) String() string { return w.Kind + ": " + w.Detail }

// Warning kinds.
const (
	WarnUnknownKind   = "unknown-kind"
	WarnBadPayload    = "bad-payload"
	WarnTransientNode = "transient-node"
)

type sNode struct {
	Type        string            `json:"type"`
	Version     int               `json:"version"`
	Children    []*sNode          `json:"children,omitempty"`
	Text        string            `json:"text,omitempty"`
	Format      int               `json:"format,omitempty"`
	TargetID    string            `json:"targetId,omitempty"`
	DisplayText string            `json:"displayText,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty"`
}

type document struct {
	Root *sNode `json:"root"`
}

// Serialize writes the tree as compact JSON. Transient nodes fall back
// to plain text and are reported in the warnings.
func Serialize(tree *node.Tree) ([]byte, []Warning, error) {
	return serialize(tree, false)
}

// SerializeIndent writes the tree as indented JSON for humans.
func SerializeIndent(tree *node.Tree) ([]byte, []Warning, error) {
	return serialize(tree, true)
}

func serialize(tree *node.Tree, indent bool) ([]byte, []Warning, error) {
	rn, ok := tree.Get(tree.Root())
	if !ok {
		return nil, nil, fmt.Errorf("serialize: %w: root", node.ErrNotFound)
	}
	var warnings []Warning
	root := exportNode(tree, rn, &warnings)

	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(document{Root: root}, "", "  ")
	} else {
		data, err = json.Marshal(document{Root: root})
	}
	if err != nil {
		return nil, warnings, fmt.Errorf("serialize: %w", err)
	}
	return data, warnings, nil
}

func exportNode(tree *node.Tree, n *node.Node, warnings *[]Warning) *sNode {
	reg := tree.Registry()
	if b, ok := reg.Lookup(n.Kind()); ok && b.Transient {
		text := ""
		if b.Fallback != nil {
			text = b.Fallback(n)
		}
		*warnings = append(*warnings, Warning{
			Kind:   WarnTransientNode,
			Detail: fmt.Sprintf("%s written as text %q", n.Kind(), text),
		})
		return &sNode{Type: string(node.KindText), Version: SchemaVersion, Text: text}
	}

	s := &sNode{Type: string(n.Kind()), Version: SchemaVersion}
	switch n.Kind() {
	case node.KindText:
		s.Text = n.Text()
		s.Format = int(n.Format())
	case node.KindReference:
		s.TargetID = n.Target()
		s.DisplayText = n.Label()
	case node.KindRoot, node.KindParagraph:
	default:
		s.Attrs = n.Attrs()
	}
	for _, ck := range n.Children() {
		cn, ok := tree.Get(ck)
		if !ok {
			continue
		}
		s.Children = append(s.Children, exportNode(tree, cn, warnings))
	}
	return s
}

// Deserialize rebuilds a sealed tree from JSON, validating every
// discriminant against the registry. The returned warnings list what
// was dropped or rewritten; a nil error means the resulting tree is
// structurally valid.
func Deserialize(data []byte, reg *node.Registry) (*node.Tree, []Warning, error) {
	if !gjson.ValidBytes(data) {
		return nil, nil, fmt.Errorf("deserialize: %w", ErrMalformed)
	}
	rootRaw := gjson.GetBytes(data, "root")
	if !rootRaw.Exists() {
		return nil, nil, fmt.Errorf("deserialize: %w: no root object", ErrMalformed)
	}
	if rootRaw.Get("type").String() != string(node.KindRoot) {
		return nil, nil, fmt.Errorf("deserialize: %w: root type %q", ErrMalformed, rootRaw.Get("type").String())
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("deserialize: %w: %v", ErrMalformed, err)
	}

	tree := node.NewTree(reg)
	var warnings []Warning
	for _, child := range doc.Root.Children {
		if err := importNode(tree, tree.Root(), child, &warnings); err != nil {
			return nil, warnings, err
		}
	}
	if _, err := tree.PruneEmptyText(); err != nil {
		return nil, warnings, fmt.Errorf("deserialize: %w", err)
	}
	if err := tree.Validate(); err != nil {
		return nil, warnings, fmt.Errorf("deserialize: %w", err)
	}
	tree.Seal()
	return tree, warnings, nil
}

func importNode(tree *node.Tree, parent node.Key, s *sNode, warnings *[]Warning) error {
	if s == nil {
		return nil
	}
	kind := node.Kind(s.Type)
	reg := tree.Registry()

	if !reg.Known(kind) {
		*warnings = append(*warnings, Warning{
			Kind:   WarnUnknownKind,
			Detail: fmt.Sprintf("dropped node of kind %q", s.Type),
		})
		return nil
	}

	var (
		key node.Key
		err error
	)
	switch kind {
	case node.KindRoot:
		*warnings = append(*warnings, Warning{
			Kind:   WarnBadPayload,
			Detail: "nested root dropped",
		})
		return nil
	case node.KindParagraph:
		key, err = tree.CreateParagraph()
	case node.KindText:
		key, err = tree.CreateText(s.Text)
		if err == nil && s.Format != 0 {
			err = tree.SetFormat(key, node.Format(s.Format))
		}
	case node.KindReference:
		if s.TargetID == "" {
			*warnings = append(*warnings, Warning{
				Kind:   WarnBadPayload,
				Detail: fmt.Sprintf("reference %q has no target, dropped", s.DisplayText),
			})
			return nil
		}
		key, err = tree.CreateReference(s.TargetID, s.DisplayText)
	default:
		b, _ := reg.Lookup(kind)
		if b.Transient {
			// Transient kinds never hydrate; restore their literal form.
			text := s.Text
			if text == "" {
				text = node.TriggerSequence
			}
			*warnings = append(*warnings, Warning{
				Kind:   WarnTransientNode,
				Detail: fmt.Sprintf("transient %q hydrated as text %q", s.Type, text),
			})
			key, err = tree.CreateText(text)
		} else {
			key, err = tree.CreateCustom(kind, s.Attrs)
		}
	}
	if err != nil {
		return fmt.Errorf("deserialize %s: %w", s.Type, err)
	}
	if err := tree.AppendChild(parent, key); err != nil {
		return fmt.Errorf("deserialize %s: %w", s.Type, err)
	}
	if len(s.Children) > 0 {
		n, _ := tree.Get(key)
		if b, ok := reg.Lookup(n.Kind()); ok && b.Leaf {
			*warnings = append(*warnings, Warning{
				Kind:   WarnBadPayload,
				Detail: fmt.Sprintf("children of leaf %q dropped", s.Type),
			})
			return nil
		}
	}
	for _, child := range s.Children {
		if err := importNode(tree, key, child, warnings); err != nil {
			return err
		}
	}
	return nil
}
