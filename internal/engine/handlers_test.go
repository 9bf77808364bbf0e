package engine

import (
	"testing"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
)

func rootChildren(t *testing.T, ed *Editor) []node.Key {
	t.Helper()
	var out []node.Key
	ed.Read(func(r *ReadTx) {
		rn, ok := r.Get(r.Root())
		if !ok {
			t.Fatal("root missing")
		}
		out = rn.Children()
	})
	return out
}

func childKinds(t *testing.T, ed *Editor, parent node.Key) []node.Kind {
	t.Helper()
	var out []node.Kind
	ed.Read(func(r *ReadTx) {
		pn, ok := r.Get(parent)
		if !ok {
			t.Fatalf("node %d missing", parent)
		}
		for _, c := range pn.Children() {
			n, _ := r.Get(c)
			out = append(out, n.Kind())
		}
	})
	return out
}

func kindsEqual(a, b []node.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func setCaret(t *testing.T, ed *Editor, k node.Key, offset int) {
	t.Helper()
	err := ed.Update(func(tx *WriteTx) error {
		return tx.SetSelection(selection.Caret(k, offset))
	})
	if err != nil {
		t.Fatalf("set caret: %v", err)
	}
}

func TestTypingMergesIntoOneNode(t *testing.T) {
	ed := New()
	seedTypingTarget(t, ed)

	for _, ch := range []string{"h", "i", "!"} {
		if !ed.Dispatch(command.InsertText, command.TextPayload{Text: ch}) {
			t.Fatalf("Dispatch(InsertText %q) = false", ch)
		}
	}

	para := rootChildren(t, ed)[0]
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, []node.Kind{node.KindText}) {
		t.Errorf("paragraph children = %v, want a single text node", kinds)
	}
	if got := ed.TextContent(); got != "hi!" {
		t.Errorf("TextContent() = %q, want %q", got, "hi!")
	}
}

func TestInsertTextMidNode(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "hd")
	setCaret(t, ed, txt, 1)

	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "ol"}) {
		t.Fatal("Dispatch(InsertText) = false")
	}
	if got := ed.TextContent(); got != "hold" {
		t.Errorf("TextContent() = %q, want %q", got, "hold")
	}
	if got := ed.Selection(); got != selection.Caret(txt, 3) {
		t.Errorf("Selection() = %+v, want caret at 3", got)
	}
}

func TestInsertTextReplacesRange(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "hello world")
	err := ed.Update(func(tx *WriteTx) error {
		return tx.SetSelection(selection.Selection{
			Anchor: selection.Point{Node: txt, Offset: 0},
			Focus:  selection.Point{Node: txt, Offset: 5},
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "goodbye"}) {
		t.Fatal("Dispatch(InsertText) = false")
	}
	if got := ed.TextContent(); got != "goodbye world" {
		t.Errorf("TextContent() = %q, want %q", got, "goodbye world")
	}
}

func TestInsertTextWithoutSelection(t *testing.T) {
	ed := New()
	if ed.Dispatch(command.InsertText, command.TextPayload{Text: "x"}) {
		t.Error("Dispatch(InsertText) with no selection = true")
	}
	if got := ed.Version(); got != 0 {
		t.Errorf("Version() = %d, want 0", got)
	}
}

func TestTypingAroundReference(t *testing.T) {
	ed := New()
	para, txt := seedText(t, ed, "a")
	var ref node.Key
	err := ed.Update(func(tx *WriteTx) error {
		var err error
		if ref, err = tx.CreateReference("r1", "R"); err != nil {
			return err
		}
		return tx.AppendChild(para, ref)
	})
	if err != nil {
		t.Fatal(err)
	}

	// After the reference: a fresh text node appears.
	setCaret(t, ed, ref, 1)
	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "b"}) {
		t.Fatal("Dispatch after reference = false")
	}
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, []node.Kind{node.KindText, node.KindReference, node.KindText}) {
		t.Fatalf("children = %v, want [text reference text]", kinds)
	}
	if got := ed.TextContent(); got != "aRb" {
		t.Errorf("TextContent() = %q, want %q", got, "aRb")
	}

	// Before the reference: merges into the preceding text node.
	setCaret(t, ed, ref, 0)
	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "+"}) {
		t.Fatal("Dispatch before reference = false")
	}
	ed.Read(func(r *ReadTx) {
		n, _ := r.Get(txt)
		if n.Text() != "a+" {
			t.Errorf("left text = %q, want %q", n.Text(), "a+")
		}
	})
	if got := ed.Selection(); got != selection.Caret(txt, 2) {
		t.Errorf("Selection() = %+v, want caret in merged text", got)
	}
}

func TestBackspaceSingleCharacter(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "hi")

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Fatal("Dispatch(DeleteCharacter) = false")
	}
	if got := ed.TextContent(); got != "h" {
		t.Errorf("TextContent() = %q, want %q", got, "h")
	}
	if got := ed.Selection(); got != selection.Caret(txt, 1) {
		t.Errorf("Selection() = %+v, want caret at 1", got)
	}
}

func TestBackspaceWholeGrapheme(t *testing.T) {
	ed := New()
	seedText(t, ed, "a\U0001F44D\U0001F3FD")

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Fatal("Dispatch(DeleteCharacter) = false")
	}
	if got := ed.TextContent(); got != "a" {
		t.Errorf("TextContent() = %q, want %q; modifier sequences delete whole", got, "a")
	}
}

func TestBackspaceLastCharacterPrunesNode(t *testing.T) {
	ed := New()
	para, _ := seedText(t, ed, "x")

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Fatal("Dispatch(DeleteCharacter) = false")
	}
	if got := ed.TextContent(); got != "" {
		t.Errorf("TextContent() = %q, want empty", got)
	}
	if kinds := childKinds(t, ed, para); len(kinds) != 0 {
		t.Errorf("paragraph children = %v, want none", kinds)
	}
	if got := ed.Selection(); got != selection.Caret(para, 0) {
		t.Errorf("Selection() = %+v, want caret in the emptied paragraph", got)
	}
}

func TestBackspaceAtBlockStartJoins(t *testing.T) {
	ed := New()
	_, txt1 := seedText(t, ed, "one")
	_, txt2 := seedText(t, ed, "two")
	setCaret(t, ed, txt2, 0)

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Fatal("Dispatch(DeleteCharacter) = false")
	}
	if got := len(rootChildren(t, ed)); got != 1 {
		t.Fatalf("root children = %d, want 1", got)
	}
	if got := ed.TextContent(); got != "onetwo" {
		t.Errorf("TextContent() = %q, want %q", got, "onetwo")
	}
	if got := ed.Selection(); got != selection.Caret(txt1, 3) {
		t.Errorf("Selection() = %+v, want caret at the junction", got)
	}
}

func TestBackspaceAtDocumentStart(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "x")
	setCaret(t, ed, txt, 0)
	before := ed.Version()

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Error("backspace at document start should still be claimed")
	}
	if got := ed.Version(); got != before {
		t.Errorf("Version() = %d, want %d; nothing should commit", got, before)
	}
	if got := ed.TextContent(); got != "x" {
		t.Errorf("TextContent() = %q, want %q", got, "x")
	}
}

func TestBackspaceRemovesReferenceWhole(t *testing.T) {
	ed := New()
	para, txt := seedText(t, ed, "a")
	var ref node.Key
	err := ed.Update(func(tx *WriteTx) error {
		var err error
		if ref, err = tx.CreateReference("r1", "Ref"); err != nil {
			return err
		}
		if err := tx.AppendChild(para, ref); err != nil {
			return err
		}
		return tx.SetSelection(selection.Caret(ref, 1))
	})
	if err != nil {
		t.Fatal(err)
	}

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Fatal("Dispatch(DeleteCharacter) = false")
	}
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, []node.Kind{node.KindText}) {
		t.Errorf("children = %v, want just the text node", kinds)
	}
	if got := ed.TextContent(); got != "a" {
		t.Errorf("TextContent() = %q, want %q", got, "a")
	}
	if got := ed.Selection(); got != selection.Caret(txt, 1) {
		t.Errorf("Selection() = %+v, want caret at end of text", got)
	}
}

func TestForwardDeleteCharacter(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "hi")
	setCaret(t, ed, txt, 0)

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{Forward: true}) {
		t.Fatal("Dispatch(DeleteCharacter forward) = false")
	}
	if got := ed.TextContent(); got != "i" {
		t.Errorf("TextContent() = %q, want %q", got, "i")
	}
	if got := ed.Selection(); got != selection.Caret(txt, 0) {
		t.Errorf("Selection() = %+v, want caret at 0", got)
	}
}

func TestForwardDeleteRemovesReference(t *testing.T) {
	ed := New()
	var para, ref node.Key
	err := ed.Update(func(tx *WriteTx) error {
		var err error
		if para, err = tx.CreateParagraph(); err != nil {
			return err
		}
		if ref, err = tx.CreateReference("r1", "Ref"); err != nil {
			return err
		}
		txt, err := tx.CreateText(" tail")
		if err != nil {
			return err
		}
		if err := tx.AppendChild(tx.Root(), para); err != nil {
			return err
		}
		if err := tx.AppendChild(para, ref); err != nil {
			return err
		}
		if err := tx.AppendChild(para, txt); err != nil {
			return err
		}
		return tx.SetSelection(selection.Caret(ref, 0))
	})
	if err != nil {
		t.Fatal(err)
	}

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{Forward: true}) {
		t.Fatal("Dispatch(DeleteCharacter forward) = false")
	}
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, []node.Kind{node.KindText}) {
		t.Errorf("children = %v, want just the text node", kinds)
	}
	if got := ed.TextContent(); got != " tail" {
		t.Errorf("TextContent() = %q, want %q", got, " tail")
	}
}

func TestForwardDeleteAtBlockEndJoins(t *testing.T) {
	ed := New()
	_, txt1 := seedText(t, ed, "one")
	seedText(t, ed, "two")
	setCaret(t, ed, txt1, 3)

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{Forward: true}) {
		t.Fatal("Dispatch(DeleteCharacter forward) = false")
	}
	if got := len(rootChildren(t, ed)); got != 1 {
		t.Fatalf("root children = %d, want 1", got)
	}
	if got := ed.TextContent(); got != "onetwo" {
		t.Errorf("TextContent() = %q, want %q", got, "onetwo")
	}
}

func TestEnterSplitsTextMidway(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "hello world")
	setCaret(t, ed, txt, 5)

	if !ed.Dispatch(command.InsertParagraph, nil) {
		t.Fatal("Dispatch(InsertParagraph) = false")
	}
	children := rootChildren(t, ed)
	if len(children) != 2 {
		t.Fatalf("root children = %d, want 2", len(children))
	}
	if got := ed.TextContent(); got != "hello\n world" {
		t.Errorf("TextContent() = %q, want %q", got, "hello\n world")
	}

	var rightText node.Key
	ed.Read(func(r *ReadTx) {
		second, _ := r.Get(children[1])
		if second.ChildCount() != 1 {
			t.Fatalf("second paragraph children = %d, want 1", second.ChildCount())
		}
		rightText = second.Children()[0]
	})
	if got := ed.Selection(); got != selection.Caret(rightText, 0) {
		t.Errorf("Selection() = %+v, want caret at start of moved text", got)
	}
}

func TestEnterAtTextEnd(t *testing.T) {
	ed := New()
	seedText(t, ed, "end")

	if !ed.Dispatch(command.InsertParagraph, nil) {
		t.Fatal("Dispatch(InsertParagraph) = false")
	}
	children := rootChildren(t, ed)
	if len(children) != 2 {
		t.Fatalf("root children = %d, want 2", len(children))
	}
	ed.Read(func(r *ReadTx) {
		second, _ := r.Get(children[1])
		if second.ChildCount() != 0 {
			t.Errorf("new paragraph children = %d, want 0", second.ChildCount())
		}
	})
	if got := ed.Selection(); got != selection.Caret(children[1], 0) {
		t.Errorf("Selection() = %+v, want caret in empty new paragraph", got)
	}
}

func TestEnterAtTextStart(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "below")
	setCaret(t, ed, txt, 0)

	if !ed.Dispatch(command.InsertParagraph, nil) {
		t.Fatal("Dispatch(InsertParagraph) = false")
	}
	children := rootChildren(t, ed)
	if len(children) != 2 {
		t.Fatalf("root children = %d, want 2", len(children))
	}
	if got := ed.TextContent(); got != "\nbelow" {
		t.Errorf("TextContent() = %q, want %q", got, "\nbelow")
	}
	// The text node moved whole; its identity survives.
	if got := ed.Selection(); got != selection.Caret(txt, 0) {
		t.Errorf("Selection() = %+v, want caret on original text node", got)
	}
}

func TestInsertReferenceWithoutSelectionAppends(t *testing.T) {
	ed := New()
	if !ed.Dispatch(command.InsertReference, command.ReferencePayload{ID: "z9", Title: "Zed"}) {
		t.Fatal("Dispatch(InsertReference) = false")
	}
	children := rootChildren(t, ed)
	if len(children) != 1 {
		t.Fatalf("root children = %d, want 1", len(children))
	}
	if kinds := childKinds(t, ed, children[0]); !kindsEqual(kinds, []node.Kind{node.KindReference}) {
		t.Errorf("paragraph children = %v, want [reference]", kinds)
	}
	if got := ed.TextContent(); got != "Zed" {
		t.Errorf("TextContent() = %q, want %q", got, "Zed")
	}
}

func TestInsertReferenceRequiresID(t *testing.T) {
	ed := New()
	seedText(t, ed, "x")
	if ed.Dispatch(command.InsertReference, command.ReferencePayload{Title: "no id"}) {
		t.Error("Dispatch(InsertReference) without id = true")
	}
	if got := ed.Version(); got != 1 {
		t.Errorf("Version() = %d, want 1", got)
	}
}

func TestSetSelectionDispatch(t *testing.T) {
	ed := New()
	_, txt := seedText(t, ed, "abc")

	if !ed.Dispatch(command.SetSelection, command.SelectionPayload{Selection: selection.Caret(txt, 1)}) {
		t.Fatal("Dispatch(SetSelection) = false")
	}
	if got := ed.Selection(); got != selection.Caret(txt, 1) {
		t.Errorf("Selection() = %+v, want caret at 1", got)
	}
	if got := ed.Version(); got != 2 {
		t.Errorf("Version() = %d, selection commit should bump once", got)
	}
}
