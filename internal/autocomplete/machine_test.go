package autocomplete

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
	"github.com/dshills/inkwell/internal/search"
)

// stubSearcher answers every query with the same canned results.
type stubSearcher struct {
	mu      sync.Mutex
	results []search.Result
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	out := make([]search.Result, len(s.results))
	copy(out, s.results)
	return out, nil
}

func (s *stubSearcher) seen(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queries {
		if q == query {
			return true
		}
	}
	return false
}

// gateSearcher blocks each query on a channel so tests control response
// order.
type gateSearcher struct {
	mu    sync.Mutex
	gates map[string]chan []search.Result
}

func newGateSearcher(queries ...string) *gateSearcher {
	g := &gateSearcher{gates: make(map[string]chan []search.Result)}
	for _, q := range queries {
		g.gates[q] = make(chan []search.Result, 1)
	}
	return g
}

func (g *gateSearcher) Search(ctx context.Context, query string) ([]search.Result, error) {
	g.mu.Lock()
	ch, ok := g.gates[query]
	g.mu.Unlock()
	if !ok {
		return nil, nil
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gateSearcher) release(query string, results []search.Result) {
	g.mu.Lock()
	ch := g.gates[query]
	g.mu.Unlock()
	ch <- results
}

type failSearcher struct{}

func (failSearcher) Search(context.Context, string) ([]search.Result, error) {
	return nil, errors.New("index offline")
}

func seedText(t *testing.T, ed *engine.Editor, text string) (para, txt node.Key) {
	t.Helper()
	err := ed.Update(func(tx *engine.WriteTx) error {
		var err error
		if para, err = tx.CreateParagraph(); err != nil {
			return err
		}
		if txt, err = tx.CreateText(text); err != nil {
			return err
		}
		if err := tx.AppendChild(tx.Root(), para); err != nil {
			return err
		}
		if err := tx.AppendChild(para, txt); err != nil {
			return err
		}
		return tx.SetSelection(selection.Caret(txt, len([]rune(text))))
	})
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return para, txt
}

func seedParagraph(t *testing.T, ed *engine.Editor) node.Key {
	t.Helper()
	var para node.Key
	err := ed.Update(func(tx *engine.WriteTx) error {
		var err error
		if para, err = tx.CreateParagraph(); err != nil {
			return err
		}
		if err := tx.AppendChild(tx.Root(), para); err != nil {
			return err
		}
		return tx.SetSelection(selection.Caret(para, 0))
	})
	if err != nil {
		t.Fatalf("seed paragraph: %v", err)
	}
	return para
}

func setCaret(t *testing.T, ed *engine.Editor, k node.Key, offset int) {
	t.Helper()
	err := ed.Update(func(tx *engine.WriteTx) error {
		return tx.SetSelection(selection.Caret(k, offset))
	})
	if err != nil {
		t.Fatalf("set caret: %v", err)
	}
}

func typeText(t *testing.T, ed *engine.Editor, chunks ...string) {
	t.Helper()
	for _, ch := range chunks {
		if !ed.Dispatch(command.InsertText, command.TextPayload{Text: ch}) {
			t.Fatalf("Dispatch(InsertText %q) = false", ch)
		}
	}
}

func findKind(t *testing.T, ed *engine.Editor, kind node.Kind) []node.Key {
	t.Helper()
	var out []node.Key
	ed.Read(func(r *engine.ReadTx) {
		r.Walk(func(n *node.Node) bool {
			if n.Kind() == kind {
				out = append(out, n.Key())
			}
			return true
		})
	})
	return out
}

func nodeQuery(t *testing.T, ed *engine.Editor, key node.Key) string {
	t.Helper()
	var q string
	ed.Read(func(r *engine.ReadTx) {
		n, ok := r.Get(key)
		if !ok {
			t.Fatalf("node %d missing", key)
		}
		q = n.Query()
	})
	return q
}

func childKinds(t *testing.T, ed *engine.Editor, parent node.Key) []node.Kind {
	t.Helper()
	var out []node.Kind
	ed.Read(func(r *engine.ReadTx) {
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

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func openEpisode(t *testing.T, ed *engine.Editor, m *Machine) node.Key {
	t.Helper()
	typeText(t, ed, "[", "[")
	if m.Phase() != Triggered {
		t.Fatal("phase != Triggered after trigger pair")
	}
	phs := findKind(t, ed, node.KindPlaceholder)
	if len(phs) != 1 {
		t.Fatalf("placeholder count = %d, want 1", len(phs))
	}
	return phs[0]
}

func TestSecondMarkerOpensEpisode(t *testing.T) {
	ed := engine.New()
	seedText(t, ed, "[")
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()

	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "["}) {
		t.Fatal("Dispatch(InsertText) = false")
	}
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered", m.Phase())
	}
	if got := ed.TextContent(); got != "[[" {
		t.Errorf("TextContent() = %q, want %q", got, "[[")
	}
	phs := findKind(t, ed, node.KindPlaceholder)
	if len(phs) != 1 {
		t.Fatalf("placeholder count = %d, want 1", len(phs))
	}
	if got := ed.Selection(); got != selection.Caret(phs[0], 1) {
		t.Errorf("Selection() = %+v, want caret on placeholder", got)
	}
	d := m.Dropdown()
	if !d.Visible || d.Query != "" {
		t.Errorf("Dropdown() = %+v, want visible with empty query", d)
	}
}

func TestPastedPairOpensEpisode(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()

	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "[["}) {
		t.Fatal("Dispatch(InsertText) = false")
	}
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered", m.Phase())
	}
	if got := ed.TextContent(); got != "[[" {
		t.Errorf("TextContent() = %q, want %q", got, "[[")
	}
}

func TestTriggerSplitsSurroundingText(t *testing.T) {
	ed := engine.New()
	para, txt := seedText(t, ed, "ab")
	setCaret(t, ed, txt, 1)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()

	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "[["}) {
		t.Fatal("Dispatch(InsertText) = false")
	}
	want := []node.Kind{node.KindText, node.KindPlaceholder, node.KindText}
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, want) {
		t.Errorf("paragraph children = %v, want %v", kinds, want)
	}
	if got := ed.TextContent(); got != "a[[b" {
		t.Errorf("TextContent() = %q, want %q", got, "a[[b")
	}
}

func TestMarkerAfterPlainTextStaysLiteral(t *testing.T) {
	ed := engine.New()
	seedText(t, ed, "x")
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()

	typeText(t, ed, "[")
	if m.Phase() != Idle {
		t.Errorf("Phase() = %v, want Idle after single marker", m.Phase())
	}
	if got := ed.TextContent(); got != "x[" {
		t.Errorf("TextContent() = %q, want %q", got, "x[")
	}
}

func TestTypingExtendsQuery(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	ph := openEpisode(t, ed, m)

	typeText(t, ed, "t", "e")
	if got := nodeQuery(t, ed, ph); got != "te" {
		t.Errorf("placeholder query = %q, want %q", got, "te")
	}
	if got := m.Dropdown().Query; got != "te" {
		t.Errorf("dropdown query = %q, want %q", got, "te")
	}
	waitFor(t, "query search", func() bool { return st.seen("te") })
	if got := ed.TextContent(); got != "[[te" {
		t.Errorf("TextContent() = %q, want %q", got, "[[te")
	}
}

func TestQueryKeystrokesCoalesce(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	ph := openEpisode(t, ed, m)

	typeText(t, ed, "t", "e", "s")
	if got := nodeQuery(t, ed, ph); got != "tes" {
		t.Fatalf("placeholder query = %q, want %q", got, "tes")
	}

	// One undo folds the whole typed query away without closing the
	// episode.
	if !ed.Undo() {
		t.Fatal("Undo() = false")
	}
	if got := nodeQuery(t, ed, ph); got != "" {
		t.Errorf("placeholder query after undo = %q, want empty", got)
	}
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered after undo", m.Phase())
	}
}

func TestConfirmReplacesPlaceholder(t *testing.T) {
	ed := engine.New()
	para, _ := seedText(t, ed, "note ")
	st := &stubSearcher{results: []search.Result{{ID: "p1", Title: "Testing Page"}}}
	m := New(ed, st)
	defer m.Close()

	typeText(t, ed, "[", "[", "t", "e", "s")
	waitFor(t, "results for tes", func() bool {
		d := m.Dropdown()
		return d.Query == "tes" && !d.Searching && len(d.Items) == 1
	})

	if !ed.Dispatch(command.KeyEnter, nil) {
		t.Fatal("Dispatch(KeyEnter) = false")
	}
	if m.Phase() != Idle {
		t.Errorf("Phase() = %v, want Idle after confirm", m.Phase())
	}
	want := []node.Kind{node.KindText, node.KindReference}
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, want) {
		t.Fatalf("paragraph children = %v, want %v", kinds, want)
	}
	refs := findKind(t, ed, node.KindReference)
	if len(refs) != 1 {
		t.Fatalf("reference count = %d, want 1", len(refs))
	}
	ed.Read(func(r *engine.ReadTx) {
		n, _ := r.Get(refs[0])
		if n.Target() != "p1" || n.Label() != "Testing Page" {
			t.Errorf("reference = %q/%q, want p1/Testing Page", n.Target(), n.Label())
		}
	})
	if got := ed.TextContent(); got != "note Testing Page" {
		t.Errorf("TextContent() = %q, want %q", got, "note Testing Page")
	}
	if strings.Contains(ed.TextContent(), "[") {
		t.Error("marker text survived the confirm")
	}
	if got := ed.Selection(); got != selection.Caret(refs[0], 1) {
		t.Errorf("Selection() = %+v, want caret after reference", got)
	}
	if phs := findKind(t, ed, node.KindPlaceholder); len(phs) != 0 {
		t.Errorf("placeholder count = %d, want 0", len(phs))
	}
}

func TestEnterWithoutResultsKeepsEpisode(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	ph := openEpisode(t, ed, m)

	waitFor(t, "empty delivery", func() bool { return !m.Dropdown().Searching })
	if !ed.Dispatch(command.KeyEnter, nil) {
		t.Fatal("Dispatch(KeyEnter) = false, want claimed")
	}
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered", m.Phase())
	}
	if _, ok := findOne(t, ed, ph); !ok {
		t.Error("placeholder gone after empty confirm")
	}
}

func findOne(t *testing.T, ed *engine.Editor, key node.Key) (*node.Node, bool) {
	t.Helper()
	var n *node.Node
	var ok bool
	ed.Read(func(r *engine.ReadTx) { n, ok = r.Get(key) })
	return n, ok
}

func TestBackspaceShrinksQueryByGrapheme(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	ph := openEpisode(t, ed, m)

	typeText(t, ed, "a", "\U0001F44D\U0001F3FD")
	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Fatal("Dispatch(DeleteCharacter) = false")
	}
	if got := nodeQuery(t, ed, ph); got != "a" {
		t.Errorf("placeholder query = %q, want %q", got, "a")
	}
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered", m.Phase())
	}
}

func TestBackspaceAtTriggerBoundaryCancels(t *testing.T) {
	ed := engine.New()
	para, _ := seedText(t, ed, "x")
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	openEpisode(t, ed, m)

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{}) {
		t.Fatal("Dispatch(DeleteCharacter) = false")
	}
	if m.Phase() != Idle {
		t.Errorf("Phase() = %v, want Idle", m.Phase())
	}
	// Only the first marker remains, as if the second was never typed.
	if got := ed.TextContent(); got != "x[" {
		t.Errorf("TextContent() = %q, want %q", got, "x[")
	}
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, []node.Kind{node.KindText}) {
		t.Errorf("paragraph children = %v, want a single text node", kinds)
	}
}

func TestEscapeRestoresTypedText(t *testing.T) {
	ed := engine.New()
	_, txt := seedText(t, ed, "x")
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	openEpisode(t, ed, m)
	typeText(t, ed, "a", "b")

	if !ed.Dispatch(command.KeyEscape, nil) {
		t.Fatal("Dispatch(KeyEscape) = false")
	}
	if m.Phase() != Idle {
		t.Errorf("Phase() = %v, want Idle", m.Phase())
	}
	if got := ed.TextContent(); got != "x[[ab" {
		t.Errorf("TextContent() = %q, want %q", got, "x[[ab")
	}
	if phs := findKind(t, ed, node.KindPlaceholder); len(phs) != 0 {
		t.Errorf("placeholder count = %d, want 0", len(phs))
	}
	if got := ed.Selection(); got != selection.Caret(txt, 5) {
		t.Errorf("Selection() = %+v, want caret after restored text", got)
	}
}

func TestCaretExitCancels(t *testing.T) {
	ed := engine.New()
	_, txt := seedText(t, ed, "x")
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	openEpisode(t, ed, m)
	typeText(t, ed, "q")

	if !ed.Dispatch(command.SetSelection, command.SelectionPayload{
		Selection: selection.Caret(txt, 0),
	}) {
		t.Fatal("Dispatch(SetSelection) = false")
	}
	if m.Phase() != Idle {
		t.Errorf("Phase() = %v, want Idle after caret exit", m.Phase())
	}
	if got := ed.TextContent(); got != "x[[q" {
		t.Errorf("TextContent() = %q, want %q", got, "x[[q")
	}
	// The caret stays where the user put it.
	if got := ed.Selection(); got != selection.Caret(txt, 0) {
		t.Errorf("Selection() = %+v, want caret at text start", got)
	}
}

func TestForwardDeleteKeepsEpisode(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	ph := openEpisode(t, ed, m)
	typeText(t, ed, "a")

	if !ed.Dispatch(command.DeleteCharacter, command.DeletePayload{Forward: true}) {
		t.Fatal("Dispatch(DeleteCharacter forward) = false, want claimed")
	}
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered", m.Phase())
	}
	if got := nodeQuery(t, ed, ph); got != "a" {
		t.Errorf("placeholder query = %q, want unchanged %q", got, "a")
	}
}

func TestArrowKeysNavigateAndWrap(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{results: []search.Result{
		{ID: "1", Title: "One"},
		{ID: "2", Title: "Two"},
		{ID: "3", Title: "Three"},
	}}
	m := New(ed, st)
	defer m.Close()
	openEpisode(t, ed, m)
	waitFor(t, "three results", func() bool { return len(m.Dropdown().Items) == 3 })

	steps := []struct {
		cmd  command.Type
		want int
	}{
		{command.KeyArrowDown, 1},
		{command.KeyArrowDown, 2},
		{command.KeyArrowDown, 0},
		{command.KeyArrowUp, 2},
	}
	for _, s := range steps {
		if !ed.Dispatch(s.cmd, nil) {
			t.Fatalf("Dispatch(%s) = false", s.cmd)
		}
		if got := m.Dropdown().Selected; got != s.want {
			t.Errorf("after %s: Selected = %d, want %d", s.cmd, got, s.want)
		}
	}
}

func TestExternalReferenceInsertClosesEpisode(t *testing.T) {
	ed := engine.New()
	para, _ := seedText(t, ed, "x")
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()
	openEpisode(t, ed, m)
	typeText(t, ed, "t", "e")

	if !ed.Dispatch(command.InsertReference, command.ReferencePayload{ID: "p7", Title: "Zed"}) {
		t.Fatal("Dispatch(InsertReference) = false")
	}
	if m.Phase() != Idle {
		t.Errorf("Phase() = %v, want Idle", m.Phase())
	}
	want := []node.Kind{node.KindText, node.KindReference}
	if kinds := childKinds(t, ed, para); !kindsEqual(kinds, want) {
		t.Errorf("paragraph children = %v, want %v", kinds, want)
	}
	if got := ed.TextContent(); got != "xZed" {
		t.Errorf("TextContent() = %q, want %q", got, "xZed")
	}
}

func TestStaleResultsDoNotApply(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	gs := newGateSearcher("", "a", "ab")
	m := New(ed, gs)
	defer m.Close()
	openEpisode(t, ed, m)
	gs.release("", nil)

	typeText(t, ed, "a", "b")
	gs.release("ab", []search.Result{{ID: "2", Title: "AB"}})
	waitFor(t, "results for ab", func() bool {
		d := m.Dropdown()
		return len(d.Items) == 1 && d.Items[0].ID == "2"
	})

	// The superseded response lands afterwards and must be discarded.
	gs.release("a", []search.Result{{ID: "1", Title: "A"}})
	time.Sleep(100 * time.Millisecond)
	d := m.Dropdown()
	if d.Query != "ab" || len(d.Items) != 1 || d.Items[0].ID != "2" {
		t.Errorf("Dropdown() = %+v, want results for ab only", d)
	}
}

func TestSearchFailureShowsEmptyDropdown(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	m := New(ed, failSearcher{})
	defer m.Close()
	openEpisode(t, ed, m)

	waitFor(t, "failed delivery", func() bool { return !m.Dropdown().Searching })
	d := m.Dropdown()
	if !d.Failed || len(d.Items) != 0 || !d.Visible {
		t.Errorf("Dropdown() = %+v, want visible failed empty", d)
	}
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered", m.Phase())
	}
}

func TestMaxItemsCapsDropdown(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{results: []search.Result{
		{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"},
	}}
	m := New(ed, st, WithMaxItems(2))
	defer m.Close()
	openEpisode(t, ed, m)

	waitFor(t, "capped delivery", func() bool { return !m.Dropdown().Searching })
	if got := len(m.Dropdown().Items); got != 2 {
		t.Errorf("item count = %d, want 2", got)
	}
}

func TestCustomTriggerSequence(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st, WithTrigger("(("))
	defer m.Close()

	typeText(t, ed, "[", "[")
	if m.Phase() != Idle {
		t.Fatalf("Phase() = %v, want Idle for default pair", m.Phase())
	}
	// Clear the literal brackets before trying the custom pair.
	typeText(t, ed, " ")

	typeText(t, ed, "(", "(")
	if m.Phase() != Triggered {
		t.Errorf("Phase() = %v, want Triggered for custom pair", m.Phase())
	}
}

func TestCloseDetachesHandlers(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	m.Close()

	if !ed.Dispatch(command.InsertText, command.TextPayload{Text: "[["}) {
		t.Fatal("Dispatch(InsertText) = false")
	}
	if m.Phase() != Idle {
		t.Errorf("Phase() = %v, want Idle after Close", m.Phase())
	}
	if got := ed.TextContent(); got != "[[" {
		t.Errorf("TextContent() = %q, want literal %q", got, "[[")
	}
	if phs := findKind(t, ed, node.KindPlaceholder); len(phs) != 0 {
		t.Errorf("placeholder count = %d, want 0", len(phs))
	}
}

func TestDropdownSubscription(t *testing.T) {
	ed := engine.New()
	seedParagraph(t, ed)
	st := &stubSearcher{}
	m := New(ed, st)
	defer m.Close()

	var mu sync.Mutex
	var snaps []Dropdown
	cancel := m.OnDropdown(func(d Dropdown) {
		mu.Lock()
		snaps = append(snaps, d)
		mu.Unlock()
	})
	openEpisode(t, ed, m)
	waitFor(t, "subscriber snapshots", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) >= 2
	})
	cancel()

	mu.Lock()
	first := snaps[0]
	mu.Unlock()
	if !first.Visible || !first.Searching {
		t.Errorf("first snapshot = %+v, want visible searching", first)
	}
}
