package autocomplete

import (
	"context"
	"sync"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/diag"
	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/engine/history"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
	"github.com/dshills/inkwell/internal/search"
	"github.com/dshills/inkwell/internal/textmetric"
)

// Phase is the episode state.
type Phase int

const (
	// Idle is normal typing.
	Idle Phase = iota

	// Triggered is an open episode: a placeholder node carries the
	// query and the dropdown is live.
	Triggered
)

// String returns the phase name.
func (p Phase) String() string {
	if p == Triggered {
		return "triggered"
	}
	return "idle"
}

// DefaultMaxItems caps how many results the dropdown shows.
const DefaultMaxItems = 8

// Dropdown is a render hint: everything a presentation layer needs to
// draw the floating result list.
type Dropdown struct {
	// Visible reports an open episode.
	Visible bool

	// Query is the text typed since the trigger.
	Query string

	// Items holds the current results for Query.
	Items []search.Result

	// Selected indexes the highlighted item.
	Selected int

	// Searching is set between issuing a search and its delivery.
	Searching bool

	// Failed reports that the last search errored; Items is empty.
	Failed bool
}

// Machine drives trigger episodes against one editor. Its handlers sit
// at the interceptor tier of the command bus, so while an episode is
// open they claim keystrokes before the default editing behaviors run.
type Machine struct {
	ed      *engine.Editor
	session *search.Session
	diag    *diag.Diagnostics
	trigger []rune

	maxItems    int
	sessionOpts []search.SessionOption
	ctx         context.Context
	cancel      context.CancelFunc

	mu       sync.Mutex
	phase    Phase
	ph       node.Key
	dropdown Dropdown
	hintID   int
	hints    map[int]func(Dropdown)

	removes []func()
}

// Option configures a Machine.
type Option func(*Machine)

// WithDiagnostics routes machine and search reports to d.
func WithDiagnostics(d *diag.Diagnostics) Option {
	return func(m *Machine) {
		if d != nil {
			m.diag = d
		}
	}
}

// WithTrigger overrides the marker pair that opens an episode. The
// sequence must be exactly two runes; anything else keeps the default.
func WithTrigger(s string) Option {
	return func(m *Machine) {
		if r := []rune(s); len(r) == 2 {
			m.trigger = r
		}
	}
}

// WithMaxItems caps the dropdown length.
func WithMaxItems(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxItems = n
		}
	}
}

// WithRate throttles issued searches.
func WithRate(perSecond float64, burst int) Option {
	return func(m *Machine) {
		m.sessionOpts = append(m.sessionOpts, search.WithRate(perSecond, burst))
	}
}

// New attaches a machine to the editor, registering its interceptor
// handlers and a commit listener. Close detaches everything.
func New(ed *engine.Editor, searcher search.Searcher, opts ...Option) *Machine {
	m := &Machine{
		ed:       ed,
		diag:     diag.Nop(),
		trigger:  []rune(node.TriggerSequence),
		maxItems: DefaultMaxItems,
		hints:    make(map[int]func(Dropdown)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.session = search.NewSession(searcher,
		append(m.sessionOpts, search.WithDiagnostics(m.diag))...)

	m.removes = []func(){
		ed.RegisterCommand(command.InsertText, m.handleInsertText, command.PriorityEditor),
		ed.RegisterCommand(command.DeleteCharacter, m.handleDeleteCharacter, command.PriorityEditor),
		ed.RegisterCommand(command.InsertReference, m.handleInsertReference, command.PriorityEditor),
		ed.RegisterCommand(command.KeyEscape, m.handleEscape, command.PriorityEditor),
		ed.RegisterCommand(command.KeyEnter, m.handleEnter, command.PriorityEditor),
		ed.RegisterCommand(command.KeyArrowUp, m.handleArrow(-1), command.PriorityEditor),
		ed.RegisterCommand(command.KeyArrowDown, m.handleArrow(1), command.PriorityEditor),
		ed.RegisterUpdateListener(m.afterCommit),
	}
	return m
}

// Close cancels the episode state, detaches the bus handlers, and
// silences outstanding searches.
func (m *Machine) Close() {
	m.cancel()
	for _, remove := range m.removes {
		remove()
	}
	m.removes = nil
	m.reset()
	m.notifyHints()
}

// Phase returns the current episode state.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Dropdown returns a snapshot of the render hint.
func (m *Machine) Dropdown() Dropdown {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropdown
}

// OnDropdown subscribes to dropdown snapshots, delivered after every
// change. The returned function unsubscribes.
func (m *Machine) OnDropdown(fn func(Dropdown)) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	m.hintID++
	id := m.hintID
	m.hints[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.hints, id)
		m.mu.Unlock()
	}
}

func (m *Machine) notifyHints() {
	m.mu.Lock()
	snap := m.dropdown
	fns := make([]func(Dropdown), 0, len(m.hints))
	for _, fn := range m.hints {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (m *Machine) handleInsertText(payload any) bool {
	p, ok := payload.(command.TextPayload)
	if !ok || p.Text == "" {
		return false
	}
	tx := m.ed.Tx()
	if tx == nil {
		return false
	}
	if m.Phase() == Triggered {
		return m.extendQuery(tx, p.Text)
	}
	return m.maybeTrigger(tx, p.Text)
}

// maybeTrigger watches idle typing for the marker pair. The usual path
// is the second marker typed right after the first; a paste of the
// whole pair opens an episode too.
func (m *Machine) maybeTrigger(tx *engine.WriteTx, text string) bool {
	sel := tx.Selection()
	if sel.IsZero() || !sel.Collapsed() {
		return false
	}
	at := sel.Focus

	if text == string(m.trigger) {
		return m.startEpisode(tx, at)
	}
	if text != string(m.trigger[1]) {
		return false
	}
	n, ok := tx.Get(at.Node)
	if !ok || n.Kind() != node.KindText {
		return false
	}
	runes := []rune(n.Text())
	o := at.Offset
	if o < 1 || o > len(runes) || runes[o-1] != m.trigger[0] {
		return false
	}
	// Consume the first marker already sitting in the text.
	if err := tx.SpliceText(at.Node, o-1, 1, ""); err != nil {
		return false
	}
	return m.startEpisode(tx, selection.Point{Node: at.Node, Offset: o - 1})
}

// startEpisode converts the caret position into a placeholder node and
// opens the dropdown with an initial empty-query search.
func (m *Machine) startEpisode(tx *engine.WriteTx, at selection.Point) bool {
	ph, err := m.placePlaceholder(tx, at)
	if err != nil {
		return false
	}
	if tx.SetSelection(selection.Caret(ph, 1)) != nil {
		return false
	}
	tx.SetEditKind(history.Structural)

	m.mu.Lock()
	m.phase = Triggered
	m.ph = ph
	m.dropdown = Dropdown{Visible: true, Searching: true}
	m.mu.Unlock()

	m.issue("")
	m.notifyHints()
	return true
}

// placePlaceholder inserts a fresh placeholder node at the caret,
// splitting a text node around it when the caret sits inside one.
func (m *Machine) placePlaceholder(tx *engine.WriteTx, at selection.Point) (node.Key, error) {
	n, ok := tx.Get(at.Node)
	if !ok {
		return node.NoKey, node.ErrNotFound
	}
	ph, err := tx.CreatePlaceholder(at.Offset, "")
	if err != nil {
		return node.NoKey, err
	}

	switch {
	case n.Kind() == node.KindText:
		parent, i := place(tx, n.Key())
		if parent == node.NoKey {
			return node.NoKey, node.ErrNotFound
		}
		runes := []rune(n.Text())
		off := at.Offset
		if off > len(runes) {
			off = len(runes)
		}
		if off > 0 && off < len(runes) {
			rt, err := tx.CreateText(string(runes[off:]))
			if err != nil {
				return node.NoKey, err
			}
			if err := tx.SetFormat(rt, n.Format()); err != nil {
				return node.NoKey, err
			}
			if err := tx.SpliceText(n.Key(), off, len(runes)-off, ""); err != nil {
				return node.NoKey, err
			}
			if err := tx.InsertChild(parent, i+1, rt); err != nil {
				return node.NoKey, err
			}
		}
		slot := i + 1
		if off == 0 {
			slot = i
		}
		if err := tx.InsertChild(parent, slot, ph); err != nil {
			return node.NoKey, err
		}

	case n.Kind() == node.KindRoot:
		para, err := tx.CreateParagraph()
		if err != nil {
			return node.NoKey, err
		}
		if err := tx.AppendChild(para, ph); err != nil {
			return node.NoKey, err
		}
		if err := tx.InsertChild(n.Key(), at.Offset, para); err != nil {
			return node.NoKey, err
		}

	case leafKind(tx, n):
		parent, i := place(tx, n.Key())
		if parent == node.NoKey {
			return node.NoKey, node.ErrNotFound
		}
		if err := tx.InsertChild(parent, i+at.Offset, ph); err != nil {
			return node.NoKey, err
		}

	default:
		if err := tx.InsertChild(n.Key(), at.Offset, ph); err != nil {
			return node.NoKey, err
		}
	}
	return ph, nil
}

// extendQuery appends typed text to the open episode's query and
// issues a superseding search.
func (m *Machine) extendQuery(tx *engine.WriteTx, text string) bool {
	ph := m.placeholder()
	n, ok := tx.Get(ph)
	if !ok {
		m.reset()
		m.notifyHints()
		return false
	}
	q := n.Query() + text
	if tx.SetQuery(ph, q) != nil {
		return false
	}
	if tx.SetSelection(selection.Caret(ph, 1)) != nil {
		return false
	}
	tx.SetEditKind(history.TriggerQuery)

	m.mu.Lock()
	m.dropdown.Query = q
	m.dropdown.Searching = true
	m.mu.Unlock()

	m.issue(q)
	m.notifyHints()
	return true
}

func (m *Machine) handleDeleteCharacter(payload any) bool {
	if m.Phase() != Triggered {
		return false
	}
	tx := m.ed.Tx()
	if tx == nil {
		return false
	}
	if p, ok := payload.(command.DeletePayload); ok && p.Forward {
		// Forward deletion cannot shrink the query; swallow it so the
		// episode is not torn apart from the right.
		return true
	}

	ph := m.placeholder()
	n, ok := tx.Get(ph)
	if !ok {
		m.reset()
		m.notifyHints()
		return false
	}
	q := n.Query()
	if q == "" {
		// Past the trigger boundary: the episode collapses back to the
		// first marker, as if the second had never been typed.
		return m.cancelEpisode(tx, string(m.trigger[0]), false)
	}

	runes := []rune(q)
	cut := textmetric.PrevGrapheme(q, len(runes))
	nq := string(runes[:cut])
	if tx.SetQuery(ph, nq) != nil {
		return false
	}
	if tx.SetSelection(selection.Caret(ph, 1)) != nil {
		return false
	}
	tx.SetEditKind(history.TriggerQuery)

	m.mu.Lock()
	m.dropdown.Query = nq
	m.dropdown.Searching = true
	m.mu.Unlock()

	m.issue(nq)
	m.notifyHints()
	return true
}

func (m *Machine) handleEscape(any) bool {
	if m.Phase() != Triggered {
		return false
	}
	tx := m.ed.Tx()
	if tx == nil {
		return false
	}
	return m.cancelEpisode(tx, m.literal(tx), false)
}

func (m *Machine) handleEnter(any) bool {
	if m.Phase() != Triggered {
		return false
	}
	tx := m.ed.Tx()
	if tx == nil {
		return false
	}
	m.mu.Lock()
	items := m.dropdown.Items
	sel := m.dropdown.Selected
	m.mu.Unlock()
	if len(items) == 0 {
		// Nothing to confirm; the episode stays open.
		return true
	}
	if sel < 0 || sel >= len(items) {
		sel = 0
	}
	return m.replaceWithReference(tx, items[sel].ID, items[sel].Title)
}

func (m *Machine) handleArrow(delta int) command.Handler {
	return func(any) bool {
		if m.Phase() != Triggered {
			return false
		}
		m.mu.Lock()
		if len(m.dropdown.Items) == 0 {
			m.mu.Unlock()
			return true
		}
		sel := m.dropdown.Selected + delta
		if sel < 0 {
			sel = len(m.dropdown.Items) - 1
		} else if sel >= len(m.dropdown.Items) {
			sel = 0
		}
		m.dropdown.Selected = sel
		m.mu.Unlock()
		m.notifyHints()
		return true
	}
}

// handleInsertReference claims reference insertion while an episode is
// open, so the toolbar path and the keyboard confirm behave alike:
// both atomically replace the placeholder.
func (m *Machine) handleInsertReference(payload any) bool {
	if m.Phase() != Triggered {
		return false
	}
	p, ok := payload.(command.ReferencePayload)
	if !ok || p.ID == "" {
		return false
	}
	tx := m.ed.Tx()
	if tx == nil {
		return false
	}
	return m.replaceWithReference(tx, p.ID, p.Title)
}

// replaceWithReference swaps the placeholder for an atomic reference
// node in the current transaction and closes the episode.
func (m *Machine) replaceWithReference(tx *engine.WriteTx, id, title string) bool {
	ph := m.placeholder()
	parent, i := place(tx, ph)
	if parent == node.NoKey {
		m.reset()
		m.notifyHints()
		return false
	}
	ref, err := tx.CreateReference(id, title)
	if err != nil {
		return false
	}
	if err := tx.Remove(ph); err != nil {
		return false
	}
	if err := tx.InsertChild(parent, i, ref); err != nil {
		return false
	}
	if tx.SetSelection(selection.Caret(ref, 1)) != nil {
		return false
	}
	tx.SetEditKind(history.Structural)

	m.reset()
	m.notifyHints()
	return true
}

// cancelEpisode removes the placeholder and restores literal text in
// its place, merging into neighboring text nodes. keepCaret leaves the
// selection alone for the caret-exit path, where the user has already
// moved somewhere else on purpose.
func (m *Machine) cancelEpisode(tx *engine.WriteTx, literal string, keepCaret bool) bool {
	ph := m.placeholder()
	parent, i := place(tx, ph)
	if parent == node.NoKey {
		m.reset()
		m.notifyHints()
		return false
	}
	if keepCaret {
		sel := tx.Selection()
		if sel.Anchor.Node == ph || sel.Focus.Node == ph {
			keepCaret = false
		}
	}
	if err := tx.Remove(ph); err != nil {
		return false
	}
	if literal != "" {
		pt, err := tx.InsertTextAt(selection.Point{Node: parent, Offset: i}, literal)
		if err != nil {
			return false
		}
		if !keepCaret && tx.SetSelection(selection.Caret(pt.Node, pt.Offset)) != nil {
			return false
		}
	} else if !keepCaret && tx.SetSelection(selection.Caret(parent, i)) != nil {
		return false
	}
	tx.SetEditKind(history.Structural)

	m.reset()
	m.notifyHints()
	return true
}

// literal renders the episode back to the text the user typed.
func (m *Machine) literal(tx *engine.WriteTx) string {
	if n, ok := tx.Get(m.placeholder()); ok {
		return string(m.trigger) + n.Query()
	}
	return string(m.trigger)
}

// afterCommit watches committed generations for the two cancellation
// conditions the handlers cannot see: the placeholder vanishing under
// an external edit or undo, and the caret leaving the placeholder.
func (m *Machine) afterCommit(_, next *engine.State, _ []node.Key) {
	m.mu.Lock()
	if m.phase != Triggered {
		m.mu.Unlock()
		return
	}
	ph := m.ph
	m.mu.Unlock()

	if _, ok := next.Tree().Get(ph); !ok {
		m.reset()
		m.notifyHints()
		return
	}
	if next.Selection() == selection.Caret(ph, 1) {
		return
	}
	// Caret exit cancels. The conversion needs its own transaction, so
	// it is queued behind the commit that moved the caret.
	_ = m.ed.Update(func(tx *engine.WriteTx) error {
		m.mu.Lock()
		stillOpen := m.phase == Triggered && m.ph == ph
		m.mu.Unlock()
		if !stillOpen {
			return nil
		}
		if _, ok := tx.Get(ph); !ok {
			m.reset()
			m.notifyHints()
			return nil
		}
		if tx.Selection() == selection.Caret(ph, 1) {
			return nil
		}
		m.cancelEpisode(tx, m.literal(tx), true)
		return nil
	})
}

func (m *Machine) issue(query string) {
	m.session.Issue(m.ctx, query, m.deliver)
}

// deliver applies a search outcome to the dropdown. The session has
// already rejected superseded sequence numbers; the query comparison
// here closes the remaining sliver where a delivery lands between a
// query change and its issue.
func (m *Machine) deliver(d search.Delivery) {
	m.mu.Lock()
	if m.phase != Triggered || d.Query != m.dropdown.Query {
		m.mu.Unlock()
		return
	}
	items := d.Results
	if m.maxItems > 0 && len(items) > m.maxItems {
		items = items[:m.maxItems]
	}
	m.dropdown.Items = items
	m.dropdown.Selected = 0
	m.dropdown.Searching = false
	m.dropdown.Failed = d.Failed
	m.mu.Unlock()
	m.notifyHints()
}

func (m *Machine) placeholder() node.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ph
}

// reset returns the machine to idle and silences in-flight searches.
func (m *Machine) reset() {
	m.session.Invalidate()
	m.mu.Lock()
	m.phase = Idle
	m.ph = node.NoKey
	m.dropdown = Dropdown{}
	m.mu.Unlock()
}

func leafKind(tx *engine.WriteTx, n *node.Node) bool {
	if n.Kind() == node.KindText {
		return false
	}
	b, ok := tx.Registry().Lookup(n.Kind())
	return ok && b.Leaf
}

// place returns a node's parent and index among its siblings.
func place(tx *engine.WriteTx, key node.Key) (node.Key, int) {
	n, ok := tx.Get(key)
	if !ok || n.Parent() == node.NoKey {
		return node.NoKey, 0
	}
	p, ok := tx.Get(n.Parent())
	if !ok {
		return node.NoKey, 0
	}
	for i, c := range p.Children() {
		if c == key {
			return n.Parent(), i
		}
	}
	return node.NoKey, 0
}
