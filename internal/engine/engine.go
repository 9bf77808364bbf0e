package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/diag"
	"github.com/dshills/inkwell/internal/engine/history"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
	"github.com/dshills/inkwell/internal/serial"
	"github.com/dshills/inkwell/internal/textmetric"
)

// UpdateListener observes every committed generation. It receives the
// previous state, the new state, and the keys whose nodes changed
// between them.
type UpdateListener func(prev, next *State, dirty []node.Key)

// ChangeListener receives the JSON change envelope emitted after each
// commit that touched nodes. Selection-only commits emit nothing.
type ChangeListener func(envelope []byte)

type updateEntry struct {
	id int
	fn UpdateListener
}

type changeEntry struct {
	id int
	fn ChangeListener
}

// Editor is the headless document editor. It owns the committed state,
// the command bus, and the undo history, and funnels every mutation
// through the update cycle: fork the tree, run the update function
// against a write transaction, validate, then atomically publish the
// next generation or discard the fork.
//
// All methods are safe for concurrent use. Updates are serialized; an
// Update or Dispatch that arrives while another update is in flight is
// queued and runs after the current one commits.
type Editor struct {
	docID string
	reg   *node.Registry
	bus   *command.Bus
	hist  *history.Manager[*State]
	diag  *diag.Diagnostics

	histWindow time.Duration
	maxUndo    int
	now        func() time.Time

	mu       sync.RWMutex
	current  *State
	activeTx *WriteTx
	updating bool
	queue    []func()
	disposed bool

	nextListener int
	updateLs     []updateEntry
	changeLs     []changeEntry
}

// New creates an Editor holding an empty document and registers the
// default command handlers.
func New(opts ...Option) *Editor {
	e := &Editor{
		histWindow: DefaultHistoryWindow,
		maxUndo:    DefaultMaxUndoEntries,
		now:        time.Now,
		bus:        command.NewBus(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.docID == "" {
		e.docID = uuid.NewString()
	}
	if e.reg == nil {
		e.reg = node.NewRegistry()
	}
	if e.diag == nil {
		e.diag = diag.Nop()
	}
	e.hist = history.NewManager[*State](
		history.WithWindow[*State](e.histWindow),
		history.WithMaxEntries[*State](e.maxUndo),
		history.WithClock[*State](e.now),
	)

	t := node.NewTree(e.reg)
	t.Seal()
	e.current = &State{tree: t}

	registerDefaults(e)
	return e
}

// DocumentID returns the identifier stamped on change envelopes.
func (e *Editor) DocumentID() string { return e.docID }

// Registry returns the kind registry documents validate against.
func (e *Editor) Registry() *node.Registry { return e.reg }

// Version returns the committed generation counter.
func (e *Editor) Version() uint64 { return e.state().version }

// Selection returns the committed selection.
func (e *Editor) Selection() selection.Selection { return e.state().sel }

// TextContent returns the committed document text, blocks joined with
// newlines.
func (e *Editor) TextContent() string { return e.state().TextContent() }

// CanUndo reports whether a history step is available to undo.
func (e *Editor) CanUndo() bool { return e.hist.CanUndo() }

// CanRedo reports whether an undone step is available to reapply.
func (e *Editor) CanRedo() bool { return e.hist.CanRedo() }

// BusStats returns dispatch counters for the command bus.
func (e *Editor) BusStats() command.Stats { return e.bus.Stats() }

func (e *Editor) state() *State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Read runs fn against the committed state. The view is immutable, so
// fn sees one coherent generation no matter what commits concurrently.
func (e *Editor) Read(fn func(r *ReadTx)) error {
	e.mu.RLock()
	if e.disposed {
		e.mu.RUnlock()
		return ErrDisposed
	}
	st := e.current
	e.mu.RUnlock()
	fn(&ReadTx{st: st})
	return nil
}

// acquire takes the update slot and runs job, or hands job to the
// current holder's queue. Reports whether the caller became the holder
// and must drain.
func (e *Editor) acquire(job func()) (bool, error) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return false, ErrDisposed
	}
	if e.updating {
		e.queue = append(e.queue, job)
		e.mu.Unlock()
		return false, nil
	}
	e.updating = true
	e.mu.Unlock()
	job()
	return true, nil
}

// drain runs queued jobs until the queue is empty, then releases the
// update slot.
func (e *Editor) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.updating = false
			e.mu.Unlock()
			return
		}
		job := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		job()
	}
}

// Update runs fn inside a write transaction and commits the result as
// the next generation. Any error, whether returned by fn or recorded
// by a mutation, rolls the whole update back and surfaces wrapped in
// ErrRollback.
//
// A nested call made while an update is in flight is queued and runs
// after the current one commits. The nested caller gets nil
// immediately; failures of queued updates surface through diagnostics.
func (e *Editor) Update(fn func(tx *WriteTx) error) error {
	var err error
	became, aerr := e.acquire(func() { err = e.runUpdate(fn) })
	if aerr != nil {
		return aerr
	}
	if !became {
		return nil
	}
	e.drain()
	return err
}

func (e *Editor) runUpdate(fn func(tx *WriteTx) error) error {
	base := e.state()
	tx := &WriteTx{ed: e, tree: base.tree.Fork(), sel: base.sel}

	e.mu.Lock()
	e.activeTx = tx
	e.mu.Unlock()

	err := runFn(tx, fn)

	e.mu.Lock()
	e.activeTx = nil
	e.mu.Unlock()
	tx.done = true

	if err == nil {
		err = tx.err
	}
	if err != nil {
		e.diag.Rollback("update", err)
		return fmt.Errorf("%w: %w", ErrRollback, err)
	}
	return e.commit(base, tx)
}

// runFn isolates panics in the update function so a crashing handler
// discards its fork instead of corrupting the editor.
func runFn(tx *WriteTx, fn func(tx *WriteTx) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("update panic: %v", v)
		}
	}()
	return fn(tx)
}

func (e *Editor) commit(base *State, tx *WriteTx) error {
	work := tx.tree
	if _, err := work.PruneEmptyText(); err != nil {
		e.diag.Rollback("prune", err)
		return fmt.Errorf("%w: %w", ErrRollback, err)
	}
	sel := normalizeSelection(work, tx.sel)
	if err := work.Validate(); err != nil {
		e.diag.Rollback("validate", err)
		return fmt.Errorf("%w: %w", ErrRollback, err)
	}

	dirty := work.Dirty()
	if len(dirty) == 0 && sel == base.sel {
		// Nothing happened; the fork is discarded without a version
		// bump and listeners stay quiet.
		return nil
	}

	work.Seal()
	next := &State{tree: work, sel: sel, version: base.version + 1}

	e.mu.Lock()
	e.current = next
	e.mu.Unlock()

	if len(dirty) > 0 {
		kind := history.Structural
		if tx.kindSet {
			kind = tx.kind
		}
		e.hist.Record(base, next, kind)
	}

	e.notifyUpdate(base, next, dirty)
	e.diag.Update(next.version, len(dirty))
	if len(dirty) > 0 {
		e.emitChange(next)
	}
	return nil
}

// Dispatch routes a command through the bus inside its own update and
// reports whether a handler claimed it and the update committed. A
// rolled-back update reports false even if a handler claimed the
// command.
//
// Called while another update is in flight, the command is deferred to
// run after that update and Dispatch reports false; handlers that need
// synchronous nesting use WriteTx.Dispatch instead.
func (e *Editor) Dispatch(t command.Type, payload any) bool {
	var handled bool
	err := e.Update(func(tx *WriteTx) error {
		handled = e.dispatchNow(t, payload)
		return nil
	})
	return handled && err == nil
}

// dispatchNow runs the bus synchronously and contains handler panics:
// a panicking handler poisons the active transaction and the command
// counts as unhandled.
func (e *Editor) dispatchNow(t command.Type, payload any) (handled bool) {
	defer func() {
		if v := recover(); v != nil {
			e.diag.HandlerPanic(string(t), v)
			if tx := e.currentTx(); tx != nil {
				tx.check(fmt.Errorf("handler panic on %s: %v", t, v))
			}
			handled = false
		}
	}()
	return e.bus.Dispatch(t, payload)
}

func (e *Editor) currentTx() *WriteTx {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeTx
}

// Tx returns the write transaction of the update currently in flight,
// or nil outside one. Command handlers registered from other packages
// use it to join the transaction their dispatch runs inside; holding
// the handle past the handler's return is an error.
func (e *Editor) Tx() *WriteTx {
	return e.currentTx()
}

// RegisterCommand adds a bus handler at the given priority and returns
// its remove function.
func (e *Editor) RegisterCommand(t command.Type, h command.Handler, p command.Priority) func() {
	return e.bus.Register(t, h, p)
}

// RegisterUpdateListener adds a listener invoked after every commit.
// The returned function removes it.
func (e *Editor) RegisterUpdateListener(l UpdateListener) func() {
	if l == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextListener++
	id := e.nextListener
	e.updateLs = append(e.updateLs, updateEntry{id: id, fn: l})
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, ent := range e.updateLs {
			if ent.id == id {
				e.updateLs = append(e.updateLs[:i:i], e.updateLs[i+1:]...)
				return
			}
		}
	}
}

// RegisterChangeListener adds a listener for change envelopes. The
// returned function removes it.
func (e *Editor) RegisterChangeListener(l ChangeListener) func() {
	if l == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextListener++
	id := e.nextListener
	e.changeLs = append(e.changeLs, changeEntry{id: id, fn: l})
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, ent := range e.changeLs {
			if ent.id == id {
				e.changeLs = append(e.changeLs[:i:i], e.changeLs[i+1:]...)
				return
			}
		}
	}
}

func (e *Editor) notifyUpdate(prev, next *State, dirty []node.Key) {
	e.mu.RLock()
	ls := make([]UpdateListener, 0, len(e.updateLs))
	for _, ent := range e.updateLs {
		ls = append(ls, ent.fn)
	}
	e.mu.RUnlock()
	for _, fn := range ls {
		fn(prev, next, dirty)
	}
}

// emitChange builds and fans out the change envelope for a commit that
// touched nodes.
func (e *Editor) emitChange(next *State) {
	e.mu.RLock()
	ls := make([]ChangeListener, 0, len(e.changeLs))
	for _, ent := range e.changeLs {
		ls = append(ls, ent.fn)
	}
	e.mu.RUnlock()
	if len(ls) == 0 {
		return
	}

	text := next.TextContent()
	env := []byte(`{}`)
	env, _ = sjson.SetBytes(env, "docId", e.docID)
	env, _ = sjson.SetBytes(env, "version", next.version)
	env, _ = sjson.SetBytes(env, "words", textmetric.Words(text))
	env, _ = sjson.SetBytes(env, "graphemes", textmetric.Graphemes(text))
	for _, fn := range ls {
		fn(env)
	}
}

// Undo restores the generation before the newest history step and
// reports whether a step was applied. The restored state is published
// under a fresh version; the counter never regresses. Called from
// inside an update it defers until that update commits and reports
// whether a step was available.
func (e *Editor) Undo() bool { return e.stepHistory(true) }

// Redo reapplies the most recently undone step.
func (e *Editor) Redo() bool { return e.stepHistory(false) }

func (e *Editor) stepHistory(undo bool) bool {
	var ok bool
	became, err := e.acquire(func() { ok = e.applyHistory(undo) })
	if err != nil {
		return false
	}
	if !became {
		if undo {
			return e.hist.CanUndo()
		}
		return e.hist.CanRedo()
	}
	e.drain()
	return ok
}

func (e *Editor) applyHistory(undo bool) bool {
	base := e.state()
	var restored *State
	var ok bool
	if undo {
		restored, ok = e.hist.Undo()
	} else {
		restored, ok = e.hist.Redo()
	}
	if !ok {
		return false
	}

	next := &State{tree: restored.tree, sel: restored.sel, version: base.version + 1}
	e.mu.Lock()
	e.current = next
	e.mu.Unlock()

	dirty := node.Diff(base.tree, next.tree)
	e.notifyUpdate(base, next, dirty)
	e.diag.Update(next.version, len(dirty))
	if len(dirty) > 0 {
		e.emitChange(next)
	}
	return true
}

// Hydrate replaces the document wholesale, resetting history. The tree
// is sealed if it is not already; the selection is normalized against
// it, so a zero selection is always acceptable.
func (e *Editor) Hydrate(tree *node.Tree, sel selection.Selection) error {
	if tree == nil {
		return fmt.Errorf("hydrate: nil tree")
	}
	if !tree.Sealed() {
		if err := tree.Validate(); err != nil {
			return err
		}
		tree.Seal()
	}
	var herr error
	became, err := e.acquire(func() { herr = e.applyHydrate(tree, sel) })
	if err != nil {
		return err
	}
	if !became {
		return nil
	}
	e.drain()
	return herr
}

func (e *Editor) applyHydrate(tree *node.Tree, sel selection.Selection) error {
	base := e.state()
	next := &State{tree: tree, sel: normalizeSelection(tree, sel), version: base.version + 1}

	e.mu.Lock()
	e.current = next
	e.mu.Unlock()

	e.hist.Clear()
	dirty := node.Diff(base.tree, next.tree)
	e.notifyUpdate(base, next, dirty)
	e.diag.Update(next.version, len(dirty))
	e.emitChange(next)
	return nil
}

// Serialize renders the committed document as JSON.
func (e *Editor) Serialize() ([]byte, []serial.Warning, error) {
	e.mu.RLock()
	if e.disposed {
		e.mu.RUnlock()
		return nil, nil, ErrDisposed
	}
	st := e.current
	e.mu.RUnlock()
	return serial.Serialize(st.tree)
}

// LoadJSON deserializes a document and hydrates the editor with it.
// Non-fatal irregularities are returned and also reported through
// diagnostics.
func (e *Editor) LoadJSON(data []byte) ([]serial.Warning, error) {
	tree, warns, err := serial.Deserialize(data, e.reg)
	for _, w := range warns {
		e.diag.Warn(w.Kind, w.Detail)
	}
	if err != nil {
		return warns, err
	}
	return warns, e.Hydrate(tree, selection.Selection{})
}

// Dispose tears the editor down. Listeners are dropped, queued work is
// discarded, history is cleared, and every later operation fails with
// ErrDisposed or reports false.
func (e *Editor) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.queue = nil
	e.updateLs = nil
	e.changeLs = nil
	e.mu.Unlock()
	e.hist.Clear()
}

// Disposed reports whether Dispose has run.
func (e *Editor) Disposed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disposed
}
