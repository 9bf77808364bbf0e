package history

import (
	"testing"
	"time"
)

// fakeClock steps time manually so window behavior is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(window time.Duration) (*Manager[int], *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager[int](WithWindow[int](window), WithClock[int](clock.now))
	return m, clock
}

func TestUndoEmpty(t *testing.T) {
	m := NewManager[int]()
	if _, ok := m.Undo(); ok {
		t.Error("undo on empty stack succeeded")
	}
	if _, ok := m.Redo(); ok {
		t.Error("redo on empty stack succeeded")
	}
	if m.CanUndo() || m.CanRedo() {
		t.Error("empty manager reports capability")
	}
}

func TestRecordAndUndo(t *testing.T) {
	m, _ := newTestManager(DefaultWindow)
	m.Record(0, 1, Structural)

	if !m.CanUndo() {
		t.Fatal("cannot undo after record")
	}
	got, ok := m.Undo()
	if !ok || got != 0 {
		t.Errorf("undo = %d, %v; want 0, true", got, ok)
	}
	if !m.CanRedo() {
		t.Fatal("cannot redo after undo")
	}
	got, ok = m.Redo()
	if !ok || got != 1 {
		t.Errorf("redo = %d, %v; want 1, true", got, ok)
	}
}

func TestCoalesceWithinWindow(t *testing.T) {
	m, clock := newTestManager(time.Second)

	// h-e-l-l-o typed 100ms apart collapses to one step.
	for i := 0; i < 5; i++ {
		m.Record(i, i+1, TextInsert)
		clock.advance(100 * time.Millisecond)
	}

	if d := m.UndoDepth(); d != 1 {
		t.Fatalf("undo depth = %d, want 1", d)
	}
	got, _ := m.Undo()
	if got != 0 {
		t.Errorf("undo = %d, want the state before the first keystroke", got)
	}
	got, _ = m.Redo()
	if got != 5 {
		t.Errorf("redo = %d, want the state after the last keystroke", got)
	}
}

func TestIdleGapStartsNewStep(t *testing.T) {
	m, clock := newTestManager(time.Second)

	m.Record(0, 1, TextInsert)
	clock.advance(2 * time.Second)
	m.Record(1, 2, TextInsert)

	if d := m.UndoDepth(); d != 2 {
		t.Errorf("undo depth = %d, want 2", d)
	}
}

func TestKindChangeStartsNewStep(t *testing.T) {
	m, clock := newTestManager(time.Second)

	m.Record(0, 1, TextInsert)
	clock.advance(10 * time.Millisecond)
	m.Record(1, 2, TextDelete)
	clock.advance(10 * time.Millisecond)
	m.Record(2, 3, TextInsert)

	if d := m.UndoDepth(); d != 3 {
		t.Errorf("undo depth = %d, want 3", d)
	}
}

func TestStructuralNeverMerges(t *testing.T) {
	m, clock := newTestManager(time.Second)

	m.Record(0, 1, Structural)
	clock.advance(time.Millisecond)
	m.Record(1, 2, Structural)

	if d := m.UndoDepth(); d != 2 {
		t.Errorf("undo depth = %d, want 2", d)
	}
}

func TestDeleteBurstCoalesces(t *testing.T) {
	m, clock := newTestManager(time.Second)

	for i := 0; i < 3; i++ {
		m.Record(10-i, 10-i-1, TextDelete)
		clock.advance(50 * time.Millisecond)
	}
	if d := m.UndoDepth(); d != 1 {
		t.Fatalf("undo depth = %d, want 1", d)
	}
	got, _ := m.Undo()
	if got != 10 {
		t.Errorf("undo = %d, want 10", got)
	}
}

func TestNewWriteClearsRedo(t *testing.T) {
	m, clock := newTestManager(time.Second)

	m.Record(0, 1, Structural)
	clock.advance(2 * time.Second)
	m.Record(1, 2, Structural)
	m.Undo()
	if !m.CanRedo() {
		t.Fatal("no redo after undo")
	}

	clock.advance(2 * time.Second)
	m.Record(1, 9, Structural)
	if m.CanRedo() {
		t.Error("redo survived a new write")
	}
}

func TestMergeDoesNotResurrectRedo(t *testing.T) {
	m, clock := newTestManager(time.Second)

	m.Record(0, 1, TextInsert)
	m.Undo()
	clock.advance(10 * time.Millisecond)
	m.Record(0, 2, TextInsert)

	if m.CanRedo() {
		t.Error("redo survived a coalescing write")
	}
	if d := m.UndoDepth(); d != 1 {
		t.Errorf("undo depth = %d, want 1", d)
	}
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager[int](
		WithWindow[int](time.Millisecond),
		WithMaxEntries[int](3),
		WithClock[int](clock.now),
	)
	for i := 0; i < 5; i++ {
		m.Record(i, i+1, Structural)
		clock.advance(time.Second)
	}
	if d := m.UndoDepth(); d != 3 {
		t.Fatalf("undo depth = %d, want 3", d)
	}
	// Newest first: 4, 3, 2.
	for want := 4; want >= 2; want-- {
		got, ok := m.Undo()
		if !ok || got != want {
			t.Errorf("undo = %d, %v; want %d", got, ok, want)
		}
	}
	if m.CanUndo() {
		t.Error("evicted entries still undoable")
	}
}

func TestClear(t *testing.T) {
	m, _ := newTestManager(time.Second)
	m.Record(0, 1, Structural)
	m.Undo()
	m.Clear()
	if m.CanUndo() || m.CanRedo() {
		t.Error("stacks survived Clear")
	}
}

func TestUndoRedoChain(t *testing.T) {
	m, clock := newTestManager(time.Millisecond)

	for i := 0; i < 3; i++ {
		m.Record(i, i+1, Structural)
		clock.advance(time.Second)
	}
	// Walk all the way back, then all the way forward.
	wantBack := []int{2, 1, 0}
	for _, want := range wantBack {
		got, ok := m.Undo()
		if !ok || got != want {
			t.Fatalf("undo = %d, %v; want %d", got, ok, want)
		}
	}
	wantFwd := []int{1, 2, 3}
	for _, want := range wantFwd {
		got, ok := m.Redo()
		if !ok || got != want {
			t.Fatalf("redo = %d, %v; want %d", got, ok, want)
		}
	}
}
