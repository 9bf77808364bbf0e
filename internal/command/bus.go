package command

import (
	"sort"
	"sync"
	"sync/atomic"
)

type registration struct {
	id       uint64
	handler  Handler
	priority Priority
	seq      uint64
}

// Bus routes dispatched commands to registered handlers. Handlers for
// one type run in descending priority order; within a tier they run in
// registration order. Dispatch is synchronous, and a handler may
// dispatch further commands re-entrantly; the inner dispatch completes
// before the outer one resumes.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]registration
	nextID   uint64
	nextSeq  uint64

	dispatched atomic.Uint64
	handled    atomic.Uint64
	depth      atomic.Int32
	maxDepth   atomic.Int32
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]registration)}
}

// Register adds a handler for a command type and returns its remove
// function. Removal during an in-flight dispatch takes effect on the
// next dispatch. A nil handler panics: registration is a programming
// act, not input.
func (b *Bus) Register(t Type, h Handler, p Priority) func() {
	if h == nil {
		panic("command: Register with nil handler")
	}
	b.mu.Lock()
	b.nextID++
	b.nextSeq++
	reg := registration{id: b.nextID, handler: h, priority: p, seq: b.nextSeq}
	list := append(b.handlers[t], reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	b.handlers[t] = list
	b.mu.Unlock()

	id := reg.id
	return func() { b.unregister(t, id) }
}

func (b *Bus) unregister(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[t]
	for i, reg := range list {
		if reg.id == id {
			b.handlers[t] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[t]) == 0 {
		delete(b.handlers, t)
	}
}

// Dispatch routes a command to its handlers and reports whether any
// handler claimed it. A type with no handlers returns false.
func (b *Bus) Dispatch(t Type, payload any) bool {
	b.mu.RLock()
	list := b.handlers[t]
	snapshot := make([]registration, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	b.dispatched.Add(1)
	d := b.depth.Add(1)
	for {
		max := b.maxDepth.Load()
		if d <= max || b.maxDepth.CompareAndSwap(max, d) {
			break
		}
	}
	defer b.depth.Add(-1)

	for _, reg := range snapshot {
		if reg.handler(payload) {
			b.handled.Add(1)
			return true
		}
	}
	return false
}

// HandlerCount returns the number of handlers for a type.
func (b *Bus) HandlerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

// Types returns all types with at least one handler, sorted.
func (b *Bus) Types() []Type {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Type, 0, len(b.handlers))
	for t := range b.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats reports dispatch counters since creation.
type Stats struct {
	Dispatched uint64
	Handled    uint64
	MaxDepth   int32
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Dispatched: b.dispatched.Load(),
		Handled:    b.handled.Load(),
		MaxDepth:   b.maxDepth.Load(),
	}
}
