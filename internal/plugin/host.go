package plugin

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/textmetric"
)

// Host runs one plugin in its own sandboxed interpreter and bridges
// it to the editor's command bus. Handlers registered through
// inkwell.on_command run at plugin priority, below the editor's
// defaults, and may dispatch further commands into the transaction
// that invoked them.
//
// A Host is not safe for concurrent use. Run Load, Call, and the
// editor updates that reach its handlers on one goroutine; the
// interpreter shares that discipline with the editor itself.
type Host struct {
	manifest *Manifest
	ed       *engine.Editor
	log      zerolog.Logger

	mu      sync.Mutex
	L       *lua.LState
	removes []func()
	loaded  bool
	closed  bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLogger routes plugin log output through the given logger.
func WithHostLogger(log zerolog.Logger) HostOption {
	return func(h *Host) { h.log = log }
}

// NewHost prepares a host for the plugin described by the manifest.
// Nothing runs until Load.
func NewHost(m *Manifest, ed *engine.Editor, opts ...HostOption) (*Host, error) {
	if m == nil {
		return nil, ErrNilManifest
	}
	h := &Host{manifest: m, ed: ed, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With().Str("plugin", m.Name).Logger()
	return h, nil
}

// Manifest returns the loaded plugin's manifest.
func (h *Host) Manifest() *Manifest { return h.manifest }

// Loaded reports whether the entry script has run.
func (h *Host) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Load builds the sandboxed interpreter, installs the inkwell module,
// and runs the entry script. A script error or panic tears the state
// back down, including any handlers the script registered before
// failing.
func (h *Host) Load() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	if h.loaded {
		h.mu.Unlock()
		return ErrAlreadyLoaded
	}
	h.loaded = true
	h.mu.Unlock()

	L := newLuaState()
	h.install(L)
	if err := h.runEntry(L); err != nil {
		h.unregisterAll()
		L.Close()
		h.mu.Lock()
		h.loaded = false
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.L = L
	h.mu.Unlock()
	h.log.Info().Str("version", h.manifest.Version).Msg("plugin loaded")
	return nil
}

// runEntry executes the entry script, converting a panic in the
// interpreter into an error.
func (h *Host) runEntry(L *lua.LState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s: entry panic: %v", h.manifest.Name, r)
		}
	}()
	if err := L.DoFile(h.manifest.EntryPath()); err != nil {
		return fmt.Errorf("plugin %s: %w", h.manifest.Name, err)
	}
	return nil
}

// install wires the inkwell module and a logging print into the state.
func (h *Host) install(L *lua.LState) {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"on_command": h.luaOnCommand,
		"dispatch":   h.luaDispatch,
		"text":       h.luaText,
		"words":      h.luaWords,
		"version":    h.luaVersion,
		"log":        h.luaLog,
	})
	L.SetGlobal("inkwell", mod)
	L.SetGlobal("print", L.NewFunction(h.luaPrint))
}

// luaOnCommand registers fn as a bus handler at plugin priority.
// The registration lives until the host closes.
func (h *Host) luaOnCommand(L *lua.LState) int {
	typ := command.Type(L.CheckString(1))
	fn := L.CheckFunction(2)
	remove := h.ed.RegisterCommand(typ, func(payload any) bool {
		return h.invoke(L, fn, payload)
	}, command.PriorityPlugin)
	h.mu.Lock()
	h.removes = append(h.removes, remove)
	h.mu.Unlock()
	return 0
}

// invoke calls a registered handler with the bridged payload. A Lua
// runtime error is logged and leaves the command unclaimed so lower
// priority handlers still see it.
func (h *Host) invoke(L *lua.LState, fn *lua.LFunction, payload any) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.mu.Unlock()

	L.Push(fn)
	L.Push(toLua(L, payload))
	if err := L.PCall(1, 1, nil); err != nil {
		h.log.Warn().Err(err).Msg("handler error")
		return false
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

// luaDispatch routes a command back into the editor. Inside a handler
// it joins the active transaction so the plugin's edits land in the
// same history entry; otherwise it opens a fresh update.
func (h *Host) luaDispatch(L *lua.LState) int {
	typ := command.Type(L.CheckString(1))
	payload := payloadFromLua(typ, L.Get(2))

	var handled bool
	if tx := h.ed.Tx(); tx != nil {
		handled = tx.Dispatch(typ, payload)
	} else {
		handled = h.ed.Dispatch(typ, payload)
	}
	L.Push(lua.LBool(handled))
	return 1
}

func (h *Host) luaText(L *lua.LState) int {
	L.Push(lua.LString(h.documentText()))
	return 1
}

func (h *Host) luaWords(L *lua.LState) int {
	L.Push(lua.LNumber(textmetric.Words(h.documentText())))
	return 1
}

func (h *Host) luaVersion(L *lua.LState) int {
	L.Push(lua.LNumber(h.ed.Version()))
	return 1
}

func (h *Host) luaLog(L *lua.LState) int {
	h.log.Info().Msg(L.CheckString(1))
	return 0
}

// luaPrint replaces the stock print so sandboxed scripts write to the
// plugin log instead of stdout.
func (h *Host) luaPrint(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = lua.LVAsString(L.ToStringMeta(L.Get(i + 1)))
	}
	h.log.Debug().Msg(strings.Join(parts, "\t"))
	return 0
}

// documentText reads the full document, joining the active
// transaction when called from inside one.
func (h *Host) documentText() string {
	if tx := h.ed.Tx(); tx != nil {
		if text, err := tx.TextContent(tx.Root()); err == nil {
			return text
		}
	}
	return h.ed.TextContent()
}

// Call invokes a global function defined by the plugin script and
// returns its results as Go values.
func (h *Host) Call(fn string, args ...any) ([]any, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHostClosed
	}
	if !h.loaded || h.L == nil {
		h.mu.Unlock()
		return nil, ErrNotLoaded
	}
	L := h.L
	h.mu.Unlock()

	f, ok := L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFunction, fn)
	}

	top := L.GetTop()
	L.Push(f)
	for _, arg := range args {
		L.Push(toLua(L, arg))
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("plugin %s: %w", h.manifest.Name, err)
	}

	n := L.GetTop() - top
	if n <= 0 {
		return nil, nil
	}
	results := make([]any, n)
	for i := range results {
		results[i] = fromLua(L.Get(top + i + 1))
	}
	L.Pop(n)
	return results, nil
}

// Global returns a plugin global as a Go value, or nil when the host
// is not loaded or the name is unset.
func (h *Host) Global(name string) any {
	h.mu.Lock()
	L := h.L
	h.mu.Unlock()
	if L == nil {
		return nil
	}
	return fromLua(L.GetGlobal(name))
}

// unregisterAll removes every bus handler this host registered.
func (h *Host) unregisterAll() {
	h.mu.Lock()
	removes := h.removes
	h.removes = nil
	h.mu.Unlock()
	for _, remove := range removes {
		remove()
	}
}

// Close unregisters the host's bus handlers and shuts the interpreter
// down. Closing twice is harmless.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	removes := h.removes
	h.removes = nil
	L := h.L
	h.L = nil
	h.mu.Unlock()

	for _, remove := range removes {
		remove()
	}
	if L != nil {
		L.Close()
	}
	h.log.Debug().Msg("plugin closed")
	return nil
}
