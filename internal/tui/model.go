// Package tui is the demo editor: a terminal front end driving the
// engine through its command bus. Keystrokes become dispatched
// commands, the document view re-renders from committed state, and
// the completion dropdown follows the machine's render hints.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/inkwell/internal/autocomplete"
	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/engine/node"
	"github.com/dshills/inkwell/internal/engine/selection"
	"github.com/dshills/inkwell/internal/serial"
	"github.com/dshills/inkwell/internal/textmetric"
)

const caretGlyph = "▏"

// dropdownMsg carries a render hint from the completion machine into
// the update loop.
type dropdownMsg autocomplete.Dropdown

// Options configures the demo editor model.
type Options struct {
	// Editor is the engine instance to drive. Required.
	Editor *engine.Editor

	// Machine is the completion state machine, already registered on
	// the editor. Optional; without it the dropdown never opens.
	Machine *autocomplete.Machine

	// SavePath is where ctrl+s writes the document JSON.
	SavePath string

	// Styles overrides the default theme.
	Styles *Styles
}

// Model is the bubbletea model for the demo editor.
type Model struct {
	ed      *engine.Editor
	machine *autocomplete.Machine
	styles  *Styles

	viewport viewport.Model
	spinner  spinner.Model

	dropdown autocomplete.Dropdown
	hints    chan autocomplete.Dropdown
	unhook   func()

	savePath string
	status   string

	width  int
	height int
	ready  bool
}

// New builds a model around an editor. Call Close after the program
// exits to detach from the machine.
func New(opts Options) *Model {
	if opts.Styles == nil {
		opts.Styles = DefaultStyles()
	}
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = opts.Styles.Caret

	m := &Model{
		ed:       opts.Editor,
		machine:  opts.Machine,
		styles:   opts.Styles,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		hints:    make(chan autocomplete.Dropdown, 16),
		savePath: opts.SavePath,
	}
	if m.machine != nil {
		m.dropdown = m.machine.Dropdown()
		m.unhook = m.machine.OnDropdown(m.pushHint)
	}
	m.refresh()
	return m
}

// pushHint forwards a hint without ever blocking the commit path.
// When the buffer is full the oldest hint is dropped; only the latest
// state matters to the view.
func (m *Model) pushHint(d autocomplete.Dropdown) {
	for {
		select {
		case m.hints <- d:
			return
		default:
		}
		select {
		case <-m.hints:
		default:
		}
	}
}

// Close detaches the model from the completion machine.
func (m *Model) Close() {
	if m.unhook != nil {
		m.unhook()
		m.unhook = nil
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitHint())
}

// waitHint blocks until the machine publishes a dropdown state, then
// collapses any backlog down to the newest one.
func (m *Model) waitHint() tea.Cmd {
	return func() tea.Msg {
		d := <-m.hints
		for {
			select {
			case d = <-m.hints:
			default:
				return dropdownMsg(d)
			}
		}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-chromeLines)
		m.ready = true
		m.refresh()
		return m, nil

	case dropdownMsg:
		m.dropdown = autocomplete.Dropdown(msg)
		m.refresh()
		return m, m.waitHint()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// chromeLines is the vertical space used around the viewport: title,
// dropdown area, status bar.
const chromeLines = 12

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyCtrlS:
		m.save()

	case tea.KeyCtrlZ:
		if !m.ed.Dispatch(command.Undo, nil) {
			m.status = "nothing to undo"
		}

	case tea.KeyCtrlY:
		if !m.ed.Dispatch(command.Redo, nil) {
			m.status = "nothing to redo"
		}

	case tea.KeyEsc:
		m.ed.Dispatch(command.KeyEscape, nil)

	case tea.KeyEnter:
		// The machine claims enter while an episode is open.
		if !m.ed.Dispatch(command.KeyEnter, nil) {
			m.ed.Dispatch(command.InsertParagraph, nil)
		}

	case tea.KeyUp:
		if !m.ed.Dispatch(command.KeyArrowUp, nil) {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.KeyDown:
		if !m.ed.Dispatch(command.KeyArrowDown, nil) {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.KeyBackspace:
		m.ed.Dispatch(command.DeleteCharacter, command.DeletePayload{})

	case tea.KeyDelete:
		m.ed.Dispatch(command.DeleteCharacter, command.DeletePayload{Forward: true})

	case tea.KeySpace:
		m.ed.Dispatch(command.InsertText, command.TextPayload{Text: " "})

	case tea.KeyRunes:
		m.ed.Dispatch(command.InsertText, command.TextPayload{Text: string(msg.Runes)})
	}

	m.refresh()
	return m, nil
}

func (m *Model) save() {
	if m.savePath == "" {
		m.status = "no save path"
		return
	}
	var (
		data []byte
		serr error
	)
	err := m.ed.Read(func(r *engine.ReadTx) {
		data, _, serr = serial.SerializeIndent(r.Tree())
	})
	if err == nil {
		err = serr
	}
	if err == nil {
		err = os.WriteFile(m.savePath, data, 0o644)
	}
	if err != nil {
		m.status = "save failed: " + err.Error()
		return
	}
	m.status = "saved " + m.savePath
}

// refresh re-renders the document into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderDocument())
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "loading"
	}
	sections := []string{
		m.styles.Title.Render("inkwell"),
		m.viewport.View(),
	}
	if m.dropdown.Visible {
		sections = append(sections, m.renderDropdown())
	}
	sections = append(sections, m.renderStatus())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderDocument() string {
	var lines []string
	_ = m.ed.Read(func(r *engine.ReadTx) {
		sel := r.Selection()
		root, ok := r.Get(r.Root())
		if !ok {
			return
		}
		for _, bk := range root.Children() {
			var b strings.Builder
			if n, ok := r.Get(bk); ok {
				m.renderNode(r, n, sel, &b)
			}
			lines = append(lines, b.String())
		}
	})
	if len(lines) == 0 {
		return m.styles.Muted.Render("start typing")
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderNode(r *engine.ReadTx, n *node.Node, sel selection.Selection, b *strings.Builder) {
	caret := sel.Focus
	switch n.Kind() {
	case node.KindText:
		if caret.Node == n.Key() {
			rs := []rune(n.Text())
			at := caret.Offset
			if at < 0 {
				at = 0
			}
			if at > len(rs) {
				at = len(rs)
			}
			b.WriteString(string(rs[:at]))
			b.WriteString(m.styles.Caret.Render(caretGlyph))
			b.WriteString(string(rs[at:]))
			return
		}
		b.WriteString(n.Text())

	case node.KindReference:
		label := n.Label()
		if label == "" {
			label = n.Target()
		}
		b.WriteString(m.styles.Reference.Render(label))
		if caret.Node == n.Key() {
			b.WriteString(m.styles.Caret.Render(caretGlyph))
		}

	case node.KindPlaceholder:
		b.WriteString(m.styles.Placeholder.Render(node.TriggerSequence + n.Query()))
		if caret.Node == n.Key() {
			b.WriteString(m.styles.Caret.Render(caretGlyph))
		}

	default:
		kids := n.Children()
		for i, ck := range kids {
			if caret.Node == n.Key() && caret.Offset == i {
				b.WriteString(m.styles.Caret.Render(caretGlyph))
			}
			cn, ok := r.Get(ck)
			if !ok {
				continue
			}
			m.renderNode(r, cn, sel, b)
		}
		if caret.Node == n.Key() && caret.Offset >= len(kids) {
			b.WriteString(m.styles.Caret.Render(caretGlyph))
		}
	}
}

func (m *Model) renderDropdown() string {
	d := m.dropdown
	header := node.TriggerSequence + d.Query
	if d.Searching {
		header += " " + m.spinner.View()
	}
	lines := []string{m.styles.Muted.Render(header)}
	switch {
	case d.Failed:
		lines = append(lines, m.styles.Error.Render("search unavailable"))
	case len(d.Items) == 0 && !d.Searching:
		lines = append(lines, m.styles.Muted.Render("no matches"))
	default:
		for i, it := range d.Items {
			if i == d.Selected {
				lines = append(lines, m.styles.Selected.Render("> "+it.Title))
				continue
			}
			lines = append(lines, m.styles.Item.Render("  "+it.Title))
		}
	}
	return m.styles.Dropdown.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderStatus() string {
	var text string
	_ = m.ed.Read(func(r *engine.ReadTx) {
		text = r.TextContent()
	})
	parts := []string{
		fmt.Sprintf("v%d", m.ed.Version()),
		fmt.Sprintf("%d words", textmetric.Words(text)),
	}
	if m.machine != nil && m.machine.Phase() == autocomplete.Triggered {
		parts = append(parts, "completing")
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	left := strings.Join(parts, "  ")
	help := m.styles.Muted.Render("ctrl+s save  ctrl+z undo  ctrl+y redo  ctrl+c quit")
	return m.styles.StatusBar.Render(left + "  " + help)
}
