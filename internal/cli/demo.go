package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/inkwell/internal/autocomplete"
	"github.com/dshills/inkwell/internal/diag"
	"github.com/dshills/inkwell/internal/engine"
	"github.com/dshills/inkwell/internal/plugin"
	"github.com/dshills/inkwell/internal/search"
	"github.com/dshills/inkwell/internal/tui"
)

var demoFile string

// demoCmd represents the demo command.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Open the demo terminal editor",
	Long: `Open a small terminal editor backed by the editing engine.

Keystrokes dispatch commands through the engine's bus. Typing the
trigger sequence opens reference autocomplete against the page
search service (start one with "inkwell serve"). Lua plugins from
the plugin directory are loaded before the editor starts, and
engine diagnostics stream from the websocket hub address while the
editor runs.

Controls:
  type      Insert text
  [[        Open reference autocomplete
  up/down   Move the dropdown selection
  Enter     Commit the selected reference, or split the paragraph
  Esc       Cancel autocomplete, keeping the text as typed
  Ctrl+Z/Y  Undo / redo
  Ctrl+S    Save to --file
  Ctrl+C    Quit`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoFile, "file", "", "document JSON to load and save")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	// Panic recovery so a crashed editor leaves a stack trace instead
	// of a wedged terminal.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic in demo: %v\n", r)
			fmt.Fprintf(os.Stderr, "stack trace:\n%s\n", debug.Stack())
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The terminal belongs to the editor while the program runs, so
	// diagnostics and plugin logs go to the websocket hub, not stderr.
	hub := diag.NewHub()
	defer hub.Close()
	diags := diag.New(
		diag.WithWriter(io.Discard),
		diag.WithLevel(cfg.Diag.ParsedLevel()),
		diag.WithHub(hub),
	)
	log := zerolog.New(hubWriter{hub: hub}).With().Timestamp().Logger().
		Level(cfg.Diag.ParsedLevel())

	mux := http.NewServeMux()
	mux.Handle("/diag", hub)
	diagSrv := &http.Server{
		Addr:              cfg.Diag.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := diagSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("diagnostics hub unavailable")
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = diagSrv.Shutdown(ctx)
	}()

	ed := engine.New(
		engine.WithDiagnostics(diags),
		engine.WithHistoryWindow(cfg.Editor.CoalesceDuration()),
		engine.WithMaxUndoEntries(cfg.Editor.HistoryLimit),
	)
	defer ed.Dispose()

	if demoFile != "" {
		data, err := os.ReadFile(demoFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// First save creates it.
		case err != nil:
			return fmt.Errorf("reading %s: %w", demoFile, err)
		default:
			warnings, err := ed.LoadJSON(data)
			if err != nil {
				return fmt.Errorf("loading %s: %w", demoFile, err)
			}
			for _, w := range warnings {
				diags.Warn("load", w.String())
			}
		}
	}
	if err := ed.Update(func(tx *engine.WriteTx) error { return tx.SelectEnd() }); err != nil {
		return fmt.Errorf("placing caret: %w", err)
	}

	searcher := search.NewClient(search.Config{
		BaseURL: cfg.Search.BaseURL,
		Timeout: cfg.Search.TimeoutDuration(),
	})
	machine := autocomplete.New(ed, searcher,
		autocomplete.WithTrigger(cfg.Editor.Trigger),
		autocomplete.WithMaxItems(cfg.Search.MaxItems),
		autocomplete.WithRate(cfg.Search.Rate, cfg.Search.Burst),
		autocomplete.WithDiagnostics(diags),
	)
	defer machine.Close()

	plugins := plugin.NewManager(ed, cfg.Plugins.Dir, plugin.WithManagerLogger(log))
	defer func() {
		if err := plugins.Close(); err != nil {
			log.Warn().Err(err).Msg("plugin shutdown")
		}
	}()
	for _, h := range plugins.LoadAll() {
		log.Info().Str("plugin", h.Manifest().Name).Msg("plugin active")
	}

	model := tui.New(tui.Options{
		Editor:   ed,
		Machine:  machine,
		SavePath: demoFile,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("demo error: %w", err)
	}
	return nil
}
