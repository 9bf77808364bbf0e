// Package engine provides the headless structured document editor at
// the core of Inkwell.
//
// The engine package serves as the main facade, combining the
// copy-on-write node tree, command dispatch, selection tracking, and
// coalescing undo history into a unified, thread-safe API suitable for
// embedding under any front end.
//
// # Architecture
//
// The editor is built on several sub-packages:
//
//   - node: keyed copy-on-write document trees with a kind registry
//   - selection: anchor/focus points addressed by node key and offset
//   - history: generic undo/redo manager with keystroke coalescing
//   - command (internal/command): the priority-ordered command bus
//   - serial (internal/serial): the JSON wire form of a document
//
// # The Update Cycle
//
// Every mutation runs inside an update. The editor forks the committed
// tree, hands an ephemeral WriteTx to the update function, and when the
// function returns cleanly it prunes empty text nodes, normalizes the
// selection, validates the result, and publishes it as the next
// immutable State with a bumped version. Any error instead discards
// the fork; the committed state is untouched and the error comes back
// wrapped in ErrRollback.
//
// Committed states are immutable and shared: readers, listeners, and
// the history manager all hold the same *State values. Undo does not
// mutate anything either; it republishes an earlier state under a new
// version number, so the version counter never moves backward.
//
// # Basic Usage
//
// Create an editor and build a document:
//
//	ed := engine.New()
//	err := ed.Update(func(tx *engine.WriteTx) error {
//		para, _ := tx.CreateParagraph()
//		text, _ := tx.CreateText("Hello, World!")
//		if err := tx.AppendChild(tx.Root(), para); err != nil {
//			return err
//		}
//		if err := tx.AppendChild(para, text); err != nil {
//			return err
//		}
//		return tx.SetSelection(selection.Caret(text, 13))
//	})
//
// Read back through an immutable view:
//
//	ed.Read(func(r *engine.ReadTx) {
//		fmt.Println(r.TextContent()) // "Hello, World!"
//	})
//
// # Commands
//
// High-level editing goes through the command bus. The editor installs
// fallback-tier handlers for typing, deletion, block splitting,
// selection moves, reference insertion, and history stepping;
// interceptors register above them and claim commands first:
//
//	ed.Dispatch(command.InsertText, command.TextPayload{Text: "x"})
//	ed.Dispatch(command.Undo, nil)
//
// A handler runs inside the update that wraps the dispatch and edits
// through the active transaction. Handlers that need to trigger
// further commands synchronously use WriteTx.Dispatch.
//
// # Concurrency
//
// All methods are safe for concurrent use. Updates are serialized: one
// runs at a time, and an Update, Dispatch, Undo, or Hydrate arriving
// while another update is in flight is queued and applied after it
// commits, never interleaved. Reads never block behind updates; they
// see the most recently committed state.
package engine
