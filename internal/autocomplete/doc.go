// Package autocomplete turns a typed marker pair into a live reference
// search. The Machine registers interceptor handlers on an editor's
// command bus and runs a two-phase episode state machine:
//
//	idle      normal typing; watching for the trigger sequence
//	triggered a placeholder node holds the in-progress query and a
//	          dropdown tracks the latest search results
//
// Typing the second marker of the trigger sequence converts the
// markers into a placeholder node and opens an episode. Every further
// keystroke updates the placeholder's query and issues a
// sequence-numbered search; responses that were superseded before they
// arrived never reach the dropdown. Confirming a result replaces the
// placeholder with an atomic reference node in one transaction.
// Escape, backspacing past the trigger boundary, or moving the caret
// out of the placeholder cancels the episode and restores the typed
// characters as literal text.
//
// The machine never renders. Embedders subscribe to dropdown snapshots
// with OnDropdown and draw the floating list themselves.
package autocomplete
