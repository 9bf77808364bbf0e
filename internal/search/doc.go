// Package search talks to the reference-search service that backs the
// autocomplete dropdown.
//
// Client is a plain HTTP adapter: POST {"query"} to the service,
// decode {"results"}. Session layers the concurrency discipline on
// top: every search it issues carries a monotonically increasing
// sequence number, and a response is handed to the caller's sink only
// while it is still the latest issued for the current episode. A slow
// response to an early keystroke can therefore never overwrite the
// results of a later one, and invalidating the episode silences
// everything still in flight.
//
// Service failures are not errors to the editing loop. A failed search
// delivers an empty, failure-flagged result set and the next keystroke
// simply tries again.
package search
