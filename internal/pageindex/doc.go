// Package pageindex is the local page-title index behind the reference
// search service. A SQLite store holds {id, title} pairs, Search does
// case-insensitive substring matching ranked by match position, and
// Handler exposes the store over the HTTP boundary the editor's search
// client speaks.
package pageindex
