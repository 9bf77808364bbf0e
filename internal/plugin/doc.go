// Package plugin runs Lua plugins against the editor's command bus.
//
// Each plugin lives in its own directory with a plugin.yaml manifest
// and an entry script. Scripts run in a sandboxed interpreter with no
// file, OS, or module loading access, and talk to the editor through
// the inkwell module:
//
//	inkwell.on_command(type, fn)  register a bus handler at plugin
//	                              priority; fn(payload) returns true
//	                              to claim the command
//	inkwell.dispatch(type, tbl)   dispatch a command, joining the
//	                              active transaction when called from
//	                              a handler
//	inkwell.text()                document text
//	inkwell.words()               document word count
//	inkwell.version()             committed document version
//	inkwell.log(msg)              write to the plugin log
package plugin
