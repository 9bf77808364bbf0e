// Package diag is the engine's diagnostics channel. Every
// non-contractual signal the engine produces (invariant rollbacks,
// dropped nodes during hydration, search failures, update traces) goes
// through a Diagnostics value, which writes structured records via
// zerolog and optionally mirrors them to a websocket hub for live
// listeners.
package diag

import (
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Record is the frame mirrored to websocket listeners.
type Record struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Diagnostics emits engine diagnostics. The zero value is not usable;
// construct with New or Nop.
type Diagnostics struct {
	log zerolog.Logger
	hub *Hub
}

// Option configures Diagnostics.
type Option func(*Diagnostics)

// WithWriter directs log output to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(d *Diagnostics) {
		d.log = d.log.Output(w)
	}
}

// WithLevel sets the minimum level written to the log writer. The hub
// mirror is unaffected: connected listeners always receive records.
func WithLevel(l zerolog.Level) Option {
	return func(d *Diagnostics) {
		d.log = d.log.Level(l)
	}
}

// WithHub mirrors every record to a websocket hub.
func WithHub(h *Hub) Option {
	return func(d *Diagnostics) {
		d.hub = h
	}
}

// New returns Diagnostics writing timestamped structured records to
// stderr at warn level.
func New(opts ...Option) *Diagnostics {
	d := &Diagnostics{
		log: zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Nop returns Diagnostics that discard everything.
func Nop() *Diagnostics {
	return &Diagnostics{log: zerolog.Nop()}
}

func (d *Diagnostics) mirror(typ, msg string) {
	if d.hub != nil {
		d.hub.Broadcast(Record{Type: typ, Message: msg})
	}
}

// Rollback records a write transaction aborted by an invariant
// violation or handler failure. Non-fatal: the engine keeps the prior
// snapshot.
func (d *Diagnostics) Rollback(op string, err error) {
	d.log.Error().Str("type", "rollback").Str("op", op).Err(err).Msg("transaction rolled back")
	d.mirror("rollback", op+": "+err.Error())
}

// HandlerPanic records a command handler panic recovered at the
// dispatch boundary.
func (d *Diagnostics) HandlerPanic(cmd string, v any) {
	d.log.Error().Str("type", "handler").Str("command", cmd).Interface("panic", v).Msg("handler panicked")
	d.mirror("handler", cmd+" panicked")
}

// DroppedNode records an unknown discriminant discarded during
// deserialization.
func (d *Diagnostics) DroppedNode(kind string) {
	d.log.Warn().Str("type", "serialize").Str("kind", kind).Msg("unknown node kind dropped")
	d.mirror("serialize", "dropped unknown node kind "+kind)
}

// TransientFallback records a placeholder written out as literal text.
func (d *Diagnostics) TransientFallback(query string) {
	d.log.Warn().Str("type", "serialize").Str("query", query).Msg("placeholder serialized as text")
	d.mirror("serialize", "placeholder fell back to text: "+query)
}

// SearchFailure records a search request treated as an empty result
// set.
func (d *Diagnostics) SearchFailure(query string, err error) {
	d.log.Warn().Str("type", "search").Str("query", query).Err(err).Msg("search failed, treating as empty")
	d.mirror("search", "search failed for "+query)
}

// StaleResponse records a superseded search response discarded on
// arrival.
func (d *Diagnostics) StaleResponse(query string, seq, latest uint64) {
	d.log.Debug().Str("type", "search").Str("query", query).
		Uint64("seq", seq).Uint64("latest", latest).Msg("stale search response discarded")
	d.mirror("search", "discarded stale response for "+query)
}

// Update traces a committed transaction. Debug level; listeners on the
// hub see every commit.
func (d *Diagnostics) Update(version uint64, dirty int) {
	d.log.Debug().Str("type", "update").Uint64("version", version).Int("dirty", dirty).Msg("committed")
	d.mirror("update", "committed version "+strconv.FormatUint(version, 10))
}

// Warn records a free-form warning under a record type.
func (d *Diagnostics) Warn(typ, msg string) {
	d.log.Warn().Str("type", typ).Msg(msg)
	d.mirror(typ, msg)
}
