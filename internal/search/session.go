package search

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dshills/inkwell/internal/diag"
)

// Searcher is the boundary to the reference-search service.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Delivery carries the outcome of one search back to the sink.
type Delivery struct {
	// Query is the text that was searched.
	Query string

	// Seq is the sequence number the search was issued under.
	Seq uint64

	// Results holds the matches, empty when the search failed.
	Results []Result

	// Failed reports a service failure behind the empty results.
	Failed bool
}

// Session issues sequence-numbered searches and discards superseded
// responses. One session serves one dropdown at a time; Invalidate
// ends the current episode and silences whatever is still in flight.
type Session struct {
	searcher Searcher
	diag     *diag.Diagnostics
	limiter  *rate.Limiter

	mu      sync.Mutex
	episode uint64
	seq     uint64

	// applyMu serializes sink calls so the freshness check and the
	// delivery are one step. Sinks must not call Issue from inside.
	applyMu sync.Mutex
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDiagnostics routes failure and staleness reports to d.
func WithDiagnostics(d *diag.Diagnostics) SessionOption {
	return func(s *Session) {
		if d != nil {
			s.diag = d
		}
	}
}

// WithRate throttles issued searches to perSecond with the given
// burst. Zero or negative values leave the session unthrottled.
func WithRate(perSecond float64, burst int) SessionOption {
	return func(s *Session) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewSession creates a session over the given searcher.
func NewSession(searcher Searcher, opts ...SessionOption) *Session {
	s := &Session{
		searcher: searcher,
		diag:     diag.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue starts an asynchronous search for query and returns its
// sequence number. The sink runs on the search goroutine, and only
// while the response is still the latest issued for the episode.
func (s *Session) Issue(ctx context.Context, query string, sink func(Delivery)) uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	episode := s.episode
	s.mu.Unlock()

	go s.run(ctx, episode, seq, query, sink)
	return seq
}

// Invalidate ends the current episode. Responses already in flight are
// discarded on arrival; sequence numbers keep climbing across
// episodes.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.episode++
	s.mu.Unlock()
}

// Latest returns the most recently issued sequence number.
func (s *Session) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Session) run(ctx context.Context, episode, seq uint64, query string, sink func(Delivery)) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}

	// Skip the request entirely when another keystroke already
	// superseded this one while it sat in the limiter.
	if !s.fresh(episode, seq) {
		s.diag.StaleResponse(query, seq, s.Latest())
		return
	}

	results, err := s.searcher.Search(ctx, query)
	if err != nil && ctx.Err() != nil {
		// Shutdown, not a service failure.
		return
	}
	failed := err != nil
	if failed {
		s.diag.SearchFailure(query, err)
		results = nil
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if !s.fresh(episode, seq) {
		s.diag.StaleResponse(query, seq, s.Latest())
		return
	}
	sink(Delivery{Query: query, Seq: seq, Results: results, Failed: failed})
}

func (s *Session) fresh(episode, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return episode == s.episode && seq == s.seq
}
