package pageindex

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []Page `json:"results"`
}

// Handler serves the search boundary over HTTP: a POST with a JSON
// query body returns matching pages. The wire shape matches what the
// editor's search client sends.
type Handler struct {
	store *Store
	log   zerolog.Logger
	limit int
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger routes request logging to log.
func WithLogger(log zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// WithLimit caps results per response.
func WithLimit(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.limit = n
		}
	}
}

// NewHandler returns the search endpoint over store.
func NewHandler(store *Store, opts ...HandlerOption) *Handler {
	h := &Handler{store: store, log: zerolog.Nop(), limit: DefaultLimit}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	pages, err := h.store.Search(r.Context(), req.Query, h.limit)
	if err != nil {
		h.log.Error().Err(err).Str("query", req.Query).Msg("page search failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if pages == nil {
		pages = []Page{}
	}
	h.log.Debug().Str("query", req.Query).Int("results", len(pages)).Msg("page search")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(searchResponse{Results: pages}); err != nil {
		h.log.Error().Err(err).Msg("writing search response")
	}
}
