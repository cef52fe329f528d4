// Package api serves read access to persisted books and their change
// history over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aluiziolira/bookwatch/store"
)

// Server exposes the query endpoints on top of the store. It holds no
// crawl logic: thin filters over persisted state.
type Server struct {
	store    *store.Store
	keys     map[string]struct{}
	limiters *keyLimiters
}

// NewServer builds a server. With no keys configured, authentication
// and per-key throttling are disabled (local development mode).
func NewServer(st *store.Store, keys []string, ratePerHour int) *Server {
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			keySet[k] = struct{}{}
		}
	}
	return &Server{
		store:    st,
		keys:     keySet,
		limiters: newKeyLimiters(ratePerHour),
	}
}

// Routes assembles the chi router for the query API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Use(s.throttle)
	r.Get("/books", s.handleListBooks)
	r.Get("/books/{id}", s.handleGetBook)
	r.Get("/changes", s.handleChanges)
	return r
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := store.BookQuery{
		Category: r.URL.Query().Get("category"),
		SortBy:   r.URL.Query().Get("sort_by"),
	}
	if !store.ValidSort(q.SortBy) {
		writeError(w, http.StatusBadRequest, "sort_by must be one of rating, price_excl_tax, num_reviews")
		return
	}

	var err error
	if q.MinPrice, err = floatParam(r, "min_price"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_price")
		return
	}
	if q.MaxPrice, err = floatParam(r, "max_price"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_price")
		return
	}
	if q.MinRating, err = floatParam(r, "rating"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rating")
		return
	}
	q.Page = intParam(r, "page", 1)
	q.Limit = intParam(r, "limit", 10)

	books, err := s.store.QueryBooks(r.Context(), q)
	if err != nil {
		slog.Error("query books failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"page":    q.Page,
		"limit":   q.Limit,
		"count":   len(books),
		"results": books,
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	book, err := s.store.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Book not found")
			return
		}
		slog.Error("get book failed", slog.String("id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 20)
	entries, err := s.store.RecentChanges(r.Context(), limit)
	if err != nil {
		slog.Error("query changes failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"results": entries,
	})
}

func floatParam(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
