// Package watchlist holds a session's ordered list of movies to watch
// and plans viewing sessions from it.
package watchlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nugget/cinebot/internal/movies"
)

// ErrInvalidImport is returned by Import when the payload cannot be
// decoded as a list of movie records.
var ErrInvalidImport = errors.New("invalid watchlist import")

// Status is the outcome of a mutating watchlist operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusExists  Status = "exists"
	StatusFailed  Status = "failed"
)

// Result reports the outcome of Add or Remove.
type Result struct {
	Status  Status `json:"status"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// Watchlist is an insertion-ordered set of movies keyed by ID. It is
// safe for concurrent use.
type Watchlist struct {
	mu     sync.RWMutex
	movies []movies.Record
	ids    map[int64]struct{}
}

// New returns an empty watchlist.
func New() *Watchlist {
	return &Watchlist{ids: make(map[int64]struct{})}
}

// Add appends rec unless a movie with the same ID is already present.
func (w *Watchlist) Add(rec movies.Record) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.ids[rec.ID]; ok {
		return Result{
			Status:  StatusExists,
			Title:   rec.Title,
			Message: fmt.Sprintf("'%s' is already in your watchlist.", rec.Title),
		}
	}
	w.movies = append(w.movies, rec)
	w.ids[rec.ID] = struct{}{}
	return Result{
		Status:  StatusSuccess,
		Title:   rec.Title,
		Message: fmt.Sprintf("Added '%s' to your watchlist.", rec.Title),
	}
}

// Remove deletes the first movie with the given ID. title is used
// only for the result message.
func (w *Watchlist) Remove(id int64, title string) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, m := range w.movies {
		if m.ID != id {
			continue
		}
		w.movies = append(w.movies[:i:i], w.movies[i+1:]...)
		delete(w.ids, id)
		return Result{
			Status:  StatusSuccess,
			Title:   title,
			Message: fmt.Sprintf("Removed '%s' from your watchlist.", title),
		}
	}
	return Result{
		Status:  StatusFailed,
		Message: fmt.Sprintf("'%s' is not in your watchlist.", title),
	}
}

// Contains reports whether a movie with the given ID is present.
func (w *Watchlist) Contains(id int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.ids[id]
	return ok
}

// Len returns the number of movies.
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.movies)
}

// List returns a copy of the movies in insertion order.
func (w *Watchlist) List() []movies.Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]movies.Record, len(w.movies))
	copy(out, w.movies)
	return out
}

// Clear removes every movie.
func (w *Watchlist) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.movies = nil
	w.ids = make(map[int64]struct{})
}

// FilterByGenre returns the movies whose genre list contains genre.
// An empty genre, "any" or "bebas" (case-insensitive) matches everything. The
// query is trimmed and lowercased, and "sci-fi" is read as "science
// fiction". Matching is by whole genre name, not substring. The
// returned slice is always a fresh copy.
func (w *Watchlist) FilterByGenre(genre string) []movies.Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return filterByGenre(w.movies, genre)
}

func filterByGenre(list []movies.Record, genre string) []movies.Record {
	target, all := NormalizeGenre(genre)
	out := make([]movies.Record, 0, len(list))
	for _, m := range list {
		if all || hasGenre(m, target) {
			out = append(out, m)
		}
	}
	return out
}

// NormalizeGenre returns the comparable form of a genre query and
// whether the query means "any genre".
func NormalizeGenre(genre string) (normalized string, all bool) {
	g := strings.ToLower(strings.TrimSpace(genre))
	switch g {
	case "", "any", "bebas":
		return "", true
	case "sci-fi":
		return "science fiction", false
	}
	return g, false
}

func hasGenre(m movies.Record, target string) bool {
	for _, g := range m.GenreSet() {
		if g == target {
			return true
		}
	}
	return false
}

// Export encodes the watchlist as a JSON array of records.
func (w *Watchlist) Export() ([]byte, error) {
	return json.MarshalIndent(w.List(), "", "  ")
}

// Import replaces the watchlist with the records in data, a JSON array.
// Later duplicates of an ID are dropped. On any decode error the
// watchlist is left unchanged. It returns the number of movies loaded.
func (w *Watchlist) Import(data []byte) (int, error) {
	var incoming []movies.Record
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	list := make([]movies.Record, 0, len(incoming))
	ids := make(map[int64]struct{}, len(incoming))
	for _, m := range incoming {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		list = append(list, m)
	}

	w.mu.Lock()
	w.movies = list
	w.ids = ids
	w.mu.Unlock()
	return len(list), nil
}
