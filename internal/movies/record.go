// Package movies defines the movie record and the TMDB lookup service.
package movies

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotFound is returned by a Lookup when no movie matches the query.
var ErrNotFound = errors.New("movie not found")

// Lookup resolves a free-text title to its best-match movie.
type Lookup interface {
	Search(ctx context.Context, query string) (*Record, error)
}

// Record is a movie as held in a watchlist or returned by a lookup.
type Record struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Genres        string  `json:"genres"`
	Rating        float64 `json:"rating"`
	Runtime       int     `json:"runtime"`
	OriginalTitle string  `json:"original_title,omitempty"`
	Overview      string  `json:"overview,omitempty"`
	ReleaseDate   string  `json:"release_date,omitempty"`
	Poster        string  `json:"poster,omitempty"`
}

// WatchlistEntry returns the slim copy stored in a watchlist: the
// fields needed to filter, rank, and schedule.
func (r Record) WatchlistEntry() Record {
	return Record{
		ID:      r.ID,
		Title:   r.Title,
		Genres:  r.Genres,
		Rating:  r.Rating,
		Runtime: r.Runtime,
	}
}

// GenreSet returns the record's genres lowercased and trimmed.
func (r Record) GenreSet() []string {
	if strings.TrimSpace(r.Genres) == "" {
		return nil
	}
	parts := strings.Split(r.Genres, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if g := strings.ToLower(strings.TrimSpace(p)); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// UnmarshalJSON decodes a record leniently. Imported watchlists may
// carry rating and runtime as numbers, numeric strings, or null; any
// value that does not parse becomes zero.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID            json.RawMessage `json:"id"`
		Title         string          `json:"title"`
		Genres        json.RawMessage `json:"genres"`
		Rating        json.RawMessage `json:"rating"`
		Runtime       json.RawMessage `json:"runtime"`
		OriginalTitle string          `json:"original_title"`
		Overview      string          `json:"overview"`
		ReleaseDate   string          `json:"release_date"`
		Poster        string          `json:"poster"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, ok := lenientNumber(raw.ID)
	if !ok || id != math.Trunc(id) {
		return errors.New("movie record: id must be an integer")
	}

	*r = Record{
		ID:            int64(id),
		Title:         raw.Title,
		Genres:        lenientGenres(raw.Genres),
		OriginalTitle: raw.OriginalTitle,
		Overview:      raw.Overview,
		ReleaseDate:   raw.ReleaseDate,
		Poster:        raw.Poster,
	}
	if v, ok := lenientNumber(raw.Rating); ok {
		r.Rating = v
	}
	if v, ok := lenientNumber(raw.Runtime); ok {
		r.Runtime = int(v)
	}
	return nil
}

// lenientNumber accepts a JSON number or a string holding one.
func lenientNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// lenientGenres accepts the comma-joined string form or a list of names.
func lenientGenres(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}

// roundTenth rounds to one decimal place.
func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}
