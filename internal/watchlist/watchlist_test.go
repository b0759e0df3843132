package watchlist

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nugget/cinebot/internal/movies"
)

func rec(id int64, title, genres string, rating float64, runtime int) movies.Record {
	return movies.Record{ID: id, Title: title, Genres: genres, Rating: rating, Runtime: runtime}
}

func titles(list []movies.Record) string {
	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Title
	}
	return strings.Join(names, ",")
}

func TestAdd_DuplicateReturnsExists(t *testing.T) {
	w := New()
	if r := w.Add(rec(1, "Heat", "Crime", 8, 170)); r.Status != StatusSuccess {
		t.Fatalf("first add = %+v, want success", r)
	}
	r := w.Add(rec(1, "Heat", "Crime", 8, 170))
	if r.Status != StatusExists {
		t.Errorf("second add status = %q, want exists", r.Status)
	}
	if r.Title != "Heat" {
		t.Errorf("title = %q", r.Title)
	}
	if w.Len() != 1 {
		t.Errorf("Len = %d after duplicate add, want 1", w.Len())
	}
}

func TestRemove(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "", 0, 0))
	w.Add(rec(2, "B", "", 0, 0))
	w.Add(rec(3, "C", "", 0, 0))

	r := w.Remove(2, "B")
	if r.Status != StatusSuccess || r.Title != "B" {
		t.Errorf("remove = %+v", r)
	}
	if got := titles(w.List()); got != "A,C" {
		t.Errorf("after remove = %s, want A,C", got)
	}
	if w.Contains(2) {
		t.Error("Contains(2) after removal")
	}
}

func TestRemove_AbsentFails(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "", 0, 0))

	r := w.Remove(99, "Ghost")
	if r.Status != StatusFailed {
		t.Errorf("status = %q, want failed", r.Status)
	}
	if !strings.Contains(r.Message, "Ghost") {
		t.Errorf("message = %q, want title named", r.Message)
	}
	if w.Len() != 1 {
		t.Errorf("Len = %d, want 1", w.Len())
	}
}

func TestFilterByGenre(t *testing.T) {
	w := New()
	w.Add(rec(1, "Arrival", "Science Fiction, Drama", 8, 116))
	w.Add(rec(2, "Alien", "Horror, Science Fiction", 8.5, 117))
	w.Add(rec(3, "Starship", "Action, Sci-Fi", 7, 129))
	w.Add(rec(4, "Heat", "Crime, Drama", 8.3, 170))
	w.Add(rec(5, "Dramatic", "Dramatic Comedy", 6, 90))

	tests := []struct {
		genre string
		want  string
	}{
		{"", "Arrival,Alien,Starship,Heat,Dramatic"},
		{"ANY", "Arrival,Alien,Starship,Heat,Dramatic"},
		{" Bebas", "Arrival,Alien,Starship,Heat,Dramatic"},
		{"sci-fi", "Arrival,Alien"},
		{"  Science Fiction ", "Arrival,Alien"},
		{"drama", "Arrival,Heat"},
		{"western", ""},
	}
	for _, tt := range tests {
		if got := titles(w.FilterByGenre(tt.genre)); got != tt.want {
			t.Errorf("FilterByGenre(%q) = %s, want %s", tt.genre, got, tt.want)
		}
	}
}

func TestFilterByGenre_ReturnsCopy(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "Drama", 5, 90))

	got := w.FilterByGenre("any")
	got[0].Title = "mutated"
	if w.List()[0].Title != "A" {
		t.Error("mutating the filter result changed the watchlist")
	}
}

func TestRecommendByTime_GreedySkipsNotStops(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "Drama", 9, 120))
	w.Add(rec(2, "B", "Drama", 8, 90))
	w.Add(rec(3, "C", "Drama", 7, 30))

	r := w.RecommendByTime("any", 150)
	if !r.Found {
		t.Fatalf("recommendation not found: %+v", r)
	}
	if got := titles(r.Movies); got != "A,C" {
		t.Errorf("selected = %s, want A,C", got)
	}
	if r.TotalRuntime != 150 {
		t.Errorf("total runtime = %d, want 150", r.TotalRuntime)
	}
	if r.TotalMovies != 2 {
		t.Errorf("total movies = %d, want 2", r.TotalMovies)
	}
	if r.GenreRequested != "any" {
		t.Errorf("genre requested = %q, want verbatim echo", r.GenreRequested)
	}
}

func TestRecommendByTime_EchoesEmptyGenre(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "Drama", 9, 100))

	r := w.RecommendByTime("", 120)
	if !r.Found || r.GenreRequested != "" {
		t.Fatalf("recommendation = %+v", r)
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"genre_requested":""`) {
		t.Errorf("JSON = %s, want genre_requested echoed", data)
	}
}

func TestRecommendByTime_StableTies(t *testing.T) {
	w := New()
	w.Add(rec(1, "First", "Comedy", 7, 60))
	w.Add(rec(2, "Second", "Comedy", 7, 60))
	w.Add(rec(3, "Best", "Comedy", 9, 60))

	r := w.RecommendByTime("Comedy", 180)
	if got := titles(r.Movies); got != "Best,First,Second" {
		t.Errorf("order = %s, want Best,First,Second", got)
	}
}

func TestRecommendByTime_ZeroRuntimeAlwaysFits(t *testing.T) {
	w := New()
	w.Add(rec(1, "Long", "Drama", 9, 200))
	w.Add(rec(2, "Unknown", "Drama", 5, 0))

	r := w.RecommendByTime("drama", 60)
	if got := titles(r.Movies); got != "Unknown" {
		t.Errorf("selected = %s, want Unknown", got)
	}
}

func TestRecommendByTime_Empty(t *testing.T) {
	w := New()
	for _, args := range []struct {
		genre string
		max   int
	}{{"any", 1000}, {"horror", 0}, {"", -5}} {
		r := w.RecommendByTime(args.genre, args.max)
		if r.Found || r.Message != EmptyMessage {
			t.Errorf("RecommendByTime(%q, %d) = %+v, want empty-watchlist failure", args.genre, args.max, r)
		}
	}
}

func TestRecommendByTime_NothingFits(t *testing.T) {
	w := New()
	w.Add(rec(1, "Epic", "History", 9, 240))

	r := w.RecommendByTime("History", 90)
	if r.Found {
		t.Fatal("expected not found")
	}
	if !strings.Contains(r.Message, "History") {
		t.Errorf("message = %q, want genre named", r.Message)
	}
}

func TestRecommendation_JSONEnvelope(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "Drama", 9, 100))
	data, err := json.Marshal(w.RecommendByTime("Drama", 120))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"found", "total_movies", "total_runtime", "genre_requested", "movies"} {
		if _, ok := got[key]; !ok {
			t.Errorf("envelope missing %q: %s", key, data)
		}
	}
}

func TestExportImport(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "Drama", 9, 100))
	w.Add(rec(2, "B", "Comedy", 7, 95))

	data, err := w.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	other := New()
	n, err := other.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 || titles(other.List()) != "A,B" {
		t.Errorf("imported %d: %s", n, titles(other.List()))
	}
	if !other.Contains(2) {
		t.Error("imported watchlist missing id 2")
	}
}

func TestImport_DedupesKeepingFirst(t *testing.T) {
	w := New()
	n, err := w.Import([]byte(`[
		{"id": 1, "title": "First"},
		{"id": 2, "title": "Other"},
		{"id": 1, "title": "Duplicate"}]`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 || titles(w.List()) != "First,Other" {
		t.Errorf("imported %d: %s", n, titles(w.List()))
	}
}

func TestImport_MalformedLeavesStateUnchanged(t *testing.T) {
	w := New()
	w.Add(rec(1, "Keep", "Drama", 8, 100))

	for _, bad := range []string{`not json`, `{"id": 1}`, `[{"title": "no id"}]`} {
		if _, err := w.Import([]byte(bad)); !errors.Is(err, ErrInvalidImport) {
			t.Errorf("Import(%q) err = %v, want ErrInvalidImport", bad, err)
		}
	}
	if titles(w.List()) != "Keep" {
		t.Errorf("state changed after failed imports: %s", titles(w.List()))
	}
}

func TestClear(t *testing.T) {
	w := New()
	w.Add(rec(1, "A", "", 0, 0))
	w.Clear()
	if w.Len() != 0 || w.Contains(1) {
		t.Error("Clear left movies behind")
	}
	if r := w.Add(rec(1, "A", "", 0, 0)); r.Status != StatusSuccess {
		t.Errorf("re-add after clear = %q", r.Status)
	}
}
