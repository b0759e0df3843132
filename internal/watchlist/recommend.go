package watchlist

import (
	"fmt"
	"sort"

	"github.com/nugget/cinebot/internal/movies"
)

// EmptyMessage is returned when a recommendation is asked of an empty
// watchlist.
const EmptyMessage = "Your watchlist is empty. Add some movies first!"

// Recommendation is a planned viewing session.
type Recommendation struct {
	Found          bool            `json:"found"`
	TotalMovies    int             `json:"total_movies,omitempty"`
	TotalRuntime   int             `json:"total_runtime,omitempty"`
	GenreRequested string          `json:"genre_requested"`
	Movies         []movies.Record `json:"movies,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// RecommendByTime picks movies of the given genre that fit in
// maxMinutes. Candidates are ranked by rating, highest first, with ties
// kept in watchlist order. Each candidate is taken if it fits in the
// time still remaining; one that does not fit is skipped and the scan
// continues. The selection is greedy, not an optimal packing.
func (w *Watchlist) RecommendByTime(genre string, maxMinutes int) Recommendation {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.movies) == 0 {
		return Recommendation{Found: false, Message: EmptyMessage}
	}

	candidates := filterByGenre(w.movies, genre)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rating > candidates[j].Rating
	})

	var selected []movies.Record
	total := 0
	for _, m := range candidates {
		runtime := max(m.Runtime, 0)
		if total+runtime <= maxMinutes {
			selected = append(selected, m)
			total += runtime
		}
	}

	if len(selected) == 0 {
		return Recommendation{
			Found:   false,
			Message: fmt.Sprintf("No '%s' movies in your watchlist fit the available time.", genre),
		}
	}

	return Recommendation{
		Found:          true,
		TotalMovies:    len(selected),
		TotalRuntime:   total,
		GenreRequested: genre,
		Movies:         selected,
	}
}
