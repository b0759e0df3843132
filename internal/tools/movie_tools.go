package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/cinebot/internal/movies"
	"github.com/nugget/cinebot/internal/prompts"
)

// Tool names.
const (
	MovieInfoTool              = "get_movie_info"
	AddToWatchlistTool         = "add_to_watchlist"
	RemoveFromWatchlistTool    = "remove_from_watchlist"
	RecommendFromWatchlistTool = "recommend_from_watchlist"
	CinemaScheduleTool         = "search_cinema_schedule"
	MovieScriptTool            = "ask_movie_script"
)

// movieFound is the envelope for a successful lookup: the record's
// fields alongside found=true.
type movieFound struct {
	Found bool `json:"found"`
	*movies.Record
}

func movieInfoTool(lookup movies.Lookup) *Tool {
	return &Tool{
		Name:        MovieInfoTool,
		Description: prompts.MovieInfoToolDescription,
		Parameters: objectSchema(map[string]any{
			"query": stringParam("Movie title to search for"),
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query := stringArg(args, "query")
			rec, err := lookup.Search(ctx, query)
			switch {
			case errors.Is(err, movies.ErrNotFound):
				return notFound(fmt.Sprintf("Movie '%s' was not found in the database.", query)), nil
			case err != nil:
				return notFound("Error: " + err.Error()), nil
			}
			return mustJSON(movieFound{Found: true, Record: rec}), nil
		},
	}
}

func notFound(msg string) string {
	return mustJSON(map[string]any{"found": false, "message": msg})
}

func failed(msg string) string {
	return mustJSON(map[string]any{"status": "failed", "message": msg})
}
