package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/cinebot/internal/movies"
	"github.com/nugget/cinebot/internal/prompts"
	"github.com/nugget/cinebot/internal/watchlist"
)

// resolve looks up query and converts a miss into a failed envelope.
// A non-nil error is a service failure.
func resolve(ctx context.Context, lookup movies.Lookup, query string) (*movies.Record, string, error) {
	rec, err := lookup.Search(ctx, query)
	if errors.Is(err, movies.ErrNotFound) {
		return nil, failed(fmt.Sprintf("Movie '%s' was not found.", query)), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("look up %q: %w", query, err)
	}
	return rec, "", nil
}

func addToWatchlistTool(lookup movies.Lookup, list *watchlist.Watchlist) *Tool {
	return &Tool{
		Name:        AddToWatchlistTool,
		Description: prompts.AddToWatchlistToolDescription,
		Parameters: objectSchema(map[string]any{
			"query": stringParam("Movie title to add"),
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			rec, miss, err := resolve(ctx, lookup, stringArg(args, "query"))
			if rec == nil {
				return miss, err
			}
			return mustJSON(list.Add(rec.WatchlistEntry())), nil
		},
	}
}

func removeFromWatchlistTool(lookup movies.Lookup, list *watchlist.Watchlist) *Tool {
	return &Tool{
		Name:        RemoveFromWatchlistTool,
		Description: prompts.RemoveFromWatchlistToolDescription,
		Parameters: objectSchema(map[string]any{
			"query": stringParam("Movie title to remove"),
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			rec, miss, err := resolve(ctx, lookup, stringArg(args, "query"))
			if rec == nil {
				return miss, err
			}
			return mustJSON(list.Remove(rec.ID, rec.Title)), nil
		},
	}
}

func recommendFromWatchlistTool(list *watchlist.Watchlist) *Tool {
	return &Tool{
		Name:        RecommendFromWatchlistTool,
		Description: prompts.RecommendFromWatchlistToolDescription,
		Parameters: objectSchema(map[string]any{
			"target_genre": stringParam("Preferred genre, e.g. 'Horror', 'Action', 'Drama', or 'any' for no preference"),
			"max_minutes": map[string]any{
				"type":        "integer",
				"description": "Total available time in minutes",
			},
		}, "target_genre", "max_minutes"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			minutes, err := intArg(args, "max_minutes")
			if err != nil {
				return notFound("Error: " + err.Error()), nil
			}
			return mustJSON(list.RecommendByTime(stringArg(args, "target_genre"), minutes)), nil
		},
	}
}
