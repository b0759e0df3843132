package tools

import (
	"log/slog"

	"github.com/nugget/cinebot/internal/movies"
	"github.com/nugget/cinebot/internal/watchlist"
)

// Services are the collaborators the built-in tools wrap. Watchlist and
// Documents belong to one session; the rest may be shared. A nil
// service leaves its tools unregistered, except Documents: the document
// tool is always present and refuses until a document is loaded.
type Services struct {
	Movies    movies.Lookup
	Watchlist *watchlist.Watchlist
	Cinema    ScheduleSearcher
	Documents DocumentAsker
}

// NewSessionRegistry returns a registry holding the built-in tools bound
// to svc.
func NewSessionRegistry(svc Services, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)

	var builtins []*Tool
	if svc.Movies != nil {
		builtins = append(builtins, movieInfoTool(svc.Movies))
		if svc.Watchlist != nil {
			builtins = append(builtins,
				addToWatchlistTool(svc.Movies, svc.Watchlist),
				removeFromWatchlistTool(svc.Movies, svc.Watchlist),
			)
		}
	}
	if svc.Watchlist != nil {
		builtins = append(builtins, recommendFromWatchlistTool(svc.Watchlist))
	}
	if svc.Cinema != nil {
		builtins = append(builtins, cinemaScheduleTool(svc.Cinema))
	}
	builtins = append(builtins, movieScriptTool(svc.Documents))

	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
