package tools

import (
	"context"

	"github.com/nugget/cinebot/internal/prompts"
)

// ScheduleSearcher finds cinema showtimes. Its result is already
// formatted text, including any error message.
type ScheduleSearcher interface {
	Schedule(ctx context.Context, location, title string) string
}

func cinemaScheduleTool(cinema ScheduleSearcher) *Tool {
	return &Tool{
		Name:        CinemaScheduleTool,
		Description: prompts.CinemaScheduleToolDescription,
		Parameters: objectSchema(map[string]any{
			"location":    stringParam("City or area to search"),
			"movie_title": stringParam("Optional movie title to narrow the search"),
		}, "location"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return cinema.Schedule(ctx, stringArg(args, "location"), stringArg(args, "movie_title")), nil
		},
	}
}
