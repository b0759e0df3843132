package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Cinema looks up cinema showtimes through web search restricted to a
// schedule listing site.
type Cinema struct {
	searcher Searcher
	site     string
	count    int
	logger   *slog.Logger
}

// NewCinema creates a cinema schedule searcher. site restricts results
// (e.g. "jadwalnonton.com/now-playing"); count is how many results are
// formatted, defaulting to 1.
func NewCinema(searcher Searcher, site string, count int, logger *slog.Logger) *Cinema {
	if count < 1 {
		count = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cinema{
		searcher: searcher,
		site:     site,
		count:    count,
		logger:   logger.With("service", "cinema"),
	}
}

// Query builds the search query for a location and optional title.
func (c *Cinema) Query(location, title string) string {
	var b strings.Builder
	if c.site != "" {
		b.WriteString("site:" + c.site + " ")
	}
	b.WriteString("movie schedule ")
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString(title + " ")
	}
	b.WriteString("cinema in " + strings.TrimSpace(location) + " today")
	return b.String()
}

// Schedule searches for showtimes and returns plain text for the model.
// Failures are reported in the returned text rather than as an error.
func (c *Cinema) Schedule(ctx context.Context, location, title string) string {
	query := c.Query(location, title)
	results, err := c.searcher.Search(ctx, query, Options{Count: c.count})
	if err != nil {
		c.logger.Warn("schedule search failed", "location", location, "error", err)
		return fmt.Sprintf("Error searching cinema schedule: %v", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("Sorry, no schedule found in %s.", location)
	}
	if len(results) > c.count {
		results = results[:c.count]
	}
	return FormatSchedule(results)
}

// FormatSchedule renders results as "Source:/Snippet:" blocks separated
// by blank lines.
func FormatSchedule(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nSnippet: %s", r.Title, r.Snippet))
	}
	return strings.Join(blocks, "\n\n")
}
