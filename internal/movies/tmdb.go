package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/cinebot/internal/httpkit"
)

// PlaceholderPoster is used when TMDB has no poster for a movie.
const PlaceholderPoster = "https://via.placeholder.com/500x750?text=No+Poster"

// TMDBConfig configures a TMDB client.
type TMDBConfig struct {
	APIKey       string
	BaseURL      string // e.g. https://api.themoviedb.org/3
	ImageBaseURL string // e.g. https://image.tmdb.org/t/p
	Language     string
	RateLimit    float64 // requests per second; zero disables throttling
}

// TMDB looks up movies in The Movie Database: a title search followed
// by a details fetch for the first hit.
type TMDB struct {
	cfg        TMDBConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTMDB creates a TMDB lookup client.
func NewTMDB(cfg TMDBConfig, logger *slog.Logger) *TMDB {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.themoviedb.org/3"
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = "https://image.tmdb.org/t/p"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ImageBaseURL = strings.TrimRight(cfg.ImageBaseURL, "/")

	return &TMDB{
		cfg:    cfg,
		logger: logger.With("service", "tmdb"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15*time.Second),
			httpkit.WithRateLimit(cfg.RateLimit, int(cfg.RateLimit)),
		),
	}
}

type tmdbSearchResponse struct {
	Results []tmdbMovie `json:"results"`
}

type tmdbMovie struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	Overview      string  `json:"overview"`
	ReleaseDate   string  `json:"release_date"`
	PosterPath    string  `json:"poster_path"`
	VoteAverage   float64 `json:"vote_average"`
}

type tmdbDetails struct {
	tmdbMovie
	Runtime int `json:"runtime"`
	Genres  []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// Search returns the best match for query, or ErrNotFound.
func (t *TMDB) Search(ctx context.Context, query string) (*Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNotFound
	}

	var search tmdbSearchResponse
	if err := t.get(ctx, "/search/movie", url.Values{"query": {query}}, &search); err != nil {
		return nil, fmt.Errorf("tmdb search %q: %w", query, err)
	}
	if len(search.Results) == 0 {
		t.logger.Debug("no match", "query", query)
		return nil, ErrNotFound
	}
	hit := search.Results[0]

	var details tmdbDetails
	if err := t.get(ctx, "/movie/"+strconv.FormatInt(hit.ID, 10), nil, &details); err != nil {
		return nil, fmt.Errorf("tmdb details %d: %w", hit.ID, err)
	}

	rec := t.record(hit, details)
	t.logger.Debug("resolved", "query", query, "id", rec.ID, "title", rec.Title)
	return rec, nil
}

// Ping checks that TMDB is reachable and accepts the API key.
func (t *TMDB) Ping(ctx context.Context) error {
	var cfg struct {
		Images struct {
			SecureBaseURL string `json:"secure_base_url"`
		} `json:"images"`
	}
	if err := t.get(ctx, "/configuration", nil, &cfg); err != nil {
		return fmt.Errorf("tmdb ping: %w", err)
	}
	return nil
}

// record shapes search and details data. Search fields win for title
// and overview; rating and runtime come from details.
func (t *TMDB) record(hit tmdbMovie, details tmdbDetails) *Record {
	genres := make([]string, 0, len(details.Genres))
	for _, g := range details.Genres {
		genres = append(genres, g.Name)
	}

	poster := PlaceholderPoster
	if hit.PosterPath != "" {
		poster = t.cfg.ImageBaseURL + "/w500" + hit.PosterPath
	}

	return &Record{
		ID:            hit.ID,
		Title:         hit.Title,
		OriginalTitle: hit.OriginalTitle,
		Overview:      hit.Overview,
		Rating:        roundTenth(details.VoteAverage),
		Genres:        strings.Join(genres, ", "),
		ReleaseDate:   hit.ReleaseDate,
		Poster:        poster,
		Runtime:       details.Runtime,
	}
}

func (t *TMDB) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", t.cfg.APIKey)
	params.Set("language", t.cfg.Language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := httpkit.CheckStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
