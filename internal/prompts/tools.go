package prompts

// Model-facing tool descriptions. The model decides when to call a tool
// from these texts alone.

const MovieInfoToolDescription = `Search The Movie Database for detailed information about a movie: title and original title, synopsis, rating, genres, release date, runtime and poster image. Returns JSON.`

const CinemaScheduleToolDescription = `Search for cinema schedules and ticket prices in a location. Use when the user asks about showtimes, ticket prices or what is currently playing in a city. Optionally narrow the search to one movie title.`

const AddToWatchlistToolDescription = `Add a movie to the user's watchlist. Use only when the user explicitly asks to add a movie.`

const RemoveFromWatchlistToolDescription = `Remove a movie from the user's watchlist. Use only when the user explicitly asks to remove or delete a movie.`

const RecommendFromWatchlistToolDescription = `Plan a viewing session from the user's watchlist that fits their available time and preferred genre. Highest rated movies are picked first.`

const MovieScriptToolDescription = `Answer questions about the movie script or document the user uploaded. Use ONLY for questions about the uploaded document's content, e.g. "What happens in the final scene?" or "Summarize this script".`
