package filmmeta

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/cinesync/internal/tmdb"
)

// Source is the metadata service the resolver queries.
type Source interface {
	SearchMovies(ctx context.Context, query string) ([]tmdb.Movie, error)
	MovieDetails(ctx context.Context, id int) (*tmdb.MovieDetails, error)
}

// Resolver finds runtimes by title. Found runtimes are cached per
// normalized title for the life of the resolver. Unknown titles and failed
// lookups are asked again next time, since the service may learn the film
// later.
type Resolver struct {
	source Source
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]int
}

func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source: source,
		logger: logger,
		cache:  make(map[string]int),
	}
}

// Runtime returns the runtime of title in minutes. ok is false when it is
// unknown, including when the service fails.
func (r *Resolver) Runtime(ctx context.Context, title string) (minutes int, ok bool) {
	if r == nil || r.source == nil {
		return 0, false
	}

	term := Normalize(title)
	if term == "" {
		return 0, false
	}

	r.mu.Lock()
	cached, hit := r.cache[term]
	r.mu.Unlock()
	if hit {
		return cached, true
	}

	minutes, err := r.lookup(ctx, term)
	if err != nil {
		r.logger.Warn("runtime lookup failed", "title", title, "term", term, "error", err)
		return 0, false
	}

	if minutes <= 0 {
		r.logger.Debug("runtime unknown", "title", title, "term", term)
		return 0, false
	}

	r.mu.Lock()
	r.cache[term] = minutes
	r.mu.Unlock()
	return minutes, true
}

func (r *Resolver) lookup(ctx context.Context, term string) (int, error) {
	results, err := r.source.SearchMovies(ctx, term)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}

	details, err := r.source.MovieDetails(ctx, results[0].ID)
	if err != nil {
		return 0, err
	}
	if details == nil || details.Runtime <= 0 {
		return 0, nil
	}
	return details.Runtime, nil
}
