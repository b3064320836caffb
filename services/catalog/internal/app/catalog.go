package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"moviweb/internal/util"
	"moviweb/pkg/domain"
	"moviweb/pkg/omdb"
	"moviweb/pkg/store"
)

// CatalogPage is one page of the home catalog.
type CatalogPage struct {
	Items      []domain.MovieView `json:"items"`
	Users      []domain.User      `json:"users"`
	Page       int                `json:"page"`
	TotalPages int                `json:"totalPages"`
	Total      int                `json:"total"`
}

// SearchResult holds database hits and, when there are none, the external
// lookup for the same query.
type SearchResult struct {
	Query    string                `json:"query"`
	Movies   []domain.MovieView    `json:"movies"`
	External *domain.MovieMetadata `json:"external,omitempty"`
}

// Catalog returns the requested page of all movies, seeding the trending
// list first when the catalog is empty. Pages below 1 are treated as 1 and
// pages beyond the end as the first empty page.
func (a *App) Catalog(ctx context.Context, page int) (CatalogPage, error) {
	if page < 1 {
		page = 1
	}
	total, err := a.store.CountMovies(ctx)
	if err != nil {
		return CatalogPage{}, fmt.Errorf("count movies: %w", err)
	}
	if total == 0 && len(a.trending) > 0 {
		a.ensureSeeded(ctx)
		if total, err = a.store.CountMovies(ctx); err != nil {
			return CatalogPage{}, fmt.Errorf("count movies: %w", err)
		}
	}

	totalPages := (total + a.pageSize - 1) / a.pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	// Anything past the last page is the first empty page, which also keeps
	// the offset from overflowing.
	if page > totalPages+1 {
		page = totalPages + 1
	}

	movies, err := a.store.ListMoviesPage(ctx, (page-1)*a.pageSize, a.pageSize)
	if err != nil {
		return CatalogPage{}, fmt.Errorf("list movies: %w", err)
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return CatalogPage{}, fmt.Errorf("list users: %w", err)
	}
	return CatalogPage{
		Items:      domain.NewMovieViews(movies),
		Users:      users,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

// ensureSeeded runs at most one seed at a time. Callers arriving during a
// seed wait for it and share its outcome.
func (a *App) ensureSeeded(ctx context.Context) {
	seedCtx := context.WithoutCancel(ctx)
	_, _, _ = a.seed.Do("trending", func() (any, error) {
		n, err := a.seedTrending(seedCtx)
		logger := util.LoggerFromContext(seedCtx)
		if err != nil {
			logger.Warn("catalog seed failed", "err", err)
			return nil, err
		}
		if n > 0 {
			logger.Info("catalog seeded", "movies", n)
		}
		return n, nil
	})
}

func (a *App) seedTrending(ctx context.Context) (int, error) {
	total, err := a.store.CountMovies(ctx)
	if err != nil {
		return 0, err
	}
	if total > 0 {
		return 0, nil
	}

	found := make([]*domain.MovieMetadata, len(a.trending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.seedConcurrency)
	for i, title := range a.trending {
		g.Go(func() error {
			if meta, ok := a.metadata.Lookup(gctx, title); ok {
				found[i] = &meta
			}
			return nil
		})
	}
	_ = g.Wait()

	existing, err := a.store.ListMoviesByUser(ctx, domain.GlobalUserID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing)+len(found))
	for _, m := range existing {
		seen[strings.ToLower(m.Name)] = struct{}{}
	}

	inserted := 0
	for i, meta := range found {
		if meta == nil || meta.Year == nil {
			continue
		}
		name := meta.Name
		if name == "" {
			name = a.trending[i]
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		movie := domain.Movie{
			Name:     name,
			Director: meta.Director,
			Year:     *meta.Year,
			UserID:   domain.GlobalUserID,
		}
		if meta.Rating != nil {
			movie.Rating = *meta.Rating
		}
		movie.ApplyMetadata(*meta)
		if _, err := a.store.CreateMovie(ctx, movie); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return inserted, fmt.Errorf("insert %q: %w", name, err)
		}
		inserted++
	}
	return inserted, nil
}

// Search matches name, director or year in the database. With no hits the
// query is looked up externally instead.
func (a *App) Search(ctx context.Context, query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	result := SearchResult{Query: query, Movies: []domain.MovieView{}}
	if query == "" {
		return result, nil
	}
	movies, err := a.store.SearchMovies(ctx, query)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search movies: %w", err)
	}
	if len(movies) > 0 {
		result.Movies = domain.NewMovieViews(movies)
		return result, nil
	}
	if meta, ok := a.metadata.Lookup(ctx, query); ok {
		result.External = &meta
	}
	return result, nil
}

// PreviewMetadata fetches what the external database knows about a title.
func (a *App) PreviewMetadata(ctx context.Context, title string) (domain.MovieMetadata, error) {
	meta, ok := a.metadata.Lookup(ctx, strings.TrimSpace(title))
	if !ok {
		return domain.MovieMetadata{}, ErrMetadataNotFound
	}
	return meta, nil
}

// Autocomplete suggests titles for a partial query.
func (a *App) Autocomplete(ctx context.Context, query string) []domain.TitleSuggestion {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.TitleSuggestion{}
	}
	hits := a.metadata.Search(ctx, query, omdb.SuggestionLimit)
	if len(hits) > omdb.SuggestionLimit {
		hits = hits[:omdb.SuggestionLimit]
	}
	if hits == nil {
		hits = []domain.TitleSuggestion{}
	}
	return hits
}
