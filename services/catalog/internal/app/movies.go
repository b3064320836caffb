package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"moviweb/internal/util"
	"moviweb/internal/validation"
	"moviweb/pkg/domain"
	"moviweb/pkg/store"
)

// MovieInput is the user-entered part of a movie.
type MovieInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Director string  `json:"director" validate:"max=255"`
	Year     int     `json:"year" validate:"movieyear"`
	Rating   float64 `json:"rating" validate:"score"`
}

// ParseMovieInput converts raw form values, reporting the same messages a
// user sees on the add and edit forms.
func ParseMovieInput(name, director, year, rating string) (MovieInput, error) {
	year, rating = strings.TrimSpace(year), strings.TrimSpace(rating)
	if year == "" || rating == "" {
		return MovieInput{}, validation.NewError("year", "Year and rating fields must not be empty.")
	}
	y, yerr := strconv.Atoi(year)
	r, rerr := strconv.ParseFloat(rating, 64)
	if yerr != nil || rerr != nil {
		return MovieInput{}, validation.NewError("year", "Year must be an integer and rating must be a number.")
	}
	in := MovieInput{
		Name:     strings.TrimSpace(name),
		Director: strings.TrimSpace(director),
		Year:     y,
		Rating:   r,
	}
	if err := validation.ValidateStruct(in); err != nil {
		return MovieInput{}, err
	}
	return in, nil
}

func movieConflict(in MovieInput) error {
	return &UserError{
		Kind:    ErrMovieExists,
		Message: fmt.Sprintf("The film '%s' (%d) is already present for this user.", in.Name, in.Year),
	}
}

// AddMovie stores a movie for an existing user. One metadata lookup runs
// before the insert; a miss stores the movie without shadow fields.
func (a *App) AddMovie(ctx context.Context, userID int64, in MovieInput) (domain.MovieView, error) {
	in.Name, in.Director = strings.TrimSpace(in.Name), strings.TrimSpace(in.Director)
	if err := validation.ValidateStruct(in); err != nil {
		return domain.MovieView{}, err
	}
	if _, err := a.User(ctx, userID); err != nil {
		return domain.MovieView{}, err
	}
	exists, err := a.store.MovieExists(ctx, in.Name, in.Year, userID)
	if err != nil {
		return domain.MovieView{}, fmt.Errorf("check movie: %w", err)
	}
	if exists {
		return domain.MovieView{}, movieConflict(in)
	}

	movie := domain.Movie{
		Name:     in.Name,
		Director: in.Director,
		Year:     in.Year,
		Rating:   in.Rating,
		UserID:   userID,
	}
	meta, found := a.metadata.Lookup(ctx, in.Name)
	if found {
		movie.ApplyMetadata(meta)
	}
	created, err := a.store.CreateMovie(ctx, movie)
	switch {
	case errors.Is(err, store.ErrConflict):
		return domain.MovieView{}, movieConflict(in)
	case errors.Is(err, store.ErrInvalidReference):
		return domain.MovieView{}, ErrUserNotFound
	case err != nil:
		return domain.MovieView{}, fmt.Errorf("create movie: %w", err)
	}
	util.LoggerFromContext(ctx).Info("movie added",
		"movie_id", created.ID,
		"user_id", userID,
		"enriched", found,
	)
	return domain.NewMovieView(created), nil
}

// UpdateMovie replaces the user-entered fields and looks the title up
// again. Shadow fields change only when the lookup matches.
func (a *App) UpdateMovie(ctx context.Context, id int64, in MovieInput) (domain.MovieView, error) {
	in.Name, in.Director = strings.TrimSpace(in.Name), strings.TrimSpace(in.Director)
	if err := validation.ValidateStruct(in); err != nil {
		return domain.MovieView{}, err
	}
	if _, ok, err := a.store.GetMovie(ctx, id); err != nil {
		return domain.MovieView{}, fmt.Errorf("get movie: %w", err)
	} else if !ok {
		return domain.MovieView{}, ErrMovieNotFound
	}

	var metaPtr *domain.MovieMetadata
	if meta, found := a.metadata.Lookup(ctx, in.Name); found {
		metaPtr = &meta
	}
	updated, err := a.store.UpdateMovie(ctx, domain.Movie{
		ID:       id,
		Name:     in.Name,
		Director: in.Director,
		Year:     in.Year,
		Rating:   in.Rating,
	}, metaPtr)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.MovieView{}, ErrMovieNotFound
	case errors.Is(err, store.ErrConflict):
		return domain.MovieView{}, movieConflict(in)
	case err != nil:
		return domain.MovieView{}, fmt.Errorf("update movie: %w", err)
	}
	util.LoggerFromContext(ctx).Info("movie updated", "movie_id", id, "enriched", metaPtr != nil)
	return domain.NewMovieView(updated), nil
}

// DeleteMovie removes a movie and its reviews. Missing ids are ignored.
func (a *App) DeleteMovie(ctx context.Context, id int64) error {
	if err := a.store.DeleteMovie(ctx, id); err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}
	return nil
}

// Movie returns one movie with its display values.
func (a *App) Movie(ctx context.Context, id int64) (domain.MovieView, error) {
	movie, ok, err := a.store.GetMovie(ctx, id)
	if err != nil {
		return domain.MovieView{}, err
	}
	if !ok {
		return domain.MovieView{}, ErrMovieNotFound
	}
	return domain.NewMovieView(movie), nil
}

// Movies returns every stored movie.
func (a *App) Movies(ctx context.Context) ([]domain.MovieView, error) {
	movies, err := a.store.ListMovies(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewMovieViews(movies), nil
}

// UserMovies returns the movies owned by an existing user.
func (a *App) UserMovies(ctx context.Context, userID int64) ([]domain.MovieView, error) {
	if _, err := a.User(ctx, userID); err != nil {
		return nil, err
	}
	movies, err := a.store.ListMoviesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.NewMovieViews(movies), nil
}
