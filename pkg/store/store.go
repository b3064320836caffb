package store

import (
	"context"
	"errors"

	"moviweb/pkg/domain"
)

var (
	// ErrConflict reports a uniqueness violation: a taken user name or a
	// repeated (name, year, user) movie triple.
	ErrConflict = errors.New("store: conflict")
	// ErrNotFound is returned by updates that require an existing row.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidReference reports a foreign key that points at nothing.
	ErrInvalidReference = errors.New("store: invalid reference")
)

// Store is the persistence gateway for users, movies and reviews. Lookups
// return (value, found, err); deletes of missing ids are no-ops.
type Store interface {
	// users
	CreateUser(ctx context.Context, name string) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, id int64) error

	// movies
	CreateMovie(ctx context.Context, m domain.Movie) (domain.Movie, error)
	GetMovie(ctx context.Context, id int64) (domain.Movie, bool, error)
	UpdateMovie(ctx context.Context, m domain.Movie, meta *domain.MovieMetadata) (domain.Movie, error)
	DeleteMovie(ctx context.Context, id int64) error
	MovieExists(ctx context.Context, name string, year int, userID int64) (bool, error)
	ListMovies(ctx context.Context) ([]domain.Movie, error)
	ListMoviesByUser(ctx context.Context, userID int64) ([]domain.Movie, error)
	ListMoviesPage(ctx context.Context, offset, limit int) ([]domain.Movie, error)
	CountMovies(ctx context.Context) (int, error)
	SearchMovies(ctx context.Context, query string) ([]domain.Movie, error)

	// reviews
	CreateReview(ctx context.Context, r domain.Review) (domain.Review, error)
	GetReview(ctx context.Context, id int64) (domain.Review, bool, error)
	UpdateReview(ctx context.Context, id int64, text string, rating float64) error
	DeleteReview(ctx context.Context, id int64) error
	ListReviewsByMovie(ctx context.Context, movieID int64) ([]domain.Review, error)
	ListReviewsByUser(ctx context.Context, userID int64) ([]domain.Review, error)
}
