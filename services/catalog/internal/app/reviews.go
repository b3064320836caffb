package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moviweb/internal/util"
	"moviweb/internal/validation"
	"moviweb/pkg/domain"
	"moviweb/pkg/store"
)

// ReviewInput is a review as submitted by a user.
type ReviewInput struct {
	UserID     int64   `json:"userId" label:"user" validate:"gt=0"`
	ReviewText string  `json:"reviewText" label:"review text" validate:"required"`
	Rating     float64 `json:"rating" validate:"score"`
}

type reviewEdit struct {
	ReviewText string  `json:"reviewText" label:"review text" validate:"required"`
	Rating     float64 `json:"rating" validate:"score"`
}

// AddReview attaches a review to a movie.
func (a *App) AddReview(ctx context.Context, movieID int64, in ReviewInput) (domain.Review, error) {
	in.ReviewText = strings.TrimSpace(in.ReviewText)
	if err := validation.ValidateStruct(in); err != nil {
		return domain.Review{}, err
	}
	review, err := a.store.CreateReview(ctx, domain.Review{
		UserID:     in.UserID,
		MovieID:    movieID,
		ReviewText: in.ReviewText,
		Rating:     in.Rating,
	})
	if errors.Is(err, store.ErrInvalidReference) {
		return domain.Review{}, ErrInvalidReview
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	util.LoggerFromContext(ctx).Info("review added",
		"review_id", review.ID,
		"movie_id", movieID,
		"user_id", in.UserID,
	)
	return review, nil
}

// UpdateReview changes the text and rating of a review. Missing ids are ignored.
func (a *App) UpdateReview(ctx context.Context, id int64, text string, rating float64) error {
	in := reviewEdit{ReviewText: strings.TrimSpace(text), Rating: rating}
	if err := validation.ValidateStruct(in); err != nil {
		return err
	}
	if err := a.store.UpdateReview(ctx, id, in.ReviewText, in.Rating); err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return nil
}

func (a *App) DeleteReview(ctx context.Context, id int64) error {
	if err := a.store.DeleteReview(ctx, id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

// MovieReviews lists the reviews of an existing movie.
func (a *App) MovieReviews(ctx context.Context, movieID int64) ([]domain.Review, error) {
	if _, err := a.Movie(ctx, movieID); err != nil {
		return nil, err
	}
	return a.store.ListReviewsByMovie(ctx, movieID)
}

// UserReviews lists the reviews written by an existing user.
func (a *App) UserReviews(ctx context.Context, userID int64) ([]domain.Review, error) {
	if _, err := a.User(ctx, userID); err != nil {
		return nil, err
	}
	return a.store.ListReviewsByUser(ctx, userID)
}
