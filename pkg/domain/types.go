package domain

import "time"

// GlobalUserID marks a movie that belongs to the shared catalog rather than a user.
const GlobalUserID int64 = 0

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Movie is a user-entered film record plus the shadow fields copied from the
// metadata provider. Shadow fields are kept as provider text.
type Movie struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Director         string    `json:"director"`
	Year             int       `json:"year"`
	Rating           float64   `json:"rating"`
	UserID           int64     `json:"userId"`
	ExternalPoster   string    `json:"externalPoster,omitempty"`
	ExternalRating   string    `json:"externalRating,omitempty"`
	ExternalDirector string    `json:"externalDirector,omitempty"`
	ExternalYear     string    `json:"externalYear,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// IsGlobal reports whether the movie is part of the shared catalog.
func (m Movie) IsGlobal() bool {
	return m.UserID == GlobalUserID
}

type Review struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	MovieID    int64     `json:"movieId"`
	ReviewText string    `json:"reviewText"`
	Rating     float64   `json:"rating"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MovieMetadata is a normalized record returned by the metadata provider.
// Year and Rating are nil when the provider value was not numeric.
type MovieMetadata struct {
	Name       string   `json:"name"`
	Director   string   `json:"director"`
	Year       *int     `json:"year,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	Poster     string   `json:"poster"`
	ExternalID string   `json:"externalId"`
}

// TitleSuggestion is one autocomplete hit.
type TitleSuggestion struct {
	Title  string `json:"title"`
	Poster string `json:"poster"`
}
