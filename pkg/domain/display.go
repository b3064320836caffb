package domain

import (
	"strconv"
	"strings"
)

// Display is the merged view of a movie shown to users.
type Display struct {
	Director string  `json:"director"`
	Year     int     `json:"year"`
	Rating   float64 `json:"rating"`
	Poster   string  `json:"poster,omitempty"`
}

// Display merges shadow fields over user-entered values. A shadow value wins
// only when it is non-empty and, for year and rating, parses. Poster has no
// user-entered counterpart.
func (m Movie) Display() Display {
	d := Display{
		Director: m.Director,
		Year:     m.Year,
		Rating:   m.Rating,
		Poster:   strings.TrimSpace(m.ExternalPoster),
	}
	if v := strings.TrimSpace(m.ExternalDirector); v != "" {
		d.Director = v
	}
	if v := strings.TrimSpace(m.ExternalYear); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			d.Year = year
		}
	}
	if v := strings.TrimSpace(m.ExternalRating); v != "" {
		if rating, err := strconv.ParseFloat(v, 64); err == nil {
			d.Rating = rating
		}
	}
	return d
}

// ApplyMetadata copies provider values into the shadow fields. Missing
// numeric values clear the corresponding shadow field.
func (m *Movie) ApplyMetadata(meta MovieMetadata) {
	m.ExternalDirector = meta.Director
	m.ExternalPoster = meta.Poster
	m.ExternalYear = ""
	if meta.Year != nil {
		m.ExternalYear = strconv.Itoa(*meta.Year)
	}
	m.ExternalRating = ""
	if meta.Rating != nil {
		m.ExternalRating = strconv.FormatFloat(*meta.Rating, 'f', -1, 64)
	}
}

// MovieView pairs a stored movie with its merged display values.
type MovieView struct {
	Movie
	Display Display `json:"display"`
}

// NewMovieView builds the view for m.
func NewMovieView(m Movie) MovieView {
	return MovieView{Movie: m, Display: m.Display()}
}

// NewMovieViews builds views for a slice of movies.
func NewMovieViews(movies []Movie) []MovieView {
	out := make([]MovieView, 0, len(movies))
	for _, m := range movies {
		out = append(out, NewMovieView(m))
	}
	return out
}
