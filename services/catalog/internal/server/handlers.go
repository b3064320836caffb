package server

import (
	"net/http"
	"strconv"
	"strings"

	"moviweb/internal/validation"
	"moviweb/services/catalog/internal/app"
)

type movieRequest struct {
	Name     string     `json:"name"`
	Director string     `json:"director"`
	Year     flexString `json:"year"`
	Rating   flexString `json:"rating"`
}

func (m movieRequest) input() (app.MovieInput, error) {
	return app.ParseMovieInput(m.Name, m.Director, string(m.Year), string(m.Rating))
}

type reviewRequest struct {
	UserID     int64      `json:"userId"`
	ReviewText string     `json:"reviewText"`
	Rating     flexString `json:"rating"`
}

func parseRating(raw flexString) (float64, error) {
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return 0, validation.NewError("rating", "The rating must not be empty.")
	}
	rating, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, validation.NewError("rating", "The rating must be a number.")
	}
	return rating, nil
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	notFound(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page = n
		}
	}
	result, err := s.app.Catalog(r.Context(), page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.app.Users(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		user, err := s.app.AddUser(r.Context(), req.Name)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w)
	}
}

// handleUserByID serves /api/users/{id}, /api/users/{id}/movies and
// /api/users/{id}/reviews.
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.SplitN(path, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		notFound(w)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "movies":
			s.handleUserMovies(w, r, id)
		case "reviews":
			s.handleUserReviews(w, r, id)
		default:
			notFound(w)
		}
		return
	}

	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteUser(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUserMovies(w http.ResponseWriter, r *http.Request, userID int64) {
	switch r.Method {
	case http.MethodGet:
		movies, err := s.app.UserMovies(r.Context(), userID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, movies)
	case http.MethodPost:
		var req movieRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		movie, err := s.app.AddMovie(r.Context(), userID, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, movie)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUserReviews(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reviews, err := s.app.UserReviews(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleMovies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	movies, err := s.app.Movies(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

// handleMovieByID serves /api/movies/{id} and /api/movies/{id}/reviews.
func (s *Server) handleMovieByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/movies/")
	parts := strings.SplitN(path, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		notFound(w)
		return
	}
	if len(parts) == 2 {
		if parts[1] != "reviews" {
			notFound(w)
			return
		}
		s.handleMovieReviews(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		movie, err := s.app.Movie(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, movie)
	case http.MethodPut:
		var req movieRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		movie, err := s.app.UpdateMovie(r.Context(), id, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, movie)
	case http.MethodDelete:
		if err := s.app.DeleteMovie(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMovieReviews(w http.ResponseWriter, r *http.Request, movieID int64) {
	switch r.Method {
	case http.MethodGet:
		reviews, err := s.app.MovieReviews(r.Context(), movieID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
	case http.MethodPost:
		var req reviewRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		rating, err := parseRating(req.Rating)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		review, err := s.app.AddReview(r.Context(), movieID, app.ReviewInput{
			UserID:     req.UserID,
			ReviewText: req.ReviewText,
			Rating:     rating,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, review)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleReviewByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(strings.TrimPrefix(r.URL.Path, "/api/reviews/"))
	if !ok {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req reviewRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		rating, err := parseRating(req.Rating)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if err := s.app.UpdateReview(r.Context(), id, req.ReviewText, rating); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		if err := s.app.DeleteReview(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	// A miss in the database falls through to OMDb.
	if !s.allowRate(w, r, s.searchLimiter, "too many searches") {
		return
	}
	result, err := s.app.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.metadataLimiter, "too many metadata lookups") {
		return
	}
	meta, err := s.app.PreviewMetadata(r.Context(), r.URL.Query().Get("title"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.autocompleteLimiter, "too many autocomplete requests") {
		return
	}
	writeJSON(w, http.StatusOK, s.app.Autocomplete(r.Context(), r.URL.Query().Get("q")))
}
