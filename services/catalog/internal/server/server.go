package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"moviweb/internal/ratelimit"
	"moviweb/internal/util"
	"moviweb/internal/validation"
	"moviweb/services/catalog/internal/app"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Redis enables rate limiting of the metadata endpoints. Nil disables it.
	Redis                      *redis.Client
	MetadataRateLimitPerMinute int

	CORSAllowedOrigins []string
	TrustedProxies     *util.TrustedProxies
}

// Server exposes the catalog over HTTP.
type Server struct {
	app                 *app.App
	mux                 *http.ServeMux
	corsOrigins         []string
	trustedProxies      *util.TrustedProxies
	metadataLimiter     *ratelimit.FixedWindowLimiter
	autocompleteLimiter *ratelimit.FixedWindowLimiter
	searchLimiter       *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		corsOrigins:    cfg.CORSAllowedOrigins,
		trustedProxies: cfg.TrustedProxies,
	}
	if cfg.Redis != nil {
		limit := cfg.MetadataRateLimitPerMinute
		if limit <= 0 {
			limit = 30
		}
		newLimiter := func(name string) (*ratelimit.FixedWindowLimiter, error) {
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "moviweb:catalog:ratelimit:"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.metadataLimiter, err = newLimiter("metadata"); err != nil {
			return nil, err
		}
		if s.autocompleteLimiter, err = newLimiter("autocomplete"); err != nil {
			return nil, err
		}
		if s.searchLimiter, err = newLimiter("search"); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleNotFound)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/catalog", s.handleCatalog)

	s.mux.HandleFunc("/api/users", s.handleUsers)
	s.mux.HandleFunc("/api/users/", s.handleUserByID)
	s.mux.HandleFunc("/api/movies", s.handleMovies)
	s.mux.HandleFunc("/api/movies/", s.handleMovieByID)
	s.mux.HandleFunc("/api/reviews/", s.handleReviewByID)

	s.mux.HandleFunc("/api/search", s.handleSearch)
	s.mux.HandleFunc("/api/metadata", s.handleMetadata)
	s.mux.HandleFunc("/api/autocomplete", s.handleAutocomplete)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// flexString accepts a JSON string or a bare JSON number, so form-style
// clients and typed clients reach the same parsing.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*f = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case strings.HasPrefix(raw, "{"), strings.HasPrefix(raw, "["):
		return errors.New("expected a string or number")
	default:
		*f = flexString(raw)
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string                  `json:"error"`
	Code      string                  `json:"code"`
	RequestID string                  `json:"requestId,omitempty"`
	Fields    []validation.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForStatus(status),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

// writeAppError maps application errors onto status codes. Anything
// unrecognised is logged and reported as a generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{
		Error:     err.Error(),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	}
	var status int
	var ve *validation.RequestValidationError
	switch {
	case errors.As(err, &ve):
		status, resp.Code = http.StatusBadRequest, "MOVIE_INVALID_INPUT"
		resp.Fields = ve.Fields()
	case errors.Is(err, app.ErrUserExists):
		status, resp.Code = http.StatusConflict, "USER_ALREADY_EXISTS"
	case errors.Is(err, app.ErrMovieExists):
		status, resp.Code = http.StatusConflict, "MOVIE_ALREADY_EXISTS"
	case errors.Is(err, app.ErrUserNotFound):
		status, resp.Code = http.StatusNotFound, "USER_NOT_FOUND"
	case errors.Is(err, app.ErrMovieNotFound):
		status, resp.Code = http.StatusNotFound, "MOVIE_NOT_FOUND"
	case errors.Is(err, app.ErrMetadataNotFound):
		status, resp.Code = http.StatusNotFound, "METADATA_NOT_FOUND"
	case errors.Is(err, app.ErrInvalidReview):
		status, resp.Code = http.StatusUnprocessableEntity, "REVIEW_INVALID_REFERENCE"
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		status, resp.Code = http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR"
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "MOVIE_INVALID_INPUT"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_UNAVAILABLE"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}
