package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"
	"moviweb/pkg/domain"
	"moviweb/pkg/store"
	"moviweb/services/catalog/internal/app"
)

func fakeOMDb(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("t") == "Inception":
			fmt.Fprint(w, `{"Response":"True","Title":"Inception","Year":"2010","Director":"Christopher Nolan","Poster":"https://img/inception.jpg","imdbRating":"8.8","imdbID":"tt1375666"}`)
		case q.Get("s") != "":
			hits := make([]string, 0, 12)
			for i := range 12 {
				hits = append(hits, fmt.Sprintf(`{"Title":"Hit %d","Poster":"N/A"}`, i))
			}
			fmt.Fprintf(w, `{"Response":"True","Search":[%s]}`, strings.Join(hits, ","))
		default:
			fmt.Fprint(w, `{"Response":"False","Error":"Movie not found!"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	handler http.Handler
}

func newTestEnv(t *testing.T, appCfg app.Config, srvCfg Config) *testEnv {
	t.Helper()
	s, err := store.NewGormStore("sqlite://"+filepath.Join(t.TempDir(), "catalog.db"), store.WithLogLevel(gormlogger.Silent))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	appCfg.Store = s
	appCfg.OMDbAPIKey = "test-key"
	appCfg.OMDbBaseURL = fakeOMDb(t).URL
	a, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srvCfg.App = a
	srv, err := New(srvCfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{handler: srv.Router()}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Code != code {
		t.Fatalf("code = %q, want %q", resp.Code, code)
	}
	return resp
}

func TestHealthAndFallbackRoutes(t *testing.T) {
	env := newTestEnv(t, app.Config{}, Config{})

	rec := env.do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}

	resp := expectError(t, env.do(http.MethodGet, "/no/such/page", ""), http.StatusNotFound, "SYSTEM_NOT_FOUND")
	if resp.Error != "not found" || resp.RequestID == "" {
		t.Fatalf("not found body = %+v", resp)
	}
	expectError(t, env.do(http.MethodGet, "/api/movies/abc", ""), http.StatusNotFound, "SYSTEM_NOT_FOUND")
	expectError(t, env.do(http.MethodGet, "/api/users/1/friends", ""), http.StatusNotFound, "SYSTEM_NOT_FOUND")
	expectError(t, env.do(http.MethodPatch, "/api/users", ""), http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED")
}

func TestUserAndMovieRoutes(t *testing.T) {
	env := newTestEnv(t, app.Config{}, Config{})

	rec := env.do(http.MethodPost, "/api/users", `{"name":"Alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add user = %d %s", rec.Code, rec.Body.String())
	}
	var alice domain.User
	decode(t, rec, &alice)

	resp := expectError(t, env.do(http.MethodPost, "/api/users", `{"name":"Alice"}`), http.StatusConflict, "USER_ALREADY_EXISTS")
	if resp.Error != "User 'Alice' already exists. Please choose another name." {
		t.Fatalf("duplicate user message = %q", resp.Error)
	}
	expectError(t, env.do(http.MethodPost, "/api/users", `{"name":`), http.StatusBadRequest, "MOVIE_INVALID_INPUT")

	moviesPath := fmt.Sprintf("/api/users/%d/movies", alice.ID)
	rec = env.do(http.MethodPost, moviesPath, `{"name":"Inception","director":"Nolan","year":"2010","rating":9}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add movie = %d %s", rec.Code, rec.Body.String())
	}
	var created domain.MovieView
	decode(t, rec, &created)
	if created.Director != "Nolan" || created.Display.Director != "Christopher Nolan" || created.Display.Rating != 8.8 {
		t.Fatalf("created = %+v", created)
	}

	resp = expectError(t, env.do(http.MethodPost, moviesPath, `{"name":"Inception","year":2010,"rating":"7"}`), http.StatusConflict, "MOVIE_ALREADY_EXISTS")
	if resp.Error != "The film 'Inception' (2010) is already present for this user." {
		t.Fatalf("duplicate movie message = %q", resp.Error)
	}
	resp = expectError(t, env.do(http.MethodPost, moviesPath, `{"name":"Heat","year":"nineteen","rating":8}`), http.StatusBadRequest, "MOVIE_INVALID_INPUT")
	if resp.Error != "Year must be an integer and rating must be a number." {
		t.Fatalf("invalid year message = %q", resp.Error)
	}
	resp = expectError(t, env.do(http.MethodPost, moviesPath, `{"name":"Heat","year":1995}`), http.StatusBadRequest, "MOVIE_INVALID_INPUT")
	if resp.Error != "Year and rating fields must not be empty." {
		t.Fatalf("missing rating message = %q", resp.Error)
	}
	expectError(t, env.do(http.MethodPost, "/api/users/999/movies", `{"name":"Heat","year":1995,"rating":8}`), http.StatusNotFound, "USER_NOT_FOUND")

	rec = env.do(http.MethodGet, moviesPath, "")
	var movies []domain.MovieView
	decode(t, rec, &movies)
	if len(movies) != 1 || movies[0].Name != "Inception" || movies[0].Year != 2010 {
		t.Fatalf("user movies = %+v", movies)
	}

	moviePath := fmt.Sprintf("/api/movies/%d", created.ID)
	rec = env.do(http.MethodPut, moviePath, `{"name":"Inception","director":"C. Nolan","year":2010,"rating":"9.5"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update movie = %d %s", rec.Code, rec.Body.String())
	}
	var updated domain.MovieView
	decode(t, rec, &updated)
	if updated.Director != "C. Nolan" || updated.Rating != 9.5 {
		t.Fatalf("updated = %+v", updated.Movie)
	}
	expectError(t, env.do(http.MethodPut, "/api/movies/999", `{"name":"Heat","year":1995,"rating":8}`), http.StatusNotFound, "MOVIE_NOT_FOUND")

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", alice.ID), "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "deleted") {
		t.Fatalf("delete user = %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(http.MethodGet, moviePath, ""), http.StatusNotFound, "MOVIE_NOT_FOUND")
}

func TestReviewRoutes(t *testing.T) {
	env := newTestEnv(t, app.Config{}, Config{})
	var alice domain.User
	decode(t, env.do(http.MethodPost, "/api/users", `{"name":"Alice"}`), &alice)
	var movie domain.MovieView
	decode(t, env.do(http.MethodPost, fmt.Sprintf("/api/users/%d/movies", alice.ID), `{"name":"Heat","year":1995,"rating":8}`), &movie)

	reviewsPath := fmt.Sprintf("/api/movies/%d/reviews", movie.ID)
	rec := env.do(http.MethodPost, reviewsPath, fmt.Sprintf(`{"userId":%d,"reviewText":"tense","rating":"9"}`, alice.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add review = %d %s", rec.Code, rec.Body.String())
	}
	var review domain.Review
	decode(t, rec, &review)

	expectError(t, env.do(http.MethodPost, "/api/movies/999/reviews", fmt.Sprintf(`{"userId":%d,"reviewText":"x","rating":5}`, alice.ID)),
		http.StatusUnprocessableEntity, "REVIEW_INVALID_REFERENCE")
	resp := expectError(t, env.do(http.MethodPost, reviewsPath, fmt.Sprintf(`{"userId":%d,"reviewText":"x","rating":12}`, alice.ID)),
		http.StatusBadRequest, "MOVIE_INVALID_INPUT")
	if resp.Error != "The rating must be between 0 and 10." {
		t.Fatalf("rating message = %q", resp.Error)
	}

	rec = env.do(http.MethodPut, fmt.Sprintf("/api/reviews/%d", review.ID), `{"reviewText":"gripping","rating":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update review = %d %s", rec.Code, rec.Body.String())
	}
	var reviews []domain.Review
	decode(t, env.do(http.MethodGet, fmt.Sprintf("/api/users/%d/reviews", alice.ID), ""), &reviews)
	if len(reviews) != 1 || reviews[0].ReviewText != "gripping" {
		t.Fatalf("user reviews = %+v", reviews)
	}

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/reviews/%d", review.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete review = %d", rec.Code)
	}
	decode(t, env.do(http.MethodGet, reviewsPath, ""), &reviews)
	if len(reviews) != 0 {
		t.Fatalf("reviews after delete = %d", len(reviews))
	}
}

func TestCatalogAndSearchRoutes(t *testing.T) {
	env := newTestEnv(t, app.Config{TrendingTitles: []string{"Inception", "Unknown Film"}}, Config{})

	rec := env.do(http.MethodGet, "/api/catalog?page=0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog = %d %s", rec.Code, rec.Body.String())
	}
	var page app.CatalogPage
	decode(t, rec, &page)
	if page.Page != 1 || page.TotalPages != 1 || len(page.Items) != 1 {
		t.Fatalf("catalog page = %+v", page)
	}
	if page.Items[0].UserID != domain.GlobalUserID || page.Items[0].Display.Poster != "https://img/inception.jpg" {
		t.Fatalf("seeded item = %+v", page.Items[0])
	}
	var past app.CatalogPage
	decode(t, env.do(http.MethodGet, "/api/catalog?page=9223372036854775807", ""), &past)
	if past.Page != 2 || past.TotalPages != 1 || len(past.Items) != 0 {
		t.Fatalf("page past the end = %+v", past)
	}

	var result app.SearchResult
	decode(t, env.do(http.MethodGet, "/api/search?q=nolan", ""), &result)
	if len(result.Movies) != 1 || result.External != nil {
		t.Fatalf("search hit = %+v", result)
	}
	decode(t, env.do(http.MethodGet, "/api/search?q=Arrival", ""), &result)
	if len(result.Movies) != 0 || result.External != nil {
		t.Fatalf("search miss = %+v", result)
	}
}

func TestMetadataAndAutocompleteRoutes(t *testing.T) {
	env := newTestEnv(t, app.Config{}, Config{})

	var meta domain.MovieMetadata
	rec := env.do(http.MethodGet, "/api/metadata?title=Inception", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metadata = %d %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &meta)
	if meta.Director != "Christopher Nolan" {
		t.Fatalf("metadata = %+v", meta)
	}
	resp := expectError(t, env.do(http.MethodGet, "/api/metadata?title=Nothing", ""), http.StatusNotFound, "METADATA_NOT_FOUND")
	if resp.Error != "Movie not found!" {
		t.Fatalf("metadata miss message = %q", resp.Error)
	}

	var hits []domain.TitleSuggestion
	decode(t, env.do(http.MethodGet, "/api/autocomplete?q=hit", ""), &hits)
	if len(hits) != 10 {
		t.Fatalf("suggestions = %d, want 10", len(hits))
	}
	rec = env.do(http.MethodGet, "/api/autocomplete?q=", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty autocomplete = %s", rec.Body.String())
	}
}

func TestMetadataRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	env := newTestEnv(t, app.Config{}, Config{Redis: client, MetadataRateLimitPerMinute: 1})

	if rec := env.do(http.MethodGet, "/api/metadata?title=Inception", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := env.do(http.MethodGet, "/api/metadata?title=Inception", "")
	expectError(t, rec, http.StatusTooManyRequests, "SYSTEM_RATE_LIMITED")
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
	if rec := env.do(http.MethodGet, "/api/autocomplete?q=hit", ""); rec.Code != http.StatusOK {
		t.Fatalf("autocomplete has its own quota, got %d", rec.Code)
	}
}

func TestSearchRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	env := newTestEnv(t, app.Config{}, Config{Redis: client, MetadataRateLimitPerMinute: 1})

	if rec := env.do(http.MethodGet, "/api/search?q=Inception", ""); rec.Code != http.StatusOK {
		t.Fatalf("first search = %d", rec.Code)
	}
	rec := env.do(http.MethodGet, "/api/search?q=Inception", "")
	expectError(t, rec, http.StatusTooManyRequests, "SYSTEM_RATE_LIMITED")
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
	if rec := env.do(http.MethodGet, "/api/metadata?title=Inception", ""); rec.Code != http.StatusOK {
		t.Fatalf("metadata has its own quota, got %d", rec.Code)
	}
}

func TestFlexStringAcceptsNumbersAndStrings(t *testing.T) {
	var req movieRequest
	if err := json.Unmarshal([]byte(`{"name":"Heat","year":1995,"rating":"8.5"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Year != "1995" || req.Rating != "8.5" {
		t.Fatalf("req = %+v", req)
	}
	if err := json.Unmarshal([]byte(`{"year":{"v":1}}`), &req); err == nil {
		t.Fatalf("expected error for object year")
	}
}
