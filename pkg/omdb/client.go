package omdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"moviweb/internal/util"
	"moviweb/pkg/domain"
)

const (
	DefaultBaseURL = "http://www.omdbapi.com/"
	DefaultTimeout = 10 * time.Second

	// SuggestionLimit caps autocomplete results.
	SuggestionLimit = 10

	notAvailable = "N/A"
	maxBodyBytes = 1 << 20
)

// Config configures a Client. Missing values use the package defaults.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client queries the OMDb API. Every failure is reported as "no result";
// callers never see transport or decoding errors.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client. It is safe for concurrent use.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type titleResponse struct {
	Response   string `json:"Response"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Director   string `json:"Director"`
	Poster     string `json:"Poster"`
	IMDBRating string `json:"imdbRating"`
	IMDBID     string `json:"imdbID"`
}

type searchResponse struct {
	Response string `json:"Response"`
	Search   []struct {
		Title  string `json:"Title"`
		Poster string `json:"Poster"`
	} `json:"Search"`
}

// Lookup fetches metadata for an exact title. The bool is false when the
// provider has no match or cannot be reached, and also when no API key is
// configured, in which case no request is made.
func (c *Client) Lookup(ctx context.Context, title string) (domain.MovieMetadata, bool) {
	title = strings.TrimSpace(title)
	if title == "" || !c.Enabled() {
		return domain.MovieMetadata{}, false
	}
	params := url.Values{}
	params.Set("t", title)
	params.Set("type", "movie")
	params.Set("plot", "short")
	params.Set("r", "json")

	var resp titleResponse
	if err := c.get(ctx, params, &resp); err != nil {
		util.LoggerFromContext(ctx).Debug("omdb lookup failed", "title", title, "err", err)
		return domain.MovieMetadata{}, false
	}
	if resp.Response != "True" {
		return domain.MovieMetadata{}, false
	}
	meta := domain.MovieMetadata{
		Name:       resp.Title,
		Director:   clean(resp.Director),
		Poster:     clean(resp.Poster),
		ExternalID: resp.IMDBID,
	}
	if year, ok := parseYear(resp.Year); ok {
		meta.Year = &year
	}
	if rating, ok := parseRating(resp.IMDBRating); ok {
		meta.Rating = &rating
	}
	return meta, true
}

// Search returns up to limit title suggestions for query. Failures yield an
// empty slice.
func (c *Client) Search(ctx context.Context, query string, limit int) []domain.TitleSuggestion {
	query = strings.TrimSpace(query)
	out := []domain.TitleSuggestion{}
	if query == "" || limit <= 0 || !c.Enabled() {
		return out
	}
	params := url.Values{}
	params.Set("s", query)
	params.Set("type", "movie")

	var resp searchResponse
	if err := c.get(ctx, params, &resp); err != nil {
		util.LoggerFromContext(ctx).Debug("omdb search failed", "query", query, "err", err)
		return out
	}
	if resp.Response != "True" {
		return out
	}
	for _, hit := range resp.Search {
		if len(out) == limit {
			break
		}
		out = append(out, domain.TitleSuggestion{Title: hit.Title, Poster: hit.Poster})
	}
	return out
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("apikey", c.apiKey)
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func clean(v string) string {
	v = strings.TrimSpace(v)
	if v == notAvailable {
		return ""
	}
	return v
}

// parseYear accepts only a plain run of ASCII digits.
func parseYear(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return year, true
}

// parseRating accepts digits with at most one decimal point.
func parseRating(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Count(raw, ".") > 1 {
		return 0, false
	}
	digits := 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		default:
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}
	rating, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return rating, true
}
