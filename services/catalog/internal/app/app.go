package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"moviweb/internal/util"
	"moviweb/internal/validation"
	"moviweb/pkg/domain"
	"moviweb/pkg/omdb"
	"moviweb/pkg/store"
)

const (
	defaultPageSize        = 24
	defaultSeedConcurrency = 4
)

// MetadataClient is the external film database. Misses and failures are
// both reported as ok == false.
type MetadataClient interface {
	Lookup(ctx context.Context, title string) (domain.MovieMetadata, bool)
	Search(ctx context.Context, query string, limit int) []domain.TitleSuggestion
}

// Config holds runtime configuration for the catalog core.
type Config struct {
	DatabaseURL string
	Store       store.Store

	Metadata    MetadataClient
	OMDbAPIKey  string
	OMDbBaseURL string
	OMDbTimeout time.Duration

	TrendingTitles  []string
	PageSize        int
	SeedConcurrency int
}

// App implements the catalog operations on top of a Store and a metadata client.
type App struct {
	store           store.Store
	metadata        MetadataClient
	ownsStore       bool
	trending        []string
	pageSize        int
	seedConcurrency int
	seed            singleflight.Group
}

// New constructs the application. A GormStore is opened from DatabaseURL
// and an OMDb client is built when none are injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	ownsStore := false
	if dataStore == nil {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		dataStore = gs
		ownsStore = true
	}
	metadata := cfg.Metadata
	if metadata == nil {
		metadata = omdb.NewClient(omdb.Config{
			APIKey:  cfg.OMDbAPIKey,
			BaseURL: cfg.OMDbBaseURL,
			Timeout: cfg.OMDbTimeout,
		})
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	seedConcurrency := cfg.SeedConcurrency
	if seedConcurrency <= 0 {
		seedConcurrency = defaultSeedConcurrency
	}
	return &App{
		store:           dataStore,
		metadata:        metadata,
		ownsStore:       ownsStore,
		trending:        normalizeTitles(cfg.TrendingTitles),
		pageSize:        pageSize,
		seedConcurrency: seedConcurrency,
	}, nil
}

// Close releases the store if New opened it.
func (a *App) Close() error {
	if !a.ownsStore {
		return nil
	}
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Ping reports store health when the store supports it.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

type userInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

// AddUser registers a user under a unique name.
func (a *App) AddUser(ctx context.Context, name string) (domain.User, error) {
	in := userInput{Name: strings.TrimSpace(name)}
	if err := validation.ValidateStruct(in); err != nil {
		return domain.User{}, err
	}
	user, err := a.store.CreateUser(ctx, in.Name)
	if errors.Is(err, store.ErrConflict) {
		return domain.User{}, &UserError{
			Kind:    ErrUserExists,
			Message: fmt.Sprintf("User '%s' already exists. Please choose another name.", in.Name),
		}
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	util.LoggerFromContext(ctx).Info("user added", "user_id", user.ID)
	return user, nil
}

// DeleteUser removes a user together with their movies and reviews.
func (a *App) DeleteUser(ctx context.Context, id int64) error {
	if err := a.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// Users lists every user.
func (a *App) Users(ctx context.Context) ([]domain.User, error) {
	return a.store.ListUsers(ctx)
}

// User returns one user.
func (a *App) User(ctx context.Context, id int64) (domain.User, error) {
	user, ok, err := a.store.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

func normalizeTitles(titles []string) []string {
	seen := make(map[string]struct{}, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
