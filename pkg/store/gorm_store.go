package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moviweb/pkg/domain"
)

const migrateLockID int64 = 61880188

// NULL user_ids never collide in uq_movie_name_year_user, so global catalog
// rows get their own partial index.
const globalMovieIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uq_movie_name_year_global ON movies (name, year) WHERE user_id IS NULL`

// GormStoreOptions tunes NewGormStore.
type GormStoreOptions struct {
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithLogLevel sets the GORM logger level (Warn by default).
func WithLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// WithSlowThreshold sets the duration above which queries are logged as slow.
func WithSlowThreshold(d time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.SlowThreshold = d
	}
}

// GormStore implements Store on GORM with Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database named by dsn and migrates the schema.
//
// postgres:// and postgresql:// URLs, and key=value strings containing
// host=, select Postgres. sqlite://path, file: URIs, *.db paths and
// :memory: select SQLite; foreign key enforcement is switched on for them.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{LogLevel: gormlogger.Warn, SlowThreshold: time.Second}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// One connection keeps :memory: databases shared and serializes writers.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &MovieModel{}, &ReviewModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(globalMovieIndex).Error; err != nil {
			return fmt.Errorf("create global movie index: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, errors.New("database url required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(sqliteDSN(strings.TrimPrefix(dsn, "sqlite://"))), nil
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), strings.HasPrefix(dsn, ":memory:"):
		return sqlite.Open(sqliteDSN(dsn)), nil
	default:
		return nil, errors.New("unsupported database url scheme")
	}
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// withMigrationLock serializes migrations across replicas on Postgres.
// Other dialects run fn directly.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// translate maps driver constraint errors to store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	default:
		return err
	}
}

// CreateUser inserts a user with a unique name.
func (s *GormStore) CreateUser(ctx context.Context, name string) (domain.User, error) {
	model := UserModel{Name: name, CreatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.User{}, translate(err)
	}
	return userFromModel(model), nil
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(ctx context.Context, id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users in id order.
func (s *GormStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// DeleteUser removes a user; movies and reviews follow by FK cascade.
func (s *GormStore) DeleteUser(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id).Error
}

// CreateMovie inserts a movie after checking its owner and the
// (name, year, user) triple in the same transaction.
func (s *GormStore) CreateMovie(ctx context.Context, m domain.Movie) (domain.Movie, error) {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	model := movieToModel(m)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.IsGlobal() {
			var users int64
			if err := tx.Model(&UserModel{}).Where("id = ?", m.UserID).Count(&users).Error; err != nil {
				return err
			}
			if users == 0 {
				return ErrInvalidReference
			}
		}
		exists, err := movieExists(tx, m.Name, m.Year, m.UserID, 0)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Movie{}, translate(err)
	}
	return movieFromModel(model), nil
}

// GetMovie returns a movie by ID.
func (s *GormStore) GetMovie(ctx context.Context, id int64) (domain.Movie, bool, error) {
	var model MovieModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Movie{}, false, nil
		}
		return domain.Movie{}, false, err
	}
	return movieFromModel(model), true, nil
}

// UpdateMovie rewrites the user-entered fields of an existing movie. Shadow
// fields are replaced only when meta is non-nil; otherwise the stored ones
// are kept.
func (s *GormStore) UpdateMovie(ctx context.Context, m domain.Movie, meta *domain.MovieMetadata) (domain.Movie, error) {
	var out domain.Movie
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model MovieModel
		if err := tx.First(&model, "id = ?", m.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		current := movieFromModel(model)
		exists, err := movieExists(tx, m.Name, m.Year, current.UserID, current.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}
		current.Name = m.Name
		current.Director = m.Director
		current.Year = m.Year
		current.Rating = m.Rating
		if meta != nil {
			current.ApplyMetadata(*meta)
		}
		current.UpdatedAt = time.Now().UTC()
		updated := movieToModel(current)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = movieFromModel(updated)
		return nil
	})
	if err != nil {
		return domain.Movie{}, translate(err)
	}
	return out, nil
}

// DeleteMovie removes a movie; reviews follow by FK cascade.
func (s *GormStore) DeleteMovie(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&MovieModel{}, "id = ?", id).Error
}

// MovieExists reports whether the (name, year, user) triple is taken.
func (s *GormStore) MovieExists(ctx context.Context, name string, year int, userID int64) (bool, error) {
	return movieExists(s.db.WithContext(ctx), name, year, userID, 0)
}

func movieExists(tx *gorm.DB, name string, year int, userID, excludeID int64) (bool, error) {
	q := tx.Model(&MovieModel{}).Where("name = ? AND year = ?", name, year)
	if userID == domain.GlobalUserID {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", userID)
	}
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListMovies returns every movie in id order.
func (s *GormStore) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	return s.listMovies(ctx, "id ASC", 0, -1)
}

// ListMoviesByUser returns a user's movies; GlobalUserID selects the catalog.
func (s *GormStore) ListMoviesByUser(ctx context.Context, userID int64) ([]domain.Movie, error) {
	if userID == domain.GlobalUserID {
		return s.listMovies(ctx, "id ASC", 0, -1, "user_id IS NULL")
	}
	return s.listMovies(ctx, "id ASC", 0, -1, "user_id = ?", userID)
}

// ListMoviesPage returns one page of movies in id order.
func (s *GormStore) ListMoviesPage(ctx context.Context, offset, limit int) ([]domain.Movie, error) {
	if offset < 0 {
		offset = 0
	}
	return s.listMovies(ctx, "id ASC", offset, limit)
}

// CountMovies returns the number of stored movies.
func (s *GormStore) CountMovies(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&MovieModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SearchMovies matches query case-insensitively as a substring of the
// name, the director or the year rendered as text.
func (s *GormStore) SearchMovies(ctx context.Context, query string) ([]domain.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Movie{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.listMovies(ctx, "id ASC", 0, -1,
		`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(director) LIKE ? ESCAPE '\' OR CAST(year AS TEXT) LIKE ? ESCAPE '\'`,
		pattern, pattern, pattern)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *GormStore) listMovies(ctx context.Context, order string, offset, limit int, conds ...any) ([]domain.Movie, error) {
	var models []MovieModel
	tx := s.db.WithContext(ctx).Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Movie, 0, len(models))
	for _, m := range models {
		res = append(res, movieFromModel(m))
	}
	return res, nil
}

// CreateReview inserts a review once both referenced rows are confirmed.
func (s *GormStore) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	model := reviewToModel(r)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users, movies int64
		if err := tx.Model(&UserModel{}).Where("id = ?", r.UserID).Count(&users).Error; err != nil {
			return err
		}
		if err := tx.Model(&MovieModel{}).Where("id = ?", r.MovieID).Count(&movies).Error; err != nil {
			return err
		}
		if users == 0 || movies == 0 {
			return ErrInvalidReference
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Review{}, translate(err)
	}
	return reviewFromModel(model), nil
}

// GetReview returns a review by ID.
func (s *GormStore) GetReview(ctx context.Context, id int64) (domain.Review, bool, error) {
	var model ReviewModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

// UpdateReview changes text and rating only. Missing ids are ignored.
func (s *GormStore) UpdateReview(ctx context.Context, id int64, text string, rating float64) error {
	return s.db.WithContext(ctx).Model(&ReviewModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"review_text": text,
			"rating":      rating,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// DeleteReview removes a review.
func (s *GormStore) DeleteReview(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&ReviewModel{}, "id = ?", id).Error
}

// ListReviewsByMovie returns a movie's reviews oldest first.
func (s *GormStore) ListReviewsByMovie(ctx context.Context, movieID int64) ([]domain.Review, error) {
	return s.listReviews(ctx, "movie_id = ?", movieID)
}

// ListReviewsByUser returns a user's reviews oldest first.
func (s *GormStore) ListReviewsByUser(ctx context.Context, userID int64) ([]domain.Review, error) {
	return s.listReviews(ctx, "user_id = ?", userID)
}

func (s *GormStore) listReviews(ctx context.Context, cond string, arg any) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.WithContext(ctx).Where(cond, arg).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

func userFromModel(m UserModel) domain.User {
	return domain.User{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}

func movieToModel(m domain.Movie) MovieModel {
	var userID *int64
	if !m.IsGlobal() {
		id := m.UserID
		userID = &id
	}
	return MovieModel{
		ID:               m.ID,
		Name:             m.Name,
		Director:         m.Director,
		Year:             m.Year,
		Rating:           m.Rating,
		UserID:           userID,
		ExternalPoster:   m.ExternalPoster,
		ExternalRating:   m.ExternalRating,
		ExternalDirector: m.ExternalDirector,
		ExternalYear:     m.ExternalYear,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func movieFromModel(m MovieModel) domain.Movie {
	userID := domain.GlobalUserID
	if m.UserID != nil {
		userID = *m.UserID
	}
	return domain.Movie{
		ID:               m.ID,
		Name:             m.Name,
		Director:         m.Director,
		Year:             m.Year,
		Rating:           m.Rating,
		UserID:           userID,
		ExternalPoster:   m.ExternalPoster,
		ExternalRating:   m.ExternalRating,
		ExternalDirector: m.ExternalDirector,
		ExternalYear:     m.ExternalYear,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:         r.ID,
		UserID:     r.UserID,
		MovieID:    r.MovieID,
		ReviewText: r.ReviewText,
		Rating:     r.Rating,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:         m.ID,
		UserID:     m.UserID,
		MovieID:    m.MovieID,
		ReviewText: m.ReviewText,
		Rating:     m.Rating,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
