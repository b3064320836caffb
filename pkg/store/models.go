package store

import "time"

// UserModel maps the users table.
type UserModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:uq_users_name"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

// MovieModel maps the movies table. A NULL user_id is a global catalog
// movie; those rows are kept unique by uq_movie_name_year_global, created
// after migration.
type MovieModel struct {
	ID               int64      `gorm:"primaryKey;autoIncrement"`
	Name             string     `gorm:"size:255;not null;uniqueIndex:uq_movie_name_year_user,priority:1"`
	Director         string     `gorm:"size:255;not null;default:''"`
	Year             int        `gorm:"not null;uniqueIndex:uq_movie_name_year_user,priority:2"`
	Rating           float64    `gorm:"not null;default:0"`
	UserID           *int64     `gorm:"index:idx_movies_user_id;uniqueIndex:uq_movie_name_year_user,priority:3"`
	User             *UserModel `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	ExternalPoster   string     `gorm:"size:1024"`
	ExternalRating   string     `gorm:"size:16"`
	ExternalDirector string     `gorm:"size:255"`
	ExternalYear     string     `gorm:"size:16"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

func (MovieModel) TableName() string { return "movies" }

// ReviewModel maps the reviews table.
type ReviewModel struct {
	ID         int64       `gorm:"primaryKey;autoIncrement"`
	UserID     int64       `gorm:"not null;index:idx_reviews_user_id"`
	User       *UserModel  `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	MovieID    int64       `gorm:"not null;index:idx_reviews_movie_id"`
	Movie      *MovieModel `gorm:"foreignKey:MovieID;references:ID;constraint:OnDelete:CASCADE"`
	ReviewText string      `gorm:"type:text;not null"`
	Rating     float64     `gorm:"not null;default:0"`
	CreatedAt  time.Time   `gorm:"not null"`
	UpdatedAt  time.Time   `gorm:"not null"`
}

func (ReviewModel) TableName() string { return "reviews" }
