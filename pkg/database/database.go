package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpro/stockpulse/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned by the repositories when no row matches
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
)

// InitDB initializes the database connection and runs migrations.
// PostgreSQL is used when databaseURL is set, SQLite at dbPath otherwise.
func InitDB(databaseURL, dbPath string, logLevel logger.LogLevel) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	}

	var db *gorm.DB
	var err error

	if databaseURL != "" {
		// Handle Vercel Postgres format: postgres:// -> postgresql://
		if strings.HasPrefix(databaseURL, "postgres://") {
			databaseURL = strings.Replace(databaseURL, "postgres://", "postgresql://", 1)
		}

		db, err = gorm.Open(postgres.Open(databaseURL), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
	} else {
		if !strings.HasPrefix(dbPath, "file:") {
			dir := filepath.Dir(dbPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		db, err = gorm.Open(sqlite.Open(dbPath), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the auto migrations for every model
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Preferences{},
		&models.Stock{},
		&models.WatchlistItem{},
		&models.PortfolioItem{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// InitializeAdminRoles promotes the preferences of existing users whose email
// is listed as an admin. Users without preferences get an admin row created.
func InitializeAdminRoles(db *gorm.DB, emails []string) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	var users []models.User
	if err := db.Where("email IN ?", emails).Find(&users).Error; err != nil {
		return 0, fmt.Errorf("failed to load admin users: %w", err)
	}

	promoted := 0
	for _, user := range users {
		var prefs models.Preferences
		err := db.Where("user_id = ?", user.ID).First(&prefs).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			prefs = models.DefaultPreferences(user.ID)
			prefs.Role = models.RoleAdmin
			if err := db.Create(&prefs).Error; err != nil {
				return promoted, fmt.Errorf("failed to create admin preferences: %w", err)
			}
			promoted++
		case err != nil:
			return promoted, fmt.Errorf("failed to load preferences: %w", err)
		case prefs.Role != models.RoleAdmin:
			if err := db.Model(&prefs).Update("role", models.RoleAdmin).Error; err != nil {
				return promoted, fmt.Errorf("failed to promote user: %w", err)
			}
			promoted++
		}
	}

	return promoted, nil
}

// IsDuplicate reports whether err is a unique constraint violation
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// translate maps gorm errors onto the package sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case IsDuplicate(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
