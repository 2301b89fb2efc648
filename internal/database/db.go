// Package database opens the local gorm store that holds everything too
// operational for the DHIS2 dataStore: connection profiles, scheduled jobs
// and task progress. SQLite is the zero-config default; DATABASE_URL opts
// into PostgreSQL for shared deployments.
package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dqa360-backend/internal/models"
)

var DB *gorm.DB

const defaultSQLitePath = "./dqa360.db"

// Init opens the database, tunes the connection pool and migrates the
// schema. The returned handle is also kept in the package-level DB.
func Init() (*gorm.DB, error) {
	dialector, err := resolveDialector(os.Getenv("DATABASE_URL"))
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if os.Getenv("LOG_LEVEL") == "DEBUG" {
		logLevel = logger.Info
	}

	DB, err = gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(envInt("DB_MAX_OPEN_CONNS", 25))
	sqlDB.SetMaxIdleConns(envInt("DB_MAX_IDLE_CONNS", 5))
	sqlDB.SetConnMaxLifetime(envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute))

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := AutoMigrate(DB); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	log.Println("Database initialized successfully")
	return DB, nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, error) {
	if databaseURL == "" {
		databaseURL = "sqlite://" + defaultSQLitePath
	}

	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == defaultSQLitePath {
			resolved, err := defaultDatabaseFile()
			if err != nil {
				return nil, err
			}
			path = resolved
			log.Printf("Using database at: %s", path)
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Open(databaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported database URL format: %s", databaseURL)
	}
}

// defaultDatabaseFile places the default SQLite file under the user config
// directory so a bare `dqa360-backend` run does not litter the working dir
func defaultDatabaseFile() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	appDir := filepath.Join(configDir, "dqa360")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return filepath.Join(appDir, "dqa360.db"), nil
}

// AutoMigrate runs GORM auto-migration for all local models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ConnectionProfile{},
		&models.ScheduledJob{},
		&models.TaskProgress{},
	)
}

// Close closes the underlying connection pool
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the shared database handle
func GetDB() *gorm.DB {
	return DB
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
