package pg

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"globetrotter/config"
)

// CreateDSN builds the connection string for the app schema from cfg.
func CreateDSN(cfg config.DatabaseConfig) string {
	var connStr string
	if cfg.URL != "" {
		connStr = cfg.URL
		log.Printf("Using DATABASE_URL: *")
	} else {
		connStr = fmt.Sprintf("host=%s user=%s dbname=%s port=%d sslmode=disable", cfg.Host, cfg.User, cfg.Name, cfg.Port)
		if cfg.Password != "" {
			connStr += fmt.Sprintf(" password=%s", cfg.Password)
			log.Printf("Using DATABASE_PASSWORD: *")
		} else {
			log.Printf("Using default connection string: %s", connStr)
		}
	}

	// dsn should point to target schema for the app
	schema := cfg.Schema
	if schema == "" {
		schema = config.AppName
	}
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		sep := "?"
		if strings.Contains(connStr, "?") {
			sep = "&"
		}
		return connStr + sep + "search_path=" + schema
	}
	return connStr + fmt.Sprintf(" search_path=%s", schema)
}

func CloseGORM(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB from GORM: %v", err)
		return
	}
	sqlDB.Close()
}

// InitPostgresGORM initializes a new GORM DB connection to PostgreSQL.
// Driver errors are translated so unique and foreign key violations surface as gorm errors.
func InitPostgresGORM(dsn string, isDev bool) (*gorm.DB, error) {
	level := logger.Silent
	if isDev {
		level = logger.Info
	}
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  isDev,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Ping the database to ensure connection is alive
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}
