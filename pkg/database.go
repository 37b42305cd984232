package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quizdeck/quiz-service/internal/config"
	"github.com/quizdeck/quiz-service/internal/models"
)

// InitDatabase opens the PostgreSQL connection, configures the pool and
// runs schema migrations for all owned tables.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if !cfg.IsProduction() {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// migrate creates or updates the schema for all models owned by this
// service. Users live in Casdoor and are not migrated here.
func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Class{},
		&models.Enrollment{},
		&models.Quiz{},
		&models.Question{},
		&models.AnswerOption{},
		&models.QuizAttempt{},
		&models.StudentAnswer{},
	)
}
