// Package store is the gorm-backed persistence for chat, games, questions,
// solutions and per-user results.
package store

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNoQuestions      = errors.New("no questions match")
	ErrAlreadyFinalized = errors.New("game already finalized")
)

type Store struct {
	db *gorm.DB
}

// Open connects to Postgres, retrying a few times while the database comes
// up, and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	const maxRetries = 3
	const retryInterval = 5 * time.Second

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i <= maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		log.Warn("database connect retry", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connected")
	return New(db)
}

// New wraps an already opened connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	err := db.AutoMigrate(
		&User{},
		&Game{},
		&Question{},
		&GameQuestion{},
		&Solution{},
		&Message{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the connection for seeding and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
