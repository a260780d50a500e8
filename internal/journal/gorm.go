package journal

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore persists entries to Postgres.
type GormStore struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the journal table.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, e *Entry) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// Recent returns up to limit entries, newest first.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).Order("applied_at desc").Limit(limit).Find(&entries).Error
	return entries, err
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
