// Package storage persists the server's transfer audit log in SQLite.
// The audit log is history only: the live catalog is always recomputed from
// the directory and never answered from here.
package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Transfer statuses.
const (
	StatusOK        = "ok"
	StatusFileError = "file_error"
	StatusRPCError  = "rpc_error"
	StatusAborted   = "aborted"
)

// TransferRecord is one served request.
type TransferRecord struct {
	ID         uint `gorm:"primarykey"`
	CreatedAt  time.Time
	ConnID     string `gorm:"index"`
	RemoteAddr string
	Operation  string `gorm:"index"`
	Argument   string
	BytesSent  int64
	Digest     string // hex SHA-256, downloads only
	Status     string
	Code       int // RPC error code or OS errno, zero on success
}

// Store wraps the audit database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.AutoMigrate(&TransferRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one transfer record.
func (s *Store) Record(rec *TransferRecord) error {
	return s.db.Create(rec).Error
}

// Recent returns the newest records, newest first.
func (s *Store) Recent(limit int) ([]TransferRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []TransferRecord
	err := s.db.Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}

// Totals reports the number of recorded transfers and the payload bytes
// served across all of them.
func (s *Store) Totals() (count int64, bytes int64, err error) {
	if err = s.db.Model(&TransferRecord{}).Count(&count).Error; err != nil {
		return 0, 0, err
	}
	type sum struct{ Total int64 }
	var row sum
	err = s.db.Model(&TransferRecord{}).
		Select("coalesce(sum(bytes_sent), 0) as total").
		Scan(&row).Error
	return count, row.Total, err
}
