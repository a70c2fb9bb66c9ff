// Package store provides the relational bookkeeping layer: connections and
// the processed-file records that link documents to their indexed chunks.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the relational database.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite database at path. Use ":memory:" for
// an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&models.Connection{}, &models.ProcessedFile{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveConnection inserts or updates a connection.
func (s *Store) SaveConnection(ctx context.Context, conn *models.Connection) error {
	return s.db.WithContext(ctx).Save(conn).Error
}

// GetConnection loads a connection by id.
func (s *Store) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	var conn models.Connection
	err := s.db.WithContext(ctx).First(&conn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &conn, nil
}

// GetUserConnection loads a connection by id scoped to its owner.
func (s *Store) GetUserConnection(ctx context.Context, id, userID string) (*models.Connection, error) {
	var conn models.Connection
	err := s.db.WithContext(ctx).First(&conn, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &conn, nil
}

// SetJobID records the active job for a connection.
func (s *Store) SetJobID(ctx context.Context, connectionID, jobID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", connectionID).
		Update("job_id", jobID).Error
}

// ClearJobID clears the active-job marker and stamps the last sync time.
func (s *Store) ClearJobID(ctx context.Context, connectionID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", connectionID).
		Updates(map[string]any{"job_id": nil, "last_synced": &now}).Error
}

// SaveCredentials persists refreshed OAuth tokens for a connection.
func (s *Store) SaveCredentials(ctx context.Context, connectionID, accessToken, refreshToken string, expiry *time.Time) error {
	updates := map[string]any{"access_token": accessToken}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	if expiry != nil {
		updates["expiry"] = expiry
	}
	return s.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", connectionID).
		Updates(updates).Error
}

// UpsertProcessedFile records (or refreshes) the chunk ids produced for a
// document. The (connection, name) pair is unique, so re-ingestion keeps a
// single row per document.
func (s *Store) UpsertProcessedFile(ctx context.Context, file *models.ProcessedFile) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "connection_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"chunk_ids", "total_pages"}),
		}).
		Create(file).Error
}

// FilesForConnection returns all processed-file records of a connection.
func (s *Store) FilesForConnection(ctx context.Context, connectionID string) ([]models.ProcessedFile, error) {
	var files []models.ProcessedFile
	if err := s.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("name").
		Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list processed files: %w", err)
	}
	return files, nil
}

// DeleteConnection removes a connection and its processed-file records.
// Callers must purge the vector index first; the two stores share no
// transaction.
func (s *Store) DeleteConnection(ctx context.Context, connectionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("connection_id = ?", connectionID).Delete(&models.ProcessedFile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Connection{}, "id = ?", connectionID).Error
	})
}
