// Package models defines the data structures shared across the ingestion service.
package models

import "time"

// Service identifies the source kind of a connection.
type Service string

const (
	ServiceDirectUpload Service = "DIRECT_UPLOAD"
	ServiceGoogleDrive  Service = "GOOGLE_DRIVE"
	ServiceAWSS3        Service = "AWS_S3"
)

// KnownService reports whether s is a supported source kind.
func KnownService(s Service) bool {
	switch s {
	case ServiceDirectUpload, ServiceGoogleDrive, ServiceAWSS3:
		return true
	}
	return false
}

// Connection represents one configured document source owned by a user.
//
// JobID is non-nil exactly while an ingestion job is believed active for
// this connection; it is cleared on completion, failure or cancellation.
type Connection struct {
	ID         string  `gorm:"primaryKey" json:"id"`
	UserID     string  `gorm:"index" json:"userId"`
	Service    Service `json:"service"`
	Identifier string  `json:"identifier"`

	// Source configuration
	FolderName string `json:"folderName"` // directory / folder / prefix filter
	Partition  string `json:"partition"`  // partition label for index payloads
	Metadata   string `json:"metadata"`   // free-form JSON blob
	PageLimit  *int   `json:"pageLimit,omitempty"`
	FileLimit  *int   `json:"fileLimit,omitempty"`

	// Stored credentials for external services
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	Expiry       *time.Time `json:"-"`

	JobID       *string    `json:"jobId,omitempty"`
	IsConfigSet bool       `json:"isConfigSet"`
	LastSynced  *time.Time `json:"lastSynced,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ProcessedFile is the durable link from an ingested document back to the
// chunk ids it produced in the vector index. Required for deletion.
type ProcessedFile struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	ConnectionID string    `gorm:"uniqueIndex:idx_connection_file" json:"connectionId"`
	Name         string    `gorm:"uniqueIndex:idx_connection_file" json:"name"`
	ChunkIDs     []string  `gorm:"serializer:json" json:"chunksIds"`
	TotalPages   int       `json:"totalPages"`
	CreatedAt    time.Time `json:"createdAt"`
}
