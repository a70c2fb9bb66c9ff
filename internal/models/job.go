package models

import "time"

// JobStatus represents the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// SerializedFile is a directly uploaded file carried inside a job payload.
// Content is base64 encoded.
type SerializedFile struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
	Content      string `json:"content"`
}

// JobPayload is the immutable input of one ingestion run. The content
// carriers (Files/Texts/Links) are meaningful for direct uploads;
// ConnectionID selects the source for connector-backed services.
type JobPayload struct {
	ConnectionID string           `json:"connectionId"`
	Service      Service          `json:"service"`
	Files        []SerializedFile `json:"files,omitempty"`
	Texts        []string         `json:"texts,omitempty"`
	Links        []string         `json:"links,omitempty"`
	Metadata     string           `json:"metadata,omitempty"`
	PageLimit    *int             `json:"pageLimit,omitempty"`
	FileLimit    *int             `json:"fileLimit,omitempty"`
}

// JobSnapshot is a point-in-time copy of a job's state, safe to hand out.
type JobSnapshot struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Service     Service    `json:"service"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	EnqueuedAt  time.Time  `json:"enqueuedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
