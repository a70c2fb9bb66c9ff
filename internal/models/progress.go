package models

// FileFailure reports one document that could not be processed.
type FileFailure struct {
	FileName     string `json:"fileName"`
	ErrorMessage string `json:"errorMessage"`
}

// ProgressEvent is an ephemeral snapshot of a job's incremental state.
// It is broadcast, never persisted. ConnectionID tags the event so a
// consumer watching the shared channel can filter for its own job.
type ProgressEvent struct {
	ConnectionID   string        `json:"connectionId,omitempty"`
	FilesCompleted []string      `json:"filesCompleted"`
	FilesFailed    []FileFailure `json:"filesFailed"`
	ProcessedPage  int           `json:"processedPage"`
}
