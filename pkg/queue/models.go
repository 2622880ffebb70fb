package queue

import "github.com/mangabako/mangabako/pkg/manifest"

// Progress event statuses emitted by the worker.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is the descriptor handed to the external OCR worker. Field names are
// the worker's wire contract and stay camelCase.
type Job struct {
	JobID        string  `json:"jobId"`
	VolumeID     string  `json:"volumeId"`
	ArchivePath  string  `json:"archivePath"`
	OutputPath   string  `json:"outputPath"`
	UserID       string  `json:"userId"`
	Title        *string `json:"title,omitempty"`
	VolumeNumber *int    `json:"volumeNumber,omitempty"`
}

// ProgressUpdate is a worker-emitted status message keyed by job ID.
type ProgressUpdate struct {
	JobID     string  `json:"jobId"`
	Progress  float64 `json:"progress"`
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// Result is the worker's full output for a completed job, fetched from the
// keyed store.
type Result struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    *ResultData `json:"data"`
}

type ResultData struct {
	Pages    []manifest.Page `json:"pages"`
	Version  string          `json:"version"`
	TitleID  string          `json:"titleId"`
	VolumeID string          `json:"volumeId"`
}
