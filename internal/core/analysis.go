package core

import "time"

const (
	// MaxHistoryEntries caps the analysis history, newest entries win.
	MaxHistoryEntries = 20
	// MaxPendingFiles caps the pending analysis queue, newest entries win.
	MaxPendingFiles = 10
	// MaxOfflineFileSize is the largest payload that may be persisted to the
	// pending queue.
	MaxOfflineFileSize = 5 * 1024 * 1024
)

// AnalysisEntry is one remote analysis result kept in history.
type AnalysisEntry struct {
	FileName   string    `json:"fileName"`
	Summary    string    `json:"summary"`
	AnalyzedAt time.Time `json:"analyzedAt"`
}

// FileUpload is a user selected file on its way to analysis.
type FileUpload struct {
	Name string
	Type string // declared MIME type
	Data []byte
}

// Size returns the payload length in bytes.
func (f FileUpload) Size() int64 {
	return int64(len(f.Data))
}

// PendingFile is a FileUpload waiting in the persisted queue. Data is
// encoded as base64 when serialized to JSON.
type PendingFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	Data       []byte    `json:"data"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Upload turns the queued item back into a FileUpload.
func (p PendingFile) Upload() FileUpload {
	return FileUpload{Name: p.Name, Type: p.Type, Data: p.Data}
}
