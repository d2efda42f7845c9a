package models

import (
	"time"
)

// File represents an uploaded case document stored in file storage
type File struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CaseID      string    `json:"case_id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}
