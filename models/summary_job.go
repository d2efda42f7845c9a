package models

import (
	"time"
)

// SummaryJobStatus represents the status of a background summarization
type SummaryJobStatus string

const (
	SummaryJobPending    SummaryJobStatus = "pending"
	SummaryJobInProgress SummaryJobStatus = "in_progress"
	SummaryJobCompleted  SummaryJobStatus = "completed"
	SummaryJobSkipped    SummaryJobStatus = "skipped" // cooldown or ownership re-check declined the write
	SummaryJobFailed     SummaryJobStatus = "failed"
)

// SummaryJob tracks one background context summarization for a case
type SummaryJob struct {
	ID           string           `json:"id"`
	CaseID       string           `json:"case_id"`
	RequesterUID string           `json:"requester_uid"`
	Status       SummaryJobStatus `json:"status"`
	InputChars   int              `json:"input_chars"`
	SummaryChars int              `json:"summary_chars"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}
