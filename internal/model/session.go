package model

import "time"

// ScrapeSession is one append-only log entry written at the end of every run.
type ScrapeSession struct {
	ID              string     `json:"id" yaml:"id"`
	Kind            RecordKind `json:"kind" yaml:"kind"`
	StartedAt       time.Time  `json:"started_at" yaml:"started_at"`
	EndedAt         time.Time  `json:"ended_at" yaml:"ended_at"`
	DurationSeconds float64    `json:"duration_seconds" yaml:"duration_seconds"`
	TotalCandidates int        `json:"total_candidates" yaml:"total_candidates"`
	TotalScraped    int        `json:"total_scraped" yaml:"total_scraped"`
	NewRecords      int        `json:"new_records" yaml:"new_records"`
	Skipped         int        `json:"skipped" yaml:"skipped"`
	Errors          int        `json:"errors" yaml:"errors"`
	Success         bool       `json:"success" yaml:"success"`
	Notes           string     `json:"notes" yaml:"notes"`
}

// FailedRecord identifies one candidate that could not be scraped.
type FailedRecord struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"` // "transient" or "permanent"
}

// RunSummary is what a caller gets back from one orchestrator run.
type RunSummary struct {
	Success         bool    `json:"success"`
	TotalScraped    int     `json:"total_scraped"`
	NewRecords      int     `json:"new_records"`
	Skipped         int     `json:"skipped"`
	Errors          int     `json:"errors"`
	DurationSeconds float64 `json:"duration_seconds"`
	Workers         int     `json:"workers"`

	Kind      RecordKind     `json:"kind"`
	SessionID string         `json:"session_id,omitempty"`
	Failed    []FailedRecord `json:"failed,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// WorkerResult is the tally one worker hands back to the orchestrator.
type WorkerResult struct {
	WorkerID int            `json:"worker_id"`
	Assigned int            `json:"assigned"`
	Scraped  int            `json:"scraped"`
	New      int            `json:"new"`
	Errors   int            `json:"errors"`
	Failed   []FailedRecord `json:"failed,omitempty"`
}
