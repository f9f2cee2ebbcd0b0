package models

import "time"

// RunStatus is the lifecycle state of a monitoring run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunCounters aggregates what happened during a run.
type RunCounters struct {
	SourcesChecked    int `json:"sources_checked"`
	CompaniesChecked  int `json:"companies_checked"`
	UpdatesDetected   int `json:"updates_detected"`
	AutoApproved      int `json:"auto_approved"`
	PendingReview     int `json:"pending_review"`
	NotificationsSent int `json:"notifications_sent"`
	ErrorCount        int `json:"error_count"`
}

// MonitoringRun is the persisted record of one pipeline invocation.
// Created at run start, finalized exactly once, never re-opened.
type MonitoringRun struct {
	ID          int64       `json:"id"`
	RunType     string      `json:"run_type"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Status      RunStatus   `json:"status"`
	Counters    RunCounters `json:"counters"`
	Errors      []string    `json:"errors,omitempty"`
}
