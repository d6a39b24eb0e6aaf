package models

import (
	"time"
)

// Scheduled job names.
const (
	JobRefreshSymbolList = "refresh_symbol_list"
	JobFullBarRefresh    = "full_bar_refresh"
	JobSmartBarUpdate    = "smart_bar_update"
	JobComputeSignals    = "compute_signals"
	JobRealtimeSnapshot  = "realtime_snapshot"
	JobNewsCrawl         = "news_crawl"
	JobCleanupCharts     = "cleanup_charts"
)

// Execution log statuses.
const (
	ExecStatusSuccess = "success"
	ExecStatusFail    = "fail"
	ExecStatusSkip    = "skip"
)

// Skip reasons recorded when a trigger is dropped.
const (
	SkipAlreadyRunning = "already_running"
	SkipNotReady       = "not_ready"
	SkipOutsideSession = "outside_session"
	SkipModeRejected   = "mode_rejected"
)

// ExecutionLog records one job run outcome. Entries live in Redis under a
// 7-day TTL.
type ExecutionLog struct {
	Job       string    `json:"job"`
	Status    string    `json:"status"` // success, fail or skip
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Rows      int       `json:"rows"` // rows touched
	StartedAt time.Time `json:"started_at"`
}

// JobStatus is the observable state of one scheduled job.
type JobStatus struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
	LastStatus string    `json:"last_status,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Runs       int64     `json:"runs"`
	Skips      int64     `json:"skips"`
}
