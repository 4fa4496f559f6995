// Database models for summarization run history
package db

import "time"

// Run status constants
const (
	RunStatusSucceeded = "succeeded"
	RunStatusSkipped   = "skipped" // no messages for the date
	RunStatusFailed    = "failed"
)

// Run trigger constants
const (
	TriggerSchedule  = "schedule"
	TriggerReconcile = "reconcile"
	TriggerManual    = "manual"
	TriggerExternal  = "external"
)

// AnalysisRun records one attempt to produce a date's summary.
type AnalysisRun struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Date         string    `json:"date" gorm:"size:10;index;not null"`
	Trigger      string    `json:"trigger" gorm:"size:20;not null"`
	Status       string    `json:"status" gorm:"size:20;not null"`
	Origin       string    `json:"origin,omitempty" gorm:"size:32"` // remote, heuristic, heuristic-fallback, external
	MessageCount int       `json:"message_count"`
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

func (*AnalysisRun) TableName() string {
	return "analysis_runs"
}
