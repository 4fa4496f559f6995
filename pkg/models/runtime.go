package models

import "time"

// RuntimeInfo describes the backend runtime settings that clients may need.
// It is intentionally small and stable.
type RuntimeInfo struct {
	HTTPBaseURL     string     `json:"http_base_url"`
	WSBaseURL       string     `json:"ws_base_url"`
	Port            int        `json:"port"`
	SummarizerMode  string     `json:"summarizer_mode"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
}
